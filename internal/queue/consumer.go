package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/gighall/crewbook/internal/repository"
)

// Consumers hosts the background workers that drain the notify and trust
// queues.  Each runs a reconnect loop with exponential backoff and never
// returns under normal operation; processing errors are logged and the
// offending message is rejected without requeue to avoid tight loops.
type Consumers struct {
	url           string
	users         *repository.UserRepo
	history       *repository.HistoryRepo
	notifications *repository.NotificationRepo
	log           *zap.Logger
}

// NewConsumers wires the consumers against their repositories.
func NewConsumers(users *repository.UserRepo, history *repository.HistoryRepo, notifications *repository.NotificationRepo, log *zap.Logger) *Consumers {
	return &Consumers{
		url:           brokerURL(),
		users:         users,
		history:       history,
		notifications: notifications,
		log:           log,
	}
}

// StartNotificationConsumer drains gig.notify and delivers notifications
// into the notifications table.  Ineligible recipients (unknown or
// inactive users) are skipped silently: delivery is best-effort and
// callers never depend on it.
func (c *Consumers) StartNotificationConsumer() {
	c.runLoop(NotifyQueueName, c.handleNotification)
}

// StartTrustConsumer drains trust.recompute and refreshes trust scores
// from booking history aggregates.
func (c *Consumers) StartTrustConsumer() {
	c.runLoop(TrustQueueName, c.handleTrustRecompute)
}

func (c *Consumers) runLoop(queueName string, handle func(context.Context, []byte) error) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("consumer dial failed",
				zap.String("queue", queueName), zap.Duration("retry_in", backoff), zap.Error(err))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := c.consume(conn, queueName, handle); err != nil {
			c.log.Warn("consume loop ended; reconnecting",
				zap.String("queue", queueName), zap.Error(err))
			time.Sleep(2 * time.Second)
		}
	}
}

func (c *Consumers) consume(conn *amqp.Connection, queueName string, handle func(context.Context, []byte) error) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.String("queue", queueName), zap.Error(err))
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := handle(ctx, d.Body)
		cancel()
		if err != nil {
			c.log.Warn("handle message failed", zap.String("queue", queueName), zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (c *Consumers) handleNotification(ctx context.Context, body []byte) error {
	var ev UserNotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	active, err := c.users.IsActive(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("eligibility check: %w", err)
	}
	if !active {
		// Null delivery for ineligible recipients, by contract.
		c.log.Debug("notification skipped for ineligible recipient",
			zap.Uint64("user_id", ev.UserID), zap.String("type", ev.Type))
		return nil
	}
	var actionURL *string
	if ev.ActionURL != "" {
		actionURL = &ev.ActionURL
	}
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		metadata = []byte("{}")
	}
	if err := c.notifications.Insert(ctx, ev.NotificationID, ev.UserID, ev.Type, ev.Title, ev.Message, actionURL, metadata); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	c.log.Info("notification delivered",
		zap.String("notification_id", ev.NotificationID),
		zap.Uint64("user_id", ev.UserID),
		zap.String("type", ev.Type))
	return nil
}

// handleTrustRecompute rebuilds one user's trust score from committed
// booking history.  The weighting favors completed and confirmed
// engagements and penalizes cancellations, floored at zero.
func (c *Consumers) handleTrustRecompute(ctx context.Context, body []byte) error {
	var ev TrustRecomputeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	agg, err := c.history.AggregateForUser(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("aggregate history: %w", err)
	}
	score := TrustScore(agg)
	if err := c.users.SetTrustScore(ctx, ev.UserID, score); err != nil {
		return fmt.Errorf("store trust score: %w", err)
	}
	c.log.Info("trust score recomputed",
		zap.Uint64("user_id", ev.UserID),
		zap.String("trigger", ev.Trigger),
		zap.Int("score", score))
	return nil
}

// TrustScore converts a booking-history aggregate into a score.
func TrustScore(agg repository.TrustAggregate) int {
	score := 5*agg.Booked + 8*agg.Completed + 3*agg.Confirmed - 4*agg.Cancelled
	if score < 0 {
		return 0
	}
	return score
}
