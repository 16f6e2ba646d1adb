// Package service hosts the post-commit fan-out: the best-effort side
// effects every successful transition triggers.  Nothing in this package
// runs before the primary transaction commits, and nothing here can fail
// an operation.  Errors are logged and swallowed.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gighall/crewbook/internal/queue"
)

// Fanout dispatches notifications and trust recomputes asynchronously
// after a transaction commits.
type Fanout struct {
	pub *queue.Publisher
	log *zap.Logger
}

// NewFanout wires the dispatcher to a publisher.
func NewFanout(pub *queue.Publisher, log *zap.Logger) *Fanout {
	return &Fanout{pub: pub, log: log}
}

// Notify fires one user notification in the background.  The returned
// notification id identifies the attempt, not a delivery: recipients may
// be ineligible and callers must not depend on the outcome.
func (f *Fanout) Notify(userID uint64, typ, title, message, actionURL string, metadata map[string]interface{}) string {
	ev := queue.UserNotificationEvent{
		NotificationID: uuid.NewString(),
		UserID:         userID,
		Type:           typ,
		Title:          title,
		Message:        message,
		ActionURL:      actionURL,
		Metadata:       metadata,
		EmittedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.pub.PublishNotification(ctx, ev); err != nil {
			f.log.Warn("notification fan-out dropped",
				zap.Uint64("user_id", userID), zap.String("type", typ), zap.Error(err))
		}
	}()
	return ev.NotificationID
}

// RecomputeTrust schedules a trust-score refresh in the background.
func (f *Fanout) RecomputeTrust(userID, gigID uint64, trigger string) {
	ev := queue.TrustRecomputeEvent{
		UserID:    userID,
		GigID:     gigID,
		Trigger:   trigger,
		EmittedAt: time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.pub.PublishTrustRecompute(ctx, ev); err != nil {
			f.log.Warn("trust recompute fan-out dropped",
				zap.Uint64("user_id", userID), zap.Error(err))
		}
	}()
}
