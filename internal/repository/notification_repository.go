package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// NotificationRepo stores delivered notifications.  Rows are written by
// the queue consumer, which is the delivery boundary: the publishing side
// never touches this table and never learns whether delivery happened.
type NotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo returns a NotificationRepo bound to the database.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Insert persists one delivered notification.
func (r *NotificationRepo) Insert(ctx context.Context, notificationID string, userID uint64, typ, title, message string, actionURL *string, metadata []byte) error {
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (notification_id, user_id, type, title, message, action_url, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		notificationID, userID, typ, title, message, actionURL, metadata)
	return err
}

// NotificationView is the read projection for a user's inbox.
type NotificationView struct {
	NotificationID string          `json:"notification_id"`
	Type           string          `json:"type"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	ActionURL      *string         `json:"action_url,omitempty"`
	Metadata       json.RawMessage `json:"metadata"`
	IsRead         bool            `json:"is_read"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ListByUser returns a user's notifications, newest first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]NotificationView, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `SELECT notification_id, type, title, message, action_url, metadata, is_read, created_at
	           FROM notifications WHERE user_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]NotificationView, 0)
	for rows.Next() {
		var (
			v         NotificationView
			actionURL sql.NullString
		)
		if err := rows.Scan(&v.NotificationID, &v.Type, &v.Title, &v.Message, &actionURL, &v.Metadata, &v.IsRead, &v.CreatedAt); err != nil {
			return nil, err
		}
		if actionURL.Valid {
			a := actionURL.String
			v.ActionURL = &a
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
