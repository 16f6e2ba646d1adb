// Package queue defines message payloads exchanged over the message broker
// and the background consumers that process them.  Publishing is strictly
// best-effort: the booking transaction has already committed by the time
// any event leaves the process.
package queue

// Queue names.  Durable, declared idempotently by both ends.
const (
	NotifyQueueName = "gig.notify"
	TrustQueueName  = "trust.recompute"
)

// Notification types carried in UserNotificationEvent.Type.
const (
	NotifyNewApplicant     = "new_applicant"
	NotifyApplicantLeft    = "applicant_withdrew"
	NotifyApplicantRemoved = "application_rejected"
	NotifyBooked           = "booked"
	NotifyBookingConfirmed = "booking_confirmed"
	NotifyUnbooked         = "unbooked"
	NotifyRemovedFromBand  = "removed_from_band"
	NotifySlotOpened       = "slot_opened"
	NotifyCrewComplete     = "crew_complete"
	NotifyCrewChatCreated  = "crew_chat_created"
	NotifyShortlisted      = "shortlisted"
)

// UserNotificationEvent is published after a committed transition to
// inform one affected user.  It carries everything the consumer needs to
// deliver without querying the caller back.
type UserNotificationEvent struct {
	NotificationID string                 `json:"notification_id"`
	UserID         uint64                 `json:"user_id"`
	Type           string                 `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	ActionURL      string                 `json:"action_url,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	EmittedAt      string                 `json:"emitted_at"`
}

// TrustRecomputeEvent asks the trust consumer to refresh one user's score
// after a booking event.  Trigger names the transition that caused it.
type TrustRecomputeEvent struct {
	UserID    uint64 `json:"user_id"`
	GigID     uint64 `json:"gig_id"`
	Trigger   string `json:"trigger"`
	EmittedAt string `json:"emitted_at"`
}
