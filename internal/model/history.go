package model

import "time"

// History entry status values.  The set is closed: the audit boundary
// rejects anything outside it rather than trusting callers.
const (
	HistoryApplied     = "applied"
	HistoryShortlisted = "shortlisted"
	HistoryBooked      = "booked"
	HistoryCancelled   = "cancelled"
	HistoryRejected    = "rejected"
	HistoryCompleted   = "completed"
	HistoryConfirmed   = "confirmed"
	HistoryUpdated     = "updated"
)

// Gig type values recorded on history entries.
const (
	GigTypeRegular = "regular"
	GigTypeBand    = "band"
)

// ValidHistoryStatus reports whether s belongs to the closed status set.
func ValidHistoryStatus(s string) bool {
	switch s {
	case HistoryApplied, HistoryShortlisted, HistoryBooked, HistoryCancelled,
		HistoryRejected, HistoryCompleted, HistoryConfirmed, HistoryUpdated:
		return true
	}
	return false
}

// HistoryEntry is one immutable fact in a gig's audit trail.  Entries are
// only ever appended; corrections are modeled as new entries (a later
// "cancelled" supersedes an earlier "booked" in effect, not by mutation).
//
// Fields:
//  ID            – primary key identifier.
//  EntryID       – composite key {gigID}_{roleIndex}_{userID}_{unixMilli};
//                  indexed but not required to be unique.
//  GigID         – owning gig.
//  UserID        – subject of the transition.
//  UserRole      – subject's directory role at the time of the entry.
//  BandRole      – role label when the transition concerns a band role.
//  BandRoleIndex – role position when the transition concerns a band role.
//  Status        – one of the closed status constants above.
//  GigType       – "regular" or "band".
//  ActionBy      – actor who caused the transition.
//  ActionFor     – user the transition is about (usually equals UserID).
//  Notes         – optional free-form note (nullable).
//  Metadata      – JSON blob with transition-specific details.
//  CreatedAt     – commit timestamp; non-decreasing per gig.
type HistoryEntry struct {
	ID            uint64    // booking_history.id
	EntryID       string    // booking_history.entry_id
	GigID         uint64    // booking_history.gig_id
	UserID        uint64    // booking_history.user_id
	UserRole      string    // booking_history.user_role
	BandRole      *string   // booking_history.band_role (nullable)
	BandRoleIndex *int      // booking_history.band_role_index (nullable)
	Status        string    // booking_history.status
	GigType       string    // booking_history.gig_type
	ActionBy      uint64    // booking_history.action_by
	ActionFor     uint64    // booking_history.action_for
	Notes         *string   // booking_history.notes (nullable)
	Metadata      []byte    // booking_history.metadata (JSON)
	CreatedAt     time.Time // booking_history.created_at
}
