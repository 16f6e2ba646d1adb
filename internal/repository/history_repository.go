package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gighall/crewbook/internal/model"
)

// HistoryRepo is the audit trail boundary.  It exposes a single append
// operation and reads; no update or delete statement exists for
// booking_history anywhere in the codebase.  Corrections are modeled as
// new entries.
type HistoryRepo struct {
	db *sql.DB
}

// NewHistoryRepo returns a new HistoryRepo bound to the given database.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

// NewEntryID builds the composite audit key. Two operations on the same
// millisecond can collide; the key is stored under a plain index and is
// never used for idempotency.
func NewEntryID(gigID uint64, roleIndex int, userID uint64, t time.Time) string {
	return fmt.Sprintf("%d_%d_%d_%d", gigID, roleIndex, userID, t.UnixMilli())
}

// AppendTx validates and appends one history entry within the caller's
// transaction.  The status must belong to the closed enum; anything else
// is rejected before touching the database.
func (r *HistoryRepo) AppendTx(ctx context.Context, tx *sql.Tx, e *model.HistoryEntry) error {
	if !model.ValidHistoryStatus(e.Status) {
		return fmt.Errorf("%w: unknown history status %q", ErrConflict, e.Status)
	}
	if e.GigType != model.GigTypeRegular && e.GigType != model.GigTypeBand {
		return fmt.Errorf("%w: unknown gig type %q", ErrConflict, e.GigType)
	}
	metadata := e.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	const q = `INSERT INTO booking_history
	           (entry_id, gig_id, user_id, user_role, band_role, band_role_index,
	            status, gig_type, action_by, action_for, notes, metadata)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, e.EntryID, e.GigID, e.UserID, e.UserRole,
		e.BandRole, e.BandRoleIndex, e.Status, e.GigType, e.ActionBy, e.ActionFor,
		e.Notes, metadata)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// Metadata marshals transition details into the JSON blob stored with an
// entry.  A marshal failure falls back to an empty object rather than
// failing the transaction over audit decoration.
func Metadata(fields map[string]interface{}) []byte {
	b, err := json.Marshal(fields)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// HistoryView is the read projection of one audit entry.
type HistoryView struct {
	EntryID       string          `json:"entry_id"`
	UserID        uint64          `json:"user_id"`
	UserRole      string          `json:"user_role"`
	BandRole      *string         `json:"band_role,omitempty"`
	BandRoleIndex *int            `json:"band_role_index,omitempty"`
	Status        string          `json:"status"`
	GigType       string          `json:"gig_type"`
	ActionBy      uint64          `json:"action_by"`
	ActionFor     uint64          `json:"action_for"`
	Notes         *string         `json:"notes,omitempty"`
	Metadata      json.RawMessage `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ListByGig returns a gig's audit trail, oldest first, capped at limit.
func (r *HistoryRepo) ListByGig(ctx context.Context, gigID uint64, limit int) ([]HistoryView, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	const q = `SELECT entry_id, user_id, user_role, band_role, band_role_index,
	                  status, gig_type, action_by, action_for, notes, metadata, created_at
	           FROM booking_history WHERE gig_id = ? ORDER BY id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, gigID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]HistoryView, 0)
	for rows.Next() {
		var (
			v        HistoryView
			bandRole sql.NullString
			roleIdx  sql.NullInt64
			notes    sql.NullString
		)
		if err := rows.Scan(&v.EntryID, &v.UserID, &v.UserRole, &bandRole, &roleIdx,
			&v.Status, &v.GigType, &v.ActionBy, &v.ActionFor, &notes, &v.Metadata, &v.CreatedAt); err != nil {
			return nil, err
		}
		if bandRole.Valid {
			s := bandRole.String
			v.BandRole = &s
		}
		if roleIdx.Valid {
			n := int(roleIdx.Int64)
			v.BandRoleIndex = &n
		}
		if notes.Valid {
			s := notes.String
			v.Notes = &s
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// TrustAggregate counts booking outcomes for one user across all gigs.
// The trust consumer turns these into a score.
type TrustAggregate struct {
	Booked    int
	Confirmed int
	Cancelled int
	Completed int
}

// AggregateForUser tallies history statuses where the user is the subject.
func (r *HistoryRepo) AggregateForUser(ctx context.Context, userID uint64) (TrustAggregate, error) {
	const q = `SELECT status, COUNT(*) FROM booking_history
	           WHERE action_for = ? GROUP BY status`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return TrustAggregate{}, err
	}
	defer rows.Close()
	var agg TrustAggregate
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return TrustAggregate{}, err
		}
		switch status {
		case model.HistoryBooked:
			agg.Booked = n
		case model.HistoryConfirmed:
			agg.Confirmed = n
		case model.HistoryCancelled:
			agg.Cancelled = n
		case model.HistoryCompleted:
			agg.Completed = n
		}
	}
	return agg, rows.Err()
}
