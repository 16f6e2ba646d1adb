package repository

import (
	"context"
	"database/sql"

	"github.com/gighall/crewbook/internal/model"
)

// ShortlistRepo persists the client-side triage list and the generic
// interest pool.  Shortlisting and generic interest are mutually
// exclusive: adding to the shortlist removes any interest row.  Neither
// list interacts with role capacity.
type ShortlistRepo struct {
	db *sql.DB
}

// NewShortlistRepo returns a new ShortlistRepo bound to the given database.
func NewShortlistRepo(db *sql.DB) *ShortlistRepo { return &ShortlistRepo{db: db} }

// UpsertTx adds or refreshes a shortlist entry keyed by (gig, user).  The
// operation is idempotent: repeating it updates notes and role position
// and reports whether a new row was created.
func (r *ShortlistRepo) UpsertTx(ctx context.Context, tx *sql.Tx, gigID, userID uint64, rolePosition *int, notes *string) (bool, error) {
	const q = `INSERT INTO gig_shortlist (gig_id, user_id, role_position, notes)
	           VALUES (?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE role_position = VALUES(role_position), notes = VALUES(notes)`
	res, err := tx.ExecContext(ctx, q, gigID, userID, rolePosition, notes)
	if err != nil {
		return false, err
	}
	// MySQL reports 1 affected row for an insert, 2 for a duplicate-key
	// update.
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteTx removes a shortlist entry, reporting whether one existed.
func (r *ShortlistRepo) DeleteTx(ctx context.Context, tx *sql.Tx, gigID, userID uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM gig_shortlist WHERE gig_id = ? AND user_id = ?`, gigID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByGig returns the gig's shortlist in insertion order.
func (r *ShortlistRepo) ListByGig(ctx context.Context, gigID uint64) ([]model.ShortlistEntry, error) {
	const q = `SELECT id, gig_id, user_id, role_position, notes, created_at
	           FROM gig_shortlist WHERE gig_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, gigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ShortlistEntry, 0)
	for rows.Next() {
		var (
			e       model.ShortlistEntry
			rolePos sql.NullInt64
			notes   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.GigID, &e.UserID, &rolePos, &notes, &e.ShortlistedAt); err != nil {
			return nil, err
		}
		if rolePos.Valid {
			p := int(rolePos.Int64)
			e.RolePosition = &p
		}
		if notes.Valid {
			n := notes.String
			e.Notes = &n
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddInterest records a musician's generic interest in a gig, outside any
// specific role.  Duplicate interest is ignored.
func (r *ShortlistRepo) AddInterest(ctx context.Context, gigID, userID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO gig_interests (gig_id, user_id) VALUES (?, ?)`, gigID, userID)
	return err
}

// RemoveInterestTx drops the user from the generic interest pool; called
// when the user moves onto the shortlist.
func (r *ShortlistRepo) RemoveInterestTx(ctx context.Context, tx *sql.Tx, gigID, userID uint64) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM gig_interests WHERE gig_id = ? AND user_id = ?`, gigID, userID)
	return err
}
