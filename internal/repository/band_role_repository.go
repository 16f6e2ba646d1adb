package repository

import (
	"context"
	"database/sql"

	"github.com/gighall/crewbook/internal/model"
)

// BandRoleRepo encapsulates database operations for band_roles and
// band_role_members.  Membership rows are the storage form of the ledger's
// applicant and booked lists; their insertion order is the ordering the
// ledger relies on, so rows are always read ORDER BY id.
type BandRoleRepo struct {
	db *sql.DB
}

// NewBandRoleRepo constructs a BandRoleRepo given a DB handle.
func NewBandRoleRepo(db *sql.DB) *BandRoleRepo { return &BandRoleRepo{db: db} }

func rolesByGigTx(ctx context.Context, tx *sql.Tx, gigID uint64) ([]model.BandRole, error) {
	const q = `SELECT id, gig_id, position, name, max_slots, filled_slots, max_applicants,
	                  is_locked, price_cents, currency, negotiable, booked_price_cents,
	                  created_at, updated_at
	           FROM band_roles WHERE gig_id = ? ORDER BY position`
	rows, err := tx.QueryContext(ctx, q, gigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roles := make([]model.BandRole, 0)
	for rows.Next() {
		var (
			role   model.BandRole
			booked sql.NullInt64
		)
		if err := rows.Scan(&role.ID, &role.GigID, &role.Position, &role.Name,
			&role.MaxSlots, &role.FilledSlots, &role.MaxApplicants, &role.IsLocked,
			&role.PriceCents, &role.Currency, &role.Negotiable, &booked,
			&role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if booked.Valid {
			v := uint32(booked.Int64)
			role.BookedPriceCents = &v
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func membersByGigTx(ctx context.Context, tx *sql.Tx, gigID uint64) ([]model.RoleMember, error) {
	const q = `SELECT id, gig_id, role_id, user_id, status, notes, created_at
	           FROM band_role_members WHERE gig_id = ? ORDER BY id`
	rows, err := tx.QueryContext(ctx, q, gigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	members := make([]model.RoleMember, 0)
	for rows.Next() {
		var (
			m     model.RoleMember
			notes sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.GigID, &m.RoleID, &m.UserID, &m.Status, &notes, &m.CreatedAt); err != nil {
			return nil, err
		}
		if notes.Valid {
			n := notes.String
			m.Notes = &n
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// InsertMemberTx adds one membership row (applicant or direct booking).
func (r *BandRoleRepo) InsertMemberTx(ctx context.Context, tx *sql.Tx, gigID, roleID, userID uint64, status string, notes *string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO band_role_members (gig_id, role_id, user_id, status, notes) VALUES (?, ?, ?, ?, ?)`,
		gigID, roleID, userID, status, notes)
	return err
}

// DeleteMemberTx removes a user's membership row for a role regardless of
// status.  Deleting a missing row is not an error; the ledger has already
// validated the association.
func (r *BandRoleRepo) DeleteMemberTx(ctx context.Context, tx *sql.Tx, roleID, userID uint64) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM band_role_members WHERE role_id = ? AND user_id = ?`, roleID, userID)
	return err
}

// PromoteMemberTx flips an applicant row to BOOKED.  The row is deleted
// and re-inserted so the booking keeps insertion order among BOOKED rows,
// which is what earliest-booked eviction reads.
func (r *BandRoleRepo) PromoteMemberTx(ctx context.Context, tx *sql.Tx, gigID, roleID, userID uint64) error {
	if err := r.DeleteMemberTx(ctx, tx, roleID, userID); err != nil {
		return err
	}
	return r.InsertMemberTx(ctx, tx, gigID, roleID, userID, model.MemberBooked, nil)
}

// DemoteMemberTx moves a booked member back into the applicant queue,
// appended at the tail.
func (r *BandRoleRepo) DemoteMemberTx(ctx context.Context, tx *sql.Tx, gigID, roleID, userID uint64) error {
	if err := r.DeleteMemberTx(ctx, tx, roleID, userID); err != nil {
		return err
	}
	return r.InsertMemberTx(ctx, tx, gigID, roleID, userID, model.MemberApplicant, nil)
}

// SaveCountersTx persists the capacity counter and agreed price the ledger
// computed for one role.
func (r *BandRoleRepo) SaveCountersTx(ctx context.Context, tx *sql.Tx, roleID uint64, filledSlots int, bookedPriceCents *uint32) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE band_roles SET filled_slots = ?, booked_price_cents = ? WHERE id = ?`,
		filledSlots, bookedPriceCents, roleID)
	return err
}

// RoleEdit carries the owner-editable fields of a band role.  Nil fields
// are left unchanged.
type RoleEdit struct {
	Name          *string
	MaxSlots      *int
	MaxApplicants *int
	IsLocked      *bool
	PriceCents    *uint32
	Currency      *string
	Negotiable    *bool
}

// UpdateRoleTx applies an owner edit to a role row.  Callers enforce the
// sealed-ledger rule before invoking it.
func (r *BandRoleRepo) UpdateRoleTx(ctx context.Context, tx *sql.Tx, roleID uint64, e RoleEdit) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE band_roles SET
		   name = COALESCE(?, name),
		   max_slots = COALESCE(?, max_slots),
		   max_applicants = COALESCE(?, max_applicants),
		   is_locked = COALESCE(?, is_locked),
		   price_cents = COALESCE(?, price_cents),
		   currency = COALESCE(?, currency),
		   negotiable = COALESCE(?, negotiable)
		 WHERE id = ?`,
		e.Name, e.MaxSlots, e.MaxApplicants, e.IsLocked, e.PriceCents, e.Currency, e.Negotiable, roleID)
	return err
}

// RoleView is the public projection of a role with its membership lists.
type RoleView struct {
	Position         int      `json:"position"`
	Name             string   `json:"name"`
	MaxSlots         int      `json:"max_slots"`
	FilledSlots      int      `json:"filled_slots"`
	MaxApplicants    int      `json:"max_applicants"`
	IsLocked         bool     `json:"is_locked"`
	PriceCents       uint32   `json:"price_cents"`
	Currency         string   `json:"currency"`
	Negotiable       bool     `json:"negotiable"`
	BookedPriceCents *uint32  `json:"booked_price_cents,omitempty"`
	Applicants       []uint64 `json:"applicants"`
	BookedUsers      []uint64 `json:"booked_users"`
}

// ViewsByGig loads the role projections for read endpoints, outside any
// transaction.
func (r *BandRoleRepo) ViewsByGig(ctx context.Context, gigID uint64) ([]RoleView, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	roles, err := rolesByGigTx(ctx, tx, gigID)
	if err != nil {
		return nil, err
	}
	members, err := membersByGigTx(ctx, tx, gigID)
	if err != nil {
		return nil, err
	}
	views := make([]RoleView, len(roles))
	byRole := make(map[uint64]int, len(roles))
	for i, role := range roles {
		views[i] = RoleView{
			Position:         role.Position,
			Name:             role.Name,
			MaxSlots:         role.MaxSlots,
			FilledSlots:      role.FilledSlots,
			MaxApplicants:    role.MaxApplicants,
			IsLocked:         role.IsLocked,
			PriceCents:       role.PriceCents,
			Currency:         role.Currency,
			Negotiable:       role.Negotiable,
			BookedPriceCents: role.BookedPriceCents,
			Applicants:       []uint64{},
			BookedUsers:      []uint64{},
		}
		byRole[role.ID] = i
	}
	for _, m := range members {
		idx, ok := byRole[m.RoleID]
		if !ok {
			continue
		}
		switch m.Status {
		case model.MemberApplicant:
			views[idx].Applicants = append(views[idx].Applicants, m.UserID)
		case model.MemberBooked:
			views[idx].BookedUsers = append(views[idx].BookedUsers, m.UserID)
		}
	}
	return views, nil
}
