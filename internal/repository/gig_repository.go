package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gighall/crewbook/internal/ledger"
	"github.com/gighall/crewbook/internal/model"
)

// GigRepo provides persistence for gigs and the per-gig aggregate the
// booking operations work on.  Every state-changing operation loads the
// gig row FOR UPDATE inside a transaction: the row lock is the measure
// that serializes concurrent writers to the same gig, so the second
// concurrent booker re-reads the updated ledger and fails capacity
// validation instead of double-booking.
type GigRepo struct {
	db *sql.DB
}

// NewGigRepo returns a new GigRepo bound to the given database.
func NewGigRepo(db *sql.DB) *GigRepo { return &GigRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *GigRepo) DB() *sql.DB { return r.db }

const gigColumns = `id, posted_by, title, description, is_client_band, is_taken, is_pending,
       is_active, booked_by, version, chat_conversation_id, chat_client_role,
       chat_can_send, chat_can_add, chat_can_remove, chat_can_edit, chat_created_at,
       created_at, updated_at`

// Create inserts a gig together with its band roles in one transaction and
// returns the new gig id.  Role positions are assigned from slice order.
func (r *GigRepo) Create(ctx context.Context, g *model.Gig, roles []model.BandRole) (uint64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const ins = `INSERT INTO gigs (posted_by, title, description, is_client_band, is_pending, is_active)
	             VALUES (?, ?, ?, ?, TRUE, TRUE)`
	res, err := tx.ExecContext(ctx, ins, g.PostedBy, g.Title, g.Description, g.IsClientBand)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	gigID := uint64(id)

	if len(roles) > 0 {
		query := `INSERT INTO band_roles (gig_id, position, name, max_slots, max_applicants,
		          is_locked, price_cents, currency, negotiable) VALUES `
		args := make([]interface{}, 0, len(roles)*9)
		for i, role := range roles {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
			maxApplicants := role.MaxApplicants
			if maxApplicants <= 0 {
				maxApplicants = ledger.DefaultMaxApplicants
			}
			args = append(args, gigID, i, role.Name, role.MaxSlots, maxApplicants,
				role.IsLocked, role.PriceCents, role.Currency, role.Negotiable)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return gigID, nil
}

// GetByID returns a gig without locking it.  ErrGigNotFound is returned
// when no row exists.
func (r *GigRepo) GetByID(ctx context.Context, gigID uint64) (*model.Gig, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id = ?`, gigID)
	return scanGig(row)
}

// GetForUpdateTx loads the gig row with FOR UPDATE, blocking until any
// in-flight writer to the same gig commits.  All write paths go through
// this method.
func (r *GigRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, gigID uint64) (*model.Gig, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id = ? FOR UPDATE`, gigID)
	return scanGig(row)
}

// Aggregate bundles everything one booking transaction operates on: the
// locked gig row, its roles in position order, the membership rows, and
// the in-memory ledger built from them.
type Aggregate struct {
	Gig     *model.Gig
	Roles   []model.BandRole
	Members []model.RoleMember
	Ledger  *ledger.Ledger
}

// Role returns the stored role at the given position, or ErrRoleNotFound.
func (a *Aggregate) Role(position int) (*model.BandRole, error) {
	if position < 0 || position >= len(a.Roles) {
		return nil, ErrRoleNotFound
	}
	return &a.Roles[position], nil
}

// MemberStatus returns the stored membership status of a user within a
// role, or "" when no row exists.
func (a *Aggregate) MemberStatus(roleID, userID uint64) string {
	for i := range a.Members {
		if a.Members[i].RoleID == roleID && a.Members[i].UserID == userID {
			return a.Members[i].Status
		}
	}
	return ""
}

// LoadForUpdateTx materializes the full aggregate under the gig row lock.
func (r *GigRepo) LoadForUpdateTx(ctx context.Context, tx *sql.Tx, gigID uint64) (*Aggregate, error) {
	g, err := r.GetForUpdateTx(ctx, tx, gigID)
	if err != nil {
		return nil, err
	}
	roles, err := rolesByGigTx(ctx, tx, gigID)
	if err != nil {
		return nil, err
	}
	members, err := membersByGigTx(ctx, tx, gigID)
	if err != nil {
		return nil, err
	}
	return &Aggregate{Gig: g, Roles: roles, Members: members, Ledger: buildLedger(roles, members)}, nil
}

// Load materializes the aggregate without locking, for read-only paths
// like eligibility checks and gig detail reads.  A read-only transaction
// keeps the three queries on one consistent snapshot.
func (r *GigRepo) Load(ctx context.Context, gigID uint64) (*Aggregate, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	g, err := scanGig(tx.QueryRowContext(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id = ?`, gigID))
	if err != nil {
		return nil, err
	}
	roles, err := rolesByGigTx(ctx, tx, gigID)
	if err != nil {
		return nil, err
	}
	members, err := membersByGigTx(ctx, tx, gigID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &Aggregate{Gig: g, Roles: roles, Members: members, Ledger: buildLedger(roles, members)}, nil
}

// SetStatusTx updates the derived status flags on a gig row.
func (r *GigRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, gigID uint64, isTaken, isPending, isActive bool) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE gigs SET is_taken = ?, is_pending = ?, is_active = ? WHERE id = ?`,
		isTaken, isPending, isActive, gigID)
	return err
}

// SetBookedByTx records a gig-level booking for non-band sources; pass nil
// to clear it.
func (r *GigRepo) SetBookedByTx(ctx context.Context, tx *sql.Tx, gigID uint64, userID *uint64) error {
	_, err := tx.ExecContext(ctx, `UPDATE gigs SET booked_by = ? WHERE id = ?`, userID, gigID)
	return err
}

// SetChatTx stores the conversation reference and governance settings
// produced by crew formation.
func (r *GigRepo) SetChatTx(ctx context.Context, tx *sql.Tx, gigID uint64, chat *model.CrewChat) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE gigs SET chat_conversation_id = ?, chat_client_role = ?, chat_can_send = ?,
		        chat_can_add = ?, chat_can_remove = ?, chat_can_edit = ?, chat_created_at = ?
		 WHERE id = ?`,
		chat.ConversationID, chat.ClientRole, chat.Permissions.CanSendMessages,
		chat.Permissions.CanAddMembers, chat.Permissions.CanRemoveMembers,
		chat.Permissions.CanEditChatInfo, chat.CreatedAt, gigID)
	return err
}

// UpdateChatSettingsTx replaces only the governance settings, leaving the
// conversation reference untouched.
func (r *GigRepo) UpdateChatSettingsTx(ctx context.Context, tx *sql.Tx, gigID uint64, clientRole string, p model.ChatPermissions) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE gigs SET chat_client_role = ?, chat_can_send = ?, chat_can_add = ?,
		        chat_can_remove = ?, chat_can_edit = ? WHERE id = ?`,
		clientRole, p.CanSendMessages, p.CanAddMembers, p.CanRemoveMembers, p.CanEditChatInfo, gigID)
	return err
}

// BumpVersionTx advances the gig's write stamp.  Every committed write
// calls this exactly once, so history metadata can carry the version the
// transition produced.
func (r *GigRepo) BumpVersionTx(ctx context.Context, tx *sql.Tx, gigID uint64) (uint64, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE gigs SET version = version + 1 WHERE id = ?`, gigID); err != nil {
		return 0, err
	}
	var v uint64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM gigs WHERE id = ?`, gigID).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// GigSummary is the browse projection returned by List.
type GigSummary struct {
	ID           uint64 `json:"id"`
	PostedBy     uint64 `json:"posted_by"`
	Title        string `json:"title"`
	IsClientBand bool   `json:"is_client_band"`
	IsTaken      bool   `json:"is_taken"`
	RoleCount    int    `json:"role_count"`
	OpenSlots    int    `json:"open_slots"`
}

// List returns active gigs newest first for public browsing.
func (r *GigRepo) List(ctx context.Context, limit int) ([]GigSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `SELECT g.id, g.posted_by, g.title, g.is_client_band, g.is_taken,
	                  COUNT(br.id), COALESCE(SUM(br.max_slots - br.filled_slots), 0)
	           FROM gigs g
	           LEFT JOIN band_roles br ON br.gig_id = g.id
	           WHERE g.is_active = TRUE
	           GROUP BY g.id
	           ORDER BY g.created_at DESC
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]GigSummary, 0)
	for rows.Next() {
		var s GigSummary
		if err := rows.Scan(&s.ID, &s.PostedBy, &s.Title, &s.IsClientBand, &s.IsTaken, &s.RoleCount, &s.OpenSlots); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListWithChatByUser returns ids and conversation references for every gig
// the user participates in (as owner or booked member) that has a crew
// chat.  Used by the "my crew chats" read.
type ChatRef struct {
	GigID          uint64 `json:"gig_id"`
	Title          string `json:"title"`
	ConversationID string `json:"conversation_id"`
}

func (r *GigRepo) ListWithChatByUser(ctx context.Context, userID uint64) ([]ChatRef, error) {
	const q = `SELECT DISTINCT g.id, g.title, g.chat_conversation_id
	           FROM gigs g
	           LEFT JOIN band_role_members m
	             ON m.gig_id = g.id AND m.user_id = ? AND m.status = 'BOOKED'
	           WHERE g.chat_conversation_id IS NOT NULL
	             AND (g.posted_by = ? OR m.id IS NOT NULL)
	           ORDER BY g.id DESC`
	rows, err := r.db.QueryContext(ctx, q, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ChatRef, 0)
	for rows.Next() {
		var ref ChatRef
		if err := rows.Scan(&ref.GigID, &ref.Title, &ref.ConversationID); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGig(row rowScanner) (*model.Gig, error) {
	var (
		g          model.Gig
		bookedBy   sql.NullInt64
		convID     sql.NullString
		clientRole sql.NullString
		canSend    sql.NullBool
		canAdd     sql.NullBool
		canRemove  sql.NullBool
		canEdit    sql.NullBool
		chatAt     sql.NullTime
	)
	err := row.Scan(&g.ID, &g.PostedBy, &g.Title, &g.Description, &g.IsClientBand,
		&g.IsTaken, &g.IsPending, &g.IsActive, &bookedBy, &g.Version,
		&convID, &clientRole, &canSend, &canAdd, &canRemove, &canEdit, &chatAt,
		&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGigNotFound
		}
		return nil, err
	}
	if bookedBy.Valid {
		id := uint64(bookedBy.Int64)
		g.BookedBy = &id
	}
	if convID.Valid && convID.String != "" {
		chat := &model.CrewChat{
			ConversationID: convID.String,
			ClientRole:     clientRole.String,
			Permissions: model.ChatPermissions{
				CanSendMessages:  canSend.Valid && canSend.Bool,
				CanAddMembers:    canAdd.Valid && canAdd.Bool,
				CanRemoveMembers: canRemove.Valid && canRemove.Bool,
				CanEditChatInfo:  canEdit.Valid && canEdit.Bool,
			},
		}
		if chatAt.Valid {
			chat.CreatedAt = chatAt.Time
		} else {
			chat.CreatedAt = time.Time{}
		}
		g.Chat = chat
	}
	return &g, nil
}

// buildLedger assembles the in-memory ledger from stored rows.  Members
// arrive ordered by insertion id, which preserves both applicant queue
// order and earliest-booked-first ordering.
func buildLedger(roles []model.BandRole, members []model.RoleMember) *ledger.Ledger {
	byRole := make(map[uint64]*ledger.Role, len(roles))
	l := &ledger.Ledger{Roles: make([]ledger.Role, len(roles))}
	for i := range roles {
		role := &roles[i]
		l.Roles[i] = ledger.Role{
			Index:            role.Position,
			Name:             role.Name,
			MaxSlots:         role.MaxSlots,
			FilledSlots:      role.FilledSlots,
			MaxApplicants:    role.MaxApplicants,
			IsLocked:         role.IsLocked,
			PriceCents:       role.PriceCents,
			Currency:         role.Currency,
			Negotiable:       role.Negotiable,
			BookedPriceCents: role.BookedPriceCents,
		}
		byRole[role.ID] = &l.Roles[i]
	}
	for i := range members {
		m := &members[i]
		lr, ok := byRole[m.RoleID]
		if !ok {
			continue
		}
		switch m.Status {
		case model.MemberApplicant:
			lr.Applicants = append(lr.Applicants, m.UserID)
		case model.MemberBooked:
			lr.Booked = append(lr.Booked, m.UserID)
		}
	}
	return l
}
