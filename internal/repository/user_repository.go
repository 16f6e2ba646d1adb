package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/gighall/crewbook/internal/model"
	"github.com/gighall/crewbook/internal/utils"
)

// UserRepo persists users and serves as the user directory consumed by
// notification text and history fields.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

const userColumns = `id, email, password_hash, role, display_name, avatar_url,
       trust_score, is_active, created_at, updated_at`

// Create inserts a user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, role, displayName string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, display_name) VALUES (?,?,?,?)",
		email, hash, role, displayName)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// Directory returns the minimal projections for a set of user ids.  Ids
// with no matching user are simply absent from the result.
func (r *UserRepo) Directory(ctx context.Context, ids []uint64) (map[uint64]model.DirectoryEntry, error) {
	out := make(map[uint64]model.DirectoryEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	q := "SELECT id, display_name, avatar_url FROM users WHERE id IN (" +
		strings.Join(placeholders, ",") + ")"
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e      model.DirectoryEntry
			avatar sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.DisplayName, &avatar); err != nil {
			return nil, err
		}
		if avatar.Valid {
			a := avatar.String
			e.AvatarURL = &a
		}
		out[e.ID] = e
	}
	return out, rows.Err()
}

// SetTrustScore stores a recomputed trust score.
func (r *UserRepo) SetTrustScore(ctx context.Context, userID uint64, score int) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET trust_score=? WHERE id=?", score, userID)
	return err
}

// IsActive reports whether the user exists and is active; inactive users
// are ineligible for notification delivery.
func (r *UserRepo) IsActive(ctx context.Context, userID uint64) (bool, error) {
	var active bool
	err := r.DB.QueryRowContext(ctx,
		"SELECT is_active FROM users WHERE id=? LIMIT 1", userID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return active, nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u      model.User
		avatar sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.DisplayName,
		&avatar, &u.TrustScore, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if avatar.Valid {
		a := avatar.String
		u.AvatarURL = &a
	}
	return u, nil
}
