package model

import "time"

// Directory role values stored on users rows and in JWT claims.
const (
	RoleClient   = "CLIENT"
	RoleMusician = "MUSICIAN"
)

// User represents an application user record as stored in the `users`
// table.  Json tags are omitted because these structs are used internally
// by the repository layer; handlers define separate response types.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – directory role (CLIENT or MUSICIAN).
//  DisplayName  – public name used in notifications and history.
//  AvatarURL    – optional avatar location (nullable).
//  TrustScore   – recomputed best-effort after booking events.
//  IsActive     – whether the account is active; inactive users are
//                 ineligible for notification delivery.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	DisplayName  string    // users.display_name
	AvatarURL    *string   // users.avatar_url (nullable)
	TrustScore   int       // users.trust_score
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// DirectoryEntry is the minimal user projection consumed when building
// notification text and history fields.
type DirectoryEntry struct {
	ID          uint64  `json:"id"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user; only the SHA-256 hash of the plain
// token is stored.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA-256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
