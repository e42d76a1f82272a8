package model

import "time"

// Role names carried in the JWT "role" claim and stored in users.role.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User represents an application user record as stored in the
// `users` table.  Each field corresponds to a column in the
// database.  PreferredCategories holds the raw JSON array written by
// the preferences endpoint; the ledger never reads it.
//
// Fields:
//  ID                  – primary key identifier of the user.
//  Email               – unique email address (lower-cased).
//  PasswordHash        – bcrypt hashed password.
//  Role                – USER or ADMIN.
//  PreferredCategories – JSON array of category ids (nullable).
//  CreatedAt           – timestamp of creation.
//  UpdatedAt           – timestamp of last update.
type User struct {
	ID                  uint64    // users.id
	Email               string    // users.email
	PasswordHash        string    // users.password_hash
	Role                string    // users.role
	PreferredCategories *string   // users.preferred_categories (nullable)
	CreatedAt           time.Time // users.created_at
	UpdatedAt           time.Time // users.updated_at
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and contains metadata for expiry
// and revocation.  The plain token is not stored; only its
// SHA‑256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// Actor is the authenticated caller of a ledger operation as resolved by
// the JWT middleware.
type Actor struct {
	UserID uint64
	Role   string
}

// IsAdmin reports whether the actor may manage slots.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
