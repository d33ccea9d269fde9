package types

import "time"

// User represents an account in the system.
// A user with a non-empty PasswordHash is a credential account; a user
// created through an OAuth callback carries no password hash.
type User struct {
	// ID is the unique identifier of the user, a UUID string.
	ID string `json:"id" db:"id"`

	// Email is the user's email address. Unique across all users.
	Email string `json:"email" db:"email"`

	// Name is the user's display name, if provided.
	Name string `json:"name,omitempty" db:"name"`

	// Avatar is a URL to the user's avatar image, if any.
	Avatar string `json:"avatar,omitempty" db:"avatar"`

	// Role indicates the user's authorization level within the system
	// (e.g., "admin", "user").
	Role string `json:"role" db:"role"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// Empty for OAuth-only accounts. Never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// EmailVerifiedAt is the time the email address was verified.
	// Set at creation for OAuth signups, since the provider has already
	// verified the address.
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty" db:"email_verified_at"`

	// LastLoginAt is the time of the most recent successful login.
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasPassword reports whether the user can authenticate with credentials.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}
