package types

import "time"

// Session is a server-side record of an active login. A signed JWT
// mirroring the session's claims is handed to the client as a cookie;
// the row is deleted again on logout and on account deletion.
type Session struct {
	// ID is the unique identifier of the session, a UUID string.
	ID string `json:"id" db:"id"`

	// UserID identifies the user this session belongs to.
	UserID string `json:"user_id" db:"user_id"`

	// TokenID is the jti claim of the JWT issued for this session.
	// Used to locate the row when the token is presented on logout.
	TokenID string `json:"token_id" db:"token_id"`

	// ExpiresAt is the time after which the session is no longer valid.
	// Matches the exp claim of the issued token.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// CreatedAt is the timestamp when the session was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the session.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
