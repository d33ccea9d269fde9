package types

import "time"

// OAuthAccount links one external OAuth identity to one user.
// The (Provider, ProviderAccountID) pair is unique; a user may own one
// account row per provider.
type OAuthAccount struct {
	// ID is the unique identifier of the link, a UUID string.
	ID string `json:"id" db:"id"`

	// UserID identifies the owning user.
	UserID string `json:"user_id" db:"user_id"`

	// Provider is the name of the OAuth provider
	// ("github", "google" or "discord").
	Provider string `json:"provider" db:"provider"`

	// ProviderAccountID is the user's identifier on the provider side.
	ProviderAccountID string `json:"provider_account_id" db:"provider_account_id"`

	// AccessToken is the bearer token last obtained from the provider.
	// Stored opaque; it is not re-validated. Never exposed in API responses.
	AccessToken string `json:"-" db:"access_token"`

	// CreatedAt is the timestamp when the link was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent token refresh.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
