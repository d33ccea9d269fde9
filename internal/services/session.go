package services

import (
	"context"
	"time"

	"github.com/agentplan/apiserver/internal/token"
	"github.com/agentplan/apiserver/types"
)

// SessionRepository defines persistence operations for sessions.
type SessionRepository interface {
	Create(ctx context.Context, session types.Session) (types.Session, error)
	GetByTokenID(ctx context.Context, tokenID string) (types.Session, error)
	DeleteByTokenID(ctx context.Context, tokenID string) error
	DeleteByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionService issues and revokes signed session tokens. Each token
// carries a unique jti that maps to a persisted session row, so logout
// can revoke server-side state while request authentication stays a
// pure signature check.
type SessionService struct {
	repo   SessionRepository
	signer *token.Signer
	ttl    time.Duration
}

func NewSessionService(repo SessionRepository, signer *token.Signer, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = token.DefaultTTL
	}
	return &SessionService{repo: repo, signer: signer, ttl: ttl}
}

// TTL reports the session lifetime, used for cookie Max-Age.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a fresh token for the user and records the session row.
func (s *SessionService) Issue(ctx context.Context, user types.User) (string, error) {
	raw, tokenID, err := s.signer.Sign(user.ID, user.Email, user.Name)
	if err != nil {
		return "", err
	}
	_, err = s.repo.Create(ctx, types.Session{
		UserID:    user.ID,
		TokenID:   tokenID,
		ExpiresAt: time.Now().Add(s.ttl),
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

// Identity validates a raw token and returns its claims. The database
// is not consulted here; revocation takes effect by rotating the
// cookie on logout.
func (s *SessionService) Identity(raw string) (*token.Claims, error) {
	return s.signer.Verify(raw)
}

// Revoke deletes the persisted session behind a raw token. Invalid or
// already-revoked tokens are not an error so that logout stays
// idempotent.
func (s *SessionService) Revoke(ctx context.Context, raw string) error {
	claims, err := s.signer.Verify(raw)
	if err != nil {
		return nil
	}
	return s.repo.DeleteByTokenID(ctx, claims.ID)
}

// RevokeAllForUser removes every session owned by the user.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.repo.DeleteByUserID(ctx, userID)
}

// PurgeExpired removes sessions past their expiry and reports how many
// rows went away.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, time.Now())
}
