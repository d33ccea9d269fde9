package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/agentplan/apiserver/types"
)

// SessionRepository handles persistence for login sessions.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	const query = `
		INSERT INTO sessions (user_id, token_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		session.UserID,
		session.TokenID,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	).Scan(&session.ID); err != nil {
		return types.Session{}, translateError(err)
	}
	return session, nil
}

func (r *SessionRepository) GetByTokenID(ctx context.Context, tokenID string) (types.Session, error) {
	const query = `
		SELECT id, user_id, token_id, expires_at, created_at, updated_at
		FROM sessions
		WHERE token_id = $1`
	var session types.Session
	err := r.db.QueryRowContext(ctx, query, tokenID).Scan(
		&session.ID,
		&session.UserID,
		&session.TokenID,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, err
	}
	return session, nil
}

// DeleteByTokenID removes the session issued with the given jti.
// Deleting an already-absent session is not an error: logout must be
// idempotent.
func (r *SessionRepository) DeleteByTokenID(ctx context.Context, tokenID string) error {
	const query = `DELETE FROM sessions WHERE token_id = $1`
	_, err := r.db.ExecContext(ctx, query, tokenID)
	return err
}

func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	const query = `DELETE FROM sessions WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// DeleteExpired prunes sessions whose expiry predates now and returns
// the number of rows removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
