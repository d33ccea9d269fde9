package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/agentplan/apiserver/types"
)

// OAuthAccountRepository handles persistence for provider links.
type OAuthAccountRepository struct {
	db *sql.DB
}

func NewOAuthAccountRepository(db *sql.DB) *OAuthAccountRepository {
	return &OAuthAccountRepository{db: db}
}

func (r *OAuthAccountRepository) GetByProviderAccount(ctx context.Context, provider, providerAccountID string) (types.OAuthAccount, error) {
	const query = `
		SELECT id, user_id, provider, provider_account_id, access_token, created_at, updated_at
		FROM oauth_accounts
		WHERE provider = $1 AND provider_account_id = $2`
	var account types.OAuthAccount
	err := r.db.QueryRowContext(ctx, query, provider, providerAccountID).Scan(
		&account.ID,
		&account.UserID,
		&account.Provider,
		&account.ProviderAccountID,
		&account.AccessToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.OAuthAccount{}, ErrNotFound
		}
		return types.OAuthAccount{}, err
	}
	return account, nil
}

func (r *OAuthAccountRepository) ListByUserID(ctx context.Context, userID string) ([]types.OAuthAccount, error) {
	const query = `
		SELECT id, user_id, provider, provider_account_id, access_token, created_at, updated_at
		FROM oauth_accounts
		WHERE user_id = $1
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []types.OAuthAccount
	for rows.Next() {
		var account types.OAuthAccount
		if err := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.Provider,
			&account.ProviderAccountID,
			&account.AccessToken,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// Upsert inserts the link or, when the (provider, provider_account_id)
// pair already exists, updates only the stored access token. The write
// is a single atomic statement; there is no read-modify-write window.
func (r *OAuthAccountRepository) Upsert(ctx context.Context, account types.OAuthAccount) (types.OAuthAccount, error) {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	const query = `
		INSERT INTO oauth_accounts (user_id, provider, provider_account_id, access_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, provider_account_id)
		DO UPDATE SET access_token = EXCLUDED.access_token, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		account.UserID,
		account.Provider,
		account.ProviderAccountID,
		account.AccessToken,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID, &account.CreatedAt); err != nil {
		return types.OAuthAccount{}, translateError(err)
	}
	return account, nil
}

func (r *OAuthAccountRepository) DeleteByUserProvider(ctx context.Context, userID, provider string) error {
	const query = `DELETE FROM oauth_accounts WHERE user_id = $1 AND provider = $2`
	result, err := r.db.ExecContext(ctx, query, userID, provider)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *OAuthAccountRepository) DeleteByUserID(ctx context.Context, userID string) error {
	const query = `DELETE FROM oauth_accounts WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}
