package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/agentplan/apiserver/internal/oauth"
	"github.com/agentplan/apiserver/internal/storage"
	"github.com/agentplan/apiserver/internal/store"
	"github.com/agentplan/apiserver/types"
)

// ErrCredentialConflict is returned when an OAuth sign-in targets an
// email that belongs to a password account. The two must not be merged
// implicitly; the user signs in with the password instead.
var ErrCredentialConflict = errors.New("email registered with password sign-in")

// OAuthService links provider identities to local users. Sign-in via a
// provider resolves to exactly one of three paths: reuse an existing
// link, attach the provider to an OAuth-only account with the same
// email, or create a new user.
type OAuthService struct {
	users      UserRepository
	accounts   OAuthAccountRepository
	avatars    *storage.AvatarStore
	adminEmail string
	logger     *zap.Logger
}

func NewOAuthService(users UserRepository, accounts OAuthAccountRepository, avatars *storage.AvatarStore, adminEmail string, logger *zap.Logger) *OAuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthService{
		users:      users,
		accounts:   accounts,
		avatars:    avatars,
		adminEmail: adminEmail,
		logger:     logger,
	}
}

// HandleCallback resolves a verified provider identity to a local
// user, creating or linking as needed. The returned bool reports
// whether a new user was created. On ErrCredentialConflict nothing is
// written.
func (s *OAuthService) HandleCallback(ctx context.Context, info *oauth.UserInfo) (types.User, bool, error) {
	now := time.Now()

	// Returning visitor: the provider account is already linked.
	if account, err := s.accounts.GetByProviderAccount(ctx, string(info.Provider), info.ProviderAccountID); err == nil {
		user, err := s.users.GetByID(ctx, account.UserID)
		if err != nil {
			return types.User{}, false, err
		}
		// A password set after the link was made turns the account into a
		// credential account; provider sign-in stops resolving to it.
		if user.HasPassword() {
			return types.User{}, false, ErrCredentialConflict
		}
		account.AccessToken = info.AccessToken
		if _, err := s.accounts.Upsert(ctx, account); err != nil {
			return types.User{}, false, err
		}
		if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
			return types.User{}, false, err
		}
		user.LastLoginAt = &now
		return user, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, false, err
	}

	user, err := s.users.GetByEmail(ctx, info.Email)
	switch {
	case err == nil:
		// Same email, existing account. A password account is never
		// merged with a provider identity.
		if user.HasPassword() {
			return types.User{}, false, ErrCredentialConflict
		}
	case errors.Is(err, store.ErrNotFound):
		user, err = s.createFromProvider(ctx, info)
		if err != nil {
			return types.User{}, false, err
		}
		if err := s.link(ctx, user.ID, info); err != nil {
			return types.User{}, false, err
		}
		if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
			return types.User{}, false, err
		}
		user.LastLoginAt = &now
		return user, true, nil
	default:
		return types.User{}, false, err
	}

	// OAuth-only account with the same email: attach this provider.
	if err := s.link(ctx, user.ID, info); err != nil {
		return types.User{}, false, err
	}
	if user.Avatar == "" && info.Avatar != "" {
		user.Avatar = s.mirrorAvatar(ctx, user.ID, info.Avatar)
		if user, err = s.users.Update(ctx, user); err != nil {
			return types.User{}, false, err
		}
	}
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return types.User{}, false, err
	}
	user.LastLoginAt = &now
	return user, false, nil
}

func (s *OAuthService) createFromProvider(ctx context.Context, info *oauth.UserInfo) (types.User, error) {
	role := "user"
	if s.adminEmail != "" && info.Email == s.adminEmail {
		role = "admin"
	}
	now := time.Now()
	user, err := s.users.Create(ctx, types.User{
		Email:           info.Email,
		Name:            info.Name,
		Role:            role,
		EmailVerifiedAt: &now,
	})
	if err != nil {
		return types.User{}, err
	}
	if info.Avatar != "" {
		user.Avatar = s.mirrorAvatar(ctx, user.ID, info.Avatar)
		if user.Avatar != "" {
			if user, err = s.users.Update(ctx, user); err != nil {
				return types.User{}, err
			}
		}
	}
	return user, nil
}

func (s *OAuthService) link(ctx context.Context, userID string, info *oauth.UserInfo) error {
	_, err := s.accounts.Upsert(ctx, types.OAuthAccount{
		UserID:            userID,
		Provider:          string(info.Provider),
		ProviderAccountID: info.ProviderAccountID,
		AccessToken:       info.AccessToken,
	})
	return err
}

// mirrorAvatar copies the provider avatar into our own storage so the
// URL survives provider-side expiry. Failure falls back to the remote
// URL.
func (s *OAuthService) mirrorAvatar(ctx context.Context, userID, remoteURL string) string {
	if s.avatars == nil {
		return remoteURL
	}
	url, err := s.avatars.Mirror(ctx, userID, remoteURL)
	if err != nil {
		s.logger.Warn("avatar mirror failed, keeping remote url",
			zap.String("user_id", userID), zap.Error(err))
		return remoteURL
	}
	return url
}
