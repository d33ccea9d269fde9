package services

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/agentplan/apiserver/internal/store"
	"github.com/agentplan/apiserver/types"
)

// ErrInvalidCredentials is returned when an email/password pair does
// not match a credential account. Missing user, OAuth-only user and
// wrong password are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrEmailTaken is returned when registration targets an email that
// already has an account.
var ErrEmailTaken = errors.New("email already registered")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// OAuthAccountRepository defines persistence operations for provider links.
type OAuthAccountRepository interface {
	GetByProviderAccount(ctx context.Context, provider, providerAccountID string) (types.OAuthAccount, error)
	ListByUserID(ctx context.Context, userID string) ([]types.OAuthAccount, error)
	Upsert(ctx context.Context, account types.OAuthAccount) (types.OAuthAccount, error)
	DeleteByUserProvider(ctx context.Context, userID, provider string) error
	DeleteByUserID(ctx context.Context, userID string) error
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo       UserRepository
	accounts   OAuthAccountRepository
	sessions   SessionRepository
	adminEmail string
}

func NewUserService(repo UserRepository, accounts OAuthAccountRepository, sessions SessionRepository, adminEmail string) *UserService {
	return &UserService{
		repo:       repo,
		accounts:   accounts,
		sessions:   sessions,
		adminEmail: adminEmail,
	}
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// Register creates a credential account with a bcrypt-hashed password.
// The configured admin email gets the admin role.
func (s *UserService) Register(ctx context.Context, name, email, password string) (types.User, error) {
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return types.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	role := "user"
	if s.adminEmail != "" && email == s.adminEmail {
		role = "admin"
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}
	return user, nil
}

// Authenticate verifies an email/password pair against a credential
// account and records the login time. Any mismatch returns
// ErrInvalidCredentials without mutating anything.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if !user.HasPassword() {
		return types.User{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return types.User{}, ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		return types.User{}, err
	}
	user.LastLoginAt = &now
	return user, nil
}

// UpdateProfile applies name/email/avatar changes. Empty fields are
// left untouched.
func (s *UserService) UpdateProfile(ctx context.Context, id, name, email, avatar string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	if name != "" {
		user.Name = name
	}
	if email != "" && email != user.Email {
		user.Email = email
		user.EmailVerifiedAt = nil
	}
	if avatar != "" {
		user.Avatar = avatar
	}

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}
	return updated, nil
}

// ChangePassword sets a new password after verifying the current one.
// An OAuth-only account may set its first password without a current
// one.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.HasPassword() {
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
			return ErrInvalidCredentials
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hashed)
	_, err = s.repo.Update(ctx, user)
	return err
}

// ListOAuthAccounts returns the provider links owned by the user.
func (s *UserService) ListOAuthAccounts(ctx context.Context, userID string) ([]types.OAuthAccount, error) {
	return s.accounts.ListByUserID(ctx, userID)
}

// UnlinkOAuthAccount removes one provider link.
func (s *UserService) UnlinkOAuthAccount(ctx context.Context, userID, provider string) error {
	return s.accounts.DeleteByUserProvider(ctx, userID, provider)
}

// DeleteAccount removes the user together with all owned sessions and
// provider links. Ordering matters: owned rows reference the user.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.accounts.DeleteByUserID(ctx, userID); err != nil {
		return err
	}
	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, userID)
}
