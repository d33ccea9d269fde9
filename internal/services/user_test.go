package services

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/agentplan/apiserver/types"
)

func newTestUserService(users *fakeUserRepo, accounts *fakeAccountRepo, sessions *fakeSessionRepo) *UserService {
	return NewUserService(users, accounts, sessions, "admin@example.com")
}

func TestRegisterHashesPassword(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestUserService(users, newFakeAccountRepo(), newFakeSessionRepo())

	user, err := svc.Register(context.Background(), "Remco", "x@y.com", "hunter22!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.PasswordHash == "hunter22!" || user.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter22!")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
	if user.Role != "user" {
		t.Errorf("role = %q, want user", user.Role)
	}
}

func TestRegisterAdminEmailGetsAdminRole(t *testing.T) {
	svc := newTestUserService(newFakeUserRepo(), newFakeAccountRepo(), newFakeSessionRepo())

	user, err := svc.Register(context.Background(), "Admin", "admin@example.com", "hunter22!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Role != "admin" {
		t.Errorf("role = %q, want admin", user.Role)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newTestUserService(newFakeUserRepo(), newFakeAccountRepo(), newFakeSessionRepo())

	if _, err := svc.Register(context.Background(), "Remco", "x@y.com", "hunter22!"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := svc.Register(context.Background(), "Other", "x@y.com", "different1")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestAuthenticate(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestUserService(users, newFakeAccountRepo(), newFakeSessionRepo())

	if _, err := svc.Register(context.Background(), "Remco", "x@y.com", "hunter22!"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, err := svc.Authenticate(context.Background(), "x@y.com", "hunter22!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.LastLoginAt == nil {
		t.Error("login must record last_login_at")
	}

	if _, err := svc.Authenticate(context.Background(), "x@y.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody@y.com", "hunter22!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateRejectsOAuthOnlyAccount(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestUserService(users, newFakeAccountRepo(), newFakeSessionRepo())

	if _, err := users.Create(context.Background(), types.User{Email: "x@y.com", Name: "Remco"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	touchesBefore := users.touches

	_, err := svc.Authenticate(context.Background(), "x@y.com", "anything8")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if users.touches != touchesBefore {
		t.Error("failed login must not record a login time")
	}
}

func TestUpdateProfileClearsVerificationOnEmailChange(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestUserService(users, newFakeAccountRepo(), newFakeSessionRepo())

	seeded, err := svc.Register(context.Background(), "Remco", "x@y.com", "hunter22!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	verified := seeded
	now := seeded.CreatedAt
	verified.EmailVerifiedAt = &now
	if _, err := users.Update(context.Background(), verified); err != nil {
		t.Fatalf("seed verification: %v", err)
	}

	updated, err := svc.UpdateProfile(context.Background(), seeded.ID, "", "new@y.com", "")
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Email != "new@y.com" {
		t.Errorf("email = %q", updated.Email)
	}
	if updated.EmailVerifiedAt != nil {
		t.Error("changing email must clear verification")
	}
	if updated.Name != "Remco" {
		t.Error("empty name must leave the stored name untouched")
	}
}

func TestChangePasswordRequiresCurrent(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestUserService(users, newFakeAccountRepo(), newFakeSessionRepo())

	user, err := svc.Register(context.Background(), "Remco", "x@y.com", "hunter22!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.ChangePassword(context.Background(), user.ID, "wrong-pass", "next-pass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if err := svc.ChangePassword(context.Background(), user.ID, "hunter22!", "next-pass1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "x@y.com", "next-pass1"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestChangePasswordAllowsFirstPasswordWithoutCurrent(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestUserService(users, newFakeAccountRepo(), newFakeSessionRepo())

	user, err := users.Create(context.Background(), types.User{Email: "x@y.com", Name: "Remco"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := svc.ChangePassword(context.Background(), user.ID, "", "first-pass1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "x@y.com", "first-pass1"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestDeleteAccountRemovesOwnedRows(t *testing.T) {
	users := newFakeUserRepo()
	accounts := newFakeAccountRepo()
	sessions := newFakeSessionRepo()
	svc := newTestUserService(users, accounts, sessions)

	user, err := svc.Register(context.Background(), "Remco", "x@y.com", "hunter22!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := accounts.Upsert(context.Background(), types.OAuthAccount{
		UserID: user.ID, Provider: "github", ProviderAccountID: "12345",
	}); err != nil {
		t.Fatalf("seed link: %v", err)
	}
	if _, err := sessions.Create(context.Background(), types.Session{UserID: user.ID, TokenID: "jti-1"}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	if err := svc.DeleteAccount(context.Background(), user.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if len(users.users) != 0 {
		t.Error("user row should be gone")
	}
	if len(accounts.accounts) != 0 {
		t.Error("provider links should be gone")
	}
	if len(sessions.sessions) != 0 {
		t.Error("sessions should be gone")
	}
}
