package services

import (
	"context"
	"fmt"
	"time"

	"github.com/agentplan/apiserver/internal/store"
	"github.com/agentplan/apiserver/types"
)

type fakeUserRepo struct {
	users   map[string]types.User
	nextID  int
	creates int
	updates int
	touches int
	deletes int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]types.User{}}
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	for _, u := range f.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	f.nextID++
	f.creates++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	if _, ok := f.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	f.updates++
	user.UpdatedAt = time.Now()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	f.touches++
	u.LastLoginAt = &at
	f.users[id] = u
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.users[id]; !ok {
		return store.ErrNotFound
	}
	f.deletes++
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) writes() int {
	return f.creates + f.updates + f.touches + f.deletes
}

type fakeAccountRepo struct {
	accounts map[string]types.OAuthAccount
	nextID   int
	upserts  int
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[string]types.OAuthAccount{}}
}

func accountKey(provider, providerAccountID string) string {
	return provider + "/" + providerAccountID
}

func (f *fakeAccountRepo) GetByProviderAccount(_ context.Context, provider, providerAccountID string) (types.OAuthAccount, error) {
	if a, ok := f.accounts[accountKey(provider, providerAccountID)]; ok {
		return a, nil
	}
	return types.OAuthAccount{}, store.ErrNotFound
}

func (f *fakeAccountRepo) ListByUserID(_ context.Context, userID string) ([]types.OAuthAccount, error) {
	var out []types.OAuthAccount
	for _, a := range f.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) Upsert(_ context.Context, account types.OAuthAccount) (types.OAuthAccount, error) {
	f.upserts++
	key := accountKey(account.Provider, account.ProviderAccountID)
	if existing, ok := f.accounts[key]; ok {
		existing.AccessToken = account.AccessToken
		existing.UpdatedAt = time.Now()
		f.accounts[key] = existing
		return existing, nil
	}
	f.nextID++
	account.ID = fmt.Sprintf("acct-%d", f.nextID)
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	f.accounts[key] = account
	return account, nil
}

func (f *fakeAccountRepo) DeleteByUserProvider(_ context.Context, userID, provider string) error {
	for key, a := range f.accounts {
		if a.UserID == userID && a.Provider == provider {
			delete(f.accounts, key)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeAccountRepo) DeleteByUserID(_ context.Context, userID string) error {
	for key, a := range f.accounts {
		if a.UserID == userID {
			delete(f.accounts, key)
		}
	}
	return nil
}

type fakeSessionRepo struct {
	sessions map[string]types.Session
	nextID   int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]types.Session{}}
}

func (f *fakeSessionRepo) Create(_ context.Context, session types.Session) (types.Session, error) {
	f.nextID++
	session.ID = fmt.Sprintf("sess-%d", f.nextID)
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	f.sessions[session.TokenID] = session
	return session, nil
}

func (f *fakeSessionRepo) GetByTokenID(_ context.Context, tokenID string) (types.Session, error) {
	if s, ok := f.sessions[tokenID]; ok {
		return s, nil
	}
	return types.Session{}, store.ErrNotFound
}

func (f *fakeSessionRepo) DeleteByTokenID(_ context.Context, tokenID string) error {
	delete(f.sessions, tokenID)
	return nil
}

func (f *fakeSessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	for key, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, key)
		}
	}
	return nil
}

func (f *fakeSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for key, s := range f.sessions {
		if s.ExpiresAt.Before(now) {
			delete(f.sessions, key)
			n++
		}
	}
	return n, nil
}
