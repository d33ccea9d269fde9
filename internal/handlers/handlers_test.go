package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentplan/apiserver/internal/services"
	"github.com/agentplan/apiserver/internal/store"
	"github.com/agentplan/apiserver/internal/token"
	"github.com/agentplan/apiserver/types"
)

type memUserRepo struct {
	users  map[string]types.User
	nextID int
}

func (m *memUserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	m.users[user.ID] = user
	return user, nil
}

func (m *memUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	if _, ok := m.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memUserRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastLoginAt = &at
	m.users[id] = u
	return nil
}

func (m *memUserRepo) Delete(_ context.Context, id string) error {
	delete(m.users, id)
	return nil
}

type memSessionRepo struct {
	sessions map[string]types.Session
}

func (m *memSessionRepo) Create(_ context.Context, s types.Session) (types.Session, error) {
	s.ID = "sess-" + s.TokenID
	m.sessions[s.TokenID] = s
	return s, nil
}

func (m *memSessionRepo) GetByTokenID(_ context.Context, tokenID string) (types.Session, error) {
	if s, ok := m.sessions[tokenID]; ok {
		return s, nil
	}
	return types.Session{}, store.ErrNotFound
}

func (m *memSessionRepo) DeleteByTokenID(_ context.Context, tokenID string) error {
	delete(m.sessions, tokenID)
	return nil
}

func (m *memSessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	for key, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, key)
		}
	}
	return nil
}

func (m *memSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type memAccountRepo struct {
	accounts map[string]types.OAuthAccount
}

func (m *memAccountRepo) GetByProviderAccount(_ context.Context, provider, providerAccountID string) (types.OAuthAccount, error) {
	if a, ok := m.accounts[provider+"/"+providerAccountID]; ok {
		return a, nil
	}
	return types.OAuthAccount{}, store.ErrNotFound
}

func (m *memAccountRepo) ListByUserID(_ context.Context, userID string) ([]types.OAuthAccount, error) {
	var out []types.OAuthAccount
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAccountRepo) Upsert(_ context.Context, a types.OAuthAccount) (types.OAuthAccount, error) {
	m.accounts[a.Provider+"/"+a.ProviderAccountID] = a
	return a, nil
}

func (m *memAccountRepo) DeleteByUserProvider(_ context.Context, userID, provider string) error {
	for key, a := range m.accounts {
		if a.UserID == userID && a.Provider == provider {
			delete(m.accounts, key)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memAccountRepo) DeleteByUserID(_ context.Context, userID string) error {
	for key, a := range m.accounts {
		if a.UserID == userID {
			delete(m.accounts, key)
		}
	}
	return nil
}

type testEnv struct {
	server   *httptest.Server
	client   *http.Client
	users    *memUserRepo
	sessions *memSessionRepo
	accounts *memAccountRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := &memUserRepo{users: map[string]types.User{}}
	sessions := &memSessionRepo{sessions: map[string]types.Session{}}
	accounts := &memAccountRepo{accounts: map[string]types.OAuthAccount{}}

	signer, err := token.NewSigner("handler-test-secret", token.DefaultTTL)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	sessionSvc := services.NewSessionService(sessions, signer, token.DefaultTTL)
	userSvc := services.NewUserService(users, accounts, sessions, "admin@example.com")

	handler := NewAuthHandler(userSvc, sessionSvc, nil, nil, false, nil)
	router := chi.NewRouter()
	router.Route("/api/auth", func(r chi.Router) {
		AuthRouter(r, handler, nil)
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	client := server.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &testEnv{server: server, client: client, users: users, sessions: sessions, accounts: accounts}
}

func (e *testEnv) post(t *testing.T, path, body string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, path, body, cookies...)
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func typesOAuthAccount(userID, provider, providerAccountID string) types.OAuthAccount {
	return types.OAuthAccount{
		ID:                "acct-" + providerAccountID,
		UserID:            userID,
		Provider:          provider,
		ProviderAccountID: providerAccountID,
	}
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			return cookie
		}
	}
	t.Fatal("no session cookie set")
	return nil
}
