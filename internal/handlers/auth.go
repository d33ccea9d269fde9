package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agentplan/apiserver/internal/metrics"
	"github.com/agentplan/apiserver/internal/mq"
	"github.com/agentplan/apiserver/internal/services"
	"github.com/agentplan/apiserver/internal/storage"
	"github.com/agentplan/apiserver/internal/store"
	"github.com/agentplan/apiserver/types"
)

const minPasswordLen = 8
const minNameLen = 2

// AuthHandler provides credential login, registration and account
// management over cookie sessions.
type AuthHandler struct {
	users        *services.UserService
	sessions     *services.SessionService
	events       *mq.EventPublisher
	avatars      *storage.AvatarStore
	cookieSecure bool
	logger       *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users *services.UserService, sessions *services.SessionService, events *mq.EventPublisher, avatars *storage.AvatarStore, cookieSecure bool, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		users:        users,
		sessions:     sessions,
		events:       events,
		avatars:      avatars,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

// AuthRouter registers auth routes on the given router. limit wraps
// the credential endpoints with rate limiting.
func AuthRouter(r chi.Router, handler *AuthHandler, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r.With(limit).Post("/register", handler.Register)
	r.With(limit).Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)

	r.Group(func(r chi.Router) {
		r.Use(handler.RequireAuth)
		r.Get("/me", handler.Me)
		r.Patch("/profile", handler.UpdateProfile)
		r.Post("/avatar", handler.UploadAvatar)
		r.Delete("/account", handler.DeleteAccount)
		r.Get("/accounts", handler.ListAccounts)
		r.Delete("/accounts/{provider}", handler.UnlinkAccount)
	})
}

// RequireAuth verifies the session cookie and injects the subject into
// context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := sessionTokenFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := h.sessions.Identity(raw)
		if err != nil {
			clearSessionCookie(w, h.cookieSecure)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := contextWithSubject(r.Context(), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Register creates a credential account and signs the user in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if message, ok := validateRegistration(req); !ok {
		writeError(w, http.StatusBadRequest, message)
		return
	}

	user, err := h.users.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("registration failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	token, err := h.sessions.Issue(r.Context(), user)
	if err != nil {
		h.logger.Error("session issue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	setSessionCookie(w, token, h.sessions.TTL(), h.cookieSecure)

	h.events.UserRegistered(r.Context(), user.ID, user.Email)
	metrics.LoginsTotal.WithLabelValues("register", "success").Inc()

	writeJSON(w, http.StatusCreated, AuthResponse{
		Success:  true,
		Message:  "account created",
		Redirect: "/dashboard",
		User:     &user,
	})
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			metrics.LoginsTotal.WithLabelValues("password", "failure").Inc()
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := h.sessions.Issue(r.Context(), user)
	if err != nil {
		h.logger.Error("session issue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	setSessionCookie(w, token, h.sessions.TTL(), h.cookieSecure)

	h.events.UserLoggedIn(r.Context(), user.ID, user.Email, "")
	metrics.LoginsTotal.WithLabelValues("password", "success").Inc()

	writeJSON(w, http.StatusOK, AuthResponse{
		Success:  true,
		Message:  "signed in",
		Redirect: "/dashboard",
		User:     &user,
	})
}

// Logout revokes the persisted session and clears the cookie. Always
// succeeds, even without a valid session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if raw, err := sessionTokenFromRequest(r); err == nil {
		if err := h.sessions.Revoke(r.Context(), raw); err != nil {
			h.logger.Warn("session revoke failed", zap.Error(err))
		}
	}
	clearSessionCookie(w, h.cookieSecure)
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, Message: "signed out", Redirect: "/"})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			clearSessionCookie(w, h.cookieSecure)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.logger.Error("load user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile changes name/email and optionally the password.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name != "" && len(req.Name) < minNameLen {
		writeError(w, http.StatusBadRequest, "name must be at least 2 characters")
		return
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			writeError(w, http.StatusBadRequest, "invalid email address")
			return
		}
	}
	if req.NewPassword != "" && len(req.NewPassword) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	// The password change runs first so a rejected current password
	// leaves the profile untouched.
	if req.NewPassword != "" {
		if err := h.users.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
			if errors.Is(err, services.ErrInvalidCredentials) {
				writeError(w, http.StatusForbidden, "current password is incorrect")
				return
			}
			h.logger.Error("password change failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to change password")
			return
		}
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, req.Name, req.Email, "")
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("profile update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UploadAvatar stores a new avatar image and records its URL.
func (h *AuthHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.avatars == nil {
		writeError(w, http.StatusNotImplemented, "avatar storage is not configured")
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing avatar file")
		return
	}
	defer file.Close()

	url, err := h.avatars.Save(r.Context(), userID, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		h.logger.Error("avatar upload failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, "failed to store avatar")
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, "", "", url)
	if err != nil {
		h.logger.Error("avatar record failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// DeleteAccount removes the user and everything they own.
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			clearSessionCookie(w, h.cookieSecure)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.logger.Error("load user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}

	if err := h.users.DeleteAccount(r.Context(), userID); err != nil {
		h.logger.Error("account deletion failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}

	h.events.UserDeleted(r.Context(), user.ID, user.Email)
	clearSessionCookie(w, h.cookieSecure)
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, Message: "account deleted", Redirect: "/"})
}

// ListAccounts returns the provider links owned by the user.
func (h *AuthHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	accounts, err := h.users.ListOAuthAccounts(r.Context(), userID)
	if err != nil {
		h.logger.Error("list accounts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []types.OAuthAccount{}
	}
	writeJSON(w, http.StatusOK, AccountListResponse{Accounts: accounts})
}

// UnlinkAccount removes one provider link.
func (h *AuthHandler) UnlinkAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	provider := chi.URLParam(r, "provider")
	if err := h.users.UnlinkOAuthAccount(r.Context(), userID, provider); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not linked")
			return
		}
		h.logger.Error("unlink failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to unlink account")
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, Message: "account unlinked"})
}

func validateRegistration(req RegisterRequest) (string, bool) {
	if len(req.Name) < minNameLen {
		return "name must be at least 2 characters", false
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "invalid email address", false
	}
	if len(req.Password) < minPasswordLen {
		return "password must be at least 8 characters", false
	}
	return "", true
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProfileRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type AuthResponse struct {
	Success  bool        `json:"success"`
	Message  string      `json:"message"`
	Redirect string      `json:"redirect,omitempty"`
	User     *types.User `json:"user,omitempty"`
}

type AccountListResponse struct {
	Accounts []types.OAuthAccount `json:"accounts"`
}
