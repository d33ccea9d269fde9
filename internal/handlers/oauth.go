package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agentplan/apiserver/internal/metrics"
	"github.com/agentplan/apiserver/internal/mq"
	"github.com/agentplan/apiserver/internal/oauth"
	"github.com/agentplan/apiserver/internal/services"
)

const defaultRedirectPath = "/dashboard"

// OAuthHandler drives the browser through the authorization-code flow
// for each configured provider.
type OAuthHandler struct {
	clients      map[oauth.Provider]*oauth.Client
	state        *oauth.StateCodec
	linker       *services.OAuthService
	sessions     *services.SessionService
	events       *mq.EventPublisher
	appURL       string
	cookieSecure bool
	logger       *zap.Logger
}

// NewOAuthHandler constructs an OAuthHandler with the provided dependencies.
func NewOAuthHandler(clients map[oauth.Provider]*oauth.Client, state *oauth.StateCodec, linker *services.OAuthService, sessions *services.SessionService, events *mq.EventPublisher, appURL string, cookieSecure bool, logger *zap.Logger) *OAuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthHandler{
		clients:      clients,
		state:        state,
		linker:       linker,
		sessions:     sessions,
		events:       events,
		appURL:       strings.TrimRight(appURL, "/"),
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

// OAuthRouter registers the provider login and callback routes.
func OAuthRouter(r chi.Router, handler *OAuthHandler) {
	r.Get("/login/{provider}", handler.Authorize)
	r.Get("/callback/{provider}", handler.Callback)
}

// Authorize redirects the browser to the provider's consent screen.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	client, provider, ok := h.client(w, r)
	if !ok {
		return
	}

	redirectTo := r.URL.Query().Get("redirect")
	if !safeRedirectPath(redirectTo) {
		redirectTo = ""
	}

	state, err := h.state.Encode(oauth.State{Provider: provider, RedirectTo: redirectTo})
	if err != nil {
		h.logger.Error("state encode failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start sign-in")
		return
	}

	http.Redirect(w, r, client.AuthURL(state), http.StatusFound)
}

// Callback completes the code exchange, links the account and sets the
// session cookie.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	client, provider, ok := h.client(w, r)
	if !ok {
		return
	}

	if errCode := r.URL.Query().Get("error"); errCode != "" {
		metrics.OAuthCallbacksTotal.WithLabelValues(string(provider), "denied").Inc()
		http.Redirect(w, r, h.appURL+"/login?error="+url.QueryEscape(errCode), http.StatusFound)
		return
	}

	state, err := h.state.Decode(r.URL.Query().Get("state"))
	if err != nil || state.Provider != provider {
		metrics.OAuthCallbacksTotal.WithLabelValues(string(provider), "bad_state").Inc()
		writeError(w, http.StatusBadRequest, "invalid state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	accessToken, err := client.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("code exchange failed", zap.String("provider", string(provider)), zap.Error(err))
		metrics.OAuthCallbacksTotal.WithLabelValues(string(provider), "exchange_failed").Inc()
		writeError(w, http.StatusBadGateway, "failed to get access token")
		return
	}

	info, err := client.UserInfo(r.Context(), accessToken)
	if err != nil {
		h.logger.Error("user info fetch failed", zap.String("provider", string(provider)), zap.Error(err))
		metrics.OAuthCallbacksTotal.WithLabelValues(string(provider), "userinfo_failed").Inc()
		writeError(w, http.StatusBadGateway, "failed to get user info")
		return
	}

	user, created, err := h.linker.HandleCallback(r.Context(), info)
	if err != nil {
		if errors.Is(err, services.ErrCredentialConflict) {
			metrics.OAuthCallbacksTotal.WithLabelValues(string(provider), "conflict").Inc()
			writeError(w, http.StatusConflict, "this email is registered with a password, sign in with your password instead")
			return
		}
		h.logger.Error("account linking failed", zap.String("provider", string(provider)), zap.Error(err))
		metrics.OAuthCallbacksTotal.WithLabelValues(string(provider), "link_failed").Inc()
		writeError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}

	token, err := h.sessions.Issue(r.Context(), user)
	if err != nil {
		h.logger.Error("session issue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	setSessionCookie(w, token, h.sessions.TTL(), h.cookieSecure)

	if created {
		h.events.UserRegistered(r.Context(), user.ID, user.Email)
		h.events.OAuthLinked(r.Context(), user.ID, user.Email, string(provider))
	} else {
		h.events.UserLoggedIn(r.Context(), user.ID, user.Email, string(provider))
	}
	metrics.OAuthCallbacksTotal.WithLabelValues(string(provider), "success").Inc()

	redirectTo := state.RedirectTo
	if !safeRedirectPath(redirectTo) {
		redirectTo = defaultRedirectPath
	}
	http.Redirect(w, r, h.appURL+redirectTo, http.StatusFound)
}

func (h *OAuthHandler) client(w http.ResponseWriter, r *http.Request) (*oauth.Client, oauth.Provider, bool) {
	provider, err := oauth.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown provider")
		return nil, "", false
	}
	client, ok := h.clients[provider]
	if !ok {
		writeError(w, http.StatusNotFound, "provider is not configured")
		return nil, "", false
	}
	return client, provider, true
}

// safeRedirectPath accepts only same-origin absolute paths so the
// state payload cannot bounce the browser to another site.
func safeRedirectPath(path string) bool {
	return strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "//")
}
