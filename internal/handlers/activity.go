package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agentplan/apiserver/internal/activity"
)

// ActivityHandler serves the commit-history footer widget.
type ActivityHandler struct {
	service *activity.Service
	logger  *zap.Logger
}

// NewActivityHandler constructs an ActivityHandler.
func NewActivityHandler(service *activity.Service, logger *zap.Logger) *ActivityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityHandler{service: service, logger: logger}
}

// ActivityRouter registers the commit and version routes.
func ActivityRouter(r chi.Router, handler *ActivityHandler) {
	r.Get("/commits", handler.Commits)
	r.Get("/version", handler.Version)
}

// Commits returns recent commits, served stale when upstream is down.
func (h *ActivityHandler) Commits(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	feed, err := h.service.Commits(r.Context(), limit)
	if err != nil {
		h.logger.Warn("commit feed unavailable", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to fetch commits")
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

// Version reports the app version derived from the commit count.
func (h *ActivityHandler) Version(w http.ResponseWriter, r *http.Request) {
	version, err := h.service.Version(r.Context())
	if err != nil {
		h.logger.Warn("version unavailable", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to resolve version")
		return
	}
	writeJSON(w, http.StatusOK, version)
}
