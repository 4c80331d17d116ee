package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/infra/buildinfo"
)

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": buildinfo.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReady handles GET /ready. The instance is ready when the shared
// store answers.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			h.log.Warn("readiness check failed", "error", err)
			h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrSharedStore.Code, "shared store unavailable")
			return
		}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}
