package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/agentdesk/internal/store"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler reports database connectivity and provider configuration.
type HealthHandler struct {
	repo        store.Repository
	llmReady    bool
	speechReady bool
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(repo store.Repository, llmReady, speechReady bool) *HealthHandler {
	return &HealthHandler{repo: repo, llmReady: llmReady, speechReady: speechReady}
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{
		"database": "ok",
		"llm":      configured(h.llmReady),
		"speech":   configured(h.speechReady),
	}
	status := "healthy"
	code := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		checks["database"] = "unreachable"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	JSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not_configured"
}
