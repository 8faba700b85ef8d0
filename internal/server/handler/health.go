// Package handler contains the HTTP handlers of the API server. Each handler
// declares the slice of the service layer it needs as a local interface.
package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler answers liveness checks.
type HealthHandler struct {
	logger  *slog.Logger
	started time.Time
}

func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger, started: time.Now()}
}

// HealthCheck reports that the process is up and for how long.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
