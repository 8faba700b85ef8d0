package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/azubet/azubet/internal/domain"
)

// AuditReader defines the audit log access the handler requires.
type AuditReader interface {
	List(ctx context.Context, limit, offset int) ([]domain.AuditEntry, error)
}

// AuditHandler serves the audit log.
type AuditHandler struct {
	audit  AuditReader
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit AuditReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// listAuditResponse wraps the audit log response.
type listAuditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// List returns audit log entries, newest first.
// GET /api/audit?limit=50&offset=0
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	entries, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}

	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, listAuditResponse{Entries: entries})
}
