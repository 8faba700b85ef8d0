package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/azubet/azubet/internal/reconcile"
)

// ReconcileRunner defines the reconciliation operations the handler triggers.
type ReconcileRunner interface {
	Run(ctx context.Context) (reconcile.Report, error)
	Recover(ctx context.Context) (reconcile.Report, error)
}

// ReconcileHandler exposes manual triggers for the ghost-bet reconciler.
type ReconcileHandler struct {
	reconciler ReconcileRunner
	logger     *slog.Logger
}

// NewReconcileHandler creates a ReconcileHandler.
func NewReconcileHandler(reconciler ReconcileRunner, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Trigger runs one reconciliation pass over stale pending records.
// POST /api/reconcile
func (h *ReconcileHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Run(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: reconcile failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Recover runs the strict recovery pass over ghost-cleanup records.
// POST /api/reconcile/recover
func (h *ReconcileHandler) Recover(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Recover(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: recovery failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "recovery failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
