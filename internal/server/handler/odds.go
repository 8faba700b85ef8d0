package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/azubet/azubet/internal/domain"
)

// OddsReader defines the odds cache access the handler requires.
type OddsReader interface {
	GetConditionOdds(ctx context.Context, conditionID string) (map[string]float64, error)
}

// OddsHandler serves cached live odds.
type OddsHandler struct {
	odds   OddsReader
	logger *slog.Logger
}

// NewOddsHandler creates an OddsHandler.
func NewOddsHandler(odds OddsReader, logger *slog.Logger) *OddsHandler {
	return &OddsHandler{
		odds:   odds,
		logger: logger,
	}
}

// GetConditionOdds returns the latest cached odds per outcome of a condition.
// GET /api/odds/{conditionId}
func (h *OddsHandler) GetConditionOdds(w http.ResponseWriter, r *http.Request) {
	conditionID := pathParam(r, "conditionId")
	if conditionID == "" {
		writeError(w, http.StatusBadRequest, "missing condition id")
		return
	}

	odds, err := h.odds.GetConditionOdds(r.Context(), conditionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no odds cached for condition")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get odds failed",
			slog.String("condition_id", conditionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get odds")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conditionId": conditionID,
		"outcomes":    odds,
	})
}
