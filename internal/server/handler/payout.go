package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/azubet/azubet/internal/domain"
	"github.com/azubet/azubet/internal/service"
)

// PayoutService defines the withdrawal operations the handler requires.
type PayoutService interface {
	Withdraw(ctx context.Context, localID string) (service.PayoutResult, error)
	CancelStuck(ctx context.Context) (int, error)
}

// PayoutHandler serves payout withdrawal and stuck transaction cleanup.
type PayoutHandler struct {
	payouts PayoutService
	logger  *slog.Logger
}

// NewPayoutHandler creates a PayoutHandler.
func NewPayoutHandler(payouts PayoutService, logger *slog.Logger) *PayoutHandler {
	return &PayoutHandler{
		payouts: payouts,
		logger:  logger,
	}
}

// Withdraw redeems the payout for a settled-won or canceled bet.
// POST /api/bets/{localId}/withdraw
func (h *PayoutHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	localID := pathParam(r, "localId")
	if localID == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}

	result, err := h.payouts.Withdraw(r.Context(), localID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "bet not found")
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "another wallet operation is in flight")
		default:
			h.logger.ErrorContext(r.Context(), "handler: withdraw failed",
				slog.String("local_id", localID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to withdraw payout")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CancelStuck replaces stuck pending wallet transactions.
// POST /api/payouts/cancel-stuck
func (h *PayoutHandler) CancelStuck(w http.ResponseWriter, r *http.Request) {
	resolved, err := h.payouts.CancelStuck(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			writeError(w, http.StatusConflict, "another wallet operation is in flight")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cancel stuck failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel stuck transactions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"resolved": resolved})
}
