package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/azubet/azubet/internal/azuro"
	"github.com/azubet/azubet/internal/domain"
	"github.com/azubet/azubet/internal/service"
)

// CashoutService defines the methods the cashout handler requires.
type CashoutService interface {
	Available(ctx context.Context, localID string) (bool, error)
	Quote(ctx context.Context, localID string) (service.CashoutQuote, error)
	Execute(ctx context.Context, localID string) (azuro.CashoutOrder, error)
	Status(ctx context.Context, cashoutID string) (azuro.CashoutOrder, error)
}

// CashoutHandler serves cashout endpoints.
type CashoutHandler struct {
	cashout CashoutService
	logger  *slog.Logger
}

// NewCashoutHandler creates a CashoutHandler.
func NewCashoutHandler(cashout CashoutService, logger *slog.Logger) *CashoutHandler {
	return &CashoutHandler{
		cashout: cashout,
		logger:  logger,
	}
}

// Availability reports whether cashout is offered for a bet.
// GET /api/bets/{localId}/cashout
func (h *CashoutHandler) Availability(w http.ResponseWriter, r *http.Request) {
	localID := pathParam(r, "localId")
	if localID == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}

	available, err := h.cashout.Available(r.Context(), localID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bet not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cashout availability failed",
			slog.String("local_id", localID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to check cashout availability")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

// Quote fetches a fresh cashout quote for a bet.
// GET /api/bets/{localId}/cashout/quote
func (h *CashoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	localID := pathParam(r, "localId")
	if localID == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}

	quote, err := h.cashout.Quote(r.Context(), localID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bet not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cashout quote failed",
			slog.String("local_id", localID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get cashout quote")
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// Execute quotes, signs, and submits a cashout for a bet.
// POST /api/bets/{localId}/cashout
func (h *CashoutHandler) Execute(w http.ResponseWriter, r *http.Request) {
	localID := pathParam(r, "localId")
	if localID == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}

	order, err := h.cashout.Execute(r.Context(), localID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "bet not found")
		case errors.Is(err, domain.ErrRelayerRejected):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "another wallet operation is in flight")
		default:
			h.logger.ErrorContext(r.Context(), "handler: cashout execute failed",
				slog.String("local_id", localID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to execute cashout")
		}
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// Status fetches the relayer state of a cashout order.
// GET /api/cashouts/{id}
func (h *CashoutHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing cashout id")
		return
	}

	order, err := h.cashout.Status(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: cashout status failed",
			slog.String("cashout_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get cashout status")
		return
	}

	writeJSON(w, http.StatusOK, order)
}
