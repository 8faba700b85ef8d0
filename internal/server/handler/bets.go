package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/azubet/azubet/internal/domain"
	"github.com/azubet/azubet/internal/service"
)

// BetService defines the methods the bet handler requires from the service
// layer.
type BetService interface {
	PlaceBet(ctx context.Context, req service.BetRequest) (service.BetResponse, error)
	GetBet(ctx context.Context, localID string) (domain.BetAttempt, error)
	ListBets(ctx context.Context, filter domain.BetFilter) ([]domain.BetAttempt, error)
}

// BetHandler serves bet placement and ledger query endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logger,
	}
}

// listBetsResponse wraps the list bets response.
type listBetsResponse struct {
	Bets []domain.BetAttempt `json:"bets"`
}

// PlaceBet places a new bet from a JSON body of selections and a stake.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req service.BetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if len(req.Selections) == 0 {
		writeError(w, http.StatusBadRequest, "at least one selection is required")
		return
	}
	if req.Amount == "" {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}

	resp, err := h.bets.PlaceBet(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSelection):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate limited")
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "another submission is in flight")
		default:
			h.logger.ErrorContext(r.Context(), "handler: place bet failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place bet")
		}
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// GetBet returns a single ledger record by its local id.
// GET /api/bets/{localId}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	localID := pathParam(r, "localId")
	if localID == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}

	b, err := h.bets.GetBet(r.Context(), localID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bet not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get bet failed",
			slog.String("local_id", localID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get bet")
		return
	}

	writeJSON(w, http.StatusOK, b)
}

// ListBets returns ledger records, optionally filtered by status.
// GET /api/bets?status=pending,accepted&limit=50&offset=0
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	filter := domain.BetFilter{
		Limit:  limit,
		Offset: offset,
	}

	if v := r.URL.Query().Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				filter.Statuses = append(filter.Statuses, domain.BetStatus(s))
			}
		}
	}

	bets, err := h.bets.ListBets(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	if bets == nil {
		bets = []domain.BetAttempt{}
	}

	writeJSON(w, http.StatusOK, listBetsResponse{Bets: bets})
}
