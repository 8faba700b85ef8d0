// Package service orchestrates the bet lifecycle: placement through the
// relayer, settlement sync from the data feed, payout withdrawal, and
// cashout.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/azubet/azubet/internal/azuro"
	"github.com/azubet/azubet/internal/bet"
	"github.com/azubet/azubet/internal/crypto"
	"github.com/azubet/azubet/internal/domain"
)

// walletLockKey is the single lock serializing every nonce-consuming
// operation of the wallet.
const walletLockKey = "wallet"

// BetSigner signs EIP-712 bet payloads.
type BetSigner interface {
	SignSingleBet(dom crypto.BetDomain, p crypto.SingleBetPayload) (string, error)
	SignComboBet(dom crypto.BetDomain, p crypto.ComboBetPayload) (string, error)
}

// RelayerSubmitter submits signed orders to the relayer.
type RelayerSubmitter interface {
	SubmitSingle(ctx context.Context, req azuro.SingleOrderRequest) (string, error)
	SubmitCombo(ctx context.Context, req azuro.ComboOrderRequest) (string, error)
}

// OrderAwaiter polls a submitted order until terminal or budget exhaustion.
type OrderAwaiter interface {
	Await(ctx context.Context, orderID string) (bet.PollResult, error)
}

// AllowanceFunc ensures the spender's token allowance covers amount before a
// bet rides on it. It must return only once the approval is confirmed.
type AllowanceFunc func(ctx context.Context, amount string) error

// BetConfig carries the placement parameters the service needs.
type BetConfig struct {
	Wallet       string
	SingleDomain crypto.BetDomain
	ComboDomain  crypto.BetDomain
	LockTTL      time.Duration
	MinBetGap    time.Duration
}

// BetRequest is one user-initiated placement.
type BetRequest struct {
	Selections []domain.Selection `json:"selections"`
	Amount     string             `json:"amount"`
}

// BetResponse reports the outcome of a placement as far as it is known when
// the call returns. Status pending with no reason means the fate is unknown
// and reconciliation will resolve it.
type BetResponse struct {
	LocalID string           `json:"localId"`
	Status  domain.BetStatus `json:"status"`
	BetID   string           `json:"betId,omitempty"`
	TxHash  string           `json:"txHash,omitempty"`
	OrderID string           `json:"orderId,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

// BetService drives a placement from request to ledger record: lock, build,
// sign, submit, poll, persist.
type BetService struct {
	bets    domain.BetStore
	audit   domain.AuditStore
	locks   domain.LockManager
	limiter domain.RateLimiter
	bus     domain.SignalBus
	builder *bet.Builder
	poller  OrderAwaiter
	relayer RelayerSubmitter
	signer  BetSigner
	ensure  AllowanceFunc
	cfg     BetConfig
	logger  *slog.Logger
}

// NewBetService creates a BetService with all required dependencies.
func NewBetService(
	bets domain.BetStore,
	audit domain.AuditStore,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	builder *bet.Builder,
	poller OrderAwaiter,
	relayer RelayerSubmitter,
	signer BetSigner,
	ensure AllowanceFunc,
	cfg BetConfig,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		bets:    bets,
		audit:   audit,
		locks:   locks,
		limiter: limiter,
		bus:     bus,
		builder: builder,
		poller:  poller,
		relayer: relayer,
		signer:  signer,
		ensure:  ensure,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "bet_service")),
	}
}

// PlaceBet runs the full placement flow. The wallet lock is held from before
// the allowance check until the relayer has answered (or the poll budget ran
// out), so the wallet never has two submissions in flight.
func (s *BetService) PlaceBet(ctx context.Context, req BetRequest) (BetResponse, error) {
	unlock, err := s.locks.Acquire(ctx, walletLockKey, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return BetResponse{}, fmt.Errorf("bet_service: wallet busy: %w", err)
		}
		return BetResponse{}, fmt.Errorf("bet_service: acquire wallet lock: %w", err)
	}
	defer unlock()

	// Enforce the minimum gap between submissions.
	allowed, err := s.limiter.Allow(ctx, "bets:"+s.cfg.Wallet, 1, s.cfg.MinBetGap)
	if err != nil {
		return BetResponse{}, fmt.Errorf("bet_service: rate limiter: %w", err)
	}
	if !allowed {
		return BetResponse{}, fmt.Errorf("bet_service: %w: wallet submitted too recently", domain.ErrRateLimited)
	}

	attempt := domain.BetAttempt{
		LocalID:    uuid.New().String(),
		Wallet:     s.cfg.Wallet,
		Selections: req.Selections,
		Amount:     req.Amount,
		Odds:       bet.ComboOdds(req.Selections),
		Status:     domain.BetStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	// Build and sign first: a validation or signing failure must not leave
	// a ledger record behind.
	orderID, submitErr := func() (string, error) {
		if len(req.Selections) == 1 {
			payload, err := s.builder.BuildSingle(req.Selections[0], req.Amount)
			if err != nil {
				return "", err
			}
			sig, err := s.signer.SignSingleBet(s.cfg.SingleDomain, payload)
			if err != nil {
				return "", fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
			}

			if err := s.createAndApprove(ctx, attempt); err != nil {
				return "", err
			}
			return s.relayer.SubmitSingle(ctx, azuro.SingleOrderRequest{
				Bettor:    s.cfg.Wallet,
				Data:      payload,
				Signature: sig,
			})
		}

		payload, err := s.builder.BuildCombo(req.Selections, req.Amount)
		if err != nil {
			return "", err
		}
		sig, err := s.signer.SignComboBet(s.cfg.ComboDomain, payload)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
		}

		if err := s.createAndApprove(ctx, attempt); err != nil {
			return "", err
		}
		return s.relayer.SubmitCombo(ctx, azuro.ComboOrderRequest{
			Bettor:    s.cfg.Wallet,
			Data:      payload,
			Signature: sig,
		})
	}()

	if submitErr != nil {
		return s.handleSubmitError(ctx, attempt, submitErr)
	}

	if err := s.bets.SetOrderID(ctx, attempt.LocalID, orderID); err != nil {
		s.logger.Error("set order id failed",
			slog.String("local_id", attempt.LocalID),
			slog.String("error", err.Error()))
	}
	if err := s.bets.UpdateStatus(ctx, attempt.LocalID, domain.BetStatusProcessing, "", ""); err != nil {
		return BetResponse{}, fmt.Errorf("bet_service: mark processing: %w", err)
	}

	return s.awaitOutcome(ctx, attempt.LocalID, orderID)
}

// createAndApprove persists the pending ledger record and confirms the token
// allowance. Record first: once the relayer may see the order, a crash
// anywhere after this point leaves a pending row for the reconciler.
func (s *BetService) createAndApprove(ctx context.Context, attempt domain.BetAttempt) error {
	if err := s.bets.Create(ctx, attempt); err != nil {
		return fmt.Errorf("create ledger record: %w", err)
	}
	if err := s.ensure(ctx, attempt.Amount); err != nil {
		// Nothing was submitted; failing the record is safe.
		if uerr := s.bets.UpdateStatus(ctx, attempt.LocalID, domain.BetStatusFailed, "", ""); uerr != nil {
			s.logger.Error("mark failed after allowance error",
				slog.String("local_id", attempt.LocalID),
				slog.String("error", uerr.Error()))
		}
		return fmt.Errorf("ensure allowance: %w", err)
	}
	return nil
}

// handleSubmitError classifies a submission failure. Only errors that
// guarantee the relayer never accepted the order may fail or reject the
// record; everything ambiguous stays pending for reconciliation.
func (s *BetService) handleSubmitError(ctx context.Context, attempt domain.BetAttempt, submitErr error) (BetResponse, error) {
	localID := attempt.LocalID

	switch {
	case errors.Is(submitErr, domain.ErrInvalidSelection),
		errors.Is(submitErr, domain.ErrSigningFailed):
		// Failed before anything was persisted or sent.
		return BetResponse{}, fmt.Errorf("bet_service: %w", submitErr)

	case errors.Is(submitErr, domain.ErrRelayerRejected):
		if err := s.bets.UpdateStatus(ctx, localID, domain.BetStatusRejected, "", ""); err != nil {
			s.logger.Error("mark rejected failed",
				slog.String("local_id", localID),
				slog.String("error", err.Error()))
		}
		s.publishEvent(ctx, "bet_rejected", map[string]string{
			"local_id": localID,
			"reason":   submitErr.Error(),
		})
		s.auditLog(ctx, "bet_rejected", map[string]any{
			"local_id": localID,
			"reason":   submitErr.Error(),
		})
		return BetResponse{
			LocalID: localID,
			Status:  domain.BetStatusRejected,
			Reason:  submitErr.Error(),
		}, nil

	default:
		// Network failure, missing order id, timeout: the relayer may or
		// may not have the order. Leave the record pending.
		s.logger.Warn("submission outcome unknown",
			slog.String("local_id", localID),
			slog.String("error", submitErr.Error()))
		s.auditLog(ctx, "bet_submit_unknown", map[string]any{
			"local_id": localID,
			"error":    submitErr.Error(),
		})
		return BetResponse{
			LocalID: localID,
			Status:  domain.BetStatusPending,
			Reason:  "submission outcome unknown, reconciliation pending",
		}, nil
	}
}

// awaitOutcome polls the order and folds the result into the ledger.
func (s *BetService) awaitOutcome(ctx context.Context, localID, orderID string) (BetResponse, error) {
	result, err := s.poller.Await(ctx, orderID)
	if err != nil {
		return BetResponse{}, fmt.Errorf("bet_service: %w", err)
	}

	if result.TimedOut {
		// Fate unknown: the bet may still land on-chain. Back to pending,
		// never rejected.
		if uerr := s.bets.UpdateStatus(ctx, localID, domain.BetStatusPending, "", ""); uerr != nil {
			s.logger.Error("revert to pending failed",
				slog.String("local_id", localID),
				slog.String("error", uerr.Error()))
		}
		s.auditLog(ctx, "bet_poll_timeout", map[string]any{
			"local_id": localID,
			"order_id": orderID,
		})
		return BetResponse{
			LocalID: localID,
			Status:  domain.BetStatusPending,
			OrderID: orderID,
			Reason:  "order outcome unknown, reconciliation pending",
		}, nil
	}

	order := result.Order
	if order.State == azuro.OrderStateRejected {
		if uerr := s.bets.UpdateStatus(ctx, localID, domain.BetStatusRejected, "", ""); uerr != nil {
			s.logger.Error("mark rejected failed",
				slog.String("local_id", localID),
				slog.String("error", uerr.Error()))
		}
		s.publishEvent(ctx, "bet_rejected", map[string]string{
			"local_id": localID,
			"reason":   order.ErrorMessage,
		})
		s.auditLog(ctx, "bet_rejected", map[string]any{
			"local_id": localID,
			"order_id": orderID,
			"reason":   order.ErrorMessage,
		})
		return BetResponse{
			LocalID: localID,
			Status:  domain.BetStatusRejected,
			OrderID: orderID,
			Reason:  order.ErrorMessage,
		}, nil
	}

	// Accepted.
	if err := s.bets.AssignChainIDs(ctx, localID, order.BetID, order.TxHash); err != nil {
		return BetResponse{}, fmt.Errorf("bet_service: assign chain ids: %w", err)
	}
	if err := s.bets.UpdateStatus(ctx, localID, domain.BetStatusAccepted, "", ""); err != nil {
		return BetResponse{}, fmt.Errorf("bet_service: mark accepted: %w", err)
	}

	s.publishEvent(ctx, "bet_accepted", map[string]string{
		"local_id": localID,
		"bet_id":   order.BetID,
		"tx_hash":  order.TxHash,
	})
	s.auditLog(ctx, "bet_accepted", map[string]any{
		"local_id": localID,
		"order_id": orderID,
		"bet_id":   order.BetID,
		"tx_hash":  order.TxHash,
	})
	s.logger.Info("bet accepted",
		slog.String("local_id", localID),
		slog.String("bet_id", order.BetID))

	return BetResponse{
		LocalID: localID,
		Status:  domain.BetStatusAccepted,
		BetID:   order.BetID,
		TxHash:  order.TxHash,
		OrderID: orderID,
	}, nil
}

// GetBet retrieves a single ledger record by local id.
func (s *BetService) GetBet(ctx context.Context, localID string) (domain.BetAttempt, error) {
	b, err := s.bets.GetByLocalID(ctx, localID)
	if err != nil {
		return domain.BetAttempt{}, fmt.Errorf("bet_service: get bet %q: %w", localID, err)
	}
	return b, nil
}

// ListBets returns ledger records matching the filter.
func (s *BetService) ListBets(ctx context.Context, filter domain.BetFilter) ([]domain.BetAttempt, error) {
	bets, err := s.bets.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list bets: %w", err)
	}
	return bets, nil
}

func (s *BetService) publishEvent(ctx context.Context, event string, fields map[string]string) {
	payload := map[string]string{"event": event}
	for k, v := range fields {
		payload[k] = v
	}
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, "bets", evt); err != nil {
		s.logger.Warn("publish event failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

func (s *BetService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.Warn("audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}
