package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/azubet/azubet/internal/domain"
)

// PayoutEngine drives the on-chain side of payout withdrawal and stuck
// transaction cleanup.
type PayoutEngine interface {
	WithdrawPayout(ctx context.Context, lp, azuroBet, token common.Address, betID *big.Int) (*big.Int, string, error)
	CancelStuck(ctx context.Context) (int, error)
}

// PayoutConfig names the contracts the withdrawal path touches.
type PayoutConfig struct {
	LPAddress       string
	AzuroBetAddress string
	TokenAddress    string
	LockTTL         time.Duration
}

// PayoutResult reports a completed withdrawal.
type PayoutResult struct {
	LocalID string `json:"localId"`
	BetID   string `json:"betId"`
	TxHash  string `json:"txHash"`
	Payout  string `json:"payout"`
}

// PayoutService redeems winnings for settled bets and clears stuck wallet
// nonces. Both paths consume wallet nonces, so both run under the wallet lock.
type PayoutService struct {
	bets   domain.BetStore
	audit  domain.AuditStore
	locks  domain.LockManager
	bus    domain.SignalBus
	engine PayoutEngine
	cfg    PayoutConfig
	logger *slog.Logger
}

// NewPayoutService creates a PayoutService.
func NewPayoutService(
	bets domain.BetStore,
	audit domain.AuditStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	engine PayoutEngine,
	cfg PayoutConfig,
	logger *slog.Logger,
) *PayoutService {
	return &PayoutService{
		bets:   bets,
		audit:  audit,
		locks:  locks,
		bus:    bus,
		engine: engine,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "payout_service")),
	}
}

// Withdraw redeems the payout for a settled-won or canceled bet identified by
// its local ledger id. The actual amount received comes from the transfer
// observed in the withdrawal receipt, not from the feed's quote.
func (s *PayoutService) Withdraw(ctx context.Context, localID string) (PayoutResult, error) {
	b, err := s.bets.GetByLocalID(ctx, localID)
	if err != nil {
		return PayoutResult{}, fmt.Errorf("payout_service: get bet %q: %w", localID, err)
	}

	if !s.withdrawable(b) {
		return PayoutResult{}, fmt.Errorf("payout_service: bet %q not withdrawable (status %s, result %s)",
			localID, b.Status, b.Result)
	}

	betID, ok := new(big.Int).SetString(b.BetID, 10)
	if !ok {
		return PayoutResult{}, fmt.Errorf("payout_service: bet %q has malformed bet id %q", localID, b.BetID)
	}

	unlock, err := s.locks.Acquire(ctx, walletLockKey, s.cfg.LockTTL)
	if err != nil {
		return PayoutResult{}, fmt.Errorf("payout_service: acquire wallet lock: %w", err)
	}
	defer unlock()

	payout, txHash, err := s.engine.WithdrawPayout(ctx,
		common.HexToAddress(s.cfg.LPAddress),
		common.HexToAddress(s.cfg.AzuroBetAddress),
		common.HexToAddress(s.cfg.TokenAddress),
		betID,
	)
	if err != nil {
		s.auditLog(ctx, "payout_failed", map[string]any{
			"local_id": localID,
			"bet_id":   b.BetID,
			"error":    err.Error(),
		})
		return PayoutResult{}, fmt.Errorf("payout_service: withdraw %q: %w", localID, err)
	}

	result := PayoutResult{
		LocalID: localID,
		BetID:   b.BetID,
		TxHash:  txHash,
		Payout:  payout.String(),
	}

	// Re-stamp the payout with the amount actually received.
	if err := s.bets.UpdateStatus(ctx, localID, b.Status, b.Result, payout.String()); err != nil {
		s.logger.Error("record payout failed",
			slog.String("local_id", localID),
			slog.String("error", err.Error()))
	}

	s.publishEvent(ctx, "payout_withdrawn", map[string]string{
		"local_id": localID,
		"bet_id":   b.BetID,
		"tx_hash":  txHash,
		"payout":   payout.String(),
	})
	s.auditLog(ctx, "payout_withdrawn", map[string]any{
		"local_id": localID,
		"bet_id":   b.BetID,
		"tx_hash":  txHash,
		"payout":   payout.String(),
	})
	s.logger.Info("payout withdrawn",
		slog.String("local_id", localID),
		slog.String("payout", payout.String()))

	return result, nil
}

// CancelStuck replaces every stuck pending wallet transaction with a
// zero-value self-transfer at a bumped price. Returns how many nonces were
// resolved.
func (s *PayoutService) CancelStuck(ctx context.Context) (int, error) {
	unlock, err := s.locks.Acquire(ctx, walletLockKey, s.cfg.LockTTL)
	if err != nil {
		return 0, fmt.Errorf("payout_service: acquire wallet lock: %w", err)
	}
	defer unlock()

	resolved, err := s.engine.CancelStuck(ctx)
	if err != nil {
		return resolved, fmt.Errorf("payout_service: cancel stuck: %w", err)
	}

	if resolved > 0 {
		s.auditLog(ctx, "stuck_txs_canceled", map[string]any{
			"resolved": resolved,
		})
	}
	return resolved, nil
}

// withdrawable reports whether the record is in a state whose payout can be
// redeemed: settled-won, or canceled (stake refund).
func (s *PayoutService) withdrawable(b domain.BetAttempt) bool {
	if !b.HasChainIDs() {
		return false
	}
	switch {
	case b.Status == domain.BetStatusSettled && b.Result == domain.BetResultWon:
		return true
	case b.Status == domain.BetStatusCanceled:
		return true
	default:
		return false
	}
}

func (s *PayoutService) publishEvent(ctx context.Context, event string, fields map[string]string) {
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

func (s *PayoutService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.Warn("audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}
