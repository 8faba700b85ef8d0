package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/azubet/azubet/internal/azuro"
	"github.com/azubet/azubet/internal/crypto"
	"github.com/azubet/azubet/internal/domain"
)

// CashoutRelayer is the relayer surface the cashout flow needs.
type CashoutRelayer interface {
	GetCashoutAvailability(ctx context.Context, betID string) (bool, error)
	GetCashoutCalculation(ctx context.Context, betID, owner string) (azuro.CashoutCalculation, error)
	CreateCashout(ctx context.Context, calc azuro.CashoutCalculation, owner, signature string) (azuro.CashoutOrder, error)
	GetCashout(ctx context.Context, cashoutID string) (azuro.CashoutOrder, error)
}

// CashoutSigner signs acceptance of a cashout quote.
type CashoutSigner interface {
	SignCashout(dom crypto.BetDomain, p crypto.CashoutPayload) (string, error)
}

// CashoutConfig carries the signing domain and wallet for cashout orders.
type CashoutConfig struct {
	Wallet  string
	Domain  crypto.BetDomain
	LockTTL time.Duration
	// PollInterval and PollBudget bound the status poll after a cashout
	// order is created. Quotes expire in seconds, so the budget is short.
	PollInterval time.Duration
	PollBudget   time.Duration
}

// CashoutQuote is a relayer quote surfaced to the caller.
type CashoutQuote struct {
	CalculationID string `json:"calculationId"`
	BetID         string `json:"betId"`
	Amount        string `json:"amount"`
	Odds          string `json:"odds"`
	ExpiresAt     int64  `json:"expiresAt"`
}

// CashoutService sells an accepted bet back to the pool at the relayer's
// quoted price before its conditions resolve.
type CashoutService struct {
	bets    domain.BetStore
	audit   domain.AuditStore
	locks   domain.LockManager
	bus     domain.SignalBus
	relayer CashoutRelayer
	signer  CashoutSigner
	cfg     CashoutConfig
	logger  *slog.Logger
}

// NewCashoutService creates a CashoutService.
func NewCashoutService(
	bets domain.BetStore,
	audit domain.AuditStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	relayer CashoutRelayer,
	signer CashoutSigner,
	cfg CashoutConfig,
	logger *slog.Logger,
) *CashoutService {
	return &CashoutService{
		bets:    bets,
		audit:   audit,
		locks:   locks,
		bus:     bus,
		relayer: relayer,
		signer:  signer,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "cashout_service")),
	}
}

// Available reports whether the relayer currently offers cashout for the bet.
func (s *CashoutService) Available(ctx context.Context, localID string) (bool, error) {
	b, err := s.eligibleBet(ctx, localID)
	if err != nil {
		return false, err
	}

	available, err := s.relayer.GetCashoutAvailability(ctx, b.BetID)
	if err != nil {
		return false, fmt.Errorf("cashout_service: availability %q: %w", localID, err)
	}
	return available, nil
}

// Quote fetches a fresh cashout quote. Quotes expire within seconds; callers
// should execute promptly or re-quote.
func (s *CashoutService) Quote(ctx context.Context, localID string) (CashoutQuote, error) {
	b, err := s.eligibleBet(ctx, localID)
	if err != nil {
		return CashoutQuote{}, err
	}

	calc, err := s.relayer.GetCashoutCalculation(ctx, b.BetID, s.cfg.Wallet)
	if err != nil {
		return CashoutQuote{}, fmt.Errorf("cashout_service: quote %q: %w", localID, err)
	}

	return CashoutQuote{
		CalculationID: calc.CalculationID,
		BetID:         calc.BetID,
		Amount:        calc.Amount,
		Odds:          calc.Odds,
		ExpiresAt:     calc.ExpiresAt,
	}, nil
}

// Execute quotes, signs, and submits a cashout for the bet, then folds the
// result into the ledger: a completed cashout settles the bet as won with the
// cashout amount as its payout.
func (s *CashoutService) Execute(ctx context.Context, localID string) (azuro.CashoutOrder, error) {
	b, err := s.eligibleBet(ctx, localID)
	if err != nil {
		return azuro.CashoutOrder{}, err
	}

	unlock, err := s.locks.Acquire(ctx, walletLockKey, s.cfg.LockTTL)
	if err != nil {
		return azuro.CashoutOrder{}, fmt.Errorf("cashout_service: acquire wallet lock: %w", err)
	}
	defer unlock()

	calc, err := s.relayer.GetCashoutCalculation(ctx, b.BetID, s.cfg.Wallet)
	if err != nil {
		return azuro.CashoutOrder{}, fmt.Errorf("cashout_service: quote %q: %w", localID, err)
	}

	sig, err := s.signer.SignCashout(s.cfg.Domain, crypto.CashoutPayload{
		BetID:       calc.BetID,
		Bettor:      s.cfg.Wallet,
		CashoutOdds: calc.Odds,
		ExpiresAt:   strconv.FormatInt(calc.ExpiresAt, 10),
	})
	if err != nil {
		return azuro.CashoutOrder{}, fmt.Errorf("cashout_service: %w: %v", domain.ErrSigningFailed, err)
	}

	order, err := s.relayer.CreateCashout(ctx, calc, s.cfg.Wallet, sig)
	if err != nil {
		s.auditLog(ctx, "cashout_failed", map[string]any{
			"local_id": localID,
			"bet_id":   b.BetID,
			"error":    err.Error(),
		})
		return azuro.CashoutOrder{}, fmt.Errorf("cashout_service: create %q: %w", localID, err)
	}

	order, err = s.awaitCashout(ctx, order)
	if err != nil {
		return order, err
	}

	if order.State == azuro.OrderStateRejected {
		s.auditLog(ctx, "cashout_rejected", map[string]any{
			"local_id": localID,
			"bet_id":   b.BetID,
			"reason":   order.ErrorMessage,
		})
		return order, fmt.Errorf("cashout_service: %w: %s", domain.ErrRelayerRejected, order.ErrorMessage)
	}

	if !order.Terminal() {
		// Budget ran out with the cashout still in flight. The ledger is not
		// touched: if the cashout lands, the on-chain resolution reaches the
		// record through the settlement sync.
		s.auditLog(ctx, "cashout_poll_timeout", map[string]any{
			"local_id":   localID,
			"bet_id":     b.BetID,
			"cashout_id": order.ID,
		})
		s.logger.Warn("cashout outcome unknown",
			slog.String("local_id", localID),
			slog.String("cashout_id", order.ID))
		return order, nil
	}

	// A cashed-out bet is settled: the quote amount is the realized payout.
	if err := s.bets.UpdateStatus(ctx, localID, domain.BetStatusSettled, domain.BetResultWon, calc.Amount); err != nil {
		s.logger.Error("record cashout failed",
			slog.String("local_id", localID),
			slog.String("error", err.Error()))
	}

	s.publishEvent(ctx, "settled", map[string]string{
		"local_id": localID,
		"bet_id":   b.BetID,
		"result":   string(domain.BetResultWon),
		"payout":   calc.Amount,
		"cashout":  "true",
	})
	s.auditLog(ctx, "bet_cashout", map[string]any{
		"local_id":       localID,
		"bet_id":         b.BetID,
		"cashout_id":     order.ID,
		"calculation_id": calc.CalculationID,
		"amount":         calc.Amount,
		"odds":           calc.Odds,
	})
	s.logger.Info("cashout executed",
		slog.String("local_id", localID),
		slog.String("amount", calc.Amount))

	return order, nil
}

// awaitCashout polls the created cashout until it reaches a terminal state or
// the poll budget runs out. Fetch errors are survived within the budget; only
// a dead context aborts.
func (s *CashoutService) awaitCashout(ctx context.Context, order azuro.CashoutOrder) (azuro.CashoutOrder, error) {
	if order.Terminal() || order.ID == "" {
		return order, nil
	}

	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	budget := s.cfg.PollBudget
	if budget <= 0 {
		budget = 30 * time.Second
	}

	deadline := time.Now().Add(budget)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return order, fmt.Errorf("cashout_service: await %q: %w", order.ID, ctx.Err())
		case <-ticker.C:
		}

		latest, err := s.relayer.GetCashout(ctx, order.ID)
		if err != nil {
			s.logger.Debug("cashout poll failed",
				slog.String("cashout_id", order.ID),
				slog.String("error", err.Error()))
			continue
		}
		order = latest
		if order.Terminal() {
			return order, nil
		}
	}
	return order, nil
}

// Status fetches the relayer state of a cashout order.
func (s *CashoutService) Status(ctx context.Context, cashoutID string) (azuro.CashoutOrder, error) {
	order, err := s.relayer.GetCashout(ctx, cashoutID)
	if err != nil {
		return azuro.CashoutOrder{}, fmt.Errorf("cashout_service: status %q: %w", cashoutID, err)
	}
	return order, nil
}

// eligibleBet loads the record and verifies cashout can apply: only accepted
// bets tied to an on-chain bet may be cashed out.
func (s *CashoutService) eligibleBet(ctx context.Context, localID string) (domain.BetAttempt, error) {
	b, err := s.bets.GetByLocalID(ctx, localID)
	if err != nil {
		return domain.BetAttempt{}, fmt.Errorf("cashout_service: get bet %q: %w", localID, err)
	}
	if b.Status != domain.BetStatusAccepted || !b.HasChainIDs() {
		return domain.BetAttempt{}, fmt.Errorf("cashout_service: bet %q not eligible for cashout (status %s)",
			localID, b.Status)
	}
	return b, nil
}

func (s *CashoutService) publishEvent(ctx context.Context, event string, fields map[string]string) {
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

func (s *CashoutService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.Warn("audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}
