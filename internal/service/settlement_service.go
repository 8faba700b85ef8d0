package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/azubet/azubet/internal/domain"
)

// BetFeed reads the authoritative on-chain state of a bet from the data feed.
type BetFeed interface {
	FetchBet(ctx context.Context, betID string) (domain.ChainBet, error)
}

// SettlementReport summarizes one settlement sync pass.
type SettlementReport struct {
	Scanned  int `json:"scanned"`
	Settled  int `json:"settled"`
	Canceled int `json:"canceled"`
}

// SettlementService syncs accepted ledger records against the data feed,
// moving bets whose conditions have resolved into settled or canceled.
type SettlementService struct {
	bets   domain.BetStore
	audit  domain.AuditStore
	bus    domain.SignalBus
	feed   BetFeed
	wallet string
	logger *slog.Logger
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(
	bets domain.BetStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	feed BetFeed,
	wallet string,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		bets:   bets,
		audit:  audit,
		bus:    bus,
		feed:   feed,
		wallet: wallet,
		logger: logger.With(slog.String("component", "settlement_service")),
	}
}

// Sync walks every accepted record tied to an on-chain bet and folds the
// feed's verdict into the ledger. Feed errors on one record are logged and
// the pass continues; bets the feed still reports as Accepted are left alone.
func (s *SettlementService) Sync(ctx context.Context) (SettlementReport, error) {
	var report SettlementReport

	accepted, err := s.bets.Query(ctx, domain.BetFilter{
		Wallet:   s.wallet,
		Statuses: []domain.BetStatus{domain.BetStatusAccepted},
	})
	if err != nil {
		return report, fmt.Errorf("settlement_service: query accepted bets: %w", err)
	}

	for _, b := range accepted {
		if !b.HasChainIDs() {
			continue
		}
		report.Scanned++

		chainBet, err := s.feed.FetchBet(ctx, b.BetID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// The subgraph may lag the chain; try again next pass.
				continue
			}
			s.logger.Warn("feed lookup failed",
				slog.String("local_id", b.LocalID),
				slog.String("bet_id", b.BetID),
				slog.String("error", err.Error()))
			continue
		}

		switch chainBet.Status {
		case domain.ChainBetResolved:
			if err := s.settle(ctx, b, chainBet); err != nil {
				s.logger.Error("settle failed",
					slog.String("local_id", b.LocalID),
					slog.String("error", err.Error()))
				continue
			}
			report.Settled++

		case domain.ChainBetCanceled:
			if err := s.cancel(ctx, b); err != nil {
				s.logger.Error("cancel failed",
					slog.String("local_id", b.LocalID),
					slog.String("error", err.Error()))
				continue
			}
			report.Canceled++
		}
	}

	s.logger.Info("settlement sync complete",
		slog.Int("scanned", report.Scanned),
		slog.Int("settled", report.Settled),
		slog.Int("canceled", report.Canceled))
	return report, nil
}

func (s *SettlementService) settle(ctx context.Context, b domain.BetAttempt, chainBet domain.ChainBet) error {
	result := domain.BetResultLost
	payout := ""
	if strings.EqualFold(chainBet.Result, "Won") {
		result = domain.BetResultWon
		payout = chainBet.Payout
	}

	if err := s.bets.UpdateStatus(ctx, b.LocalID, domain.BetStatusSettled, result, payout); err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}

	s.publishEvent(ctx, "settled", map[string]string{
		"local_id": b.LocalID,
		"bet_id":   b.BetID,
		"result":   string(result),
		"payout":   payout,
	})
	s.auditLog(ctx, "bet_settled", map[string]any{
		"local_id": b.LocalID,
		"bet_id":   b.BetID,
		"result":   string(result),
		"payout":   payout,
	})
	return nil
}

func (s *SettlementService) cancel(ctx context.Context, b domain.BetAttempt) error {
	if err := s.bets.UpdateStatus(ctx, b.LocalID, domain.BetStatusCanceled, domain.BetResultCanceled, ""); err != nil {
		return fmt.Errorf("mark canceled: %w", err)
	}

	s.publishEvent(ctx, "settled", map[string]string{
		"local_id": b.LocalID,
		"bet_id":   b.BetID,
		"result":   string(domain.BetResultCanceled),
	})
	s.auditLog(ctx, "bet_canceled", map[string]any{
		"local_id": b.LocalID,
		"bet_id":   b.BetID,
	})
	return nil
}

func (s *SettlementService) publishEvent(ctx context.Context, event string, fields map[string]string) {
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

func (s *SettlementService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.Warn("audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}
