// Package reconcile resolves ghost bets: ledger records whose submission
// outcome was lost, matched against the bets actually observed on-chain.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/azubet/azubet/internal/domain"
)

// FeedSource queries the on-chain bet history for a wallet. Satisfied by
// *azuro.FeedClient.
type FeedSource interface {
	FetchBetsByBettor(ctx context.Context, bettor string, since, until time.Time) ([]domain.ChainBet, error)
}

// Config tunes the reconciliation passes.
type Config struct {
	// StaleAge is how long a pending record without chain ids must sit
	// before it is treated as a ghost candidate.
	StaleAge time.Duration
	// Lookback bounds the on-chain history window fetched from the feed.
	Lookback time.Duration
	// AmountTolerancePct is the allowed relative difference between the
	// ledger amount and the on-chain amount, in percent.
	AmountTolerancePct float64
}

// Report summarizes one reconciliation pass.
type Report struct {
	Scanned   int `json:"scanned"`
	Matched   int `json:"matched"`
	CleanedUp int `json:"cleanedUp"`
	Recovered int `json:"recovered"`
}

// Reconciler matches stale ledger records against on-chain bets. The normal
// pass adopts matches and marks the rest as cleaned-up ghosts; the recovery
// pass re-examines cleaned-up ghosts under stricter matching in case the
// feed was lagging when they were written off.
type Reconciler struct {
	store  domain.BetStore
	audit  domain.AuditStore
	feed   FeedSource
	wallet string
	cfg    Config
	logger *slog.Logger
}

// New creates a Reconciler for the given wallet.
func New(store domain.BetStore, audit domain.AuditStore, feed FeedSource, wallet string, cfg Config, logger *slog.Logger) *Reconciler {
	if cfg.StaleAge <= 0 {
		cfg.StaleAge = 5 * time.Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.AmountTolerancePct <= 0 {
		cfg.AmountTolerancePct = 5
	}
	return &Reconciler{
		store:  store,
		audit:  audit,
		feed:   feed,
		wallet: wallet,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "reconciler")),
	}
}

// Run executes the normal reconciliation pass. All reads happen before any
// write: if the feed query fails the pass aborts without touching the
// ledger, so a flaky feed can never turn live bets into cleaned-up ghosts.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var report Report

	cutoff := time.Now().Add(-r.cfg.StaleAge)
	candidates, err := r.store.Query(ctx, domain.BetFilter{
		Wallet: r.wallet,
		// Processing rows are candidates too: a crash or canceled request
		// between submit and the status write leaves them stranded there.
		Statuses:     []domain.BetStatus{domain.BetStatusPending, domain.BetStatusProcessing},
		WithoutChain: true,
		Before:       &cutoff,
	})
	if err != nil {
		return report, fmt.Errorf("reconcile: query candidates: %w", err)
	}
	report.Scanned = len(candidates)
	if len(candidates) == 0 {
		return report, nil
	}

	chainBets, err := r.unclaimedChainBets(ctx)
	if err != nil {
		return report, err
	}

	claimed := make(map[string]bool, len(chainBets))
	for _, rec := range candidates {
		idx := r.findMatch(rec, chainBets, claimed, false)
		if idx < 0 {
			if err := r.store.UpdateStatus(ctx, rec.LocalID, domain.BetStatusFailed, domain.BetResultGhostCleanup, ""); err != nil {
				return report, fmt.Errorf("reconcile: cleanup %s: %w", rec.LocalID, err)
			}
			report.CleanedUp++
			r.auditLog(ctx, "ghost_cleanup", map[string]any{"local_id": rec.LocalID})
			r.logger.Info("ghost bet cleaned up", slog.String("local_id", rec.LocalID))
			continue
		}

		cb := chainBets[idx]
		if err := r.adopt(ctx, rec, cb); err != nil {
			return report, err
		}
		claimed[cb.BetID] = true
		report.Matched++
	}

	return report, nil
}

// Recover executes the strict recovery pass over records previously written
// off as ghosts. A record is restored only when amount, every condition, and
// every outcome line up with an unclaimed on-chain bet.
func (r *Reconciler) Recover(ctx context.Context) (Report, error) {
	var report Report

	ghosts, err := r.store.Query(ctx, domain.BetFilter{
		Wallet:   r.wallet,
		Statuses: []domain.BetStatus{domain.BetStatusFailed},
		Result:   domain.BetResultGhostCleanup,
	})
	if err != nil {
		return report, fmt.Errorf("reconcile: query ghosts: %w", err)
	}
	report.Scanned = len(ghosts)
	if len(ghosts) == 0 {
		return report, nil
	}

	chainBets, err := r.unclaimedChainBets(ctx)
	if err != nil {
		return report, err
	}

	claimed := make(map[string]bool, len(chainBets))
	for _, rec := range ghosts {
		idx := r.findMatch(rec, chainBets, claimed, true)
		if idx < 0 {
			continue
		}

		cb := chainBets[idx]
		if err := r.store.Recover(ctx, rec.LocalID, cb.BetID, cb.TxHash, domain.BetStatusAccepted); err != nil {
			return report, fmt.Errorf("reconcile: recover %s: %w", rec.LocalID, err)
		}
		claimed[cb.BetID] = true
		report.Recovered++
		r.auditLog(ctx, "ghost_recovered", map[string]any{
			"local_id": rec.LocalID,
			"bet_id":   cb.BetID,
		})
		r.logger.Info("ghost bet recovered",
			slog.String("local_id", rec.LocalID),
			slog.String("bet_id", cb.BetID))
	}

	return report, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// unclaimedChainBets fetches the wallet's on-chain bets for the lookback
// window and drops any already tied to a ledger record.
func (r *Reconciler) unclaimedChainBets(ctx context.Context) ([]domain.ChainBet, error) {
	now := time.Now()
	all, err := r.feed.FetchBetsByBettor(ctx, r.wallet, now.Add(-r.cfg.Lookback), now)
	if err != nil {
		return nil, fmt.Errorf("reconcile: fetch chain bets: %w", err)
	}

	unclaimed := make([]domain.ChainBet, 0, len(all))
	for _, cb := range all {
		if cb.BetID == "" {
			continue
		}
		_, err := r.store.GetByBetID(ctx, cb.BetID)
		if err == nil {
			continue // already tied to a record
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("reconcile: lookup bet %s: %w", cb.BetID, err)
		}
		unclaimed = append(unclaimed, cb)
	}
	return unclaimed, nil
}

// findMatch returns the index of the first unclaimed chain bet matching the
// record, or -1. strict additionally requires exact outcome agreement on
// every leg.
func (r *Reconciler) findMatch(rec domain.BetAttempt, chainBets []domain.ChainBet, claimed map[string]bool, strict bool) int {
	for i, cb := range chainBets {
		if claimed[cb.BetID] {
			continue
		}
		if r.matches(rec, cb, strict) {
			return i
		}
	}
	return -1
}

// matches applies the matching rules: amount within tolerance, the record's
// conditions contained in the chain bet's legs, and for singles (always, for
// combos only under strict) exact outcome agreement per condition.
func (r *Reconciler) matches(rec domain.BetAttempt, cb domain.ChainBet, strict bool) bool {
	if rec.IsCombo() != cb.IsCombo() {
		return false
	}
	if !amountWithinTolerance(rec.Amount, cb.Amount, r.cfg.AmountTolerancePct) {
		return false
	}

	legOutcomes := make(map[string]string, len(cb.Legs))
	for _, leg := range cb.Legs {
		legOutcomes[leg.ConditionID] = leg.OutcomeID
	}

	for _, sel := range rec.Selections {
		outcome, ok := legOutcomes[sel.ConditionID]
		if !ok {
			return false
		}
		if (strict || !rec.IsCombo()) && outcome != sel.OutcomeID {
			return false
		}
	}
	return true
}

// adopt ties a matched chain bet to the record. Accepted, Resolved, and
// Canceled chain bets all passed acceptance on-chain, so the record becomes
// accepted and the settlement sync converges the resolved ones; anything else
// the feed might report goes back to pending.
func (r *Reconciler) adopt(ctx context.Context, rec domain.BetAttempt, cb domain.ChainBet) error {
	if err := r.store.AssignChainIDs(ctx, rec.LocalID, cb.BetID, cb.TxHash); err != nil {
		return fmt.Errorf("reconcile: assign chain ids %s: %w", rec.LocalID, err)
	}
	status := domain.BetStatusPending
	switch cb.Status {
	case domain.ChainBetAccepted, domain.ChainBetResolved, domain.ChainBetCanceled:
		status = domain.BetStatusAccepted
	}
	if err := r.store.UpdateStatus(ctx, rec.LocalID, status, "", ""); err != nil {
		return fmt.Errorf("reconcile: adopt %s: %w", rec.LocalID, err)
	}
	r.auditLog(ctx, "ghost_matched", map[string]any{
		"local_id": rec.LocalID,
		"bet_id":   cb.BetID,
		"tx_hash":  cb.TxHash,
	})
	r.logger.Info("ghost bet matched on-chain",
		slog.String("local_id", rec.LocalID),
		slog.String("bet_id", cb.BetID))
	return nil
}

func (r *Reconciler) auditLog(ctx context.Context, event string, detail map[string]any) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Log(ctx, event, detail); err != nil {
		r.logger.Warn("audit log write failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

// amountWithinTolerance reports whether |a-b| <= b * pct/100, computed in
// integer basis points to keep token amounts exact.
func amountWithinTolerance(a, b string, pct float64) bool {
	av, okA := new(big.Int).SetString(a, 10)
	bv, okB := new(big.Int).SetString(b, 10)
	if !okA || !okB {
		return false
	}

	diff := new(big.Int).Sub(av, bv)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10_000))

	bound := new(big.Int).Mul(bv, big.NewInt(int64(pct*100)))
	return diff.Cmp(bound) <= 0
}
