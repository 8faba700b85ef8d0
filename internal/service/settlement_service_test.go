package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/azubet/azubet/internal/domain"
)

type fakeBetFeed struct {
	bets map[string]domain.ChainBet
	errs map[string]error
}

func (f *fakeBetFeed) FetchBet(ctx context.Context, betID string) (domain.ChainBet, error) {
	if err, ok := f.errs[betID]; ok {
		return domain.ChainBet{}, err
	}
	b, ok := f.bets[betID]
	if !ok {
		return domain.ChainBet{}, domain.ErrNotFound
	}
	return b, nil
}

func acceptedAttempt(localID, betID string) domain.BetAttempt {
	return domain.BetAttempt{
		LocalID:   localID,
		Wallet:    testWallet,
		BetID:     betID,
		TxHash:    "0x" + betID,
		Amount:    "10000000",
		Status:    domain.BetStatusAccepted,
		CreatedAt: time.Now().Add(-time.Hour),
	}
}

func TestSyncSettlesWonBet(t *testing.T) {
	store := newMemBetStore(acceptedAttempt("local-1", "42"))
	feed := &fakeBetFeed{bets: map[string]domain.ChainBet{
		"42": {BetID: "42", Status: domain.ChainBetResolved, Result: "Won", Payout: "19500000"},
	}}
	audit := &memAudit{}
	bus := newMemBus()

	svc := NewSettlementService(store, audit, bus, feed, testWallet, testLogger())
	report, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Scanned != 1 || report.Settled != 1 || report.Canceled != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rec, _ := store.GetByLocalID(context.Background(), "local-1")
	if rec.Status != domain.BetStatusSettled || rec.Result != domain.BetResultWon {
		t.Fatalf("record: %+v", rec)
	}
	if rec.Payout != "19500000" {
		t.Fatalf("payout = %s, want 19500000", rec.Payout)
	}
	if rec.SettledAt == nil {
		t.Fatal("settledAt must be stamped")
	}
	if bus.published("bets") != 1 {
		t.Fatal("settlement event not published")
	}
}

func TestSyncSettlesLostBetWithoutPayout(t *testing.T) {
	store := newMemBetStore(acceptedAttempt("local-2", "43"))
	feed := &fakeBetFeed{bets: map[string]domain.ChainBet{
		"43": {BetID: "43", Status: domain.ChainBetResolved, Result: "Lost"},
	}}

	svc := NewSettlementService(store, &memAudit{}, newMemBus(), feed, testWallet, testLogger())
	if _, err := svc.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	rec, _ := store.GetByLocalID(context.Background(), "local-2")
	if rec.Status != domain.BetStatusSettled || rec.Result != domain.BetResultLost {
		t.Fatalf("record: %+v", rec)
	}
	if rec.Payout != "" {
		t.Fatalf("lost bet must not carry a payout, got %q", rec.Payout)
	}
}

func TestSyncCancelsCanceledBet(t *testing.T) {
	store := newMemBetStore(acceptedAttempt("local-3", "44"))
	feed := &fakeBetFeed{bets: map[string]domain.ChainBet{
		"44": {BetID: "44", Status: domain.ChainBetCanceled},
	}}
	audit := &memAudit{}

	svc := NewSettlementService(store, audit, newMemBus(), feed, testWallet, testLogger())
	report, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Canceled != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rec, _ := store.GetByLocalID(context.Background(), "local-3")
	if rec.Status != domain.BetStatusCanceled || rec.Result != domain.BetResultCanceled {
		t.Fatalf("record: %+v", rec)
	}
}

func TestSyncLeavesUnresolvedAlone(t *testing.T) {
	store := newMemBetStore(acceptedAttempt("local-4", "45"))
	feed := &fakeBetFeed{bets: map[string]domain.ChainBet{
		"45": {BetID: "45", Status: domain.ChainBetAccepted},
	}}

	svc := NewSettlementService(store, &memAudit{}, newMemBus(), feed, testWallet, testLogger())
	report, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Settled != 0 || report.Canceled != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rec, _ := store.GetByLocalID(context.Background(), "local-4")
	if rec.Status != domain.BetStatusAccepted {
		t.Fatalf("unresolved bet must stay accepted: %+v", rec)
	}
}

func TestSyncContinuesPastFeedErrors(t *testing.T) {
	store := newMemBetStore(
		acceptedAttempt("local-5", "46"),
		acceptedAttempt("local-6", "47"),
	)
	feed := &fakeBetFeed{
		bets: map[string]domain.ChainBet{
			"47": {BetID: "47", Status: domain.ChainBetResolved, Result: "Won", Payout: "100"},
		},
		errs: map[string]error{"46": errors.New("subgraph down")},
	}

	svc := NewSettlementService(store, &memAudit{}, newMemBus(), feed, testWallet, testLogger())
	report, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Scanned != 2 || report.Settled != 1 {
		t.Fatalf("one feed error must not stop the pass: %+v", report)
	}
}

func TestSyncSkipsRecordsWithoutChainIDs(t *testing.T) {
	loose := acceptedAttempt("local-7", "")
	loose.TxHash = ""

	store := newMemBetStore(loose)
	svc := NewSettlementService(store, &memAudit{}, newMemBus(), &fakeBetFeed{}, testWallet, testLogger())

	report, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Scanned != 0 {
		t.Fatalf("records without chain ids must be skipped: %+v", report)
	}
}
