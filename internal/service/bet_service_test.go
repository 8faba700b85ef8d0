package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/azubet/azubet/internal/azuro"
	"github.com/azubet/azubet/internal/bet"
	"github.com/azubet/azubet/internal/crypto"
	"github.com/azubet/azubet/internal/domain"
)

const testWallet = "0x00000000000000000000000000000000000000bb"

type fakeSigner struct {
	err error
}

func (f *fakeSigner) SignSingleBet(dom crypto.BetDomain, p crypto.SingleBetPayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "0xsig", nil
}

func (f *fakeSigner) SignComboBet(dom crypto.BetDomain, p crypto.ComboBetPayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "0xsig", nil
}

type fakeRelayer struct {
	orderID    string
	submitErr  error
	singleReqs []azuro.SingleOrderRequest
	comboReqs  []azuro.ComboOrderRequest
}

func (f *fakeRelayer) SubmitSingle(ctx context.Context, req azuro.SingleOrderRequest) (string, error) {
	f.singleReqs = append(f.singleReqs, req)
	return f.orderID, f.submitErr
}

func (f *fakeRelayer) SubmitCombo(ctx context.Context, req azuro.ComboOrderRequest) (string, error) {
	f.comboReqs = append(f.comboReqs, req)
	return f.orderID, f.submitErr
}

type fakePoller struct {
	result bet.PollResult
	err    error
}

func (f *fakePoller) Await(ctx context.Context, orderID string) (bet.PollResult, error) {
	return f.result, f.err
}

type betServiceFixture struct {
	svc     *BetService
	store   *memBetStore
	audit   *memAudit
	bus     *memBus
	locks   *fakeLocks
	limiter *fakeLimiter
	relayer *fakeRelayer
	poller  *fakePoller

	allowanceCalls int
	allowanceErr   error
}

func newBetServiceFixture(t *testing.T) *betServiceFixture {
	t.Helper()

	builder, err := bet.NewBuilder("0x00000000000000000000000000000000000000aa", 5, time.Minute)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	f := &betServiceFixture{
		store:   newMemBetStore(),
		audit:   &memAudit{},
		bus:     newMemBus(),
		locks:   &fakeLocks{},
		limiter: &fakeLimiter{},
		relayer: &fakeRelayer{orderID: "ord-1"},
		poller: &fakePoller{result: bet.PollResult{Order: azuro.Order{
			ID:     "ord-1",
			State:  azuro.OrderStateAccepted,
			BetID:  "42",
			TxHash: "0xbeef",
		}}},
	}

	f.svc = NewBetService(
		f.store, f.audit, f.locks, f.limiter, f.bus,
		builder, f.poller, f.relayer, &fakeSigner{},
		func(ctx context.Context, amount string) error {
			f.allowanceCalls++
			return f.allowanceErr
		},
		BetConfig{
			Wallet:    testWallet,
			LockTTL:   time.Minute,
			MinBetGap: time.Second,
		},
		testLogger(),
	)
	return f
}

func singleRequest() BetRequest {
	return BetRequest{
		Selections: []domain.Selection{{ConditionID: "cond-1", OutcomeID: "29", Odds: 2.0}},
		Amount:     "10000000",
	}
}

func TestPlaceBetAccepted(t *testing.T) {
	f := newBetServiceFixture(t)

	resp, err := f.svc.PlaceBet(context.Background(), singleRequest())
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if resp.Status != domain.BetStatusAccepted {
		t.Fatalf("status = %s, want accepted", resp.Status)
	}
	if resp.BetID != "42" || resp.TxHash != "0xbeef" || resp.OrderID != "ord-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	rec, ok := f.store.single()
	if !ok {
		t.Fatal("exactly one ledger record expected")
	}
	if rec.Status != domain.BetStatusAccepted || !rec.HasChainIDs() {
		t.Fatalf("ledger record: %+v", rec)
	}
	if rec.OrderID != "ord-1" {
		t.Fatalf("order id = %s", rec.OrderID)
	}
	if f.allowanceCalls != 1 {
		t.Fatalf("allowance calls = %d, want 1", f.allowanceCalls)
	}
	if f.bus.published("bets") == 0 {
		t.Fatal("acceptance event not published")
	}
}

func TestPlaceBetComboUsesComboEndpoint(t *testing.T) {
	f := newBetServiceFixture(t)

	resp, err := f.svc.PlaceBet(context.Background(), BetRequest{
		Selections: []domain.Selection{
			{ConditionID: "cond-1", OutcomeID: "29", Odds: 1.5},
			{ConditionID: "cond-2", OutcomeID: "31", Odds: 2.0},
		},
		Amount: "25000000",
	})
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if resp.Status != domain.BetStatusAccepted {
		t.Fatalf("status = %s", resp.Status)
	}
	if len(f.relayer.comboReqs) != 1 || len(f.relayer.singleReqs) != 0 {
		t.Fatalf("combo must use the combo endpoint: %d combo, %d single",
			len(f.relayer.comboReqs), len(f.relayer.singleReqs))
	}

	rec, _ := f.store.single()
	if rec.Odds != 3.0 {
		t.Fatalf("recorded odds = %v, want product 3.0", rec.Odds)
	}
}

func TestPlaceBetInvalidSelectionLeavesNoRecord(t *testing.T) {
	f := newBetServiceFixture(t)

	_, err := f.svc.PlaceBet(context.Background(), BetRequest{
		Selections: []domain.Selection{{ConditionID: "cond-1", OutcomeID: "29", Odds: 0.9}},
		Amount:     "100",
	})
	if !errors.Is(err, domain.ErrInvalidSelection) {
		t.Fatalf("err = %v, want ErrInvalidSelection", err)
	}
	if f.store.count() != 0 {
		t.Fatal("validation failure must not leave a ledger record")
	}
	if f.allowanceCalls != 0 {
		t.Fatal("validation failure must not touch the allowance")
	}
}

func TestPlaceBetSigningFailureLeavesNoRecord(t *testing.T) {
	f := newBetServiceFixture(t)
	builder, _ := bet.NewBuilder("0xaa", 5, time.Minute)
	f.svc = NewBetService(
		f.store, f.audit, f.locks, f.limiter, f.bus,
		builder, f.poller, f.relayer, &fakeSigner{err: errors.New("hsm offline")},
		func(ctx context.Context, amount string) error { return nil },
		BetConfig{Wallet: testWallet, LockTTL: time.Minute, MinBetGap: time.Second},
		testLogger(),
	)

	_, err := f.svc.PlaceBet(context.Background(), singleRequest())
	if !errors.Is(err, domain.ErrSigningFailed) {
		t.Fatalf("err = %v, want ErrSigningFailed", err)
	}
	if f.store.count() != 0 {
		t.Fatal("signing failure must not leave a ledger record")
	}
}

func TestPlaceBetRelayerRejection(t *testing.T) {
	f := newBetServiceFixture(t)
	f.relayer.submitErr = fmt.Errorf("azuro/relayer: %w: odds too low", domain.ErrRelayerRejected)

	resp, err := f.svc.PlaceBet(context.Background(), singleRequest())
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if resp.Status != domain.BetStatusRejected {
		t.Fatalf("status = %s, want rejected", resp.Status)
	}
	if !strings.Contains(resp.Reason, "odds too low") {
		t.Fatalf("rejection reason not surfaced: %q", resp.Reason)
	}

	rec, _ := f.store.single()
	if rec.Status != domain.BetStatusRejected {
		t.Fatalf("ledger record: %+v", rec)
	}
}

func TestPlaceBetNetworkFailureStaysPending(t *testing.T) {
	f := newBetServiceFixture(t)
	f.relayer.submitErr = errors.New("connection reset by peer")

	resp, err := f.svc.PlaceBet(context.Background(), singleRequest())
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if resp.Status != domain.BetStatusPending {
		t.Fatalf("status = %s, want pending", resp.Status)
	}

	rec, _ := f.store.single()
	if rec.Status != domain.BetStatusPending {
		t.Fatalf("ambiguous failure must stay pending: %+v", rec)
	}
}

func TestPlaceBetMissingOrderIDStaysPending(t *testing.T) {
	f := newBetServiceFixture(t)
	f.relayer.submitErr = domain.ErrMissingOrderID

	resp, err := f.svc.PlaceBet(context.Background(), singleRequest())
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if resp.Status != domain.BetStatusPending {
		t.Fatalf("status = %s, want pending", resp.Status)
	}
}

func TestPlaceBetPollTimeoutRevertsToPending(t *testing.T) {
	f := newBetServiceFixture(t)
	f.poller.result = bet.PollResult{TimedOut: true}

	resp, err := f.svc.PlaceBet(context.Background(), singleRequest())
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if resp.Status != domain.BetStatusPending {
		t.Fatalf("status = %s, want pending after timeout", resp.Status)
	}

	rec, _ := f.store.single()
	if rec.Status != domain.BetStatusPending {
		t.Fatalf("record must revert to pending, got %s", rec.Status)
	}

	found := false
	for _, e := range f.audit.events() {
		if e == "bet_poll_timeout" {
			found = true
		}
	}
	if !found {
		t.Fatal("poll timeout must be audited")
	}
}

func TestPlaceBetOrderRejectedAfterPoll(t *testing.T) {
	f := newBetServiceFixture(t)
	f.poller.result = bet.PollResult{Order: azuro.Order{
		ID:           "ord-1",
		State:        azuro.OrderStateRejected,
		ErrorMessage: "condition stopped",
	}}

	resp, err := f.svc.PlaceBet(context.Background(), singleRequest())
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if resp.Status != domain.BetStatusRejected || resp.Reason != "condition stopped" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPlaceBetAllowanceFailureFailsRecord(t *testing.T) {
	f := newBetServiceFixture(t)
	f.allowanceErr = errors.New("approve tx reverted")

	_, err := f.svc.PlaceBet(context.Background(), singleRequest())
	if err == nil {
		t.Fatal("allowance failure must surface")
	}

	rec, ok := f.store.single()
	if !ok {
		t.Fatal("record must exist; it was created before the allowance check")
	}
	if rec.Status != domain.BetStatusFailed {
		t.Fatalf("status = %s, want failed (nothing was submitted)", rec.Status)
	}
}

func TestPlaceBetWalletBusy(t *testing.T) {
	f := newBetServiceFixture(t)
	f.locks.held = true

	_, err := f.svc.PlaceBet(context.Background(), singleRequest())
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
	if f.store.count() != 0 {
		t.Fatal("no record while wallet is busy")
	}
}

func TestPlaceBetRateLimited(t *testing.T) {
	f := newBetServiceFixture(t)
	f.limiter.deny = true

	_, err := f.svc.PlaceBet(context.Background(), singleRequest())
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if f.store.count() != 0 {
		t.Fatal("no record when rate limited")
	}
}
