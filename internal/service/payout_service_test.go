package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/azubet/azubet/internal/domain"
)

type fakeEngine struct {
	payout      *big.Int
	txHash      string
	withdrawErr error
	gotBetID    *big.Int

	stuck    int
	stuckErr error
}

func (e *fakeEngine) WithdrawPayout(ctx context.Context, lp, azuroBet, token common.Address, betID *big.Int) (*big.Int, string, error) {
	e.gotBetID = betID
	if e.withdrawErr != nil {
		return nil, "", e.withdrawErr
	}
	return e.payout, e.txHash, nil
}

func (e *fakeEngine) CancelStuck(ctx context.Context) (int, error) {
	return e.stuck, e.stuckErr
}

func settledWon(localID, betID, payout string) domain.BetAttempt {
	now := time.Now().UTC()
	return domain.BetAttempt{
		LocalID:   localID,
		Wallet:    testWallet,
		BetID:     betID,
		TxHash:    "0x" + betID,
		Amount:    "10000000",
		Status:    domain.BetStatusSettled,
		Result:    domain.BetResultWon,
		Payout:    payout,
		CreatedAt: now.Add(-time.Hour),
		SettledAt: &now,
	}
}

func newPayoutService(store *memBetStore, engine *fakeEngine, locks *fakeLocks, bus *memBus) *PayoutService {
	return NewPayoutService(store, &memAudit{}, locks, bus, engine, PayoutConfig{
		LPAddress:       "0x0000000000000000000000000000000000000001",
		AzuroBetAddress: "0x0000000000000000000000000000000000000002",
		TokenAddress:    "0x0000000000000000000000000000000000000003",
		LockTTL:         time.Minute,
	}, testLogger())
}

func TestWithdrawSettledWon(t *testing.T) {
	store := newMemBetStore(settledWon("local-1", "42", "19000000"))
	engine := &fakeEngine{payout: big.NewInt(19_500_000), txHash: "0xwithdraw"}
	bus := newMemBus()

	svc := newPayoutService(store, engine, &fakeLocks{}, bus)
	res, err := svc.Withdraw(context.Background(), "local-1")
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if res.Payout != "19500000" || res.TxHash != "0xwithdraw" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if engine.gotBetID.String() != "42" {
		t.Fatalf("bet id passed to engine = %s, want 42", engine.gotBetID)
	}

	// The receipt amount overrides the feed's quote.
	rec, _ := store.GetByLocalID(context.Background(), "local-1")
	if rec.Payout != "19500000" {
		t.Fatalf("payout not re-stamped: %q", rec.Payout)
	}
	if bus.published("bets") != 1 {
		t.Fatal("withdrawal event not published")
	}
}

func TestWithdrawCanceledBetRefund(t *testing.T) {
	canceled := settledWon("local-2", "43", "")
	canceled.Status = domain.BetStatusCanceled
	canceled.Result = domain.BetResultCanceled

	store := newMemBetStore(canceled)
	engine := &fakeEngine{payout: big.NewInt(10_000_000), txHash: "0xrefund"}

	svc := newPayoutService(store, engine, &fakeLocks{}, newMemBus())
	res, err := svc.Withdraw(context.Background(), "local-2")
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if res.Payout != "10000000" {
		t.Fatalf("refund = %s, want stake back", res.Payout)
	}
}

func TestWithdrawRejectsIneligibleStates(t *testing.T) {
	lost := settledWon("local-lost", "44", "")
	lost.Result = domain.BetResultLost

	pending := settledWon("local-pending", "45", "")
	pending.Status = domain.BetStatusPending
	pending.Result = ""

	noChain := settledWon("local-nochain", "", "")
	noChain.TxHash = ""

	store := newMemBetStore(lost, pending, noChain)
	svc := newPayoutService(store, &fakeEngine{}, &fakeLocks{}, newMemBus())

	for _, id := range []string{"local-lost", "local-pending", "local-nochain", "local-missing"} {
		if _, err := svc.Withdraw(context.Background(), id); err == nil {
			t.Errorf("withdraw %s should fail", id)
		}
	}
}

func TestWithdrawEngineFailure(t *testing.T) {
	store := newMemBetStore(settledWon("local-3", "46", "100"))
	engine := &fakeEngine{withdrawErr: errors.New("execution reverted")}

	svc := newPayoutService(store, engine, &fakeLocks{}, newMemBus())
	if _, err := svc.Withdraw(context.Background(), "local-3"); err == nil {
		t.Fatal("engine failure must surface")
	}

	// Ledger payout stays at the feed's quote.
	rec, _ := store.GetByLocalID(context.Background(), "local-3")
	if rec.Payout != "100" {
		t.Fatalf("payout must not change on failure: %q", rec.Payout)
	}
}

func TestWithdrawHoldsWalletLock(t *testing.T) {
	store := newMemBetStore(settledWon("local-4", "47", ""))
	locks := &fakeLocks{held: true}

	svc := newPayoutService(store, &fakeEngine{}, locks, newMemBus())
	if _, err := svc.Withdraw(context.Background(), "local-4"); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
}

func TestCancelStuck(t *testing.T) {
	engine := &fakeEngine{stuck: 3}
	svc := newPayoutService(newMemBetStore(), engine, &fakeLocks{}, newMemBus())

	resolved, err := svc.CancelStuck(context.Background())
	if err != nil {
		t.Fatalf("CancelStuck: %v", err)
	}
	if resolved != 3 {
		t.Fatalf("resolved = %d, want 3", resolved)
	}
}

func TestCancelStuckRequiresLock(t *testing.T) {
	svc := newPayoutService(newMemBetStore(), &fakeEngine{}, &fakeLocks{held: true}, newMemBus())
	if _, err := svc.CancelStuck(context.Background()); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
}
