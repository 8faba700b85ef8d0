package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/azubet/azubet/internal/domain"
)

// memStore is an in-memory BetStore for reconciliation tests. It enforces the
// lifecycle the same way the Postgres store does, so tests exercise the real
// transition rules.
type memStore struct {
	bets map[string]*domain.BetAttempt
}

func newMemStore(attempts ...domain.BetAttempt) *memStore {
	s := &memStore{bets: make(map[string]*domain.BetAttempt)}
	for i := range attempts {
		b := attempts[i]
		s.bets[b.LocalID] = &b
	}
	return s
}

func (s *memStore) Create(ctx context.Context, attempt domain.BetAttempt) error {
	if _, ok := s.bets[attempt.LocalID]; ok {
		return domain.ErrAlreadyExists
	}
	b := attempt
	s.bets[b.LocalID] = &b
	return nil
}

func (s *memStore) GetByLocalID(ctx context.Context, localID string) (domain.BetAttempt, error) {
	b, ok := s.bets[localID]
	if !ok {
		return domain.BetAttempt{}, domain.ErrNotFound
	}
	return *b, nil
}

func (s *memStore) GetByBetID(ctx context.Context, betID string) (domain.BetAttempt, error) {
	for _, b := range s.bets {
		if b.BetID == betID {
			return *b, nil
		}
	}
	return domain.BetAttempt{}, domain.ErrNotFound
}

func (s *memStore) UpdateStatus(ctx context.Context, localID string, status domain.BetStatus, result domain.BetResult, payout string) error {
	b, ok := s.bets[localID]
	if !ok {
		return domain.ErrNotFound
	}
	if !domain.CanTransition(b.Status, status) {
		return domain.ErrIllegalTransition
	}
	b.Status = status
	if result != "" {
		b.Result = result
	}
	if payout != "" {
		b.Payout = payout
	}
	return nil
}

func (s *memStore) SetOrderID(ctx context.Context, localID, orderID string) error {
	b, ok := s.bets[localID]
	if !ok {
		return domain.ErrNotFound
	}
	b.OrderID = orderID
	return nil
}

func (s *memStore) AssignChainIDs(ctx context.Context, localID, betID, txHash string) error {
	b, ok := s.bets[localID]
	if !ok {
		return domain.ErrNotFound
	}
	if b.BetID != "" && (b.BetID != betID || b.TxHash != txHash) {
		return domain.ErrChainIDConflict
	}
	b.BetID = betID
	b.TxHash = txHash
	return nil
}

func (s *memStore) Recover(ctx context.Context, localID, betID, txHash string, status domain.BetStatus) error {
	b, ok := s.bets[localID]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Status != domain.BetStatusFailed || b.Result != domain.BetResultGhostCleanup {
		return domain.ErrIllegalTransition
	}
	b.BetID = betID
	b.TxHash = txHash
	b.Status = status
	b.Result = ""
	return nil
}

func (s *memStore) Query(ctx context.Context, f domain.BetFilter) ([]domain.BetAttempt, error) {
	var out []domain.BetAttempt
	for _, b := range s.bets {
		if f.Wallet != "" && b.Wallet != f.Wallet {
			continue
		}
		if len(f.Statuses) > 0 {
			ok := false
			for _, st := range f.Statuses {
				if b.Status == st {
					ok = true
					break
				}
			}
			if !ok {
				continue
			}
		}
		if f.Result != "" && b.Result != f.Result {
			continue
		}
		if f.WithoutChain && (b.BetID != "" || b.TxHash != "") {
			continue
		}
		if f.Before != nil && !b.CreatedAt.Before(*f.Before) {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (s *memStore) ListBefore(ctx context.Context, before time.Time) ([]domain.BetAttempt, error) {
	return nil, nil
}

type fakeFeed struct {
	bets []domain.ChainBet
	err  error
}

func (f *fakeFeed) FetchBetsByBettor(ctx context.Context, bettor string, since, until time.Time) ([]domain.ChainBet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bets, nil
}

const wallet = "0x00000000000000000000000000000000000000bb"

func staleAttempt(localID, condition, outcome, amount string) domain.BetAttempt {
	return domain.BetAttempt{
		LocalID: localID,
		Wallet:  wallet,
		Amount:  amount,
		Selections: []domain.Selection{
			{ConditionID: condition, OutcomeID: outcome, Odds: 2.0},
		},
		Status:    domain.BetStatusPending,
		CreatedAt: time.Now().Add(-time.Hour),
	}
}

func newTestReconciler(store domain.BetStore, feed FeedSource) *Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, nil, feed, wallet, Config{
		StaleAge:           5 * time.Minute,
		Lookback:           24 * time.Hour,
		AmountTolerancePct: 5,
	}, logger)
}

func TestRunAdoptsMatch(t *testing.T) {
	store := newMemStore(staleAttempt("local-1", "cond-1", "29", "10000000"))
	feed := &fakeFeed{bets: []domain.ChainBet{{
		BetID:  "42",
		TxHash: "0xbeef",
		Bettor: wallet,
		Amount: "10000000",
		Legs:   []domain.ChainBetLeg{{ConditionID: "cond-1", OutcomeID: "29"}},
		Status: domain.ChainBetAccepted,
	}}}

	report, err := newTestReconciler(store, feed).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Scanned != 1 || report.Matched != 1 || report.CleanedUp != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rec, _ := store.GetByLocalID(context.Background(), "local-1")
	if rec.Status != domain.BetStatusAccepted {
		t.Fatalf("status = %s, want accepted", rec.Status)
	}
	if rec.BetID != "42" || rec.TxHash != "0xbeef" {
		t.Fatalf("chain ids not assigned: %+v", rec)
	}
}

func TestRunScansProcessingRows(t *testing.T) {
	// A crash between submit and the status write strands a row in
	// processing. It must be reconciled like a pending one.
	stranded := staleAttempt("local-p1", "cond-1", "29", "10000000")
	stranded.Status = domain.BetStatusProcessing
	matched := staleAttempt("local-p2", "cond-2", "30", "5000000")
	matched.Status = domain.BetStatusProcessing

	store := newMemStore(stranded, matched)
	feed := &fakeFeed{bets: []domain.ChainBet{{
		BetID:  "90",
		TxHash: "0xdddd",
		Bettor: wallet,
		Amount: "5000000",
		Legs:   []domain.ChainBetLeg{{ConditionID: "cond-2", OutcomeID: "30"}},
		Status: domain.ChainBetAccepted,
	}}}

	report, err := newTestReconciler(store, feed).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Scanned != 2 || report.Matched != 1 || report.CleanedUp != 1 {
		t.Fatalf("processing rows not reconciled: %+v", report)
	}

	rec, _ := store.GetByLocalID(context.Background(), "local-p1")
	if rec.Status != domain.BetStatusFailed || rec.Result != domain.BetResultGhostCleanup {
		t.Fatalf("stranded processing row not cleaned up: %+v", rec)
	}
	rec, _ = store.GetByLocalID(context.Background(), "local-p2")
	if rec.Status != domain.BetStatusAccepted || rec.BetID != "90" {
		t.Fatalf("matched processing row not adopted: %+v", rec)
	}
}

func TestRunCleansUpUnmatched(t *testing.T) {
	store := newMemStore(staleAttempt("local-2", "cond-1", "29", "10000000"))
	feed := &fakeFeed{} // nothing on-chain

	report, err := newTestReconciler(store, feed).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.CleanedUp != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rec, _ := store.GetByLocalID(context.Background(), "local-2")
	if rec.Status != domain.BetStatusFailed || rec.Result != domain.BetResultGhostCleanup {
		t.Fatalf("record not cleaned up: %+v", rec)
	}
}

func TestRunFeedErrorAbortsWithoutWrites(t *testing.T) {
	store := newMemStore(staleAttempt("local-3", "cond-1", "29", "10000000"))
	feed := &fakeFeed{err: errors.New("subgraph down")}

	_, err := newTestReconciler(store, feed).Run(context.Background())
	if err == nil {
		t.Fatal("feed failure must abort the pass")
	}

	rec, _ := store.GetByLocalID(context.Background(), "local-3")
	if rec.Status != domain.BetStatusPending {
		t.Fatalf("ledger touched despite feed failure: %+v", rec)
	}
}

func TestRunSkipsClaimedChainBets(t *testing.T) {
	// Two stale records, one chain bet: only one may adopt it.
	store := newMemStore(
		staleAttempt("local-a", "cond-1", "29", "10000000"),
		staleAttempt("local-b", "cond-1", "29", "10000000"),
	)
	feed := &fakeFeed{bets: []domain.ChainBet{{
		BetID:  "77",
		TxHash: "0xfeed",
		Bettor: wallet,
		Amount: "10000000",
		Legs:   []domain.ChainBetLeg{{ConditionID: "cond-1", OutcomeID: "29"}},
		Status: domain.ChainBetAccepted,
	}}}

	report, err := newTestReconciler(store, feed).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Matched != 1 || report.CleanedUp != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunIgnoresChainBetsAlreadyTied(t *testing.T) {
	tied := staleAttempt("local-tied", "cond-1", "29", "10000000")
	tied.BetID = "42"
	tied.TxHash = "0xbeef"
	tied.Status = domain.BetStatusAccepted

	store := newMemStore(tied, staleAttempt("local-new", "cond-2", "30", "5000000"))
	feed := &fakeFeed{bets: []domain.ChainBet{{
		BetID:  "42", // already claimed by local-tied
		TxHash: "0xbeef",
		Bettor: wallet,
		Amount: "5000000",
		Legs:   []domain.ChainBetLeg{{ConditionID: "cond-2", OutcomeID: "30"}},
		Status: domain.ChainBetAccepted,
	}}}

	report, err := newTestReconciler(store, feed).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The only chain bet is already tied to a record, so local-new is a ghost.
	if report.Matched != 0 || report.CleanedUp != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunSingleRequiresOutcomeMatch(t *testing.T) {
	store := newMemStore(staleAttempt("local-4", "cond-1", "29", "10000000"))
	feed := &fakeFeed{bets: []domain.ChainBet{{
		BetID:  "50",
		TxHash: "0xaaaa",
		Bettor: wallet,
		Amount: "10000000",
		Legs:   []domain.ChainBetLeg{{ConditionID: "cond-1", OutcomeID: "30"}}, // other outcome
		Status: domain.ChainBetAccepted,
	}}}

	report, err := newTestReconciler(store, feed).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Matched != 0 || report.CleanedUp != 1 {
		t.Fatalf("single bet with differing outcome must not match: %+v", report)
	}
}

func TestAdoptStatusFollowsChainState(t *testing.T) {
	cases := []struct {
		name   string
		status domain.ChainBetStatus
		want   domain.BetStatus
	}{
		{"accepted", domain.ChainBetAccepted, domain.BetStatusAccepted},
		{"resolved", domain.ChainBetResolved, domain.BetStatusAccepted},
		{"canceled", domain.ChainBetCanceled, domain.BetStatusAccepted},
		{"unknown", domain.ChainBetStatus("Indexing"), domain.BetStatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore(staleAttempt("local-s", "cond-1", "29", "10000000"))
			feed := &fakeFeed{bets: []domain.ChainBet{{
				BetID:  "80",
				TxHash: "0xeeee",
				Bettor: wallet,
				Amount: "10000000",
				Legs:   []domain.ChainBetLeg{{ConditionID: "cond-1", OutcomeID: "29"}},
				Status: tc.status,
			}}}

			report, err := newTestReconciler(store, feed).Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if report.Matched != 1 {
				t.Fatalf("unexpected report: %+v", report)
			}

			rec, _ := store.GetByLocalID(context.Background(), "local-s")
			if rec.Status != tc.want {
				t.Fatalf("status = %s, want %s", rec.Status, tc.want)
			}
			if rec.BetID != "80" {
				t.Fatalf("chain ids not assigned: %+v", rec)
			}
		})
	}
}

func TestRecoverRestoresStrictMatch(t *testing.T) {
	ghost := staleAttempt("local-5", "cond-1", "29", "10000000")
	ghost.Status = domain.BetStatusFailed
	ghost.Result = domain.BetResultGhostCleanup

	store := newMemStore(ghost)
	feed := &fakeFeed{bets: []domain.ChainBet{{
		BetID:  "60",
		TxHash: "0xbbbb",
		Bettor: wallet,
		Amount: "10000000",
		Legs:   []domain.ChainBetLeg{{ConditionID: "cond-1", OutcomeID: "29"}},
		Status: domain.ChainBetAccepted,
	}}}

	report, err := newTestReconciler(store, feed).Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.Recovered != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rec, _ := store.GetByLocalID(context.Background(), "local-5")
	if rec.Status != domain.BetStatusAccepted || rec.Result != "" {
		t.Fatalf("ghost not restored: %+v", rec)
	}
	if rec.BetID != "60" || rec.TxHash != "0xbbbb" {
		t.Fatalf("chain ids not assigned on recovery: %+v", rec)
	}
}

func TestRecoverStrictOutcomeMismatchLeavesGhost(t *testing.T) {
	ghost := domain.BetAttempt{
		LocalID: "local-6",
		Wallet:  wallet,
		Amount:  "10000000",
		Selections: []domain.Selection{
			{ConditionID: "cond-1", OutcomeID: "29", Odds: 1.5},
			{ConditionID: "cond-2", OutcomeID: "31", Odds: 2.0},
		},
		Status:    domain.BetStatusFailed,
		Result:    domain.BetResultGhostCleanup,
		CreatedAt: time.Now().Add(-time.Hour),
	}

	store := newMemStore(ghost)
	feed := &fakeFeed{bets: []domain.ChainBet{{
		BetID:  "61",
		TxHash: "0xcccc",
		Bettor: wallet,
		Amount: "10000000",
		Legs: []domain.ChainBetLeg{
			{ConditionID: "cond-1", OutcomeID: "29"},
			{ConditionID: "cond-2", OutcomeID: "32"}, // outcome differs
		},
		Status: domain.ChainBetAccepted,
	}}}

	report, err := newTestReconciler(store, feed).Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.Recovered != 0 {
		t.Fatalf("strict pass must require exact outcomes: %+v", report)
	}

	rec, _ := store.GetByLocalID(context.Background(), "local-6")
	if rec.Status != domain.BetStatusFailed {
		t.Fatalf("ghost must stay failed: %+v", rec)
	}
}

func TestAmountWithinTolerance(t *testing.T) {
	cases := []struct {
		a, b string
		pct  float64
		want bool
	}{
		{"10000000", "10000000", 5, true},
		{"10500000", "10000000", 5, true},  // exactly at the bound
		{"10500001", "10000000", 5, false}, // one past the bound
		{"9500000", "10000000", 5, true},
		{"9499999", "10000000", 5, false},
		{"10000000", "10000000", 0, true},
		{"10000001", "10000000", 0, false},
		{"abc", "10000000", 5, false},
		{"10000000", "", 5, false},
	}
	for _, tc := range cases {
		if got := amountWithinTolerance(tc.a, tc.b, tc.pct); got != tc.want {
			t.Errorf("amountWithinTolerance(%q, %q, %v) = %v, want %v", tc.a, tc.b, tc.pct, got, tc.want)
		}
	}
}
