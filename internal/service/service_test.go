package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/azubet/azubet/internal/domain"
)

// Shared in-memory fakes for the service tests. The bet store enforces the
// same lifecycle rules as the Postgres implementation so the tests exercise
// real transition behavior.

type memBetStore struct {
	mu   sync.Mutex
	bets map[string]*domain.BetAttempt
}

func newMemBetStore(attempts ...domain.BetAttempt) *memBetStore {
	s := &memBetStore{bets: make(map[string]*domain.BetAttempt)}
	for i := range attempts {
		b := attempts[i]
		s.bets[b.LocalID] = &b
	}
	return s
}

func (s *memBetStore) Create(ctx context.Context, attempt domain.BetAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bets[attempt.LocalID]; ok {
		return domain.ErrAlreadyExists
	}
	b := attempt
	s.bets[b.LocalID] = &b
	return nil
}

func (s *memBetStore) GetByLocalID(ctx context.Context, localID string) (domain.BetAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[localID]
	if !ok {
		return domain.BetAttempt{}, domain.ErrNotFound
	}
	return *b, nil
}

func (s *memBetStore) GetByBetID(ctx context.Context, betID string) (domain.BetAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bets {
		if b.BetID == betID {
			return *b, nil
		}
	}
	return domain.BetAttempt{}, domain.ErrNotFound
}

func (s *memBetStore) UpdateStatus(ctx context.Context, localID string, status domain.BetStatus, result domain.BetResult, payout string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	if status == domain.BetStatusSettled || status == domain.BetStatusCanceled {
		now := time.Now().UTC()
		b.SettledAt = &now
	}
	return nil
}

func (s *memBetStore) SetOrderID(ctx context.Context, localID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[localID]
	if !ok {
		return domain.ErrNotFound
	}
	b.OrderID = orderID
	return nil
}

func (s *memBetStore) AssignChainIDs(ctx context.Context, localID, betID, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *memBetStore) Recover(ctx context.Context, localID, betID, txHash string, status domain.BetStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *memBetStore) Query(ctx context.Context, f domain.BetFilter) ([]domain.BetAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *memBetStore) ListBefore(ctx context.Context, before time.Time) ([]domain.BetAttempt, error) {
	return nil, nil
}

// single returns the only record in the store; test helper for placements
// that generate the local id internally.
func (s *memBetStore) single() (domain.BetAttempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bets) != 1 {
		return domain.BetAttempt{}, false
	}
	for _, b := range s.bets {
		return *b, true
	}
	return domain.BetAttempt{}, false
}

func (s *memBetStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bets)
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (a *memAudit) List(ctx context.Context, limit, offset int) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries...), nil
}

func (a *memAudit) events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Event
	}
	return out
}

type fakeLocks struct {
	held     bool
	acquired int
}

func (l *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired++
	return func() {}, nil
}

type fakeLimiter struct {
	deny bool
}

func (l *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return !l.deny, nil
}

func (l *fakeLimiter) Wait(ctx context.Context, key string) error { return nil }

type memBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{messages: make(map[string][][]byte)}
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *memBus) published(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages[channel])
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
