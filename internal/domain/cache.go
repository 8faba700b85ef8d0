package domain

import (
	"context"
	"time"
)

// OddsUpdate is one live odds change for an outcome, delivered by the feed's
// WebSocket stream and cached for quote checks.
type OddsUpdate struct {
	ConditionID string    `json:"conditionId"`
	OutcomeID   string    `json:"outcomeId"`
	Odds        float64   `json:"odds"`
	Timestamp   time.Time `json:"timestamp"`
}

// OddsCache provides fast access to the latest quoted odds per outcome.
type OddsCache interface {
	SetOdds(ctx context.Context, update OddsUpdate) error
	GetOdds(ctx context.Context, conditionID, outcomeID string) (float64, time.Time, error)
	GetConditionOdds(ctx context.Context, conditionID string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting. It enforces both the RPC
// request budget and the minimum inter-submission gap per wallet.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking. The bet service holds the wallet
// lock across every nonce-consuming operation so that one wallet never has
// two submissions in flight.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub delivery of lifecycle events to the API server
// and any other in-process subscribers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
