package domain

import (
	"context"
	"time"
)

// BetFilter narrows ledger queries. Zero values mean "no constraint".
type BetFilter struct {
	Wallet       string
	Statuses     []BetStatus
	Result       BetResult
	WithoutChain bool // only records with neither betId nor txHash
	Before       *time.Time
	After        *time.Time
	Limit        int
	Offset       int
}

// BetStore persists the local bet ledger. Implementations must enforce the
// lifecycle: UpdateStatus rejects illegal transitions with
// ErrIllegalTransition, and AssignChainIDs refuses to overwrite an existing
// betId/txHash with different values (ErrChainIDConflict).
type BetStore interface {
	Create(ctx context.Context, attempt BetAttempt) error
	GetByLocalID(ctx context.Context, localID string) (BetAttempt, error)
	GetByBetID(ctx context.Context, betID string) (BetAttempt, error)

	// UpdateStatus moves a record along the lifecycle. result and payout
	// are applied only when non-zero; settledAt is stamped for terminal
	// settlement states.
	UpdateStatus(ctx context.Context, localID string, status BetStatus, result BetResult, payout string) error

	// SetOrderID records the relayer order identifier after submission.
	SetOrderID(ctx context.Context, localID, orderID string) error

	// AssignChainIDs ties a record to an on-chain bet. Assignment is
	// idempotent: re-assigning the same values succeeds, differing values
	// fail with ErrChainIDConflict.
	AssignChainIDs(ctx context.Context, localID, betID, txHash string) error

	// Recover restores a failed/ghost_bet_cleanup record found by the
	// strict recovery pass: clears the result, assigns chain ids, and sets
	// the given status. It must refuse records whose result is not
	// ghost_bet_cleanup.
	Recover(ctx context.Context, localID, betID, txHash string, status BetStatus) error

	Query(ctx context.Context, filter BetFilter) ([]BetAttempt, error)

	// ListBefore returns terminal records settled/failed strictly before
	// the cutoff, for archival.
	ListBefore(ctx context.Context, before time.Time) ([]BetAttempt, error)
}

// AuditEntry is a single append-only audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of lifecycle events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, limit, offset int) ([]AuditEntry, error)
}
