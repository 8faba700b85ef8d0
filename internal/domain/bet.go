// Package domain defines the core types of the bet lifecycle: locally
// persisted bet attempts, on-chain bets observed through the data feed, and
// the store/cache interfaces the rest of the system is built against.
package domain

import (
	"time"
)

// Selection identifies one outcome within a condition, together with the
// odds quoted at the moment the user picked it.
type Selection struct {
	ConditionID string  `json:"conditionId"`
	OutcomeID   string  `json:"outcomeId"`
	Odds        float64 `json:"odds"`
}

// BetStatus tracks the bet attempt lifecycle.
type BetStatus string

const (
	BetStatusPending    BetStatus = "pending"
	BetStatusProcessing BetStatus = "processing"
	BetStatusAccepted   BetStatus = "accepted"
	BetStatusSettled    BetStatus = "settled"
	BetStatusCanceled   BetStatus = "canceled"
	BetStatusRejected   BetStatus = "rejected"
	BetStatusFailed     BetStatus = "failed"
)

// BetResult is set once a bet reaches a settled or canceled state.
type BetResult string

const (
	BetResultWon      BetResult = "won"
	BetResultLost     BetResult = "lost"
	BetResultCanceled BetResult = "canceled_result"

	// BetResultGhostCleanup marks a failed record produced by the ghost
	// reconciler, as opposed to a failure observed directly. Records with
	// this result remain eligible for the strict recovery pass.
	BetResultGhostCleanup BetResult = "ghost_bet_cleanup"
)

// BetAttempt is one row of the local bet ledger: a user-initiated placement
// recorded before the chain has confirmed anything. LocalID, Wallet, Amount,
// and Selections are immutable after creation; everything else mutates as
// the relayer, the chain, and the reconciler report back.
type BetAttempt struct {
	LocalID    string      `json:"localId"`
	Wallet     string      `json:"wallet"`
	BetID      string      `json:"betId,omitempty"`   // protocol bet id, empty until confirmed
	TxHash     string      `json:"txHash,omitempty"`  // empty until known
	OrderID    string      `json:"orderId,omitempty"` // relayer order id, set once submission succeeds
	Selections []Selection `json:"selections"`
	Amount     string      `json:"amount"` // stake in the token's smallest unit, decimal string
	Odds       float64     `json:"odds"`   // quoted odds at submission (combo: product of legs)
	Status     BetStatus   `json:"status"`
	Result     BetResult   `json:"result,omitempty"`
	Payout     string      `json:"payout,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	SettledAt  *time.Time  `json:"settledAt,omitempty"`
}

// IsCombo reports whether the attempt is a combo (two or more legs).
func (b BetAttempt) IsCombo() bool {
	return len(b.Selections) >= 2
}

// IsTerminal reports whether the attempt has reached a state that no regular
// lifecycle transition may leave. Only explicit user action (or the strict
// recovery pass, for ghost_bet_cleanup records) touches terminal records.
func (b BetAttempt) IsTerminal() bool {
	switch b.Status {
	case BetStatusSettled, BetStatusCanceled, BetStatusRejected, BetStatusFailed:
		return true
	default:
		return false
	}
}

// HasChainIDs reports whether the record has been tied to an on-chain bet.
func (b BetAttempt) HasChainIDs() bool {
	return b.BetID != "" && b.TxHash != ""
}

// betTransitions encodes the legal lifecycle edges. A missing entry means the
// transition is forbidden.
var betTransitions = map[BetStatus]map[BetStatus]bool{
	BetStatusPending: {
		BetStatusProcessing: true,
		BetStatusAccepted:   true, // reconciler may confirm directly
		BetStatusRejected:   true,
		BetStatusFailed:     true, // ghost cleanup
	},
	BetStatusProcessing: {
		BetStatusPending:  true, // poll timeout: back to ambiguous
		BetStatusAccepted: true,
		BetStatusRejected: true,
		BetStatusFailed:   true,
	},
	BetStatusAccepted: {
		BetStatusSettled:  true,
		BetStatusCanceled: true,
	},
	// Recovery of a ghost_bet_cleanup record is the single sanctioned exit
	// from failed; BetStore.Recover enforces the result check.
	BetStatusFailed: {
		BetStatusPending:  true,
		BetStatusAccepted: true,
	},
}

// CanTransition reports whether moving a record from one status to another is
// a legal lifecycle edge.
func CanTransition(from, to BetStatus) bool {
	if from == to {
		return true
	}
	return betTransitions[from][to]
}
