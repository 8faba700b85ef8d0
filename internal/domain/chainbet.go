package domain

import "time"

// ChainBetStatus is the bet state as reported by the protocol's data feed.
type ChainBetStatus string

const (
	ChainBetAccepted ChainBetStatus = "Accepted"
	ChainBetResolved ChainBetStatus = "Resolved"
	ChainBetCanceled ChainBetStatus = "Canceled"
)

// ChainBetLeg is one leg of an on-chain bet as reported by the feed.
type ChainBetLeg struct {
	ConditionID string `json:"conditionId"`
	OutcomeID   string `json:"outcomeId"`
}

// ChainBet is a bet actually observed on-chain for a wallet, via the
// protocol's historical bet feed. It is what ghost reconciliation matches
// ledger records against.
type ChainBet struct {
	BetID     string         `json:"betId"`
	TxHash    string         `json:"txHash"`
	Bettor    string         `json:"bettor"`
	Amount    string         `json:"amount"` // smallest unit, decimal string
	Odds      float64        `json:"odds"`
	Legs      []ChainBetLeg  `json:"selections"`
	Status    ChainBetStatus `json:"status"`
	Result    string         `json:"result,omitempty"` // Won | Lost, set when Resolved
	Payout    string         `json:"payout,omitempty"`
	Redeemed  bool           `json:"isRedeemed"`
	CreatedAt time.Time      `json:"createdAt"`
}

// IsCombo reports whether the chain bet has more than one leg.
func (c ChainBet) IsCombo() bool {
	return len(c.Legs) >= 2
}
