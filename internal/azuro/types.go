// Package azuro contains clients for the Azuro protocol surfaces: the
// relayer REST API for order submission, the subgraph for on-chain bet
// queries, and the WebSocket odds feed.
package azuro

import (
	"github.com/azubet/azubet/internal/crypto"
)

// Order states reported by the relayer. Accepted and Rejected are terminal;
// everything else means the relayer is still working the order.
const (
	OrderStateCreated  = "Created"
	OrderStatePending  = "Pending"
	OrderStateSent     = "Sent"
	OrderStateAccepted = "Accepted"
	OrderStateRejected = "Rejected"
)

// Order is the relayer's view of a submitted bet order.
type Order struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	BetID        string `json:"betId,omitempty"`
	TxHash       string `json:"txHash,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Terminal reports whether the order has reached a final relayer state.
func (o Order) Terminal() bool {
	return o.State == OrderStateAccepted || o.State == OrderStateRejected
}

// SingleOrderRequest is the body for POST /orders/ordinar. The data block
// must match the EIP-712 message byte for byte or the relayer rejects the
// signature.
type SingleOrderRequest struct {
	Environment string                  `json:"environment"`
	Bettor      string                  `json:"bettor"`
	Data        crypto.SingleBetPayload `json:"data"`
	Signature   string                  `json:"bettorSignature"`
}

// ComboOrderRequest is the body for POST /orders/combo.
type ComboOrderRequest struct {
	Environment string                 `json:"environment"`
	Bettor      string                 `json:"bettor"`
	Data        crypto.ComboBetPayload `json:"data"`
	Signature   string                 `json:"bettorSignature"`
}

// CashoutCalculation is the relayer's signed cashout quote for a bet. The
// calculation id and odds must be echoed back unchanged when creating the
// cashout order.
type CashoutCalculation struct {
	CalculationID string `json:"calculationId"`
	BetID         string `json:"betId"`
	Amount        string `json:"cashoutAmount"`
	Odds          string `json:"cashoutOdds"`
	ExpiresAt     int64  `json:"expiredAt"`
	Approved      bool   `json:"isLive"`
}

// CashoutOrder tracks a created cashout through the relayer.
type CashoutOrder struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	TxHash       string `json:"txHash,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Terminal reports whether the cashout has reached a final relayer state.
func (o CashoutOrder) Terminal() bool {
	return o.State == OrderStateAccepted || o.State == OrderStateRejected
}
