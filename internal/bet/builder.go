// Package bet builds signable bet payloads from selections and polls the
// relayer for order outcomes.
package bet

import (
	"fmt"
	"math/big"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/azubet/azubet/internal/crypto"
	"github.com/azubet/azubet/internal/domain"
)

// oddsScale is the protocol's fixed-point odds representation (1e12).
var oddsScale = big.NewFloat(1e12)

// Builder turns validated selections into EIP-712 bet payloads. It owns the
// slippage-to-minOdds conversion and the nonce/expiry generation, so every
// payload the wallet signs comes through one place.
type Builder struct {
	affiliate    string
	slippagePct  float64
	expiryWindow time.Duration
}

// NewBuilder creates a Builder. slippagePct is the tolerated odds drop in
// percent (0 <= s < 100); expiryWindow bounds how long a signed payload is
// accepted by the relayer.
func NewBuilder(affiliate string, slippagePct float64, expiryWindow time.Duration) (*Builder, error) {
	if slippagePct < 0 || slippagePct >= 100 {
		return nil, fmt.Errorf("bet: slippage must be in [0, 100), got %v", slippagePct)
	}
	if expiryWindow <= 0 {
		expiryWindow = 5 * time.Minute
	}
	return &Builder{
		affiliate:    affiliate,
		slippagePct:  slippagePct,
		expiryWindow: expiryWindow,
	}, nil
}

// BuildSingle builds an ordinar bet payload for one selection. amount is the
// stake in the token's smallest unit, as a decimal string.
func (b *Builder) BuildSingle(sel domain.Selection, amount string) (crypto.SingleBetPayload, error) {
	if err := validateSelection(sel); err != nil {
		return crypto.SingleBetPayload{}, err
	}
	if err := validateAmount(amount); err != nil {
		return crypto.SingleBetPayload{}, err
	}

	return crypto.SingleBetPayload{
		Affiliate:   b.affiliate,
		Amount:      amount,
		ConditionID: sel.ConditionID,
		OutcomeID:   sel.OutcomeID,
		MinOdds:     encodeMinOdds([]float64{sel.Odds}, b.slippagePct),
		Nonce:       newNonce(),
		ExpiresAt:   strconv.FormatInt(time.Now().Add(b.expiryWindow).Unix(), 10),
	}, nil
}

// BuildCombo builds a combo bet payload. The minimum odds bound applies to
// the product of the quoted leg odds; all legs share one stake.
func (b *Builder) BuildCombo(sels []domain.Selection, amount string) (crypto.ComboBetPayload, error) {
	if len(sels) < 2 {
		return crypto.ComboBetPayload{}, fmt.Errorf("bet: %w: combo requires at least 2 selections, got %d",
			domain.ErrInvalidSelection, len(sels))
	}
	if err := validateAmount(amount); err != nil {
		return crypto.ComboBetPayload{}, err
	}

	seen := make(map[string]struct{}, len(sels))
	odds := make([]float64, 0, len(sels))
	legs := make([]crypto.ComboLeg, 0, len(sels))
	for _, sel := range sels {
		if err := validateSelection(sel); err != nil {
			return crypto.ComboBetPayload{}, err
		}
		if _, dup := seen[sel.ConditionID]; dup {
			return crypto.ComboBetPayload{}, fmt.Errorf("bet: %w: duplicate condition %s in combo",
				domain.ErrInvalidSelection, sel.ConditionID)
		}
		seen[sel.ConditionID] = struct{}{}
		odds = append(odds, sel.Odds)
		legs = append(legs, crypto.ComboLeg{
			ConditionID: sel.ConditionID,
			OutcomeID:   sel.OutcomeID,
		})
	}

	return crypto.ComboBetPayload{
		Affiliate: b.affiliate,
		Amount:    amount,
		MinOdds:   encodeMinOdds(odds, b.slippagePct),
		Nonce:     newNonce(),
		ExpiresAt: strconv.FormatInt(time.Now().Add(b.expiryWindow).Unix(), 10),
		Legs:      legs,
	}, nil
}

// ComboOdds returns the combined quoted odds for a set of legs.
func ComboOdds(sels []domain.Selection) float64 {
	product := 1.0
	for _, s := range sels {
		product *= s.Odds
	}
	return product
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func validateSelection(sel domain.Selection) error {
	if sel.ConditionID == "" || sel.OutcomeID == "" {
		return fmt.Errorf("bet: %w: condition and outcome ids required", domain.ErrInvalidSelection)
	}
	if sel.Odds <= 1.0 {
		return fmt.Errorf("bet: %w: odds must exceed 1.0, got %v", domain.ErrInvalidSelection, sel.Odds)
	}
	return nil
}

func validateAmount(amount string) error {
	n, ok := new(big.Int).SetString(amount, 10)
	if !ok || n.Sign() <= 0 {
		return fmt.Errorf("bet: %w: amount must be a positive integer string, got %q",
			domain.ErrInvalidSelection, amount)
	}
	return nil
}

// encodeMinOdds applies the slippage tolerance to the combined quoted odds
// and encodes the result as fixed-point 1e12:
//
//	minOdds = 1 + (odds - 1) * (100 - slippage) / 100
//
// The arithmetic runs in big.Float so float64 representation noise in the
// quoted odds does not leak into the encoded value.
func encodeMinOdds(odds []float64, slippagePct float64) string {
	product := new(big.Float).SetPrec(128).SetInt64(1)
	for _, o := range odds {
		product.Mul(product, new(big.Float).SetPrec(128).SetFloat64(o))
	}

	one := new(big.Float).SetPrec(128).SetInt64(1)

	m := new(big.Float).SetPrec(128).Sub(product, one)
	m.Mul(m, new(big.Float).SetPrec(128).SetFloat64(100-slippagePct))
	m.Quo(m, new(big.Float).SetPrec(128).SetInt64(100))
	m.Add(m, one)

	m.Mul(m, oddsScale)
	m.Add(m, new(big.Float).SetPrec(128).SetFloat64(0.5))

	encoded, _ := m.Int(nil)
	return encoded.String()
}

// newNonce returns a fresh nonce: nanosecond timestamp plus a random tail.
// The wallet lock already serializes submissions within one process; the tail
// keeps two processes sharing a key from colliding on the same instant.
func newNonce() string {
	return fmt.Sprintf("%d%06d", time.Now().UnixNano(), rand.IntN(1_000_000))
}
