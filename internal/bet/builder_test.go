package bet

import (
	"errors"
	"math"
	"math/big"
	"strconv"
	"testing"
	"time"

	"github.com/azubet/azubet/internal/domain"
)

func newTestBuilder(t *testing.T, slippagePct float64) *Builder {
	t.Helper()
	b, err := NewBuilder("0x00000000000000000000000000000000000000aa", slippagePct, 5*time.Minute)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b
}

func TestNewBuilderRejectsBadSlippage(t *testing.T) {
	for _, s := range []float64{-1, 100, 150} {
		if _, err := NewBuilder("0xaa", s, time.Minute); err == nil {
			t.Errorf("slippage %v should be rejected", s)
		}
	}
}

func TestBuildSingleMinOdds(t *testing.T) {
	b := newTestBuilder(t, 5)

	p, err := b.BuildSingle(domain.Selection{
		ConditionID: "100610060000000000266961222000000000000263163587",
		OutcomeID:   "29",
		Odds:        2.00,
	}, "10000000")
	if err != nil {
		t.Fatalf("BuildSingle: %v", err)
	}

	// 1 + (2.00 - 1) * 0.95 = 1.95, encoded at 1e12.
	if p.MinOdds != "1950000000000" {
		t.Fatalf("minOdds = %s, want 1950000000000", p.MinOdds)
	}
	if p.Amount != "10000000" {
		t.Fatalf("amount = %s", p.Amount)
	}
	if p.ConditionID == "" || p.OutcomeID != "29" {
		t.Fatalf("selection ids not carried: %+v", p)
	}
}

func TestBuildSingleZeroSlippage(t *testing.T) {
	b := newTestBuilder(t, 0)

	p, err := b.BuildSingle(domain.Selection{ConditionID: "1", OutcomeID: "29", Odds: 2.0}, "500")
	if err != nil {
		t.Fatalf("BuildSingle: %v", err)
	}
	if p.MinOdds != "2000000000000" {
		t.Fatalf("minOdds = %s, want 2000000000000", p.MinOdds)
	}
}

func TestBuildSingleExpiryAndNonce(t *testing.T) {
	b := newTestBuilder(t, 2)

	before := time.Now()
	p, err := b.BuildSingle(domain.Selection{ConditionID: "1", OutcomeID: "29", Odds: 1.5}, "100")
	if err != nil {
		t.Fatalf("BuildSingle: %v", err)
	}

	exp, err := strconv.ParseInt(p.ExpiresAt, 10, 64)
	if err != nil {
		t.Fatalf("expiresAt not numeric: %v", err)
	}
	want := before.Add(5 * time.Minute).Unix()
	if exp < want-2 || exp > want+2 {
		t.Fatalf("expiresAt = %d, want about %d", exp, want)
	}
	if p.Nonce == "" {
		t.Fatal("nonce must be set")
	}
}

func TestNonceUniqueAndNumeric(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		n := newNonce()
		if _, ok := new(big.Int).SetString(n, 10); !ok {
			t.Fatalf("nonce %q not numeric", n)
		}
		if seen[n] {
			t.Fatalf("nonce %q repeated", n)
		}
		seen[n] = true
	}
}

func TestBuildSingleValidation(t *testing.T) {
	b := newTestBuilder(t, 5)

	cases := []struct {
		name   string
		sel    domain.Selection
		amount string
	}{
		{"missing condition", domain.Selection{OutcomeID: "29", Odds: 2}, "100"},
		{"missing outcome", domain.Selection{ConditionID: "1", Odds: 2}, "100"},
		{"odds at 1.0", domain.Selection{ConditionID: "1", OutcomeID: "29", Odds: 1.0}, "100"},
		{"odds below 1.0", domain.Selection{ConditionID: "1", OutcomeID: "29", Odds: 0.5}, "100"},
		{"zero amount", domain.Selection{ConditionID: "1", OutcomeID: "29", Odds: 2}, "0"},
		{"negative amount", domain.Selection{ConditionID: "1", OutcomeID: "29", Odds: 2}, "-5"},
		{"non-numeric amount", domain.Selection{ConditionID: "1", OutcomeID: "29", Odds: 2}, "ten"},
		{"fractional amount", domain.Selection{ConditionID: "1", OutcomeID: "29", Odds: 2}, "1.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.BuildSingle(tc.sel, tc.amount)
			if !errors.Is(err, domain.ErrInvalidSelection) {
				t.Fatalf("err = %v, want ErrInvalidSelection", err)
			}
		})
	}
}

func TestBuildComboMinOdds(t *testing.T) {
	b := newTestBuilder(t, 10)

	sels := []domain.Selection{
		{ConditionID: "1", OutcomeID: "29", Odds: 1.5},
		{ConditionID: "2", OutcomeID: "30", Odds: 2.0},
		{ConditionID: "3", OutcomeID: "31", Odds: 1.8},
	}
	p, err := b.BuildCombo(sels, "25000000")
	if err != nil {
		t.Fatalf("BuildCombo: %v", err)
	}

	// Combined odds 5.4; 1 + 4.4 * 0.9 = 4.96, encoded at 1e12.
	if p.MinOdds != "4960000000000" {
		t.Fatalf("minOdds = %s, want 4960000000000", p.MinOdds)
	}
	if len(p.Legs) != 3 {
		t.Fatalf("legs = %d, want 3", len(p.Legs))
	}
	for i, sel := range sels {
		if p.Legs[i].ConditionID != sel.ConditionID || p.Legs[i].OutcomeID != sel.OutcomeID {
			t.Fatalf("leg %d = %+v, want %+v", i, p.Legs[i], sel)
		}
	}
}

func TestBuildComboRejectsSingleLeg(t *testing.T) {
	b := newTestBuilder(t, 5)

	_, err := b.BuildCombo([]domain.Selection{
		{ConditionID: "1", OutcomeID: "29", Odds: 2},
	}, "100")
	if !errors.Is(err, domain.ErrInvalidSelection) {
		t.Fatalf("err = %v, want ErrInvalidSelection", err)
	}
}

func TestBuildComboRejectsDuplicateCondition(t *testing.T) {
	b := newTestBuilder(t, 5)

	_, err := b.BuildCombo([]domain.Selection{
		{ConditionID: "7", OutcomeID: "29", Odds: 1.5},
		{ConditionID: "7", OutcomeID: "30", Odds: 2.0},
	}, "100")
	if !errors.Is(err, domain.ErrInvalidSelection) {
		t.Fatalf("err = %v, want ErrInvalidSelection", err)
	}
}

func TestComboOdds(t *testing.T) {
	sels := []domain.Selection{
		{Odds: 1.5},
		{Odds: 2.0},
		{Odds: 1.8},
	}
	if got := ComboOdds(sels); math.Abs(got-5.4) > 1e-9 {
		t.Fatalf("ComboOdds = %v, want 5.4", got)
	}
	if got := ComboOdds(nil); got != 1.0 {
		t.Fatalf("ComboOdds(nil) = %v, want 1.0", got)
	}
}
