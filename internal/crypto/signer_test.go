package crypto

import (
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe512961708279f1d4ecbb22fa4b4b5b"

var testDomain = BetDomain{
	Name:              "Azuro Liquidity Pool",
	Version:           "1",
	ChainID:           137,
	VerifyingContract: "0x00000000000000000000000000000000000000cc",
}

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func TestNewSignerAddress(t *testing.T) {
	s := newTestSigner(t)

	pk, err := ethcrypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	want := ethcrypto.PubkeyToAddress(pk.PublicKey)
	if s.Address() != want {
		t.Fatalf("Address = %s, want %s", s.Address(), want)
	}
}

func TestNewSignerAcceptsHexPrefix(t *testing.T) {
	plain, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	prefixed, err := NewSigner("0x" + testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner with 0x prefix: %v", err)
	}
	if plain.Address() != prefixed.Address() {
		t.Fatal("prefix handling changed the derived address")
	}
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	if _, err := NewSigner("not-a-key"); err == nil {
		t.Fatal("malformed key should be rejected")
	}
}

func TestSignSingleBetFormat(t *testing.T) {
	s := newTestSigner(t)

	payload := SingleBetPayload{
		Affiliate:   "0x00000000000000000000000000000000000000aa",
		Amount:      "10000000",
		ConditionID: "100610060000000000266961222000000000000263163587",
		OutcomeID:   "29",
		MinOdds:     "1950000000000",
		Nonce:       "1700000000000000000",
		ExpiresAt:   "2000000000",
	}

	sig, err := s.SignSingleBet(testDomain, payload)
	if err != nil {
		t.Fatalf("SignSingleBet: %v", err)
	}
	assertSignatureFormat(t, sig)

	// Signing is deterministic; the same payload under the same domain must
	// yield the same signature.
	sig2, err := s.SignSingleBet(testDomain, payload)
	if err != nil {
		t.Fatalf("SignSingleBet repeat: %v", err)
	}
	if sig != sig2 {
		t.Fatal("signature not deterministic for identical input")
	}

	// A different domain must change the digest.
	other := testDomain
	other.VerifyingContract = "0x00000000000000000000000000000000000000dd"
	sig3, err := s.SignSingleBet(other, payload)
	if err != nil {
		t.Fatalf("SignSingleBet other domain: %v", err)
	}
	if sig == sig3 {
		t.Fatal("signature must depend on the signing domain")
	}
}

func TestSignSingleBetRejectsBadNumber(t *testing.T) {
	s := newTestSigner(t)

	_, err := s.SignSingleBet(testDomain, SingleBetPayload{
		Amount:      "ten",
		ConditionID: "1",
		OutcomeID:   "29",
		MinOdds:     "1950000000000",
		Nonce:       "1",
		ExpiresAt:   "2000000000",
	})
	if err == nil {
		t.Fatal("non-decimal amount should be rejected")
	}
}

func TestSignComboBet(t *testing.T) {
	s := newTestSigner(t)

	payload := ComboBetPayload{
		Affiliate: "0x00000000000000000000000000000000000000aa",
		Amount:    "25000000",
		MinOdds:   "4960000000000",
		Nonce:     "1700000000000000001",
		ExpiresAt: "2000000000",
		Legs: []ComboLeg{
			{ConditionID: "1", OutcomeID: "29"},
			{ConditionID: "2", OutcomeID: "31"},
		},
	}

	sig, err := s.SignComboBet(testDomain, payload)
	if err != nil {
		t.Fatalf("SignComboBet: %v", err)
	}
	assertSignatureFormat(t, sig)

	// Leg order is part of the signed message.
	swapped := payload
	swapped.Legs = []ComboLeg{payload.Legs[1], payload.Legs[0]}
	sig2, err := s.SignComboBet(testDomain, swapped)
	if err != nil {
		t.Fatalf("SignComboBet swapped: %v", err)
	}
	if sig == sig2 {
		t.Fatal("signature must depend on leg order")
	}
}

func TestSignCashout(t *testing.T) {
	s := newTestSigner(t)

	sig, err := s.SignCashout(testDomain, CashoutPayload{
		BetID:       "42",
		Bettor:      "0x00000000000000000000000000000000000000bb",
		CashoutOdds: "1850000000000",
		ExpiresAt:   "2000000000",
	})
	if err != nil {
		t.Fatalf("SignCashout: %v", err)
	}
	assertSignatureFormat(t, sig)
}

func assertSignatureFormat(t *testing.T, sig string) {
	t.Helper()
	if !strings.HasPrefix(sig, "0x") {
		t.Fatalf("signature missing 0x prefix: %s", sig)
	}
	if len(sig) != 2+130 {
		t.Fatalf("signature length = %d, want 132 (65 bytes hex)", len(sig))
	}
	// v must be 27 or 28 after the EIP-712 adjustment.
	v := sig[len(sig)-2:]
	if v != "1b" && v != "1c" {
		t.Fatalf("recovery byte = %s, want 1b or 1c", v)
	}
}
