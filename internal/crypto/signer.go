package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// SingleBet(address affiliate,uint256 amount,uint256 conditionId,uint256 outcomeId,uint256 minOdds,uint256 nonce,uint256 expiresAt)
	singleBetTypeHash = ethcrypto.Keccak256(
		[]byte("SingleBet(address affiliate,uint256 amount,uint256 conditionId,uint256 outcomeId,uint256 minOdds,uint256 nonce,uint256 expiresAt)"),
	)

	// ComboBet references the ComboLeg struct type, so the canonical type
	// string carries both definitions, referenced type appended.
	comboBetTypeHash = ethcrypto.Keccak256(
		[]byte("ComboBet(address affiliate,uint256 amount,uint256 minOdds,uint256 nonce,uint256 expiresAt,ComboLeg[] legs)ComboLeg(uint256 conditionId,uint256 outcomeId)"),
	)

	comboLegTypeHash = ethcrypto.Keccak256(
		[]byte("ComboLeg(uint256 conditionId,uint256 outcomeId)"),
	)

	cashoutTypeHash = ethcrypto.Keccak256(
		[]byte("CashoutOrder(uint256 betId,address bettor,uint256 cashoutOdds,uint256 expiresAt)"),
	)
)

// BetDomain identifies the EIP-712 signing domain for bet orders. The
// verifying contract differs between the single-bet core and the combo
// (express) core, so the caller supplies the full domain per payload.
type BetDomain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract string
}

// SingleBetPayload is the EIP-712 message for an ordinar (single) bet.
// String fields hold decimal-encoded big numbers to preserve precision
// across JSON boundaries; the relayer request body mirrors this struct
// exactly, so any divergence invalidates the signature server-side.
type SingleBetPayload struct {
	Affiliate   string `json:"affiliate"`
	Amount      string `json:"amount"`
	ConditionID string `json:"conditionId"`
	OutcomeID   string `json:"outcomeId"`
	MinOdds     string `json:"minOdds"`
	Nonce       string `json:"nonce"`
	ExpiresAt   string `json:"expiresAt"`
}

// ComboLeg is one leg of a combo bet payload. Amount, odds bound, and nonce
// live on the enclosing ComboBetPayload, shared across all legs.
type ComboLeg struct {
	ConditionID string `json:"conditionId"`
	OutcomeID   string `json:"outcomeId"`
}

// ComboBetPayload is the EIP-712 message for a combo bet.
type ComboBetPayload struct {
	Affiliate string     `json:"affiliate"`
	Amount    string     `json:"amount"`
	MinOdds   string     `json:"minOdds"`
	Nonce     string     `json:"nonce"`
	ExpiresAt string     `json:"expiresAt"`
	Legs      []ComboLeg `json:"legs"`
}

// Signer produces EIP-712 typed-data signatures for bet orders and standard
// transaction signatures for the withdrawal/cancellation engine.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignSingleBet signs an ordinar bet payload under the given domain. It
// returns a hex-encoded 65-byte signature (r || s || v).
func (s *Signer) SignSingleBet(dom BetDomain, p SingleBetPayload) (string, error) {
	structHash, err := singleBetStructHash(p)
	if err != nil {
		return "", err
	}
	return s.signDigest(eip712Hash(buildDomainSeparator(dom), structHash))
}

// SignComboBet signs a combo bet payload under the given domain.
func (s *Signer) SignComboBet(dom BetDomain, p ComboBetPayload) (string, error) {
	structHash, err := comboBetStructHash(p)
	if err != nil {
		return "", err
	}
	return s.signDigest(eip712Hash(buildDomainSeparator(dom), structHash))
}

// CashoutPayload is the EIP-712 message accepting a relayer cashout quote.
type CashoutPayload struct {
	BetID       string `json:"betId"`
	Bettor      string `json:"bettor"`
	CashoutOdds string `json:"cashoutOdds"`
	ExpiresAt   string `json:"expiresAt"`
}

// SignCashout signs acceptance of a cashout quote under the given domain.
func (s *Signer) SignCashout(dom BetDomain, p CashoutPayload) (string, error) {
	betID, err := decimalWord("betId", p.BetID)
	if err != nil {
		return "", err
	}
	odds, err := decimalWord("cashoutOdds", p.CashoutOdds)
	if err != nil {
		return "", err
	}
	expiresAt, err := decimalWord("expiresAt", p.ExpiresAt)
	if err != nil {
		return "", err
	}

	structHash := ethcrypto.Keccak256(
		concatBytes(
			cashoutTypeHash,
			betID,
			common.LeftPadBytes(common.HexToAddress(p.Bettor).Bytes(), 32),
			odds,
			expiresAt,
		),
	)
	return s.signDigest(eip712Hash(buildDomainSeparator(dom), structHash))
}

// SignTx signs a transaction for the given chain, selecting EIP-155 or
// EIP-1559 rules based on the transaction type.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: sign tx: %w", err)
	}
	return signed, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash,
// versionHash, chainId, verifyingContract)).
func buildDomainSeparator(dom BetDomain) []byte {
	contract := common.HexToAddress(dom.VerifyingContract)
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(dom.Name)),
			ethcrypto.Keccak256([]byte(dom.Version)),
			bigIntTo32Bytes(big.NewInt(dom.ChainID)),
			common.LeftPadBytes(contract.Bytes(), 32),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

func singleBetStructHash(p SingleBetPayload) ([]byte, error) {
	amount, err := decimalWord("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	conditionID, err := decimalWord("conditionId", p.ConditionID)
	if err != nil {
		return nil, err
	}
	outcomeID, err := decimalWord("outcomeId", p.OutcomeID)
	if err != nil {
		return nil, err
	}
	minOdds, err := decimalWord("minOdds", p.MinOdds)
	if err != nil {
		return nil, err
	}
	nonce, err := decimalWord("nonce", p.Nonce)
	if err != nil {
		return nil, err
	}
	expiresAt, err := decimalWord("expiresAt", p.ExpiresAt)
	if err != nil {
		return nil, err
	}

	affiliate := common.HexToAddress(p.Affiliate)

	return ethcrypto.Keccak256(
		concatBytes(
			singleBetTypeHash,
			common.LeftPadBytes(affiliate.Bytes(), 32),
			amount,
			conditionID,
			outcomeID,
			minOdds,
			nonce,
			expiresAt,
		),
	), nil
}

func comboBetStructHash(p ComboBetPayload) ([]byte, error) {
	amount, err := decimalWord("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	minOdds, err := decimalWord("minOdds", p.MinOdds)
	if err != nil {
		return nil, err
	}
	nonce, err := decimalWord("nonce", p.Nonce)
	if err != nil {
		return nil, err
	}
	expiresAt, err := decimalWord("expiresAt", p.ExpiresAt)
	if err != nil {
		return nil, err
	}

	// An array of structs hashes as keccak256 of the concatenated struct
	// hashes of its members.
	legHashes := make([]byte, 0, len(p.Legs)*32)
	for _, leg := range p.Legs {
		conditionID, err := decimalWord("conditionId", leg.ConditionID)
		if err != nil {
			return nil, err
		}
		outcomeID, err := decimalWord("outcomeId", leg.OutcomeID)
		if err != nil {
			return nil, err
		}
		legHash := ethcrypto.Keccak256(
			concatBytes(comboLegTypeHash, conditionID, outcomeID),
		)
		legHashes = append(legHashes, legHash...)
	}

	affiliate := common.HexToAddress(p.Affiliate)

	return ethcrypto.Keccak256(
		concatBytes(
			comboBetTypeHash,
			common.LeftPadBytes(affiliate.Bytes(), 32),
			amount,
			minOdds,
			nonce,
			expiresAt,
			ethcrypto.Keccak256(legHashes),
		),
	), nil
}

// decimalWord parses a base-10 string into a 32-byte big-endian word.
func decimalWord(field, v string) ([]byte, error) {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid %s %q", field, v)
	}
	return bigIntTo32Bytes(n), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
