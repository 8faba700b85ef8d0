package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/azubet/azubet/internal/crypto"
)

// GasConfig tunes transaction pricing. Prices below the floor stall on some
// chains even when the network estimate is lower.
type GasConfig struct {
	PriceMultiplier float64
	FloorGwei       int64
	Limit           uint64
	ReceiptTimeout  time.Duration
}

// TxEngine signs and sends the few transactions the wallet needs: ERC-20
// approvals, bet NFT operator approval, payout withdrawal, and stuck-nonce
// cancellation. Every send goes through the retry executor.
type TxEngine struct {
	exec   *Executor
	signer *crypto.Signer
	gas    GasConfig
	logger *slog.Logger
}

// NewTxEngine creates a TxEngine bound to the signer's wallet.
func NewTxEngine(exec *Executor, signer *crypto.Signer, gas GasConfig, logger *slog.Logger) *TxEngine {
	if gas.Limit == 0 {
		gas.Limit = 300_000
	}
	if gas.ReceiptTimeout <= 0 {
		gas.ReceiptTimeout = 2 * time.Minute
	}
	return &TxEngine{
		exec:   exec,
		signer: signer,
		gas:    gas,
		logger: logger.With(slog.String("component", "tx_engine")),
	}
}

// EnsureTokenAllowance grants the spender an unlimited ERC-20 allowance if
// the current allowance cannot cover amount. It returns only after the
// approval transaction is mined, so a bet submitted immediately afterwards
// sees the allowance confirmed.
func (t *TxEngine) EnsureTokenAllowance(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	owner := t.signer.Address()

	allowance, err := t.exec.TokenAllowance(ctx, token, owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	t.logger.Info("granting token allowance",
		slog.String("token", token.Hex()),
		slog.String("spender", spender.Hex()))

	data := append(append([]byte{}, selApprove...), common.LeftPadBytes(spender.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(MaxApproval.Bytes(), 32)...)

	receipt, err := t.sendAndWait(ctx, "approve_token", token, big.NewInt(0), data, nil)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("chain: approve reverted in tx %s", receipt.TxHash.Hex())
	}
	return nil
}

// WithdrawPayout redeems the payout for a won or canceled bet. It ensures
// the liquidity pool is an approved operator for the bet NFT, calls
// withdrawPayout on the pool, and returns the actual payout amount parsed
// from the ERC-20 transfer into the wallet.
func (t *TxEngine) WithdrawPayout(ctx context.Context, lp, azuroBet, token common.Address, betID *big.Int) (*big.Int, string, error) {
	owner := t.signer.Address()

	approved, err := t.exec.IsApprovedForAll(ctx, azuroBet, owner, lp)
	if err != nil {
		return nil, "", err
	}
	if !approved {
		t.logger.Info("approving bet nft operator", slog.String("operator", lp.Hex()))
		data := append(append([]byte{}, selSetApprovalForAll...), common.LeftPadBytes(lp.Bytes(), 32)...)
		data = append(data, common.LeftPadBytes(big.NewInt(1).Bytes(), 32)...)

		receipt, err := t.sendAndWait(ctx, "set_approval_for_all", azuroBet, big.NewInt(0), data, nil)
		if err != nil {
			return nil, "", err
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return nil, "", fmt.Errorf("chain: setApprovalForAll reverted in tx %s", receipt.TxHash.Hex())
		}
	}

	data := append(append([]byte{}, selWithdrawPayout...), common.LeftPadBytes(betID.Bytes(), 32)...)

	receipt, err := t.sendAndWait(ctx, "withdraw_payout", lp, big.NewInt(0), data, nil)
	if err != nil {
		return nil, "", err
	}
	txHash := receipt.TxHash.Hex()
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, txHash, fmt.Errorf("chain: withdrawPayout reverted in tx %s", txHash)
	}

	payout := parseTransferTo(receipt, token, owner)
	t.logger.Info("payout withdrawn",
		slog.String("bet_id", betID.String()),
		slog.String("tx_hash", txHash),
		slog.String("payout", payout.String()))

	return payout, txHash, nil
}

// gasPrice returns max(network suggestion * multiplier, configured floor).
func (t *TxEngine) gasPrice(ctx context.Context, conn *ConnContext) (*big.Int, error) {
	suggested, err := conn.Client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	mult := t.gas.PriceMultiplier
	if mult < 1 {
		mult = 1
	}
	scaled, _ := new(big.Float).Mul(
		new(big.Float).SetInt(suggested),
		big.NewFloat(mult),
	).Int(nil)

	floor := new(big.Int).Mul(big.NewInt(t.gas.FloorGwei), big.NewInt(1_000_000_000))
	if scaled.Cmp(floor) < 0 {
		return floor, nil
	}
	return scaled, nil
}

// sendAndWait builds, signs, and broadcasts a legacy transaction, then polls
// for its receipt. A non-nil nonce overrides the pending nonce lookup, which
// the cancellation path uses to target specific stuck nonces.
func (t *TxEngine) sendAndWait(ctx context.Context, name string, to common.Address, value *big.Int, data []byte, nonce *uint64) (*types.Receipt, error) {
	var txHash common.Hash

	err := t.exec.Execute(ctx, name, func(ctx context.Context, conn *ConnContext) error {
		n := uint64(0)
		if nonce != nil {
			n = *nonce
		} else {
			pending, err := conn.Client.PendingNonceAt(ctx, t.signer.Address())
			if err != nil {
				return err
			}
			n = pending
		}

		price, err := t.gasPrice(ctx, conn)
		if err != nil {
			return err
		}

		tx := types.NewTransaction(n, to, value, t.gas.Limit, price, data)
		signed, err := t.signer.SignTx(tx, conn.ChainID)
		if err != nil {
			return err
		}

		if err := conn.Client.SendTransaction(ctx, signed); err != nil {
			return err
		}
		txHash = signed.Hash()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return t.waitMined(ctx, name, txHash)
}

// waitMined polls for a transaction receipt until it lands or the receipt
// timeout elapses.
func (t *TxEngine) waitMined(ctx context.Context, name string, txHash common.Hash) (*types.Receipt, error) {
	deadline := time.Now().Add(t.gas.ReceiptTimeout)
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		var receipt *types.Receipt
		err := t.exec.Execute(ctx, name+"_receipt", func(ctx context.Context, conn *ConnContext) error {
			r, err := conn.Client.TransactionReceipt(ctx, txHash)
			if err != nil {
				return err
			}
			receipt = r
			return nil
		})
		if err == nil && receipt != nil {
			return receipt, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("chain: %s: tx %s not mined within %s", name, txHash.Hex(), t.gas.ReceiptTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: %s: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// parseTransferTo sums ERC-20 Transfer amounts sent to recipient in the
// receipt's logs. Zero means no transfer landed, which callers treat as an
// already-redeemed or zero-payout bet.
func parseTransferTo(receipt *types.Receipt, token, recipient common.Address) *big.Int {
	total := new(big.Int)
	for _, lg := range receipt.Logs {
		if lg.Address != token || len(lg.Topics) != 3 {
			continue
		}
		if lg.Topics[0] != topicTransfer {
			continue
		}
		to := common.BytesToAddress(lg.Topics[2].Bytes())
		if to != recipient {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(lg.Data))
	}
	return total
}
