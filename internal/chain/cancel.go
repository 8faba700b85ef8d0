package chain

import (
	"context"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CancelStuck detects a nonce gap between the wallet's latest mined nonce
// and its pending nonce, and clears it by sending a zero-value self-transfer
// for each stuck nonce at a bumped gas price. It returns how many stuck
// nonces were resolved.
func (t *TxEngine) CancelStuck(ctx context.Context) (int, error) {
	wallet := t.signer.Address()

	var latest, pending uint64
	err := t.exec.Execute(ctx, "nonce_gap", func(ctx context.Context, conn *ConnContext) error {
		l, err := conn.Client.NonceAt(ctx, wallet, nil)
		if err != nil {
			return err
		}
		p, err := conn.Client.PendingNonceAt(ctx, wallet)
		if err != nil {
			return err
		}
		latest, pending = l, p
		return nil
	})
	if err != nil {
		return 0, err
	}

	if pending <= latest {
		return 0, nil
	}

	t.logger.Warn("nonce gap detected",
		slog.Uint64("latest", latest),
		slog.Uint64("pending", pending))

	resolved := 0
	for n := latest; n < pending; n++ {
		if err := t.cancelNonce(ctx, n); err != nil {
			// "nonce too low" means the original transaction mined in
			// the meantime; the gap at this nonce is gone either way.
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "nonce too low") {
				resolved++
				continue
			}
			if strings.Contains(msg, "replacement transaction underpriced") {
				t.logger.Warn("replacement underpriced, leaving nonce",
					slog.Uint64("nonce", n))
				continue
			}
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

// cancelNonce replaces the transaction at nonce n with a zero-value transfer
// to self. The replacement must outbid the original, so the price gets a
// further 50% bump on top of the configured multiplier.
func (t *TxEngine) cancelNonce(ctx context.Context, n uint64) error {
	wallet := t.signer.Address()

	var txHash common.Hash
	err := t.exec.Execute(ctx, "cancel_nonce", func(ctx context.Context, conn *ConnContext) error {
		price, err := t.gasPrice(ctx, conn)
		if err != nil {
			return err
		}
		price.Add(price, new(big.Int).Div(price, big.NewInt(2)))

		tx := types.NewTransaction(n, wallet, big.NewInt(0), 21_000, price, nil)
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
		return err
	}

	if _, err := t.waitMined(ctx, "cancel_nonce", txHash); err != nil {
		return err
	}
	t.logger.Info("stuck nonce cleared",
		slog.Uint64("nonce", n),
		slog.String("tx_hash", txHash.Hex()))
	return nil
}
