package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// ConnContext bundles a dialed RPC client with the endpoint it points at.
// The executor treats it as immutable: endpoint rotation builds a fresh
// ConnContext rather than mutating the old one, so operations holding a
// reference keep a consistent view for their whole attempt.
type ConnContext struct {
	Endpoint string
	ChainID  *big.Int
	Client   *ethclient.Client
}

// Dial connects to an RPC endpoint and wraps it in a ConnContext.
func Dial(ctx context.Context, endpoint string, chainID *big.Int) (*ConnContext, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", endpoint, err)
	}
	return &ConnContext{
		Endpoint: endpoint,
		ChainID:  chainID,
		Client:   client,
	}, nil
}

// Close releases the underlying RPC client.
func (c *ConnContext) Close() {
	if c != nil && c.Client != nil {
		c.Client.Close()
	}
}

func bigFromInt64(v int64) *big.Int {
	return big.NewInt(v)
}
