// Package chain provides the RPC endpoint pool, the retry/backoff executor
// that routes every blockchain operation, and the transaction engine for
// payout withdrawal and stuck-transaction cancellation.
package chain

import (
	"fmt"
	"sync/atomic"
)

// EndpointPool maintains a rotating list of RPC endpoints for one chain. The
// current index is process-wide shared state; Rotate advances it atomically
// so concurrent retry loops observe a consistent "current" endpoint.
type EndpointPool struct {
	endpoints []string
	idx       atomic.Int64
}

// NewEndpointPool creates a pool from the configured endpoint URLs.
func NewEndpointPool(endpoints []string) (*EndpointPool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("chain: endpoint pool requires at least one endpoint")
	}
	out := make([]string, len(endpoints))
	copy(out, endpoints)
	return &EndpointPool{endpoints: out}, nil
}

// Current returns the endpoint at the current index.
func (p *EndpointPool) Current() string {
	return p.endpoints[int(p.idx.Load())%len(p.endpoints)]
}

// Index returns the current endpoint index.
func (p *EndpointPool) Index() int {
	return int(p.idx.Load()) % len(p.endpoints)
}

// Rotate advances to the next endpoint, wrapping around, and returns the new
// current endpoint. After Len() rotations the pool is back at its original
// endpoint.
func (p *EndpointPool) Rotate() string {
	next := p.idx.Add(1)
	return p.endpoints[int(next)%len(p.endpoints)]
}

// Len returns the number of endpoints in the pool.
func (p *EndpointPool) Len() int {
	return len(p.endpoints)
}
