package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/azubet/azubet/internal/domain"
)

// RetryConfig tunes the executor's retry loop.
type RetryConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// errClass buckets an RPC failure for the retry loop.
type errClass int

const (
	// classTransient retries on the same endpoint after backoff.
	classTransient errClass = iota
	// classRotate retries on the next endpoint in the pool.
	classRotate
	// classFatal aborts immediately; retrying cannot succeed.
	classFatal
)

// Executor runs blockchain operations against the endpoint pool with
// exponential backoff and endpoint rotation. All RPC traffic in the process
// goes through one Executor so rotation decisions are shared.
type Executor struct {
	pool   *EndpointPool
	cfg    RetryConfig
	logger *slog.Logger

	mu   sync.Mutex
	conn *ConnContext
}

// NewExecutor creates an Executor over the given pool. The connection to the
// current endpoint is dialed lazily on first use.
func NewExecutor(pool *EndpointPool, chainID int64, cfg RetryConfig, logger *slog.Logger) *Executor {
	return &Executor{
		pool:   pool,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "chain_executor")),
		conn:   &ConnContext{Endpoint: pool.Current(), ChainID: bigFromInt64(chainID)},
	}
}

// Close releases the current RPC connection, if any.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conn.Close()
}

// Conn returns the connection for the current endpoint, dialing if needed.
func (e *Executor) Conn(ctx context.Context) (*ConnContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connLocked(ctx)
}

func (e *Executor) connLocked(ctx context.Context) (*ConnContext, error) {
	if e.conn.Client != nil {
		return e.conn, nil
	}
	conn, err := Dial(ctx, e.conn.Endpoint, e.conn.ChainID)
	if err != nil {
		return nil, err
	}
	e.conn = conn
	return e.conn, nil
}

// rotate advances the pool and rebuilds the connection context for the new
// endpoint. The old client is closed; in-flight operations holding the old
// ConnContext finish against it unaffected.
func (e *Executor) rotate(ctx context.Context) (*ConnContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.conn
	endpoint := e.pool.Rotate()
	e.conn = &ConnContext{Endpoint: endpoint, ChainID: old.ChainID}
	old.Close()

	e.logger.Warn("rotated rpc endpoint",
		slog.String("from", old.Endpoint),
		slog.String("to", endpoint))

	return e.connLocked(ctx)
}

// Execute runs op with retry, backoff, and endpoint rotation. The operation
// receives the current ConnContext; it must not cache the client across
// calls. Fatal errors abort immediately, rate-limit errors rotate to the
// next endpoint, everything else retries on the same endpoint. The loop runs
// at most MaxRetries+1 attempts.
func (e *Executor) Execute(ctx context.Context, name string, op func(ctx context.Context, conn *ConnContext) error) error {
	attempts := e.cfg.MaxRetries + 1
	rotations := 0

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, e.backoff(attempt-1)); err != nil {
				return fmt.Errorf("chain: %s: %w", name, err)
			}
		}

		conn, err := e.Conn(ctx)
		if err != nil {
			lastErr = err
			if _, rerr := e.rotate(ctx); rerr != nil {
				lastErr = rerr
			}
			rotations++
			if rotations >= e.pool.Len() && e.pool.Len() > 1 {
				break
			}
			continue
		}

		err = op(ctx, conn)
		if err == nil {
			return nil
		}
		lastErr = err

		switch classify(err) {
		case classFatal:
			if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
				return fmt.Errorf("chain: %s: %w: %s: %v",
					name, domain.ErrInsufficientFunds, fundingHint(err), err)
			}
			return fmt.Errorf("chain: %s: %w", name, err)
		case classRotate:
			e.logger.Warn("rate limited, rotating endpoint",
				slog.String("op", name),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			if _, rerr := e.rotate(ctx); rerr != nil {
				lastErr = rerr
			}
			rotations++
			if rotations >= e.pool.Len() && e.pool.Len() > 1 {
				// Every endpoint has been tried; the pool has wrapped
				// back to the original, so stop burning attempts.
				return fmt.Errorf("chain: %s: all %d endpoints exhausted: %w: %v",
					name, e.pool.Len(), domain.ErrExhaustedRetries, lastErr)
			}
		case classTransient:
			e.logger.Debug("transient rpc error, retrying",
				slog.String("op", name),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
		}
	}

	return fmt.Errorf("chain: %s: %w after %d attempts: %v",
		name, domain.ErrExhaustedRetries, attempts, lastErr)
}

// backoff returns min(base * 2^k + jitter, max) for retry number k.
func (e *Executor) backoff(k int) time.Duration {
	base := e.cfg.BackoffBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := e.cfg.BackoffMax
	if max <= 0 {
		max = 30 * time.Second
	}

	delay := base << uint(k)
	if delay <= 0 || delay > max {
		return max
	}
	jitter := time.Duration(rand.Int63n(int64(base)))
	if delay+jitter > max {
		return max
	}
	return delay + jitter
}

// fundingHint builds the remediation text for an insufficient-funds error.
// Nodes report "have X want Y" (older ones "balance X"); when both amounts
// parse, the hint names the exact shortfall.
func fundingHint(err error) string {
	fields := strings.Fields(err.Error())
	var have, want *big.Int
	for i := 0; i+1 < len(fields); i++ {
		v, ok := new(big.Int).SetString(strings.Trim(fields[i+1], ",()"), 10)
		if !ok {
			continue
		}
		switch fields[i] {
		case "have", "balance":
			have = v
		case "want":
			want = v
		}
	}
	if have != nil && want != nil && want.Cmp(have) > 0 {
		return fmt.Sprintf("fund the wallet with at least %s wei and retry", new(big.Int).Sub(want, have))
	}
	return "fund the wallet and retry"
}

// classify buckets an error for the retry loop by message inspection; RPC
// providers do not return structured error codes consistently enough to
// switch on anything else.
func classify(err error) errClass {
	if errors.Is(err, domain.ErrInsufficientFunds) {
		return classFatal
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "insufficient funds"):
		return classFatal
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota exceeded"),
		strings.Contains(msg, "exceeded the compute"):
		return classRotate
	default:
		return classTransient
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
