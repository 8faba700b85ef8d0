package chain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/azubet/azubet/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errClass
	}{
		{"insufficient funds", errors.New("err: insufficient funds for gas * price + value"), classFatal},
		{"wrapped sentinel", fmt.Errorf("op: %w", domain.ErrInsufficientFunds), classFatal},
		{"http 429", errors.New("429 Too Many Requests"), classRotate},
		{"too many requests", errors.New("too many requests"), classRotate},
		{"rate limit", errors.New("rate limit exceeded"), classRotate},
		{"quota", errors.New("daily quota exceeded"), classRotate},
		{"compute units", errors.New("exceeded the compute units per second capacity"), classRotate},
		{"timeout", errors.New("i/o timeout"), classTransient},
		{"connection refused", errors.New("dial tcp: connection refused"), classTransient},
		{"nonce too low", errors.New("nonce too low"), classTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err); got != tc.want {
				t.Fatalf("classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestFundingHint(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			"have want",
			errors.New("insufficient funds for gas * price + value: address 0xbb have 100 want 250"),
			"fund the wallet with at least 150 wei and retry",
		},
		{
			"balance want",
			errors.New("insufficient funds: balance 1000, want 4000"),
			"fund the wallet with at least 3000 wei and retry",
		},
		{
			"no amounts",
			errors.New("insufficient funds for transfer"),
			"fund the wallet and retry",
		},
		{
			"have covers want",
			errors.New("insufficient funds: have 500 want 100"),
			"fund the wallet and retry",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := fundingHint(tc.err); got != tc.want {
				t.Fatalf("fundingHint = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBackoffBounds(t *testing.T) {
	e := &Executor{cfg: RetryConfig{
		BackoffBase: 100 * time.Millisecond,
		BackoffMax:  time.Second,
	}}

	for k := 0; k < 10; k++ {
		d := e.backoff(k)
		if d <= 0 {
			t.Fatalf("backoff(%d) = %v, must be positive", k, d)
		}
		if d > time.Second {
			t.Fatalf("backoff(%d) = %v, exceeds max", k, d)
		}
	}

	// Large k must clamp to the max instead of overflowing.
	if d := e.backoff(62); d != time.Second {
		t.Fatalf("backoff(62) = %v, want max %v", d, time.Second)
	}
}

func TestBackoffDefaults(t *testing.T) {
	e := &Executor{cfg: RetryConfig{}}
	if d := e.backoff(0); d <= 0 || d > 30*time.Second {
		t.Fatalf("backoff with zero config = %v, want within (0, 30s]", d)
	}
}
