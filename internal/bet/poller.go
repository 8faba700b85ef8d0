package bet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/azubet/azubet/internal/azuro"
)

// OrderSource fetches relayer order state. Satisfied by
// *azuro.RelayerClient.
type OrderSource interface {
	GetOrder(ctx context.Context, orderID string) (azuro.Order, error)
}

// PollResult is the outcome of polling one order.
type PollResult struct {
	Order azuro.Order
	// TimedOut is set when the poll budget elapsed without the order
	// reaching a terminal state. The bet's fate is unknown at that point,
	// not rejected; reconciliation settles it later.
	TimedOut bool
}

// Poller watches a submitted order until the relayer reports a terminal
// state or the poll budget runs out.
type Poller struct {
	source   OrderSource
	interval time.Duration
	budget   time.Duration
	logger   *slog.Logger
}

// NewPoller creates a Poller. interval is the gap between status checks,
// budget the total time allowed before giving up.
func NewPoller(source OrderSource, interval, budget time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if budget <= 0 {
		budget = 30 * time.Second
	}
	return &Poller{
		source:   source,
		interval: interval,
		budget:   budget,
		logger:   logger.With(slog.String("component", "order_poller")),
	}
}

// Await polls the order until terminal or the budget elapses. Transient
// fetch errors are logged and retried within the budget; they never fail the
// poll on their own.
func (p *Poller) Await(ctx context.Context, orderID string) (PollResult, error) {
	deadline := time.Now().Add(p.budget)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		order, err := p.source.GetOrder(ctx, orderID)
		if err != nil {
			p.logger.Warn("order status check failed",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()))
		} else if order.Terminal() {
			return PollResult{Order: order}, nil
		}

		if time.Now().After(deadline) {
			p.logger.Warn("order poll budget exhausted, outcome unknown",
				slog.String("order_id", orderID))
			return PollResult{Order: order, TimedOut: true}, nil
		}

		select {
		case <-ctx.Done():
			return PollResult{}, fmt.Errorf("bet: poll order %s: %w", orderID, ctx.Err())
		case <-ticker.C:
		}
	}
}
