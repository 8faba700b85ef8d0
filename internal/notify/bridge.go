package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/azubet/azubet/internal/domain"
)

// Bridge subscribes to the bet event channel on the signal bus and forwards
// lifecycle events to the Notifier. It runs until its context is canceled.
type Bridge struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewBridge creates a Bridge between the signal bus and the notifier.
func NewBridge(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Bridge {
	return &Bridge{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_bridge")),
	}
}

// Run consumes bet events until ctx is canceled. Malformed events are logged
// and skipped; notification failures never stop the loop.
func (b *Bridge) Run(ctx context.Context) error {
	events, err := b.bus.Subscribe(ctx, "bets")
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-events:
			if !ok {
				return nil
			}
			b.handle(ctx, payload)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, payload []byte) {
	var evt map[string]string
	if err := json.Unmarshal(payload, &evt); err != nil {
		b.logger.Warn("malformed event", slog.String("error", err.Error()))
		return
	}

	event := evt["event"]
	if event == "" {
		return
	}

	title, message := formatEvent(event, evt)
	if err := b.notifier.Notify(ctx, event, title, message); err != nil {
		b.logger.Warn("notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

// formatEvent renders a bet lifecycle event into a short operator message.
func formatEvent(event string, fields map[string]string) (title, message string) {
	switch event {
	case "bet_accepted":
		return "Bet accepted",
			fmt.Sprintf("bet %s accepted on-chain (tx %s)", fields["bet_id"], fields["tx_hash"])
	case "bet_rejected":
		return "Bet rejected",
			fmt.Sprintf("bet %s rejected: %s", fields["local_id"], fields["reason"])
	case "ghost_recovered":
		return "Ghost bet recovered",
			fmt.Sprintf("record %s matched to on-chain bet %s", fields["local_id"], fields["bet_id"])
	case "settled":
		if fields["cashout"] == "true" {
			return "Bet cashed out",
				fmt.Sprintf("bet %s cashed out for %s", fields["bet_id"], fields["payout"])
		}
		return "Bet settled",
			fmt.Sprintf("bet %s settled %s (payout %s)", fields["bet_id"], fields["result"], fields["payout"])
	case "payout_withdrawn":
		return "Payout withdrawn",
			fmt.Sprintf("payout %s withdrawn for bet %s (tx %s)", fields["payout"], fields["bet_id"], fields["tx_hash"])
	case "error":
		return "Error", fields["message"]
	default:
		return event, fmt.Sprintf("%v", fields)
	}
}
