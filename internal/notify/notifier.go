// Package notify fans bet lifecycle events out to operator channels. The
// Bridge consumes the signal bus, the Notifier filters by event name and
// delivers through every configured Sender.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers one rendered message to a single channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs, e.g. "telegram".
	Name() string
}

// Notifier delivers filtered lifecycle events to its senders. A bet desk
// usually wants bet_rejected and error but not every bet_accepted, so the
// filter lives here rather than in each sender.
type Notifier struct {
	senders []Sender
	allow   map[string]struct{}
	logger  *slog.Logger
}

// NewNotifier builds a Notifier delivering to senders. events names the
// lifecycle events to forward; an empty list forwards everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	n := &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	if len(events) > 0 {
		n.allow = make(map[string]struct{}, len(events))
		for _, e := range events {
			n.allow[strings.TrimSpace(e)] = struct{}{}
		}
	}
	return n
}

// Notify delivers title and message to every sender when event passes the
// filter. Senders fail independently; the joined error reports which ones did.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n.allow != nil {
		if _, ok := n.allow[event]; !ok {
			return nil
		}
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
