package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeSender struct {
	name string
	sent []string
	err  error
}

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	f.sent = append(f.sent, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{"bet_rejected", "error"}, discardLogger())

	if err := n.Notify(context.Background(), "bet_accepted", "Accepted", "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(context.Background(), "bet_rejected", "Rejected", "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(s.sent) != 1 || s.sent[0] != "Rejected" {
		t.Fatalf("sent = %v, want only the rejected event", s.sent)
	}
}

func TestNotifyEmptyFilterForwardsEverything(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	for _, event := range []string{"bet_accepted", "settled", "error"} {
		if err := n.Notify(context.Background(), event, event, "x"); err != nil {
			t.Fatalf("Notify(%s): %v", event, err)
		}
	}
	if len(s.sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(s.sent))
	}
}

func TestNotifyDeliversPastFailedSender(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), "error", "Error", "x")
	if err == nil {
		t.Fatal("want an error naming the failed sender")
	}
	if len(good.sent) != 1 {
		t.Fatalf("good sender got %d messages, want 1", len(good.sent))
	}
}
