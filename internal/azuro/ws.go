package azuro

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/azubet/azubet/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// OddsHandler is called for every odds change received on the stream.
type OddsHandler func(domain.OddsUpdate)

// OddsStream is a WebSocket client for the Azuro live odds feed. It manages
// the connection lifecycle, per-condition subscriptions, and dispatches odds
// updates to registered handlers.
type OddsStream struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Condition ids to restore on reconnect.
	subscriptions map[string]struct{}

	handlers  []OddsHandler
	handlerMu sync.RWMutex

	// done is closed when the stream is shut down.
	done chan struct{}
}

// NewOddsStream creates a stream client for the given WebSocket URL.
func NewOddsStream(wsURL string) *OddsStream {
	return &OddsStream{
		wsURL:         wsURL,
		subscriptions: make(map[string]struct{}),
		done:          make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. Previously subscribed conditions are re-subscribed.
func (w *OddsStream) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("azuro/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("azuro/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	if len(w.subscriptions) > 0 {
		ids := make([]string, 0, len(w.subscriptions))
		for id := range w.subscriptions {
			ids = append(ids, id)
		}
		if err := w.sendCommand(streamCommand{Action: "subscribe", ConditionIDs: ids}); err != nil {
			return fmt.Errorf("azuro/ws: restore subscriptions: %w", err)
		}
	}

	return nil
}

// Subscribe starts receiving odds updates for the given condition ids.
func (w *OddsStream) Subscribe(ctx context.Context, conditionIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("azuro/ws: not connected")
	}

	if err := w.sendCommand(streamCommand{Action: "subscribe", ConditionIDs: conditionIDs}); err != nil {
		return fmt.Errorf("azuro/ws: subscribe: %w", err)
	}
	for _, id := range conditionIDs {
		w.subscriptions[id] = struct{}{}
	}
	return nil
}

// Unsubscribe stops receiving odds updates for the given condition ids.
func (w *OddsStream) Unsubscribe(ctx context.Context, conditionIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("azuro/ws: not connected")
	}

	if err := w.sendCommand(streamCommand{Action: "unsubscribe", ConditionIDs: conditionIDs}); err != nil {
		return fmt.Errorf("azuro/ws: unsubscribe: %w", err)
	}
	for _, id := range conditionIDs {
		delete(w.subscriptions, id)
	}
	return nil
}

// OnOdds registers a handler called for every odds update.
func (w *OddsStream) OnOdds(handler OddsHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Close shuts down the connection and stops the read loop.
func (w *OddsStream) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// streamCommand is the JSON command envelope for the odds feed.
type streamCommand struct {
	Action       string   `json:"action"`
	ConditionIDs []string `json:"conditionIds"`
}

// oddsMessage is the feed's odds-change frame. Each frame carries the full
// set of current outcome odds for one condition.
type oddsMessage struct {
	Type        string `json:"type"`
	ConditionID string `json:"conditionId"`
	Timestamp   int64  `json:"timestamp"`
	Outcomes    []struct {
		OutcomeID json.Number `json:"outcomeId"`
		Odds      float64     `json:"currentOdds"`
	} `json:"outcomes"`
}

// sendCommand sends a JSON command. Caller must hold w.mu.
func (w *OddsStream) sendCommand(cmd streamCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads frames and dispatches odds updates. On
// disconnect it reconnects with exponential backoff.
func (w *OddsStream) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (w *OddsStream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw frame and fans out one OddsUpdate per outcome.
func (w *OddsStream) handleMessage(raw []byte) {
	var msg oddsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return // Silently drop unparseable frames.
	}
	if msg.ConditionID == "" || len(msg.Outcomes) == 0 {
		return
	}

	ts := time.Now().UTC()
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp).UTC()
	}

	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()

	for _, out := range msg.Outcomes {
		update := domain.OddsUpdate{
			ConditionID: msg.ConditionID,
			OutcomeID:   outcomeIDString(out.OutcomeID),
			Odds:        out.Odds,
			Timestamp:   ts,
		}
		for _, h := range handlers {
			h(update)
		}
	}
}

func outcomeIDString(n json.Number) string {
	s := n.String()
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	return s
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the stream is closed.
func (w *OddsStream) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
