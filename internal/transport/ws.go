package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"perpbench/pkg/types"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	eventBufferSize  = 256
)

// EventFeed manages the venue's event WebSocket: orderUpdates,
// userFills, and userNonFundingLedgerUpdates, multiplexed onto a single
// channel of types.VenueEvent. It reconnects with exponential backoff and
// re-subscribes to all three channels on each reconnect; events the venue
// sends while the connection is down are not replayed.
type EventFeed struct {
	url string

	connMu sync.Mutex
	conn   *websocket.Conn

	events chan types.VenueEvent
	logger *slog.Logger
}

// NewEventFeed creates a feed for the given WebSocket URL.
func NewEventFeed(wsURL string, logger *slog.Logger) *EventFeed {
	return &EventFeed{
		url:    wsURL,
		events: make(chan types.VenueEvent, eventBufferSize),
		logger: logger.With("component", "event_feed"),
	}
}

// Events returns the multiplexed event channel.
func (f *EventFeed) Events() <-chan types.VenueEvent { return f.events }

// Connect dials the feed and writes the subscription requests for all three
// channels. It returns once those requests are written; it does not wait for
// the venue to confirm the subscriptions.
func (f *EventFeed) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	if err := f.subscribeAll(); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Run maintains the connection, reconnecting with exponential backoff on
// failure, until ctx is cancelled. Connect must be called first.
func (f *EventFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.readLoop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("event feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err := f.reconnect(ctx); err != nil {
			backoff *= 2
			if backoff > maxReconnectWait {
				backoff = maxReconnectWait
			}
			continue
		}
		backoff = time.Second
	}
}

func (f *EventFeed) reconnect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	return f.subscribeAll()
}

func (f *EventFeed) readLoop(ctx context.Context) error {
	f.connMu.Lock()
	conn := f.conn
	f.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.dispatch(msg)
	}
}

func (f *EventFeed) subscribeAll() error {
	channels := []types.VenueEventChannel{
		types.ChannelOrderUpdates,
		types.ChannelUserFills,
		types.ChannelUserNonFundingLedgerUpdates,
	}
	for _, ch := range channels {
		msg := struct {
			Method      string `json:"method"`
			Subscription struct {
				Type string `json:"type"`
			} `json:"subscription"`
		}{Method: "subscribe"}
		msg.Subscription.Type = string(ch)
		if err := f.writeJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *EventFeed) dispatch(data []byte) {
	var evt types.VenueEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		f.logger.Debug("ignoring non-json feed message", "data", string(data))
		return
	}
	if evt.Channel == "" {
		return
	}
	select {
	case f.events <- evt:
	default:
		f.logger.Warn("event channel full, dropping event", "channel", evt.Channel)
	}
}

func (f *EventFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *EventFeed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

// IsConnected reports whether the feed currently holds a live connection.
func (f *EventFeed) IsConnected() bool {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	return f.conn != nil
}

// Close closes the underlying connection.
func (f *EventFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
