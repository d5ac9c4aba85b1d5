package hive

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aristath/exposure-engine/internal/domain"
)

// Event is a message exchanged over the bidirectional channel: server
// pushes of newly-synced assets/listings/aliases, or client pushes of
// eager contributions (§4 "The Hive" is bidirectional, asynchronous).
type Event struct {
	Type    string          `json:"type"`
	Asset   *domain.Asset   `json:"asset,omitempty"`
	Listing *domain.Listing `json:"listing,omitempty"`
	Alias   *domain.Alias   `json:"alias,omitempty"`
}

const (
	EventTypeAssetSynced   = "asset_synced"
	EventTypeListingSynced = "listing_synced"
	EventTypeAliasSynced   = "alias_synced"
	EventTypeContribution  = "contribution"
)

// Channel is the open bidirectional connection to the Hive. The main
// pipeline never waits on it (§4.4 "Concurrency note"). Nothing in the
// engine opens one: the warm-sync job and eager contributions both go
// through the HTTP RPC methods instead.
type Channel struct {
	conn   *websocket.Conn
	events chan Event

	mu     sync.Mutex
	closed bool
}

// Connect opens the websocket channel. It returns an error immediately
// if dialing fails; callers treat that as "Hive unavailable for this
// run" rather than fatal, consistent with §4.3's occasionally-
// unavailable-resource contract.
func (c *Client) Connect(ctx context.Context) (*Channel, error) {
	if c.wsURL == "" {
		return nil, &domain.NetworkError{Provider: "hive_ws", Cause: errNoWSURL}
	}

	header := make(map[string][]string)
	if c.token != "" {
		header["Authorization"] = []string{"Bearer " + c.token}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, header)
	if err != nil {
		return nil, &domain.NetworkError{Provider: "hive_ws", Cause: err}
	}

	ch := &Channel{conn: conn, events: make(chan Event, 64)}
	go ch.readLoop()
	return ch, nil
}

func (ch *Channel) readLoop() {
	defer close(ch.events)
	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		select {
		case ch.events <- ev:
		default:
			// Slow consumer: drop the event rather than block the
			// socket's read loop. The warm-sync job reconciles state
			// from the next full sync regardless.
		}
	}
}

// Events returns the channel of incoming server-pushed events.
func (ch *Channel) Events() <-chan Event { return ch.events }

// Push sends a client-originated event (typically a contribution).
// Best-effort: a failed push is logged by the caller and never blocks
// the resolver (§4.4 step 8).
func (ch *Channel) Push(ev Event) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return &domain.NetworkError{Provider: "hive_ws", Cause: errChannelClosed}
	}
	return ch.conn.WriteJSON(ev)
}

// Close closes the underlying connection.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return nil
	}
	ch.closed = true
	return ch.conn.Close()
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

const (
	errNoWSURL       = simpleError("no websocket URL configured")
	errChannelClosed = simpleError("channel closed")
)
