// Package relay implements the subscription pool that fans a query across
// multiple remote relays in parallel: the multiplexer's transport layer
// (this file) and its fetch/dedup/termination logic (multiplexer.go).
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/silberengel/epaperpub/common"
	"github.com/silberengel/epaperpub/event"
)

// State is the relay handle's connection lifecycle, kept deliberately small:
// a handle is connected, in the process of connecting, or closed for good.
type State int

const (
	StatePending State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StatePending:
		return "pending"
	default:
		return "closed"
	}
}

// frameKind tags the variant messages a relay connection's reader loop
// dispatches to subscribers: an event, an end-of-stream marker, or a
// terminal error for the whole connection.
type frameKind int

const (
	frameEvent frameKind = iota
	frameEOSE
	frameError
)

type frame struct {
	kind  frameKind
	event event.Event
	err   error
}

// Handle is one pooled connection to a relay, demultiplexing incoming
// frames to whichever subscriptions are currently open on it.
type Handle struct {
	url         string
	dialTimeout time.Duration

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	subsMu sync.Mutex
	subs   map[string]chan frame

	writeMu sync.Mutex
}

func newHandle(url string, dialTimeout time.Duration) *Handle {
	return &Handle{url: url, dialTimeout: dialTimeout, state: StatePending, subs: make(map[string]chan frame)}
}

// State returns the handle's current connection state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateConnected {
		return nil
	}
	if h.state == StateClosed {
		return fmt.Errorf("relay %s: handle is closed", h.url)
	}

	dialer := websocket.Dialer{HandshakeTimeout: h.dialTimeout}
	conn, _, err := dialer.DialContext(ctx, h.url, nil)
	if err != nil {
		h.state = StateClosed
		return fmt.Errorf("relay %s: connect failed: %w", h.url, err)
	}

	h.conn = conn
	h.state = StateConnected
	go h.readLoop()
	return nil
}

// readLoop owns the connection's read side for its lifetime, dispatching
// every frame to the channel registered for its subscription id. A full
// subscriber channel drops the frame rather than stalling the whole
// connection; subscribers keep draining while a Fetch is in flight, so
// drops only happen after the subscriber has already resolved.
func (h *Handle) readLoop() {
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			h.broadcastError(err)
			return
		}

		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 2 {
			continue
		}

		var msgType string
		if err := json.Unmarshal(raw[0], &msgType); err != nil {
			continue
		}

		var subID string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			continue
		}

		switch msgType {
		case "EVENT":
			if len(raw) < 3 {
				continue
			}
			var ev event.Event
			if err := json.Unmarshal(raw[2], &ev); err != nil {
				continue
			}
			h.dispatch(subID, frame{kind: frameEvent, event: ev})
		case "EOSE":
			h.dispatch(subID, frame{kind: frameEOSE})
		case "CLOSED":
			h.dispatch(subID, frame{kind: frameEOSE})
		}
	}
}

func (h *Handle) dispatch(subID string, f frame) {
	h.subsMu.Lock()
	ch, ok := h.subs[subID]
	h.subsMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- f:
	default:
		common.Logger.WithField("relay", h.url).Warn("dropping frame: subscriber channel full")
	}
}

func (h *Handle) broadcastError(err error) {
	h.mu.Lock()
	h.state = StateClosed
	h.mu.Unlock()

	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- frame{kind: frameError, err: err}:
		default:
		}
	}
}

// register opens a subscriber channel for subID, returning it so the caller
// can read frames until it unregisters.
func (h *Handle) register(subID string) chan frame {
	ch := make(chan frame, 256)
	h.subsMu.Lock()
	h.subs[subID] = ch
	h.subsMu.Unlock()
	return ch
}

func (h *Handle) unregister(subID string) {
	h.subsMu.Lock()
	delete(h.subs, subID)
	h.subsMu.Unlock()
}

// sendREQ writes a NIP-01-shaped subscription request for one or more
// filters. Filter semantics are passed through verbatim; this layer does
// not interpret them.
func (h *Handle) sendREQ(subID string, filters []event.Filter) error {
	msg := make([]interface{}, 0, len(filters)+2)
	msg = append(msg, "REQ", subID)
	for _, f := range filters {
		msg = append(msg, f)
	}
	return h.writeJSON(msg)
}

// sendClose writes the unsubscribe request. Errors are the caller's to
// suppress — per the multiplexer's contract, close errors are never
// surfaced.
func (h *Handle) sendClose(subID string) error {
	return h.writeJSON([]interface{}{"CLOSE", subID})
}

func (h *Handle) writeJSON(v interface{}) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.mu.Lock()
	conn := h.conn
	state := h.state
	h.mu.Unlock()

	if state != StateConnected || conn == nil {
		return fmt.Errorf("relay %s: not connected", h.url)
	}
	return conn.WriteJSON(v)
}

func (h *Handle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateClosed {
		return
	}
	h.state = StateClosed
	if h.conn != nil {
		_ = h.conn.Close()
	}
}
