package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ckindle-42/portal/pkg/bus"
	"github.com/ckindle-42/portal/pkg/models"
)

// sendBuffer bounds each connection's outbound queue. A consumer that
// falls this far behind is dropped rather than backpressuring the bus.
const sendBuffer = 64

const writeTimeout = 10 * time.Second

// allEventTypes is the full taxonomy the hub relays.
var allEventTypes = []models.EventType{
	models.EventProcessingStarted,
	models.EventProcessingCompleted,
	models.EventProcessingFailed,
	models.EventModelSelected,
	models.EventModelGenerating,
	models.EventModelCompleted,
	models.EventToolStarted,
	models.EventToolProgress,
	models.EventToolCompleted,
	models.EventToolFailed,
	models.EventToolConfirmationRequired,
	models.EventToolConfirmationApproved,
	models.EventToolConfirmationDenied,
	models.EventRoutingDecision,
	models.EventFallbackTriggered,
	models.EventContextLoaded,
	models.EventContextSaved,
	models.EventSecurityWarning,
	models.EventRateLimitWarning,
}

// Hub fans bus events out to WebSocket clients. Each connection gets a
// buffered send channel; overflow drops the connection.
type Hub struct {
	bus  *bus.Bus
	subs []bus.Subscription

	mu     sync.Mutex
	nextID uint64
	conns  map[uint64]chan []byte
	closed bool
}

// NewHub subscribes to the whole event taxonomy on b.
func NewHub(b *bus.Bus) *Hub {
	h := &Hub{
		bus:   b,
		conns: make(map[uint64]chan []byte),
	}
	for _, t := range allEventTypes {
		h.subs = append(h.subs, b.Subscribe(t, h.broadcast))
	}
	return h
}

// broadcast serializes one event and queues it on every connection.
// A full queue marks the connection for dropping.
func (h *Hub) broadcast(ev models.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal event for WebSocket", "event_type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.conns {
		select {
		case ch <- raw:
		default:
			slog.Warn("Dropping slow WebSocket consumer", "conn_id", id)
			close(ch)
			delete(h.conns, id)
		}
	}
}

// Handle upgrades the request and pumps events until the client goes
// away or the hub closes. Blocks for the connection's lifetime.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // same-host ops surface; no cross-origin clients
	})
	if err != nil {
		slog.Warn("WebSocket accept failed", "error", err)
		return
	}

	ch, id, ok := h.register()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.unregister(id)

	ctx := r.Context()

	// Reader goroutine: we send only, but reading surfaces client
	// closes and keeps control frames flowing.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case raw, open := <-ch:
			if !open {
				conn.Close(websocket.StatusPolicyViolation, "event queue overflow")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, raw)
			cancel()
			if err != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		case <-readerDone:
			return
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "")
			return
		}
	}
}

func (h *Hub) register() (chan []byte, uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, 0, false
	}
	h.nextID++
	ch := make(chan []byte, sendBuffer)
	h.conns[h.nextID] = ch
	return ch, h.nextID, true
}

func (h *Hub) unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.conns[id]; ok {
		close(ch)
		delete(h.conns, id)
	}
}

// Connections reports how many clients are attached.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close unsubscribes from the bus and disconnects every client.
func (h *Hub) Close() {
	for _, sub := range h.subs {
		h.bus.Unsubscribe(sub)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.conns {
		close(ch)
		delete(h.conns, id)
	}
}
