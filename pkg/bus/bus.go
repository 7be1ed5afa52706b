// Package bus is Portal's event bus: typed events fan out to
// in-process subscribers, and optionally to other Portal instances
// through a pluggable broker.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ckindle-42/portal/pkg/config"
	"github.com/ckindle-42/portal/pkg/models"
)

// ErrHistoryDisabled is returned by History when the bus was built
// with history off.
var ErrHistoryDisabled = errors.New("event history is disabled")

// defaultHistoryLimit bounds History results when the caller passes
// limit <= 0.
const defaultHistoryLimit = 100

// Handler consumes one event. Handlers for the same event run
// concurrently, each in its own goroutine; a panic is logged and
// isolated from the publisher and the other handlers.
type Handler func(models.Event)

// Subscription identifies a registered handler so it can be removed.
type Subscription struct {
	eventType models.EventType
	id        uint64
}

// Bus delivers events to subscribers by type. Publish blocks until all
// handlers for the event have finished, so sequential publishes to one
// type reach each subscriber in publication order. Safe for concurrent
// use.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[models.EventType]map[uint64]Handler

	historyOn  bool
	maxHistory int
	history    []models.Event

	brokerMu sync.Mutex
	broker   Broker
}

// New builds a bus from the events config.
func New(cfg *config.EventsConfig) *Bus {
	return &Bus{
		handlers:   make(map[models.EventType]map[uint64]Handler),
		historyOn:  cfg.EnableHistory,
		maxHistory: cfg.MaxHistory,
	}
}

// Subscribe registers a handler for one event type and returns the
// handle that removes it again.
func (b *Bus) Subscribe(eventType models.EventType, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	set, ok := b.handlers[eventType]
	if !ok {
		set = make(map[uint64]Handler)
		b.handlers[eventType] = set
	}
	set[b.nextID] = h
	return Subscription{eventType: eventType, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Removing one
// twice is a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.handlers[sub.eventType]; ok {
		delete(set, sub.id)
	}
}

// Subscribers reports how many handlers are registered for a type.
func (b *Bus) Subscribers(eventType models.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Publish constructs the event, records it when history is enabled,
// delivers it to every current subscriber of the type, and forwards it
// to the attached broker. Returns after all local handlers finish;
// broker failures are logged, never surfaced to the publisher.
func (b *Bus) Publish(ctx context.Context, eventType models.EventType, chatID string, data map[string]any, traceID string) {
	ev := models.Event{
		Type:      eventType,
		ChatID:    chatID,
		Timestamp: time.Now().UTC(),
		Data:      data,
		TraceID:   traceID,
	}
	b.dispatch(ev)

	b.brokerMu.Lock()
	broker := b.broker
	b.brokerMu.Unlock()
	if broker != nil {
		if err := broker.Publish(ctx, ev); err != nil {
			slog.Warn("Broker publish failed", "event_type", eventType, "error", err)
		}
	}
}

// dispatch records and delivers one event locally. Shared by Publish
// and by events arriving from the broker, which must not be forwarded
// back out.
func (b *Bus) dispatch(ev models.Event) {
	b.mu.Lock()
	if b.historyOn {
		b.history = append(b.history, ev)
		if b.maxHistory > 0 && len(b.history) > b.maxHistory {
			b.history = b.history[len(b.history)-b.maxHistory:]
		}
	}
	snapshot := make([]Handler, 0, len(b.handlers[ev.Type]))
	for _, h := range b.handlers[ev.Type] {
		snapshot = append(snapshot, h)
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range snapshot {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Event handler panicked", "event_type", ev.Type, "panic", r)
				}
			}()
			h(ev)
		}()
	}
	wg.Wait()
}

// History returns recorded events most-recent-first, optionally
// filtered by chat id and event type. Empty filter values match
// everything.
func (b *Bus) History(chatID string, eventType models.EventType, limit int) ([]models.Event, error) {
	if !b.historyOn {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Event, 0, min(limit, len(b.history)))
	for i := len(b.history) - 1; i >= 0 && len(out) < limit; i-- {
		ev := b.history[i]
		if chatID != "" && ev.ChatID != chatID {
			continue
		}
		if eventType != "" && ev.Type != eventType {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// AttachBroker starts the broker and routes its deliveries into local
// dispatch. Call at most once, before traffic.
func (b *Bus) AttachBroker(ctx context.Context, broker Broker) error {
	if err := broker.Start(ctx, b.dispatch); err != nil {
		return err
	}
	b.brokerMu.Lock()
	b.broker = broker
	b.brokerMu.Unlock()
	slog.Info("Event broker attached")
	return nil
}

// Close stops the attached broker, if any. The in-process bus itself
// has nothing to tear down.
func (b *Bus) Close() {
	b.brokerMu.Lock()
	broker := b.broker
	b.broker = nil
	b.brokerMu.Unlock()
	if broker != nil {
		broker.Stop()
	}
}
