package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"roundtable/internal/domain"
)

// allEvents keys the subscribers that receive every event type.
const allEvents domain.EventType = ""

type subscription struct {
	id      uint64
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus. Debate lifecycle events
// flow through it to the metrics counters and the audit log; it never sits
// on the token streaming path.
type Bus struct {
	mu     sync.RWMutex
	subs   map[domain.EventType][]subscription
	nextID atomic.Uint64
	logger *slog.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[domain.EventType][]subscription),
		logger: logger,
	}
}

// Publish fans an event out to its typed subscribers and then to the
// all-event subscribers. Each handler runs in its own goroutine and a
// panicking handler is recovered and logged.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	targets := slices.Concat(b.subs[event.Type], b.subs[allEvents])
	b.mu.RUnlock()

	for _, sub := range targets {
		b.dispatch(ctx, event, sub)
	}
}

// Emit marshals payload into an Event of the given type and publishes it.
func (b *Bus) Emit(ctx context.Context, eventType domain.EventType, sessionID string, payload any) {
	event, err := NewEvent(eventType, sessionID, payload)
	if err != nil {
		b.logger.Error("event payload marshal failed", "event", string(eventType), "error", err)
		return
	}
	b.Publish(ctx, event)
}

// NewEvent builds an Event stamped with the current time.
func NewEvent(eventType domain.EventType, sessionID string, payload any) (domain.Event, error) {
	event := domain.Event{Type: eventType, Timestamp: time.Now(), SessionID: sessionID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return domain.Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		event.Payload = raw
	}
	return event, nil
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"panic", r,
				)
			}
		}()
		sub.handler(ctx, event)
	}()
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs[eventType] = slices.DeleteFunc(b.subs[eventType], func(s subscription) bool {
			return s.id == id
		})
	}
}

// SubscribeAll registers a handler that receives every event.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.Subscribe(allEvents, handler)
}

// Close prevents new publishes and waits for in-flight handlers. It is
// idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
