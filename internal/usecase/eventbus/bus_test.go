package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"roundtable/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.Default())
}

func newEvent(t domain.EventType) domain.Event {
	return domain.Event{Type: t, Timestamp: time.Now()}
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventRoundStarted, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventRoundStarted {
			got.Add(1)
		}
	})

	bus.Publish(context.Background(), newEvent(domain.EventRoundStarted))
	bus.Publish(context.Background(), newEvent(domain.EventRoundCompleted))
	bus.Close()
	if got.Load() != 1 {
		t.Fatalf("expected 1, got %d", got.Load())
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventDebateStarted))
	bus.Publish(context.Background(), newEvent(domain.EventParticipantFailed))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2, got %d", got.Load())
	}
}

func TestTypedAndAllBothReceive(t *testing.T) {
	bus := newTestBus()

	var typed, all atomic.Int32
	bus.Subscribe(domain.EventDebateCompleted, func(context.Context, domain.Event) { typed.Add(1) })
	bus.SubscribeAll(func(context.Context, domain.Event) { all.Add(1) })

	bus.Publish(context.Background(), newEvent(domain.EventDebateCompleted))
	bus.Close()

	if typed.Load() != 1 || all.Load() != 1 {
		t.Fatalf("typed=%d all=%d, want 1/1", typed.Load(), all.Load())
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	unsub := bus.Subscribe(domain.EventRoundStarted, func(context.Context, domain.Event) { got.Add(1) })
	unsubAll := bus.SubscribeAll(func(context.Context, domain.Event) { got.Add(1) })
	unsub()
	unsubAll()

	bus.Publish(context.Background(), newEvent(domain.EventRoundStarted))
	bus.Close()
	if got.Load() != 0 {
		t.Fatalf("expected 0 after unsubscribe, got %d", got.Load())
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventParticipantDone, func(context.Context, domain.Event) { got.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), newEvent(domain.EventParticipantDone))
		}()
	}
	wg.Wait()
	bus.Close()

	if got.Load() != 50 {
		t.Fatalf("expected 50, got %d", got.Load())
	}
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventRoundStarted, func(context.Context, domain.Event) { panic("boom") })
	bus.Subscribe(domain.EventRoundStarted, func(context.Context, domain.Event) { got.Add(1) })

	bus.Publish(context.Background(), newEvent(domain.EventRoundStarted))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("healthy handler should still run, got %d", got.Load())
	}
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(context.Context, domain.Event) {
		time.Sleep(20 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventDebateStarted))
	bus.Close()
	if got.Load() != 1 {
		t.Fatalf("Close should wait for in-flight handler, got %d", got.Load())
	}

	bus.Publish(context.Background(), newEvent(domain.EventDebateStarted))
	bus.Close()
	if got.Load() != 1 {
		t.Fatalf("publish after close should be dropped, got %d", got.Load())
	}
}

func TestEmitMarshalsPayload(t *testing.T) {
	bus := newTestBus()

	received := make(chan domain.Event, 1)
	bus.Subscribe(domain.EventParticipantFailed, func(_ context.Context, e domain.Event) { received <- e })

	bus.Emit(context.Background(), domain.EventParticipantFailed, "01J0SESSION", domain.ParticipantPayload{
		ParticipantID: "grok",
		Round:         2,
		Error:         "rate limit exceeded",
	})
	bus.Close()

	e := <-received
	if e.SessionID != "01J0SESSION" {
		t.Errorf("SessionID = %q", e.SessionID)
	}
	var p domain.ParticipantPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.ParticipantID != "grok" || p.Round != 2 {
		t.Errorf("payload = %+v", p)
	}
}

func TestNewEventRejectsUnmarshalable(t *testing.T) {
	if _, err := NewEvent(domain.EventDebateStarted, "", make(chan int)); err == nil {
		t.Error("expected marshal error for channel payload")
	}
	e, err := NewEvent(domain.EventDebateCompleted, "s", nil)
	if err != nil || e.Payload != nil {
		t.Errorf("nil payload: event=%+v err=%v", e, err)
	}
}
