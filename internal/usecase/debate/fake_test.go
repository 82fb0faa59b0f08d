package debate

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"sync"
	"testing"

	"roundtable/internal/domain"
)

// scriptAgent yields a fixed response split into tokens. failAt >= 0 makes
// the stream error before yielding token failAt.
type scriptAgent struct {
	tokens    []string
	reasoning []string
	failAt    int
	panicMsg  string
	gate      chan struct{} // optional, closed to let the stream proceed

	mu      sync.Mutex
	prompts []domain.Prompt
}

func newScriptAgent(tokens ...string) *scriptAgent {
	return &scriptAgent{tokens: tokens, failAt: -1}
}

func (a *scriptAgent) Stream(ctx context.Context, prompt domain.Prompt) iter.Seq2[domain.GenerationEvent, error] {
	return func(yield func(domain.GenerationEvent, error) bool) {
		a.mu.Lock()
		a.prompts = append(a.prompts, prompt)
		a.mu.Unlock()

		if !yield(domain.NewMarker(domain.StreamOpened), nil) {
			return
		}
		if a.gate != nil {
			select {
			case <-a.gate:
			case <-ctx.Done():
				yield(domain.GenerationEvent{}, ctx.Err())
				return
			}
		}
		if prompt.WantReasoning && len(a.reasoning) > 0 {
			if !yield(domain.NewMarker(domain.ReasoningOpened), nil) {
				return
			}
			for _, r := range a.reasoning {
				if !yield(domain.NewReasoningToken(r), nil) {
					return
				}
			}
		}
		if !yield(domain.NewMarker(domain.ResponseOpened), nil) {
			return
		}
		for i, tok := range a.tokens {
			if i == a.failAt {
				if a.panicMsg != "" {
					panic(a.panicMsg)
				}
				yield(domain.GenerationEvent{}, domain.ErrRateLimit)
				return
			}
			if !yield(domain.NewToken(tok), nil) {
				return
			}
		}
	}
}

func (a *scriptAgent) promptFor(round int) domain.Prompt {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.prompts {
		if p.Round == round {
			return p
		}
	}
	return domain.Prompt{}
}

func participant(id string, agent domain.Agent) Participant {
	return Participant{
		ParticipantDescriptor: domain.ParticipantDescriptor{
			ID:       id,
			Name:     "Name-" + id,
			Color:    "#000",
			Avatar:   "o",
			Provider: "fake",
		},
		Agent:     agent,
		Available: true,
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects session output safely.
type recorder struct {
	mu    sync.Mutex
	items []domain.Output
}

func (r *recorder) sink(o domain.Output) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, o)
}

func (r *recorder) event(ev domain.GenerationEvent) { r.sink(ev) }

func (r *recorder) events() []domain.GenerationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.GenerationEvent
	for _, it := range r.items {
		if ev, ok := it.(domain.GenerationEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) all() []domain.Output {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Output(nil), r.items...)
}

func eventsFor(evs []domain.GenerationEvent, id string) []domain.GenerationEvent {
	var out []domain.GenerationEvent
	for _, ev := range evs {
		if ev.Participant.ID == id {
			out = append(out, ev)
		}
	}
	return out
}

func kinds(evs []domain.GenerationEvent) []domain.GenerationKind {
	out := make([]domain.GenerationKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

func mustRegistry(t *testing.T, ps ...Participant) *Registry {
	t.Helper()
	r, err := NewRegistry(ps...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}
