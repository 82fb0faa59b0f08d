package debate

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable/internal/domain"
)

type seqAgent func(yield func(domain.GenerationEvent, error) bool)

func (f seqAgent) Stream(context.Context, domain.Prompt) iter.Seq2[domain.GenerationEvent, error] {
	return iter.Seq2[domain.GenerationEvent, error](f)
}

func TestDrainAgentSuccess(t *testing.T) {
	var rec recorder
	p := participant("a", newScriptAgent("Hel", "lo"))

	got, _ := drainAgent(context.Background(), p, 2, domain.Prompt{Round: 2}, rec.event)

	assert.Equal(t, domain.TurnRecord{ParticipantID: "a", ParticipantName: "Name-a", Content: "Hello", Round: 2}, got)
	evs := rec.events()
	assert.Equal(t, []domain.GenerationKind{
		domain.StreamOpened, domain.ResponseOpened, domain.ResponseToken, domain.ResponseToken, domain.StreamClosed,
	}, kinds(evs))
	for _, ev := range evs {
		assert.Equal(t, "a", ev.Participant.ID)
		assert.Equal(t, 2, ev.Round)
	}
}

func TestDrainAgentFailureMidStream(t *testing.T) {
	var rec recorder
	agent := newScriptAgent("one", "two", "three", "four")
	agent.failAt = 2

	got, _ := drainAgent(context.Background(), participant("a", agent), 1, domain.Prompt{}, rec.event)

	assert.True(t, got.Failed)
	assert.Equal(t, "[Error: rate limit exceeded]", got.Content)
	evs := rec.events()
	require.GreaterOrEqual(t, len(evs), 2)
	assert.Equal(t, domain.StreamFailed, evs[len(evs)-2].Kind)
	assert.Equal(t, "rate limit exceeded", evs[len(evs)-2].Text)
	assert.Equal(t, domain.StreamClosed, evs[len(evs)-1].Kind)
}

func TestDrainAgentRecoversPanic(t *testing.T) {
	var rec recorder
	agent := newScriptAgent("x", "y")
	agent.failAt = 1
	agent.panicMsg = "kaboom"

	got, _ := drainAgent(context.Background(), participant("a", agent), 1, domain.Prompt{}, rec.event)

	assert.True(t, got.Failed)
	assert.Equal(t, "[Error: agent panic: kaboom]", got.Content)
	evs := rec.events()
	assert.Equal(t, domain.StreamClosed, evs[len(evs)-1].Kind)
	assert.Equal(t, domain.StreamFailed, evs[len(evs)-2].Kind)
}

func TestDrainAgentSynthesizesStreamOpened(t *testing.T) {
	var rec recorder
	agent := seqAgent(func(yield func(domain.GenerationEvent, error) bool) {
		_ = yield(domain.NewToken("hi"), nil)
	})

	got, _ := drainAgent(context.Background(), participant("a", agent), 1, domain.Prompt{}, rec.event)

	assert.Equal(t, "hi", got.Content)
	assert.Equal(t, []domain.GenerationKind{domain.StreamOpened, domain.ResponseToken, domain.StreamClosed}, kinds(rec.events()))
}

func TestDrainAgentIgnoresAgentTerminalEvents(t *testing.T) {
	var rec recorder
	agent := seqAgent(func(yield func(domain.GenerationEvent, error) bool) {
		for _, ev := range []domain.GenerationEvent{
			domain.NewMarker(domain.StreamOpened),
			domain.NewMarker(domain.StreamOpened),
			domain.NewMarker(domain.StreamClosed),
			domain.NewToken("ok"),
			{Kind: domain.StreamFailed, Text: "fake"},
		} {
			if !yield(ev, nil) {
				return
			}
		}
	})

	got, _ := drainAgent(context.Background(), participant("a", agent), 1, domain.Prompt{}, rec.event)

	assert.False(t, got.Failed)
	assert.Equal(t, []domain.GenerationKind{domain.StreamOpened, domain.ResponseToken, domain.StreamClosed}, kinds(rec.events()))
}

func TestDrainAgentErrorBeforeAnyEvent(t *testing.T) {
	var rec recorder
	agent := seqAgent(func(yield func(domain.GenerationEvent, error) bool) {
		yield(domain.GenerationEvent{}, domain.ErrAuthInvalid)
	})

	got, _ := drainAgent(context.Background(), participant("a", agent), 1, domain.Prompt{}, rec.event)

	assert.True(t, got.Failed)
	assert.Equal(t, []domain.GenerationKind{domain.StreamOpened, domain.StreamFailed, domain.StreamClosed}, kinds(rec.events()))
}

func TestDrainAgentCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var rec recorder
	agent := newScriptAgent("never")

	got, _ := drainAgent(ctx, participant("a", agent), 1, domain.Prompt{}, rec.event)

	assert.Equal(t, "[Error: context canceled]", got.Content)
	assert.True(t, got.Failed)
	assert.Empty(t, agent.prompts, "agent must not be started on a dead context")
	assert.Equal(t, []domain.GenerationKind{domain.StreamOpened, domain.StreamFailed, domain.StreamClosed}, kinds(rec.events()))
}

func TestDrainAgentCancelledMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var rec recorder
	agent := seqAgent(func(yield func(domain.GenerationEvent, error) bool) {
		yield(domain.NewMarker(domain.StreamOpened), nil)
		yield(domain.NewMarker(domain.ResponseOpened), nil)
		cancel()
		for {
			if !yield(domain.NewToken("spam"), nil) {
				return
			}
		}
	})

	got, _ := drainAgent(ctx, participant("a", agent), 1, domain.Prompt{}, rec.event)

	assert.Equal(t, "[Error: context canceled]", got.Content)
	terminals := 0
	for _, ev := range rec.events() {
		if ev.Kind == domain.StreamClosed {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
}
