package debate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"roundtable/internal/domain"
	"roundtable/internal/infra/tracer"
	"roundtable/internal/usecase/eventbus"
)

// Turn is the static input shared by every participant turn in a session.
type Turn struct {
	SessionID     string
	Question      string
	SystemPrompt  string
	WantReasoning bool
}

// OrchestratorDeps holds injected dependencies for the Orchestrator.
type OrchestratorDeps struct {
	Logger      *slog.Logger
	Bus         domain.EventBus  // optional, nil = no events
	TurnTimeout time.Duration    // optional, 0 = bounded by the session context only
	OnState     func(RoundState) // optional, observes state transitions
}

// Orchestrator runs one round: it launches the planned participants under
// the plan's regime, forwards their events to a sink as they arrive and
// returns their TurnRecords.
type Orchestrator struct {
	deps OrchestratorDeps
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{deps: deps}
}

// RunRound executes plan and returns its TurnRecords: completion order for
// a parallel round, launch order for a sequential one. transcript holds the
// completed earlier rounds. Every launched participant yields exactly one
// record and one terminal event, even when ctx is cancelled.
func (o *Orchestrator) RunRound(ctx context.Context, plan RoundPlan, turn Turn, transcript domain.Transcript, sink func(domain.GenerationEvent)) []domain.TurnRecord {
	ctx, span := tracer.StartSpan(ctx, "debate.round",
		trace.WithAttributes(
			tracer.IntAttr("round.number", plan.Round),
			tracer.StringAttr("round.regime", plan.Regime.String()),
			tracer.IntAttr("round.participants", len(plan.Participants)),
		),
	)
	defer span.End()

	o.setState(plan.Round, RoundIdle)
	var records []domain.TurnRecord
	if plan.Regime == Parallel {
		records = o.runParallel(ctx, plan, turn, transcript, sink)
	} else {
		records = o.runSequential(ctx, plan, turn, transcript, sink)
	}
	o.setState(plan.Round, RoundComplete)

	tracer.SetOK(span)
	return records
}

// runParallel starts every participant at once. Producers share one
// unbuffered event channel; each reports its record on finished once its
// terminal event has been handed over, so the round ends when every
// launched producer has reported.
func (o *Orchestrator) runParallel(ctx context.Context, plan RoundPlan, turn Turn, transcript domain.Transcript, sink func(domain.GenerationEvent)) []domain.TurnRecord {
	events := make(chan domain.GenerationEvent)
	finished := make(chan domain.TurnRecord, len(plan.Participants))

	o.setState(plan.Round, RoundLaunching)
	var wg sync.WaitGroup
	for _, p := range plan.Participants {
		prompt := o.prompt(turn, transcript, plan.Round, p)
		wg.Go(func() {
			finished <- o.runTurn(ctx, turn.SessionID, p, plan.Round, prompt, func(ev domain.GenerationEvent) {
				events <- ev
			})
		})
	}
	go func() {
		wg.Wait()
		close(events)
	}()

	o.setState(plan.Round, RoundDraining)
	records := make([]domain.TurnRecord, 0, len(plan.Participants))
	for len(records) < len(plan.Participants) {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			sink(ev)
		case rec := <-finished:
			records = append(records, rec)
		}
	}
	return records
}

// runSequential runs participants one after another, building each prompt
// only after the previous participant has closed.
func (o *Orchestrator) runSequential(ctx context.Context, plan RoundPlan, turn Turn, transcript domain.Transcript, sink func(domain.GenerationEvent)) []domain.TurnRecord {
	records := make([]domain.TurnRecord, 0, len(plan.Participants))
	for _, p := range plan.Participants {
		o.setState(plan.Round, RoundLaunching)
		prompt := o.prompt(turn, transcript, plan.Round, p)
		o.setState(plan.Round, RoundDraining)
		records = append(records, o.runTurn(ctx, turn.SessionID, p, plan.Round, prompt, sink))
	}
	return records
}

func (o *Orchestrator) prompt(turn Turn, transcript domain.Transcript, round int, p Participant) domain.Prompt {
	return domain.Prompt{
		System:        turn.SystemPrompt,
		User:          BuildContext(turn.Question, transcript, round, p.ID),
		Round:         round,
		WantReasoning: turn.WantReasoning,
	}
}

func (o *Orchestrator) runTurn(ctx context.Context, sessionID string, p Participant, round int, prompt domain.Prompt, emit func(domain.GenerationEvent)) domain.TurnRecord {
	ctx, span := tracer.StartSpan(ctx, "debate.participant",
		trace.WithAttributes(
			tracer.StringAttr("participant.id", p.ID),
			tracer.StringAttr("participant.provider", p.Provider),
			tracer.IntAttr("round.number", round),
		),
	)
	defer span.End()

	var cancel context.CancelFunc
	if o.deps.TurnTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.deps.TurnTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	rec, err := drainAgent(ctx, p, round, prompt, emit)
	elapsed := time.Since(start)

	payload := domain.ParticipantPayload{
		ParticipantID: p.ID,
		Round:         round,
		Duration:      elapsed.String(),
	}
	if err != nil {
		class := ClassifyFailure(err)
		payload.Error = err.Error()
		payload.Reason = string(class)
		tracer.RecordError(span, err)
		span.SetAttributes(tracer.StringAttr("participant.failure", string(class)))
		o.deps.Logger.Warn("participant turn failed",
			"session", sessionID, "participant", p.ID, "round", round,
			"reason", class, "error", err, "duration", elapsed)
		o.publish(ctx, domain.EventParticipantFailed, sessionID, payload)
	} else {
		tracer.SetOK(span)
		o.deps.Logger.Debug("participant turn completed",
			"session", sessionID, "participant", p.ID, "round", round,
			"chars", len(rec.Content), "duration", elapsed)
		o.publish(ctx, domain.EventParticipantDone, sessionID, payload)
	}
	return rec
}

func (o *Orchestrator) setState(round int, s RoundState) {
	o.deps.Logger.Debug("round state", "round", round, "state", s.String())
	if o.deps.OnState != nil {
		o.deps.OnState(s)
	}
}

func (o *Orchestrator) publish(ctx context.Context, typ domain.EventType, sessionID string, payload any) {
	if o.deps.Bus == nil {
		return
	}
	ev, err := eventbus.NewEvent(typ, sessionID, payload)
	if err != nil {
		o.deps.Logger.Warn("event encode failed", "type", typ, "error", err)
		return
	}
	o.deps.Bus.Publish(context.WithoutCancel(ctx), ev)
}
