package debate

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/trace"

	"roundtable/internal/domain"
	"roundtable/internal/infra/tracer"
	"roundtable/internal/usecase/eventbus"
)

// Session is a resolved, validated debate ready to run.
type Session struct {
	ID           string
	Question     string
	Participants []Participant
	Rounds       int
	Reasoning    bool
	CreatedAt    time.Time
}

// NewSessionID returns a fresh ULID stamped with t. Entropy is shared and
// monotonic, so ids minted within the same millisecond stay distinct and ordered.
func NewSessionID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// DriverDeps holds injected dependencies for the Driver.
type DriverDeps struct {
	Registry      *Registry
	Orchestrator  *Orchestrator
	Logger        *slog.Logger
	Bus           domain.EventBus // optional, nil = no events
	SystemPrompt  string
	DefaultRounds int
	MaxRounds     int
}

// Driver turns session parameters into a stream of rounds.
type Driver struct {
	deps DriverDeps
}

// NewDriver creates a Driver.
func NewDriver(deps DriverDeps) *Driver {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Orchestrator == nil {
		deps.Orchestrator = NewOrchestrator(OrchestratorDeps{Logger: deps.Logger, Bus: deps.Bus})
	}
	if deps.DefaultRounds <= 0 {
		deps.DefaultRounds = 2
	}
	return &Driver{deps: deps}
}

// DefaultRounds is the round count used when a client does not ask for one.
func (d *Driver) DefaultRounds() int { return d.deps.DefaultRounds }

// Registry returns the participant roster.
func (d *Driver) Registry() *Registry { return d.deps.Registry }

// NewSession validates p and resolves its participant ids once. Unknown ids
// are dropped. An empty models list selects every registered participant.
func (d *Driver) NewSession(p Params) (*Session, error) {
	if err := p.Validate(d.deps.MaxRounds); err != nil {
		return nil, err
	}

	ids := p.Models
	if len(ids) == 0 {
		ids = d.deps.Registry.IDs()
	}
	participants, unknown := d.deps.Registry.Resolve(ids)
	if len(unknown) > 0 {
		d.deps.Logger.Debug("dropping unknown participants", "ids", unknown)
	}

	now := time.Now()
	return &Session{
		ID:           NewSessionID(now),
		Question:     p.Question,
		Participants: participants,
		Rounds:       p.Rounds,
		Reasoning:    p.Thinking,
		CreatedAt:    now,
	}, nil
}

// Run executes every round of s, writing events and round markers to sink
// in order, and returns the final transcript. If ctx ends, the round in
// progress still completes its bookkeeping and no further rounds start.
// DebateFinished is always the last item.
func (d *Driver) Run(ctx context.Context, s *Session, sink func(domain.Output)) domain.Transcript {
	ctx, span := tracer.StartSpan(ctx, "debate.session",
		trace.WithAttributes(
			tracer.StringAttr("session.id", s.ID),
			tracer.IntAttr("session.rounds", s.Rounds),
			tracer.IntAttr("session.participants", len(s.Participants)),
			tracer.BoolAttr("session.reasoning", s.Reasoning),
		),
	)
	defer span.End()

	ids := lo.Map(s.Participants, func(p Participant, _ int) string { return p.ID })
	d.deps.Logger.Info("debate started",
		"session", s.ID, "participants", ids, "rounds", s.Rounds, "reasoning", s.Reasoning)
	d.publish(ctx, domain.EventDebateStarted, s.ID, domain.DebateStartedPayload{
		Question:     s.Question,
		Participants: ids,
		Rounds:       s.Rounds,
		Reasoning:    s.Reasoning,
	})

	turn := Turn{
		SessionID:     s.ID,
		Question:      s.Question,
		SystemPrompt:  d.deps.SystemPrompt,
		WantReasoning: s.Reasoning,
	}
	forward := func(ev domain.GenerationEvent) { sink(ev) }

	var transcript domain.Transcript
	start := time.Now()
	for n := 1; n <= s.Rounds; n++ {
		if ctx.Err() != nil {
			d.deps.Logger.Info("debate cancelled", "session", s.ID, "round", n, "error", ctx.Err())
			break
		}
		plan := PlanRound(n, s.Rounds, s.Participants)
		parallel := plan.Regime == Parallel

		sink(domain.RoundStarted{Round: n, TotalRounds: s.Rounds, Parallel: parallel})
		d.publish(ctx, domain.EventRoundStarted, s.ID, domain.RoundPayload{Round: n, Parallel: parallel})

		records := d.deps.Orchestrator.RunRound(ctx, plan, turn, transcript, forward)
		transcript = append(transcript, records...)

		sink(domain.RoundFinished{Round: n})
		d.publish(ctx, domain.EventRoundCompleted, s.ID, domain.RoundPayload{Round: n, Parallel: parallel, Turns: len(records)})
	}

	sink(domain.DebateFinished{})
	d.publish(ctx, domain.EventDebateCompleted, s.ID, nil)
	d.deps.Logger.Info("debate finished", "session", s.ID, "turns", len(transcript), "duration", time.Since(start))
	tracer.SetOK(span)
	return transcript
}

func (d *Driver) publish(ctx context.Context, typ domain.EventType, sessionID string, payload any) {
	if d.deps.Bus == nil {
		return
	}
	ev, err := eventbus.NewEvent(typ, sessionID, payload)
	if err != nil {
		d.deps.Logger.Warn("event encode failed", "type", typ, "error", err)
		return
	}
	d.deps.Bus.Publish(context.WithoutCancel(ctx), ev)
}
