package debate

import (
	"context"
	"fmt"
	"strings"

	"roundtable/internal/domain"
)

// drainAgent consumes one participant's stream for one round and returns
// its TurnRecord. Every event is stamped with the participant and round
// and handed to emit. Exactly one terminal event is emitted: StreamClosed
// on success, or StreamFailed followed by StreamClosed when the agent
// errors, panics or the context ends first. StreamOpened is synthesized if
// the agent skipped it, and duplicate or agent-sent terminal markers are
// dropped. The returned error is the cause of a failed turn.
func drainAgent(ctx context.Context, p Participant, round int, prompt domain.Prompt, emit func(domain.GenerationEvent)) (domain.TurnRecord, error) {
	opened := false
	send := func(kind domain.GenerationKind, text string) {
		emit(domain.GenerationEvent{
			Kind:        kind,
			Participant: p.ParticipantDescriptor,
			Round:       round,
			Text:        text,
		})
	}
	open := func() {
		if !opened {
			opened = true
			send(domain.StreamOpened, "")
		}
	}

	var content strings.Builder
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", errAgentPanic, r)
			}
		}()
		if err := ctx.Err(); err != nil {
			return err
		}
		for ev, serr := range p.Agent.Stream(ctx, prompt) {
			if serr != nil {
				return serr
			}
			switch {
			case ev.Kind == domain.StreamOpened:
				open()
				continue
			case ev.Kind.Terminal():
				continue
			}
			open()
			if ev.Kind == domain.ResponseToken {
				content.WriteString(ev.Text)
			}
			send(ev.Kind, ev.Text)
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return ctx.Err()
	}()

	record := domain.TurnRecord{
		ParticipantID:   p.ID,
		ParticipantName: p.Name,
		Round:           round,
	}
	open()
	if err != nil {
		msg := err.Error()
		send(domain.StreamFailed, msg)
		send(domain.StreamClosed, "")
		record.Content = domain.FailedTurnContent(msg)
		record.Failed = true
		return record, err
	}
	send(domain.StreamClosed, "")
	record.Content = content.String()
	return record, nil
}
