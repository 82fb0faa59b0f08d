package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"roundtable/internal/domain"
)

// Message maps a session output onto its wire message.
func Message(o domain.Output) (any, error) {
	switch v := o.(type) {
	case domain.RoundStarted:
		return roundStartMsg{Type: TypeRoundStart, Round: v.Round, TotalRounds: v.TotalRounds, Parallel: v.Parallel}, nil
	case domain.RoundFinished:
		return roundDoneMsg{Type: TypeRoundDone, Round: v.Round}, nil
	case domain.DebateFinished:
		return debateDoneMsg{Type: TypeDebateDone}, nil
	case domain.GenerationEvent:
		return eventMessage(v)
	default:
		return nil, fmt.Errorf("gateway: unsupported output %T", o)
	}
}

func eventMessage(ev domain.GenerationEvent) (any, error) {
	id := ev.Participant.ID
	switch ev.Kind {
	case domain.StreamOpened:
		return modelStartMsg{
			Type:      TypeModelStart,
			ModelID:   id,
			ModelName: ev.Participant.Name,
			Color:     ev.Participant.Color,
			Avatar:    ev.Participant.Avatar,
			Round:     ev.Round,
		}, nil
	case domain.ReasoningOpened:
		return modelMarkerMsg{Type: TypeThinkingStart, ModelID: id}, nil
	case domain.ResponseOpened:
		return modelMarkerMsg{Type: TypeTextStart, ModelID: id}, nil
	case domain.ReasoningToken:
		return tokenMsg{Type: TypeThinkingToken, ModelID: id, Token: ev.Text}, nil
	case domain.ResponseToken:
		return tokenMsg{Type: TypeToken, ModelID: id, Token: ev.Text}, nil
	case domain.StreamClosed:
		return modelDoneMsg{Type: TypeModelDone, ModelID: id, Round: ev.Round}, nil
	case domain.StreamFailed:
		return errorMsg{Type: TypeError, ModelID: id, Message: ev.Text}, nil
	default:
		return nil, fmt.Errorf("gateway: unsupported event kind %s", ev.Kind)
	}
}

// Encode renders o as one SSE frame: "data: <json>\n\n".
func Encode(o domain.Output) ([]byte, error) {
	msg, err := Message(o)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal %T: %w", msg, err)
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}
