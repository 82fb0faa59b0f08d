package domain

import (
	"context"
	"iter"
)

// Prompt is the fully built input for one participant turn.
type Prompt struct {
	System        string
	User          string
	Round         int
	WantReasoning bool
}

// Agent produces one participant's streamed response.
//
// Stream returns a lazy, single-use sequence. A conforming agent yields
// StreamOpened first, then optionally ReasoningOpened and ReasoningTokens
// (only when reasoning was requested), then ResponseOpened and
// ResponseTokens. Agents never yield StreamClosed or StreamFailed; a
// non-nil error is a backend fault and ends the stream.
type Agent interface {
	Stream(ctx context.Context, prompt Prompt) iter.Seq2[GenerationEvent, error]
}
