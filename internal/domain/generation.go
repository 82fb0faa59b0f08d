package domain

// GenerationKind tags a GenerationEvent.
type GenerationKind int

const (
	StreamOpened GenerationKind = iota + 1
	ReasoningOpened
	ResponseOpened
	ReasoningToken
	ResponseToken
	StreamClosed
	StreamFailed
)

var generationKindNames = map[GenerationKind]string{
	StreamOpened:    "stream_opened",
	ReasoningOpened: "reasoning_opened",
	ResponseOpened:  "response_opened",
	ReasoningToken:  "reasoning_token",
	ResponseToken:   "response_token",
	StreamClosed:    "stream_closed",
	StreamFailed:    "stream_failed",
}

func (k GenerationKind) String() string {
	if s, ok := generationKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Terminal reports whether k ends a participant's stream.
func (k GenerationKind) Terminal() bool {
	return k == StreamClosed || k == StreamFailed
}

// GenerationEvent is one item of a participant's output stream. Text carries
// the token for ReasoningToken/ResponseToken and the message for StreamFailed.
// Participant and Round are stamped by the orchestrator, not by agents.
type GenerationEvent struct {
	Kind        GenerationKind
	Participant ParticipantDescriptor
	Round       int
	Text        string
}

// NewToken returns a ResponseToken event.
func NewToken(text string) GenerationEvent {
	return GenerationEvent{Kind: ResponseToken, Text: text}
}

// NewReasoningToken returns a ReasoningToken event.
func NewReasoningToken(text string) GenerationEvent {
	return GenerationEvent{Kind: ReasoningToken, Text: text}
}

// NewMarker returns a payload-free event of the given kind.
func NewMarker(kind GenerationKind) GenerationEvent {
	return GenerationEvent{Kind: kind}
}
