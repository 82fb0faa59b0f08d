package domain

import "context"

// LLMProvider is a streaming model backend bound to one participant.
type LLMProvider interface {
	// ChatStream sends a request and returns a channel of incremental
	// deltas. The channel is closed after a Done or Err delta, or when ctx
	// ends.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
	// Name returns the participant id the backend serves.
	Name() string
}

// StreamDelta is a single incremental chunk from a streaming LLM response.
// A delta with a non-nil Err is terminal: the backend failed mid-stream and
// no further deltas follow.
type StreamDelta struct {
	Content  string `json:"content,omitempty"`
	Thinking string `json:"thinking,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Usage    *Usage `json:"usage,omitempty"`
	Err      error  `json:"-"`
}
