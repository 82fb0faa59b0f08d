package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventDebateStarted     EventType = "debate.started"
	EventDebateCompleted   EventType = "debate.completed"
	EventRoundStarted      EventType = "round.started"
	EventRoundCompleted    EventType = "round.completed"
	EventParticipantDone   EventType = "participant.completed"
	EventParticipantFailed EventType = "participant.failed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// DebateStartedPayload is the payload for EventDebateStarted.
type DebateStartedPayload struct {
	Question     string   `json:"question"`
	Participants []string `json:"participants"`
	Rounds       int      `json:"rounds"`
	Reasoning    bool     `json:"reasoning"`
}

// RoundPayload is the payload for EventRoundStarted and EventRoundCompleted.
type RoundPayload struct {
	Round    int  `json:"round"`
	Parallel bool `json:"parallel"`
	Turns    int  `json:"turns,omitempty"`
}

// ParticipantPayload is the payload for participant lifecycle events.
type ParticipantPayload struct {
	ParticipantID string `json:"participant_id"`
	Round         int    `json:"round"`
	Error         string `json:"error,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Duration      string `json:"duration,omitempty"`
}
