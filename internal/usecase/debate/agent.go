package debate

import (
	"context"
	"fmt"
	"iter"

	"roundtable/internal/domain"
)

// Limits bounds the output a backend may produce per turn.
type Limits struct {
	MaxTokens          int
	ReasoningMaxTokens int
	ThinkingBudget     int
}

// LLMAgent speaks for a participant through a streaming LLM backend.
type LLMAgent struct {
	provider domain.LLMProvider
	model    string
	limits   Limits
}

// NewLLMAgent wraps provider as an Agent using model for every request.
func NewLLMAgent(provider domain.LLMProvider, model string, limits Limits) *LLMAgent {
	return &LLMAgent{provider: provider, model: model, limits: limits}
}

func (a *LLMAgent) request(prompt domain.Prompt) domain.ChatRequest {
	req := domain.ChatRequest{
		Model: a.model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: prompt.System},
			{Role: domain.RoleUser, Content: prompt.User},
		},
		MaxTokens: a.limits.MaxTokens,
		Stream:    true,
	}
	if prompt.WantReasoning && a.limits.ThinkingBudget > 0 {
		req.MaxTokens = a.limits.ReasoningMaxTokens
		req.ThinkingBudget = a.limits.ThinkingBudget
	}
	return req
}

// Stream implements domain.Agent. Reasoning deltas are forwarded only when
// the prompt asked for them and only until the response begins.
// ResponseOpened is always yielded, even for an empty answer.
func (a *LLMAgent) Stream(ctx context.Context, prompt domain.Prompt) iter.Seq2[domain.GenerationEvent, error] {
	return func(yield func(domain.GenerationEvent, error) bool) {
		if !yield(domain.NewMarker(domain.StreamOpened), nil) {
			return
		}

		deltas, err := a.provider.ChatStream(ctx, a.request(prompt))
		if err != nil {
			yield(domain.GenerationEvent{}, err)
			return
		}

		reasoning, responding := false, false
		for d := range deltas {
			if d.Err != nil {
				yield(domain.GenerationEvent{}, d.Err)
				return
			}
			if d.Thinking != "" && prompt.WantReasoning && !responding {
				if !reasoning {
					reasoning = true
					if !yield(domain.NewMarker(domain.ReasoningOpened), nil) {
						return
					}
				}
				if !yield(domain.NewReasoningToken(d.Thinking), nil) {
					return
				}
			}
			if d.Content != "" {
				if !responding {
					responding = true
					if !yield(domain.NewMarker(domain.ResponseOpened), nil) {
						return
					}
				}
				if !yield(domain.NewToken(d.Content), nil) {
					return
				}
			}
			if d.Done {
				break
			}
		}
		if err := ctx.Err(); err != nil {
			yield(domain.GenerationEvent{}, err)
			return
		}
		if !responding {
			yield(domain.NewMarker(domain.ResponseOpened), nil)
		}
	}
}

// UnavailableAgent stands in for a participant whose backend could not be
// configured. Every turn fails with the configured reason.
type UnavailableAgent struct {
	Reason error
}

// NewMissingKeyAgent returns an agent whose turns fail because envVar is
// not set.
func NewMissingKeyAgent(envVar string) *UnavailableAgent {
	return &UnavailableAgent{Reason: fmt.Errorf("%w: %s is not set", domain.ErrAuthInvalid, envVar)}
}

// Stream implements domain.Agent.
func (a *UnavailableAgent) Stream(_ context.Context, _ domain.Prompt) iter.Seq2[domain.GenerationEvent, error] {
	return func(yield func(domain.GenerationEvent, error) bool) {
		if !yield(domain.NewMarker(domain.StreamOpened), nil) {
			return
		}
		yield(domain.GenerationEvent{}, a.Reason)
	}
}

var (
	_ domain.Agent = (*LLMAgent)(nil)
	_ domain.Agent = (*UnavailableAgent)(nil)
)
