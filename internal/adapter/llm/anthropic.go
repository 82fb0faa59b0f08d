package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"roundtable/internal/domain"
	"roundtable/internal/infra/config"
)

const (
	defaultAnthropicVersion   = "2023-06-01"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicProvider implements domain.LLMProvider for the Anthropic
// Messages API, including extended thinking.
type AnthropicProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	version string
}

// NewAnthropicProvider creates a provider for the Anthropic Messages API.
func NewAnthropicProvider(cfg config.ProviderConfig, logger *slog.Logger) *AnthropicProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  NewHTTPClient(cfg),
		logger:  logger,
		version: defaultAnthropicVersion,
	}
}

func (p *AnthropicProvider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": p.version,
	}
}

// Name implements domain.LLMProvider.
func (p *AnthropicProvider) Name() string { return p.name }

// Anthropic Messages API wire types.

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream,omitempty"`
	Thinking  *anthropicThinking `json:"thinking,omitempty"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicStreamEvent struct {
	Type    string          `json:"type"`
	Delta   json.RawMessage `json:"delta,omitempty"`
	Usage   *anthropicUsage `json:"usage,omitempty"`
	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type anthropicDelta struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Thinking string `json:"thinking"`
}

// ChatStream implements domain.LLMProvider.
func (p *AnthropicProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	antReq := toAnthropicRequest(req)
	antReq.Stream = true

	body, err := json.Marshal(antReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	return traceStream(ctx, p.logger, p.name, req.Model, func(ctx context.Context) (<-chan domain.StreamDelta, error) {
		httpResp, err := doStreamRequest(ctx, p.client, p.baseURL+"/v1/messages", body, p.headers())
		if err != nil {
			return nil, err
		}
		// Every Anthropic data payload repeats its SSE event name in "type",
		// so the "event:" lines can be ignored.
		return parseSSEStream(ctx, httpResp.Body, parseAnthropicEvent), nil
	})
}

func parseAnthropicEvent(data []byte) (*domain.StreamDelta, error) {
	var evt anthropicStreamEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}

	switch evt.Type {
	case "message_start":
		if evt.Message == nil || evt.Message.Usage.InputTokens == 0 {
			return nil, nil
		}
		return &domain.StreamDelta{Usage: &domain.Usage{
			PromptTokens: evt.Message.Usage.InputTokens,
		}}, nil

	case "content_block_delta":
		var d anthropicDelta
		if err := json.Unmarshal(evt.Delta, &d); err != nil {
			return nil, err
		}
		switch d.Type {
		case "text_delta":
			return &domain.StreamDelta{Content: d.Text}, nil
		case "thinking_delta":
			return &domain.StreamDelta{Thinking: d.Thinking}, nil
		}
		// signature_delta and friends carry nothing to show.
		return nil, nil

	case "message_delta":
		if evt.Usage == nil {
			return nil, nil
		}
		return &domain.StreamDelta{Usage: &domain.Usage{
			CompletionTokens: evt.Usage.OutputTokens,
			TotalTokens:      evt.Usage.OutputTokens,
		}}, nil

	case "message_stop":
		return &domain.StreamDelta{Done: true}, nil

	case "error":
		if evt.Error == nil {
			return streamError("error", "unknown stream error"), nil
		}
		return streamError(evt.Error.Type, evt.Error.Message), nil

	default:
		return nil, nil
	}
}

func toAnthropicRequest(req domain.ChatRequest) anthropicRequest {
	antReq := anthropicRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}
	if antReq.MaxTokens <= 0 {
		antReq.MaxTokens = defaultAnthropicMaxTokens
	}

	if req.ThinkingBudget > 0 {
		antReq.Thinking = &anthropicThinking{
			Type:         "enabled",
			BudgetTokens: req.ThinkingBudget,
		}
		// The API rejects budgets that do not leave room for the answer.
		if antReq.MaxTokens <= req.ThinkingBudget {
			antReq.MaxTokens = req.ThinkingBudget + defaultAnthropicMaxTokens
		}
	}

	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			if antReq.System != "" {
				antReq.System += "\n\n"
			}
			antReq.System += m.Content
			continue
		}
		antReq.Messages = append(antReq.Messages, anthropicMessage{
			Role:    m.Role,
			Content: []anthropicContent{{Type: "text", Text: m.Content}},
		})
	}

	return antReq
}

var _ domain.LLMProvider = (*AnthropicProvider)(nil)
