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

// Base URLs for the OpenAI-compatible backends.
const (
	openAIBaseURL = "https://api.openai.com/v1"
	xaiBaseURL    = "https://api.x.ai/v1"
	groqBaseURL   = "https://api.groq.com/openai/v1"
)

// OpenAIProvider implements domain.LLMProvider for any
// OpenAI-compatible chat completions API (OpenAI, xAI, Groq, OpenRouter,
// Ollama).
type OpenAIProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewOpenAIProvider creates a provider for the OpenAI API, or for any
// compatible endpoint when cfg.BaseURL is set.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	return newOpenAICompatible(cfg, openAIBaseURL, NewHTTPClient(cfg), logger)
}

// NewXAIProvider creates a provider for xAI's Grok models.
func NewXAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	return newOpenAICompatible(cfg, xaiBaseURL, NewHTTPClient(cfg), logger)
}

// NewGroqProvider creates a provider for Groq-hosted models.
func NewGroqProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	return newOpenAICompatible(cfg, groqBaseURL, NewHTTPClient(cfg), logger)
}

func newOpenAICompatible(cfg config.ProviderConfig, defaultBaseURL string, client *http.Client, logger *slog.Logger) *OpenAIProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenAIProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

func (p *OpenAIProvider) headers() map[string]string {
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	return headers
}

// Name implements domain.LLMProvider.
func (p *OpenAIProvider) Name() string { return p.name }

// Chat completions wire types.

type openaiRequest struct {
	Model         string               `json:"model"`
	Messages      []openaiMessage      `json:"messages"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   *float64             `json:"temperature,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
	StreamOptions *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func toOpenAIRequest(req domain.ChatRequest) openaiRequest {
	msgs := make([]openaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openaiMessage{Role: m.Role, Content: m.Content})
	}

	oaiReq := openaiRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   req.Stream,
	}
	if req.MaxTokens > 0 {
		oaiReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		oaiReq.Temperature = &req.Temperature
	}
	return oaiReq
}

type openaiStreamChunk struct {
	ID      string               `json:"id"`
	Choices []openaiStreamChoice `json:"choices"`
	Usage   *openaiUsage         `json:"usage,omitempty"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openaiStreamChoice struct {
	Delta        openaiDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// openaiDelta carries reasoning under whichever field the compatible
// backend uses (DeepSeek-style reasoning_content, OpenRouter reasoning).
type openaiDelta struct {
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content"`
	Reasoning        string `json:"reasoning"`
}

// ChatStream implements domain.LLMProvider.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	req.Stream = true

	oaiReq := toOpenAIRequest(req)
	oaiReq.StreamOptions = &openaiStreamOptions{IncludeUsage: true}

	body, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	return traceStream(ctx, p.logger, p.name, req.Model, func(ctx context.Context) (<-chan domain.StreamDelta, error) {
		httpResp, err := doStreamRequest(ctx, p.client, p.baseURL+"/chat/completions", body, p.headers())
		if err != nil {
			return nil, err
		}
		return parseSSEStream(ctx, httpResp.Body, parseOpenAIChunk), nil
	})
}

// parseOpenAIChunk converts one chat.completion.chunk. A finish_reason does
// not end the stream: the usage chunk and [DONE] still follow it.
func parseOpenAIChunk(data []byte) (*domain.StreamDelta, error) {
	var chunk openaiStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	if chunk.Error != nil {
		return streamError(chunk.Error.Type, chunk.Error.Message), nil
	}

	delta := &domain.StreamDelta{}
	if len(chunk.Choices) > 0 {
		d := chunk.Choices[0].Delta
		delta.Content = d.Content
		delta.Thinking = d.ReasoningContent + d.Reasoning
	}
	if chunk.Usage != nil {
		delta.Usage = &domain.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}
	if delta.Content == "" && delta.Thinking == "" && delta.Usage == nil {
		return nil, nil
	}
	return delta, nil
}

var _ domain.LLMProvider = (*OpenAIProvider)(nil)
