package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"roundtable/internal/domain"
	"roundtable/internal/infra/config"
)

// GeminiProvider implements domain.LLMProvider for the Google
// Gemini generateContent API.
type GeminiProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGeminiProvider creates a provider for the Google Gemini API.
func NewGeminiProvider(cfg config.ProviderConfig, logger *slog.Logger) *GeminiProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	return &GeminiProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
}

func (p *GeminiProvider) endpoint(model, method string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s", p.baseURL, url.PathEscape(model), method)
}

func (p *GeminiProvider) headers() map[string]string {
	return map[string]string{"x-goog-api-key": p.apiKey}
}

// Name implements domain.LLMProvider.
func (p *GeminiProvider) Name() string { return p.name }

// generateContent wire types. Streamed chunks share the response shape.

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	Temperature     *float64              `json:"temperature,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiThinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
	ThinkingBudget  int  `json:"thinkingBudget,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type geminiChunk struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// ChatStream implements domain.LLMProvider.
func (p *GeminiProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	body, err := json.Marshal(toGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	streamURL := p.endpoint(req.Model, "streamGenerateContent") + "?alt=sse"
	return traceStream(ctx, p.logger, p.name, req.Model, func(ctx context.Context) (<-chan domain.StreamDelta, error) {
		httpResp, err := doStreamRequest(ctx, p.client, streamURL, body, p.headers())
		if err != nil {
			return nil, err
		}
		return parseSSEStream(ctx, httpResp.Body, parseGeminiChunk), nil
	})
}

// parseGeminiChunk converts one streamed GenerateContentResponse. Gemini
// closes the stream itself; there is no [DONE] sentinel.
func parseGeminiChunk(data []byte) (*domain.StreamDelta, error) {
	var chunk geminiChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	if chunk.Error != nil {
		return streamError(strings.ToLower(chunk.Error.Status), chunk.Error.Message), nil
	}

	delta := &domain.StreamDelta{}
	if len(chunk.Candidates) > 0 {
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Thought {
				delta.Thinking += part.Text
			} else {
				delta.Content += part.Text
			}
		}
	}
	if chunk.UsageMetadata != nil {
		delta.Usage = &domain.Usage{
			PromptTokens:     chunk.UsageMetadata.PromptTokenCount,
			CompletionTokens: chunk.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      chunk.UsageMetadata.TotalTokenCount,
		}
	}
	return delta, nil
}

func toGeminiRequest(req domain.ChatRequest) geminiRequest {
	gemReq := geminiRequest{}

	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			gemReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		gemReq.Contents = append(gemReq.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	gc := &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens}
	if req.Temperature > 0 {
		gc.Temperature = &req.Temperature
	}
	if req.ThinkingBudget > 0 {
		gc.ThinkingConfig = &geminiThinkingConfig{IncludeThoughts: true, ThinkingBudget: req.ThinkingBudget}
	}
	if gc.MaxOutputTokens > 0 || gc.Temperature != nil || gc.ThinkingConfig != nil {
		gemReq.GenerationConfig = gc
	}

	return gemReq
}

var _ domain.LLMProvider = (*GeminiProvider)(nil)
