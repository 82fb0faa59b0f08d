package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"roundtable/internal/domain"
	"roundtable/internal/infra/config"
)

// Local server defaults: connecting is quick, loading a model is not.
const (
	ollamaDefaultBaseURL     = "http://localhost:11434"
	ollamaDefaultConnTimeout = 5 * time.Second
	ollamaDefaultRespTimeout = 300 * time.Second
)

// OllamaProvider runs a participant on a local Ollama server. Streaming
// goes through Ollama's OpenAI-compatible /v1 endpoint; health and warmup
// use the native API.
type OllamaProvider struct {
	*OpenAIProvider
	nativeURL string
}

// NewOllamaProvider creates an Ollama-backed provider. No API key is sent.
func NewOllamaProvider(cfg config.ProviderConfig, logger *slog.Logger) *OllamaProvider {
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = ollamaDefaultConnTimeout
	}
	if cfg.RespTimeout == 0 {
		cfg.RespTimeout = ollamaDefaultRespTimeout
	}
	nativeURL := strings.TrimRight(cfg.BaseURL, "/")
	if nativeURL == "" {
		nativeURL = ollamaDefaultBaseURL
	}

	cfg.APIKey = ""
	cfg.BaseURL = nativeURL + "/v1"
	return &OllamaProvider{
		OpenAIProvider: newOpenAICompatible(cfg, "", NewHTTPClient(cfg), logger),
		nativeURL:      nativeURL,
	}
}

// IsHealthy reports whether the Ollama server answers on its root URL.
func (p *OllamaProvider) IsHealthy(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.nativeURL+"/", nil)
	if err != nil {
		return false
	}
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	httpResp.Body.Close()
	return httpResp.StatusCode == http.StatusOK
}

// Warmup asks Ollama to load the participant's model so the first debate
// turn does not pay the load latency.
func (p *OllamaProvider) Warmup(ctx context.Context) error {
	if !p.IsHealthy(ctx) {
		return domain.NewSubSystemError("provider", "OllamaProvider.Warmup", domain.ErrUnavailable, p.nativeURL)
	}

	payload, err := json.Marshal(map[string]string{"model": p.model, "keep_alive": "5m"})
	if err != nil {
		return fmt.Errorf("marshal warmup request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.nativeURL+"/api/generate", strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("create warmup request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("warmup request: %w", err)
	}
	defer httpResp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))

	if httpResp.StatusCode != http.StatusOK {
		return mapHTTPError(httpResp.StatusCode, body)
	}
	p.logger.Info("ollama model warmed up", "participant", p.name, "model", p.model)
	return nil
}

var _ domain.LLMProvider = (*OllamaProvider)(nil)
