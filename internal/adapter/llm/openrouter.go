package llm

import (
	"log/slog"
	"net/http"

	"roundtable/internal/infra/config"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// openrouterTransport injects the attribution headers OpenRouter uses for
// its app rankings into every request.
type openrouterTransport struct {
	base http.RoundTripper
}

func (t *openrouterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("HTTP-Referer", "https://github.com/roundtable/roundtable")
	clone.Header.Set("X-Title", "roundtable")
	return t.base.RoundTrip(clone)
}

// NewOpenRouterProvider creates an OpenAI-compatible provider for OpenRouter,
// which fronts many vendors' models behind one key.
func NewOpenRouterProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	client := NewHTTPClient(cfg)
	client.Transport = &openrouterTransport{base: client.Transport}
	return newOpenAICompatible(cfg, openRouterBaseURL, client, logger)
}
