package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateDebate(cfg, ve)
	validateParticipants(cfg, ve)
	validateCircuitBreaker(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		ve.Add("server.addr %q is not a valid host:port", cfg.Server.Addr)
	}
	rl := cfg.Server.RateLimit
	if rl.Enabled {
		if rl.RequestsPerMin <= 0 {
			ve.Add("server.rate_limit.requests_per_min must be > 0 when enabled")
		}
		if rl.Burst <= 0 {
			ve.Add("server.rate_limit.burst must be > 0 when enabled")
		}
	}
}

func validateDebate(cfg *Config, ve *ValidationError) {
	d := cfg.Debate
	if d.DefaultRounds <= 0 {
		ve.Add("debate.default_rounds must be > 0")
	}
	if d.MaxRounds < d.DefaultRounds {
		ve.Add("debate.max_rounds (%d) must be >= debate.default_rounds (%d)", d.MaxRounds, d.DefaultRounds)
	}
	if strings.TrimSpace(d.SystemPrompt) == "" {
		ve.Add("debate.system_prompt must not be empty")
	}
	if d.MaxTokens <= 0 {
		ve.Add("debate.max_tokens must be > 0")
	}
	if d.ThinkingBudget < 0 {
		ve.Add("debate.thinking_budget must be >= 0")
	}
	if d.ThinkingBudget > 0 && d.ReasoningMaxTokens <= d.ThinkingBudget {
		ve.Add("debate.reasoning_max_tokens (%d) must exceed debate.thinking_budget (%d)",
			d.ReasoningMaxTokens, d.ThinkingBudget)
	}
	if d.TurnTimeout < 0 {
		ve.Add("debate.turn_timeout must be >= 0")
	}
}

var validProviders = map[string]bool{
	"anthropic":  true,
	"openai":     true,
	"google":     true,
	"xai":        true,
	"groq":       true,
	"openrouter": true,
	"ollama":     true,
	"bedrock":    true,
}

var (
	participantIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	colorPattern         = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

func validateParticipants(cfg *Config, ve *ValidationError) {
	if len(cfg.Participants) == 0 {
		ve.Add("participants must not be empty")
		return
	}

	seen := make(map[string]bool)
	for i, p := range cfg.Participants {
		if p.ID == "" {
			ve.Add("participants[%d].id must not be empty", i)
			continue
		}
		if !participantIDPattern.MatchString(p.ID) {
			ve.Add("participants[%d].id %q must be lowercase alphanumeric (may contain - or _)", i, p.ID)
		}
		if seen[p.ID] {
			ve.Add("participants[%d]: duplicate participant id %q", i, p.ID)
		}
		seen[p.ID] = true

		if p.Name == "" {
			ve.Add("participants[%d] (%s): name must not be empty", i, p.ID)
		}
		if p.Model == "" {
			ve.Add("participants[%d] (%s): model must not be empty", i, p.ID)
		}
		if !validProviders[p.Provider] {
			ve.Add("participants[%d] (%s): provider %q is invalid (want: anthropic, openai, google, xai, groq, openrouter, ollama, bedrock)",
				i, p.ID, p.Provider)
		}
		if p.Color != "" && !colorPattern.MatchString(p.Color) {
			ve.Add("participants[%d] (%s): color %q must be #rrggbb", i, p.ID, p.Color)
		}
		if p.Provider == "bedrock" && p.Region == "" {
			ve.Add("participants[%d] (%s): region is required for bedrock provider", i, p.ID)
		}
	}
}

func validateCircuitBreaker(cfg *Config, ve *ValidationError) {
	cb := cfg.CircuitBreaker
	if !cb.Enabled {
		return
	}
	if cb.Timeout < 0 || cb.Interval < 0 {
		ve.Add("circuit_breaker timeout and interval must be >= 0")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
	if r := cfg.Tracer.SampleRatio; r < 0 || r > 1 {
		ve.Add("tracer.sample_ratio %v must be within [0, 1]", r)
	}
}
