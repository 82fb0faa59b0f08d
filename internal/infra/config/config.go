package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"roundtable/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Debate         DebateConfig         `yaml:"debate"`
	Participants   []ParticipantConfig  `yaml:"participants"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Logger         LoggerConfig         `yaml:"logger"`
	Tracer         TracerConfig         `yaml:"tracer"`
}

// ServerConfig holds HTTP/SSE server settings.
type ServerConfig struct {
	Addr           string          `yaml:"addr"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds per-client limits for starting debates.
type RateLimitConfig struct {
	Enabled        bool     `yaml:"enabled"`
	RequestsPerMin int      `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// DebateConfig holds session defaults and generation limits.
type DebateConfig struct {
	DefaultRounds      int           `yaml:"default_rounds"`
	MaxRounds          int           `yaml:"max_rounds"`
	SystemPrompt       string        `yaml:"system_prompt"`
	MaxTokens          int           `yaml:"max_tokens"`
	ReasoningMaxTokens int           `yaml:"reasoning_max_tokens"`
	ThinkingBudget     int           `yaml:"thinking_budget"`
	TurnTimeout        time.Duration `yaml:"turn_timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings for participant backends.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ParticipantConfig defines one debate participant and its backend.
type ParticipantConfig struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Model       string        `yaml:"model"`
	Color       string        `yaml:"color"`
	Avatar      string        `yaml:"avatar"`
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout,omitempty"`
	RespTimeout time.Duration `yaml:"resp_timeout,omitempty"`
	Pool        PoolConfig    `yaml:"pool,omitempty"`
}

// ProviderConfig holds the backend settings handed to an LLM adapter.
type ProviderConfig struct {
	Name        string
	Type        string
	BaseURL     string
	APIKey      string
	Model       string
	Region      string
	ConnTimeout time.Duration
	RespTimeout time.Duration
	Pool        PoolConfig
}

// Backend returns the backend settings for p.
func (p ParticipantConfig) Backend() ProviderConfig {
	return ProviderConfig{
		Name:        p.ID,
		Type:        p.Provider,
		BaseURL:     p.BaseURL,
		APIKey:      p.APIKey,
		Model:       p.Model,
		Region:      p.Region,
		ConnTimeout: p.ConnTimeout,
		RespTimeout: p.RespTimeout,
		Pool:        p.Pool,
	}
}

// Available reports whether the participant has the credentials it needs.
// Keyless backends (local ollama, bedrock via the AWS credential chain) are
// always available.
func (p ParticipantConfig) Available() bool {
	switch p.Provider {
	case "ollama", "bedrock":
		return true
	}
	return strings.TrimSpace(p.APIKey) != ""
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// DefaultSystemPrompt frames every participant as a debater.
const DefaultSystemPrompt = `You are a participant in The Roundtable, a structured intellectual debate between multiple AI models.

RULES:
- Be direct, substantive, and confident in your views
- In round 1: give your best answer to the question. Be thorough but concise (2-4 paragraphs)
- In round 2+: engage directly with what others said. Quote them if useful. Agree, disagree, or nuance their points with specific reasoning
- Never be sycophantic. Don't compliment other models' answers
- It's okay to say another model is wrong if you think they are
- Stay intellectually honest and acknowledge genuine uncertainty
- No bullet points. Write in flowing prose like a thoughtful person in a debate`

// providerKeyEnv maps provider kinds to the environment variable holding
// their API key.
var providerKeyEnv = map[string]string{
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"google":     "GOOGLE_API_KEY",
	"xai":        "XAI_API_KEY",
	"groq":       "GROQ_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// KeyEnvVar returns the environment variable consulted for a provider's API
// key, or "" for keyless providers.
func KeyEnvVar(provider string) string {
	return providerKeyEnv[provider]
}

// DefaultParticipants returns the built-in roster.
func DefaultParticipants() []ParticipantConfig {
	return []ParticipantConfig{
		{ID: "claude", Name: "Claude", Model: "claude-sonnet-4-5", Color: "#8b5cf6", Avatar: "🟣", Provider: "anthropic"},
		{ID: "gpt", Name: "GPT-4o", Model: "gpt-4o", Color: "#10b981", Avatar: "🟢", Provider: "openai"},
		{ID: "gemini", Name: "Gemini", Model: "gemini-1.5-pro", Color: "#3b82f6", Avatar: "🔵", Provider: "google"},
		{ID: "grok", Name: "Grok", Model: "grok-beta", Color: "#f59e0b", Avatar: "🟡", Provider: "xai"},
		{ID: "llama", Name: "Llama", Model: "llama-3.3-70b-versatile", Color: "#e5e7eb", Avatar: "⚪", Provider: "groq"},
	}
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:8000",
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 30,
				Burst:          5,
			},
		},
		Debate: DebateConfig{
			DefaultRounds:      2,
			MaxRounds:          10,
			SystemPrompt:       DefaultSystemPrompt,
			MaxTokens:          1024,
			ReasoningMaxTokens: 16000,
			ThinkingBudget:     10000,
			TurnTimeout:        5 * time.Minute,
		},
		Participants: DefaultParticipants(),
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:     true,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, loads .env, applies env var overrides, and
// decrypts secrets. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	loadDotEnv(path)

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrConfigLoad, path, err)
	default:
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrConfigLoad, path, err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("ROUNDTABLE_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv loads .env files without overriding variables already set.
// ROUNDTABLE_ENV_FILE names an explicit file; otherwise .env beside the
// config file and in the working directory are tried.
func loadDotEnv(configPath string) {
	if f := os.Getenv("ROUNDTABLE_ENV_FILE"); f != "" {
		_ = godotenv.Load(f)
		return
	}
	candidates := []string{".env"}
	if dir := filepath.Dir(configPath); dir != "." && dir != "" {
		candidates = append([]string{filepath.Join(dir, ".env")}, candidates...)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			_ = godotenv.Load(c)
		}
	}
}

// ApplyEnvOverrides maps ROUNDTABLE_* and provider key env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROUNDTABLE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ROUNDTABLE_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitAndTrim(v, ",")
	}
	if v := os.Getenv("ROUNDTABLE_RATE_LIMIT_ENABLED"); v != "" {
		cfg.Server.RateLimit.Enabled = v == "true"
	}
	if v := os.Getenv("ROUNDTABLE_RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit.RequestsPerMin = n
		}
	}
	if v := os.Getenv("ROUNDTABLE_DEFAULT_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Debate.DefaultRounds = n
		}
	}
	if v := os.Getenv("ROUNDTABLE_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Debate.MaxRounds = n
		}
	}
	if v := os.Getenv("ROUNDTABLE_TURN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Debate.TurnTimeout = d
		}
	}
	if v := os.Getenv("ROUNDTABLE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("ROUNDTABLE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("ROUNDTABLE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("ROUNDTABLE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("ROUNDTABLE_TRACER_SAMPLE_RATIO"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracer.SampleRatio = r
		}
	}

	for i := range cfg.Participants {
		p := &cfg.Participants[i]
		if v := os.Getenv("ROUNDTABLE_PARTICIPANT_" + envSuffix(p.ID) + "_API_KEY"); v != "" {
			p.APIKey = v
			continue
		}
		if p.APIKey != "" {
			continue
		}
		if name := KeyEnvVar(p.Provider); name != "" {
			p.APIKey = strings.TrimSpace(os.Getenv(name))
		}
	}
}

// envSuffix upper-cases id and replaces characters not allowed in env names.
func envSuffix(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, id)
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
