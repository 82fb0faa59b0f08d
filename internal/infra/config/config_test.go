package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"roundtable/internal/domain"
)

// isolateEnv clears provider key variables so tests do not depend on the host.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range providerKeyEnv {
		t.Setenv(name, "")
	}
	t.Setenv("ROUNDTABLE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("ROUNDTABLE_CONFIG_KEY", "")
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Debate.DefaultRounds != 2 {
		t.Errorf("DefaultRounds = %d, want 2", cfg.Debate.DefaultRounds)
	}
	if cfg.Debate.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", cfg.Debate.MaxTokens)
	}
	if cfg.Debate.ThinkingBudget != 10000 || cfg.Debate.ReasoningMaxTokens != 16000 {
		t.Errorf("reasoning limits = %d/%d, want 10000/16000", cfg.Debate.ThinkingBudget, cfg.Debate.ReasoningMaxTokens)
	}
	if len(cfg.Participants) != 5 {
		t.Fatalf("participants = %d, want 5", len(cfg.Participants))
	}
	ids := []string{"claude", "gpt", "gemini", "grok", "llama"}
	for i, id := range ids {
		if cfg.Participants[i].ID != id {
			t.Errorf("participants[%d].id = %q, want %q", i, cfg.Participants[i].ID, id)
		}
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	isolateEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8000" {
		t.Errorf("expected defaults, got addr=%q", cfg.Server.Addr)
	}
}

func TestLoadYAML(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: "0.0.0.0:9000"
debate:
  default_rounds: 3
  max_rounds: 5
participants:
  - id: "local"
    name: "Local"
    model: "llama3"
    color: "#123456"
    avatar: "x"
    provider: "ollama"
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Debate.DefaultRounds != 3 || cfg.Debate.MaxRounds != 5 {
		t.Errorf("rounds = %d/%d, want 3/5", cfg.Debate.DefaultRounds, cfg.Debate.MaxRounds)
	}
	if len(cfg.Participants) != 1 || cfg.Participants[0].ID != "local" {
		t.Fatalf("participants = %+v", cfg.Participants)
	}
	if !cfg.Participants[0].Available() {
		t.Error("ollama participant should be available without a key")
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
	// Unset fields keep their defaults.
	if cfg.Debate.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want default 1024", cfg.Debate.MaxTokens)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, domain.ErrConfigLoad) {
		t.Fatalf("expected ErrConfigLoad, got %v", err)
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0666); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "insecure permissions") {
		t.Fatalf("expected permissions error, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, "keys.env")
	if err := os.WriteFile(envPath, []byte("GROQ_API_KEY=gsk-from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROUNDTABLE_ENV_FILE", envPath)
	// godotenv does not override variables that are already set, even to "".
	os.Unsetenv("GROQ_API_KEY")
	t.Cleanup(func() { os.Unsetenv("GROQ_API_KEY") })

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, p := range cfg.Participants {
		if p.ID == "llama" && p.APIKey != "gsk-from-dotenv" {
			t.Errorf("llama api key = %q, want value from .env", p.APIKey)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ROUNDTABLE_ADDR", "127.0.0.1:9999")
	t.Setenv("ROUNDTABLE_DEFAULT_ROUNDS", "4")
	t.Setenv("ROUNDTABLE_MAX_ROUNDS", "8")
	t.Setenv("ROUNDTABLE_TURN_TIMEOUT", "90s")
	t.Setenv("ROUNDTABLE_LOGGER_LEVEL", "warn")
	t.Setenv("ROUNDTABLE_TRACER_ENABLED", "true")
	t.Setenv("ROUNDTABLE_TRACER_EXPORTER", "stdout")
	t.Setenv("ROUNDTABLE_ALLOWED_ORIGINS", "example.com, *.example.org")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Debate.DefaultRounds != 4 || cfg.Debate.MaxRounds != 8 {
		t.Errorf("rounds = %d/%d", cfg.Debate.DefaultRounds, cfg.Debate.MaxRounds)
	}
	if cfg.Debate.TurnTimeout != 90*time.Second {
		t.Errorf("TurnTimeout = %v", cfg.Debate.TurnTimeout)
	}
	if cfg.Logger.Level != "warn" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
	if !cfg.Tracer.Enabled || cfg.Tracer.Exporter != "stdout" {
		t.Errorf("Tracer = %+v", cfg.Tracer)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "*.example.org" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestApplyEnvOverridesProviderKeys(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "  sk-ant  ")
	t.Setenv("ROUNDTABLE_PARTICIPANT_GPT_API_KEY", "sk-override")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	keys := map[string]string{}
	for _, p := range cfg.Participants {
		keys[p.ID] = p.APIKey
	}
	if keys["claude"] != "sk-ant" {
		t.Errorf("claude key = %q, want trimmed sk-ant", keys["claude"])
	}
	if keys["gpt"] != "sk-override" {
		t.Errorf("gpt key = %q, want participant-specific override", keys["gpt"])
	}
	if keys["gemini"] != "" {
		t.Errorf("gemini key = %q, want empty", keys["gemini"])
	}
}

func TestApplyEnvOverridesKeepsConfiguredKey(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "from-env")

	cfg := Defaults()
	cfg.Participants[0].APIKey = "from-file"
	ApplyEnvOverrides(cfg)

	if cfg.Participants[0].APIKey != "from-file" {
		t.Errorf("APIKey = %q, want from-file", cfg.Participants[0].APIKey)
	}
}

func TestParticipantAvailable(t *testing.T) {
	tests := []struct {
		p    ParticipantConfig
		want bool
	}{
		{ParticipantConfig{Provider: "anthropic"}, false},
		{ParticipantConfig{Provider: "anthropic", APIKey: " "}, false},
		{ParticipantConfig{Provider: "anthropic", APIKey: "k"}, true},
		{ParticipantConfig{Provider: "ollama"}, true},
		{ParticipantConfig{Provider: "bedrock"}, true},
	}
	for _, tt := range tests {
		if got := tt.p.Available(); got != tt.want {
			t.Errorf("Available(%+v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestParticipantProvider(t *testing.T) {
	p := ParticipantConfig{ID: "grok", Model: "grok-beta", Provider: "xai", APIKey: "k", BaseURL: "https://x"}
	pc := p.Backend()
	if pc.Name != "grok" || pc.Type != "xai" || pc.Model != "grok-beta" || pc.APIKey != "k" || pc.BaseURL != "https://x" {
		t.Errorf("Provider() = %+v", pc)
	}
}

func TestEnvSuffix(t *testing.T) {
	if got := envSuffix("my-model_2"); got != "MY_MODEL_2" {
		t.Errorf("envSuffix = %q, want MY_MODEL_2", got)
	}
}

func TestValidatePermissionsOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("x: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := validatePermissions(path); err != nil {
		t.Errorf("validatePermissions: %v", err)
	}
}
