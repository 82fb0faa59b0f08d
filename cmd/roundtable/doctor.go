package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"roundtable/internal/domain"
	"roundtable/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

func runDoctor(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	return doctor(os.Stdout, configPath(f))
}

// doctor executes all health checks and reports results to out.
func doctor(out io.Writer, cfgPath string) error {
	// Some checks work without a config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Participant keys", Fn: checkParticipantKeys},
		{Name: "Backend connectivity", Fn: checkBackends},
		{Name: "Listen address", Fn: checkListenAddr},
	}

	fmt.Fprintln(out, "roundtable doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(out, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile verifies the config file exists and loads. A missing file
// is a warning: the built-in roster is used.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and values",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkParticipantKeys reports which participants lack credentials.
func checkParticipantKeys(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if len(cfg.Participants) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no participants configured",
			Fix:     "Add at least one entry under participants in config.yaml",
		}
	}

	var ready, missing []string
	for _, p := range cfg.Participants {
		if p.Available() {
			ready = append(ready, p.ID)
		} else {
			missing = append(missing, fmt.Sprintf("%s (%s)", p.ID, keyEnvName(p)))
		}
	}

	switch {
	case len(ready) == 0:
		return CheckResult{
			Status:  StatusFail,
			Message: "no participant has an API key",
			Fix:     "Set provider keys in the environment or .env (e.g. ANTHROPIC_API_KEY)",
		}
	case len(missing) > 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("ready: [%s]; missing keys: [%s]", strings.Join(ready, ", "), strings.Join(missing, ", ")),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("all participants ready: %s", strings.Join(ready, ", ")),
	}
}

// checkBackends probes each available participant's endpoint once.
func checkBackends(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}

	seen := make(map[string]bool)
	var reachable, unreachable []string
	for _, p := range cfg.Participants {
		if !p.Available() {
			continue
		}
		endpoint := backendEndpoint(p)
		if endpoint == "" || seen[endpoint] {
			continue
		}
		seen[endpoint] = true

		if err := probe(endpoint, 5*time.Second); err != nil {
			unreachable = append(unreachable, fmt.Sprintf("%s (%v)", p.Provider, err))
			continue
		}
		reachable = append(reachable, p.Provider)
	}

	switch {
	case len(reachable) == 0 && len(unreachable) == 0:
		return CheckResult{Status: StatusWarn, Message: "skipped, no available participants with a known endpoint"}
	case len(unreachable) > 0:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("unreachable: %s", strings.Join(unreachable, "; ")),
			Fix:     "Check your network, base_url settings, and that local backends are running",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("reachable: %s", strings.Join(reachable, ", ")),
	}
}

// backendEndpoint returns a URL that answers without authentication for the
// participant's backend, or "" when none is known.
func backendEndpoint(p config.ParticipantConfig) string {
	if p.BaseURL != "" {
		base := strings.TrimRight(p.BaseURL, "/")
		if p.Provider == domain.ProviderOllama {
			return base + "/api/tags"
		}
		return base
	}
	switch p.Provider {
	case domain.ProviderAnthropic:
		return "https://api.anthropic.com/"
	case domain.ProviderOpenAI:
		return "https://api.openai.com/v1/models"
	case domain.ProviderGoogle:
		return "https://generativelanguage.googleapis.com/"
	case domain.ProviderXAI:
		return "https://api.x.ai/"
	case domain.ProviderGroq:
		return "https://api.groq.com/"
	case domain.ProviderOpenRouter:
		return "https://openrouter.ai/api/v1/models"
	case domain.ProviderOllama:
		return "http://localhost:11434/api/tags"
	}
	return ""
}

// probe succeeds if endpoint answers with any HTTP status.
func probe(endpoint string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// checkListenAddr verifies the server address can be bound.
func checkListenAddr(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot listen on %s: %v", cfg.Server.Addr, err),
			Fix:     "Stop the process using the port or set server.addr",
		}
	}
	ln.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s is free", cfg.Server.Addr),
	}
}
