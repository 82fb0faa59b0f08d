package main

import (
	"context"
	"fmt"
	"log/slog"

	"roundtable/internal/adapter/llm"
	"roundtable/internal/domain"
	"roundtable/internal/infra/config"
	"roundtable/internal/usecase/debate"
)

// warmer is implemented by backends that benefit from a preload at startup.
type warmer interface {
	Warmup(ctx context.Context) error
}

// Roster holds the participant registry and the backends behind it.
type Roster struct {
	Participants *debate.Registry
	Backends     *llm.Registry
	warmers      map[string]warmer
}

// buildRoster creates one backend per configured participant and binds it
// to an agent. Participants without credentials get an agent whose turns
// fail naming the missing key, so the session still runs.
func buildRoster(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Roster, error) {
	roster := &Roster{
		Backends: llm.NewRegistry(),
		warmers:  make(map[string]warmer),
	}

	cbCfg := cfg.CircuitBreaker
	participants := make([]debate.Participant, 0, len(cfg.Participants))
	for _, pc := range cfg.Participants {
		p := debate.Participant{
			ParticipantDescriptor: domain.ParticipantDescriptor{
				ID:       pc.ID,
				Name:     pc.Name,
				Model:    pc.Model,
				Color:    pc.Color,
				Avatar:   pc.Avatar,
				Provider: pc.Provider,
			},
			Available: pc.Available(),
		}

		if !p.Available {
			p.Agent = debate.NewMissingKeyAgent(keyEnvName(pc))
			log.Debug("participant unavailable", "participant", pc.ID, "provider", pc.Provider)
			participants = append(participants, p)
			continue
		}

		provider, err := createLLMProvider(ctx, pc.Backend(), log)
		if err != nil {
			return nil, fmt.Errorf("participant %s: %w", pc.ID, err)
		}
		if w, ok := provider.(warmer); ok {
			roster.warmers[pc.ID] = w
		}

		if cbCfg.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, cbCfg, log)
		}
		if err := roster.Backends.Register(provider); err != nil {
			return nil, fmt.Errorf("participant %s: %w", pc.ID, err)
		}

		p.Agent = debate.NewLLMAgent(provider, pc.Model, limitsFor(cfg.Debate, pc.Provider))
		participants = append(participants, p)
	}

	if cbCfg.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}

	reg, err := debate.NewRegistry(participants...)
	if err != nil {
		return nil, err
	}
	roster.Participants = reg
	return roster, nil
}

// warmup preloads local backends in the background, logging failures.
func (r *Roster) warmup(ctx context.Context, log *slog.Logger) {
	for id, w := range r.warmers {
		go func() {
			if err := w.Warmup(ctx); err != nil {
				log.Warn("participant warmup failed", "participant", id, "error", err)
				return
			}
			log.Info("participant warmed up", "participant", id)
		}()
	}
}

// limitsFor returns per-turn output limits. Only backends that can stream
// reasoning get the thinking budget.
func limitsFor(d config.DebateConfig, provider string) debate.Limits {
	limits := debate.Limits{MaxTokens: d.MaxTokens}
	if supportsReasoning(provider) {
		limits.ReasoningMaxTokens = d.ReasoningMaxTokens
		limits.ThinkingBudget = d.ThinkingBudget
	}
	return limits
}

func supportsReasoning(provider string) bool {
	switch provider {
	case domain.ProviderAnthropic, domain.ProviderGoogle, domain.ProviderBedrock:
		return true
	}
	return false
}

func keyEnvName(pc config.ParticipantConfig) string {
	if name := config.KeyEnvVar(pc.Provider); name != "" {
		return name
	}
	return "api_key for participant " + pc.ID
}

// createLLMProvider builds the streaming backend for one participant.
func createLLMProvider(ctx context.Context, pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case domain.ProviderAnthropic:
		return llm.NewAnthropicProvider(pc, log), nil
	case domain.ProviderOpenAI:
		return llm.NewOpenAIProvider(pc, log), nil
	case domain.ProviderGoogle:
		return llm.NewGeminiProvider(pc, log), nil
	case domain.ProviderXAI:
		return llm.NewXAIProvider(pc, log), nil
	case domain.ProviderGroq:
		return llm.NewGroqProvider(pc, log), nil
	case domain.ProviderOpenRouter:
		return llm.NewOpenRouterProvider(pc, log), nil
	case domain.ProviderOllama:
		return llm.NewOllamaProvider(pc, log), nil
	case domain.ProviderBedrock:
		return createBedrockProvider(ctx, pc, log)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", pc.Type)
	}
}
