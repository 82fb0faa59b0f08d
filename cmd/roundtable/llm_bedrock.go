//go:build bedrock

package main

import (
	"context"
	"log/slog"

	"roundtable/internal/adapter/llm"
	"roundtable/internal/domain"
	"roundtable/internal/infra/config"
)

func createBedrockProvider(ctx context.Context, pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	return llm.NewBedrockProvider(ctx, pc, log)
}
