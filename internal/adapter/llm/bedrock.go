//go:build bedrock

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"roundtable/internal/domain"
	"roundtable/internal/infra/config"
)

const defaultBedrockRegion = "us-east-1"

// bedrockConverseAPI is the subset of the Bedrock runtime client we call.
type bedrockConverseAPI interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockProvider runs a participant through the AWS Bedrock Converse API.
type BedrockProvider struct {
	name   string
	model  string
	client bedrockConverseAPI
	logger *slog.Logger
}

// NewBedrockProvider creates a Bedrock provider using the default AWS credential chain.
func NewBedrockProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = defaultBedrockRegion
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newBedrockProviderWithClient(cfg.Name, cfg.Model, bedrockruntime.NewFromConfig(awsCfg), logger), nil
}

func newBedrockProviderWithClient(name, model string, client bedrockConverseAPI, logger *slog.Logger) *BedrockProvider {
	return &BedrockProvider{name: name, model: model, client: client, logger: logger}
}

// ChatStream implements domain.LLMProvider.
func (p *BedrockProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	input := toBedrockStreamInput(req)

	return traceStream(ctx, p.logger, p.name, req.Model, func(ctx context.Context) (<-chan domain.StreamDelta, error) {
		output, err := p.client.ConverseStream(ctx, input)
		if err != nil {
			return nil, mapBedrockError(err)
		}
		return readBedrockStream(ctx, output.GetStream()), nil
	})
}

// bedrockEventStream is the subset of the Converse event stream reader we use.
type bedrockEventStream interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

func readBedrockStream(ctx context.Context, stream bedrockEventStream) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, streamBuffer)
	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(d domain.StreamDelta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for evt := range stream.Events() {
			if delta := processBedrockStreamEvent(evt); delta != nil && !send(*delta) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			send(domain.StreamDelta{Err: mapBedrockError(err)})
			return
		}
		send(domain.StreamDelta{Done: true})
	}()
	return ch
}

// Name implements domain.LLMProvider.
func (p *BedrockProvider) Name() string { return p.name }

func toBedrockStreamInput(req domain.ChatRequest) *bedrockruntime.ConverseStreamInput {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(req.Model),
		InferenceConfig: &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))},
	}
	if req.Temperature > 0 {
		input.InferenceConfig.Temperature = aws.Float32(float32(req.Temperature))
	}

	// Claude models on Bedrock take the Anthropic thinking block verbatim.
	if req.ThinkingBudget > 0 {
		input.AdditionalModelRequestFields = document.NewLazyDocument(map[string]any{
			"thinking": map[string]any{"type": "enabled", "budget_tokens": req.ThinkingBudget},
		})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: m.Content})
		case domain.RoleUser:
			input.Messages = append(input.Messages, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		case domain.RoleAssistant:
			input.Messages = append(input.Messages, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		}
	}
	return input
}

func bedrockUsage(u *types.TokenUsage) domain.Usage {
	in, out := int(aws.ToInt32(u.InputTokens)), int(aws.ToInt32(u.OutputTokens))
	return domain.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
}

// processBedrockStreamEvent maps one Converse stream event. MessageStop is
// ignored because the usage metadata event still follows it.
func processBedrockStreamEvent(evt types.ConverseStreamOutput) *domain.StreamDelta {
	switch e := evt.(type) {
	case *types.ConverseStreamOutputMemberContentBlockDelta:
		switch d := e.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			return &domain.StreamDelta{Content: d.Value}
		case *types.ContentBlockDeltaMemberReasoningContent:
			if t, ok := d.Value.(*types.ReasoningContentBlockDeltaMemberText); ok {
				return &domain.StreamDelta{Thinking: t.Value}
			}
		}
		return nil

	case *types.ConverseStreamOutputMemberMetadata:
		if e.Value.Usage == nil {
			return nil
		}
		u := bedrockUsage(e.Value.Usage)
		return &domain.StreamDelta{Usage: &u}

	default:
		return nil
	}
}

func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); {
		case code == "ThrottlingException" || code == "TooManyRequestsException":
			return fmt.Errorf("%w: %s", domain.ErrRateLimit, msg)
		case code == "AccessDeniedException" || code == "UnrecognizedClientException":
			return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, msg)
		case code == "ValidationException" && strings.Contains(msg, "too long"):
			return fmt.Errorf("%w: %s", domain.ErrContextOverflow, msg)
		case code == "ModelNotReadyException" || code == "ServiceUnavailableException" ||
			code == "InternalServerException" || code == "ModelStreamErrorException":
			return fmt.Errorf("%w: %s", domain.ErrUnavailable, msg)
		}
	}
	return domain.WrapOp("bedrock", err)
}

var _ domain.LLMProvider = (*BedrockProvider)(nil)
