// Package ai sends remediation prompts to an LLM completion endpoint and
// validates the JSON envelopes it returns. Providers are thin adapters over
// the vendor SDKs; retry and schema validation live in Client.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"

	"github.com/floegence/remedy-engine/internal/config"
)

const anthropicDefaultMaxTokens = 4096

// CompletionRequest is a single chat-style completion at temperature 0.
type CompletionRequest struct {
	Model     string
	Prompt    string
	MaxTokens int
}

// Provider issues one completion call and returns the raw message text.
// Errors are transport-level (network, non-2xx, empty response) and are never
// retried by the caller.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// NewProvider builds the provider adapter for the configured endpoint type.
func NewProvider(cfg config.ModelConfig) (Provider, error) {
	providerType := strings.ToLower(strings.TrimSpace(cfg.Type))
	apiKey := strings.TrimSpace(cfg.APIKey)
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if apiKey == "" {
		return nil, errors.New("missing provider api key")
	}
	switch providerType {
	case "openai", "openai_compatible":
		opts := []ooption.RequestOption{ooption.WithAPIKey(apiKey)}
		if baseURL != "" {
			opts = append(opts, ooption.WithBaseURL(baseURL))
		}
		return &openAIProvider{client: openai.NewClient(opts...)}, nil
	case "anthropic":
		opts := []aoption.RequestOption{aoption.WithAPIKey(apiKey)}
		if baseURL != "" {
			opts = append(opts, aoption.WithBaseURL(baseURL))
		}
		return &anthropicProvider{client: anthropic.NewClient(opts...)}, nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", cfg.Type)
	}
}

type openAIProvider struct {
	client openai.Client
}

func (p *openAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if p == nil {
		return "", errors.New("nil provider")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return "", errors.New("missing model")
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(0),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("openai completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

type anthropicProvider struct {
	client anthropic.Client
}

func (p *anthropicProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if p == nil {
		return "", errors.New("nil provider")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return "", errors.New("missing model")
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}
	if msg == nil {
		return "", errors.New("anthropic completion: empty message")
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("anthropic completion: no text content")
	}
	return sb.String(), nil
}
