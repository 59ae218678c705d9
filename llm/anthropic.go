package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	xerrors "github.com/researchforge/citekit/errors"
	"github.com/researchforge/citekit/ratelimit"
)

// AnthropicProvider implements the Provider interface using the official
// Anthropic SDK. Every call goes through the shared retrier, which paces
// requests and absorbs 429/overloaded responses.
type AnthropicProvider struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	providerKey string
	retrier     *ratelimit.Retrier
}

// NewAnthropicProvider creates a new Anthropic provider. The retrier should
// be the process-wide instance so all call sites share one throttle.
func NewAnthropicProvider(cfg Config, retrier *ratelimit.Retrier) (*AnthropicProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	if retrier == nil {
		return nil, fmt.Errorf("anthropic: retrier is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client:      &client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		providerKey: ratelimit.ResolveProvider(cfg.Model),
		retrier:     retrier,
	}, nil
}

// Chat implements the Provider interface.
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var systemPrompt string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			systemPrompt = m.Content
		case "user":
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(m.Content),
			))
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(m.Content),
			))
		}
	}

	maxTokens := int64(p.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	resp, err := ratelimit.Invoke(ctx, p.retrier, p.providerKey,
		func(ctx context.Context) (*anthropic.Message, error) {
			m, callErr := p.client.Messages.New(ctx, params)
			if callErr != nil {
				if isAnthropicRateLimit(callErr) {
					return nil, xerrors.RateLimited("anthropic rejected the request",
						xerrors.WithProvider(p.providerKey), xerrors.WithCause(callErr))
				}
				return nil, fmt.Errorf("anthropic request failed: %w", callErr)
			}
			return m, nil
		})
	if err != nil {
		return nil, err
	}

	result := &ChatResponse{
		StopReason:   string(resp.StopReason),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Model:        string(resp.Model),
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			result.Content += block.Text
		}
	}
	return result, nil
}

var _ Provider = (*AnthropicProvider)(nil)
