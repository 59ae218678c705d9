package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	xerrors "github.com/researchforge/citekit/errors"
	"github.com/researchforge/citekit/ratelimit"
)

// OpenAIProvider implements the Provider interface using the official
// OpenAI SDK, paced by the shared retrier.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	providerKey string
	retrier     *ratelimit.Retrier
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg Config, retrier *ratelimit.Retrier) (*OpenAIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if retrier == nil {
		return nil, fmt.Errorf("openai: retrier is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIProvider{
		client:      &client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		providerKey: ratelimit.ResolveProvider(cfg.Model),
		retrier:     retrier,
	}, nil
}

// Chat implements the Provider interface.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "user":
			messages = append(messages, openai.UserMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}

	maxTokens := int64(p.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(p.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(maxTokens),
	}

	resp, err := ratelimit.Invoke(ctx, p.retrier, p.providerKey,
		func(ctx context.Context) (*openai.ChatCompletion, error) {
			c, callErr := p.client.Chat.Completions.New(ctx, params)
			if callErr != nil {
				if isOpenAIRateLimit(callErr) {
					return nil, xerrors.RateLimited("openai rejected the request",
						xerrors.WithProvider(p.providerKey), xerrors.WithCause(callErr))
				}
				return nil, fmt.Errorf("openai request failed: %w", callErr)
			}
			return c, nil
		})
	if err != nil {
		return nil, err
	}

	result := &ChatResponse{
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
		result.StopReason = string(resp.Choices[0].FinishReason)
	}
	return result, nil
}

var _ Provider = (*OpenAIProvider)(nil)
