package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	xerrors "github.com/researchforge/citekit/errors"
	"github.com/researchforge/citekit/ratelimit"
)

// GoogleProvider implements the Provider interface using the official
// Google Gemini SDK, paced by the shared retrier.
type GoogleProvider struct {
	client      *genai.Client
	model       *genai.GenerativeModel
	modelName   string
	providerKey string
	retrier     *ratelimit.Retrier
}

// NewGoogleProvider creates a new Google Gemini provider.
func NewGoogleProvider(cfg Config, retrier *ratelimit.Retrier) (*GoogleProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	if retrier == nil {
		return nil, fmt.Errorf("google: retrier is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	maxTokens := int32(cfg.MaxTokens)
	model.MaxOutputTokens = &maxTokens

	return &GoogleProvider{
		client:      client,
		model:       model,
		modelName:   cfg.Model,
		providerKey: ratelimit.ResolveProvider(cfg.Model),
		retrier:     retrier,
	}, nil
}

// Close closes the underlying client.
func (p *GoogleProvider) Close() error {
	return p.client.Close()
}

// Chat implements the Provider interface.
func (p *GoogleProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	for _, m := range req.Messages {
		if m.Role == "system" {
			p.model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(m.Content)},
			}
			break
		}
	}

	cs := p.model.StartChat()
	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			cs.History = append(cs.History, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(m.Content)},
			})
		case "assistant":
			cs.History = append(cs.History, &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(m.Content)},
			})
		}
	}

	// The trailing user message is sent as the prompt, not as history.
	var prompt string
	if n := len(cs.History); n > 0 && cs.History[n-1].Role == "user" {
		if text, ok := cs.History[n-1].Parts[0].(genai.Text); ok {
			prompt = string(text)
		}
		cs.History = cs.History[:n-1]
	}

	resp, err := ratelimit.Invoke(ctx, p.retrier, p.providerKey,
		func(ctx context.Context) (*genai.GenerateContentResponse, error) {
			r, callErr := cs.SendMessage(ctx, genai.Text(prompt))
			if callErr != nil {
				if isGoogleRateLimit(callErr) {
					return nil, xerrors.RateLimited("google rejected the request",
						xerrors.WithProvider(p.providerKey), xerrors.WithCause(callErr))
				}
				return nil, fmt.Errorf("google request failed: %w", callErr)
			}
			return r, nil
		})
	if err != nil {
		return nil, err
	}

	result := &ChatResponse{Model: p.modelName}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		result.StopReason = fmt.Sprintf("%v", cand.FinishReason)
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					result.Content += string(text)
				}
			}
		}
	}
	return result, nil
}

var _ Provider = (*GoogleProvider)(nil)
