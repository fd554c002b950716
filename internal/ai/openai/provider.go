// Package openai talks to any server exposing the OpenAI chat completions API:
// OpenAI itself, vLLM, and Ollama.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/aianalysis/internal/ai/prompt"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Provider implements models.Generator over the chat completions endpoint.
type Provider struct {
	name   string
	model  string
	client sdk.Client
}

// NewProvider returns a provider reporting name. baseURL is the server root
// without the /v1 suffix. apiKey may be empty for self-hosted servers. SDK
// retries are off because the job pipeline owns retry and backoff; timeouts
// come from the caller's context.
func NewProvider(name, baseURL, apiKey, model string, opts ...option.RequestOption) *Provider {
	base := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/v1/"),
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		base = append(base, option.WithAPIKey(apiKey))
	}
	return &Provider{
		name:   name,
		model:  model,
		client: sdk.NewClient(append(base, opts...)...),
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Evaluate(ctx context.Context, req models.GenerationRequest) (string, error) {
	return p.complete(ctx, prompt.Evaluate(req), req.Params)
}

func (p *Provider) Guide(ctx context.Context, req models.GenerationRequest) (string, error) {
	return p.complete(ctx, prompt.Guide(req), req.Params)
}

func (p *Provider) complete(ctx context.Context, userPrompt string, params models.GenerationParams) (string, error) {
	body := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(p.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(prompt.System),
			sdk.UserMessage(userPrompt),
		},
		Temperature: sdk.Float(params.Temperature),
	}
	// vLLM and Ollama read max_tokens, not max_completion_tokens.
	if params.MaxTokens > 0 {
		body.MaxTokens = sdk.Int(int64(params.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

var _ models.Generator = (*Provider)(nil)
