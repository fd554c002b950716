package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/kiranshivaraju/aianalysis/internal/ai/prompt"
	"github.com/kiranshivaraju/aianalysis/internal/config"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

// Provider implements models.Generator using the Anthropic Messages API.
type Provider struct {
	client anthropic.Client
	model  string
}

// NewProvider builds a client from cfg. The SDK's own retries are disabled;
// the job pipeline owns retry and backoff.
func NewProvider(cfg config.AnthropicConfig, opts ...option.RequestOption) *Provider {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	return &Provider{
		client: anthropic.NewClient(append(base, opts...)...),
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Evaluate(ctx context.Context, req models.GenerationRequest) (string, error) {
	return p.complete(ctx, prompt.Evaluate(req), req.Params)
}

func (p *Provider) Guide(ctx context.Context, req models.GenerationRequest) (string, error) {
	return p.complete(ctx, prompt.Guide(req), req.Params)
}

func (p *Provider) complete(ctx context.Context, userPrompt string, params models.GenerationParams) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(params.MaxTokens),
		Temperature: anthropic.Float(params.Temperature),
		System:      []anthropic.TextBlockParam{{Text: prompt.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

var _ models.Generator = (*Provider)(nil)
