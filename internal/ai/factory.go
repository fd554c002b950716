package ai

import (
	"fmt"

	"github.com/kiranshivaraju/aianalysis/internal/ai/anthropic"
	"github.com/kiranshivaraju/aianalysis/internal/ai/openai"
	"github.com/kiranshivaraju/aianalysis/internal/config"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup. Ollama and vLLM are reached through their
// OpenAI-compatible chat endpoints.
func NewProvider(cfg config.AIConfig) (models.Generator, error) {
	var p models.Generator
	switch cfg.Provider {
	case "ollama":
		p = openai.NewProvider("ollama", cfg.Ollama.BaseURL, "", cfg.Ollama.Model)
	case "vllm":
		p = openai.NewProvider("vllm", cfg.VLLM.BaseURL, "", cfg.VLLM.Model)
	case "openai":
		p = openai.NewProvider("openai", cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	case "anthropic":
		p = anthropic.NewProvider(cfg.Anthropic)
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}
	return WithTimeout(p, cfg.InferenceTimeout), nil
}
