// Package models contains shared data models used across the analysis service.
package models

import "context"

// Generator is the core interface that all AI integrations must implement.
// Never call specific AI providers directly; inject this interface.
type Generator interface {
	// Evaluate describes the student's weaknesses on a question.
	Evaluate(ctx context.Context, req GenerationRequest) (string, error)
	// Guide produces solution guidance for the same question and answer.
	Guide(ctx context.Context, req GenerationRequest) (string, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// GenerationParams are the sampling parameters forwarded to the provider.
type GenerationParams struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// ParamOverrides are the sampling settings a caller chose. Nil fields take the
// configured defaults, so an explicit zero temperature survives.
type ParamOverrides struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// Resolve fills every unset field from defaults.
func (o ParamOverrides) Resolve(defaults GenerationParams) GenerationParams {
	p := defaults
	if o.Temperature != nil {
		p.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil && *o.MaxTokens > 0 {
		p.MaxTokens = *o.MaxTokens
	}
	return p
}

// GenerationRequest is the input to both generation operations.
type GenerationRequest struct {
	Question      Question
	StudentAnswer string
	Params        GenerationParams
}
