package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/aianalysis/internal/ai/prompt"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

// maxOutputBytes caps a single stored output.
const maxOutputBytes = 8000

// TimedGenerator bounds every call of the wrapped provider by the inference
// timeout and maps provider failures onto this package's sentinel errors.
type TimedGenerator struct {
	provider models.Generator
	timeout  time.Duration
}

// WithTimeout wraps provider. A non-positive timeout leaves calls unbounded.
func WithTimeout(provider models.Generator, timeout time.Duration) *TimedGenerator {
	return &TimedGenerator{provider: provider, timeout: timeout}
}

func (g *TimedGenerator) Name() string { return g.provider.Name() }

func (g *TimedGenerator) Evaluate(ctx context.Context, req models.GenerationRequest) (string, error) {
	return g.call(ctx, "evaluate", req, g.provider.Evaluate)
}

func (g *TimedGenerator) Guide(ctx context.Context, req models.GenerationRequest) (string, error) {
	return g.call(ctx, "guide", req, g.provider.Guide)
}

func (g *TimedGenerator) call(ctx context.Context, op string, req models.GenerationRequest,
	fn func(context.Context, models.GenerationRequest) (string, error)) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out, err := fn(ctx, req)
	if err != nil {
		return "", classify(ctx, g.provider.Name(), op, err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: %s %s returned no text", ErrInvalidResponse, g.provider.Name(), op)
	}
	return prompt.Truncate(out, maxOutputBytes), nil
}

func classify(ctx context.Context, provider, op string, err error) error {
	switch {
	case errors.Is(err, ErrInferenceTimeout), errors.Is(err, ErrInvalidResponse), errors.Is(err, ErrProviderUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s %s: %v", ErrInferenceTimeout, provider, op, err)
	default:
		return fmt.Errorf("%w: %s %s: %v", ErrProviderUnavailable, provider, op, err)
	}
}

var _ models.Generator = (*TimedGenerator)(nil)
