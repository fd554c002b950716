package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/aianalysis/pkg/models"
	"github.com/sony/gobreaker"
)

// BreakerGenerator stops calling a provider after consecutive failures and
// lets one trial call through once the cooldown has passed. Callers see
// ErrProviderUnavailable while it is open.
type BreakerGenerator struct {
	provider models.Generator
	cb       *gobreaker.CircuitBreaker
}

// WithBreaker wraps provider. failures is the number of consecutive failed
// calls that opens the breaker; zero or less returns provider unwrapped.
func WithBreaker(provider models.Generator, failures int, cooldown time.Duration) models.Generator {
	if failures <= 0 {
		return provider
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider.Name(),
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		// A caller giving up says nothing about the provider's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("generation circuit breaker changed state",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &BreakerGenerator{provider: provider, cb: cb}
}

func (g *BreakerGenerator) Name() string { return g.provider.Name() }

func (g *BreakerGenerator) Evaluate(ctx context.Context, req models.GenerationRequest) (string, error) {
	return g.call(ctx, req, g.provider.Evaluate)
}

func (g *BreakerGenerator) Guide(ctx context.Context, req models.GenerationRequest) (string, error) {
	return g.call(ctx, req, g.provider.Guide)
}

// State reports the breaker state, e.g. "closed" or "open".
func (g *BreakerGenerator) State() string {
	return g.cb.State().String()
}

func (g *BreakerGenerator) call(ctx context.Context, req models.GenerationRequest,
	fn func(context.Context, models.GenerationRequest) (string, error)) (string, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		return fn(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, g.provider.Name(), err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

var _ models.Generator = (*BreakerGenerator)(nil)
