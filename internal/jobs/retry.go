package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

const (
	kindEvaluate = "evaluate"
	kindGuide    = "guide"
)

// newBackOff builds the retry schedule: RetryMaxAttempts extra attempts,
// waiting RetryBackoff and doubling after each failure, with no jitter.
func (o *Orchestrator) newBackOff(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.opts.RetryBackoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = time.Hour
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.opts.RetryMaxAttempts)), ctx)
}

// retry runs op under the retry schedule and reports how many times it ran.
func (o *Orchestrator) retry(ctx context.Context, what string, op func() error) (int, error) {
	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		return op()
	}, o.newBackOff(ctx), func(err error, wait time.Duration) {
		slog.Warn("generation attempt failed, retrying",
			"step", what,
			"attempt", attempts,
			"backoff", wait,
			"error", err,
		)
		o.metrics.GenerationRetry()
	})
	return attempts, err
}

// generate makes one rate-limited backend call.
func (o *Orchestrator) generate(ctx context.Context, kind string, req models.GenerationRequest) (string, error) {
	if err := o.limiter.Acquire(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limit: %w", err)
	}

	var (
		out string
		err error
	)
	switch kind {
	case kindEvaluate:
		out, err = o.gen.Evaluate(ctx, req)
	case kindGuide:
		out, err = o.gen.Guide(ctx, req)
	default:
		return "", fmt.Errorf("unknown generation kind %q", kind)
	}
	if err == nil && strings.TrimSpace(out) == "" {
		err = fmt.Errorf("%s returned empty output", kind)
	}
	if err != nil {
		o.metrics.GenerationCall(kind, "error")
		return "", err
	}
	o.metrics.GenerationCall(kind, "ok")
	return out, nil
}
