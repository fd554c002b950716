// Package ratelimit caps generation backend calls per wall-clock second.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/aianalysis/internal/cache"
	"github.com/kiranshivaraju/aianalysis/internal/metrics"
)

const DefaultBucket = "generation"

// Limiter is a fixed one-second window counter shared through the cache when
// one is configured, and kept in process otherwise. Waiters are not FIFO.
type Limiter struct {
	cache   cache.Cache
	bucket  string
	rps     int
	metrics *metrics.Metrics

	mu          sync.Mutex
	localSecond int64
	localCount  int

	now func() time.Time
}

// New creates a Limiter allowing rps acquisitions per second. c may be nil.
func New(c cache.Cache, bucket string, rps int, m *metrics.Metrics) *Limiter {
	if rps < 1 {
		rps = 1
	}
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Limiter{
		cache:   c,
		bucket:  bucket,
		rps:     rps,
		metrics: m,
		now:     time.Now,
	}
}

// Acquire blocks until the caller may make one external call, or ctx ends.
func (l *Limiter) Acquire(ctx context.Context) error {
	_, err := l.acquire(ctx)
	return err
}

// acquire returns the unix second the token was granted in.
func (l *Limiter) acquire(ctx context.Context) (int64, error) {
	start := l.now()
	for {
		now := l.now()
		sec := now.Unix()
		if l.take(ctx, sec) {
			l.metrics.RateLimited(now.Sub(start))
			return sec, nil
		}

		wait := time.Unix(sec+1, 0).Sub(now)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Limiter) take(ctx context.Context, sec int64) bool {
	if l.cache != nil {
		n, err := l.cache.IncrWithExpiry(ctx, cache.RateKey(l.bucket, sec), time.Second)
		if err == nil {
			return n <= int64(l.rps)
		}
		slog.Warn("rate limiter cache unavailable, using local counter", "error", err)
		l.metrics.CacheFallback("rate_limit")
	}
	return l.takeLocal(sec)
}

func (l *Limiter) takeLocal(sec int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sec != l.localSecond {
		l.localSecond = sec
		l.localCount = 0
	}
	l.localCount++
	return l.localCount <= l.rps
}
