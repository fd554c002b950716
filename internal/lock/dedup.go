// Package lock provides the per-record dedup lock that keeps at most one
// generation job in flight for a learning record.
package lock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/aianalysis/internal/cache"
	"github.com/kiranshivaraju/aianalysis/internal/metrics"
)

// DefaultTTL bounds how long a crashed worker can keep a record locked.
const DefaultTTL = 5 * time.Minute

var lockValue = []byte("1")

// grant is a lock this process handed out. Fallback grants are invisible to
// the cache, so they exclude every caller here until release or expiry. Cache
// grants defer to the cache while it answers, since another process may have
// released them there.
type grant struct {
	expires  time.Time
	fallback bool
}

// Dedup is a non-reentrant try-lock keyed by record id. With a cache it is
// shared across processes through SET NX with expiry; without one, or when the
// cache errors, it falls back to an in-process set with the same expiry.
type Dedup struct {
	cache   cache.Cache
	ttl     time.Duration
	metrics *metrics.Metrics

	mu   sync.Mutex
	held map[string]grant

	now func() time.Time
}

// NewDedup creates a Dedup lock manager. c may be nil.
func NewDedup(c cache.Cache, ttl time.Duration, m *metrics.Metrics) *Dedup {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Dedup{
		cache:   c,
		ttl:     ttl,
		metrics: m,
		held:    make(map[string]grant),
		now:     time.Now,
	}
}

// Acquire reports whether the caller now exclusively owns key.
func (d *Dedup) Acquire(ctx context.Context, key string) bool {
	if d.cache == nil {
		return d.acquireLocal(key, true)
	}
	if d.heldLocally(key, true) {
		return false
	}

	ok, err := d.cache.SetNX(ctx, cache.LockKey(key), lockValue, d.ttl)
	if err == nil {
		if ok && !d.acquireLocal(key, false) {
			// A fallback grant was taken meanwhile.
			_ = d.cache.Delete(ctx, cache.LockKey(key))
			return false
		}
		return ok
	}

	slog.Warn("dedup lock cache unavailable, using local lock", "key", key, "error", err)
	d.metrics.CacheFallback("lock_acquire")
	return d.acquireLocal(key, true)
}

// Release clears key unconditionally. Releasing a key nobody holds is a no-op.
func (d *Dedup) Release(ctx context.Context, key string) {
	if d.cache != nil {
		if err := d.cache.Delete(ctx, cache.LockKey(key)); err != nil {
			slog.Warn("dedup lock release failed", "key", key, "error", err)
			d.metrics.CacheFallback("lock_release")
		}
	}

	d.mu.Lock()
	delete(d.held, key)
	d.mu.Unlock()
}

// heldLocally reports a live grant. With onlyFallback set, cache grants are
// ignored.
func (d *Dedup) heldLocally(key string, onlyFallback bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.held[key]
	return ok && d.now().Before(g.expires) && (g.fallback || !onlyFallback)
}

// acquireLocal records a grant for key unless a live one exists. A cache
// grant may replace an earlier cache grant: the cache just agreed the key was
// free.
func (d *Dedup) acquireLocal(key string, fallback bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if g, ok := d.held[key]; ok && now.Before(g.expires) && (fallback || g.fallback) {
		return false
	}
	d.held[key] = grant{expires: now.Add(d.ttl), fallback: fallback}
	return true
}
