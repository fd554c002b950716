package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kiranshivaraju/aianalysis/internal/cache"
	"github.com/kiranshivaraju/aianalysis/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

var errCacheDown = errors.New("dial tcp: connection refused")

type downCache struct{}

func (downCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return errCacheDown
}
func (downCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, errCacheDown
}
func (downCache) SetNX(_ context.Context, _ string, _ []byte, _ time.Duration) (bool, error) {
	return false, errCacheDown
}
func (downCache) Delete(_ context.Context, _ string) error { return errCacheDown }
func (downCache) Ping(_ context.Context) error             { return errCacheDown }
func (downCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, errCacheDown
}

// --- helpers ---

// acquireAll runs k concurrent acquisitions and returns the granted seconds.
func acquireAll(t *testing.T, l *Limiter, k int) []int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		grants []int64
		wg     sync.WaitGroup
	)
	for range k {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sec, err := l.acquire(ctx)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			grants = append(grants, sec)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return grants
}

func assertBounded(t *testing.T, grants []int64, rps, k int) {
	t.Helper()
	perSecond := map[int64]int{}
	for _, sec := range grants {
		perSecond[sec]++
	}
	for sec, n := range perSecond {
		assert.LessOrEqualf(t, n, rps, "second %d granted %d tokens", sec, n)
	}
	minSeconds := (k + rps - 1) / rps
	assert.GreaterOrEqual(t, len(perSecond), minSeconds,
		"k=%d grants at R=%d must span at least %d distinct seconds", k, rps, minSeconds)
}

// --- tests ---

func TestAcquire_LocalCounterBound(t *testing.T) {
	l := New(nil, "", 2, nil)
	grants := acquireAll(t, l, 5)
	require.Len(t, grants, 5)
	assertBounded(t, grants, 2, 5)
}

func TestAcquire_RedisCounterBound(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	l := New(rc, "test", 2, nil)
	grants := acquireAll(t, l, 5)
	require.Len(t, grants, 5)
	assertBounded(t, grants, 2, 5)
}

func TestAcquire_SharedAcrossLimitersThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	fixed := time.Unix(1_700_000_000, 0)
	a := New(rc, "shared", 1, nil)
	b := New(rc, "shared", 1, nil)
	a.now = func() time.Time { return fixed }
	b.now = func() time.Time { return fixed }

	assert.True(t, a.take(context.Background(), fixed.Unix()))
	assert.False(t, b.take(context.Background(), fixed.Unix()), "second process sees the shared count")
}

func TestAcquire_CacheDownFallsBackToLocal(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	l := New(downCache{}, "", 2, m)

	grants := acquireAll(t, l, 4)
	require.Len(t, grants, 4)
	assertBounded(t, grants, 2, 4)
	assert.Greater(t, testutil.ToFloat64(m.CacheFallbacks.WithLabelValues("rate_limit")), 0.0)
}

func TestAcquire_ContextCancelledWhileWaiting(t *testing.T) {
	l := New(nil, "", 1, nil)
	fixed := time.Unix(1_700_000_000, 500_000_000)
	l.now = func() time.Time { return fixed }

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTakeLocal_ResetsEachSecond(t *testing.T) {
	l := New(nil, "", 1, nil)

	assert.True(t, l.takeLocal(10))
	assert.False(t, l.takeLocal(10))
	assert.True(t, l.takeLocal(11))
}

func TestNew_ClampsRPS(t *testing.T) {
	l := New(nil, "", 0, nil)
	assert.Equal(t, 1, l.rps)
	assert.Equal(t, DefaultBucket, l.bucket)
}
