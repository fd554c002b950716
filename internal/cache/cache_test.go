package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/aianalysis/internal/cache"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedis starts an in-memory Redis and returns a connected RedisCache.
func setupRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	rc, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return rc, mr
}

// --- Ping ---

func TestPing(t *testing.T) {
	rc, _ := setupRedis(t)
	assert.NoError(t, rc.Ping(context.Background()))
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisCache("not a url")
	assert.Error(t, err)
}

// --- Set / Get roundtrip ---

func TestSetGet_Roundtrip(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "test:key", []byte("hello"), 10*time.Second))

	val, found, err := rc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

func TestGet_NotFound(t *testing.T) {
	rc, _ := setupRedis(t)

	val, found, err := rc.Get(context.Background(), "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestGet_ServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rc, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	mr.Close()

	_, found, err := rc.Get(context.Background(), "any:key")
	assert.Error(t, err)
	assert.False(t, found)
}

func TestSet_TTLExpiry(t *testing.T) {
	rc, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "expiry:key", []byte("temp"), time.Second))

	_, found, err := rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.True(t, found)

	mr.FastForward(1500 * time.Millisecond)

	_, found, err = rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.False(t, found)
}

// --- SetNX ---

func TestSetNX_OnlyFirstWins(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()

	ok, err := rc.SetNX(ctx, "lock:r1", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rc.SetNX(ctx, "lock:r1", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetNX_ExpiresAndCanBeRetaken(t *testing.T) {
	rc, mr := setupRedis(t)
	ctx := context.Background()

	ok, err := rc.SetNX(ctx, "lock:r2", []byte("1"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = rc.SetNX(ctx, "lock:r2", []byte("1"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

// --- Delete ---

func TestDelete(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "del:key", []byte("bye"), 10*time.Second))
	require.NoError(t, rc.Delete(ctx, "del:key"))

	_, found, err := rc.Get(ctx, "del:key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_NonExistent(t *testing.T) {
	rc, _ := setupRedis(t)
	assert.NoError(t, rc.Delete(context.Background(), "does:not:exist"))
}

// --- IncrWithExpiry ---

func TestIncrWithExpiry(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()
	key := "rl:test:" + uuid.NewString()[:8]

	for want := int64(1); want <= 3; want++ {
		val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, val)
	}
}

func TestIncrWithExpiry_SetsTTLOnFirstIncrementOnly(t *testing.T) {
	rc, mr := setupRedis(t)
	ctx := context.Background()
	key := "rl:ttl:" + uuid.NewString()[:8]

	_, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	mr.FastForward(6 * time.Second)

	// A later increment must not push the expiry out again.
	_, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.LessOrEqual(t, mr.TTL(key), 4*time.Second)
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	rc, mr := setupRedis(t)
	ctx := context.Background()
	key := "rl:expiry:" + uuid.NewString()[:8]

	_, err := rc.IncrWithExpiry(ctx, key, time.Second)
	require.NoError(t, err)

	mr.FastForward(1500 * time.Millisecond)

	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

// --- Snapshots ---

func TestSnapshot_EncodeDecode(t *testing.T) {
	weakness := "confuses sign rules"
	job := &models.AnalysisJob{
		ID:           uuid.New(),
		RecordID:     "r1",
		Status:       models.JobStatusProcessing,
		WeaknessText: &weakness,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}

	data, err := cache.EncodeSnapshot(cache.SnapshotOf(job))
	require.NoError(t, err)

	snap, err := cache.DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, job, snap.Job())
	assert.False(t, snap.Complete())
}

func TestSnapshot_Complete(t *testing.T) {
	w, g := "w", "g"
	snap := cache.Snapshot{JobID: uuid.New(), Status: models.JobStatusSucceeded, Weakness: &w}
	assert.False(t, snap.Complete(), "succeeded with one output is not complete")

	snap.Guidance = &g
	assert.True(t, snap.Complete())
}

func TestDecodeSnapshot_Garbage(t *testing.T) {
	_, err := cache.DecodeSnapshot([]byte("not json"))
	assert.Error(t, err)

	_, err = cache.DecodeSnapshot([]byte(`{"status":"pending"}`))
	assert.Error(t, err)
}

// --- Cache Key Builders ---

func TestTaskKey(t *testing.T) {
	jobID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	assert.Equal(t, "task:22222222-2222-2222-2222-222222222222", cache.TaskKey(jobID))
}

func TestRecordLatestKey(t *testing.T) {
	assert.Equal(t, "record:r1:latest", cache.RecordLatestKey("r1"))
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "lock:r1", cache.LockKey("r1"))
}

func TestRateKey(t *testing.T) {
	assert.Equal(t, "rl:generation:1700000000", cache.RateKey("generation", 1700000000))
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	jobID := uuid.New()

	keys := map[string]bool{
		cache.TaskKey(jobID):            true,
		cache.RecordLatestKey("r1"):     true,
		cache.LockKey("r1"):             true,
		cache.RateKey("generation", 1):  true,
		cache.ClientRateKey("10.0.0.1"): true,
	}
	assert.Len(t, keys, 5, "all keys should be unique")
}
