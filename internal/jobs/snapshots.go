package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/aianalysis/internal/cache"
	"github.com/kiranshivaraju/aianalysis/internal/metrics"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

// snapshots is the job view of the Fast Cache. Every failure is logged and
// reported as a miss; a nil cache is a permanent miss.
type snapshots struct {
	cache   cache.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
}

func (s snapshots) enabled() bool {
	return s.cache != nil
}

func (s snapshots) get(ctx context.Context, key string) ([]byte, bool) {
	if !s.enabled() {
		return nil, false
	}
	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("cache read failed, falling back to store", "key", key, "error", err)
		s.metrics.CacheFallback("snapshot_read")
		return nil, false
	}
	return data, found
}

func (s snapshots) read(ctx context.Context, key string) (cache.Snapshot, bool) {
	data, ok := s.get(ctx, key)
	if !ok {
		return cache.Snapshot{}, false
	}
	snap, err := cache.DecodeSnapshot(data)
	if err != nil {
		slog.Warn("ignoring unreadable cache entry", "key", key, "error", err)
		return cache.Snapshot{}, false
	}
	return snap, true
}

func (s snapshots) set(ctx context.Context, key string, data []byte) {
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
		s.metrics.CacheFallback("snapshot_write")
	}
}

func (s snapshots) write(ctx context.Context, key string, job *models.AnalysisJob) {
	if !s.enabled() {
		return
	}
	data, err := cache.EncodeSnapshot(cache.SnapshotOf(job))
	if err != nil {
		slog.Warn("encode job snapshot", "job_id", job.ID, "error", err)
		return
	}
	s.set(ctx, key, data)
}

// latestComplete follows the record's latest pointer to its task snapshot and
// returns it when the job is complete.
func (s snapshots) latestComplete(ctx context.Context, recordID string) (cache.Snapshot, bool) {
	key := cache.RecordLatestKey(recordID)
	data, ok := s.get(ctx, key)
	if !ok {
		return cache.Snapshot{}, false
	}
	id, err := uuid.ParseBytes(data)
	if err != nil {
		slog.Warn("ignoring unreadable cache entry", "key", key, "error", err)
		return cache.Snapshot{}, false
	}
	snap, ok := s.task(ctx, id)
	if !ok || snap.RecordID != recordID || !snap.Complete() {
		return cache.Snapshot{}, false
	}
	return snap, true
}

func (s snapshots) task(ctx context.Context, id uuid.UUID) (cache.Snapshot, bool) {
	return s.read(ctx, cache.TaskKey(id))
}

// mirror stores the current state of job under its task key.
func (s snapshots) mirror(ctx context.Context, job *models.AnalysisJob) {
	s.write(ctx, cache.TaskKey(job.ID), job)
}

// publish mirrors job and points the record's latest entry at its id.
func (s snapshots) publish(ctx context.Context, job *models.AnalysisJob) {
	if !s.enabled() {
		return
	}
	s.mirror(ctx, job)
	s.set(ctx, cache.RecordLatestKey(job.RecordID), []byte(job.ID.String()))
}
