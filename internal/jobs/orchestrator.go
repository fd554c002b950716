// Package jobs decides when a learning record needs analysis, runs the
// generation for it, and keeps the job store and cache in step.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/aianalysis/internal/cache"
	"github.com/kiranshivaraju/aianalysis/internal/dispatch"
	"github.com/kiranshivaraju/aianalysis/internal/metrics"
	"github.com/kiranshivaraju/aianalysis/internal/records"
	"github.com/kiranshivaraju/aianalysis/internal/store"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

// Skip reasons reported when QueueIfNeeded creates no job.
const (
	SkipCached   = "cached"
	SkipDBHit    = "db_hit"
	SkipInFlight = "in_flight"
)

// terminalWriteTimeout bounds the final store write of a job whose own
// context may already be done.
const terminalWriteTimeout = 10 * time.Second

// Limiter gates each backend call.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Locker is the per-record dedup lock.
type Locker interface {
	Acquire(ctx context.Context, key string) bool
	Release(ctx context.Context, key string)
}

// Deps are the collaborators of an Orchestrator. Cache and Metrics may be nil.
type Deps struct {
	Store      store.Store
	Records    records.Reader
	Generator  models.Generator
	Cache      cache.Cache
	Limiter    Limiter
	Locks      Locker
	Dispatcher dispatch.Dispatcher
	Metrics    *metrics.Metrics
}

type Options struct {
	RetryMaxAttempts int
	RetryBackoff     time.Duration
	CacheTTL         time.Duration
	// SyncPathLock makes GetOrGenerateBoth take the dedup lock and fail with
	// ErrGenerationInProgress when another caller holds it.
	SyncPathLock  bool
	DefaultParams models.GenerationParams
}

// Orchestrator owns the generation pipeline state for one process. Build one
// at startup and share it.
type Orchestrator struct {
	store      store.Store
	records    records.Reader
	gen        models.Generator
	snapshots  snapshots
	limiter    Limiter
	locks      Locker
	dispatcher dispatch.Dispatcher
	metrics    *metrics.Metrics
	opts       Options
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.RetryMaxAttempts < 0 {
		opts.RetryMaxAttempts = 0
	}
	if opts.DefaultParams.MaxTokens <= 0 {
		opts.DefaultParams.MaxTokens = 800
	}
	return &Orchestrator{
		store:      deps.Store,
		records:    deps.Records,
		gen:        deps.Generator,
		snapshots:  snapshots{cache: deps.Cache, ttl: opts.CacheTTL, metrics: deps.Metrics},
		limiter:    deps.Limiter,
		locks:      deps.Locks,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		opts:       opts,
	}
}

// params resolves caller overrides against the configured defaults.
func (o *Orchestrator) params(p models.ParamOverrides) models.GenerationParams {
	return p.Resolve(o.opts.DefaultParams)
}

// taskParams uses the parameters resolved at queue time. Tasks without a token
// budget take the defaults whole.
func (o *Orchestrator) taskParams(p models.GenerationParams) models.GenerationParams {
	if p.MaxTokens <= 0 {
		return o.opts.DefaultParams
	}
	return p
}

type QueueRequest struct {
	RecordID string
	Params   models.ParamOverrides
	// Force skips the existing-result checks and always starts a job unless
	// one is already in flight.
	Force bool
}

// QueueIfNeeded starts a background job for a record unless a complete result
// already exists or another job holds the record's lock. It returns the new
// job id and true when a job was dispatched.
func (o *Orchestrator) QueueIfNeeded(ctx context.Context, req QueueRequest) (uuid.UUID, bool, error) {
	log := slog.With("record_id", req.RecordID)

	if !req.Force {
		done, err := o.existingResult(ctx, req.RecordID)
		if err != nil {
			return uuid.Nil, false, err
		}
		if done != "" {
			log.Debug("analysis already complete", "source", done)
			o.metrics.JobSkipped(done)
			return uuid.Nil, false, nil
		}
	}

	if !o.locks.Acquire(ctx, req.RecordID) {
		log.Debug("analysis already in flight")
		o.metrics.JobSkipped(SkipInFlight)
		return uuid.Nil, false, nil
	}

	now := time.Now().UTC()
	job := &models.AnalysisJob{
		ID:        uuid.New(),
		RecordID:  req.RecordID,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.InsertJobIfAbsent(ctx, job); err != nil {
		o.locks.Release(context.WithoutCancel(ctx), req.RecordID)
		return uuid.Nil, false, fmt.Errorf("create job for record %s: %w", req.RecordID, err)
	}
	o.snapshots.mirror(ctx, job)

	task := dispatch.Task{
		JobID:      job.ID,
		RecordID:   job.RecordID,
		Params:     o.params(req.Params),
		EnqueuedAt: now,
	}
	if err := o.dispatcher.Submit(ctx, task); err != nil {
		o.finishFailed(ctx, job, fmt.Errorf("dispatch: %w", err))
		o.locks.Release(context.WithoutCancel(ctx), req.RecordID)
		return uuid.Nil, false, fmt.Errorf("dispatch job %s: %w", job.ID, err)
	}

	o.metrics.JobQueued()
	log.Info("analysis job queued", "job_id", job.ID)
	return job.ID, true, nil
}

// existingResult reports where a complete result for recordID was found, or
// "" when there is none. A store hit backfills the cache.
func (o *Orchestrator) existingResult(ctx context.Context, recordID string) (string, error) {
	if _, ok := o.snapshots.latestComplete(ctx, recordID); ok {
		return SkipCached, nil
	}
	job, err := o.store.GetLatestCompleteJob(ctx, recordID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("look up complete job for record %s: %w", recordID, err)
	}
	o.snapshots.publish(ctx, job)
	return SkipDBHit, nil
}

// Process is the processing routine run by a dispatcher. It never returns an
// error: the outcome is the job's persisted status. The record's lock is
// released on every path.
func (o *Orchestrator) Process(ctx context.Context, task dispatch.Task) {
	start := time.Now()
	log := slog.With("job_id", task.JobID, "record_id", task.RecordID)
	job := &models.AnalysisJob{
		ID:        task.JobID,
		RecordID:  task.RecordID,
		Status:    models.JobStatusPending,
		CreatedAt: task.EnqueuedAt,
	}

	defer o.locks.Release(context.WithoutCancel(ctx), task.RecordID)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic while processing job", "panic", rec)
			o.finishFailed(ctx, job, fmt.Errorf("panic: %v", rec))
			o.metrics.JobFinished(models.JobStatusFailed, time.Since(start))
		}
	}()

	if err := o.transition(ctx, job, models.JobStatusProcessing); err != nil {
		log.Error("could not mark job processing", "error", err)
		if !errors.Is(err, store.ErrInvalidTransition) && !errors.Is(err, store.ErrNotFound) {
			o.finishFailed(ctx, job, err)
			o.metrics.JobFinished(models.JobStatusFailed, time.Since(start))
		}
		return
	}
	if stored, err := o.store.GetJob(ctx, job.ID); err == nil {
		job = stored
	}

	rec, err := o.records.GetSourceRecord(ctx, task.RecordID)
	if err != nil {
		if isRecordNotFound(err) {
			err = fmt.Errorf("%w: %s", ErrRecordNotFound, task.RecordID)
		}
		log.Warn("could not load learning record", "error", err)
		o.finishFailed(ctx, job, err)
		o.metrics.JobFinished(models.JobStatusFailed, time.Since(start))
		return
	}

	req := models.GenerationRequest{
		Question:      rec.Question,
		StudentAnswer: rec.StudentAnswer,
		Params:        o.taskParams(task.Params),
	}

	var weakness, guidance string
	attempts, err := o.retry(ctx, "pair", func() error {
		w, err := o.generate(ctx, kindEvaluate, req)
		if err != nil {
			return err
		}
		g, err := o.generate(ctx, kindGuide, req)
		if err != nil {
			return err
		}
		weakness, guidance = w, g
		return nil
	})
	if err != nil {
		log.Error("analysis generation failed", "attempts", attempts, "error", err)
		o.finishFailed(ctx, job, err)
		o.metrics.JobFinished(models.JobStatusFailed, time.Since(start))
		return
	}

	wctx, cancel := terminalContext(ctx)
	defer cancel()
	err = o.transition(wctx, job, models.JobStatusSucceeded,
		store.WithWeakness(weakness), store.WithGuidance(guidance))
	if err != nil {
		log.Error("could not record job success", "error", err)
		o.finishFailed(ctx, job, err)
		o.metrics.JobFinished(models.JobStatusFailed, time.Since(start))
		return
	}
	o.snapshots.publish(wctx, job)

	o.metrics.JobFinished(models.JobStatusSucceeded, time.Since(start))
	log.Info("analysis job succeeded", "attempts", attempts, "duration", time.Since(start))
}

// transition persists a status change and mirrors the result to the cache.
func (o *Orchestrator) transition(ctx context.Context, job *models.AnalysisJob, status string, opts ...store.JobUpdateOption) error {
	if err := o.store.UpdateJob(ctx, job.ID, status, opts...); err != nil {
		return err
	}
	store.ApplyJobUpdate(job, status, opts...)
	job.UpdatedAt = time.Now().UTC()
	o.snapshots.mirror(ctx, job)
	return nil
}

// finishFailed records cause on the job. Secondary errors are logged only.
func (o *Orchestrator) finishFailed(ctx context.Context, job *models.AnalysisJob, cause error) {
	wctx, cancel := terminalContext(ctx)
	defer cancel()
	if err := o.transition(wctx, job, models.JobStatusFailed, store.WithErrorMessage(cause.Error())); err != nil {
		slog.Error("could not record job failure",
			"job_id", job.ID,
			"record_id", job.RecordID,
			"cause", cause,
			"error", err,
		)
	}
}

func terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}

// GetJob returns a job by id, reading the cache before the store. A store hit
// is written back to the cache.
func (o *Orchestrator) GetJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	if snap, ok := o.snapshots.task(ctx, id); ok {
		return snap.Job(), nil
	}
	job, err := o.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	o.snapshots.mirror(ctx, job)
	return job, nil
}
