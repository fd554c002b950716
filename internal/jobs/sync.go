package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/aianalysis/internal/store"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

// Messages returned by GetOrGenerateBoth describing where the result came from.
const (
	MessageCached    = "cached"
	MessageDBHit     = "db_hit"
	MessageGenerated = "generated_or_completed"
)

// SyncRequest asks for both outputs of a record right away. When Question is
// nil the question and answer are loaded through the record reader.
type SyncRequest struct {
	RecordID      string
	Question      *models.Question
	StudentAnswer string
	Params        models.ParamOverrides
}

type SyncResult struct {
	JobID    uuid.UUID `json:"job_id"`
	Weakness string    `json:"weakness"`
	Guidance string    `json:"guidance"`
	Message  string    `json:"message"`
}

func resultOf(job *models.AnalysisJob, message string) *SyncResult {
	return &SyncResult{
		JobID:    job.ID,
		Weakness: *job.WeaknessText,
		Guidance: *job.GuidanceText,
		Message:  message,
	}
}

// GetOrGenerateBoth returns both outputs for a record, generating only the
// ones the latest job lacks. Unless SyncPathLock is set it takes no lock, so
// concurrent callers for one record may each generate and store a job.
func (o *Orchestrator) GetOrGenerateBoth(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	log := slog.With("record_id", req.RecordID)

	if snap, ok := o.snapshots.latestComplete(ctx, req.RecordID); ok {
		o.metrics.SyncRequest(MessageCached)
		return resultOf(snap.Job(), MessageCached), nil
	}

	complete, err := o.store.GetLatestCompleteJob(ctx, req.RecordID)
	switch {
	case err == nil:
		o.snapshots.publish(ctx, complete)
		o.metrics.SyncRequest(MessageDBHit)
		return resultOf(complete, MessageDBHit), nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("look up complete job for record %s: %w", req.RecordID, err)
	}

	if o.opts.SyncPathLock {
		if !o.locks.Acquire(ctx, req.RecordID) {
			return nil, fmt.Errorf("%w: record %s", ErrGenerationInProgress, req.RecordID)
		}
		defer o.locks.Release(context.WithoutCancel(ctx), req.RecordID)
	}

	// A prior attempt of any status may hold one usable output.
	var priorWeakness, priorGuidance *string
	prior, err := o.store.GetLatestJob(ctx, req.RecordID)
	switch {
	case err == nil:
		priorWeakness, priorGuidance = prior.WeaknessText, prior.GuidanceText
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("look up latest job for record %s: %w", req.RecordID, err)
	}

	weakness, guidance := deref(priorWeakness), deref(priorGuidance)
	if priorWeakness == nil || priorGuidance == nil {
		genReq, err := o.syncInput(ctx, req)
		if err != nil {
			return nil, err
		}
		if weakness, err = o.reuseOrGenerate(ctx, priorWeakness, kindEvaluate, "weakness", genReq); err != nil {
			return nil, err
		}
		if guidance, err = o.reuseOrGenerate(ctx, priorGuidance, kindGuide, "guidance", genReq); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	job := &models.AnalysisJob{
		ID:           uuid.New(),
		RecordID:     req.RecordID,
		Status:       models.JobStatusSucceeded,
		WeaknessText: &weakness,
		GuidanceText: &guidance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.store.InsertJobIfAbsent(ctx, job); err != nil {
		return nil, fmt.Errorf("store result for record %s: %w", req.RecordID, err)
	}
	o.snapshots.publish(ctx, job)

	o.metrics.SyncRequest(MessageGenerated)
	log.Info("analysis generated", "job_id", job.ID)
	return resultOf(job, MessageGenerated), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (o *Orchestrator) syncInput(ctx context.Context, req SyncRequest) (models.GenerationRequest, error) {
	genReq := models.GenerationRequest{
		StudentAnswer: req.StudentAnswer,
		Params:        o.params(req.Params),
	}
	if req.Question != nil {
		genReq.Question = *req.Question
		return genReq, nil
	}

	rec, err := o.records.GetSourceRecord(ctx, req.RecordID)
	if err != nil {
		if isRecordNotFound(err) {
			return genReq, fmt.Errorf("%w: %s", ErrRecordNotFound, req.RecordID)
		}
		return genReq, fmt.Errorf("load record %s: %w", req.RecordID, err)
	}
	genReq.Question = rec.Question
	if genReq.StudentAnswer == "" {
		genReq.StudentAnswer = rec.StudentAnswer
	}
	return genReq, nil
}

// reuseOrGenerate keeps an existing output or generates it under the retry
// schedule.
func (o *Orchestrator) reuseOrGenerate(ctx context.Context, existing *string, kind, field string, req models.GenerationRequest) (string, error) {
	if existing != nil {
		return *existing, nil
	}
	var out string
	attempts, err := o.retry(ctx, field, func() error {
		var err error
		out, err = o.generate(ctx, kind, req)
		return err
	})
	if err != nil {
		return "", &GenerationError{Field: field, Attempts: attempts, Err: err}
	}
	return out, nil
}
