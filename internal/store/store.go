package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// InsertJobIfAbsent stores job unless a row with the same id exists.
	// A duplicate id is a no-op, never an error.
	InsertJobIfAbsent(ctx context.Context, job *models.AnalysisJob) error
	// UpdateJob sets status and only the fields supplied as options; omitted
	// fields keep their stored values.
	UpdateJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error)
	// GetLatestJob returns the newest job for a record regardless of outcome.
	GetLatestJob(ctx context.Context, recordID string) (*models.AnalysisJob, error)
	// GetLatestCompleteJob returns the newest succeeded job with both outputs.
	GetLatestCompleteJob(ctx context.Context, recordID string) (*models.AnalysisJob, error)

	GetSourceRecord(ctx context.Context, recordID string) (*models.SourceRecord, error)
}

type jobUpdateParams struct {
	WeaknessText *string
	GuidanceText *string
	ErrorMessage *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithWeakness(text string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.WeaknessText = &text
	}
}

func WithGuidance(text string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.GuidanceText = &text
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

// ApplyJobUpdate applies status and options to an in-memory job the same way
// UpdateJob does in the database. Used to mirror writes into the cache.
func ApplyJobUpdate(job *models.AnalysisJob, status string, opts ...JobUpdateOption) {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	job.Status = status
	if params.WeaknessText != nil {
		job.WeaknessText = params.WeaknessText
	}
	if params.GuidanceText != nil {
		job.GuidanceText = params.GuidanceText
	}
	if params.ErrorMessage != nil {
		job.Error = params.ErrorMessage
	}
}

// allowedFrom lists, per target status, the statuses a job may move from.
var allowedFrom = map[string][]string{
	models.JobStatusProcessing: {models.JobStatusPending, models.JobStatusProcessing},
	models.JobStatusSucceeded:  {models.JobStatusProcessing},
	models.JobStatusFailed:     {models.JobStatusPending, models.JobStatusProcessing},
}

// CanTransition reports whether a job in status from may be updated to status to.
func CanTransition(from, to string) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}
