package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
)

// AnalysisJob is one attempt to produce both analysis outputs for a learning record.
// Jobs are never deleted; a record accumulates one row per generation attempt.
type AnalysisJob struct {
	ID           uuid.UUID `db:"id"             json:"id"`
	RecordID     string    `db:"record_id"      json:"record_id"`
	Status       string    `db:"status"         json:"status"`
	WeaknessText *string   `db:"weakness_text"  json:"weakness_text,omitempty"`
	GuidanceText *string   `db:"guidance_text"  json:"guidance_text,omitempty"`
	Error        *string   `db:"error"          json:"error,omitempty"`
	CreatedAt    time.Time `db:"created_at"     json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"     json:"updated_at"`
}

// IsComplete reports whether the job succeeded with both outputs present.
// A succeeded job may still be missing one output after a partial write.
func (j *AnalysisJob) IsComplete() bool {
	return j != nil && j.Status == JobStatusSucceeded &&
		j.WeaknessText != nil && j.GuidanceText != nil
}

// IsTerminal returns true once the job has succeeded or failed.
func (j *AnalysisJob) IsTerminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
