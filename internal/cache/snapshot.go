package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

// Snapshot is the cached form of an analysis job stored under TaskKey.
type Snapshot struct {
	JobID     uuid.UUID `json:"job_id"`
	RecordID  string    `json:"record_id"`
	Status    string    `json:"status"`
	Weakness  *string   `json:"weakness,omitempty"`
	Guidance  *string   `json:"guidance,omitempty"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotOf copies the cacheable fields of a job.
func SnapshotOf(job *models.AnalysisJob) Snapshot {
	return Snapshot{
		JobID:     job.ID,
		RecordID:  job.RecordID,
		Status:    job.Status,
		Weakness:  job.WeaknessText,
		Guidance:  job.GuidanceText,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

// Job rebuilds the job record a snapshot was taken from.
func (s Snapshot) Job() *models.AnalysisJob {
	return &models.AnalysisJob{
		ID:           s.JobID,
		RecordID:     s.RecordID,
		Status:       s.Status,
		WeaknessText: s.Weakness,
		GuidanceText: s.Guidance,
		Error:        s.Error,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// Complete mirrors models.AnalysisJob.IsComplete.
func (s Snapshot) Complete() bool {
	return s.Status == models.JobStatusSucceeded && s.Weakness != nil && s.Guidance != nil
}

func EncodeSnapshot(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding job snapshot: %w", err)
	}
	if s.JobID == uuid.Nil || s.Status == "" {
		return Snapshot{}, fmt.Errorf("decoding job snapshot: missing job id or status")
	}
	return s, nil
}
