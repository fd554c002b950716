package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, record_id, status, weakness_text, guidance_text, error, created_at, updated_at`

func scanJob(row pgx.Row) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	err := row.Scan(&j.ID, &j.RecordID, &j.Status, &j.WeaknessText, &j.GuidanceText,
		&j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) InsertJobIfAbsent(ctx context.Context, job *models.AnalysisJob) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		job.ID, job.RecordID, job.Status, job.WeaknessText, job.GuidanceText,
		job.Error, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	from, ok := allowedFrom[status]
	if !ok {
		return fmt.Errorf("%w: cannot move to %q", ErrInvalidTransition, status)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs
		 SET status = $2,
		     weakness_text = COALESCE($3, weakness_text),
		     guidance_text = COALESCE($4, guidance_text),
		     error = COALESCE($5, error),
		     updated_at = $6
		 WHERE id = $1 AND status = ANY($7)`,
		id, status, params.WeaknessText, params.GuidanceText, params.ErrorMessage,
		time.Now().UTC(), from)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing matched: either the job is missing or its status forbids the move.
	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM analysis_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// id breaks created_at ties so "latest" is deterministic.
func (s *PostgresStore) GetLatestJob(ctx context.Context, recordID string) (*models.AnalysisJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs
		 WHERE record_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`, recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) GetLatestCompleteJob(ctx context.Context, recordID string) (*models.AnalysisJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs
		 WHERE record_id = $1
		   AND status = 'succeeded'
		   AND weakness_text IS NOT NULL
		   AND guidance_text IS NOT NULL
		 ORDER BY created_at DESC, id DESC LIMIT 1`, recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest complete job: %w", err)
	}
	return j, nil
}

// --- Learning records ---

func (s *PostgresStore) GetSourceRecord(ctx context.Context, recordID string) (*models.SourceRecord, error) {
	var (
		rec      models.SourceRecord
		question []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, question, student_answer FROM learning_records WHERE id = $1`, recordID,
	).Scan(&rec.ID, &question, &rec.StudentAnswer)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get learning record: %w", err)
	}
	if err := json.Unmarshal(question, &rec.Question); err != nil {
		return nil, fmt.Errorf("decode question for record %s: %w", recordID, err)
	}
	return &rec, nil
}

var _ Store = (*PostgresStore)(nil)
