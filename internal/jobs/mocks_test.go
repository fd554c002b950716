package jobs_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/aianalysis/internal/dispatch"
	"github.com/kiranshivaraju/aianalysis/internal/store"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

// --- memStore: in-memory store.Store with the same semantics as Postgres ---

type memStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*models.AnalysisJob
	records map[string]*models.SourceRecord

	completeLookups int
	err             error // returned by every call when set
}

func newMemStore() *memStore {
	return &memStore{
		jobs:    make(map[uuid.UUID]*models.AnalysisJob),
		records: make(map[string]*models.SourceRecord),
	}
}

func cloneJob(j *models.AnalysisJob) *models.AnalysisJob {
	c := *j
	if j.WeaknessText != nil {
		w := *j.WeaknessText
		c.WeaknessText = &w
	}
	if j.GuidanceText != nil {
		g := *j.GuidanceText
		c.GuidanceText = &g
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}

func (m *memStore) Ping(_ context.Context) error { return m.err }

func (m *memStore) InsertJobIfAbsent(_ context.Context, job *models.AnalysisJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.jobs[job.ID]; ok {
		return nil
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memStore) UpdateJob(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	j, ok := m.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if !store.CanTransition(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, j.Status, status)
	}
	store.ApplyJobUpdate(j, status, opts...)
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) GetJob(_ context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *memStore) latest(recordID string, keep func(*models.AnalysisJob) bool) (*models.AnalysisJob, error) {
	var best *models.AnalysisJob
	for _, j := range m.jobs {
		if j.RecordID != recordID || !keep(j) {
			continue
		}
		if best == nil || j.CreatedAt.After(best.CreatedAt) ||
			(j.CreatedAt.Equal(best.CreatedAt) && bytes.Compare(j.ID[:], best.ID[:]) > 0) {
			best = j
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return cloneJob(best), nil
}

func (m *memStore) GetLatestJob(_ context.Context, recordID string) (*models.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.latest(recordID, func(*models.AnalysisJob) bool { return true })
}

func (m *memStore) GetLatestCompleteJob(_ context.Context, recordID string) (*models.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeLookups++
	if m.err != nil {
		return nil, m.err
	}
	return m.latest(recordID, (*models.AnalysisJob).IsComplete)
}

func (m *memStore) GetSourceRecord(_ context.Context, recordID string) (*models.SourceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (m *memStore) addRecord(id, prompt, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = &models.SourceRecord{
		ID:            id,
		Question:      models.Question{Prompt: prompt},
		StudentAnswer: answer,
	}
}

func (m *memStore) put(job *models.AnalysisJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
}

func (m *memStore) forRecord(recordID string) []*models.AnalysisJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AnalysisJob
	for _, j := range m.jobs {
		if j.RecordID == recordID {
			out = append(out, cloneJob(j))
		}
	}
	return out
}

func (m *memStore) lookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeLookups
}

// --- fakeGen: counting generator ---

var errBackend = errors.New("backend overloaded")

type fakeGen struct {
	mu         sync.Mutex
	evalCalls  int
	guideCalls int
	seen       []models.GenerationParams

	evalFailures  int // fail the first n Evaluate calls
	guideFailures int // fail the first n Guide calls
	panicOnEval   bool
	block         chan struct{} // Evaluate waits on it when set
}

func (g *fakeGen) Evaluate(ctx context.Context, req models.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.evalCalls++
	n := g.evalCalls
	g.seen = append(g.seen, req.Params)
	g.mu.Unlock()

	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.panicOnEval {
		panic("evaluate exploded")
	}
	if n <= g.evalFailures {
		return "", errBackend
	}
	return "weakness: " + req.StudentAnswer, nil
}

func (g *fakeGen) Guide(_ context.Context, req models.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.guideCalls++
	n := g.guideCalls
	g.seen = append(g.seen, req.Params)
	g.mu.Unlock()

	if n <= g.guideFailures {
		return "", errBackend
	}
	return "guidance: " + req.Question.Prompt, nil
}

func (g *fakeGen) Name() string { return "fake" }

func (g *fakeGen) params() []models.GenerationParams {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.GenerationParams(nil), g.seen...)
}

func (g *fakeGen) calls() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.evalCalls, g.guideCalls
}

// --- countingLimiter ---

type countingLimiter struct {
	mu sync.Mutex
	n  int
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.n++
	l.mu.Unlock()
	return ctx.Err()
}

func (l *countingLimiter) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// --- dispatchers ---

var errQueueDown = errors.New("queue unavailable")

type failingDispatcher struct{}

func (failingDispatcher) Submit(_ context.Context, _ dispatch.Task) error { return errQueueDown }

// --- downCache: every call fails ---

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
