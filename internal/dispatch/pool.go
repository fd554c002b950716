package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pool is a fixed-size worker pool with a bounded backlog. Submissions block
// while the backlog is full.
type Pool struct {
	size  int
	tasks chan Task

	mu      sync.RWMutex
	closed  bool
	started bool

	group *errgroup.Group
}

var _ Dispatcher = (*Pool)(nil)

// NewPool creates a pool of size workers with room for queueSize waiting tasks.
func NewPool(size, queueSize int) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		size:  size,
		tasks: make(chan Task, queueSize),
	}
}

// Start launches the workers. Each runs h for tasks until Stop is called and
// the backlog is drained. ctx is passed to h and is not used to stop workers.
func (p *Pool) Start(ctx context.Context, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	p.group = &errgroup.Group{}
	for i := 0; i < p.size; i++ {
		worker := i
		p.group.Go(func() error {
			for task := range p.tasks {
				runTask(ctx, h, task, worker)
			}
			return nil
		})
	}
	slog.Info("dispatch pool started", "workers", p.size, "backlog", cap(p.tasks))
}

// Submit enqueues task. It blocks while the backlog is full and returns
// ctx.Err() if ctx ends first.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit job %s: %w", task.JobID, ctx.Err())
	}
}

// Stop refuses new tasks and waits for queued and running ones to finish, or
// for ctx to end.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	group := p.group
	p.mu.Unlock()

	if group == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("dispatch pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain dispatch pool: %w", ctx.Err())
	}
}

func runTask(ctx context.Context, h Handler, task Task, worker int) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in dispatched task",
				"job_id", task.JobID,
				"record_id", task.RecordID,
				"worker", worker,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()
	h(ctx, task)
}
