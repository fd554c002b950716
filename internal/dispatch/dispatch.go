// Package dispatch runs processing routines either on an in-process bounded
// worker pool or through a durable Redis list consumed by worker processes.
// The routine itself does not know which dispatcher invoked it.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

var ErrPoolClosed = errors.New("dispatch pool is closed")

// Task is the argument set of one processing routine.
type Task struct {
	JobID      uuid.UUID               `json:"job_id"`
	RecordID   string                  `json:"record_id"`
	Params     models.GenerationParams `json:"params"`
	EnqueuedAt time.Time               `json:"enqueued_at"`
}

// Handler runs one task. It reports failure through persisted state, not a
// return value.
type Handler func(ctx context.Context, task Task)

// Dispatcher hands a task to whatever will eventually run it. Submit returns
// once the task is accepted, never after it has run.
type Dispatcher interface {
	Submit(ctx context.Context, task Task) error
}
