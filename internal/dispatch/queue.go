package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// DefaultJobTimeout bounds a single task taken from the queue.
const DefaultJobTimeout = 15 * time.Minute

// pollTimeout is how long a consumer blocks on an empty queue before checking
// for shutdown.
const pollTimeout = time.Second

// RedisQueue is a durable list-backed queue. Producers LPUSH; consumers move
// each task onto a processing list while it runs so a crashed consumer leaves
// it visible for inspection.
type RedisQueue struct {
	client *redis.Client
	name   string
}

var _ Dispatcher = (*RedisQueue)(nil)

func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name}
}

func (q *RedisQueue) processingKey() string {
	return q.name + ":processing"
}

// Submit pushes task onto the queue.
func (q *RedisQueue) Submit(ctx context.Context, task Task) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.JobID, err)
	}
	if err := q.client.LPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", task.JobID, err)
	}
	return nil
}

// Len returns the number of tasks waiting to be consumed.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

// Consume runs consumers goroutines that take tasks oldest first and run h on
// each with a jobTimeout deadline. It returns when ctx is cancelled and every
// in-flight task has finished.
func (q *RedisQueue) Consume(ctx context.Context, h Handler, consumers int, jobTimeout time.Duration) error {
	if consumers < 1 {
		consumers = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}

	g := &errgroup.Group{}
	for i := 0; i < consumers; i++ {
		worker := i
		g.Go(func() error {
			return q.consume(ctx, h, worker, jobTimeout)
		})
	}
	slog.Info("queue consumers started", "queue", q.name, "consumers", consumers)
	return g.Wait()
}

func (q *RedisQueue) consume(ctx context.Context, h Handler, worker int, jobTimeout time.Duration) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		raw, err := q.client.BLMove(ctx, q.name, q.processingKey(), "RIGHT", "LEFT", pollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("queue read failed", "queue", q.name, "worker", worker, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollTimeout):
			}
			continue
		}

		var task Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			slog.Error("dropping malformed task", "queue", q.name, "error", err)
			q.ack(raw)
			continue
		}

		// The task runs to its own deadline even while the consumer shuts down.
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
		runTask(taskCtx, h, task, worker)
		cancel()
		q.ack(raw)
	}
}

func (q *RedisQueue) ack(raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.client.LRem(ctx, q.processingKey(), 1, raw).Err(); err != nil {
		slog.Warn("queue ack failed", "queue", q.name, "error", err)
	}
}
