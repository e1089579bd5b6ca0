// Package queue serializes job actions through a single worker goroutine.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codereader/codereader/internal/metrics"
)

// Action is one unit of job work executed by the worker
type Action func(ctx context.Context) error

type item struct {
	jobID  string
	action Action
}

// Queue is a single-worker FIFO of job actions. At most one action executes
// at any instant; enqueueing is safe from concurrent request handlers.
type Queue struct {
	mu      sync.Mutex
	items   []item
	current string
	running bool
	closed  bool

	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

// New creates the queue and starts its worker goroutine. ctx cancellation
// is propagated into running actions; Close waits for the worker to drain.
func New(ctx context.Context, logger *slog.Logger) *Queue {
	q := &Queue{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.work(ctx)
	return q
}

// Enqueue appends a job action and returns its 1-based queue position,
// counting the running action if there is one.
func (q *Queue) Enqueue(jobID string, action Action) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, fmt.Errorf("queue is shut down")
	}
	q.items = append(q.items, item{jobID: jobID, action: action})
	metrics.QueueDepth.Set(float64(len(q.items)))
	position := len(q.items)
	if q.running {
		position++
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return position, nil
}

// CurrentJobID returns the job whose action is executing, or ""
func (q *Queue) CurrentJobID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// QueueLength returns the number of pending actions (excluding the running one)
func (q *Queue) QueueLength() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsJobQueued reports whether the job is pending or currently executing
func (q *Queue) IsJobQueued(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == jobID {
		return true
	}
	for _, it := range q.items {
		if it.jobID == jobID {
			return true
		}
	}
	return false
}

// Close stops accepting work and waits for the worker to drain
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *Queue) work(ctx context.Context) {
	defer close(q.done)

	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			select {
			case <-q.wake:
				continue
			case <-ctx.Done():
				q.mu.Lock()
				q.closed = true
				q.mu.Unlock()
				return
			}
		}

		next := q.items[0]
		q.items = q.items[1:]
		metrics.QueueDepth.Set(float64(len(q.items)))
		q.current = next.jobID
		q.running = true
		q.mu.Unlock()

		q.runAction(ctx, next)

		q.mu.Lock()
		q.current = ""
		q.running = false
		q.mu.Unlock()
	}
}

func (q *Queue) runAction(ctx context.Context, it item) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job action panicked", "jobId", it.jobID, "panic", r)
		}
	}()

	q.logger.Info("job action started", "jobId", it.jobID)
	if err := it.action(ctx); err != nil {
		q.logger.Error("job action failed", "jobId", it.jobID, "error", err)
		return
	}
	q.logger.Info("job action finished", "jobId", it.jobID)
}
