package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	commonlog "files_manager/server/common/log"
	"files_manager/server/fileman/domain"
)

type envelope struct {
	job     domain.ThumbnailJob
	attempt int
}

// MemoryQueue is an in-process queue for single-node deployments and tests.
// Jobs do not survive a restart.
type MemoryQueue struct {
	policy RetryPolicy
	jobs   chan envelope
	done   chan struct{}
	after  func(time.Duration, func())

	mu     sync.Mutex
	closed bool
	dead   []DeadLetter
}

func NewMemoryQueue(capacity int, policy RetryPolicy) *MemoryQueue {
	if capacity <= 0 {
		capacity = 128
	}
	return &MemoryQueue{
		policy: policy,
		jobs:   make(chan envelope, capacity),
		done:   make(chan struct{}),
		after:  func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job domain.ThumbnailJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	return q.push(ctx, envelope{job: job, attempt: 1})
}

func (q *MemoryQueue) push(ctx context.Context, env envelope) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.jobs <- env:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context) (Delivery, error) {
	select {
	case env := <-q.jobs:
		return &memoryDelivery{queue: q, env: env}, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

// DeadLetters returns the jobs that exhausted their retries.
func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.dead...)
}

func (q *MemoryQueue) retryLater(env envelope, delay time.Duration) {
	q.after(delay, func() {
		if err := q.push(context.Background(), env); err != nil && !errors.Is(err, ErrClosed) {
			commonlog.Errorf("requeue thumbnail job %s: %v", env.job.FileID, err)
		}
	})
}

func (q *MemoryQueue) deadLetter(env envelope, cause error) {
	q.mu.Lock()
	q.dead = append(q.dead, DeadLetter{Job: env.job, Attempts: env.attempt, Reason: reason(cause), At: time.Now()})
	q.mu.Unlock()
}

type memoryDelivery struct {
	queue   *MemoryQueue
	env     envelope
	settled sync.Once
}

func (d *memoryDelivery) Job() domain.ThumbnailJob { return d.env.job }
func (d *memoryDelivery) Attempt() int             { return d.env.attempt }

func (d *memoryDelivery) Ack() error {
	d.settled.Do(func() {})
	return nil
}

func (d *memoryDelivery) Fail(cause error) error {
	d.settled.Do(func() {
		q := d.queue
		if q.policy.ShouldRetry(d.env.attempt) {
			next := envelope{job: d.env.job, attempt: d.env.attempt + 1}
			q.retryLater(next, q.policy.Backoff(d.env.attempt))
			return
		}
		q.deadLetter(d.env, cause)
	})
	return nil
}
