// Package queue carries thumbnail jobs from the upload path to the workers.
//
// Delivery is at least once: a job that fails, or whose consumer dies before
// acknowledging it, is delivered again. Consumers must be idempotent.
package queue

import (
	"context"
	"errors"
	"time"

	"files_manager/server/fileman/domain"
)

var ErrClosed = errors.New("queue: closed")

type Queue interface {
	// Enqueue validates job and admits it for later delivery.
	Enqueue(ctx context.Context, job domain.ThumbnailJob) error
	// Consume blocks until a job is available, ctx is done or the queue closes.
	Consume(ctx context.Context) (Delivery, error)
	Close() error
}

type Delivery interface {
	Job() domain.ThumbnailJob
	// Attempt is 1 on first delivery.
	Attempt() int
	Ack() error
	// Fail hands the job back to the retry policy: it is redelivered after a
	// backoff or moved to the dead-letter destination.
	Fail(cause error) error
}

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: time.Minute}
}

// ShouldRetry reports whether a job that failed on attempt may run again.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return attempt < maxAttempts
}

// Backoff is the delay before the attempt that follows attempt:
// BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

type DeadLetter struct {
	Job      domain.ThumbnailJob
	Attempts int
	Reason   string
	At       time.Time
}

func reason(cause error) string {
	if cause == nil {
		return "unknown"
	}
	return cause.Error()
}
