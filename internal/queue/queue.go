// Package queue defines the durable job queue contract and an in-process
// implementation of it.
package queue

import (
	"context"
	"time"

	"github.com/cloo-solutions/kbase/internal/domain"
)

// Queue is a job store with identity deduplication, attempt counting and
// delayed redelivery.
type Queue interface {
	// Enqueue adds a job. A pending or active job with the same ID is left
	// untouched and inserted is false; a completed or failed one is reset
	// to pending with the new payload.
	Enqueue(ctx context.Context, job *domain.Job) (inserted bool, err error)

	// Claim marks up to limit due jobs of a queue active and increments
	// their attempts.
	Claim(ctx context.Context, queue string, limit int) ([]*domain.Job, error)

	Complete(ctx context.Context, id string) error

	// Retry returns an active job to pending, due after delay.
	Retry(ctx context.Context, id string, delay time.Duration, lastErr string) error

	Fail(ctx context.Context, id string, lastErr string) error

	// Restart returns an active job to pending, due now, with its attempts
	// reset as Enqueue does for a finished job.
	Restart(ctx context.Context, id string, lastErr string) error

	Get(ctx context.Context, id string) (*domain.Job, error)

	// RequeueStale returns active jobs not updated within olderThan to
	// pending, for workers that died mid-job.
	RequeueStale(ctx context.Context, queue string, olderThan time.Duration) (int, error)
}
