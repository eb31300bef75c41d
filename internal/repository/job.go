package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/queue"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, queue, payload, status, attempts, max_attempts, run_at, last_error, created_at, updated_at`

var _ queue.Queue = (*JobRepository)(nil)

// JobRepository is the Postgres-backed job queue.
type JobRepository struct {
	db dbtx
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: pool}
}

func (r *JobRepository) Enqueue(ctx context.Context, job *domain.Job) (bool, error) {
	if err := domain.ValidateJob(job); err != nil {
		return false, err
	}

	now := time.Now().UTC()
	runAt := job.RunAt
	if runAt.IsZero() {
		runAt = now
	}
	payload := string(job.Payload)
	if payload == "" {
		payload = "{}"
	}

	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, NULL, $7, $7)
		 ON CONFLICT (id) DO UPDATE SET
			queue = EXCLUDED.queue,
			payload = EXCLUDED.payload,
			status = EXCLUDED.status,
			attempts = 0,
			max_attempts = EXCLUDED.max_attempts,
			run_at = EXCLUDED.run_at,
			last_error = NULL,
			updated_at = EXCLUDED.updated_at
		 WHERE jobs.status IN ('completed', 'failed')`,
		job.ID, job.Queue, payload, domain.JobStatusPending, job.MaxAttempts, runAt, now,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() > 0, nil
}

func (r *JobRepository) Claim(ctx context.Context, queueName string, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	now := time.Now().UTC()
	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM jobs
			 WHERE queue = $1 AND status = $2 AND run_at <= $3
			 ORDER BY run_at ASC, created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $4
		 )
		 UPDATE jobs
		 SET status = $5,
		     attempts = jobs.attempts + 1,
		     updated_at = $3
		 FROM cte
		 WHERE jobs.id = cte.id
		 RETURNING jobs.id, jobs.queue, jobs.payload, jobs.status, jobs.attempts, jobs.max_attempts,
		           jobs.run_at, jobs.last_error, jobs.created_at, jobs.updated_at`,
		queueName, domain.JobStatusPending, now, limit, domain.JobStatusActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) Complete(ctx context.Context, id string) error {
	return r.finish(ctx, id,
		`UPDATE jobs SET status = $2, last_error = NULL, updated_at = $3 WHERE id = $1 AND status = 'active'`,
		domain.JobStatusCompleted, time.Now().UTC())
}

func (r *JobRepository) Restart(ctx context.Context, id string, lastErr string) error {
	now := time.Now().UTC()
	return r.finish(ctx, id,
		`UPDATE jobs SET status = $2, attempts = 0, run_at = $3, last_error = $4, updated_at = $3 WHERE id = $1 AND status = 'active'`,
		domain.JobStatusPending, now, nullableString(lastErr))
}

func (r *JobRepository) Retry(ctx context.Context, id string, delay time.Duration, lastErr string) error {
	now := time.Now().UTC()
	return r.finish(ctx, id,
		`UPDATE jobs SET status = $2, run_at = $3, last_error = $4, updated_at = $5 WHERE id = $1 AND status = 'active'`,
		domain.JobStatusPending, now.Add(delay), nullableString(lastErr), now)
}

func (r *JobRepository) Fail(ctx context.Context, id string, lastErr string) error {
	return r.finish(ctx, id,
		`UPDATE jobs SET status = $2, last_error = $3, updated_at = $4 WHERE id = $1 AND status = 'active'`,
		domain.JobStatusFailed, nullableString(lastErr), time.Now().UTC())
}

func (r *JobRepository) finish(ctx context.Context, id, sql string, args ...any) error {
	cmdTag, err := r.db.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepository) RequeueStale(ctx context.Context, queueName string, olderThan time.Duration) (int, error) {
	now := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE jobs SET status = $2, run_at = $3, updated_at = $3
		 WHERE queue = $1 AND status = 'active' AND updated_at < $4`,
		queueName, domain.JobStatusPending, now, now.Add(-olderThan),
	)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job     domain.Job
		payload []byte
		lastErr *string
	)
	if err := row.Scan(&job.ID, &job.Queue, &payload, &job.Status, &job.Attempts, &job.MaxAttempts,
		&job.RunAt, &lastErr, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.Payload = payload
	job.LastError = stringValue(lastErr)
	return &job, nil
}
