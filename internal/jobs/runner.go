package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/logging"
	"github.com/cloo-solutions/kbase/internal/queue"
)

// Handler processes one claimed job. Returning nil completes it; see
// RetryAfter and Unrecoverable for the other outcomes.
type Handler interface {
	Handle(ctx context.Context, job *domain.Job) error
}

// ExhaustedHandler is implemented by handlers that need to react when a
// job runs out of attempts. Returning a Superseded error restarts the job
// instead of failing it.
type ExhaustedHandler interface {
	Exhausted(ctx context.Context, job *domain.Job, err error) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *domain.Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, job *domain.Job) error {
	return f(ctx, job)
}

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	Queue       string
	Batch       int
	Concurrency int
	Backoff     Backoff
	// StaleAfter requeues active jobs untouched for this long; 0 disables.
	StaleAfter time.Duration
}

// Runner claims jobs from one queue and runs them with bounded concurrency.
// It implements JobProcessor so a Worker can drive it.
type Runner struct {
	queue   queue.Queue
	handler Handler
	cfg     RunnerConfig
	logger  *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(q queue.Queue, h Handler, cfg RunnerConfig, logger *zap.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Batch <= 0 {
		cfg.Batch = cfg.Concurrency
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff
	}
	return &Runner{
		queue:   q,
		handler: h,
		cfg:     cfg,
		logger:  logging.OrNop(logger).With(zap.String("queue", cfg.Queue)),
	}
}

// ProcessJobs implements JobProcessor.
func (r *Runner) ProcessJobs(ctx context.Context) error {
	_, err := r.ProcessBatch(ctx)
	return err
}

// ProcessBatch claims one batch and runs it to completion. It returns the
// number of jobs claimed.
func (r *Runner) ProcessBatch(ctx context.Context) (int, error) {
	if r.cfg.StaleAfter > 0 {
		n, err := r.queue.RequeueStale(ctx, r.cfg.Queue, r.cfg.StaleAfter)
		if err != nil {
			return 0, fmt.Errorf("failed to requeue stale jobs: %w", err)
		}
		if n > 0 {
			r.logger.Warn("requeued stale jobs", zap.Int("count", n))
		}
	}

	claimed, err := r.queue.Claim(ctx, r.cfg.Queue, r.cfg.Batch)
	if err != nil {
		return 0, fmt.Errorf("failed to claim jobs: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	r.logger.Debug("processing jobs", zap.Int("count", len(claimed)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, job := range claimed {
		g.Go(func() error {
			r.run(gctx, job)
			return nil
		})
	}
	return len(claimed), g.Wait()
}

// Drain processes batches until the queue has nothing due.
func (r *Runner) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.ProcessBatch(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func (r *Runner) run(ctx context.Context, job *domain.Job) {
	log := r.logger.With(zap.String("job_id", job.ID), zap.Int("attempt", job.Attempts))

	herr := r.handler.Handle(ctx, job)
	if err := r.settle(ctx, job, herr, log); err != nil {
		// The job stays active; RequeueStale picks it up.
		log.Error("failed to settle job", zap.Error(err))
	}
}

func (r *Runner) settle(ctx context.Context, job *domain.Job, herr error, log *zap.Logger) error {
	if herr == nil {
		log.Debug("job completed")
		return r.queue.Complete(ctx, job.ID)
	}

	if IsUnrecoverable(herr) {
		log.Warn("job failed permanently", zap.Error(herr))
		return r.queue.Fail(ctx, job.ID, herr.Error())
	}

	if IsSuperseded(herr) {
		log.Info("job target was reset, restarting", zap.Error(herr))
		return r.queue.Restart(ctx, job.ID, herr.Error())
	}

	if job.Attempts >= job.MaxAttempts {
		log.Warn("job exhausted its attempts", zap.Int("max_attempts", job.MaxAttempts), zap.Error(herr))
		if eh, ok := r.handler.(ExhaustedHandler); ok {
			if err := eh.Exhausted(ctx, job, herr); IsSuperseded(err) {
				log.Info("exhausted job target was reset, restarting", zap.Error(err))
				return r.queue.Restart(ctx, job.ID, herr.Error())
			}
		}
		return r.queue.Fail(ctx, job.ID, herr.Error())
	}

	delay, ok := RetryDelay(herr)
	if !ok {
		delay = r.cfg.Backoff.Delay(job.Attempts - 1)
	}
	log.Info("job will be retried", zap.Duration("delay", delay), zap.Error(herr))
	return r.queue.Retry(ctx, job.ID, delay, herr.Error())
}
