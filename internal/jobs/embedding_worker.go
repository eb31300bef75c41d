package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/embedding"
	"github.com/cloo-solutions/kbase/internal/logging"
	"github.com/cloo-solutions/kbase/internal/telemetry"
)

// ChunkStateStore moves chunk records through the embedding state machine.
type ChunkStateStore interface {
	MarkProcessing(ctx context.Context, id string) (*domain.ChunkRecord, error)
	MarkVectorized(ctx context.Context, id string, vector []float32) error
	MarkRetrying(ctx context.Context, id string, errMsg string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// EmbeddingWorkerConfig tunes an EmbeddingWorker.
type EmbeddingWorkerConfig struct {
	// Timeout bounds a single provider call; 0 means none.
	Timeout time.Duration
	// Dimensions rejects vectors of another length; 0 accepts any.
	Dimensions int
	Backoff    Backoff
}

// EmbeddingWorker handles embedding jobs for single chunks.
type EmbeddingWorker struct {
	chunks   ChunkStateStore
	provider embedding.Provider
	cfg      EmbeddingWorkerConfig
	logger   *zap.Logger
}

// NewEmbeddingWorker creates a new EmbeddingWorker instance
func NewEmbeddingWorker(chunks ChunkStateStore, provider embedding.Provider, cfg EmbeddingWorkerConfig, logger *zap.Logger) *EmbeddingWorker {
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff
	}
	return &EmbeddingWorker{
		chunks:   chunks,
		provider: provider,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
	}
}

// Handle implements Handler.
func (w *EmbeddingWorker) Handle(ctx context.Context, job *domain.Job) error {
	var p domain.EmbeddingJobPayload
	if err := job.DecodePayload(&p); err != nil {
		return Unrecoverable(err)
	}
	if p.ChunkID == "" {
		return Unrecoverable(fmt.Errorf("job %s has no chunk id", job.ID))
	}

	ctx, span := telemetry.StartSpan(ctx, "jobs.EmbedChunk", telemetry.SpanAttributes{
		ChunkID:   p.ChunkID,
		JobID:     job.ID,
		Operation: "embed",
	})
	defer span.End()

	log := w.logger.With(zap.String("chunk_id", p.ChunkID), zap.String("job_id", job.ID), zap.Int("attempt", job.Attempts))

	chunk, err := w.chunks.MarkProcessing(ctx, p.ChunkID)
	if err != nil {
		if errors.Is(err, domain.ErrChunkNotFound) {
			return Unrecoverable(err)
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Already vectorized or failed, e.g. by a sync ingest.
			log.Debug("chunk already settled", zap.Error(err))
			return nil
		}
		// Repository failures go to the runner's own backoff.
		return fmt.Errorf("failed to mark chunk processing: %w", err)
	}

	vec, err := w.embed(ctx, chunk)
	if err == nil {
		if err := w.chunks.MarkVectorized(ctx, chunk.ID, vec); err != nil {
			return markError("vectorized", err)
		}
		log.Debug("chunk vectorized", zap.Int("dimensions", len(vec)))
		return nil
	}

	if IsTransient(err) {
		delay := w.cfg.Backoff.Delay(job.Attempts - 1)
		if merr := w.chunks.MarkRetrying(ctx, chunk.ID, err.Error()); merr != nil {
			return markError("retrying", merr)
		}
		log.Warn("transient embedding failure", zap.Duration("retry_in", delay), zap.Error(err))
		return RetryAfter(err, delay)
	}

	if merr := w.chunks.MarkFailed(ctx, chunk.ID, err.Error()); merr != nil {
		return markError("failed", merr)
	}
	log.Error("permanent embedding failure", zap.Error(err))
	span.SetError(err)
	return Unrecoverable(err)
}

// Exhausted implements ExhaustedHandler. A chunk re-queued by re-ingestion
// cannot be failed, so its job is restarted instead.
func (w *EmbeddingWorker) Exhausted(ctx context.Context, job *domain.Job, cause error) error {
	var p domain.EmbeddingJobPayload
	if err := job.DecodePayload(&p); err != nil || p.ChunkID == "" {
		return nil
	}
	msg := "max attempts exceeded: " + cause.Error()
	if err := w.chunks.MarkFailed(ctx, p.ChunkID, msg); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return Superseded(err)
		}
		w.logger.Error("failed to mark exhausted chunk failed", zap.String("chunk_id", p.ChunkID), zap.Error(err))
		return err
	}
	telemetry.CaptureError(ctx, fmt.Errorf("chunk %s: %s", p.ChunkID, msg), telemetry.SpanAttributes{
		ChunkID: p.ChunkID,
		JobID:   job.ID,
	})
	return nil
}

// markError wraps a failed status update. An invalid transition means the
// chunk was reset to queued while it was being embedded.
func markError(status string, err error) error {
	err = fmt.Errorf("failed to mark chunk %s: %w", status, err)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return Superseded(err)
	}
	return err
}

func (w *EmbeddingWorker) embed(ctx context.Context, chunk *domain.ChunkRecord) ([]float32, error) {
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	vec, err := w.provider.Embed(ctx, EmbeddingText(chunk))
	if err != nil {
		var ee *domain.EmbeddingError
		if !errors.As(err, &ee) {
			return nil, embedding.WrapError(err, 0)
		}
		if ee.TransportCode == "" && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			timedOut := *ee
			timedOut.TransportCode = embedding.CodeTimeout
			return nil, &timedOut
		}
		return nil, err
	}
	if err := embedding.CheckDimensions(vec, w.cfg.Dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbeddingText is the text embedded for a chunk: its title, when there is
// one, followed by the chunk text.
func EmbeddingText(c *domain.ChunkRecord) string {
	if c.Metadata.Title == "" {
		return c.Text
	}
	return c.Metadata.Title + "\n\n" + c.Text
}
