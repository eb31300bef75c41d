package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/kbase/internal/chunker"
	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/logging"
	"github.com/cloo-solutions/kbase/internal/queue"
	"github.com/cloo-solutions/kbase/internal/telemetry"
)

// ChunkWriter persists chunk records. UpsertBatch reports, per chunk,
// whether it changed and needs embedding.
type ChunkWriter interface {
	UpsertBatch(ctx context.Context, chunks []domain.ChunkRecord) ([]bool, error)
}

// PayloadReader loads document text that was offloaded from the job payload.
type PayloadReader interface {
	GetText(ctx context.Context, key string) (string, error)
}

// ChunkWorker handles chunking jobs: it splits a document, persists every
// chunk and enqueues one embedding job per changed chunk.
type ChunkWorker struct {
	chunker          *chunker.Chunker
	chunks           ChunkWriter
	queue            queue.Queue
	payloads         PayloadReader
	embedMaxAttempts int
	now              func() time.Time
	logger           *zap.Logger
}

// NewChunkWorker creates a ChunkWorker. payloads may be nil when no
// payload store is configured.
func NewChunkWorker(c *chunker.Chunker, chunks ChunkWriter, q queue.Queue, payloads PayloadReader, embedMaxAttempts int, logger *zap.Logger) *ChunkWorker {
	return &ChunkWorker{
		chunker:          c,
		chunks:           chunks,
		queue:            q,
		payloads:         payloads,
		embedMaxAttempts: embedMaxAttempts,
		now:              time.Now,
		logger:           logging.OrNop(logger),
	}
}

// Handle implements Handler.
func (w *ChunkWorker) Handle(ctx context.Context, job *domain.Job) error {
	var p domain.ChunkJobPayload
	if err := job.DecodePayload(&p); err != nil {
		return Unrecoverable(err)
	}

	ctx, span := telemetry.StartSpan(ctx, "jobs.ChunkDocument", telemetry.SpanAttributes{
		WorkspaceID: p.WorkspaceID,
		DocumentID:  p.DocumentID,
		JobID:       job.ID,
		Operation:   "chunk",
	})
	defer span.End()

	n, err := w.process(ctx, job.ID, p)
	if err != nil {
		span.SetError(err)
		return err
	}

	w.logger.Info("document chunked",
		zap.String("job_id", job.ID),
		zap.String("document_id", p.DocumentID),
		zap.String("workspace_id", p.WorkspaceID),
		zap.Int("embedding_jobs", n))
	return nil
}

func (w *ChunkWorker) process(ctx context.Context, jobID string, p domain.ChunkJobPayload) (int, error) {
	text := p.Text
	if p.ObjectKey != "" {
		if w.payloads == nil {
			return 0, Unrecoverable(fmt.Errorf("payload %s is offloaded but no payload store is configured", p.ObjectKey))
		}
		var err error
		text, err = w.payloads.GetText(ctx, p.ObjectKey)
		if err != nil {
			return 0, fmt.Errorf("failed to load document payload: %w", err)
		}
	}

	if p.JobID != "" {
		jobID = p.JobID
	}
	res, err := w.chunker.ChunkDocument(chunker.Input{
		DocumentID:  p.DocumentID,
		WorkspaceID: p.WorkspaceID,
		JobID:       jobID,
		Text:        text,
		Source:      p.Source,
	})
	if err != nil {
		var de *domain.DomainError
		if errors.As(err, &de) && de.Code == domain.ErrCodeValidation {
			return 0, Unrecoverable(err)
		}
		return 0, fmt.Errorf("failed to chunk document: %w", err)
	}
	if len(res.Chunks) == 0 {
		return 0, nil
	}

	// Chunks are durable before any embedding job references them.
	changed, err := w.chunks.UpsertBatch(ctx, res.Chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to persist chunks: %w", err)
	}

	enqueued := 0
	for i, c := range res.Chunks {
		if !changed[i] {
			continue
		}
		ej, err := domain.NewJob(domain.EmbeddingJobID(c.ID), domain.QueueEmbedding,
			domain.EmbeddingJobPayload{ChunkID: c.ID}, w.embedMaxAttempts, w.now())
		if err != nil {
			return enqueued, err
		}
		if _, err := w.queue.Enqueue(ctx, ej); err != nil {
			return enqueued, fmt.Errorf("failed to enqueue embedding job for chunk %s: %w", c.ID, err)
		}
		enqueued++
	}
	return enqueued, nil
}
