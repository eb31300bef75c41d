package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/kbase/internal/chunker"
	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/embedding"
	"github.com/cloo-solutions/kbase/internal/jobs"
	"github.com/cloo-solutions/kbase/internal/logging"
	"github.com/cloo-solutions/kbase/internal/pagination"
	"github.com/cloo-solutions/kbase/internal/queue"
	"github.com/cloo-solutions/kbase/internal/storage"
	"github.com/cloo-solutions/kbase/internal/telemetry"
)

// ChunkStore is the chunk persistence used by ingestion.
type ChunkStore interface {
	UpsertBatch(ctx context.Context, chunks []domain.ChunkRecord) ([]bool, error)
	GetByID(ctx context.Context, id string) (*domain.ChunkRecord, error)
	ListByDocument(ctx context.Context, documentID string, afterIndex, limit int) ([]*domain.ChunkRecord, error)
	MarkProcessing(ctx context.Context, id string) (*domain.ChunkRecord, error)
	MarkVectorized(ctx context.Context, id string, vector []float32) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// PayloadStore holds document text too large to inline in a job payload.
type PayloadStore interface {
	PutText(ctx context.Context, key, text string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// IngestionConfig tunes an IngestionService.
type IngestionConfig struct {
	// InlineLimit is the largest text, in bytes, carried inside a job payload
	// when a PayloadStore is configured.
	InlineLimit      int
	ChunkMaxAttempts int
	EmbedMaxAttempts int
	Dimensions       int
}

// IngestionService is the entry point of the ingestion pipeline.
type IngestionService struct {
	chunker  *chunker.Chunker
	chunks   ChunkStore
	queue    queue.Queue
	payloads PayloadStore
	provider embedding.Provider
	cfg      IngestionConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewIngestionService creates an IngestionService. payloads and provider
// are optional; without a provider IngestSync is unavailable.
func NewIngestionService(
	c *chunker.Chunker,
	chunks ChunkStore,
	q queue.Queue,
	payloads PayloadStore,
	provider embedding.Provider,
	cfg IngestionConfig,
	logger *zap.Logger,
) *IngestionService {
	if cfg.ChunkMaxAttempts <= 0 {
		cfg.ChunkMaxAttempts = 3
	}
	if cfg.EmbedMaxAttempts <= 0 {
		cfg.EmbedMaxAttempts = 5
	}
	return &IngestionService{
		chunker:  c,
		chunks:   chunks,
		queue:    q,
		payloads: payloads,
		provider: provider,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// DocumentInput is a parsed document submitted for ingestion.
type DocumentInput struct {
	DocumentID  string
	WorkspaceID string
	Text        string
	Source      domain.DocumentSource
}

func validateDocument(in DocumentInput) error {
	if in.DocumentID == "" {
		return domain.NewValidationError(domain.ErrMissingRequiredField.Message, errors.New("document id is required"))
	}
	return domain.ValidateSource(in.Source)
}

// EnqueueDocumentJob queues a document for chunking and returns the job id.
// Resubmitting the same document text yields the same job id and does not
// queue a second job while the first is pending.
func (s *IngestionService) EnqueueDocumentJob(ctx context.Context, in DocumentInput) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.EnqueueDocumentJob", telemetry.SpanAttributes{
		WorkspaceID: in.WorkspaceID,
		DocumentID:  in.DocumentID,
		Operation:   "enqueue",
	})
	defer span.End()

	if err := validateDocument(in); err != nil {
		return "", err
	}

	checksum := chunker.Checksum(in.Text)
	jobID := domain.NewIngestJobID(in.DocumentID, checksum)
	payload := domain.ChunkJobPayload{
		JobID:       jobID,
		DocumentID:  in.DocumentID,
		WorkspaceID: in.WorkspaceID,
		Source:      in.Source,
	}

	if s.payloads != nil && s.cfg.InlineLimit > 0 && len(in.Text) > s.cfg.InlineLimit {
		key := storage.PayloadKey(in.WorkspaceID, in.DocumentID, checksum)
		if err := s.offload(ctx, key, in.Text); err != nil {
			span.SetError(err)
			return "", err
		}
		payload.ObjectKey = key
	} else {
		payload.Text = in.Text
	}

	job, err := domain.NewJob(jobID, domain.QueueChunking, payload, s.cfg.ChunkMaxAttempts, s.now())
	if err != nil {
		return "", err
	}
	inserted, err := s.queue.Enqueue(ctx, job)
	if err != nil {
		span.SetError(err)
		return "", fmt.Errorf("failed to enqueue chunking job: %w", err)
	}

	s.logger.Info("document queued",
		zap.String("job_id", jobID),
		zap.String("document_id", in.DocumentID),
		zap.String("workspace_id", in.WorkspaceID),
		zap.Bool("offloaded", payload.ObjectKey != ""),
		zap.Bool("duplicate", !inserted))
	return jobID, nil
}

func (s *IngestionService) offload(ctx context.Context, key, text string) error {
	// Keys are content addressed, so an existing object already holds this text.
	exists, err := s.payloads.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check document payload: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.payloads.PutText(ctx, key, text); err != nil {
		return fmt.Errorf("failed to store document payload: %w", err)
	}
	return nil
}

// ChunkStatus returns a chunk record without its vector.
func (s *IngestionService) ChunkStatus(ctx context.Context, chunkID string) (*domain.ChunkRecord, error) {
	c, err := s.chunks.GetByID(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	c.Vector = nil
	return c, nil
}

// ListDocumentChunks pages through a document's chunks in index order.
func (s *IngestionService) ListDocumentChunks(ctx context.Context, documentID, cursor string, limit int) (*pagination.PageResult[*domain.ChunkRecord], error) {
	if documentID == "" {
		return nil, domain.NewValidationError(domain.ErrMissingRequiredField.Message, errors.New("document id is required"))
	}
	limit = pagination.ClampLimit(limit)

	after := -1
	c, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.NewValidationError("invalid cursor", err)
	}
	if c != nil {
		if c.Scope != documentID {
			return nil, domain.NewValidationError("invalid cursor", pagination.ErrInvalidCursor)
		}
		after = c.Position
	}

	items, err := s.chunks.ListByDocument(ctx, documentID, after, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	for _, it := range items {
		it.Vector = nil
	}

	page := &pagination.PageResult[*domain.ChunkRecord]{Items: items, HasMore: hasMore}
	if hasMore {
		page.Cursor = pagination.CreateNextCursor(items, limit, documentID, func(c *domain.ChunkRecord) int {
			return c.ChunkIndex
		})
	}
	return page, nil
}

// SyncResult summarizes an IngestSync run.
type SyncResult struct {
	JobID      string
	Language   domain.Language
	Chunks     int
	Vectorized int
	Unchanged  int
	// Deferred chunks were handed to the embedding queue after the batch call failed.
	Deferred int
	Usage    domain.EmbeddingUsage
}

// IngestSync chunks, persists and embeds a document in one call, using a
// single batch request for all changed chunks.
func (s *IngestionService) IngestSync(ctx context.Context, in DocumentInput) (*SyncResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.IngestSync", telemetry.SpanAttributes{
		WorkspaceID: in.WorkspaceID,
		DocumentID:  in.DocumentID,
		Operation:   "ingest_sync",
	})
	defer span.End()

	if s.provider == nil {
		return nil, errors.New("no embedding provider configured")
	}
	if err := validateDocument(in); err != nil {
		return nil, err
	}

	jobID := domain.NewIngestJobID(in.DocumentID, chunker.Checksum(in.Text))
	res, err := s.chunker.ChunkDocument(chunker.Input{
		DocumentID:  in.DocumentID,
		WorkspaceID: in.WorkspaceID,
		JobID:       jobID,
		Text:        in.Text,
		Source:      in.Source,
	})
	if err != nil {
		return nil, err
	}

	out := &SyncResult{JobID: jobID, Language: res.Language, Chunks: len(res.Chunks)}
	if len(res.Chunks) == 0 {
		return out, nil
	}

	changed, err := s.chunks.UpsertBatch(ctx, res.Chunks)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to persist chunks: %w", err)
	}

	var pending []*domain.ChunkRecord
	for i := range res.Chunks {
		if changed[i] {
			pending = append(pending, &res.Chunks[i])
		}
	}
	out.Unchanged = len(res.Chunks) - len(pending)
	if len(pending) == 0 {
		return out, nil
	}

	texts := make([]string, len(pending))
	for i, c := range pending {
		texts[i] = jobs.EmbeddingText(c)
	}

	batch, err := s.provider.EmbedBatch(ctx, texts)
	if err == nil && len(batch.Vectors) != len(pending) {
		err = &domain.EmbeddingError{Message: fmt.Sprintf("expected %d embeddings, got %d", len(pending), len(batch.Vectors))}
	}
	if err != nil {
		s.logger.Warn("batch embedding failed, deferring chunks to the embedding queue",
			zap.String("document_id", in.DocumentID), zap.Int("chunks", len(pending)), zap.Error(err))
		if derr := s.deferEmbedding(ctx, pending); derr != nil {
			span.SetError(derr)
			return nil, fmt.Errorf("batch embedding failed (%v) and chunks could not be queued: %w", err, derr)
		}
		out.Deferred = len(pending)
		return out, nil
	}

	out.Usage = batch.Usage
	perChunk := batch.Usage.Apportion(len(pending))
	for i, c := range pending {
		vectorized, err := s.storeVector(ctx, c.ID, batch.Vectors[i])
		if err != nil {
			// The rest would stay queued with no job to move them.
			if derr := s.deferEmbedding(ctx, pending[i:]); derr != nil {
				s.logger.Error("failed to queue remaining chunks",
					zap.String("document_id", in.DocumentID), zap.Error(derr))
			}
			span.SetError(err)
			return nil, err
		}
		if !vectorized {
			continue
		}
		out.Vectorized++
		s.logger.Debug("chunk vectorized",
			zap.String("chunk_id", c.ID),
			zap.Int("prompt_tokens", perChunk[i].PromptTokens),
			zap.Int("total_tokens", perChunk[i].TotalTokens))
	}

	s.logger.Info("document ingested",
		zap.String("document_id", in.DocumentID),
		zap.Int("chunks", out.Chunks),
		zap.Int("vectorized", out.Vectorized),
		zap.Int("unchanged", out.Unchanged),
		zap.Int("total_tokens", out.Usage.TotalTokens))
	return out, nil
}

// storeVector moves one chunk through processing to vectorized, or to
// failed when the vector has the wrong length.
func (s *IngestionService) storeVector(ctx context.Context, chunkID string, vec []float32) (bool, error) {
	if _, err := s.chunks.MarkProcessing(ctx, chunkID); err != nil {
		return false, fmt.Errorf("failed to mark chunk %s processing: %w", chunkID, err)
	}
	if derr := embedding.CheckDimensions(vec, s.cfg.Dimensions); derr != nil {
		if err := s.chunks.MarkFailed(ctx, chunkID, derr.Error()); err != nil {
			return false, fmt.Errorf("failed to mark chunk %s failed: %w", chunkID, err)
		}
		return false, nil
	}
	if err := s.chunks.MarkVectorized(ctx, chunkID, vec); err != nil {
		return false, fmt.Errorf("failed to mark chunk %s vectorized: %w", chunkID, err)
	}
	return true, nil
}

func (s *IngestionService) deferEmbedding(ctx context.Context, chunks []*domain.ChunkRecord) error {
	for _, c := range chunks {
		job, err := domain.NewJob(domain.EmbeddingJobID(c.ID), domain.QueueEmbedding,
			domain.EmbeddingJobPayload{ChunkID: c.ID}, s.cfg.EmbedMaxAttempts, s.now())
		if err != nil {
			return err
		}
		if _, err := s.queue.Enqueue(ctx, job); err != nil {
			return err
		}
	}
	return nil
}
