package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const chunkColumns = `id, document_id, workspace_id, chunk_index, text, token_count, token_start, token_end,
	source_type, url, filename, title, language, checksum, job_id, summary, keywords,
	status, attempts, embedding, error, created_at, updated_at`

// ChunkRepository persists chunk records and owns their status transitions.
type ChunkRepository struct {
	db dbtx
	tx *TxRunner
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool, tx: NewTxRunner(pool)}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// Upsert inserts a chunk or resets an existing one to queued. A chunk that
// is already vectorized with the same checksum is left as is and changed is
// false.
func (r *ChunkRepository) Upsert(ctx context.Context, c *domain.ChunkRecord) (bool, error) {
	if err := domain.ValidateChunkRecord(c); err != nil {
		return false, domain.NewValidationError("invalid chunk record", err)
	}

	now := time.Now().UTC()
	var id string
	err := r.db.QueryRow(ctx,
		`INSERT INTO chunk_records
			(id, document_id, workspace_id, chunk_index, text, token_count, token_start, token_end,
			 source_type, url, filename, title, language, checksum, job_id, summary, keywords,
			 status, attempts, embedding, error, created_at, updated_at)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 0, NULL, NULL, $19, $19)
		 ON CONFLICT (id) DO UPDATE SET
			workspace_id = EXCLUDED.workspace_id,
			text = EXCLUDED.text,
			token_count = EXCLUDED.token_count,
			token_start = EXCLUDED.token_start,
			token_end = EXCLUDED.token_end,
			source_type = EXCLUDED.source_type,
			url = EXCLUDED.url,
			filename = EXCLUDED.filename,
			title = EXCLUDED.title,
			language = EXCLUDED.language,
			checksum = EXCLUDED.checksum,
			job_id = EXCLUDED.job_id,
			summary = EXCLUDED.summary,
			keywords = EXCLUDED.keywords,
			status = EXCLUDED.status,
			attempts = 0,
			embedding = NULL,
			error = NULL,
			updated_at = EXCLUDED.updated_at
		 WHERE NOT (chunk_records.checksum = EXCLUDED.checksum AND chunk_records.status = 'vectorized')
		 RETURNING id`,
		c.ID, c.DocumentID, c.WorkspaceID, c.ChunkIndex, c.Text, c.TokenCount, c.TokenRange.Start, c.TokenRange.End,
		c.Metadata.SourceType, nullableString(c.Metadata.URL), nullableString(c.Metadata.Filename),
		nullableString(c.Metadata.Title), c.Metadata.Language, c.Metadata.Checksum, c.Metadata.JobID,
		c.Summary, keywordsOrEmpty(c.Keywords), domain.ChunkStatusQueued, now,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpsertBatch upserts a document's chunks in one transaction.
func (r *ChunkRepository) UpsertBatch(ctx context.Context, chunks []domain.ChunkRecord) ([]bool, error) {
	changed := make([]bool, len(chunks))
	upsertAll := func(repo *ChunkRepository) error {
		for i := range chunks {
			ok, err := repo.Upsert(ctx, &chunks[i])
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunks[i].ChunkIndex, err)
			}
			changed[i] = ok
		}
		return nil
	}

	if r.tx == nil {
		// Already inside a transaction.
		return changed, upsertAll(r)
	}
	err := r.tx.WithTx(ctx, func(repos *TxRepositories) error {
		return upsertAll(repos.Chunks())
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.ChunkRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrChunkNotFound
	}
	c, err := scanChunk(r.db.QueryRow(ctx,
		`SELECT `+chunkColumns+` FROM chunk_records WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return c, nil
}

// MarkProcessing moves a chunk to processing, counts the attempt and
// returns the updated record.
func (r *ChunkRepository) MarkProcessing(ctx context.Context, id string) (*domain.ChunkRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrChunkNotFound
	}
	c, err := scanChunk(r.db.QueryRow(ctx,
		`UPDATE chunk_records
		 SET status = $2, attempts = attempts + 1, updated_at = $3
		 WHERE id = $1 AND status = ANY($4)
		 RETURNING `+chunkColumns,
		id, domain.ChunkStatusProcessing, time.Now().UTC(), previousStatuses(domain.ChunkStatusProcessing),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.transitionError(ctx, id, domain.ChunkStatusProcessing)
		}
		return nil, err
	}
	return c, nil
}

// MarkVectorized stores the vector and clears the last error.
func (r *ChunkRepository) MarkVectorized(ctx context.Context, id string, vector []float32) error {
	return r.transition(ctx, id, domain.ChunkStatusVectorized,
		`embedding = $5, error = NULL`, pgvector.NewVector(vector))
}

func (r *ChunkRepository) MarkRetrying(ctx context.Context, id string, errMsg string) error {
	return r.transition(ctx, id, domain.ChunkStatusRetrying, `error = $5`, errMsg)
}

func (r *ChunkRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.transition(ctx, id, domain.ChunkStatusFailed, `error = $5`, errMsg)
}

func (r *ChunkRepository) transition(ctx context.Context, id string, to domain.ChunkStatus, set string, arg any) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrChunkNotFound
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE chunk_records
		 SET status = $2, updated_at = $3, `+set+`
		 WHERE id = $1 AND status = ANY($4)`,
		id, to, time.Now().UTC(), previousStatuses(to), arg,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.transitionError(ctx, id, to)
	}
	return nil
}

func (r *ChunkRepository) transitionError(ctx context.Context, id string, to domain.ChunkStatus) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrChunkNotFound
	}
	var from domain.ChunkStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM chunk_records WHERE id = $1`, id).Scan(&from)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrChunkNotFound
		}
		return err
	}
	return domain.NewDomainErrorWithCause(domain.ErrInvalidTransition.Code, domain.ErrInvalidTransition.Message,
		fmt.Errorf("chunk %s: %s -> %s", id, from, to))
}

// ListVectorized returns the retrieval view of a workspace's vectorized
// chunks in one language, ordered by id.
func (r *ChunkRepository) ListVectorized(ctx context.Context, workspaceID string, lang domain.Language) ([]domain.KnowledgeChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+`
		 FROM chunk_records
		 WHERE workspace_id = $1 AND language = $2 AND status = $3
		 ORDER BY id`,
		workspaceID, lang, domain.ChunkStatusVectorized,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.KnowledgeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c.ToKnowledgeChunk())
	}
	return out, rows.Err()
}

// ListByDocument returns a document's chunks after the given index, without
// vectors. Pass afterIndex -1 for the first page.
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string, afterIndex, limit int) ([]*domain.ChunkRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+`
		 FROM chunk_records
		 WHERE document_id = $1 AND chunk_index > $2
		 ORDER BY chunk_index ASC
		 LIMIT $3`,
		documentID, afterIndex, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ChunkRecord
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		c.Vector = nil
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanChunk(row pgx.Row) (*domain.ChunkRecord, error) {
	var (
		c                         domain.ChunkRecord
		url, filename, title, msg *string
		vec                       *pgvector.Vector
	)
	err := row.Scan(
		&c.ID, &c.DocumentID, &c.WorkspaceID, &c.ChunkIndex, &c.Text, &c.TokenCount,
		&c.TokenRange.Start, &c.TokenRange.End,
		&c.Metadata.SourceType, &url, &filename, &title, &c.Metadata.Language, &c.Metadata.Checksum,
		&c.Metadata.JobID, &c.Summary, &c.Keywords,
		&c.Status, &c.Attempts, &vec, &msg, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Metadata.URL = stringValue(url)
	c.Metadata.Filename = stringValue(filename)
	c.Metadata.Title = stringValue(title)
	c.Error = msg
	if vec != nil {
		c.Vector = vec.Slice()
	}
	return &c, nil
}

func previousStatuses(to domain.ChunkStatus) []string {
	prev := domain.AllowedPrevious(to)
	out := make([]string, len(prev))
	for i, s := range prev {
		out[i] = string(s)
	}
	return out
}

func keywordsOrEmpty(k []string) []string {
	if k == nil {
		return []string{}
	}
	return k
}
