//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	return testutil.NewMigratedPool(ctx, t, "../../migrations")
}

func testChunk(docID string, idx int, text string) domain.ChunkRecord {
	return domain.ChunkRecord{
		ID:          domain.NewChunkID(docID, idx),
		DocumentID:  docID,
		WorkspaceID: "ws-1",
		ChunkIndex:  idx,
		Text:        text,
		TokenCount:  3,
		TokenRange:  domain.TokenRange{Start: idx * 2, End: idx*2 + 3},
		Metadata: domain.ChunkMetadata{
			SourceType: domain.SourceTypeURL,
			URL:        "https://example.com/doc",
			Title:      "Doc",
			Language:   domain.LanguageEnglish,
			Checksum:   "sum-" + text,
			JobID:      "job-1",
		},
		Summary:  "summary",
		Keywords: []string{"alpha", "beta"},
		Status:   domain.ChunkStatusQueued,
	}
}

func TestChunkRepository_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupPool(ctx, t))

	c := testChunk("doc-1", 0, "hello world")
	changed, err := repo.Upsert(ctx, &c)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, "hello world", got.Text)
	assert.Equal(t, c.TokenRange, got.TokenRange)
	assert.Equal(t, c.Metadata, got.Metadata)
	assert.Equal(t, []string{"alpha", "beta"}, got.Keywords)
	assert.Equal(t, domain.ChunkStatusQueued, got.Status)
	assert.Nil(t, got.Vector)
	assert.Nil(t, got.Error)
}

func TestChunkRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupPool(ctx, t))

	_, err := repo.GetByID(ctx, domain.NewChunkID("nope", 0))
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestChunkRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupPool(ctx, t))

	c := testChunk("doc-2", 0, "lifecycle")
	_, err := repo.Upsert(ctx, &c)
	require.NoError(t, err)

	rec, err := repo.MarkProcessing(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkStatusProcessing, rec.Status)
	assert.Equal(t, 1, rec.Attempts)

	require.NoError(t, repo.MarkRetrying(ctx, c.ID, "rate limited"))
	rec, err = repo.MarkProcessing(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "rate limited", *rec.Error)

	require.NoError(t, repo.MarkVectorized(ctx, c.ID, []float32{0.1, 0.2, 0.3}))
	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkStatusVectorized, got.Status)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Vector)
	assert.Nil(t, got.Error)

	err = repo.MarkRetrying(ctx, c.ID, "late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = repo.MarkFailed(ctx, domain.NewChunkID("ghost", 0), "x")
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestChunkRepository_UpsertKeepsUnchangedVectorized(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupPool(ctx, t))

	c := testChunk("doc-3", 0, "stable")
	_, err := repo.Upsert(ctx, &c)
	require.NoError(t, err)
	_, err = repo.MarkProcessing(ctx, c.ID)
	require.NoError(t, err)
	require.NoError(t, repo.MarkVectorized(ctx, c.ID, []float32{1, 0}))

	changed, err := repo.Upsert(ctx, &c)
	require.NoError(t, err)
	assert.False(t, changed)

	edited := testChunk("doc-3", 0, "edited")
	changed, err = repo.Upsert(ctx, &edited)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkStatusQueued, got.Status)
	assert.Equal(t, "edited", got.Text)
	assert.Nil(t, got.Vector)
	assert.Zero(t, got.Attempts)
}

func TestChunkRepository_UpsertBatchAndListByDocument(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupPool(ctx, t))

	chunks := []domain.ChunkRecord{
		testChunk("doc-4", 0, "a"),
		testChunk("doc-4", 1, "b"),
		testChunk("doc-4", 2, "c"),
	}
	changed, err := repo.UpsertBatch(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, changed)

	page, err := repo.ListByDocument(ctx, "doc-4", -1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 0, page[0].ChunkIndex)
	assert.Equal(t, 1, page[1].ChunkIndex)

	page, err = repo.ListByDocument(ctx, "doc-4", 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 2, page[0].ChunkIndex)
}

func TestChunkRepository_UpsertBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupPool(ctx, t))

	bad := testChunk("doc-5", 1, "bad")
	bad.Status = "bogus"
	_, err := repo.UpsertBatch(ctx, []domain.ChunkRecord{testChunk("doc-5", 0, "ok"), bad})
	require.Error(t, err)

	_, err = repo.GetByID(ctx, domain.NewChunkID("doc-5", 0))
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestChunkRepository_ListVectorized(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupPool(ctx, t))

	en := testChunk("doc-6", 0, "english")
	es := testChunk("doc-6", 1, "spanish")
	es.Metadata.Language = domain.LanguageSpanish
	pending := testChunk("doc-6", 2, "pending")
	other := testChunk("doc-7", 0, "other workspace")
	other.WorkspaceID = "ws-2"

	for _, c := range []*domain.ChunkRecord{&en, &es, &pending, &other} {
		_, err := repo.Upsert(ctx, c)
		require.NoError(t, err)
	}
	for _, c := range []*domain.ChunkRecord{&en, &es, &other} {
		_, err := repo.MarkProcessing(ctx, c.ID)
		require.NoError(t, err)
		require.NoError(t, repo.MarkVectorized(ctx, c.ID, []float32{1, 2}))
	}

	got, err := repo.ListVectorized(ctx, "ws-1", domain.LanguageEnglish)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, en.ID, got[0].ID)
	assert.Equal(t, "english", got[0].Content)
	assert.Equal(t, []float32{1, 2}, got[0].Embedding)
	assert.Equal(t, "https://example.com/doc", got[0].Source.URL)
}
