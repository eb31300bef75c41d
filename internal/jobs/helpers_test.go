package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/embedding"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockProvider is a mock implementation of embedding.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) (*embedding.BatchResult, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*embedding.BatchResult), args.Error(1)
}

func (m *MockProvider) Model() string {
	return "mock"
}

// MockChunkStateStore is a mock implementation of ChunkStateStore
type MockChunkStateStore struct {
	mock.Mock
}

func (m *MockChunkStateStore) MarkProcessing(ctx context.Context, id string) (*domain.ChunkRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChunkRecord), args.Error(1)
}

func (m *MockChunkStateStore) MarkVectorized(ctx context.Context, id string, vector []float32) error {
	return m.Called(ctx, id, vector).Error(0)
}

func (m *MockChunkStateStore) MarkRetrying(ctx context.Context, id string, errMsg string) error {
	return m.Called(ctx, id, errMsg).Error(0)
}

func (m *MockChunkStateStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return m.Called(ctx, id, errMsg).Error(0)
}

func testRecord(docID string, idx int, text string) domain.ChunkRecord {
	return domain.ChunkRecord{
		ID:          domain.NewChunkID(docID, idx),
		DocumentID:  docID,
		WorkspaceID: "ws-1",
		ChunkIndex:  idx,
		Text:        text,
		TokenCount:  len(text),
		TokenRange:  domain.TokenRange{Start: 0, End: len(text)},
		Metadata: domain.ChunkMetadata{
			SourceType: domain.SourceTypeText,
			Title:      "Guide",
			Language:   domain.LanguageEnglish,
			Checksum:   "sum-" + text,
		},
		Status: domain.ChunkStatusQueued,
	}
}

func embedJob(chunkID string, attempts, maxAttempts int) *domain.Job {
	job, err := domain.NewJob(domain.EmbeddingJobID(chunkID), domain.QueueEmbedding,
		domain.EmbeddingJobPayload{ChunkID: chunkID}, maxAttempts, time.Now())
	if err != nil {
		panic(err)
	}
	job.Status = domain.JobStatusActive
	job.Attempts = attempts
	return job
}
