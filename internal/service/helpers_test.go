package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/kbase/internal/chunker"
	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/embedding"
)

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

// MockPayloadStore is a mock implementation of PayloadStore
type MockPayloadStore struct {
	mock.Mock
}

func (m *MockPayloadStore) PutText(ctx context.Context, key, text string) error {
	return m.Called(ctx, key, text).Error(0)
}

func (m *MockPayloadStore) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func newTestChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(chunker.Config{MinTokens: 5, MaxTokens: 10, OverlapTokens: 2}, chunker.WordTokenizer{}, nil)
	require.NoError(t, err)
	return c
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func textDoc(id, text string) DocumentInput {
	return DocumentInput{
		DocumentID:  id,
		WorkspaceID: "ws-1",
		Text:        text,
		Source:      domain.DocumentSource{Type: domain.SourceTypeText, Title: "Notes"},
	}
}
