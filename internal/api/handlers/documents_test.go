package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/pagination"
	"github.com/cloo-solutions/kbase/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) EnqueueDocumentJob(ctx context.Context, in service.DocumentInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *MockIngestionService) IngestSync(ctx context.Context, in service.DocumentInput) (*service.SyncResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SyncResult), args.Error(1)
}

func (m *MockIngestionService) ChunkStatus(ctx context.Context, chunkID string) (*domain.ChunkRecord, error) {
	args := m.Called(ctx, chunkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChunkRecord), args.Error(1)
}

func (m *MockIngestionService) ListDocumentChunks(ctx context.Context, documentID, cursor string, limit int) (*pagination.PageResult[*domain.ChunkRecord], error) {
	args := m.Called(ctx, documentID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.ChunkRecord]), args.Error(1)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}

func newTestChunk() *domain.ChunkRecord {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := "embedding failed (status 503)"
	return &domain.ChunkRecord{
		ID:          "chunk-1",
		DocumentID:  "doc-1",
		WorkspaceID: "ws-1",
		ChunkIndex:  2,
		TokenCount:  640,
		TokenRange:  domain.TokenRange{Start: 1700, End: 2340},
		Metadata:    domain.ChunkMetadata{Language: domain.LanguageEnglish, Checksum: "abc", JobID: "job-1"},
		Status:      domain.ChunkStatusRetrying,
		Attempts:    2,
		Error:       &msg,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestDocumentHandler_Ingest_Enqueues(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("EnqueueDocumentJob", mock.Anything, mock.MatchedBy(func(in service.DocumentInput) bool {
		return in.DocumentID == "doc-1" && in.WorkspaceID == "ws-1" &&
			in.Source.Type == domain.SourceTypeURL && in.Source.URL == "https://example.com/guide"
	})).Return("job-123", nil)

	body := `{"document_id":"doc-1","workspace_id":"ws-1","text":"hello","source":{"type":"url","url":"https://example.com/guide"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.Ingest(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "job-123", decodeData(t, w)["job_id"])
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Ingest_DefaultsToTextSource(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("EnqueueDocumentJob", mock.Anything, mock.MatchedBy(func(in service.DocumentInput) bool {
		return in.Source.Type == domain.SourceTypeText
	})).Return("job-1", nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader([]byte(`{"document_id":"doc-1","text":"hi"}`)))
	w := httptest.NewRecorder()

	handler.Ingest(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Ingest_Sync(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("IngestSync", mock.Anything, mock.Anything).Return(&service.SyncResult{
		JobID:      "job-1",
		Language:   domain.LanguageSpanish,
		Chunks:     3,
		Vectorized: 3,
		Usage:      domain.EmbeddingUsage{PromptTokens: 30, TotalTokens: 30},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader([]byte(`{"document_id":"doc-1","text":"hola","sync":true}`)))
	w := httptest.NewRecorder()

	handler.Ingest(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "es", data["language"])
	assert.EqualValues(t, 3, data["vectorized"])
	mockSvc.AssertNotCalled(t, "EnqueueDocumentJob", mock.Anything, mock.Anything)
}

func TestDocumentHandler_Ingest_BadRequests(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewDocumentHandler(mockSvc)

	w := httptest.NewRecorder()
	handler.Ingest(w, httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader([]byte(`{`))))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	handler.Ingest(w, httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader([]byte(`{"text":"x"}`))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "document_id is required")
}

func TestDocumentHandler_Ingest_InvalidSource(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("EnqueueDocumentJob", mock.Anything, mock.Anything).
		Return("", domain.NewValidationError(domain.ErrInvalidSource.Message, nil))

	body := `{"document_id":"doc-1","text":"x","source":{"type":"file"}}`
	w := httptest.NewRecorder()
	handler.Ingest(w, httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader([]byte(body))))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_GetChunk(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewDocumentHandler(mockSvc)
	mockSvc.On("ChunkStatus", mock.Anything, "chunk-1").Return(newTestChunk(), nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/v1/chunks/chunk-1", nil), "id", "chunk-1")
	w := httptest.NewRecorder()

	handler.GetChunk(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "retrying", data["status"])
	assert.EqualValues(t, 2, data["attempts"])
	assert.EqualValues(t, 1700, data["token_start"])
	assert.Equal(t, "embedding failed (status 503)", data["error"])
	assert.NotContains(t, data, "vector")
}

func TestDocumentHandler_GetChunk_NotFound(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewDocumentHandler(mockSvc)
	mockSvc.On("ChunkStatus", mock.Anything, "missing").Return(nil, domain.ErrChunkNotFound)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/v1/chunks/missing", nil), "id", "missing")
	w := httptest.NewRecorder()

	handler.GetChunk(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_ListChunks(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewDocumentHandler(mockSvc)
	mockSvc.On("ListDocumentChunks", mock.Anything, "doc-1", "abc", 10).Return(&pagination.PageResult[*domain.ChunkRecord]{
		Items:   []*domain.ChunkRecord{newTestChunk()},
		Cursor:  "next",
		HasMore: true,
	}, nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/chunks?cursor=abc&limit=10", nil), "id", "doc-1")
	w := httptest.NewRecorder()

	handler.ListChunks(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "next", data["cursor"])
	assert.Equal(t, true, data["has_more"])
	assert.Len(t, data["items"], 1)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_ListChunks_InvalidLimit(t *testing.T) {
	mockSvc := new(MockIngestionService)
	handler := NewDocumentHandler(mockSvc)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/chunks?limit=abc", nil), "id", "doc-1")
	w := httptest.NewRecorder()

	handler.ListChunks(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "ListDocumentChunks", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
