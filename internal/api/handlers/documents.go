package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/kbase/internal/api"
	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/pagination"
	"github.com/cloo-solutions/kbase/internal/service"
	"github.com/go-chi/chi/v5"
)

type IngestionService interface {
	EnqueueDocumentJob(ctx context.Context, in service.DocumentInput) (string, error)
	IngestSync(ctx context.Context, in service.DocumentInput) (*service.SyncResult, error)
	ChunkStatus(ctx context.Context, chunkID string) (*domain.ChunkRecord, error)
	ListDocumentChunks(ctx context.Context, documentID, cursor string, limit int) (*pagination.PageResult[*domain.ChunkRecord], error)
}

type DocumentHandler struct {
	svc IngestionService
}

func NewDocumentHandler(svc IngestionService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type SourceRequest struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	Title    string `json:"title,omitempty"`
}

type IngestDocumentRequest struct {
	DocumentID  string        `json:"document_id"`
	WorkspaceID string        `json:"workspace_id"`
	Text        string        `json:"text"`
	Source      SourceRequest `json:"source"`
	// Sync embeds the document before responding instead of queueing it.
	Sync bool `json:"sync,omitempty"`
}

type EnqueueResponse struct {
	JobID string `json:"job_id"`
}

type UsageResponse struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type SyncIngestResponse struct {
	JobID      string        `json:"job_id"`
	Language   string        `json:"language"`
	Chunks     int           `json:"chunks"`
	Vectorized int           `json:"vectorized"`
	Unchanged  int           `json:"unchanged"`
	Deferred   int           `json:"deferred"`
	Usage      UsageResponse `json:"usage"`
}

func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestDocumentRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	if req.DocumentID == "" {
		api.Error(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if req.Source.Type == "" {
		req.Source.Type = string(domain.SourceTypeText)
	}

	input := service.DocumentInput{
		DocumentID:  req.DocumentID,
		WorkspaceID: req.WorkspaceID,
		Text:        req.Text,
		Source: domain.DocumentSource{
			Type:     domain.SourceType(req.Source.Type),
			URL:      req.Source.URL,
			Filename: req.Source.Filename,
			Title:    req.Source.Title,
		},
	}

	if req.Sync {
		res, err := h.svc.IngestSync(r.Context(), input)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		api.Success(w, http.StatusOK, SyncIngestResponse{
			JobID:      res.JobID,
			Language:   string(res.Language),
			Chunks:     res.Chunks,
			Vectorized: res.Vectorized,
			Unchanged:  res.Unchanged,
			Deferred:   res.Deferred,
			Usage: UsageResponse{
				PromptTokens: res.Usage.PromptTokens,
				TotalTokens:  res.Usage.TotalTokens,
			},
		})
		return
	}

	jobID, err := h.svc.EnqueueDocumentJob(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, EnqueueResponse{JobID: jobID})
}

type ChunkResponse struct {
	ID          string   `json:"id"`
	DocumentID  string   `json:"document_id"`
	WorkspaceID string   `json:"workspace_id"`
	ChunkIndex  int      `json:"chunk_index"`
	Status      string   `json:"status"`
	Attempts    int      `json:"attempts"`
	TokenCount  int      `json:"token_count"`
	TokenStart  int      `json:"token_start"`
	TokenEnd    int      `json:"token_end"`
	Language    string   `json:"language"`
	Checksum    string   `json:"checksum"`
	JobID       string   `json:"job_id,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Error       *string  `json:"error,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func chunkToResponse(c *domain.ChunkRecord) *ChunkResponse {
	return &ChunkResponse{
		ID:          c.ID,
		DocumentID:  c.DocumentID,
		WorkspaceID: c.WorkspaceID,
		ChunkIndex:  c.ChunkIndex,
		Status:      string(c.Status),
		Attempts:    c.Attempts,
		TokenCount:  c.TokenCount,
		TokenStart:  c.TokenRange.Start,
		TokenEnd:    c.TokenRange.End,
		Language:    string(c.Metadata.Language),
		Checksum:    c.Metadata.Checksum,
		JobID:       c.Metadata.JobID,
		Summary:     c.Summary,
		Keywords:    c.Keywords,
		Error:       c.Error,
		CreatedAt:   c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   c.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *DocumentHandler) GetChunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	chunk, err := h.svc.ChunkStatus(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, chunkToResponse(chunk))
}

type ChunkListResponse struct {
	Items   []*ChunkResponse `json:"items"`
	Cursor  string           `json:"cursor,omitempty"`
	HasMore bool             `json:"has_more"`
}

func (h *DocumentHandler) ListChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	page, err := h.svc.ListDocumentChunks(r.Context(), id, cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*ChunkResponse, len(page.Items))
	for i, c := range page.Items {
		items[i] = chunkToResponse(c)
	}

	api.Success(w, http.StatusOK, ChunkListResponse{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}
