package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/kbase/internal/api"
	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/prompt"
	"github.com/cloo-solutions/kbase/internal/service"
	"github.com/go-chi/chi/v5"
)

type RetrievalService interface {
	Retrieve(ctx context.Context, in service.RetrieveInput) (*service.RetrieveOutput, error)
}

type RetrievalHandler struct {
	svc RetrievalService
}

func NewRetrievalHandler(svc RetrievalService) *RetrievalHandler {
	return &RetrievalHandler{svc: svc}
}

type RetrieveRequest struct {
	Query       string   `json:"query"`
	Language    string   `json:"language,omitempty"`
	MaxContexts int      `json:"max_contexts,omitempty"`
	Lambda      *float64 `json:"lambda,omitempty"`
}

type ContextResponse struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	ChunkIndex int      `json:"chunk_index"`
	Score      float64  `json:"score"`
	Content    string   `json:"content"`
	Summary    string   `json:"summary,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Title      string   `json:"title,omitempty"`
	URL        string   `json:"url,omitempty"`
	Filename   string   `json:"filename,omitempty"`
}

type RetrieveResponse struct {
	Contexts []ContextResponse        `json:"contexts"`
	Metadata service.RetrieveMetadata `json:"metadata"`
	Prompt   prompt.Payload           `json:"prompt"`
}

func contextToResponse(c domain.ScoredChunk) ContextResponse {
	return ContextResponse{
		ChunkID:    c.ID,
		DocumentID: c.DocumentID,
		ChunkIndex: c.ChunkIndex,
		Score:      c.Score,
		Content:    c.Content,
		Summary:    c.Summary,
		Keywords:   c.Keywords,
		Title:      c.Source.Title,
		URL:        c.Source.URL,
		Filename:   c.Source.Filename,
	}
}

func (h *RetrievalHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "id")
	if workspaceID == "" {
		api.Error(w, http.StatusBadRequest, "workspace id is required")
		return
	}

	var req RetrieveRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	out, err := h.svc.Retrieve(r.Context(), service.RetrieveInput{
		WorkspaceID: workspaceID,
		Query:       req.Query,
		Language:    req.Language,
		MaxContexts: req.MaxContexts,
		Lambda:      req.Lambda,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	contexts := make([]ContextResponse, len(out.Contexts))
	for i, c := range out.Contexts {
		contexts[i] = contextToResponse(c)
	}

	api.Success(w, http.StatusOK, RetrieveResponse{
		Contexts: contexts,
		Metadata: out.Metadata,
		Prompt:   out.Prompt,
	})
}
