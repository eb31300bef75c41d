package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/kbase/internal/api"
	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/go-chi/chi/v5"
)

type WorkspaceRepository interface {
	Put(ctx context.Context, w *domain.Workspace) error
	GetByID(ctx context.Context, id string) (*domain.Workspace, error)
	List(ctx context.Context) ([]*domain.Workspace, error)
}

type WorkspaceHandler struct {
	repo WorkspaceRepository
}

func NewWorkspaceHandler(repo WorkspaceRepository) *WorkspaceHandler {
	return &WorkspaceHandler{repo: repo}
}

type PutWorkspaceRequest struct {
	Name      string   `json:"name"`
	Languages []string `json:"languages"`
	Tone      string   `json:"tone"`
}

type WorkspaceResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Languages []string `json:"languages"`
	Tone      string   `json:"tone"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func workspaceToResponse(ws *domain.Workspace) *WorkspaceResponse {
	langs := make([]string, len(ws.Languages))
	for i, l := range ws.Languages {
		langs[i] = string(l)
	}
	return &WorkspaceResponse{
		ID:        ws.ID,
		Name:      ws.Name,
		Languages: langs,
		Tone:      string(ws.Tone),
		CreatedAt: ws.CreatedAt.Format(time.RFC3339),
		UpdatedAt: ws.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *WorkspaceHandler) Put(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req PutWorkspaceRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	ws := &domain.Workspace{ID: id, Name: req.Name, Tone: domain.Tone(req.Tone)}
	for _, raw := range req.Languages {
		lang, ok := domain.ParseLanguage(raw)
		if !ok {
			api.Error(w, http.StatusBadRequest, "unsupported language: "+raw)
			return
		}
		ws.Languages = append(ws.Languages, lang)
	}

	if err := h.repo.Put(r.Context(), ws); err != nil {
		api.HandleError(w, err)
		return
	}

	saved, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, workspaceToResponse(saved))
}

func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	ws, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, workspaceToResponse(ws))
}

func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaces, err := h.repo.List(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*WorkspaceResponse, len(workspaces))
	for i, ws := range workspaces {
		responses[i] = workspaceToResponse(ws)
	}

	api.Success(w, http.StatusOK, responses)
}
