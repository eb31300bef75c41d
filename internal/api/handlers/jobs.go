package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/kbase/internal/api"
	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/go-chi/chi/v5"
)

type JobReader interface {
	Get(ctx context.Context, id string) (*domain.Job, error)
}

type JobHandler struct {
	jobs JobReader
}

func NewJobHandler(jobs JobReader) *JobHandler {
	return &JobHandler{jobs: jobs}
}

type JobResponse struct {
	ID          string `json:"id"`
	Queue       string `json:"queue"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	RunAt       string `json:"run_at"`
	LastError   string `json:"last_error,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, JobResponse{
		ID:          job.ID,
		Queue:       job.Queue,
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		RunAt:       job.RunAt.Format(time.RFC3339),
		LastError:   job.LastError,
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
	})
}
