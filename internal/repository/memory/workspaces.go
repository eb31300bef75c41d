package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cloo-solutions/kbase/internal/domain"
)

// WorkspaceStore keeps workspace settings in memory.
type WorkspaceStore struct {
	mu         sync.RWMutex
	workspaces map[string]*domain.Workspace
}

func NewWorkspaceStore() *WorkspaceStore {
	return &WorkspaceStore{workspaces: make(map[string]*domain.Workspace)}
}

func (s *WorkspaceStore) Put(_ context.Context, w *domain.Workspace) error {
	if err := domain.ValidateWorkspace(w); err != nil {
		return domain.NewValidationError("invalid workspace", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	cp := cloneWorkspace(w)
	if cp.Tone == "" {
		cp.Tone = domain.ToneNeutral
	}
	cp.CreatedAt = now
	if existing, ok := s.workspaces[w.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	cp.UpdatedAt = now
	s.workspaces[w.ID] = cp
	return nil
}

func (s *WorkspaceStore) GetByID(_ context.Context, id string) (*domain.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workspaces[id]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	return cloneWorkspace(w), nil
}

func (s *WorkspaceStore) List(_ context.Context) ([]*domain.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Workspace, 0, len(s.workspaces))
	for _, w := range s.workspaces {
		out = append(out, cloneWorkspace(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneWorkspace(w *domain.Workspace) *domain.Workspace {
	out := *w
	out.Languages = append([]domain.Language(nil), w.Languages...)
	return &out
}
