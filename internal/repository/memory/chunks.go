// Package memory provides in-process chunk and workspace stores with the
// same semantics as the Postgres repositories.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloo-solutions/kbase/internal/domain"
)

// ChunkStore keeps chunk records in memory. It is safe for concurrent use.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]*domain.ChunkRecord
	now    func() time.Time
}

func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks: make(map[string]*domain.ChunkRecord),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *ChunkStore) Upsert(_ context.Context, c *domain.ChunkRecord) (bool, error) {
	if err := domain.ValidateChunkRecord(c); err != nil {
		return false, domain.NewValidationError("invalid chunk record", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(c), nil
}

func (s *ChunkStore) upsertLocked(c *domain.ChunkRecord) bool {
	now := s.now()
	existing, ok := s.chunks[c.ID]
	if ok && existing.Metadata.Checksum == c.Metadata.Checksum && existing.Status == domain.ChunkStatusVectorized {
		return false
	}

	rec := cloneChunk(c)
	rec.Status = domain.ChunkStatusQueued
	rec.Attempts = 0
	rec.Vector = nil
	rec.Error = nil
	rec.CreatedAt = now
	if ok {
		rec.CreatedAt = existing.CreatedAt
	}
	rec.UpdatedAt = now
	s.chunks[c.ID] = rec
	return true
}

// UpsertBatch upserts all chunks or none.
func (s *ChunkStore) UpsertBatch(_ context.Context, chunks []domain.ChunkRecord) ([]bool, error) {
	for i := range chunks {
		if err := domain.ValidateChunkRecord(&chunks[i]); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", chunks[i].ChunkIndex,
				domain.NewValidationError("invalid chunk record", err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make([]bool, len(chunks))
	for i := range chunks {
		changed[i] = s.upsertLocked(&chunks[i])
	}
	return changed, nil
}

func (s *ChunkStore) GetByID(_ context.Context, id string) (*domain.ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chunks[id]
	if !ok {
		return nil, domain.ErrChunkNotFound
	}
	return cloneChunk(c), nil
}

func (s *ChunkStore) MarkProcessing(_ context.Context, id string) (*domain.ChunkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.transitionLocked(id, domain.ChunkStatusProcessing)
	if err != nil {
		return nil, err
	}
	c.Attempts++
	return cloneChunk(c), nil
}

func (s *ChunkStore) MarkVectorized(_ context.Context, id string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.transitionLocked(id, domain.ChunkStatusVectorized)
	if err != nil {
		return err
	}
	c.Vector = append([]float32(nil), vector...)
	c.Error = nil
	return nil
}

func (s *ChunkStore) MarkRetrying(_ context.Context, id string, errMsg string) error {
	return s.markError(id, domain.ChunkStatusRetrying, errMsg)
}

func (s *ChunkStore) MarkFailed(_ context.Context, id string, errMsg string) error {
	return s.markError(id, domain.ChunkStatusFailed, errMsg)
}

func (s *ChunkStore) markError(id string, to domain.ChunkStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.transitionLocked(id, to)
	if err != nil {
		return err
	}
	c.Error = &errMsg
	return nil
}

func (s *ChunkStore) transitionLocked(id string, to domain.ChunkStatus) (*domain.ChunkRecord, error) {
	c, ok := s.chunks[id]
	if !ok {
		return nil, domain.ErrChunkNotFound
	}
	if !domain.CanTransition(c.Status, to) {
		return nil, domain.NewDomainErrorWithCause(domain.ErrInvalidTransition.Code, domain.ErrInvalidTransition.Message,
			fmt.Errorf("chunk %s: %s -> %s", id, c.Status, to))
	}
	c.Status = to
	c.UpdatedAt = s.now()
	return c, nil
}

// ListVectorized returns the retrieval view of a workspace's vectorized
// chunks in one language, ordered by id.
func (s *ChunkStore) ListVectorized(_ context.Context, workspaceID string, lang domain.Language) ([]domain.KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.KnowledgeChunk
	for _, c := range s.chunks {
		if c.WorkspaceID != workspaceID || c.Metadata.Language != lang || c.Status != domain.ChunkStatusVectorized {
			continue
		}
		out = append(out, cloneChunk(c).ToKnowledgeChunk())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListByDocument returns a document's chunks after the given index, without
// vectors.
func (s *ChunkStore) ListByDocument(_ context.Context, documentID string, afterIndex, limit int) ([]*domain.ChunkRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ChunkRecord
	for _, c := range s.chunks {
		if c.DocumentID != documentID || c.ChunkIndex <= afterIndex {
			continue
		}
		rec := cloneChunk(c)
		rec.Vector = nil
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneChunk(c *domain.ChunkRecord) *domain.ChunkRecord {
	out := *c
	out.Keywords = append([]string(nil), c.Keywords...)
	if c.Vector != nil {
		out.Vector = append([]float32(nil), c.Vector...)
	}
	if c.Error != nil {
		msg := *c.Error
		out.Error = &msg
	}
	return &out
}
