package domain

import (
	"fmt"
	"time"
)

// Tone is the workspace's preferred answer register
type Tone string

const (
	ToneNeutral      Tone = "neutral"
	ToneFriendly     Tone = "friendly"
	ToneFormal       Tone = "formal"
	ToneConcise      Tone = "concise"
	ToneProfessional Tone = "professional"
)

// Workspace is the tenant boundary for documents, chunks and retrieval
type Workspace struct {
	ID        string
	Name      string
	Languages []Language
	Tone      Tone
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Supports reports whether the workspace lists the language.
func (w *Workspace) Supports(l Language) bool {
	for _, wl := range w.Languages {
		if wl == l {
			return true
		}
	}
	return false
}

// DefaultLanguage returns the workspace's first language, or the global default.
func (w *Workspace) DefaultLanguage() Language {
	if len(w.Languages) > 0 {
		return w.Languages[0]
	}
	return DefaultLanguage
}

// ChunkSource is the url|filename variant attached to a retrievable chunk
type ChunkSource struct {
	Type     SourceType `json:"type"`
	URL      string     `json:"url,omitempty"`
	Filename string     `json:"filename,omitempty"`
	Title    string     `json:"title,omitempty"`
}

// KnowledgeChunk is the retrieval-side view of a vectorized chunk
type KnowledgeChunk struct {
	ID          string
	WorkspaceID string
	DocumentID  string
	ChunkIndex  int
	Language    Language
	Content     string
	Summary     string
	Keywords    []string
	Embedding   []float32
	Source      ChunkSource
	CreatedAt   time.Time
}

// ScoredChunk is a KnowledgeChunk with its similarity to a query
type ScoredChunk struct {
	KnowledgeChunk
	Score float64
}

// Citation is a caller-facing reference to a retrieved chunk
type Citation struct {
	ID       string `json:"id"`
	ChunkID  string `json:"chunkId"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// ToKnowledgeChunk projects a vectorized record into the retrieval view.
func (c *ChunkRecord) ToKnowledgeChunk() KnowledgeChunk {
	return KnowledgeChunk{
		ID:          c.ID,
		WorkspaceID: c.WorkspaceID,
		DocumentID:  c.DocumentID,
		ChunkIndex:  c.ChunkIndex,
		Language:    c.Metadata.Language,
		Content:     c.Text,
		Summary:     c.Summary,
		Keywords:    c.Keywords,
		Embedding:   c.Vector,
		Source: ChunkSource{
			Type:     c.Metadata.SourceType,
			URL:      c.Metadata.URL,
			Filename: c.Metadata.Filename,
			Title:    c.Metadata.Title,
		},
		CreatedAt: c.CreatedAt,
	}
}

// ValidateWorkspace validates a Workspace instance
func ValidateWorkspace(w *Workspace) error {
	if w == nil {
		return fmt.Errorf("workspace cannot be nil")
	}

	if w.ID == "" {
		return fmt.Errorf("workspace ID is required")
	}

	for _, l := range w.Languages {
		if _, ok := ParseLanguage(string(l)); !ok {
			return fmt.Errorf("workspace Language is invalid: %s", l)
		}
	}

	return nil
}
