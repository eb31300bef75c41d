package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ChunkStatus represents the processing status of a chunk record
type ChunkStatus string

const (
	ChunkStatusQueued     ChunkStatus = "queued"
	ChunkStatusProcessing ChunkStatus = "processing"
	ChunkStatusRetrying   ChunkStatus = "retrying"
	ChunkStatusVectorized ChunkStatus = "vectorized"
	ChunkStatusFailed     ChunkStatus = "failed"
)

// chunkTransitions lists, for every target status, the statuses it may be
// entered from. Any status may be reset to queued by re-ingestion.
var chunkTransitions = map[ChunkStatus][]ChunkStatus{
	ChunkStatusQueued: {
		ChunkStatusQueued, ChunkStatusProcessing, ChunkStatusRetrying,
		ChunkStatusVectorized, ChunkStatusFailed,
	},
	// processing -> processing covers redelivery after a worker crash.
	ChunkStatusProcessing: {ChunkStatusQueued, ChunkStatusRetrying, ChunkStatusProcessing},
	ChunkStatusRetrying:   {ChunkStatusProcessing},
	ChunkStatusVectorized: {ChunkStatusProcessing},
	ChunkStatusFailed:     {ChunkStatusProcessing, ChunkStatusRetrying},
}

// AllowedPrevious returns the statuses from which target can be entered.
func AllowedPrevious(target ChunkStatus) []ChunkStatus {
	prev := chunkTransitions[target]
	out := make([]ChunkStatus, len(prev))
	copy(out, prev)
	return out
}

// CanTransition reports whether a chunk may move from one status to another.
func CanTransition(from, to ChunkStatus) bool {
	for _, s := range chunkTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves the status.
func (s ChunkStatus) IsTerminal() bool {
	return s == ChunkStatusVectorized || s == ChunkStatusFailed
}

// SourceType identifies where a document came from
type SourceType string

const (
	SourceTypeURL  SourceType = "url"
	SourceTypeFile SourceType = "file"
	SourceTypeText SourceType = "text"
)

// DocumentSource is the upstream parser's metadata for a document
type DocumentSource struct {
	Type     SourceType `json:"sourceType"`
	URL      string     `json:"url,omitempty"`
	Filename string     `json:"filename,omitempty"`
	Title    string     `json:"title,omitempty"`
}

// ValidateSource checks the url/filename variant matches the source type
func ValidateSource(s DocumentSource) error {
	switch s.Type {
	case SourceTypeURL:
		if s.URL == "" {
			return NewValidationError(ErrInvalidSource.Message, fmt.Errorf("url source requires url"))
		}
	case SourceTypeFile:
		if s.Filename == "" {
			return NewValidationError(ErrInvalidSource.Message, fmt.Errorf("file source requires filename"))
		}
	case SourceTypeText:
	default:
		return NewValidationError(ErrInvalidSource.Message, fmt.Errorf("unknown source type %q", s.Type))
	}
	return nil
}

// TokenRange is a half-open [Start, End) range in token space
type TokenRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ChunkMetadata carries source and content metadata for a chunk
type ChunkMetadata struct {
	SourceType SourceType `json:"sourceType"`
	URL        string     `json:"url,omitempty"`
	Filename   string     `json:"filename,omitempty"`
	Title      string     `json:"title,omitempty"`
	Language   Language   `json:"language"`
	Checksum   string     `json:"checksum"`
	JobID      string     `json:"jobId"`
}

// ChunkRecord is the unit of persistence and retrieval
type ChunkRecord struct {
	ID          string
	DocumentID  string
	WorkspaceID string
	ChunkIndex  int
	Text        string
	TokenCount  int
	TokenRange  TokenRange
	Metadata    ChunkMetadata
	Summary     string
	Keywords    []string
	Status      ChunkStatus
	Attempts    int
	Vector      []float32
	Error       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var chunkNamespace = uuid.MustParse("6f1c7d0e-3b8a-4d55-9a0e-2f4b8c1d9e77")

// NewChunkID derives a stable chunk identifier from the document and index.
func NewChunkID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+":"+strconv.Itoa(chunkIndex))).String()
}

// NewIngestJobID derives the ingestion job identifier from the document and
// its content checksum, so identical resubmissions collapse onto one job.
func NewIngestJobID(documentID, checksum string) string {
	return uuid.NewSHA1(chunkNamespace, []byte("ingest:"+documentID+":"+checksum)).String()
}

// ValidateChunkRecord validates a ChunkRecord instance
func ValidateChunkRecord(c *ChunkRecord) error {
	if c == nil {
		return fmt.Errorf("chunk record cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("chunk record ID is required")
	}

	if c.DocumentID == "" {
		return fmt.Errorf("chunk record DocumentID is required")
	}

	if c.ChunkIndex < 0 {
		return fmt.Errorf("chunk record ChunkIndex cannot be negative")
	}

	if c.TokenRange.End < c.TokenRange.Start {
		return fmt.Errorf("chunk record TokenRange is inverted")
	}

	if !isValidChunkStatus(c.Status) {
		return fmt.Errorf("chunk record Status is invalid: %s", c.Status)
	}

	if c.Status == ChunkStatusVectorized && len(c.Vector) == 0 {
		return fmt.Errorf("chunk record Vector is required when vectorized")
	}

	return nil
}

// ParseChunkStatus converts a string into a ChunkStatus
func ParseChunkStatus(s string) (ChunkStatus, error) {
	status := ChunkStatus(s)
	if !isValidChunkStatus(status) {
		return "", ErrInvalidChunkStatus
	}
	return status, nil
}

func isValidChunkStatus(s ChunkStatus) bool {
	switch s {
	case ChunkStatusQueued, ChunkStatusProcessing, ChunkStatusRetrying,
		ChunkStatusVectorized, ChunkStatusFailed:
		return true
	}
	return false
}
