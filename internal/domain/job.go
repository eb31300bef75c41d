package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the status of a queued job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Queue names
const (
	QueueChunking  = "chunking"
	QueueEmbedding = "embedding"
)

// Job is a unit of work in the durable queue. ID is the job identity used
// for deduplication.
type Job struct {
	ID          string
	Queue       string
	Payload     json.RawMessage
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChunkJobPayload is the whole-document input of a chunking job.
// Exactly one of Text or ObjectKey is set.
type ChunkJobPayload struct {
	JobID       string         `json:"jobId"`
	DocumentID  string         `json:"documentId"`
	WorkspaceID string         `json:"workspaceId"`
	Text        string         `json:"text,omitempty"`
	ObjectKey   string         `json:"objectKey,omitempty"`
	Source      DocumentSource `json:"source"`
}

// EmbeddingJobPayload references the chunk an embedding job vectorizes
type EmbeddingJobPayload struct {
	ChunkID string `json:"chunkId"`
}

// EmbeddingJobID is the job identity for a chunk's embedding job.
func EmbeddingJobID(chunkID string) string {
	return "embed:" + chunkID
}

// NewJob builds a pending job with a JSON payload.
func NewJob(id, queue string, payload any, maxAttempts int, now time.Time) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job payload: %w", err)
	}
	return &Job{
		ID:          id,
		Queue:       queue,
		Payload:     raw,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// DecodePayload unmarshals the job payload into v.
func (j *Job) DecodePayload(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode payload of job %s: %w", j.ID, err)
	}
	return nil
}

// ValidateJob validates a Job instance
func ValidateJob(j *Job) error {
	if j == nil {
		return fmt.Errorf("job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if j.Queue == "" {
		return fmt.Errorf("job Queue is required")
	}

	if j.MaxAttempts <= 0 {
		return fmt.Errorf("job MaxAttempts must be greater than 0")
	}

	if j.Attempts < 0 {
		return fmt.Errorf("job Attempts cannot be negative")
	}

	return nil
}
