package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob_RoundTripsPayload(t *testing.T) {
	now := time.Now().UTC()
	job, err := NewJob(EmbeddingJobID("c1"), QueueEmbedding, EmbeddingJobPayload{ChunkID: "c1"}, 5, now)
	require.NoError(t, err)

	assert.Equal(t, "embed:c1", job.ID)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, now, job.RunAt)
	assert.Equal(t, 0, job.Attempts)

	var payload EmbeddingJobPayload
	require.NoError(t, job.DecodePayload(&payload))
	assert.Equal(t, "c1", payload.ChunkID)
}

func TestJob_DecodePayload_Invalid(t *testing.T) {
	job := &Job{ID: "j", Payload: []byte("{")}
	var payload ChunkJobPayload
	err := job.DecodePayload(&payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job j")
}

func TestValidateJob(t *testing.T) {
	tests := []struct {
		name    string
		job     *Job
		wantErr bool
	}{
		{"valid", &Job{ID: "j", Queue: QueueChunking, MaxAttempts: 3}, false},
		{"nil", nil, true},
		{"missing id", &Job{Queue: QueueChunking, MaxAttempts: 3}, true},
		{"missing queue", &Job{ID: "j", MaxAttempts: 3}, true},
		{"zero attempts budget", &Job{ID: "j", Queue: QueueChunking}, true},
		{"negative attempts", &Job{ID: "j", Queue: QueueChunking, MaxAttempts: 3, Attempts: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJob(tt.job)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
