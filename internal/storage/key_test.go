package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadKey(t *testing.T) {
	assert.Equal(t, "documents/ws-1/doc-1/abc.txt", PayloadKey("ws-1", "doc-1", "abc"))
	assert.Equal(t, "documents/_/doc-1/abc.txt", PayloadKey("", "doc-1", "abc"))
}

func TestNewS3Client_RequiresBucket(t *testing.T) {
	_, err := NewS3Client(context.Background(), S3ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
}
