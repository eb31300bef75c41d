// Package embedding defines the embedding provider contract shared by the
// provider adapters, the ingestion workers and retrieval.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/cloo-solutions/kbase/internal/domain"
)

// Provider turns text into vectors. Every failure is a *domain.EmbeddingError.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error)
	// Model identifies the embedding space.
	Model() string
}

// BatchResult carries batch vectors and the provider's usage report.
type BatchResult struct {
	Vectors [][]float32
	Usage   domain.EmbeddingUsage
}

// Transport error codes understood by the retry classifier.
const (
	CodeTimeout      = "ETIMEDOUT"
	CodeConnReset    = "ECONNRESET"
	CodeConnRefused  = "ECONNREFUSED"
	CodeBrokenPipe   = "EPIPE"
	CodeDNSTemporary = "EAI_AGAIN"
)

// TransportCode maps network and context failures to a transport code, or
// "" when err is not a transport failure.
func TransportCode(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, syscall.ECONNRESET):
		return CodeConnReset
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnRefused
	case errors.Is(err, syscall.EPIPE):
		return CodeBrokenPipe
	case errors.Is(err, syscall.ETIMEDOUT):
		return CodeTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && (dnsErr.IsTemporary || dnsErr.IsTimeout) {
		return CodeDNSTemporary
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	return ""
}

// WrapError adapts an arbitrary failure into a *domain.EmbeddingError. An
// existing EmbeddingError is returned unchanged.
func WrapError(err error, statusCode int) error {
	if err == nil {
		return nil
	}
	var ee *domain.EmbeddingError
	if errors.As(err, &ee) {
		return ee
	}
	return &domain.EmbeddingError{
		StatusCode:    statusCode,
		TransportCode: TransportCode(err),
		Message:       err.Error(),
		Err:           err,
	}
}

// ErrEmptyText is the permanent failure for blank input.
var ErrEmptyText = &domain.EmbeddingError{StatusCode: 400, Message: "text cannot be empty"}

// CheckDimensions rejects vectors of unexpected length. want <= 0 accepts any.
func CheckDimensions(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return &domain.EmbeddingError{
			Message: fmt.Sprintf("embedding has wrong dimensions: got %d, expected %d", len(vec), want),
		}
	}
	return nil
}
