package domain

import (
	"fmt"
	"strings"
)

// EmbeddingError is the single failure shape produced by embedding provider
// adapters. Retry classification only looks at these fields.
type EmbeddingError struct {
	StatusCode    int    // HTTP-like status, 0 when unknown
	TransportCode string // e.g. ETIMEDOUT, ECONNRESET
	Message       string
	Err           error
}

// Error implements the error interface
func (e *EmbeddingError) Error() string {
	var b strings.Builder
	b.WriteString("embedding failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.TransportCode != "" {
		fmt.Fprintf(&b, " (%s)", e.TransportCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// EmbeddingUsage is token accounting reported by a provider
type EmbeddingUsage struct {
	PromptTokens int
	TotalTokens  int
}

// Apportion splits usage evenly across n items; the remainder goes to the
// first items so the parts sum to the whole.
func (u EmbeddingUsage) Apportion(n int) []EmbeddingUsage {
	if n <= 0 {
		return nil
	}
	out := make([]EmbeddingUsage, n)
	for i := range out {
		out[i].PromptTokens = u.PromptTokens / n
		out[i].TotalTokens = u.TotalTokens / n
		if i < u.PromptTokens%n {
			out[i].PromptTokens++
		}
		if i < u.TotalTokens%n {
			out[i].TotalTokens++
		}
	}
	return out
}
