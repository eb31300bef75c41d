package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopes(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, http.StatusAccepted, map[string]string{"job_id": "chunk:doc-1"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"job_id":"chunk:doc-1"}}`, w.Body.String())

	w = httptest.NewRecorder()
	Error(w, http.StatusBadRequest, "document_id is required")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"document_id is required"}`, w.Body.String())

	w = httptest.NewRecorder()
	JSON(w, http.StatusNoContent, nil)
	assert.Empty(t, w.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		limit      int64
		wantOK     bool
		wantStatus int
	}{
		{name: "valid", body: `{"query":"reset password"}`, wantOK: true},
		{name: "malformed", body: `{"query":`, wantStatus: http.StatusBadRequest},
		{name: "over limit", body: `{"query":"` + strings.Repeat("a", 64) + `"}`, limit: 16, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.limit > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, tt.limit)
			}

			var v struct {
				Query string `json:"query"`
			}
			ok := DecodeJSON(w, r, &v)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, "reset password", v.Query)
				return
			}
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestDomainErrorToHTTP(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, http.StatusOK},
		{"validation error", domain.NewDomainError(domain.ErrCodeValidation, "invalid"), http.StatusBadRequest},
		{"not found error", domain.ErrChunkNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", domain.ErrWorkspaceNotFound), http.StatusNotFound},
		{"already exists error", domain.NewDomainError(domain.ErrCodeAlreadyExists, "exists"), http.StatusConflict},
		{"invalid operation", domain.ErrInvalidTransition, http.StatusConflict},
		{"embedding error", fmt.Errorf("embed: %w", &domain.EmbeddingError{StatusCode: 429}), http.StatusBadGateway},
		{"internal error", domain.NewDomainError(domain.ErrCodeInternalError, "internal"), http.StatusInternalServerError},
		{"unknown domain error", domain.NewDomainError("UNKNOWN", "unknown"), http.StatusInternalServerError},
		{"non-domain error", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DomainErrorToHTTP(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestHandleError(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, domain.ErrChunkNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var result ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Contains(t, result.Error, "not found")
	assert.Equal(t, domain.ErrCodeNotFound, result.Code)
}

func TestHandleError_HidesInternalErrors(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, fmt.Errorf("pool exhausted: dial tcp 10.0.0.5:5432"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var result ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "Internal Server Error", result.Error)
}

func TestHandleError_EmbeddingCode(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, fmt.Errorf("embed query: %w", &domain.EmbeddingError{StatusCode: 503, Message: "overloaded"}))

	assert.Equal(t, http.StatusBadGateway, w.Code)

	var result ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, domain.ErrCodeEmbedding, result.Code)
	assert.Contains(t, result.Error, "overloaded")
}
