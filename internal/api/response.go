package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/kbase/internal/domain"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// DecodeJSON reads the request body into v. On failure it writes 413 for
// bodies over the MaxBodyBytes limit and 400 otherwise, and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	Error(w, http.StatusBadRequest, "invalid request body")
	return false
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP maps domain errors to HTTP status codes. Embedding
// provider failures surface as 502 so callers can tell them from our own.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var embedErr *domain.EmbeddingError
	if errors.As(err, &embedErr) {
		return http.StatusBadGateway
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}

	switch domainErr.Code {
	case domain.ErrCodeValidation:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeAlreadyExists:
		return http.StatusConflict
	case domain.ErrCodeInvalidOperation:
		return http.StatusConflict
	case domain.ErrCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes an appropriate error response based on the error type.
// Internal errors are not echoed to the client.
func HandleError(w http.ResponseWriter, err error) {
	status := DomainErrorToHTTP(err)
	resp := ErrorResponse{Error: err.Error()}
	var domainErr *domain.DomainError
	var embedErr *domain.EmbeddingError
	switch {
	case errors.As(err, &embedErr):
		resp.Code = domain.ErrCodeEmbedding
	case errors.As(err, &domainErr):
		resp.Code = domainErr.Code
	}
	if status == http.StatusInternalServerError {
		resp.Error = http.StatusText(status)
	}
	JSON(w, status, resp)
}
