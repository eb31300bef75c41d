package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError with the same code and message, so wrapped
// sentinels still satisfy errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeEmbedding        = "EMBEDDING_ERROR"
)

// Validation errors
var (
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrInvalidSource        = NewDomainError(ErrCodeValidation, "invalid source metadata")
	ErrInvalidChunkStatus   = NewDomainError(ErrCodeValidation, "invalid chunk status")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrChunkNotFound     = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrWorkspaceNotFound = NewDomainError(ErrCodeNotFound, "workspace not found")
	ErrJobNotFound       = NewDomainError(ErrCodeNotFound, "job not found")
)

// Operation errors
var (
	ErrInvalidTransition = NewDomainError(ErrCodeInvalidOperation, "invalid chunk status transition")
)

// NewValidationError wraps a validation failure with context.
func NewValidationError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeValidation, message, err)
}
