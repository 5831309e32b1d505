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
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeUnavailable   = "UPSTREAM_UNAVAILABLE"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Request-invalid errors: surfaced to the client immediately, never retried.
var (
	ErrEmptyQuery        = NewDomainError(ErrCodeValidation, "query required")
	ErrEmptyConversation = NewDomainError(ErrCodeValidation, "messages required")
	ErrInvalidRole       = NewDomainError(ErrCodeValidation, "invalid message role")
)

// Degradable errors: the retrieval pipeline logs these and continues with
// zero results; they never fail a chat request.
var (
	ErrEmbeddingUnavailable = NewDomainError(ErrCodeUnavailable, "embedding service unavailable")
	ErrStoreUnavailable     = NewDomainError(ErrCodeUnavailable, "knowledge store unavailable")
)

// Upstream-fatal errors: the request fails as a whole.
var (
	ErrMissingCredentials = NewDomainError(ErrCodeInternalError, "AI credentials not configured")
	ErrCompletionFailed   = NewDomainError(ErrCodeUnavailable, "completion service returned an error")
)

// Not found errors
var (
	ErrChunkNotFound = NewDomainError(ErrCodeNotFound, "knowledge chunk not found")
)

// Authorization errors
var (
	ErrInvalidAdminToken = NewDomainError(ErrCodeUnauthorized, "invalid admin token")
)
