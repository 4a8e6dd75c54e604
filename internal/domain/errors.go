package domain

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput        = "INVALID_INPUT"
	ErrExternalAPI         = "EXTERNAL_API_ERROR"
	ErrContextualRelevance = "CONTEXTUAL_RELEVANCE_ERROR"
	ErrRateLimit           = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer      = "INTERNAL_SERVER_ERROR"
	ErrValidation          = "VALIDATION_ERROR"
)

// Sentinel errors of the decision pipeline.
var (
	// ErrEmptyQuestion rejects blank input before any downstream call.
	ErrEmptyQuestion = errors.New("question must not be empty")
	// ErrClassificationFailed is logged when the classifier degrades to the unknown sentinel.
	ErrClassificationFailed = errors.New("question classification failed")
	// ErrInvalidClassification rejects a caller-supplied classification.
	ErrInvalidClassification = errors.New("invalid classification")
	// ErrContextualAnalysis is fatal to experience selection; callers fall back to STANDARD.
	ErrContextualAnalysis = errors.New("contextual relevance analysis failed")
	// ErrDimensionMismatch is a programming error: vectors of different length were compared.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrServiceUnavailable is returned when an external service is not configured.
	ErrServiceUnavailable = errors.New("external service unavailable")
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}
