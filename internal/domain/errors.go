package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotCancellable is returned when cancelling a job that already
	// left the PENDING state.
	ErrJobNotCancellable = errors.New("job can only be cancelled while pending")

	// ErrUnknownProcessor is returned when no handler is registered for a
	// job's type.
	ErrUnknownProcessor = errors.New("no processor registered for job type")

	// ErrInvalidPayload is returned when a payload does not match its job type.
	ErrInvalidPayload = errors.New("payload does not match job type")

	// ErrEmptyDomainList is returned when a qualification run has no domains.
	ErrEmptyDomainList = errors.New("domain list cannot be empty")

	// ErrEngineStopped is returned when enqueueing into a stopped engine.
	ErrEngineStopped = errors.New("engine is not running")
)

// ErrorCategory classifies a pipeline failure.
type ErrorCategory string

const (
	CategoryNetwork        ErrorCategory = "NETWORK_ERROR"
	CategoryTimeout        ErrorCategory = "TIMEOUT"
	CategoryHTTP           ErrorCategory = "HTTP_ERROR"
	CategoryInvalidContent ErrorCategory = "INVALID_CONTENT"
	CategoryRateLimited    ErrorCategory = "RATE_LIMITED"
	CategoryCircuitOpen    ErrorCategory = "CIRCUIT_BREAKER"
	CategoryInference      ErrorCategory = "INFERENCE_ERROR"
)

// PipelineError is a categorized failure from the enrichment or scoring
// stage. Retriable controls whether the engine spends retry budget on it.
type PipelineError struct {
	Category   ErrorCategory
	StatusCode int
	Retriable  bool
	Err        error
}

func (e *PipelineError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// CategoryOf extracts the category from an error chain. The boolean is false
// for uncategorized errors.
func CategoryOf(err error) (ErrorCategory, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category, true
	}
	return "", false
}

// IsRetriable reports whether the engine should retry after this error.
// Uncategorized errors default to retriable.
func IsRetriable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retriable
	}
	if errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrUnknownProcessor) {
		return false
	}
	return true
}
