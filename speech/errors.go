package speech

import "errors"

// Common speech errors.
var (
	// ErrEmptyText is returned when attempting to speak empty text.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrRateLimited is returned when the synthesis API rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrSynthesisFailed is returned when synthesis fails.
	ErrSynthesisFailed = errors.New("speech synthesis failed")
)

// SynthesisError provides detailed error information from a synthesis provider.
type SynthesisError struct {
	// Provider is the synthesis provider that returned the error.
	Provider string

	// Code is the provider-specific error code.
	Code string

	// Message is the error message.
	Message string

	// Cause is the underlying error (if any).
	Cause error

	// Retryable indicates if the error is transient and retry may succeed.
	Retryable bool
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap returns the underlying error.
func (e *SynthesisError) Unwrap() error {
	return e.Cause
}

// Is matches ErrSynthesisFailed.
func (e *SynthesisError) Is(target error) bool {
	return target == ErrSynthesisFailed
}

// NewSynthesisError creates a new SynthesisError.
func NewSynthesisError(provider, code, message string, cause error, retryable bool) *SynthesisError {
	return &SynthesisError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable,
	}
}
