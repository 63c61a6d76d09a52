package interpret

import (
	"errors"
	"fmt"
)

// Common interpretation errors.
var (
	// ErrEmptyAudio is returned when the clip carries no audio.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrEmptyTranscript is returned when the service heard no words.
	ErrEmptyTranscript = errors.New("empty transcript")

	// ErrRateLimited is returned when the service rate limits requests.
	ErrRateLimited = errors.New("rate limited by service")
)

// InterpretError represents a failed interpretation request.
type InterpretError struct {
	// Code is the HTTP status or transport error code.
	Code string

	// Message is a human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether the request can be retried.
	Retryable bool
}

// NewInterpretError creates a new InterpretError.
func NewInterpretError(code, message string, cause error, retryable bool) *InterpretError {
	return &InterpretError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable,
	}
}

// Error implements the error interface.
func (e *InterpretError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("interpretation error [%s]: %s", e.Code, e.Message)
	}
	return "interpretation error: " + e.Message
}

// Unwrap returns the underlying error.
func (e *InterpretError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is.
func (e *InterpretError) Is(target error) bool {
	if e.Cause != nil && errors.Is(e.Cause, target) {
		return true
	}
	t, ok := target.(*InterpretError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsRetryable reports whether err is a retryable interpretation failure.
func IsRetryable(err error) bool {
	var ie *InterpretError
	return errors.As(err, &ie) && ie.Retryable
}
