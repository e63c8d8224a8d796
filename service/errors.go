package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNonRetryable marks failures that a redelivery cannot fix.
	ErrNonRetryable = errors.New("non-retryable error")
	// ErrGenerationInvalid never leaves the script generator; it triggers the fallback.
	ErrGenerationInvalid = errors.New("generated script is invalid")
	ErrAccessDenied      = errors.New("access denied")
	ErrInvalidInput      = errors.New("invalid input")
)

// ExtractionError aborts a pipeline run: the source could not be parsed
// or produced no usable slides.
type ExtractionError struct {
	Format string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// SynthesisError is recoverable per slide.
type SynthesisError struct {
	Slide int
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize slide %d: %v", e.Slide, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
