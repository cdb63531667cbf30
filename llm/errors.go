package llm

import (
	"errors"
	"fmt"
)

// classifiedError tags an underlying failure as retryable or not, so
// the retry loop keys on the tag instead of re-inspecting causes.
type classifiedError struct {
	retryable bool
	err       error
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

// NewTransientError marks err as worth retrying.
func NewTransientError(err error) error {
	return &classifiedError{retryable: true, err: err}
}

// NewFatalError marks err as permanent. Retrying stops immediately.
func NewFatalError(err error) error {
	return &classifiedError{err: err}
}

// IsTransient reports whether err carries the retryable tag.
func IsTransient(err error) bool {
	var ce *classifiedError
	return errors.As(err, &ce) && ce.retryable
}

// IsFatal reports whether err was marked permanent.
func IsFatal(err error) bool {
	var ce *classifiedError
	return errors.As(err, &ce) && !ce.retryable
}

// CompletionError is the terminal error returned once retries are
// exhausted or a fatal failure cuts them short. It wraps the last
// underlying cause.
type CompletionError struct {
	// Purpose is the request purpose that failed.
	Purpose string
	// Model is the model the endpoint was configured with.
	Model string
	// Attempts is how many attempts were made.
	Attempts int

	err error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed for %s (model %s, %d attempts): %v", e.Purpose, e.Model, e.Attempts, e.err)
}

func (e *CompletionError) Unwrap() error {
	return e.err
}

// IsCompletionError reports whether err is (or wraps) a CompletionError.
func IsCompletionError(err error) bool {
	var ce *CompletionError
	return errors.As(err, &ce)
}
