package retry

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRetriesExhausted matches any RetriesExhaustedError.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrCancelled matches any CancelledError.
	ErrCancelled = errors.New("operation cancelled")
)

// RetriesExhaustedError wraps the last transient error once the policy gives up.
type RetriesExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// CancelledError is returned when the context ends before the operation settles.
// Cause is the context error; Last is the most recent attempt's error, if any.
type CancelledError struct {
	Operation string
	Attempts  int
	Cause     error
	Last      error
}

func (e *CancelledError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s cancelled after %d attempts (last error: %v): %v", e.Operation, e.Attempts, e.Last, e.Cause)
	}
	return fmt.Sprintf("%s cancelled after %d attempts: %v", e.Operation, e.Attempts, e.Cause)
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// IsAbort reports whether err means the whole run should stop rather than
// move on to the next item. Bare context errors count as well.
func IsAbort(err error) bool {
	return errors.Is(err, ErrRetriesExhausted) ||
		errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
