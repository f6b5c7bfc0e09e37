package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a profile or revision does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidProfileID is returned when a profile ID is empty or blank
	ErrInvalidProfileID = errors.New("invalid profile id")

	// ErrStorageFailure marks unrecoverable local persistence errors
	ErrStorageFailure = errors.New("storage failure")

	// ErrDuplicateSuccess is returned when a second SUCCESS record is appended for the same profile revision
	ErrDuplicateSuccess = errors.New("profile revision already submitted successfully")

	// ErrRevisionClaimed is returned when another process holds the submission claim of a profile revision
	ErrRevisionClaimed = errors.New("profile revision is being submitted by another process")

	// ErrInvalidFields is returned when report fields fail validation
	ErrInvalidFields = errors.New("invalid report fields")

	// ErrBatchCanceled is reported on jobs whose next attempt was suppressed by cancellation
	ErrBatchCanceled = errors.New("batch canceled")
)

// RetryableError wraps transient errors that should trigger another attempt
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// StorageError wraps an I/O error raised by the profile store or the submission recorder
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage failure: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStorageFailure) match any StorageError
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

// NewStorageError creates a new storage error for the given operation
func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Classify maps the error returned by one submission attempt to its outcome.
// Timeouts count as retryable; unmarked errors are fatal.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeSuccess}
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return Outcome{Kind: OutcomeRetryable, Reason: err.Error()}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: OutcomeRetryable, Reason: "attempt timed out: " + err.Error()}
	}

	return Outcome{Kind: OutcomeFatal, Reason: err.Error()}
}
