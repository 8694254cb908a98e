package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness violation or duplicate submission.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable indicates the backing store could not serve a read.
	ErrUnavailable = errors.New("store unavailable")
)
