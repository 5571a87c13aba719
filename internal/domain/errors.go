package domain

import "errors"

var (
	// ErrValidation marks input that fails domain validation.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup for a record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an operation rejected by the current record state.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyClaimed marks a send claim on a campaign that is already
	// sending or sent. Callers treat it as a no-op, not a failure.
	ErrAlreadyClaimed = errors.New("campaign already claimed")
)
