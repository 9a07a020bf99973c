package broadcast

import "errors"

var (
	// ErrInvalidInput reports a malformed argument.
	ErrInvalidInput = errors.New("invalid_input")

	// ErrNotFound reports a missing ledger entry.
	ErrNotFound = errors.New("not_found")

	// ErrFinalized reports a second finalize attempt for the same run.
	ErrFinalized = errors.New("already_finalized")

	// ErrBusy reports that the runner is at capacity.
	ErrBusy = errors.New("runner_busy")

	// ErrClosed reports that the runner is shutting down.
	ErrClosed = errors.New("runner_closed")
)
