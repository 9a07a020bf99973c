package exchange

import "errors"

var (
	// ErrInvalidInput reports a malformed argument.
	ErrInvalidInput = errors.New("invalid_input")

	// ErrNotFound reports a missing room or assignment.
	ErrNotFound = errors.New("not_found")

	// ErrNotOwner reports a start attempt by someone other than the room owner.
	ErrNotOwner = errors.New("not_owner")

	// ErrTooFewMembers reports a start attempt with fewer than two members.
	ErrTooFewMembers = errors.New("too_few_members")

	// ErrAlreadyStarted reports a start attempt for a room whose exchange
	// already ran. Assignments are never re-drawn.
	ErrAlreadyStarted = errors.New("already_started")
)
