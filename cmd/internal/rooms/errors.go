package rooms

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("room not found")
	ErrAlreadyMember   = errors.New("already a member")
	ErrRoomFull        = errors.New("room is full")
	ErrExchangeStarted = errors.New("exchange already started")
	ErrInvalidState    = errors.New("invalid room state")

	// ErrCodeTaken reports an invite-code uniqueness conflict. Callers retry
	// code generation; it never reaches end users.
	ErrCodeTaken = errors.New("invite code taken")

	// ErrOwner rejects a member operation the room owner may not perform on
	// their own room (leaving it).
	ErrOwner = errors.New("owner cannot leave own room")
)
