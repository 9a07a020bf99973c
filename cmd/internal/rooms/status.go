package rooms

// Status is the room lifecycle state.
//
// Transitions are one-way: open -> exchange_started, and closed is terminal
// from either prior state. All writers go through Transition-style conditional
// updates so an illegal transition is rejected centrally, not per call site.
type Status string

const (
	StatusOpen            Status = "open"
	StatusExchangeStarted Status = "exchange_started"
	StatusClosed          Status = "closed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusExchangeStarted, StatusClosed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusOpen:
		return to == StatusExchangeStarted || to == StatusClosed
	case StatusExchangeStarted:
		return to == StatusClosed
	}
	return false
}
