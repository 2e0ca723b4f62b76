package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when the trigger is not permitted from the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned for a state outside the instance lifecycle
	ErrInvalidState = errors.New("invalid state")
)
