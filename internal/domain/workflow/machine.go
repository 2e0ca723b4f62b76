package workflow

import "context"

// StateMachine tracks one instance's state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger has a transition from the current state
	CanFire(trigger Trigger) bool

	// Fire executes the trigger
	Fire(ctx context.Context, trigger Trigger) error
}
