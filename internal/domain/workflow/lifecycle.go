package workflow

import (
	"context"
	"fmt"
	"sync"
)

// The instance lifecycle:
//
//	PENDING --ACTIVATE--> ACTIVE --APPROVE--> APPROVED
//	   |                     \----REJECT---> REJECTED
//	   \----CANCEL---> CANCELLED
var (
	lifecycleOnce     sync.Once
	instanceLifecycle StateMachineBuilder
)

func lifecycle() StateMachineBuilder {
	lifecycleOnce.Do(func() {
		instanceLifecycle = NewInstanceLifecycle()
	})
	return instanceLifecycle
}

// NewInstanceLifecycle returns a builder configured with the workflow instance transitions
func NewInstanceLifecycle() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerActivate, StateActive).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateActive).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected)

	return b
}

// Next returns the state an instance in from reaches when trigger fires.
// Errors wrap ErrInvalidState or ErrInvalidTransition.
func Next(ctx context.Context, from State, trigger Trigger) (State, error) {
	if !from.IsValid() {
		return from, fmt.Errorf("%w: %q", ErrInvalidState, from)
	}

	m := lifecycle().Build(from)
	if err := m.Fire(ctx, trigger); err != nil {
		return from, err
	}
	return m.State(), nil
}

// CanFire reports whether trigger leaves from in the instance lifecycle
func CanFire(from State, trigger Trigger) bool {
	if !from.IsValid() {
		return false
	}
	return lifecycle().Build(from).CanFire(trigger)
}
