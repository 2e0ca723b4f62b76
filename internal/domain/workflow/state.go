package workflow

// State is the lifecycle status of a workflow instance
type State string

const (
	StatePending   State = "PENDING"
	StateActive    State = "ACTIVE"
	StateApproved  State = "APPROVED"
	StateRejected  State = "REJECTED"
	StateCancelled State = "CANCELLED"
)

// IsTerminal returns true if no further transitions leave the state
func (s State) IsTerminal() bool {
	switch s {
	case StateApproved, StateRejected, StateCancelled:
		return true
	}
	return false
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state belongs to the instance lifecycle
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateActive, StateApproved, StateRejected, StateCancelled:
		return true
	}
	return false
}
