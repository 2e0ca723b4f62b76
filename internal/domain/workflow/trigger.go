package workflow

// Trigger is an engine action that moves an instance between states
type Trigger string

const (
	TriggerActivate Trigger = "ACTIVATE"
	TriggerApprove  Trigger = "APPROVE"
	TriggerReject   Trigger = "REJECT"
	TriggerCancel   Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
