package event

// Type identifies the type of domain event
type Type string

const (
	TypeChainCreated      Type = "chain.created"
	TypeChainCompleted    Type = "chain.completed"
	TypeChainHalted       Type = "chain.halted"
	TypeInstanceActivated Type = "instance.activated"
	TypeInstanceApproved  Type = "instance.approved"
	TypeInstanceRejected  Type = "instance.rejected"
	TypeInstanceCancelled Type = "instance.cancelled"
	TypeStageOpened       Type = "stage.opened"
	TypeStageStalled      Type = "stage.stalled"
	TypeDecisionRecorded  Type = "decision.recorded"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeChainCreated,
		TypeChainCompleted,
		TypeChainHalted,
		TypeInstanceActivated,
		TypeInstanceApproved,
		TypeInstanceRejected,
		TypeInstanceCancelled,
		TypeStageOpened,
		TypeStageStalled,
		TypeDecisionRecorded:
		return true
	default:
		return false
	}
}

// Payload keys shared by producers and subscribers
const (
	KeyGroupID        = "group_id"
	KeyTemplateID     = "template_id"
	KeyExecutionOrder = "execution_order"
	KeyStagePosition  = "stage_position"
	KeyStageCount     = "stage_count"
	KeyRequiredRole   = "required_role"
	KeyApprovers      = "approvers"
	KeyUserID         = "user_id"
	KeyDecision       = "decision"
	KeyInstanceCount  = "instance_count"
)
