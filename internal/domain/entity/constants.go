package entity

// Status constants for WorkflowInstance
const (
	StatusPending   = "PENDING"
	StatusActive    = "ACTIVE"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED" // only produced when CascadeModeCancel is configured
)

// Decision constants for StageAssignment
const (
	DecisionPending  = "PENDING"
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"
)

// ChainStatus summarises every instance created for one subject
type ChainStatus string

const (
	ChainStatusNoWorkflow ChainStatus = "NO_WORKFLOW"
	ChainStatusInProgress ChainStatus = "IN_PROGRESS"
	ChainStatusCompleted  ChainStatus = "COMPLETED"
	ChainStatusHalted     ChainStatus = "HALTED"
)

// Cascade modes decide what happens to the PENDING tail of a chain after a rejection
const (
	CascadeModeKeepPending = "keep_pending"
	CascadeModeCancel      = "cancel"
)

// IsValidDecision reports whether d can be submitted by an approver
func IsValidDecision(d string) bool {
	return d == DecisionApproved || d == DecisionRejected
}
