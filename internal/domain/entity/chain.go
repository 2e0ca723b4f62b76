package entity

// ChainHandle is the ordered set of instances created for one subject
type ChainHandle struct {
	SubjectID SubjectID           `json:"subject_id"`
	GroupID   GroupID             `json:"group_id"`
	Status    ChainStatus         `json:"status"`
	Instances []*WorkflowInstance `json:"instances"`
}

// NewChainHandle builds a handle from instances sorted by execution order
func NewChainHandle(subject SubjectID, group GroupID, instances []*WorkflowInstance) *ChainHandle {
	return &ChainHandle{
		SubjectID: subject,
		GroupID:   group,
		Status:    DeriveChainStatus(instances),
		Instances: instances,
	}
}

// Active returns the ACTIVE instance of the chain, if any
func (c *ChainHandle) Active() *WorkflowInstance {
	for _, inst := range c.Instances {
		if inst.Status == StatusActive {
			return inst
		}
	}
	return nil
}

// DeriveChainStatus computes the chain status from its instances
func DeriveChainStatus(instances []*WorkflowInstance) ChainStatus {
	if len(instances) == 0 {
		return ChainStatusNoWorkflow
	}

	approved := 0
	for _, inst := range instances {
		switch inst.Status {
		case StatusRejected:
			return ChainStatusHalted
		case StatusApproved:
			approved++
		}
	}

	if approved == len(instances) {
		return ChainStatusCompleted
	}
	return ChainStatusInProgress
}

// ActiveInstanceView describes what is blocking a subject right now.
// Stalled is true when the open stage has no eligible approvers.
type ActiveInstanceView struct {
	Instance          *WorkflowInstance `json:"instance"`
	StagePosition     int               `json:"stage_position"`
	StageCount        int               `json:"stage_count"`
	StageName         string            `json:"stage_name,omitempty"`
	RequiredRole      RoleID            `json:"required_role"`
	EligibleApprovers int               `json:"eligible_approvers"`
	PendingApprovers  []UserID          `json:"pending_approvers"`
	Stalled           bool              `json:"stalled"`
}
