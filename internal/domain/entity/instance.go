package entity

import "time"

// WorkflowInstance is one execution of a WorkflowTemplate against one subject.
// GroupID and ExecutionOrder are copied at creation and never change.
type WorkflowInstance struct {
	ID                   int64      `json:"id"`
	SubjectID            SubjectID  `json:"subject_id"`
	TemplateID           int64      `json:"template_id"`
	GroupID              GroupID    `json:"group_id"`
	ExecutionOrder       int        `json:"execution_order"`
	Status               string     `json:"status"`
	StageCount           int        `json:"stage_count"`
	CurrentStagePosition *int       `json:"current_stage_position,omitempty"`
	Stalled              bool       `json:"stalled"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// CurrentPosition returns the open stage position, or 0 when no stage was opened yet
func (i *WorkflowInstance) CurrentPosition() int {
	if i.CurrentStagePosition == nil {
		return 0
	}
	return *i.CurrentStagePosition
}

// IsTerminal reports whether the instance reached a final status
func (i *WorkflowInstance) IsTerminal() bool {
	switch i.Status {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// StageAssignment is one eligible approver's work item for an opened stage.
// Rows are kept after the stage closes for audit.
type StageAssignment struct {
	ID            int64      `json:"id"`
	InstanceID    int64      `json:"instance_id"`
	StagePosition int        `json:"stage_position"`
	UserID        UserID     `json:"user_id"`
	Decision      string     `json:"decision"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`

	// Populated by visibility queries only
	SubjectID SubjectID `json:"subject_id,omitempty"`
}
