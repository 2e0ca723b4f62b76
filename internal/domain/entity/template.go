package entity

import "time"

// WorkflowTemplate is an ordered, named sequence of stages.
// The engine only ever reads templates.
type WorkflowTemplate struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// StageTemplate is one step of a WorkflowTemplate.
// Positions within a template are contiguous starting at 1.
type StageTemplate struct {
	ID           int64     `json:"id"`
	TemplateID   int64     `json:"template_id"`
	Position     int       `json:"position"`
	Name         string    `json:"name,omitempty"`
	RequiredRole RoleID    `json:"required_role"`
	CreatedAt    time.Time `json:"created_at"`
}

// WorkflowAssignment binds a template to a group at a given execution order
type WorkflowAssignment struct {
	ID             int64     `json:"id"`
	GroupID        GroupID   `json:"group_id"`
	TemplateID     int64     `json:"template_id"`
	ExecutionOrder int       `json:"execution_order"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}
