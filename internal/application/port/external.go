package port

import (
	"context"

	"github.com/garyjia/transfer-approval/internal/domain/entity"
)

// RoleResolver returns the live membership of a role within a group
type RoleResolver interface {
	ResolveRoleMembers(ctx context.Context, group entity.GroupID, role entity.RoleID) ([]entity.UserID, error)
}

// AssignmentStore lists a group's active workflow assignments ordered by execution order
type AssignmentStore interface {
	GetActiveAssignments(ctx context.Context, group entity.GroupID) ([]*entity.WorkflowAssignment, error)
}

// StageTemplateStore lists a template's stages ordered by position
type StageTemplateStore interface {
	GetStageTemplates(ctx context.Context, templateID int64) ([]*entity.StageTemplate, error)
}

// MessageSender delivers a plain-text message to a user or chat
type MessageSender interface {
	SendText(ctx context.Context, receiveIDType, receiveID, text string) error
}
