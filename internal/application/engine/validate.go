package engine

import (
	"fmt"

	"github.com/garyjia/transfer-approval/internal/domain/entity"
)

// validateStages checks that positions run 1..N without gaps and every stage names a role.
// stages must be ordered by position.
func validateStages(templateID int64, stages []*entity.StageTemplate) error {
	if len(stages) == 0 {
		return &ConfigurationError{TemplateID: templateID, Reason: "template has no stages"}
	}

	for i, stage := range stages {
		if stage.Position != i+1 {
			return &ConfigurationError{
				TemplateID: templateID,
				Reason:     fmt.Sprintf("stage positions are not contiguous: expected %d, got %d", i+1, stage.Position),
			}
		}
		if stage.RequiredRole == "" {
			return &ConfigurationError{
				TemplateID: templateID,
				Reason:     fmt.Sprintf("stage %d has no required role", stage.Position),
			}
		}
	}
	return nil
}

func stageAt(stages []*entity.StageTemplate, position int) *entity.StageTemplate {
	for _, stage := range stages {
		if stage.Position == position {
			return stage
		}
	}
	return nil
}

// uniqueUsers drops empty and repeated user IDs, keeping first-seen order
func uniqueUsers(users []entity.UserID) []entity.UserID {
	seen := make(map[entity.UserID]bool, len(users))
	out := make([]entity.UserID, 0, len(users))
	for _, u := range users {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
