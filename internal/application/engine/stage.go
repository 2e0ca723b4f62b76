package engine

import (
	"context"
	"fmt"

	"github.com/garyjia/transfer-approval/internal/domain/entity"
	"github.com/garyjia/transfer-approval/internal/domain/event"
	domainwf "github.com/garyjia/transfer-approval/internal/domain/workflow"
)

// openStage fans the stage at position out to every current holder of its required role.
// position must be the first stage never opened for inst.
// A role with no holders still opens the stage, flagged as stalled.
func (e *Engine) openStage(ctx context.Context, r *run, inst *entity.WorkflowInstance, position int) error {
	if inst.Status != entity.StatusActive {
		return violation("open_stage", "instance %d is %s, not ACTIVE", inst.ID, inst.Status)
	}
	if position != inst.CurrentPosition()+1 {
		return violation("open_stage", "instance %d: cannot open stage %d while stage %d is current",
			inst.ID, position, inst.CurrentPosition())
	}
	if position > inst.StageCount {
		return violation("open_stage", "instance %d has only %d stages, cannot open %d",
			inst.ID, inst.StageCount, position)
	}

	opened, err := e.assignments.CountByStage(ctx, inst.ID, position, false)
	if err != nil {
		return err
	}
	if opened > 0 {
		return violation("open_stage", "stage %d of instance %d was already opened", position, inst.ID)
	}

	stages, err := e.stages.GetStageTemplates(ctx, inst.TemplateID)
	if err != nil {
		return fmt.Errorf("failed to get stage templates: %w", err)
	}
	stage := stageAt(stages, position)
	if stage == nil {
		return &ConfigurationError{
			TemplateID: inst.TemplateID,
			Reason:     fmt.Sprintf("stage %d not found", position),
		}
	}

	members, err := e.roles.ResolveRoleMembers(ctx, inst.GroupID, stage.RequiredRole)
	if err != nil {
		return fmt.Errorf("failed to resolve role members: %w", err)
	}
	users := uniqueUsers(members)

	if len(users) > 0 {
		if _, err := e.assignments.CreateBatch(ctx, inst.ID, position, users); err != nil {
			return err
		}
	}

	stalled := len(users) == 0
	if err := e.instances.SetCurrentStage(ctx, inst.ID, position, stalled); err != nil {
		return err
	}
	inst.CurrentStagePosition = &position
	inst.Stalled = stalled

	approvers := make([]string, 0, len(users))
	for _, u := range users {
		approvers = append(approvers, u.String())
	}
	payload := map[string]interface{}{
		event.KeyGroupID:       inst.GroupID.String(),
		event.KeyStagePosition: position,
		event.KeyStageCount:    inst.StageCount,
		event.KeyRequiredRole:  stage.RequiredRole.String(),
		event.KeyApprovers:     approvers,
	}
	r.emit(event.TypeStageOpened, inst, payload)

	if stalled {
		e.logger.Warn("Stage opened with no eligible approvers",
			"subject_id", inst.SubjectID,
			"instance_id", inst.ID,
			"stage_position", position,
			"group_id", inst.GroupID,
			"required_role", stage.RequiredRole,
		)
		r.emit(event.TypeStageStalled, inst, payload)
		return nil
	}

	e.logger.Info("Stage opened",
		"subject_id", inst.SubjectID,
		"instance_id", inst.ID,
		"stage_position", position,
		"approvers", len(users),
	)
	return nil
}

// closeStageAndAdvance acts on the outcome of the current stage
func (e *Engine) closeStageAndAdvance(ctx context.Context, r *run, inst *entity.WorkflowInstance, outcome string) error {
	position := inst.CurrentPosition()

	var trigger domainwf.Trigger
	var eventType event.Type
	switch outcome {
	case entity.DecisionApproved:
		if position < inst.StageCount {
			return e.openStage(ctx, r, inst, position+1)
		}
		trigger, eventType = domainwf.TriggerApprove, event.TypeInstanceApproved
	case entity.DecisionRejected:
		trigger, eventType = domainwf.TriggerReject, event.TypeInstanceRejected
	default:
		return violation("close_stage", "instance %d: unknown stage outcome %q", inst.ID, outcome)
	}

	if err := e.transition(ctx, "close_stage", inst, trigger); err != nil {
		return err
	}

	e.logger.Info("Instance finished",
		"subject_id", inst.SubjectID,
		"instance_id", inst.ID,
		"status", inst.Status,
		"stage_position", position,
	)
	r.emit(eventType, inst, map[string]interface{}{
		event.KeyExecutionOrder: inst.ExecutionOrder,
		event.KeyStagePosition:  position,
	})

	return e.onInstanceTerminal(ctx, r, inst)
}
