package engine

import (
	"context"
	"fmt"

	"github.com/garyjia/transfer-approval/internal/domain/entity"
)

// PendingForUser returns the user's open work items.
// Rows on stages already decided by someone else are not included.
func (e *Engine) PendingForUser(ctx context.Context, user entity.UserID) ([]*entity.StageAssignment, error) {
	if user == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidArgument)
	}
	return e.assignments.ListPendingForUser(ctx, user)
}

// GetActiveInstance describes the subject's ACTIVE instance and its open stage.
// It returns nil when the subject has no ACTIVE instance.
func (e *Engine) GetActiveInstance(ctx context.Context, subject entity.SubjectID) (*entity.ActiveInstanceView, error) {
	inst, err := e.instances.GetActiveBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, nil
	}

	view := &entity.ActiveInstanceView{
		Instance:         inst,
		StagePosition:    inst.CurrentPosition(),
		StageCount:       inst.StageCount,
		Stalled:          inst.Stalled,
		PendingApprovers: []entity.UserID{},
	}

	stages, err := e.stages.GetStageTemplates(ctx, inst.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage templates: %w", err)
	}
	if stage := stageAt(stages, view.StagePosition); stage != nil {
		view.StageName = stage.Name
		view.RequiredRole = stage.RequiredRole
	}

	rows, err := e.assignments.ListByStage(ctx, inst.ID, view.StagePosition)
	if err != nil {
		return nil, err
	}
	view.EligibleApprovers = len(rows)
	for _, row := range rows {
		if row.Decision == entity.DecisionPending {
			view.PendingApprovers = append(view.PendingApprovers, row.UserID)
		}
	}

	return view, nil
}

// GetChain returns every instance of the subject ordered by execution order.
// A subject without instances has status NO_WORKFLOW.
func (e *Engine) GetChain(ctx context.Context, subject entity.SubjectID) (*entity.ChainHandle, error) {
	instances, err := e.instances.ListBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}

	var group entity.GroupID
	if len(instances) > 0 {
		group = instances[0].GroupID
	}
	return entity.NewChainHandle(subject, group, instances), nil
}

// GetDecisions returns every stage assignment row of the subject's chain, closed stages included
func (e *Engine) GetDecisions(ctx context.Context, subject entity.SubjectID) ([]*entity.StageAssignment, error) {
	instances, err := e.instances.ListBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}

	var rows []*entity.StageAssignment
	for _, inst := range instances {
		batch, err := e.assignments.ListByInstance(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
	}
	return rows, nil
}
