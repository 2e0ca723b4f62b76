package engine

import (
	"context"
	"fmt"

	"github.com/garyjia/transfer-approval/internal/domain/entity"
	"github.com/garyjia/transfer-approval/internal/domain/event"
	domainwf "github.com/garyjia/transfer-approval/internal/domain/workflow"
)

// CreateChain builds the subject's ordered instance chain and activates its first instance.
// Calling it again for the same subject returns the existing chain.
// A group without active assignments yields ErrNoWorkflowAssigned and nothing is written.
func (e *Engine) CreateChain(ctx context.Context, subject entity.SubjectID, group entity.GroupID) (*entity.ChainHandle, error) {
	if subject == "" || group == "" {
		return nil, fmt.Errorf("%w: subject and group are required", ErrInvalidArgument)
	}

	var chain *entity.ChainHandle
	err := e.execute(ctx, "create_chain", func(ctx context.Context, r *run) error {
		existing, err := e.instances.ListBySubject(ctx, subject)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			e.logger.Info("Chain already exists", "subject_id", subject, "instance_count", len(existing))
			chain = entity.NewChainHandle(subject, existing[0].GroupID, existing)
			return nil
		}

		assignments, err := e.workflows.GetActiveAssignments(ctx, group)
		if err != nil {
			return fmt.Errorf("failed to get active assignments: %w", err)
		}
		if len(assignments) == 0 {
			return ErrNoWorkflowAssigned
		}

		// Every template is validated before the first row is written
		stageCounts := make(map[int64]int, len(assignments))
		for _, a := range assignments {
			stages, err := e.stages.GetStageTemplates(ctx, a.TemplateID)
			if err != nil {
				return fmt.Errorf("failed to get stage templates: %w", err)
			}
			if err := validateStages(a.TemplateID, stages); err != nil {
				return err
			}
			stageCounts[a.TemplateID] = len(stages)
		}

		instances := make([]*entity.WorkflowInstance, 0, len(assignments))
		for _, a := range assignments {
			inst := &entity.WorkflowInstance{
				SubjectID:      subject,
				TemplateID:     a.TemplateID,
				GroupID:        group,
				ExecutionOrder: a.ExecutionOrder,
				Status:         entity.StatusPending,
				StageCount:     stageCounts[a.TemplateID],
			}
			if err := e.instances.Create(ctx, inst); err != nil {
				return err
			}
			instances = append(instances, inst)
		}

		r.emit(event.TypeChainCreated, instances[0], map[string]interface{}{
			event.KeyGroupID:       group.String(),
			event.KeyInstanceCount: len(instances),
		})

		if err := e.activate(ctx, r, subject, 0); err != nil {
			return err
		}

		instances, err = e.instances.ListBySubject(ctx, subject)
		if err != nil {
			return err
		}
		chain = entity.NewChainHandle(subject, group, instances)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Chain ready",
		"subject_id", subject,
		"group_id", chain.GroupID,
		"status", chain.Status,
		"instance_count", len(chain.Instances),
	)
	return chain, nil
}

// activate starts the lowest PENDING instance whose execution order is greater than after.
// No such instance means the chain is complete.
func (e *Engine) activate(ctx context.Context, r *run, subject entity.SubjectID, after int) error {
	instances, err := e.instances.ListBySubject(ctx, subject)
	if err != nil {
		return err
	}

	var next *entity.WorkflowInstance
	for _, inst := range instances {
		if inst.Status == entity.StatusActive {
			return violation("activate", "subject %s already has active instance %d", subject, inst.ID)
		}
		if next == nil && inst.ExecutionOrder > after && inst.Status == entity.StatusPending {
			next = inst
		}
	}

	if next == nil {
		if entity.DeriveChainStatus(instances) == entity.ChainStatusCompleted {
			e.logger.Info("Chain completed", "subject_id", subject, "instance_count", len(instances))
			r.emit(event.TypeChainCompleted, instances[len(instances)-1], map[string]interface{}{
				event.KeyInstanceCount: len(instances),
			})
		}
		return nil
	}

	for _, inst := range instances {
		if inst.ExecutionOrder < next.ExecutionOrder && inst.Status != entity.StatusApproved {
			return violation("activate",
				"instance %d (order %d) cannot start before instance %d (order %d) is approved",
				next.ID, next.ExecutionOrder, inst.ID, inst.ExecutionOrder)
		}
	}

	if err := e.transition(ctx, "activate", next, domainwf.TriggerActivate); err != nil {
		return err
	}

	e.logger.Info("Instance activated",
		"subject_id", subject,
		"instance_id", next.ID,
		"execution_order", next.ExecutionOrder,
	)
	r.emit(event.TypeInstanceActivated, next, map[string]interface{}{
		event.KeyGroupID:        next.GroupID.String(),
		event.KeyTemplateID:     next.TemplateID,
		event.KeyExecutionOrder: next.ExecutionOrder,
		event.KeyStageCount:     next.StageCount,
	})

	return e.openStage(ctx, r, next, 1)
}

// onInstanceTerminal continues or halts the chain once an instance is APPROVED or REJECTED
func (e *Engine) onInstanceTerminal(ctx context.Context, r *run, inst *entity.WorkflowInstance) error {
	switch inst.Status {
	case entity.StatusApproved:
		return e.activate(ctx, r, inst.SubjectID, inst.ExecutionOrder)
	case entity.StatusRejected:
		return e.halt(ctx, r, inst)
	default:
		return violation("on_instance_terminal", "instance %d is %s, not terminal", inst.ID, inst.Status)
	}
}

// halt stops the chain after a rejection; no later instance is ever activated
func (e *Engine) halt(ctx context.Context, r *run, rejected *entity.WorkflowInstance) error {
	cancelled := 0
	if e.cascadeMode == entity.CascadeModeCancel {
		instances, err := e.instances.ListBySubject(ctx, rejected.SubjectID)
		if err != nil {
			return err
		}
		for _, inst := range instances {
			if !domainwf.CanFire(domainwf.State(inst.Status), domainwf.TriggerCancel) {
				continue
			}
			if err := e.transition(ctx, "halt", inst, domainwf.TriggerCancel); err != nil {
				return err
			}
			r.emit(event.TypeInstanceCancelled, inst, map[string]interface{}{
				event.KeyExecutionOrder: inst.ExecutionOrder,
			})
			cancelled++
		}
	}

	e.logger.Info("Chain halted",
		"subject_id", rejected.SubjectID,
		"rejected_instance_id", rejected.ID,
		"cascade_mode", e.cascadeMode,
		"cancelled", cancelled,
	)
	r.emit(event.TypeChainHalted, rejected, map[string]interface{}{
		event.KeyExecutionOrder: rejected.ExecutionOrder,
	})
	return nil
}

// transition checks trigger against the instance lifecycle and compare-and-sets the status row
func (e *Engine) transition(ctx context.Context, op string, inst *entity.WorkflowInstance, trigger domainwf.Trigger) error {
	from := domainwf.State(inst.Status)
	to, err := domainwf.Next(ctx, from, trigger)
	if err != nil {
		return violation(op, "instance %d: %v", inst.ID, err)
	}

	at := e.now().UTC()
	ok, err := e.instances.TransitionStatus(ctx, inst.ID, from.String(), to.String(), at)
	if err != nil {
		return err
	}
	if !ok {
		return violation(op, "instance %d is no longer %s", inst.ID, from)
	}

	inst.Status = to.String()
	if to == domainwf.StateActive {
		inst.StartedAt = &at
	} else if to.IsTerminal() {
		inst.FinishedAt = &at
	}
	return nil
}
