package engine

import (
	"context"
	"fmt"

	"github.com/garyjia/transfer-approval/internal/domain/entity"
	"github.com/garyjia/transfer-approval/internal/domain/event"
)

// RecordDecision records user's decision on the open stage of an instance.
// The first decision on a stage decides it; later callers get ErrAlreadyDecided.
func (e *Engine) RecordDecision(ctx context.Context, instanceID int64, user entity.UserID, decision string) error {
	if !entity.IsValidDecision(decision) {
		return fmt.Errorf("%w: got %q", ErrInvalidDecision, decision)
	}
	if user == "" {
		return fmt.Errorf("%w: user is required", ErrNotEligible)
	}

	return e.execute(ctx, "record_decision", func(ctx context.Context, r *run) error {
		inst, err := e.instances.GetByID(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst == nil {
			return fmt.Errorf("%w: instance %d not found", ErrNotEligible, instanceID)
		}
		if inst.Status != entity.StatusActive {
			return e.ineligible(ctx, inst, user)
		}

		position := inst.CurrentPosition()
		if position == 0 {
			return violation("record_decision", "active instance %d has no open stage", inst.ID)
		}

		row, err := e.assignments.GetForUser(ctx, inst.ID, position, user)
		if err != nil {
			return err
		}
		if row == nil {
			return e.ineligible(ctx, inst, user)
		}
		if row.Decision != entity.DecisionPending {
			return fmt.Errorf("%w: user %s already decided stage %d", ErrAlreadyDecided, user, position)
		}

		flipped, err := e.assignments.CompareAndSetDecision(ctx, row.ID, decision, e.now().UTC())
		if err != nil {
			return err
		}
		if !flipped {
			return fmt.Errorf("%w: stage %d of instance %d", ErrAlreadyDecided, position, inst.ID)
		}

		decided, err := e.assignments.CountByStage(ctx, inst.ID, position, true)
		if err != nil {
			return err
		}
		current, err := e.instances.GetByID(ctx, inst.ID)
		if err != nil {
			return err
		}
		// Only the decision that settles the stage advances it; returning an error rolls this flip back
		if current == nil || current.Status != entity.StatusActive ||
			current.CurrentPosition() != position || decided != 1 {
			return fmt.Errorf("%w: stage %d of instance %d", ErrAlreadyDecided, position, inst.ID)
		}

		e.logger.Info("Decision recorded",
			"subject_id", current.SubjectID,
			"instance_id", current.ID,
			"stage_position", position,
			"user_id", user,
			"decision", decision,
		)
		r.emit(event.TypeDecisionRecorded, current, map[string]interface{}{
			event.KeyStagePosition: position,
			event.KeyUserID:        user.String(),
			event.KeyDecision:      decision,
		})

		return e.closeStageAndAdvance(ctx, r, current, decision)
	})
}

// ineligible tells apart users whose stage was settled by someone else from users who never had a say
func (e *Engine) ineligible(ctx context.Context, inst *entity.WorkflowInstance, user entity.UserID) error {
	rows, err := e.assignments.ListByInstance(ctx, inst.ID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.UserID == user {
			return fmt.Errorf("%w: stage %d of instance %d is closed", ErrAlreadyDecided, row.StagePosition, inst.ID)
		}
	}
	return fmt.Errorf("%w: user %s on instance %d", ErrNotEligible, user, inst.ID)
}
