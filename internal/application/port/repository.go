package port

import (
	"context"
	"time"

	"github.com/garyjia/transfer-approval/internal/domain/entity"
)

// InstanceRepository persists WorkflowInstance rows.
// Lookups return (nil, nil) when nothing matches.
type InstanceRepository interface {
	// Create inserts a new instance and sets its ID
	Create(ctx context.Context, instance *entity.WorkflowInstance) error

	// GetByID retrieves an instance by its ID
	GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error)

	// ListBySubject returns the subject's chain ordered by execution order
	ListBySubject(ctx context.Context, subject entity.SubjectID) ([]*entity.WorkflowInstance, error)

	// GetActiveBySubject returns the subject's ACTIVE instance
	GetActiveBySubject(ctx context.Context, subject entity.SubjectID) (*entity.WorkflowInstance, error)

	// TransitionStatus moves an instance from one status to another only if it is still in from.
	// ACTIVE stamps started_at, terminal statuses stamp finished_at.
	// Returns false when the row was not in from.
	TransitionStatus(ctx context.Context, id int64, from, to string, at time.Time) (bool, error)

	// SetCurrentStage records the open stage position and whether it is stalled
	SetCurrentStage(ctx context.Context, id int64, position int, stalled bool) error
}

// StageAssignmentRepository persists StageAssignment rows
type StageAssignmentRepository interface {
	// CreateBatch inserts one PENDING row per user for the given stage
	CreateBatch(ctx context.Context, instanceID int64, position int, users []entity.UserID) ([]*entity.StageAssignment, error)

	// GetForUser retrieves the user's row for a stage
	GetForUser(ctx context.Context, instanceID int64, position int, user entity.UserID) (*entity.StageAssignment, error)

	// CompareAndSetDecision flips a PENDING row to decision. Returns false if the row was no longer PENDING.
	CompareAndSetDecision(ctx context.Context, id int64, decision string, at time.Time) (bool, error)

	// CountByStage counts rows of a stage, optionally only those with a non-PENDING decision
	CountByStage(ctx context.Context, instanceID int64, position int, decidedOnly bool) (int, error)

	// ListByStage returns every row of a stage ordered by user
	ListByStage(ctx context.Context, instanceID int64, position int) ([]*entity.StageAssignment, error)

	// ListByInstance returns every row of an instance ordered by stage then user
	ListByInstance(ctx context.Context, instanceID int64) ([]*entity.StageAssignment, error)

	// ListPendingForUser returns the user's PENDING rows on the open stage of ACTIVE instances
	ListPendingForUser(ctx context.Context, user entity.UserID) ([]*entity.StageAssignment, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
