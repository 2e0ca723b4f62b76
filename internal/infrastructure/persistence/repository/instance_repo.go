package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/transfer-approval/internal/application/port"
	"github.com/garyjia/transfer-approval/internal/domain/entity"
	"github.com/garyjia/transfer-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const instanceColumns = `
	id, subject_id, template_id, group_id, execution_order, status, stage_count,
	current_stage_position, stalled, started_at, finished_at, created_at, updated_at`

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new workflow instance
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	query := `
		INSERT INTO workflow_instances (
			subject_id, template_id, group_id, execution_order, status, stage_count
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		string(instance.SubjectID),
		instance.TemplateID,
		string(instance.GroupID),
		instance.ExecutionOrder,
		instance.Status,
		instance.StageCount,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow instance",
			zap.String("subject_id", instance.SubjectID.String()),
			zap.Int("execution_order", instance.ExecutionOrder),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	now := time.Now()
	instance.ID = id
	instance.CreatedAt = now
	instance.UpdatedAt = now
	return nil
}

// GetByID retrieves an instance by its ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`

	instance, err := scanInstance(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow instance", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow instance: %w", err)
	}
	return instance, nil
}

// ListBySubject returns the subject's instances ordered by execution order
func (r *InstanceRepository) ListBySubject(ctx context.Context, subject entity.SubjectID) ([]*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE subject_id = ?
		ORDER BY execution_order`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, string(subject))
	if err != nil {
		r.logger.Error("Failed to list workflow instances",
			zap.String("subject_id", subject.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow instances: %w", err)
	}
	defer rows.Close()

	var instances []*entity.WorkflowInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

// GetActiveBySubject returns the subject's ACTIVE instance
func (r *InstanceRepository) GetActiveBySubject(ctx context.Context, subject entity.SubjectID) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE subject_id = ? AND status = ?`

	instance, err := scanInstance(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, string(subject), entity.StatusActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active workflow instance",
			zap.String("subject_id", subject.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get active workflow instance: %w", err)
	}
	return instance, nil
}

// TransitionStatus is a compare-and-set on the status column
func (r *InstanceRepository) TransitionStatus(ctx context.Context, id int64, from, to string, at time.Time) (bool, error) {
	var query string
	switch to {
	case entity.StatusActive:
		query = `UPDATE workflow_instances
			SET status = ?, started_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?`
	case entity.StatusApproved, entity.StatusRejected, entity.StatusCancelled:
		query = `UPDATE workflow_instances
			SET status = ?, finished_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?`
	default:
		return false, fmt.Errorf("unsupported target status %q", to)
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, to, at.UTC(), id, from)
	if err != nil {
		r.logger.Error("Failed to transition workflow instance",
			zap.Int64("id", id),
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err))
		return false, fmt.Errorf("failed to transition workflow instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

// SetCurrentStage records the open stage position
func (r *InstanceRepository) SetCurrentStage(ctx context.Context, id int64, position int, stalled bool) error {
	query := `UPDATE workflow_instances
		SET current_stage_position = ?, stalled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	if _, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, position, stalled, id); err != nil {
		r.logger.Error("Failed to set current stage",
			zap.Int64("id", id),
			zap.Int("position", position),
			zap.Error(err))
		return fmt.Errorf("failed to set current stage: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*entity.WorkflowInstance, error) {
	var (
		instance              entity.WorkflowInstance
		subjectID, groupID    string
		currentStage          sql.NullInt64
		startedAt, finishedAt sql.NullTime
	)

	err := row.Scan(
		&instance.ID,
		&subjectID,
		&instance.TemplateID,
		&groupID,
		&instance.ExecutionOrder,
		&instance.Status,
		&instance.StageCount,
		&currentStage,
		&instance.Stalled,
		&startedAt,
		&finishedAt,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
	}

	instance.SubjectID = entity.SubjectID(subjectID)
	instance.GroupID = entity.GroupID(groupID)
	if currentStage.Valid {
		pos := int(currentStage.Int64)
		instance.CurrentStagePosition = &pos
	}
	if startedAt.Valid {
		instance.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		instance.FinishedAt = &finishedAt.Time
	}
	return &instance, nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
