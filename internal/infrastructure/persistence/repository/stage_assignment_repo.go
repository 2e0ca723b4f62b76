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

const assignmentSelect = `
	SELECT sa.id, sa.instance_id, sa.stage_position, sa.user_id, sa.decision,
		sa.decided_at, sa.created_at, wi.subject_id
	FROM stage_assignments sa
	JOIN workflow_instances wi ON wi.id = sa.instance_id`

// StageAssignmentRepository implements port.StageAssignmentRepository
type StageAssignmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStageAssignmentRepository creates a new stage assignment repository
func NewStageAssignmentRepository(db *sql.DB, logger *zap.Logger) *StageAssignmentRepository {
	return &StageAssignmentRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch fans a stage out to its eligible users
func (r *StageAssignmentRepository) CreateBatch(ctx context.Context, instanceID int64, position int, users []entity.UserID) ([]*entity.StageAssignment, error) {
	query := `
		INSERT INTO stage_assignments (instance_id, stage_position, user_id, decision)
		VALUES (?, ?, ?, ?)
	`

	exec := sqlite.Conn(ctx, r.db)
	now := time.Now()
	created := make([]*entity.StageAssignment, 0, len(users))

	for _, user := range users {
		result, err := exec.ExecContext(ctx, query, instanceID, position, string(user), entity.DecisionPending)
		if err != nil {
			r.logger.Error("Failed to create stage assignment",
				zap.Int64("instance_id", instanceID),
				zap.Int("position", position),
				zap.String("user_id", user.String()),
				zap.Error(err))
			return nil, fmt.Errorf("failed to create stage assignment: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get last insert id: %w", err)
		}

		created = append(created, &entity.StageAssignment{
			ID:            id,
			InstanceID:    instanceID,
			StagePosition: position,
			UserID:        user,
			Decision:      entity.DecisionPending,
			CreatedAt:     now,
		})
	}

	return created, nil
}

// GetForUser retrieves the user's row for a stage
func (r *StageAssignmentRepository) GetForUser(ctx context.Context, instanceID int64, position int, user entity.UserID) (*entity.StageAssignment, error) {
	query := assignmentSelect + `
		WHERE sa.instance_id = ? AND sa.stage_position = ? AND sa.user_id = ?`

	assignment, err := scanAssignment(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, instanceID, position, string(user)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get stage assignment",
			zap.Int64("instance_id", instanceID),
			zap.Int("position", position),
			zap.String("user_id", user.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get stage assignment: %w", err)
	}
	return assignment, nil
}

// CompareAndSetDecision flips a PENDING row; false means someone already decided it
func (r *StageAssignmentRepository) CompareAndSetDecision(ctx context.Context, id int64, decision string, at time.Time) (bool, error) {
	query := `
		UPDATE stage_assignments
		SET decision = ?, decided_at = ?
		WHERE id = ? AND decision = ?
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, decision, at.UTC(), id, entity.DecisionPending)
	if err != nil {
		r.logger.Error("Failed to record decision",
			zap.Int64("id", id),
			zap.String("decision", decision),
			zap.Error(err))
		return false, fmt.Errorf("failed to record decision: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

// CountByStage counts a stage's rows, or only its decided rows
func (r *StageAssignmentRepository) CountByStage(ctx context.Context, instanceID int64, position int, decidedOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM stage_assignments WHERE instance_id = ? AND stage_position = ?`
	args := []interface{}{instanceID, position}
	if decidedOnly {
		query += ` AND decision <> ?`
		args = append(args, entity.DecisionPending)
	}

	var count int
	if err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		r.logger.Error("Failed to count stage assignments",
			zap.Int64("instance_id", instanceID),
			zap.Int("position", position),
			zap.Error(err))
		return 0, fmt.Errorf("failed to count stage assignments: %w", err)
	}
	return count, nil
}

// ListByStage returns every row of a stage
func (r *StageAssignmentRepository) ListByStage(ctx context.Context, instanceID int64, position int) ([]*entity.StageAssignment, error) {
	query := assignmentSelect + `
		WHERE sa.instance_id = ? AND sa.stage_position = ?
		ORDER BY sa.user_id`

	return r.query(ctx, "stage", query, instanceID, position)
}

// ListByInstance returns every row of an instance, closed stages included
func (r *StageAssignmentRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*entity.StageAssignment, error) {
	query := assignmentSelect + `
		WHERE sa.instance_id = ?
		ORDER BY sa.stage_position, sa.user_id`

	return r.query(ctx, "instance", query, instanceID)
}

// ListPendingForUser returns work items on the open, still undecided stage of ACTIVE instances
func (r *StageAssignmentRepository) ListPendingForUser(ctx context.Context, user entity.UserID) ([]*entity.StageAssignment, error) {
	query := assignmentSelect + `
		WHERE sa.user_id = ?
			AND sa.decision = ?
			AND wi.status = ?
			AND sa.stage_position = wi.current_stage_position
			AND NOT EXISTS (
				SELECT 1 FROM stage_assignments d
				WHERE d.instance_id = sa.instance_id
					AND d.stage_position = sa.stage_position
					AND d.decision <> ?
			)
		ORDER BY sa.created_at, sa.id`

	return r.query(ctx, "pending", query, string(user), entity.DecisionPending, entity.StatusActive, entity.DecisionPending)
}

func (r *StageAssignmentRepository) query(ctx context.Context, scope, query string, args ...interface{}) ([]*entity.StageAssignment, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list stage assignments",
			zap.String("scope", scope),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list stage assignments: %w", err)
	}
	defer rows.Close()

	assignments := []*entity.StageAssignment{}
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	return assignments, rows.Err()
}

func scanAssignment(row rowScanner) (*entity.StageAssignment, error) {
	var (
		assignment        entity.StageAssignment
		userID, subjectID string
		decidedAt         sql.NullTime
	)

	err := row.Scan(
		&assignment.ID,
		&assignment.InstanceID,
		&assignment.StagePosition,
		&userID,
		&assignment.Decision,
		&decidedAt,
		&assignment.CreatedAt,
		&subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan stage assignment: %w", err)
	}

	assignment.UserID = entity.UserID(userID)
	assignment.SubjectID = entity.SubjectID(subjectID)
	if decidedAt.Valid {
		assignment.DecidedAt = &decidedAt.Time
	}
	return &assignment, nil
}

// Verify interface compliance
var _ port.StageAssignmentRepository = (*StageAssignmentRepository)(nil)
