package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/garyjia/transfer-approval/internal/application/port"
	"github.com/garyjia/transfer-approval/internal/domain/entity"
	"github.com/garyjia/transfer-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// CatalogRepository reads and administers templates, group assignments and role membership.
// The engine only uses the read side through the port interfaces.
type CatalogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *sql.DB, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:     db,
		logger: logger,
	}
}

// GetStageTemplates lists a template's stages ordered by position
func (r *CatalogRepository) GetStageTemplates(ctx context.Context, templateID int64) ([]*entity.StageTemplate, error) {
	query := `
		SELECT id, template_id, position, COALESCE(name, ''), required_role, created_at
		FROM stage_templates
		WHERE template_id = ?
		ORDER BY position
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, templateID)
	if err != nil {
		r.logger.Error("Failed to list stage templates", zap.Int64("template_id", templateID), zap.Error(err))
		return nil, fmt.Errorf("failed to list stage templates: %w", err)
	}
	defer rows.Close()

	var stages []*entity.StageTemplate
	for rows.Next() {
		var (
			stage entity.StageTemplate
			role  string
		)
		if err := rows.Scan(&stage.ID, &stage.TemplateID, &stage.Position, &stage.Name, &role, &stage.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage template: %w", err)
		}
		stage.RequiredRole = entity.RoleID(role)
		stages = append(stages, &stage)
	}
	return stages, rows.Err()
}

// GetActiveAssignments lists a group's active assignments ordered by execution order
func (r *CatalogRepository) GetActiveAssignments(ctx context.Context, group entity.GroupID) ([]*entity.WorkflowAssignment, error) {
	query := `
		SELECT id, group_id, template_id, execution_order, active, created_at
		FROM workflow_assignments
		WHERE group_id = ? AND active = 1
		ORDER BY execution_order
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, string(group))
	if err != nil {
		r.logger.Error("Failed to list workflow assignments", zap.String("group_id", group.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*entity.WorkflowAssignment
	for rows.Next() {
		var (
			assignment entity.WorkflowAssignment
			groupID    string
		)
		if err := rows.Scan(&assignment.ID, &groupID, &assignment.TemplateID,
			&assignment.ExecutionOrder, &assignment.Active, &assignment.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workflow assignment: %w", err)
		}
		assignment.GroupID = entity.GroupID(groupID)
		assignments = append(assignments, &assignment)
	}
	return assignments, rows.Err()
}

// ResolveRoleMembers returns the current holders of role within group, sorted and de-duplicated
func (r *CatalogRepository) ResolveRoleMembers(ctx context.Context, group entity.GroupID, role entity.RoleID) ([]entity.UserID, error) {
	query := `
		SELECT DISTINCT user_id
		FROM group_role_members
		WHERE group_id = ? AND role_id = ?
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, string(group), string(role))
	if err != nil {
		r.logger.Error("Failed to resolve role members",
			zap.String("group_id", group.String()),
			zap.String("role_id", role.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to resolve role members: %w", err)
	}
	defer rows.Close()

	var users []entity.UserID
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, fmt.Errorf("failed to scan role member: %w", err)
		}
		users = append(users, entity.UserID(user))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

// GetTemplateByName retrieves a template by its unique name
func (r *CatalogRepository) GetTemplateByName(ctx context.Context, name string) (*entity.WorkflowTemplate, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), created_at
		FROM workflow_templates
		WHERE name = ?
	`

	var tmpl entity.WorkflowTemplate
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, name).
		Scan(&tmpl.ID, &tmpl.Name, &tmpl.Description, &tmpl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow template: %w", err)
	}
	return &tmpl, nil
}

// CreateTemplate inserts a template and its stages.
// Stage positions are taken from the slice order starting at 1.
func (r *CatalogRepository) CreateTemplate(ctx context.Context, tmpl *entity.WorkflowTemplate, stages []*entity.StageTemplate) error {
	exec := sqlite.Conn(ctx, r.db)

	result, err := exec.ExecContext(ctx,
		`INSERT INTO workflow_templates (name, description) VALUES (?, ?)`,
		tmpl.Name, tmpl.Description)
	if err != nil {
		r.logger.Error("Failed to create workflow template", zap.String("name", tmpl.Name), zap.Error(err))
		return fmt.Errorf("failed to create workflow template: %w", err)
	}

	tmpl.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for i, stage := range stages {
		stage.TemplateID = tmpl.ID
		stage.Position = i + 1
		if err := r.AddStage(ctx, stage); err != nil {
			return err
		}
	}
	return nil
}

// AddStage inserts a single stage template using its Position as given
func (r *CatalogRepository) AddStage(ctx context.Context, stage *entity.StageTemplate) error {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO stage_templates (template_id, position, name, required_role) VALUES (?, ?, ?, ?)`,
		stage.TemplateID, stage.Position, stage.Name, string(stage.RequiredRole))
	if err != nil {
		r.logger.Error("Failed to create stage template",
			zap.Int64("template_id", stage.TemplateID),
			zap.Int("position", stage.Position),
			zap.Error(err))
		return fmt.Errorf("failed to create stage template: %w", err)
	}

	stage.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

// Assign binds a template to a group at an execution order
func (r *CatalogRepository) Assign(ctx context.Context, assignment *entity.WorkflowAssignment) error {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO workflow_assignments (group_id, template_id, execution_order, active) VALUES (?, ?, ?, ?)`,
		string(assignment.GroupID), assignment.TemplateID, assignment.ExecutionOrder, assignment.Active)
	if err != nil {
		r.logger.Error("Failed to create workflow assignment",
			zap.String("group_id", assignment.GroupID.String()),
			zap.Int64("template_id", assignment.TemplateID),
			zap.Int("execution_order", assignment.ExecutionOrder),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow assignment: %w", err)
	}

	assignment.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

// DeactivateAssignment stops a binding from being used for new chains
func (r *CatalogRepository) DeactivateAssignment(ctx context.Context, id int64) error {
	if _, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE workflow_assignments SET active = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to deactivate workflow assignment: %w", err)
	}
	return nil
}

// AddRoleMember grants role within group to user. Granting twice is a no-op.
func (r *CatalogRepository) AddRoleMember(ctx context.Context, group entity.GroupID, role entity.RoleID, user entity.UserID) error {
	if _, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT OR IGNORE INTO group_role_members (group_id, role_id, user_id) VALUES (?, ?, ?)`,
		string(group), string(role), string(user)); err != nil {
		r.logger.Error("Failed to add role member",
			zap.String("group_id", group.String()),
			zap.String("role_id", role.String()),
			zap.String("user_id", user.String()),
			zap.Error(err))
		return fmt.Errorf("failed to add role member: %w", err)
	}
	return nil
}

// RemoveRoleMember revokes role within group from user
func (r *CatalogRepository) RemoveRoleMember(ctx context.Context, group entity.GroupID, role entity.RoleID, user entity.UserID) error {
	if _, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM group_role_members WHERE group_id = ? AND role_id = ? AND user_id = ?`,
		string(group), string(role), string(user)); err != nil {
		return fmt.Errorf("failed to remove role member: %w", err)
	}
	return nil
}

// Verify interface compliance
var (
	_ port.StageTemplateStore = (*CatalogRepository)(nil)
	_ port.AssignmentStore    = (*CatalogRepository)(nil)
	_ port.RoleResolver       = (*CatalogRepository)(nil)
)
