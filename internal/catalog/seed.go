// Package catalog loads workflow templates, group assignments and role
// membership from a YAML file into the read-only catalog tables.
package catalog

import (
	"context"
	"fmt"

	"github.com/garyjia/transfer-approval/internal/application/port"
	"github.com/garyjia/transfer-approval/internal/domain/entity"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// File is the seed document layout
type File struct {
	Templates   []TemplateSpec   `mapstructure:"templates"`
	Assignments []AssignmentSpec `mapstructure:"assignments"`
	Roles       []RoleSpec       `mapstructure:"roles"`
}

// TemplateSpec lists a template's stages in execution order
type TemplateSpec struct {
	Name        string      `mapstructure:"name"`
	Description string      `mapstructure:"description"`
	Stages      []StageSpec `mapstructure:"stages"`
}

// StageSpec is one stage of a template
type StageSpec struct {
	Name string `mapstructure:"name"`
	Role string `mapstructure:"role"`
}

// AssignmentSpec binds a template to a group at an execution order
type AssignmentSpec struct {
	Group    string `mapstructure:"group"`
	Template string `mapstructure:"template"`
	Order    int    `mapstructure:"order"`
}

// RoleSpec lists the users holding a role within a group
type RoleSpec struct {
	Group string   `mapstructure:"group"`
	Role  string   `mapstructure:"role"`
	Users []string `mapstructure:"users"`
}

// Store is the catalog write surface used by the seeder
type Store interface {
	port.AssignmentStore
	GetTemplateByName(ctx context.Context, name string) (*entity.WorkflowTemplate, error)
	CreateTemplate(ctx context.Context, tmpl *entity.WorkflowTemplate, stages []*entity.StageTemplate) error
	Assign(ctx context.Context, assignment *entity.WorkflowAssignment) error
	AddRoleMember(ctx context.Context, group entity.GroupID, role entity.RoleID, user entity.UserID) error
}

// Result counts what a seed run created
type Result struct {
	Templates   int
	Assignments int
	RoleMembers int
}

// Load parses a YAML seed file
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate rejects documents the catalog would refuse or the engine could not run
func (f *File) Validate() error {
	names := make(map[string]bool, len(f.Templates))
	for _, t := range f.Templates {
		if t.Name == "" {
			return fmt.Errorf("template name is required")
		}
		if names[t.Name] {
			return fmt.Errorf("template %q is defined twice", t.Name)
		}
		names[t.Name] = true

		if len(t.Stages) == 0 {
			return fmt.Errorf("template %q has no stages", t.Name)
		}
		for i, s := range t.Stages {
			if s.Role == "" {
				return fmt.Errorf("template %q stage %d has no role", t.Name, i+1)
			}
		}
	}

	orders := make(map[string]map[int]bool)
	for _, a := range f.Assignments {
		if a.Group == "" || a.Template == "" {
			return fmt.Errorf("assignment requires group and template")
		}
		if a.Order <= 0 {
			return fmt.Errorf("assignment of %q to %q needs a positive order", a.Template, a.Group)
		}
		if orders[a.Group] == nil {
			orders[a.Group] = make(map[int]bool)
		}
		if orders[a.Group][a.Order] {
			return fmt.Errorf("group %q uses order %d twice", a.Group, a.Order)
		}
		orders[a.Group][a.Order] = true
	}

	for _, r := range f.Roles {
		if r.Group == "" || r.Role == "" {
			return fmt.Errorf("role entry requires group and role")
		}
	}
	return nil
}

// Seeder applies a seed file inside one transaction
type Seeder struct {
	store     Store
	txManager port.TransactionManager
	logger    *zap.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(store Store, txManager port.TransactionManager, logger *zap.Logger) *Seeder {
	return &Seeder{
		store:     store,
		txManager: txManager,
		logger:    logger,
	}
}

// Apply creates missing templates, assignments and role members.
// Existing templates (by name) and active assignments are left untouched.
func (s *Seeder) Apply(ctx context.Context, f *File) (*Result, error) {
	res := &Result{}

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		templateIDs := make(map[string]int64, len(f.Templates))

		for _, t := range f.Templates {
			existing, err := s.store.GetTemplateByName(ctx, t.Name)
			if err != nil {
				return err
			}
			if existing != nil {
				s.logger.Info("Template already present", zap.String("name", t.Name), zap.Int64("template_id", existing.ID))
				templateIDs[t.Name] = existing.ID
				continue
			}

			tmpl := &entity.WorkflowTemplate{Name: t.Name, Description: t.Description}
			stages := make([]*entity.StageTemplate, 0, len(t.Stages))
			for _, st := range t.Stages {
				stages = append(stages, &entity.StageTemplate{Name: st.Name, RequiredRole: entity.RoleID(st.Role)})
			}
			if err := s.store.CreateTemplate(ctx, tmpl, stages); err != nil {
				return err
			}
			templateIDs[t.Name] = tmpl.ID
			res.Templates++
		}

		for _, a := range f.Assignments {
			templateID, err := s.resolveTemplate(ctx, templateIDs, a.Template)
			if err != nil {
				return err
			}

			active, err := s.store.GetActiveAssignments(ctx, entity.GroupID(a.Group))
			if err != nil {
				return err
			}
			if assigned(active, templateID, a.Order) {
				continue
			}

			if err := s.store.Assign(ctx, &entity.WorkflowAssignment{
				GroupID:        entity.GroupID(a.Group),
				TemplateID:     templateID,
				ExecutionOrder: a.Order,
				Active:         true,
			}); err != nil {
				return err
			}
			res.Assignments++
		}

		for _, r := range f.Roles {
			for _, user := range r.Users {
				if err := s.store.AddRoleMember(ctx, entity.GroupID(r.Group), entity.RoleID(r.Role), entity.UserID(user)); err != nil {
					return err
				}
				res.RoleMembers++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed catalog: %w", err)
	}

	s.logger.Info("Catalog seeded",
		zap.Int("templates", res.Templates),
		zap.Int("assignments", res.Assignments),
		zap.Int("role_members", res.RoleMembers))
	return res, nil
}

func (s *Seeder) resolveTemplate(ctx context.Context, known map[string]int64, name string) (int64, error) {
	if id, ok := known[name]; ok {
		return id, nil
	}
	tmpl, err := s.store.GetTemplateByName(ctx, name)
	if err != nil {
		return 0, err
	}
	if tmpl == nil {
		return 0, fmt.Errorf("assignment references unknown template %q", name)
	}
	known[name] = tmpl.ID
	return tmpl.ID, nil
}

func assigned(active []*entity.WorkflowAssignment, templateID int64, order int) bool {
	for _, a := range active {
		if a.TemplateID == templateID && a.ExecutionOrder == order {
			return true
		}
	}
	return false
}
