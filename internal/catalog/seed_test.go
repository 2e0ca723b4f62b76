package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/transfer-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/transfer-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/transfer-approval/pkg/database"
)

const seedYAML = `
templates:
  - name: compliance
    description: compliance review
    stages:
      - name: desk
        role: desk_officer
      - name: sign-off
        role: compliance_lead
  - name: finance
    stages:
      - role: controller
assignments:
  - group: G1
    template: compliance
    order: 1
  - group: G1
    template: finance
    order: 2
roles:
  - group: G1
    role: desk_officer
    users: [u2, u1]
  - group: G1
    role: controller
    users: [u3]
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	f, err := Load(writeSeed(t, seedYAML))
	require.NoError(t, err)

	require.Len(t, f.Templates, 2)
	assert.Equal(t, "compliance_lead", f.Templates[0].Stages[1].Role)
	require.Len(t, f.Assignments, 2)
	assert.Equal(t, 2, f.Assignments[1].Order)
	assert.Equal(t, []string{"u2", "u1"}, f.Roles[0].Users)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		file File
	}{
		{"unnamed template", File{Templates: []TemplateSpec{{Stages: []StageSpec{{Role: "r"}}}}}},
		{"duplicate template", File{Templates: []TemplateSpec{
			{Name: "a", Stages: []StageSpec{{Role: "r"}}},
			{Name: "a", Stages: []StageSpec{{Role: "r"}}},
		}}},
		{"no stages", File{Templates: []TemplateSpec{{Name: "a"}}}},
		{"stage without role", File{Templates: []TemplateSpec{{Name: "a", Stages: []StageSpec{{Name: "x"}}}}}},
		{"zero order", File{Assignments: []AssignmentSpec{{Group: "G", Template: "a"}}}},
		{"duplicate order", File{Assignments: []AssignmentSpec{
			{Group: "G", Template: "a", Order: 1},
			{Group: "G", Template: "b", Order: 1},
		}}},
		{"role without group", File{Roles: []RoleSpec{{Role: "r"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.file.Validate())
		})
	}
}

func TestSeeder_Apply(t *testing.T) {
	db := database.OpenTest(t)
	logger := zap.NewNop()
	repo := repository.NewCatalogRepository(db.DB, logger)
	seeder := NewSeeder(repo, sqlite.NewDB(db.DB, logger), logger)
	ctx := context.Background()

	f, err := Load(writeSeed(t, seedYAML))
	require.NoError(t, err)

	res, err := seeder.Apply(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, &Result{Templates: 2, Assignments: 2, RoleMembers: 3}, res)

	assignments, err := repo.GetActiveAssignments(ctx, "G1")
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.Equal(t, 1, assignments[0].ExecutionOrder)

	stages, err := repo.GetStageTemplates(ctx, assignments[0].TemplateID)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, 2, stages[1].Position)

	members, err := repo.ResolveRoleMembers(ctx, "G1", "desk_officer")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, []string{string(members[0]), string(members[1])})

	// Second run only re-applies idempotent role inserts
	res, err = seeder.Apply(ctx, f)
	require.NoError(t, err)
	assert.Zero(t, res.Templates)
	assert.Zero(t, res.Assignments)

	assignments, err = repo.GetActiveAssignments(ctx, "G1")
	require.NoError(t, err)
	assert.Len(t, assignments, 2)
}

func TestSeeder_UnknownTemplateRollsBack(t *testing.T) {
	db := database.OpenTest(t)
	logger := zap.NewNop()
	repo := repository.NewCatalogRepository(db.DB, logger)
	seeder := NewSeeder(repo, sqlite.NewDB(db.DB, logger), logger)
	ctx := context.Background()

	f := &File{
		Templates:   []TemplateSpec{{Name: "solo", Stages: []StageSpec{{Role: "r"}}}},
		Assignments: []AssignmentSpec{{Group: "G", Template: "missing", Order: 1}},
	}

	_, err := seeder.Apply(ctx, f)
	require.Error(t, err)

	tmpl, err := repo.GetTemplateByName(ctx, "solo")
	require.NoError(t, err)
	assert.Nil(t, tmpl)
}
