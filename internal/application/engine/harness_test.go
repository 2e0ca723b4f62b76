package engine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/garyjia/transfer-approval/internal/application/dispatcher"
	"github.com/garyjia/transfer-approval/internal/application/engine"
	"github.com/garyjia/transfer-approval/internal/domain/entity"
	"github.com/garyjia/transfer-approval/internal/domain/event"
	"github.com/garyjia/transfer-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/transfer-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/transfer-approval/pkg/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testLogger records messages per level
type testLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (l *testLogger) Info(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *testLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *testLogger) Warns() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

// eventRecorder keeps every published event
type eventRecorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *eventRecorder) handle(ctx context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *eventRecorder) Types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]event.Type, 0, len(r.events))
	for _, evt := range r.events {
		types = append(types, evt.Type)
	}
	return types
}

func (r *eventRecorder) Count(t event.Type) int {
	n := 0
	for _, got := range r.Types() {
		if got == t {
			n++
		}
	}
	return n
}

func (r *eventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type harness struct {
	t           *testing.T
	ctx         context.Context
	engine      *engine.Engine
	catalog     *repository.CatalogRepository
	instances   *repository.InstanceRepository
	assignments *repository.StageAssignmentRepository
	logger      *testLogger
	events      *eventRecorder
}

func newHarness(t *testing.T, opts ...engine.Option) *harness {
	t.Helper()

	db := database.OpenTest(t)
	zl := zap.NewNop()

	h := &harness{
		t:           t,
		ctx:         context.Background(),
		catalog:     repository.NewCatalogRepository(db.DB, zl),
		instances:   repository.NewInstanceRepository(db.DB, zl),
		assignments: repository.NewStageAssignmentRepository(db.DB, zl),
		logger:      &testLogger{},
		events:      &eventRecorder{},
	}

	d := dispatcher.NewDispatcher()
	d.SubscribeAll("recorder", h.events.handle)

	opts = append([]engine.Option{engine.WithDispatcher(d)}, opts...)
	h.engine = engine.New(engine.Deps{
		Instances:   h.instances,
		Assignments: h.assignments,
		TxManager:   sqlite.NewDB(db.DB, zl),
		Workflows:   h.catalog,
		Stages:      h.catalog,
		Roles:       h.catalog,
	}, h.logger, opts...)

	return h
}

// template creates a template with one stage per role and returns its ID
func (h *harness) template(name string, roles ...entity.RoleID) int64 {
	h.t.Helper()

	stages := make([]*entity.StageTemplate, 0, len(roles))
	for _, role := range roles {
		stages = append(stages, &entity.StageTemplate{Name: "approve by " + role.String(), RequiredRole: role})
	}
	tmpl := &entity.WorkflowTemplate{Name: name}
	require.NoError(h.t, h.catalog.CreateTemplate(h.ctx, tmpl, stages))
	return tmpl.ID
}

func (h *harness) assign(group entity.GroupID, templateID int64, order int) {
	h.t.Helper()
	require.NoError(h.t, h.catalog.Assign(h.ctx, &entity.WorkflowAssignment{
		GroupID: group, TemplateID: templateID, ExecutionOrder: order, Active: true,
	}))
}

func (h *harness) grant(group entity.GroupID, role entity.RoleID, users ...string) {
	h.t.Helper()
	for _, u := range users {
		require.NoError(h.t, h.catalog.AddRoleMember(h.ctx, group, role, entity.UserID(u)))
	}
}

func (h *harness) chain(subject entity.SubjectID) *entity.ChainHandle {
	h.t.Helper()
	chain, err := h.engine.GetChain(h.ctx, subject)
	require.NoError(h.t, err)
	return chain
}

func (h *harness) active(subject entity.SubjectID) *entity.ActiveInstanceView {
	h.t.Helper()
	view, err := h.engine.GetActiveInstance(h.ctx, subject)
	require.NoError(h.t, err)
	return view
}

func (h *harness) pending(user string) []*entity.StageAssignment {
	h.t.Helper()
	rows, err := h.engine.PendingForUser(h.ctx, entity.UserID(user))
	require.NoError(h.t, err)
	return rows
}

func (h *harness) decide(instanceID int64, user, decision string) error {
	return h.engine.RecordDecision(h.ctx, instanceID, entity.UserID(user), decision)
}

func statuses(chain *entity.ChainHandle) []string {
	out := make([]string, 0, len(chain.Instances))
	for _, inst := range chain.Instances {
		out = append(out, inst.Status)
	}
	return out
}
