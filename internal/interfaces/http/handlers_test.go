package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/transfer-approval/internal/application/engine"
	"github.com/garyjia/transfer-approval/internal/audit"
	"github.com/garyjia/transfer-approval/internal/domain/entity"
)

type fakeEngine struct {
	createChainFunc       func(ctx context.Context, subject entity.SubjectID, group entity.GroupID) (*entity.ChainHandle, error)
	recordDecisionFunc    func(ctx context.Context, instanceID int64, user entity.UserID, decision string) error
	pendingForUserFunc    func(ctx context.Context, user entity.UserID) ([]*entity.StageAssignment, error)
	getActiveInstanceFunc func(ctx context.Context, subject entity.SubjectID) (*entity.ActiveInstanceView, error)
	getChainFunc          func(ctx context.Context, subject entity.SubjectID) (*entity.ChainHandle, error)
	getDecisionsFunc      func(ctx context.Context, subject entity.SubjectID) ([]*entity.StageAssignment, error)
}

func (f *fakeEngine) CreateChain(ctx context.Context, subject entity.SubjectID, group entity.GroupID) (*entity.ChainHandle, error) {
	return f.createChainFunc(ctx, subject, group)
}

func (f *fakeEngine) RecordDecision(ctx context.Context, instanceID int64, user entity.UserID, decision string) error {
	return f.recordDecisionFunc(ctx, instanceID, user, decision)
}

func (f *fakeEngine) PendingForUser(ctx context.Context, user entity.UserID) ([]*entity.StageAssignment, error) {
	return f.pendingForUserFunc(ctx, user)
}

func (f *fakeEngine) GetActiveInstance(ctx context.Context, subject entity.SubjectID) (*entity.ActiveInstanceView, error) {
	return f.getActiveInstanceFunc(ctx, subject)
}

func (f *fakeEngine) GetChain(ctx context.Context, subject entity.SubjectID) (*entity.ChainHandle, error) {
	return f.getChainFunc(ctx, subject)
}

func (f *fakeEngine) GetDecisions(ctx context.Context, subject entity.SubjectID) ([]*entity.StageAssignment, error) {
	return f.getDecisionsFunc(ctx, subject)
}

type fakeExporter struct {
	err error
}

func (f *fakeExporter) Export(ctx context.Context, subject entity.SubjectID, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "workbook:"+subject.String())
	return err
}

type fakeObserver struct {
	routes []string
}

func (f *fakeObserver) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	f.routes = append(f.routes, fmt.Sprintf("%s %s %d", method, route, status))
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{}) {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

func newTestServer(eng *fakeEngine, opts ...Option) *Server {
	return NewServer(DefaultServerConfig(), eng, nopLogger{}, opts...)
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealthCheck(t *testing.T) {
	rec, resp := do(t, newTestServer(&fakeEngine{}), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestCreateChain(t *testing.T) {
	eng := &fakeEngine{
		createChainFunc: func(ctx context.Context, subject entity.SubjectID, group entity.GroupID) (*entity.ChainHandle, error) {
			assert.Equal(t, entity.SubjectID("T-1"), subject)
			assert.Equal(t, entity.GroupID("G"), group)
			return entity.NewChainHandle(subject, group, []*entity.WorkflowInstance{
				{ID: 1, SubjectID: subject, GroupID: group, ExecutionOrder: 1, Status: entity.StatusActive},
			}), nil
		},
	}

	rec, resp := do(t, newTestServer(eng), http.MethodPost, "/api/v1/chains", `{"subject_id":"T-1","group_id":"G"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, string(entity.ChainStatusInProgress), data["status"])
	assert.Len(t, data["instances"], 1)
}

func TestCreateChain_NoWorkflow(t *testing.T) {
	eng := &fakeEngine{
		createChainFunc: func(ctx context.Context, subject entity.SubjectID, group entity.GroupID) (*entity.ChainHandle, error) {
			return nil, engine.ErrNoWorkflowAssigned
		},
	}

	rec, resp := do(t, newTestServer(eng), http.MethodPost, "/api/v1/chains", `{"subject_id":"T-1","group_id":"G"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, string(entity.ChainStatusNoWorkflow), data["status"])
	assert.Empty(t, data["instances"])
}

func TestCreateChain_BadRequest(t *testing.T) {
	rec, resp := do(t, newTestServer(&fakeEngine{}), http.MethodPost, "/api/v1/chains", `{"subject_id":"T-1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
}

func TestRecordDecision_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"accepted", nil, http.StatusOK},
		{"not eligible", engine.ErrNotEligible, http.StatusForbidden},
		{"already decided", fmt.Errorf("instance 1: %w", engine.ErrAlreadyDecided), http.StatusConflict},
		{"invalid decision", engine.ErrInvalidDecision, http.StatusBadRequest},
		{"configuration", &engine.ConfigurationError{TemplateID: 3, Reason: "no stages"}, http.StatusUnprocessableEntity},
		{"invariant", &engine.InvariantViolation{Op: "openStage", Detail: "skip"}, http.StatusInternalServerError},
		{"storage", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{
				recordDecisionFunc: func(ctx context.Context, instanceID int64, user entity.UserID, decision string) error {
					assert.Equal(t, int64(7), instanceID)
					assert.Equal(t, entity.UserID("u1"), user)
					assert.Equal(t, entity.DecisionApproved, decision)
					return tt.err
				},
			}

			rec, resp := do(t, newTestServer(eng), http.MethodPost, "/api/v1/instances/7/decisions",
				`{"user_id":"u1","decision":"APPROVED"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.err == nil, resp.Success)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", resp.Error)
			}
		})
	}
}

func TestRecordDecision_InvalidID(t *testing.T) {
	rec, _ := do(t, newTestServer(&fakeEngine{}), http.MethodPost, "/api/v1/instances/abc/decisions",
		`{"user_id":"u1","decision":"APPROVED"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetActiveInstance(t *testing.T) {
	eng := &fakeEngine{
		getActiveInstanceFunc: func(ctx context.Context, subject entity.SubjectID) (*entity.ActiveInstanceView, error) {
			if subject == "none" {
				return nil, nil
			}
			return &entity.ActiveInstanceView{
				Instance:         &entity.WorkflowInstance{ID: 4, SubjectID: subject},
				StagePosition:    2,
				StageCount:       3,
				RequiredRole:     "finance",
				PendingApprovers: entity.UserIDs("u2", "u3"),
			}, nil
		},
	}
	s := newTestServer(eng)

	rec, resp := do(t, s, http.MethodGet, "/api/v1/subjects/T-1/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["stage_position"])
	assert.Equal(t, "finance", data["required_role"])

	rec, resp = do(t, s, http.MethodGet, "/api/v1/subjects/none/active", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestPendingForUser(t *testing.T) {
	eng := &fakeEngine{
		pendingForUserFunc: func(ctx context.Context, user entity.UserID) ([]*entity.StageAssignment, error) {
			if user == "idle" {
				return nil, nil
			}
			return []*entity.StageAssignment{
				{ID: 1, InstanceID: 4, StagePosition: 1, UserID: user, Decision: entity.DecisionPending, SubjectID: "T-1"},
			}, nil
		},
	}
	s := newTestServer(eng)

	rec, resp := do(t, s, http.MethodGet, "/api/v1/users/u1/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)

	rec, resp = do(t, s, http.MethodGet, "/api/v1/users/idle/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, resp.Data)
}

func TestGetChainAndDecisions(t *testing.T) {
	eng := &fakeEngine{
		getChainFunc: func(ctx context.Context, subject entity.SubjectID) (*entity.ChainHandle, error) {
			return entity.NewChainHandle(subject, "", nil), nil
		},
		getDecisionsFunc: func(ctx context.Context, subject entity.SubjectID) ([]*entity.StageAssignment, error) {
			return nil, errors.New("boom")
		},
	}
	s := newTestServer(eng)

	rec, resp := do(t, s, http.MethodGet, "/api/v1/subjects/T-1/chain", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, string(entity.ChainStatusNoWorkflow), data["status"])

	rec, _ = do(t, s, http.MethodGet, "/api/v1/subjects/T-1/decisions", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExportAudit(t *testing.T) {
	s := newTestServer(&fakeEngine{}, WithAuditExporter(&fakeExporter{}))

	rec, _ := do(t, s, http.MethodGet, "/api/v1/subjects/T-1/audit.xlsx", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "T-1-audit.xlsx")
	assert.Equal(t, "workbook:T-1", rec.Body.String())
}

func TestExportAudit_NoChain(t *testing.T) {
	s := newTestServer(&fakeEngine{}, WithAuditExporter(&fakeExporter{err: audit.ErrNoChain}))

	rec, resp := do(t, s, http.MethodGet, "/api/v1/subjects/T-9/audit.xlsx", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestMetricsRoute(t *testing.T) {
	observer := &fakeObserver{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "requests 1\n")
	})
	s := newTestServer(&fakeEngine{}, WithMetrics(observer, metrics))

	rec, _ := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "requests 1\n", rec.Body.String())

	assert.Equal(t, []string{"GET /health 200", "GET /metrics 200"}, observer.routes)
}
