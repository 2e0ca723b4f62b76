package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/garyjia/transfer-approval/internal/application/dispatcher"
	"github.com/garyjia/transfer-approval/internal/domain/event"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publish(t *testing.T, d dispatcher.Dispatcher, eventType event.Type, payload map[string]interface{}) {
	t.Helper()
	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(eventType, "S1", 1, payload)))
}

func TestCollector_CountsEngineEvents(t *testing.T) {
	c := NewCollector()
	d := dispatcher.NewDispatcher()
	c.Register(d)

	publish(t, d, event.TypeInstanceActivated, nil)
	publish(t, d, event.TypeStageStalled, nil)
	publish(t, d, event.TypeDecisionRecorded, map[string]interface{}{event.KeyDecision: "APPROVED"})
	publish(t, d, event.TypeInstanceApproved, nil)
	publish(t, d, event.TypeInstanceActivated, nil)
	publish(t, d, event.TypeDecisionRecorded, map[string]interface{}{event.KeyDecision: "REJECTED"})
	publish(t, d, event.TypeInstanceRejected, nil)
	publish(t, d, event.TypeInstanceCancelled, nil)
	publish(t, d, event.TypeChainHalted, nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.events.WithLabelValues("decision.recorded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.decisions.WithLabelValues("APPROVED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.decisions.WithLabelValues("REJECTED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.instancesDone.WithLabelValues("CANCELLED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.chainsDone.WithLabelValues("halted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.stalledStages))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.activeInstances))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.ObserveHTTP(http.MethodPost, "/api/v1/chains", http.StatusCreated, 15*time.Millisecond)
	require.NoError(t, c.HandleEvent(context.Background(), event.NewEvent(event.TypeChainCompleted, "S1", 1, nil)))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `transfer_approval_chains_finished_total{outcome="completed"} 1`)
	assert.Contains(t, body, `transfer_approval_http_request_duration_seconds_count{method="POST",route="/api/v1/chains",status="201"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
