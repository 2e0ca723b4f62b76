// Package metrics exposes Prometheus collectors fed from engine events
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/garyjia/transfer-approval/internal/application/dispatcher"
	"github.com/garyjia/transfer-approval/internal/domain/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "transfer_approval"

// Collector owns a private registry so tests and multiple servers do not collide
type Collector struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	instancesDone   *prometheus.CounterVec
	chainsDone      *prometheus.CounterVec
	stalledStages   prometheus.Counter
	activeInstances prometheus.Gauge
	httpDuration    *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them with a fresh registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Engine events published, by type",
		}, []string{"type"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Stage-settling decisions, by outcome",
		}, []string{"decision"}),
		instancesDone: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_finished_total",
			Help:      "Workflow instances that reached a terminal status",
		}, []string{"status"}),
		chainsDone: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chains_finished_total",
			Help:      "Approval chains that completed or halted",
		}, []string{"outcome"}),
		stalledStages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stalled_stages_total",
			Help:      "Stages opened with no eligible approver",
		}),
		activeInstances: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_instances",
			Help:      "Workflow instances activated and not yet finished since process start",
		}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Register subscribes the collector to every engine event
func (c *Collector) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll("metrics", c.HandleEvent)
}

// HandleEvent updates the counters for one event
func (c *Collector) HandleEvent(ctx context.Context, evt *event.Event) error {
	c.events.WithLabelValues(evt.Type.String()).Inc()

	switch evt.Type {
	case event.TypeDecisionRecorded:
		c.decisions.WithLabelValues(evt.GetPayloadString(event.KeyDecision)).Inc()
	case event.TypeInstanceActivated:
		c.activeInstances.Inc()
	case event.TypeInstanceApproved:
		c.activeInstances.Dec()
		c.instancesDone.WithLabelValues("APPROVED").Inc()
	case event.TypeInstanceRejected:
		c.activeInstances.Dec()
		c.instancesDone.WithLabelValues("REJECTED").Inc()
	case event.TypeInstanceCancelled:
		c.instancesDone.WithLabelValues("CANCELLED").Inc()
	case event.TypeStageStalled:
		c.stalledStages.Inc()
	case event.TypeChainCompleted:
		c.chainsDone.WithLabelValues("completed").Inc()
	case event.TypeChainHalted:
		c.chainsDone.WithLabelValues("halted").Inc()
	}
	return nil
}

// ObserveHTTP records one served request
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
