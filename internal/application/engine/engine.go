// Package engine runs sequential approval chains: it creates the ordered workflow
// instances of a subject, opens stages one at a time, records approver decisions
// and activates the next workflow when one finishes.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/transfer-approval/internal/application/dispatcher"
	"github.com/garyjia/transfer-approval/internal/application/port"
	"github.com/garyjia/transfer-approval/internal/domain/entity"
	"github.com/garyjia/transfer-approval/internal/domain/event"
	"github.com/google/uuid"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Deps groups the engine's collaborators
type Deps struct {
	Instances   port.InstanceRepository
	Assignments port.StageAssignmentRepository
	TxManager   port.TransactionManager

	// Read-only catalog
	Workflows port.AssignmentStore
	Stages    port.StageTemplateStore
	Roles     port.RoleResolver
}

// Engine implements the approval chain operations
type Engine struct {
	instances   port.InstanceRepository
	assignments port.StageAssignmentRepository
	txManager   port.TransactionManager
	workflows   port.AssignmentStore
	stages      port.StageTemplateStore
	roles       port.RoleResolver
	logger      Logger

	dispatcher  dispatcher.Dispatcher
	now         func() time.Time
	cascadeMode string
}

// Option configures the engine
type Option func(*Engine)

// WithDispatcher sets the dispatcher that receives events after each commit
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithCascadeMode selects what happens to PENDING instances after a rejection.
// Unknown modes fall back to entity.CascadeModeKeepPending.
func WithCascadeMode(mode string) Option {
	return func(e *Engine) {
		if mode == entity.CascadeModeCancel {
			e.cascadeMode = mode
		}
	}
}

// New creates a new engine
func New(deps Deps, logger Logger, opts ...Option) *Engine {
	e := &Engine{
		instances:   deps.Instances,
		assignments: deps.Assignments,
		txManager:   deps.TxManager,
		workflows:   deps.Workflows,
		stages:      deps.Stages,
		roles:       deps.Roles,
		logger:      logger,
		now:         time.Now,
		cascadeMode: entity.CascadeModeKeepPending,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CascadeMode returns the configured cascade mode
func (e *Engine) CascadeMode() string {
	return e.cascadeMode
}

// run carries the events produced by one engine call until its transaction commits
type run struct {
	op            string
	correlationID string
	events        []*event.Event
}

func (r *run) emit(eventType event.Type, inst *entity.WorkflowInstance, payload map[string]interface{}) {
	r.events = append(r.events, event.NewEventWithCorrelation(
		eventType, inst.SubjectID.String(), inst.ID, payload, r.correlationID))
}

// execute runs fn in a single writer transaction and publishes its events after commit
func (e *Engine) execute(ctx context.Context, op string, fn func(ctx context.Context, r *run) error) error {
	r := &run{op: op, correlationID: uuid.NewString()}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return fn(txCtx, r)
	})
	if err != nil {
		var iv *InvariantViolation
		if errors.As(err, &iv) {
			e.logger.Error("Invariant violation, transaction rolled back",
				"op", iv.Op,
				"detail", iv.Detail,
				"correlation_id", r.correlationID,
			)
		}
		return err
	}

	e.publish(ctx, r)
	return nil
}

func (e *Engine) publish(ctx context.Context, r *run) {
	if e.dispatcher == nil {
		return
	}

	for _, evt := range r.events {
		if err := e.dispatcher.Dispatch(ctx, evt); err != nil {
			e.logger.Error("Failed to publish event",
				"op", r.op,
				"event_type", evt.Type,
				"event_id", evt.ID,
				"error", err,
			)
		}
	}
}
