package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/transfer-approval/internal/domain/event"
)

// Dispatcher routes engine events to registered subscribers
type Dispatcher interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler with a name for debugging
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// SubscribeAll registers a handler that receives every event type
	SubscribeAll(name string, handler Handler)

	// SubscribeAsync registers a named handler that Dispatch runs in the background.
	// Its context outlives the caller's cancellation and its errors are only logged.
	SubscribeAsync(eventType event.Type, name string, handler Handler)

	// Unsubscribe removes a handler by name; an empty event type targets SubscribeAll handlers
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs every matching synchronous handler in registration order and
	// hands asynchronous handlers to background goroutines.
	// All synchronous handlers run even if one fails; the failures are joined.
	Dispatch(ctx context.Context, evt *event.Event) error

	// ListHandlers returns registered handlers for an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close shuts down the dispatcher and waits for async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	wildcard []HandlerInfo
	logger   Logger

	// closeMu orders wg.Add against Close so Wait never races a new goroutine
	closeMu sync.RWMutex
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Subscribe registers a handler with an auto-generated name
func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.RLock()
	name := fmt.Sprintf("%s-handler-%d", eventType, len(d.handlers[eventType]))
	d.mu.RUnlock()

	d.SubscribeNamed(eventType, name, handler)
}

// SubscribeNamed registers a handler with a specific name
func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.subscribe(HandlerInfo{Name: name, EventType: eventType, Handler: handler})
}

// SubscribeAsync registers a handler that runs outside the dispatching goroutine
func (d *eventDispatcher) SubscribeAsync(eventType event.Type, name string, handler Handler) {
	d.subscribe(HandlerInfo{Name: name, EventType: eventType, Handler: handler, Async: true})
}

func (d *eventDispatcher) subscribe(info HandlerInfo) {
	d.mu.Lock()
	d.handlers[info.EventType] = append(d.handlers[info.EventType], info)
	d.mu.Unlock()

	d.logInfo("Handler registered",
		"event_type", info.EventType,
		"handler_name", info.Name,
		"async", info.Async,
	)
}

// SubscribeAll registers a handler for every event type
func (d *eventDispatcher) SubscribeAll(name string, handler Handler) {
	d.mu.Lock()
	d.wildcard = append(d.wildcard, HandlerInfo{Name: name, Handler: handler})
	d.mu.Unlock()

	d.logInfo("Handler registered", "event_type", "*", "handler_name", name)
}

// Unsubscribe removes a handler by name
func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	if eventType == "" {
		d.wildcard = without(d.wildcard, name)
	} else {
		d.handlers[eventType] = without(d.handlers[eventType], name)
	}
	d.mu.Unlock()

	d.logInfo("Handler unregistered", "event_type", eventType, "handler_name", name)
}

func without(handlers []HandlerInfo, name string) []HandlerInfo {
	filtered := make([]HandlerInfo, 0, len(handlers))
	for _, h := range handlers {
		if h.Name != name {
			filtered = append(filtered, h)
		}
	}
	return filtered
}

// matching returns typed handlers followed by wildcard handlers
func (d *eventDispatcher) matching(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]HandlerInfo, 0, len(d.handlers[eventType])+len(d.wildcard))
	out = append(out, d.handlers[eventType]...)
	return append(out, d.wildcard...)
}

// Dispatch sends the event to all matching handlers
func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}

	var errs []error
	for _, info := range d.matching(evt.Type) {
		if info.Async {
			d.runAsync(context.WithoutCancel(ctx), evt, info)
			continue
		}
		if err := d.safeExecute(ctx, evt, info); err != nil {
			d.logError("Handler error",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", info.Name,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("handler %s failed: %w", info.Name, err))
		}
	}

	return errors.Join(errs...)
}

// runAsync executes one handler in a goroutine tracked by Close
func (d *eventDispatcher) runAsync(ctx context.Context, evt *event.Event, info HandlerInfo) {
	d.closeMu.RLock()
	if d.closed.Load() {
		d.closeMu.RUnlock()
		d.logError("Dropped async handler, dispatcher is closed",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"handler_name", info.Name,
		)
		return
	}
	d.wg.Add(1)
	d.closeMu.RUnlock()

	go func() {
		defer d.wg.Done()

		if err := d.safeExecute(ctx, evt, info); err != nil {
			d.logError("Async handler error",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", info.Name,
				"error", err,
			)
		}
	}()
}

// ListHandlers returns registered handlers for an event type without their functions
func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	source := d.handlers[eventType]
	if eventType == "" {
		source = d.wildcard
	}

	result := make([]HandlerInfo, len(source))
	for i, h := range source {
		result[i] = HandlerInfo{
			Name:        h.Name,
			EventType:   h.EventType,
			Description: h.Description,
			Async:       h.Async,
		}
	}
	return result
}

// Close shuts down the dispatcher and waits for async handlers to complete
func (d *eventDispatcher) Close() error {
	d.closeMu.Lock()
	swapped := d.closed.CompareAndSwap(false, true)
	d.closeMu.Unlock()
	if !swapped {
		return fmt.Errorf("dispatcher already closed")
	}

	d.logInfo("Closing dispatcher, waiting for async handlers")
	d.wg.Wait()
	d.logInfo("Dispatcher closed")
	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			d.logError("Handler panic recovered",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", info.Name,
				"panic", r,
			)
		}
	}()

	return info.Handler(ctx, evt)
}

func (d *eventDispatcher) logInfo(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

func (d *eventDispatcher) logError(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, keysAndValues...)
	}
}
