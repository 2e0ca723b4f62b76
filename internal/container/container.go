package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/transfer-approval/internal/application/dispatcher"
	"github.com/garyjia/transfer-approval/internal/application/engine"
	"github.com/garyjia/transfer-approval/internal/application/port"
	"github.com/garyjia/transfer-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/transfer-approval/internal/infrastructure/persistence/sqlite"
	httpapi "github.com/garyjia/transfer-approval/internal/interfaces/http"
	"github.com/garyjia/transfer-approval/internal/interfaces/websocket"
	"github.com/garyjia/transfer-approval/internal/metrics"
	"github.com/garyjia/transfer-approval/pkg/database"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *database.DB
	txManager    *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	lark *LarkBundle

	// Application
	dispatcher dispatcher.Dispatcher
	engine     *engine.Engine
	metrics    *metrics.Collector

	// Interfaces
	httpServer   *httpapi.Server
	larkListener *websocket.LarkAdapter

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Instance   *repository.InstanceRepository
	Assignment *repository.StageAssignmentRepository
	Catalog    *repository.CatalogRepository
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components.
// Components are initialized in dependency order:
// 1. Database, migrations and repositories
// 2. External clients (Lark)
// 3. Event dispatcher, subscribers and approval engine
// 4. Interfaces (HTTP server, Lark reply listener)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initExternalClients(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized")

	if err := c.initDispatcherAndEngine(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize dispatcher and engine: %w", err)
	}
	c.logger.Info("Dispatcher and approval engine initialized",
		zap.String("cascade_mode", c.engine.CascadeMode()))

	if err := c.initInterfaces(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize interfaces: %w", err)
	}
	c.logger.Info("Interfaces initialized")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.larkListener != nil {
		if err := c.larkListener.Stop(); err != nil {
			c.logger.Error("Failed to stop Lark listener", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop lark listener: %w", err))
		}
	}

	if c.httpServer != nil {
		if err := c.httpServer.Stop(); err != nil {
			c.logger.Error("Failed to stop HTTP server", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.db != nil {
		if err := c.db.Ping(); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	if c.engine != nil {
		status.Components["engine"] = ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("cascade mode: %s", c.engine.CascadeMode()),
		}
	} else {
		status.Components["engine"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("wildcard handlers: %d", len(c.dispatcher.ListHandlers(""))),
		}
	} else {
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	if c.larkListener != nil {
		status.Components["lark_listener"] = ComponentHealth{Healthy: c.larkListener.IsRunning()}
	}

	return status
}

func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.db = dbBundle.DB
	c.txManager = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.closeDatabase()
		return err
	}

	c.repositories = repos
	return nil
}

func (c *Container) initExternalClients() error {
	larkBundle, err := ProvideLarkClients(&c.config.Lark, c.logger)
	if err != nil {
		return err
	}
	c.lark = larkBundle
	return nil
}

func (c *Container) initDispatcherAndEngine() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	collector, err := ProvideSubscribers(c.dispatcher, c.lark.Messenger, c.config, c.logger)
	if err != nil {
		return err
	}
	c.metrics = collector

	eng, err := ProvideEngine(&EngineDeps{
		Repos:       c.repositories,
		TxManager:   c.txManager,
		Dispatcher:  c.dispatcher,
		CascadeMode: c.config.Engine.CascadeMode,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = eng

	return nil
}

func (c *Container) initInterfaces() error {
	server, err := ProvideHTTPServer(&HTTPDeps{
		Engine:    c.engine,
		Collector: c.metrics,
		Config:    &c.config.Server,
		Metrics:   &c.config.Metrics,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	c.httpServer = server

	c.larkListener = ProvideLarkListener(&c.config.Lark, c.engine, c.lark.Messenger, c.logger)
	return nil
}

func (c *Container) closeDatabase() {
	if c.db == nil {
		return
	}
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
	}
	c.db = nil
}

// Getters for accessing container components

// Context returns the container's lifecycle context.
func (c *Container) Context() context.Context {
	return c.ctx
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// TxManager returns the transaction manager.
func (c *Container) TxManager() port.TransactionManager {
	return c.txManager
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Engine returns the approval engine.
func (c *Container) Engine() *engine.Engine {
	return c.engine
}

// Metrics returns the metrics collector, or nil when metrics are disabled.
func (c *Container) Metrics() *metrics.Collector {
	return c.metrics
}

// Messenger returns the notification transport.
func (c *Container) Messenger() port.MessageSender {
	return c.lark.Messenger
}

// HTTPServer returns the HTTP server adapter.
func (c *Container) HTTPServer() *httpapi.Server {
	return c.httpServer
}

// LarkListener returns the reply listener, or nil when it is disabled.
func (c *Container) LarkListener() *websocket.LarkAdapter {
	return c.larkListener
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the key/value Logger interfaces of
// the dispatcher, engine and HTTP packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

// logOnlySender stands in for Lark when the integration is disabled
type logOnlySender struct {
	logger *zap.Logger
}

func (s *logOnlySender) SendText(ctx context.Context, receiveIDType, receiveID, text string) error {
	s.logger.Info("Notification (not delivered)",
		zap.String("receive_id_type", receiveIDType),
		zap.String("receive_id", receiveID),
		zap.String("text", text))
	return nil
}

var _ port.MessageSender = (*logOnlySender)(nil)
