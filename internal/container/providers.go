package container

import (
	"fmt"

	"github.com/garyjia/transfer-approval/internal/application/dispatcher"
	"github.com/garyjia/transfer-approval/internal/application/engine"
	"github.com/garyjia/transfer-approval/internal/application/port"
	"github.com/garyjia/transfer-approval/internal/audit"
	infraLark "github.com/garyjia/transfer-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/transfer-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/transfer-approval/internal/infrastructure/persistence/sqlite"
	httpapi "github.com/garyjia/transfer-approval/internal/interfaces/http"
	"github.com/garyjia/transfer-approval/internal/interfaces/websocket"
	"github.com/garyjia/transfer-approval/internal/metrics"
	"github.com/garyjia/transfer-approval/internal/notification"
	"github.com/garyjia/transfer-approval/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// LarkBundle holds all Lark-related components.
type LarkBundle struct {
	Client    *infraLark.SDKClient
	Messenger port.MessageSender
}

// ProvideDatabase opens the database, applies pending migrations and
// wraps the connection in the context-carried transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(cfg.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Instance:   repository.NewInstanceRepository(db.DB, logger),
		Assignment: repository.NewStageAssignmentRepository(db.DB, logger),
		Catalog:    repository.NewCatalogRepository(db.DB, logger),
	}, nil
}

// ProvideLarkClients creates the Lark SDK client and messenger.
// When Lark is disabled the messenger only logs.
func ProvideLarkClients(cfg *LarkConfig, logger *zap.Logger) (*LarkBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if !cfg.Enabled {
		logger.Info("Lark integration disabled, notifications are logged only")
		return &LarkBundle{Messenger: &logOnlySender{logger: logger}}, nil
	}

	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:      cfg.AppID,
		AppSecret:  cfg.AppSecret,
		BaseURL:    cfg.BaseURL,
		APITimeout: cfg.APITimeout,
	}, logger)

	return &LarkBundle{
		Client:    client,
		Messenger: infraLark.NewMessenger(client, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}),
	), nil
}

// EngineDeps holds dependencies required for creating the approval engine.
type EngineDeps struct {
	Repos       *RepositoryBundle
	TxManager   port.TransactionManager
	Dispatcher  dispatcher.Dispatcher
	CascadeMode string
	Logger      *zap.Logger
}

// ProvideEngine creates the approval engine.
func ProvideEngine(deps *EngineDeps) (*engine.Engine, error) {
	if deps == nil {
		return nil, fmt.Errorf("engine dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []engine.Option{engine.WithCascadeMode(deps.CascadeMode)}
	if deps.Dispatcher != nil {
		opts = append(opts, engine.WithDispatcher(deps.Dispatcher))
	}

	return engine.New(engine.Deps{
		Instances:   deps.Repos.Instance,
		Assignments: deps.Repos.Assignment,
		TxManager:   deps.TxManager,
		Workflows:   deps.Repos.Catalog,
		Stages:      deps.Repos.Catalog,
		Roles:       deps.Repos.Catalog,
	}, &zapLoggerAdapter{logger: deps.Logger}, opts...), nil
}

// ProvideSubscribers registers the notifier and, when enabled, the metrics
// collector on the dispatcher.
func ProvideSubscribers(d dispatcher.Dispatcher, sender port.MessageSender, cfg *Config, logger *zap.Logger) (*metrics.Collector, error) {
	if d == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("message sender is required")
	}

	notifier := notification.NewStageNotifier(sender, notification.Config{
		ReceiveIDType:  cfg.Lark.ReceiveIDType,
		OperatorChatID: cfg.Lark.OperatorChatID,
	}, logger)
	notifier.Register(d)

	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	collector := metrics.NewCollector()
	collector.Register(d)
	return collector, nil
}

// HTTPDeps holds dependencies required for the HTTP server.
type HTTPDeps struct {
	Engine    *engine.Engine
	Collector *metrics.Collector
	Config    *ServerConfig
	Metrics   *MetricsConfig
	Logger    *zap.Logger
}

// ProvideHTTPServer creates the HTTP adapter with the audit export route.
func ProvideHTTPServer(deps *HTTPDeps) (*httpapi.Server, error) {
	if deps == nil || deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serverCfg := httpapi.DefaultServerConfig()
	if deps.Config != nil {
		if deps.Config.Host != "" {
			serverCfg.Host = deps.Config.Host
		}
		if deps.Config.Port > 0 {
			serverCfg.Port = deps.Config.Port
		}
		if deps.Config.ReadTimeout > 0 {
			serverCfg.ReadTimeout = deps.Config.ReadTimeout
		}
		if deps.Config.WriteTimeout > 0 {
			serverCfg.WriteTimeout = deps.Config.WriteTimeout
		}
		if deps.Config.ShutdownTimeout > 0 {
			serverCfg.ShutdownTimeout = deps.Config.ShutdownTimeout
		}
	}
	if deps.Metrics != nil && deps.Metrics.Path != "" {
		serverCfg.MetricsPath = deps.Metrics.Path
	}

	opts := []httpapi.Option{
		httpapi.WithAuditExporter(audit.NewExporter(deps.Engine, deps.Logger)),
	}
	if deps.Collector != nil {
		opts = append(opts, httpapi.WithMetrics(deps.Collector, deps.Collector.Handler()))
	}

	return httpapi.NewServer(serverCfg, deps.Engine, &zapLoggerAdapter{logger: deps.Logger}, opts...), nil
}

// ProvideLarkListener creates the WebSocket listener for approver replies.
// It returns nil when Lark or reply listening is disabled.
func ProvideLarkListener(cfg *LarkConfig, recorder websocket.DecisionRecorder, replier port.MessageSender, logger *zap.Logger) *websocket.LarkAdapter {
	if cfg == nil || !cfg.Enabled || !cfg.ListenReplies {
		return nil
	}
	return websocket.NewLarkAdapter(websocket.LarkAdapterConfig{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
	}, recorder, replier, logger)
}
