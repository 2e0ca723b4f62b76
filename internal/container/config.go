// Package container provides dependency injection and lifecycle management
// for the transfer approval service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/transfer-approval/internal/domain/entity"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database DatabaseConfig
	Engine   EngineConfig
	Lark     LarkConfig
	Server   ServerConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits for the SQLite write lock
	BusyTimeout time.Duration

	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string
}

// EngineConfig holds approval engine settings.
type EngineConfig struct {
	// CascadeMode is keep_pending or cancel
	CascadeMode string
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// Enabled turns on Lark notifications
	Enabled bool

	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string

	// BaseURL is the open platform endpoint
	BaseURL string

	// APITimeout is the per-request timeout
	APITimeout time.Duration

	// ReceiveIDType is how approver user IDs are addressed (user_id, open_id, union_id)
	ReceiveIDType string

	// OperatorChatID receives stalled-stage and halted-chain alerts
	OperatorChatID string

	// ListenReplies starts the WebSocket listener that records decisions sent to the bot
	ListenReplies bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	switch c.Engine.CascadeMode {
	case "", entity.CascadeModeKeepPending, entity.CascadeModeCancel:
	default:
		return fmt.Errorf("unknown cascade mode %q", c.Engine.CascadeMode)
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark app ID is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark app secret is required")
		}
	}

	if c.Server.Port <= 0 {
		return fmt.Errorf("server port must be positive")
	}

	return nil
}
