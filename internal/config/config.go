package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// EngineConfig holds approval engine behaviour switches
type EngineConfig struct {
	CascadeMode string `mapstructure:"cascade_mode"` // keep_pending or cancel
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	AppID          string        `mapstructure:"app_id"`
	AppSecret      string        `mapstructure:"app_secret"`
	BaseURL        string        `mapstructure:"base_url"`
	APITimeout     time.Duration `mapstructure:"api_timeout"`
	ReceiveIDType  string        `mapstructure:"receive_id_type"`
	OperatorChatID string        `mapstructure:"operator_chat_id"`
	ListenReplies  bool          `mapstructure:"listen_replies"`
}

// MetricsConfig holds Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads an optional .env file next to the working directory, then the YAML
// file at configPath (optional when empty), then environment overrides.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads path into the process environment when it exists.
// Variables already set in the environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(filepath.Clean(path)); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/approvals.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("engine.cascade_mode", "keep_pending")

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.base_url", "https://open.larksuite.com")
	v.SetDefault("lark.api_timeout", 30*time.Second)
	v.SetDefault("lark.receive_id_type", "user_id")
	v.SetDefault("lark.listen_replies", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("engine.cascade_mode", "ENGINE_CASCADE_MODE")

	// Sensitive credentials from environment
	_ = v.BindEnv("lark.enabled", "LARK_ENABLED")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.operator_chat_id", "LARK_OPERATOR_CHAT_ID")

	_ = v.BindEnv("logger.level", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Engine.CascadeMode {
	case "keep_pending", "cancel":
	default:
		return fmt.Errorf("engine.cascade_mode must be keep_pending or cancel, got %q", c.Engine.CascadeMode)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
	}

	return nil
}
