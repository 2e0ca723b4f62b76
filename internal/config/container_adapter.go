package config

import (
	"github.com/garyjia/transfer-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Engine: container.EngineConfig{
			CascadeMode: c.Engine.CascadeMode,
		},
		Lark: container.LarkConfig{
			Enabled:        c.Lark.Enabled,
			AppID:          c.Lark.AppID,
			AppSecret:      c.Lark.AppSecret,
			BaseURL:        c.Lark.BaseURL,
			APITimeout:     c.Lark.APITimeout,
			ReceiveIDType:  c.Lark.ReceiveIDType,
			OperatorChatID: c.Lark.OperatorChatID,
			ListenReplies:  c.Lark.ListenReplies,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Metrics: container.MetricsConfig{
			Enabled: c.Metrics.Enabled,
			Path:    c.Metrics.Path,
		},
	}
}
