package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string // debug, info, warn, error; empty means info
	OutputPath string // stdout, stderr, or file path
	Format     string // json or console
	Service    string // attached to every entry when set
}

// NewLogger creates a new structured logger
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	writeSyncer, err := openOutput(cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json", "":
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Service != "" {
		opts = append(opts, zap.Fields(zap.String("service", cfg.Service)))
	}

	return zap.New(zapcore.NewCore(encoder, writeSyncer, level), opts...), nil
}

func openOutput(path string) (zapcore.WriteSyncer, error) {
	switch path {
	case "stdout", "":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return zapcore.AddSync(file), nil
}

// NewDevelopmentLogger creates a console logger at debug level for command-line tools
func NewDevelopmentLogger() (*zap.Logger, error) {
	return NewLogger(LoggerConfig{
		Level:      "debug",
		OutputPath: "stderr",
		Format:     "console",
	})
}
