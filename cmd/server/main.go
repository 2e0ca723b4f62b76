package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/garyjia/transfer-approval/internal/config"
	"github.com/garyjia/transfer-approval/internal/container"
	"github.com/garyjia/transfer-approval/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "transfer-approval",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting transfer approval service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.String("cascade_mode", cfg.Engine.CascadeMode),
		zap.Bool("lark_enabled", cfg.Lark.Enabled))

	if err := run(cfg, logger); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	logger.Info("Service exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.HTTPServer().Start(gctx)
	})

	if listener := c.LarkListener(); listener != nil {
		g.Go(func() error {
			err := listener.Start(gctx)
			if err != nil && !errors.Is(gctx.Err(), context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
