package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/garyjia/transfer-approval/internal/catalog"
	"github.com/garyjia/transfer-approval/internal/config"
	"github.com/garyjia/transfer-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/transfer-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/transfer-approval/pkg/database"
	"github.com/garyjia/transfer-approval/pkg/utils"
	"go.uber.org/zap"
)

// Loads workflow templates, group assignments and role members from a YAML
// file into the service database. Safe to run repeatedly.
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML configuration file")
	seedPath := flag.String("file", "configs/catalog.example.yaml", "catalog seed file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewDevelopmentLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, *seedPath, logger); err != nil {
		logger.Error("Catalog seed failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, seedPath string, logger *zap.Logger) error {
	seed, err := catalog.Load(seedPath)
	if err != nil {
		return err
	}

	db, err := database.New(database.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.NewMigrator(db, logger).RunMigrations(""); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	seeder := catalog.NewSeeder(
		repository.NewCatalogRepository(db.DB, logger),
		sqlite.NewDB(db.DB, logger),
		logger,
	)
	_, err = seeder.Apply(context.Background(), seed)
	return err
}
