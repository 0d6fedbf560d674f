// Command migrate creates or updates the postgres schema and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/branchwise/branchwise/internal/db"
	"github.com/branchwise/branchwise/pkg/config"
	"github.com/branchwise/branchwise/pkg/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	if cfg.Storage.Driver != config.DriverPostgres {
		logger.Info("Nothing to migrate", zap.String("storage_driver", cfg.Storage.Driver))
		return
	}

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	if err := database.Migrate(ctx); err != nil {
		logger.Error("Migration failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Migration finished", zap.Duration("took", time.Since(start)))
}
