package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/branchwise/branchwise/internal/api"
	"github.com/branchwise/branchwise/internal/cache"
	"github.com/branchwise/branchwise/internal/content"
	"github.com/branchwise/branchwise/internal/db"
	"github.com/branchwise/branchwise/internal/kvstore"
	"github.com/branchwise/branchwise/pkg/config"
	"github.com/branchwise/branchwise/pkg/logging"
	"github.com/branchwise/branchwise/pkg/telemetry"
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
	logger.Info("Starting Branchwise API Server",
		zap.String("storage_driver", cfg.Storage.Driver))

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open content store", zap.Error(err))
	}
	defer store.Close()

	// Redis is optional; without it engagement is not throttled
	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	limiter := cache.NewLimiter(redisCache, cfg.Engagement.RateLimit, cfg.Engagement.RateWindow)
	service := content.NewService(store)

	// Create Gin router
	if strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	router := api.NewRouter(service, redisCache, limiter, api.Options{
		DefaultDepth: cfg.Lineage.DefaultDepth,
		DepthLimit:   cfg.Lineage.MaxDepthLimit,
	})
	router.SetupRoutes(engine)

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// openStore opens the configured content store backend
func openStore(cfg *config.Config) (content.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverBadger:
		return kvstore.Open(cfg.Storage.BadgerPath)
	default:
		database, err := db.New(&cfg.Database, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		if cfg.Storage.AutoMigrate {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := database.Migrate(ctx); err != nil {
				database.Close()
				return nil, err
			}
		}
		return db.NewRepository(database), nil
	}
}
