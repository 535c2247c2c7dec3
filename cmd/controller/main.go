// Package main is the entry point for the contentplane controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contentplane/internal/app"
	"contentplane/internal/config"
	"contentplane/internal/controller"
	"contentplane/internal/controller/handlers"
	"contentplane/internal/logger"
	"contentplane/internal/observability"
	"contentplane/internal/store/postgres"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: contentplane.yaml in current directory)")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.APIToken == "" {
		log.Fatalf("api_token is required (env: API_TOKEN)")
	}

	lg := logger.New(cfg.LogLevel)

	// Setup Database
	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Run migrations if requested
	if *migrateFlag {
		lg.Info("running database migrations")
		if err := postgres.Migrate(store.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		lg.Info("migrations completed")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "contentplane-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			lg.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			lg.Error("failed to shutdown metrics", "error", err)
		}
	}()

	if err := observability.RegisterPendingJobsGauge("contentplane-controller", store, lg); err != nil {
		lg.Warn("pending jobs gauge disabled", "error", err)
	}

	components, err := app.Build(ctx, cfg, store, lg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer components.Close()

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, handlers.Deps{
		Themes:    components.Themes,
		Pipeline:  components.Pipeline,
		Scheduler: components.Scheduler,
		Publisher: components.Publisher,
		Analytics: components.Analytics,
		Store:     store,
		Logger:    lg,
	}, controller.Options{
		APIToken:              cfg.APIToken,
		GenerateRatePerMinute: cfg.GenerateRatePerMinute,
		Metrics:               metricsHandler,
	})

	go func() {
		lg.Info("controller starting", "addr", addr, "timezone", cfg.Location.String())
		if err := srv.Run(ctx); err != nil {
			lg.Error("server stopped", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down controller")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	lg.Info("server exited properly")
}
