// Package main is the entry point for the contentplane worker.
// The worker publishes due jobs and runs the periodic sweeps.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"contentplane/internal/app"
	"contentplane/internal/config"
	"contentplane/internal/logger"
	"contentplane/internal/observability"
	"contentplane/internal/pipeline"
	"contentplane/internal/store/postgres"
	"contentplane/internal/worker"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: contentplane.yaml in current directory)")
	metricsAddr := flag.String("metrics-addr", ":6162", "Address of the worker metrics server")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "contentplane-worker", cfg.OTELEndpoint)
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

	components, err := app.Build(ctx, cfg, store, lg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer components.Close()

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID, _ = os.Hostname()
	}

	agent := worker.New(store, components.Publisher, worker.AgentConfig{
		ID:           workerID,
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		MaxBackoff:   cfg.WorkerMaxBackoff,
		JobTimeout:   cfg.PublishTimeout + cfg.PublishTimeout/2,
	}, lg)

	sweeper := pipeline.NewSweeper(components.Pipeline, pipeline.SweeperConfig{
		Generation: cfg.GenerationSweepInterval,
		Engagement: cfg.EngagementSweepInterval,
		Weekly:     cfg.WeeklySweepInterval,
		Cleanup:    cfg.CleanupSweepInterval,
		Timeout:    cfg.SweepTimeout,
	}, lg)

	lg.Info("worker started", "concurrency", cfg.WorkerConcurrency, "timezone", cfg.Location.String())
	go agent.Run(ctx)
	go sweeper.Run(ctx)

	// Start a dedicated metrics server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		lg.Info("worker metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			lg.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down worker")
	cancel()

	<-agent.Done()
	<-sweeper.Done
}
