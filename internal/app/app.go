// Package app wires the pipeline components from configuration. Both the
// controller and the worker build the same graph.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"contentplane/internal/analytics"
	"contentplane/internal/config"
	"contentplane/internal/content"
	"contentplane/internal/generator"
	"contentplane/internal/pipeline"
	"contentplane/internal/platform"
	"contentplane/internal/publisher"
	"contentplane/internal/scheduler"
	"contentplane/internal/store/postgres"
	"contentplane/internal/theme"

	goredis "github.com/redis/go-redis/v9"
)

// Components is the wired pipeline.
type Components struct {
	Store     *postgres.Store
	Themes    *theme.Registry
	Engine    *content.Engine
	Scheduler *scheduler.Scheduler
	Publisher *publisher.Manager
	Analytics *analytics.Tracker
	Pipeline  *pipeline.Orchestrator

	redis *goredis.Client
}

// Build wires every component on top of an open store.
func Build(ctx context.Context, cfg *config.Config, st *postgres.Store, logger *slog.Logger) (*Components, error) {
	themes, err := theme.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load themes: %w", err)
	}

	c := &Components{Store: st, Themes: themes}

	limiter, err := c.newLimiter(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	ig := platform.NewInstagram(platform.InstagramConfig{
		APIURL:      cfg.InstagramAPIURL,
		AccessToken: cfg.InstagramAccessToken,
		AccountID:   cfg.InstagramAccountID,
	}, limiter)

	gen := generator.NewOpenAI(generator.Config{
		APIURL:            cfg.OpenAIAPIURL,
		APIKey:            cfg.OpenAIAPIKey,
		Model:             cfg.OpenAIModel,
		RequestsPerMinute: cfg.OpenAIRequestsPerMinute,
		Timeout:           cfg.GenerationTimeout,
	})

	c.Engine = content.NewEngine(themes, gen, st, content.Config{
		MaxRetries:  retries(cfg.GenerationMaxRetries),
		BaseBackoff: cfg.GenerationBaseBackoff,
		MaxBackoff:  cfg.GenerationMaxBackoff,
		CallTimeout: cfg.GenerationTimeout,
	}, logger)

	c.Scheduler = scheduler.New(st, themes, scheduler.Config{
		Location:    cfg.Location,
		Slots:       cfg.PostSlots,
		MinInterval: cfg.MinPostInterval,
		DailyCap:    cfg.DailyPostCap,
		HorizonDays: cfg.ScheduleHorizonDays,
	}, logger)

	c.Publisher = publisher.NewManager(st, ig, publisher.Config{
		MaxAttempts:    cfg.PublishMaxAttempts,
		BaseBackoff:    cfg.PublishBaseBackoff,
		MaxBackoff:     cfg.PublishMaxBackoff,
		PublishTimeout: cfg.PublishTimeout,
	}, logger)

	c.Analytics = analytics.NewTracker(st, ig, analytics.Config{
		Lookback:    cfg.AnalyticsLookback,
		Concurrency: cfg.AnalyticsConcurrency,
	}, logger)

	c.Pipeline = pipeline.New(themes, c.Engine, c.Scheduler, c.Analytics, c.Publisher, st, pipeline.Config{
		Location:            cfg.Location,
		DraftRetention:      cfg.DraftRetention,
		VisibilityTimeout:   cfg.VisibilityTimeout,
		GenerationGrace:     cfg.GenerationGrace,
		MaxDailyGenerations: cfg.MaxDailyGenerations,
	}, logger)

	return c, nil
}

// Close releases the connections Build opened. The store is owned by the caller.
func (c *Components) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

// newLimiter shares the publish budget across workers through Redis when configured.
func (c *Components) newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (platform.Limiter, error) {
	if cfg.RedisURL == "" {
		return platform.NewLocalLimiter(cfg.PublishRequestsPerHour), nil
	}

	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis_url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.redis = client

	logger.Info("publish budget shared through redis", "per_hour", cfg.PublishRequestsPerHour)
	return platform.NewRedisLimiter(client, cfg.InstagramAccountID, cfg.PublishRequestsPerHour), nil
}

// retries maps the configured retry count onto the engine's convention, where
// zero means the default and a negative value disables retries.
func retries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}
