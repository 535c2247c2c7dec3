// Package config loads settings from an optional YAML file, .env files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// Bearer token required by the controller API
	APIToken string

	// Generation requests allowed per minute on the controller
	GenerateRatePerMinute int

	LogLevel     string
	OTELEndpoint string

	// Time zone of themes, posting slots and "today"
	Location *time.Location

	// Generative provider
	OpenAIAPIURL            string
	OpenAIAPIKey            string
	OpenAIModel             string
	OpenAIRequestsPerMinute int
	GenerationMaxRetries    int
	GenerationBaseBackoff   time.Duration
	GenerationMaxBackoff    time.Duration
	GenerationTimeout       time.Duration

	// Publishing provider
	InstagramAPIURL        string
	InstagramAccessToken   string
	InstagramAccountID     string
	PublishRequestsPerHour int
	RedisURL               string

	// Scheduling
	PostSlots           []time.Duration
	MinPostInterval     time.Duration
	DailyPostCap        int
	ScheduleHorizonDays int

	// Publishing retries
	PublishMaxAttempts int
	PublishBaseBackoff time.Duration
	PublishMaxBackoff  time.Duration
	PublishTimeout     time.Duration

	// Analytics
	AnalyticsLookback    time.Duration
	AnalyticsConcurrency int

	// Sweeps
	GenerationSweepInterval time.Duration
	EngagementSweepInterval time.Duration
	WeeklySweepInterval     time.Duration
	CleanupSweepInterval    time.Duration
	SweepTimeout            time.Duration
	DraftRetention          time.Duration
	VisibilityTimeout       time.Duration
	GenerationGrace         time.Duration
	MaxDailyGenerations     int

	// Worker-specific configuration
	WorkerID           string
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerMaxBackoff   time.Duration
}

// envBindings maps config keys to environment variables.
var envBindings = map[string]string{
	"database_url":              "DATABASE_URL",
	"http_port":                 "PORT",
	"api_token":                 "API_TOKEN",
	"generate_rate_per_minute":  "GENERATE_RATE_PER_MINUTE",
	"log_level":                 "LOG_LEVEL",
	"otel_endpoint":             "OTEL_EXPORTER_OTLP_ENDPOINT",
	"timezone":                  "TIMEZONE",
	"openai_api_url":            "OPENAI_API_URL",
	"openai_api_key":            "OPENAI_API_KEY",
	"openai_model":              "OPENAI_MODEL",
	"openai_requests_per_min":   "OPENAI_REQUESTS_PER_MINUTE",
	"generation_max_retries":    "GENERATION_MAX_RETRIES",
	"generation_base_backoff":   "GENERATION_BASE_BACKOFF",
	"generation_max_backoff":    "GENERATION_MAX_BACKOFF",
	"generation_timeout":        "GENERATION_TIMEOUT",
	"instagram_api_url":         "INSTAGRAM_API_URL",
	"instagram_access_token":    "INSTAGRAM_ACCESS_TOKEN",
	"instagram_account_id":      "INSTAGRAM_ACCOUNT_ID",
	"publish_requests_per_hour": "PUBLISH_REQUESTS_PER_HOUR",
	"redis_url":                 "REDIS_URL",
	"post_slots":                "POST_SLOTS",
	"min_post_interval":         "MIN_POST_INTERVAL",
	"daily_post_cap":            "DAILY_POST_CAP",
	"schedule_horizon_days":     "SCHEDULE_HORIZON_DAYS",
	"publish_max_attempts":      "PUBLISH_MAX_ATTEMPTS",
	"publish_base_backoff":      "PUBLISH_BASE_BACKOFF",
	"publish_max_backoff":       "PUBLISH_MAX_BACKOFF",
	"publish_timeout":           "PUBLISH_TIMEOUT",
	"analytics_lookback":        "ANALYTICS_LOOKBACK",
	"analytics_concurrency":     "ANALYTICS_CONCURRENCY",
	"generation_sweep_interval": "GENERATION_SWEEP_INTERVAL",
	"engagement_sweep_interval": "ENGAGEMENT_SWEEP_INTERVAL",
	"weekly_sweep_interval":     "WEEKLY_SWEEP_INTERVAL",
	"cleanup_sweep_interval":    "CLEANUP_SWEEP_INTERVAL",
	"sweep_timeout":             "SWEEP_TIMEOUT",
	"draft_retention":           "DRAFT_RETENTION",
	"visibility_timeout":        "VISIBILITY_TIMEOUT",
	"generation_grace":          "GENERATION_GRACE",
	"max_daily_generations":     "MAX_DAILY_GENERATIONS",
	"worker_id":                 "WORKER_ID",
	"worker_concurrency":        "WORKER_CONCURRENCY",
	"worker_poll_interval":      "WORKER_POLL_INTERVAL",
	"worker_max_backoff":        "WORKER_MAX_BACKOFF",
}

func setDefaults() {
	viper.SetDefault("http_port", 6161)
	viper.SetDefault("generate_rate_per_minute", 10)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("otel_endpoint", "localhost:4317")
	viper.SetDefault("timezone", "UTC")

	viper.SetDefault("openai_api_url", "https://api.openai.com/v1")
	viper.SetDefault("openai_model", "gpt-4")
	viper.SetDefault("openai_requests_per_min", 60)
	viper.SetDefault("generation_max_retries", 3)
	viper.SetDefault("generation_base_backoff", 2*time.Second)
	viper.SetDefault("generation_max_backoff", 30*time.Second)
	viper.SetDefault("generation_timeout", 60*time.Second)

	viper.SetDefault("instagram_api_url", "https://graph.facebook.com/v18.0")
	viper.SetDefault("publish_requests_per_hour", 200)

	viper.SetDefault("post_slots", []string{"09:00", "12:00", "15:00", "18:00", "20:00"})
	viper.SetDefault("min_post_interval", 2*time.Hour)
	viper.SetDefault("daily_post_cap", 3)
	viper.SetDefault("schedule_horizon_days", 14)

	viper.SetDefault("publish_max_attempts", 5)
	viper.SetDefault("publish_base_backoff", 10*time.Second)
	viper.SetDefault("publish_max_backoff", 30*time.Minute)
	viper.SetDefault("publish_timeout", 2*time.Minute)

	viper.SetDefault("analytics_lookback", 30*24*time.Hour)
	viper.SetDefault("analytics_concurrency", 4)

	viper.SetDefault("generation_sweep_interval", time.Hour)
	viper.SetDefault("engagement_sweep_interval", 30*time.Minute)
	viper.SetDefault("weekly_sweep_interval", 7*24*time.Hour)
	viper.SetDefault("cleanup_sweep_interval", 24*time.Hour)
	viper.SetDefault("sweep_timeout", 15*time.Minute)
	viper.SetDefault("draft_retention", 30*24*time.Hour)
	viper.SetDefault("visibility_timeout", 15*time.Minute)
	viper.SetDefault("generation_grace", 15*time.Minute)
	viper.SetDefault("max_daily_generations", 3)

	viper.SetDefault("worker_concurrency", 1)
	viper.SetDefault("worker_poll_interval", time.Second)
	viper.SetDefault("worker_max_backoff", 30*time.Second)
}

// LoadEnv loads .env and .env.local from the working directory when present.
// Variables already set in the environment win.
func LoadEnv() error {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// DefaultConfigFile is read from the working directory when no path is given.
const DefaultConfigFile = "contentplane.yaml"

// Load reads configuration. Precedence: environment, config file, defaults.
// An empty path reads DefaultConfigFile when it exists.
func Load(path string) (*Config, error) {
	if err := LoadEnv(); err != nil {
		return nil, err
	}

	setDefaults()
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL:           viper.GetString("database_url"),
		HTTPPort:              viper.GetInt("http_port"),
		APIToken:              viper.GetString("api_token"),
		GenerateRatePerMinute: viper.GetInt("generate_rate_per_minute"),
		LogLevel:              viper.GetString("log_level"),
		OTELEndpoint:          viper.GetString("otel_endpoint"),

		OpenAIAPIURL:            viper.GetString("openai_api_url"),
		OpenAIAPIKey:            viper.GetString("openai_api_key"),
		OpenAIModel:             viper.GetString("openai_model"),
		OpenAIRequestsPerMinute: viper.GetInt("openai_requests_per_min"),
		GenerationMaxRetries:    viper.GetInt("generation_max_retries"),
		GenerationBaseBackoff:   viper.GetDuration("generation_base_backoff"),
		GenerationMaxBackoff:    viper.GetDuration("generation_max_backoff"),
		GenerationTimeout:       viper.GetDuration("generation_timeout"),

		InstagramAPIURL:        viper.GetString("instagram_api_url"),
		InstagramAccessToken:   viper.GetString("instagram_access_token"),
		InstagramAccountID:     viper.GetString("instagram_account_id"),
		PublishRequestsPerHour: viper.GetInt("publish_requests_per_hour"),
		RedisURL:               viper.GetString("redis_url"),

		MinPostInterval:     viper.GetDuration("min_post_interval"),
		DailyPostCap:        viper.GetInt("daily_post_cap"),
		ScheduleHorizonDays: viper.GetInt("schedule_horizon_days"),

		PublishMaxAttempts: viper.GetInt("publish_max_attempts"),
		PublishBaseBackoff: viper.GetDuration("publish_base_backoff"),
		PublishMaxBackoff:  viper.GetDuration("publish_max_backoff"),
		PublishTimeout:     viper.GetDuration("publish_timeout"),

		AnalyticsLookback:    viper.GetDuration("analytics_lookback"),
		AnalyticsConcurrency: viper.GetInt("analytics_concurrency"),

		GenerationSweepInterval: viper.GetDuration("generation_sweep_interval"),
		EngagementSweepInterval: viper.GetDuration("engagement_sweep_interval"),
		WeeklySweepInterval:     viper.GetDuration("weekly_sweep_interval"),
		CleanupSweepInterval:    viper.GetDuration("cleanup_sweep_interval"),
		SweepTimeout:            viper.GetDuration("sweep_timeout"),
		DraftRetention:          viper.GetDuration("draft_retention"),
		VisibilityTimeout:       viper.GetDuration("visibility_timeout"),
		GenerationGrace:         viper.GetDuration("generation_grace"),
		MaxDailyGenerations:     viper.GetInt("max_daily_generations"),

		WorkerID:           viper.GetString("worker_id"),
		WorkerConcurrency:  viper.GetInt("worker_concurrency"),
		WorkerPollInterval: viper.GetDuration("worker_poll_interval"),
		WorkerMaxBackoff:   viper.GetDuration("worker_max_backoff"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database_url is required (env: DATABASE_URL)")
	}

	loc, err := time.LoadLocation(viper.GetString("timezone"))
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	cfg.Location = loc

	slots, err := ParseSlots(viper.GetStringSlice("post_slots"))
	if err != nil {
		return nil, err
	}
	cfg.PostSlots = slots

	if cfg.DailyPostCap < 1 {
		return nil, fmt.Errorf("daily_post_cap must be at least 1, got %d", cfg.DailyPostCap)
	}
	if cfg.PublishMaxAttempts < 1 {
		return nil, fmt.Errorf("publish_max_attempts must be at least 1, got %d", cfg.PublishMaxAttempts)
	}
	if cfg.MaxDailyGenerations < 1 {
		return nil, fmt.Errorf("max_daily_generations must be at least 1, got %d", cfg.MaxDailyGenerations)
	}
	if cfg.GenerationMaxRetries < 0 {
		return nil, fmt.Errorf("generation_max_retries must not be negative, got %d", cfg.GenerationMaxRetries)
	}

	return cfg, nil
}

// ParseSlots parses "HH:MM" posting times. Entries may also be comma separated.
func ParseSlots(raw []string) ([]time.Duration, error) {
	var slots []time.Duration
	for _, entry := range raw {
		for _, s := range strings.Split(entry, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			t, err := time.Parse("15:04", s)
			if err != nil {
				return nil, fmt.Errorf("invalid post slot %q: want HH:MM", s)
			}
			slots = append(slots, time.Duration(t.Hour())*time.Hour+time.Duration(t.Minute())*time.Minute)
		}
	}
	if len(slots) == 0 {
		return nil, errors.New("post_slots must list at least one HH:MM time")
	}
	return slots, nil
}
