package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SweepRunner runs a sweep by name.
type SweepRunner interface {
	RunSweep(ctx context.Context, name string) (*SweepSummary, error)
}

// SweeperConfig sets the interval of each sweep.
type SweeperConfig struct {
	Generation time.Duration // default: 1h
	Engagement time.Duration // default: 30m
	Weekly     time.Duration // default: 7 days
	Cleanup    time.Duration // default: 24h
	Timeout    time.Duration // per run (default: 15m)
}

// Sweeper runs every sweep on its own ticker. A slow or failing sweep never
// delays another one.
type Sweeper struct {
	runner    SweepRunner
	intervals map[string]time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	Done chan struct{}
}

// NewSweeper creates a sweeper.
func NewSweeper(runner SweepRunner, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if cfg.Generation <= 0 {
		cfg.Generation = time.Hour
	}
	if cfg.Engagement <= 0 {
		cfg.Engagement = 30 * time.Minute
	}
	if cfg.Weekly <= 0 {
		cfg.Weekly = 7 * 24 * time.Hour
	}
	if cfg.Cleanup <= 0 {
		cfg.Cleanup = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		runner: runner,
		intervals: map[string]time.Duration{
			SweepGeneration: cfg.Generation,
			SweepEngagement: cfg.Engagement,
			SweepWeekly:     cfg.Weekly,
			SweepCleanup:    cfg.Cleanup,
		},
		timeout: cfg.Timeout,
		logger:  logger,
		Done:    make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled and every running sweep has returned.
func (s *Sweeper) Run(ctx context.Context) {
	defer close(s.Done)

	var wg sync.WaitGroup
	for _, name := range SweepNames {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, name, s.intervals[name])
		}()
	}
	wg.Wait()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, name string, interval time.Duration) {
	s.logger.Info("sweep loop started", "sweep", name, "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, name)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context, name string) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if _, err := s.runner.RunSweep(runCtx, name); err != nil {
		s.logger.Error("sweep failed", "sweep", name, "duration", time.Since(start), "error", err)
		return
	}
	s.logger.Debug("sweep run", "sweep", name, "duration", time.Since(start))
}
