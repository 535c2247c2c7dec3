// Package analytics records engagement snapshots of published posts.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"contentplane/internal/platform"
	"contentplane/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence the tracker needs.
type Store interface {
	ListPostsSince(ctx context.Context, since time.Time) ([]store.PublishedPost, error)
	GetPost(ctx context.Context, postRef string) (*store.PublishedPost, error)
	GetPostByArtifact(ctx context.Context, artifactID uuid.UUID) (*store.PublishedPost, error)
	AddSnapshot(ctx context.Context, snapshot *store.EngagementSnapshot) error
	ListSnapshots(ctx context.Context, postRef string) ([]store.EngagementSnapshot, error)
}

// Config tunes the engagement sweep.
type Config struct {
	Lookback    time.Duration // posts younger than this are polled (default: 30 days)
	Concurrency int           // parallel provider reads (default: 4)
	PollTimeout time.Duration // per provider read (default: 30s)
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Polled   int `json:"polled"`
	Recorded int `json:"recorded"`
	Failed   int `json:"failed"`
}

// ArtifactReport is the engagement history of an artifact's post.
type ArtifactReport struct {
	Post      store.PublishedPost
	Snapshots []store.EngagementSnapshot
}

// Latest returns the newest snapshot, or nil before the first poll.
func (r *ArtifactReport) Latest() *store.EngagementSnapshot {
	if len(r.Snapshots) == 0 {
		return nil
	}
	return &r.Snapshots[len(r.Snapshots)-1]
}

// Tracker polls the platform for engagement metrics.
type Tracker struct {
	store    Store
	insights platform.InsightsReader
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	snapshots metric.Int64Counter
}

// NewTracker creates a tracker.
func NewTracker(st Store, insights platform.InsightsReader, cfg Config, logger *slog.Logger) *Tracker {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 30 * 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	snapshots, err := otel.Meter("contentplane/analytics").Int64Counter("contentplane.analytics.polls",
		metric.WithDescription("Engagement polls, by result"))
	if err != nil {
		logger.Warn("failed to register analytics polls counter", "error", err)
	}

	return &Tracker{
		store:     st,
		insights:  insights,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		snapshots: snapshots,
	}
}

// Poll reads the current metrics of a post and appends one snapshot.
// A provider failure records nothing and leaves the post untouched.
func (t *Tracker) Poll(ctx context.Context, post store.PublishedPost) (*store.EngagementSnapshot, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.cfg.PollTimeout)
	defer cancel()

	m, err := t.insights.Insights(callCtx, post.PostRef)
	if err != nil {
		t.record(ctx, "failed")
		t.logger.Warn("engagement poll failed", "post_ref", post.PostRef, "error", err)
		return nil, fmt.Errorf("poll %s: %w", post.PostRef, err)
	}

	snap := &store.EngagementSnapshot{
		ID:         uuid.New(),
		PostRef:    post.PostRef,
		CapturedAt: t.now().UTC(),
		Likes:      m.Likes,
		Comments:   m.Comments,
		Reach:      m.Reach,
	}
	if err := t.store.AddSnapshot(ctx, snap); err != nil {
		t.record(ctx, "failed")
		return nil, fmt.Errorf("failed to record snapshot for %s: %w", post.PostRef, err)
	}
	t.record(ctx, "recorded")
	return snap, nil
}

// PollRef polls a post by its platform reference.
func (t *Tracker) PollRef(ctx context.Context, postRef string) (*store.EngagementSnapshot, error) {
	post, err := t.store.GetPost(ctx, postRef)
	if err != nil {
		return nil, err
	}
	return t.Poll(ctx, *post)
}

// Sweep polls every post published within the lookback window. Failures of
// single posts are counted and logged; only listing the posts can fail the sweep.
func (t *Tracker) Sweep(ctx context.Context) (*SweepResult, error) {
	since := t.now().Add(-t.cfg.Lookback)
	posts, err := t.store.ListPostsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts since %s: %w", since.Format(time.RFC3339), err)
	}

	var recorded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Concurrency)
	for _, post := range posts {
		g.Go(func() error {
			if _, err := t.Poll(gctx, post); err != nil {
				failed.Add(1)
				return nil
			}
			recorded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := &SweepResult{Polled: len(posts), Recorded: int(recorded.Load()), Failed: int(failed.Load())}
	t.logger.Info("engagement sweep finished", "polled", res.Polled, "recorded", res.Recorded, "failed", res.Failed)
	return res, nil
}

// Snapshots returns the engagement history of a post, oldest first.
func (t *Tracker) Snapshots(ctx context.Context, postRef string) ([]store.EngagementSnapshot, error) {
	if _, err := t.store.GetPost(ctx, postRef); err != nil {
		return nil, err
	}
	return t.store.ListSnapshots(ctx, postRef)
}

// ArtifactAnalytics returns the post of an artifact with its engagement history.
func (t *Tracker) ArtifactAnalytics(ctx context.Context, artifactID uuid.UUID) (*ArtifactReport, error) {
	post, err := t.store.GetPostByArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	snaps, err := t.store.ListSnapshots(ctx, post.PostRef)
	if err != nil {
		return nil, err
	}
	return &ArtifactReport{Post: *post, Snapshots: snaps}, nil
}

// AccountInsights reads the account metrics from the platform. Nothing is stored.
func (t *Tracker) AccountInsights(ctx context.Context) (*platform.AccountMetrics, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.cfg.PollTimeout)
	defer cancel()

	m, err := t.insights.AccountInsights(callCtx)
	if err != nil {
		t.record(ctx, "account_failed")
		return nil, fmt.Errorf("account insights: %w", err)
	}
	t.record(ctx, "account")
	return m, nil
}

func (t *Tracker) record(ctx context.Context, result string) {
	if t.snapshots != nil {
		t.snapshots.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}
