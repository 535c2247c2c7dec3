// Package pipeline wires generation, scheduling and analytics into the daily
// and weekly content flows, and runs the periodic sweeps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"contentplane/internal/analytics"
	"contentplane/internal/content"
	"contentplane/internal/store"
	"contentplane/internal/theme"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// Generator produces artifacts.
type Generator interface {
	Generate(ctx context.Context, req content.Request) (*store.Artifact, error)
}

// Scheduler turns drafts into publish jobs.
type Scheduler interface {
	Schedule(ctx context.Context, artifactID uuid.UUID, earliest time.Time) (*store.PublishJob, error)
}

// EngagementTracker runs the analytics sweep.
type EngagementTracker interface {
	Sweep(ctx context.Context) (*analytics.SweepResult, error)
}

// JobAbandoner settles in-flight jobs that were never finished. It returns the
// post when the job turned out to be published.
type JobAbandoner interface {
	Abandon(ctx context.Context, job *store.PublishJob) (*store.PublishedPost, error)
}

// Store is the persistence the flows and sweeps need.
type Store interface {
	store.GenerationStore
	ListArtifacts(ctx context.Context, filter store.ArtifactFilter) ([]store.Artifact, error)
	ExpireDrafts(ctx context.Context, createdBefore time.Time) (int64, error)
	AbandonedJobs(ctx context.Context, claimedBefore time.Time) ([]store.PublishJob, error)
}

// ErrGenerationClaimed is returned for a day whose content another run produced or is producing.
var ErrGenerationClaimed = errors.New("generation already claimed for this day")

// Config tunes the flows and sweeps.
type Config struct {
	Location            *time.Location // defines "today" (default: UTC)
	WeeklyConcurrency   int            // days generated in parallel (default: 4)
	DraftRetention      time.Duration  // drafts older than this expire (default: 30 days)
	VisibilityTimeout   time.Duration  // in-flight jobs claimed longer ago are abandoned (default: 15m)
	GenerationGrace     time.Duration  // drafts younger than this belong to a running flow (default: 15m)
	MaxDailyGenerations int            // generation runs per theme and day (default: 3)
}

// Outcome is the result of generating and scheduling one artifact.
// Artifact is set whenever one was persisted, including failed ones.
type Outcome struct {
	Weekday  time.Weekday
	ThemeID  string
	Artifact *store.Artifact
	Job      *store.PublishJob
	Err      error
}

// Orchestrator runs the content pipeline.
type Orchestrator struct {
	themes    *theme.Registry
	engine    Generator
	scheduler Scheduler
	tracker   EngagementTracker
	abandoner JobAbandoner
	store     Store
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	sweepRuns metric.Int64Counter
}

// New creates an orchestrator.
func New(themes *theme.Registry, engine Generator, scheduler Scheduler, tracker EngagementTracker, abandoner JobAbandoner, st Store, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.WeeklyConcurrency <= 0 {
		cfg.WeeklyConcurrency = 4
	}
	if cfg.DraftRetention <= 0 {
		cfg.DraftRetention = 30 * 24 * time.Hour
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 15 * time.Minute
	}
	if cfg.GenerationGrace <= 0 {
		cfg.GenerationGrace = 15 * time.Minute
	}
	if cfg.MaxDailyGenerations <= 0 {
		cfg.MaxDailyGenerations = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	sweepRuns, err := otel.Meter("contentplane/pipeline").Int64Counter("contentplane.pipeline.sweep_runs",
		metric.WithDescription("Sweep runs, by sweep and result"))
	if err != nil {
		logger.Warn("failed to register sweep runs counter", "error", err)
	}
	return &Orchestrator{
		themes:    themes,
		engine:    engine,
		scheduler: scheduler,
		tracker:   tracker,
		abandoner: abandoner,
		store:     st,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		sweepRuns: sweepRuns,
	}
}

// GenerateDaily generates and schedules one artifact for today's theme, even
// when another run already produced today's content.
func (o *Orchestrator) GenerateDaily(ctx context.Context) (*Outcome, error) {
	return o.daily(ctx, true)
}

// daily generates today's artifact. Unless forced it yields to any other run
// holding today's claim and returns ErrGenerationClaimed.
func (o *Orchestrator) daily(ctx context.Context, force bool) (*Outcome, error) {
	now := o.now().In(o.cfg.Location)
	th := o.themes.Resolve(now.Weekday())
	out := o.run(ctx, th, content.Request{ThemeID: th.ID, NotBefore: now}, o.claim(th, now, force))
	return out, out.Err
}

// GenerateCustom generates and schedules one artifact for an explicit theme.
// It takes no generation claim.
func (o *Orchestrator) GenerateCustom(ctx context.Context, themeID, topic string, contentType store.ContentType) (*Outcome, error) {
	th, err := o.themes.ResolveByID(themeID)
	if err != nil {
		return nil, err
	}
	req := content.Request{ThemeID: th.ID, Topic: topic, ContentType: contentType, NotBefore: o.now()}
	out := o.run(ctx, th, req, nil)
	return out, out.Err
}

// GenerateWeekly generates one artifact per theme, each scheduled no earlier than
// the next occurrence of its weekday. Days fail independently; outcomes are
// returned Monday first. A day already claimed by another run fails with
// ErrGenerationClaimed.
func (o *Orchestrator) GenerateWeekly(ctx context.Context) []Outcome {
	now := o.now().In(o.cfg.Location)
	outcomes := make([]Outcome, len(theme.Week))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.WeeklyConcurrency)
	for i, day := range theme.Week {
		th := o.themes.Resolve(day)
		earliest := nextOccurrence(now, day)
		g.Go(func() error {
			req := content.Request{ThemeID: th.ID, NotBefore: earliest}
			outcomes[i] = *o.run(gctx, th, req, o.claim(th, earliest, false))
			return nil
		})
	}
	_ = g.Wait()

	failed, skipped := 0, 0
	for _, out := range outcomes {
		switch {
		case errors.Is(out.Err, ErrGenerationClaimed):
			skipped++
		case out.Err != nil:
			failed++
		}
	}
	o.logger.Info("weekly batch finished", "days", len(outcomes), "failed", failed, "skipped", skipped)
	return outcomes
}

// claim builds the generation claim of a theme for the day of earliest.
func (o *Orchestrator) claim(th theme.Theme, earliest time.Time, force bool) *store.GenerationClaim {
	return &store.GenerationClaim{
		ThemeID:     th.ID,
		Day:         earliest,
		StaleBefore: o.now().Add(-o.cfg.GenerationGrace),
		MaxAttempts: o.cfg.MaxDailyGenerations,
		Force:       force,
	}
}

// run generates under the claim, when given, and schedules the draft no
// earlier than req.NotBefore.
func (o *Orchestrator) run(ctx context.Context, th theme.Theme, req content.Request, claim *store.GenerationClaim) *Outcome {
	out := &Outcome{Weekday: th.Weekday, ThemeID: th.ID}
	log := o.logger.With("theme_id", th.ID)

	if claim != nil {
		ok, err := o.store.ClaimGeneration(ctx, *claim)
		if err != nil {
			out.Err = err
			return out
		}
		if !ok {
			log.Info("generation skipped, day already claimed", "day", claim.Day.Format(time.DateOnly))
			out.Err = ErrGenerationClaimed
			return out
		}
	}

	artifact, err := o.engine.Generate(ctx, req)
	out.Artifact = artifact
	if claim != nil {
		o.finishClaim(ctx, claim, artifact == nil || content.IsRetryable(err))
	}
	if err != nil {
		log.Warn("generation failed", "error", err)
		out.Err = err
		return out
	}

	job, err := o.scheduler.Schedule(ctx, artifact.ID, req.NotBefore)
	if err != nil {
		// The draft stays and is picked up by the generation sweep.
		log.Warn("scheduling failed", "artifact_id", artifact.ID, "error", err)
		out.Err = err
		return out
	}
	artifact.Status = store.ArtifactStatusScheduled
	out.Job = job
	return out
}

func (o *Orchestrator) finishClaim(ctx context.Context, claim *store.GenerationClaim, retryable bool) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.FinishGeneration(fctx, claim.ThemeID, claim.Day, retryable); err != nil {
		o.logger.Error("failed to finish generation claim", "theme_id", claim.ThemeID, "day", claim.Day.Format(time.DateOnly), "error", err)
	}
}

// nextOccurrence returns now when now falls on day, otherwise midnight of the next such day.
func nextOccurrence(now time.Time, day time.Weekday) time.Time {
	delta := (int(day) - int(now.Weekday()) + 7) % 7
	if delta == 0 {
		return now
	}
	d := now.AddDate(0, 0, delta)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
}

// Sweep names.
const (
	SweepGeneration = "generation"
	SweepEngagement = "engagement"
	SweepWeekly     = "weekly"
	SweepCleanup    = "cleanup"
)

// ErrUnknownSweep is returned by RunSweep for names it does not know.
var ErrUnknownSweep = errors.New("unknown sweep")

// SweepNames lists every sweep.
var SweepNames = []string{SweepGeneration, SweepEngagement, SweepWeekly, SweepCleanup}

// SweepSummary reports what one sweep run did.
type SweepSummary struct {
	Name       string         `json:"name"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Counts     map[string]int `json:"counts"`
}

// RunSweep runs one sweep by name.
func (o *Orchestrator) RunSweep(ctx context.Context, name string) (*SweepSummary, error) {
	summary := &SweepSummary{Name: name, StartedAt: o.now().UTC(), Counts: map[string]int{}}

	var err error
	switch name {
	case SweepGeneration:
		err = o.generationSweep(ctx, summary.Counts)
	case SweepEngagement:
		err = o.engagementSweep(ctx, summary.Counts)
	case SweepWeekly:
		o.weeklySweep(ctx, summary.Counts)
	case SweepCleanup:
		err = o.cleanupSweep(ctx, summary.Counts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSweep, name)
	}
	summary.FinishedAt = o.now().UTC()
	result := "ok"
	if err != nil {
		result = "error"
	}
	if o.sweepRuns != nil {
		o.sweepRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("sweep", name), attribute.String("result", result)))
	}
	if err != nil {
		return summary, fmt.Errorf("%s sweep: %w", name, err)
	}
	o.logger.Info("sweep finished", "sweep", name, "counts", summary.Counts)
	return summary, nil
}

// generationSweep schedules orphaned drafts and makes sure today's theme has content.
// Drafts younger than the grace period still belong to the flow that created them.
func (o *Orchestrator) generationSweep(ctx context.Context, counts map[string]int) error {
	now := o.now()
	drafts, err := o.store.ListArtifacts(ctx, store.ArtifactFilter{
		Status:        store.ArtifactStatusDraft,
		CreatedBefore: now.Add(-o.cfg.GenerationGrace),
		Limit:         500,
	})
	if err != nil {
		return fmt.Errorf("failed to list drafts: %w", err)
	}
	for _, d := range drafts {
		earliest := now
		if d.NotBefore != nil && d.NotBefore.After(now) {
			earliest = *d.NotBefore
		}
		if _, err := o.scheduler.Schedule(ctx, d.ID, earliest); err != nil {
			counts["schedule_failed"]++
			o.logger.Warn("failed to schedule orphaned draft", "artifact_id", d.ID, "error", err)
			continue
		}
		counts["drafts_scheduled"]++
	}

	today := now.In(o.cfg.Location)
	th := o.themes.Resolve(today.Weekday())
	midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	existing, err := o.store.ListArtifacts(ctx, store.ArtifactFilter{ThemeID: th.ID, CreatedAfter: midnight})
	if err != nil {
		return fmt.Errorf("failed to list today's artifacts: %w", err)
	}
	for _, a := range existing {
		if a.Status != store.ArtifactStatusFailed {
			return nil
		}
	}
	// existing is newest first. Regenerate only after a transient failure.
	if len(existing) > 0 && !retryableFailure(existing[0]) {
		counts["daily_skipped"]++
		return nil
	}

	_, err = o.daily(ctx, false)
	switch {
	case errors.Is(err, ErrGenerationClaimed):
		counts["daily_skipped"]++
	case err != nil:
		counts["daily_failed"]++
	default:
		counts["daily_generated"]++
	}
	return nil
}

func retryableFailure(a store.Artifact) bool {
	return a.FailureReason != nil && content.RetryableReason(*a.FailureReason)
}

func (o *Orchestrator) engagementSweep(ctx context.Context, counts map[string]int) error {
	res, err := o.tracker.Sweep(ctx)
	if err != nil {
		return err
	}
	counts["polled"] = res.Polled
	counts["recorded"] = res.Recorded
	counts["failed"] = res.Failed
	return nil
}

func (o *Orchestrator) weeklySweep(ctx context.Context, counts map[string]int) {
	for _, out := range o.GenerateWeekly(ctx) {
		switch {
		case errors.Is(out.Err, ErrGenerationClaimed):
			counts["skipped"]++
		case out.Err != nil:
			counts["failed"]++
		default:
			counts["scheduled"]++
		}
	}
}

// cleanupSweep expires stale drafts and settles abandoned in-flight jobs. Rows are never deleted.
func (o *Orchestrator) cleanupSweep(ctx context.Context, counts map[string]int) error {
	now := o.now()
	expired, err := o.store.ExpireDrafts(ctx, now.Add(-o.cfg.DraftRetention))
	if err != nil {
		return fmt.Errorf("failed to expire drafts: %w", err)
	}
	counts["drafts_expired"] = int(expired)

	jobs, err := o.store.AbandonedJobs(ctx, now.Add(-o.cfg.VisibilityTimeout))
	if err != nil {
		return fmt.Errorf("failed to list abandoned jobs: %w", err)
	}
	for i := range jobs {
		post, err := o.abandoner.Abandon(ctx, &jobs[i])
		if err != nil {
			counts["abandon_failed"]++
			o.logger.Warn("failed to abandon job", "job_id", jobs[i].ID, "error", err)
			continue
		}
		if post != nil {
			counts["jobs_reconciled"]++
			continue
		}
		counts["jobs_abandoned"]++
	}
	return nil
}
