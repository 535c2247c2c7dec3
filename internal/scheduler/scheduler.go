// Package scheduler picks publish times for draft artifacts and records publish jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"contentplane/internal/store"
	"contentplane/internal/theme"

	"github.com/google/uuid"
)

// ErrNoCapacity is returned when no day within the search horizon has a free slot.
var ErrNoCapacity = errors.New("no publishing capacity within horizon")

var errDayFull = errors.New("day full")

// Store is the persistence the scheduler needs.
type Store interface {
	store.Transactor
	GetArtifact(ctx context.Context, id uuid.UUID) (*store.Artifact, error)
	TransitionArtifact(ctx context.Context, tx store.DBTransaction, id uuid.UUID, from, to store.ArtifactStatus, reason string) error
	CreateJob(ctx context.Context, tx store.DBTransaction, job *store.PublishJob) error
	LockScheduleDay(ctx context.Context, tx store.DBTransaction, day time.Time) error
	ScheduledTimes(ctx context.Context, tx store.DBTransaction, from, to time.Time) ([]time.Time, error)
}

// Config holds the publishing cadence.
type Config struct {
	Location    *time.Location  // time zone of slots and days (default: UTC)
	Slots       []time.Duration // engagement-optimal offsets from midnight (default: 09:00, 12:00, 15:00, 18:00, 20:00)
	MinInterval time.Duration   // between any two posts (default: 2h)
	DailyCap    int             // posts per calendar day (default: 3)
	HorizonDays int             // days searched before giving up (default: 14)
	Now         func() time.Time
}

// DefaultSlots are the engagement-optimal posting times.
var DefaultSlots = []time.Duration{9 * time.Hour, 12 * time.Hour, 15 * time.Hour, 18 * time.Hour, 20 * time.Hour}

// Scheduler turns drafts into pending publish jobs.
type Scheduler struct {
	store  Store
	themes *theme.Registry
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a scheduler.
func New(st Store, themes *theme.Registry, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if len(cfg.Slots) == 0 {
		cfg.Slots = DefaultSlots
	}
	slots := append([]time.Duration(nil), cfg.Slots...)
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	cfg.Slots = slots
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 2 * time.Hour
	}
	if cfg.DailyCap <= 0 {
		cfg.DailyCap = 3
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 14
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: st, themes: themes, cfg: cfg, logger: logger, now: cfg.Now}
}

// Location returns the time zone schedules are computed in.
func (s *Scheduler) Location() *time.Location {
	return s.cfg.Location
}

// Schedule creates a pending job for a draft artifact at the first free slot at
// or after earliest, and moves the artifact to scheduled. A zero earliest means now.
func (s *Scheduler) Schedule(ctx context.Context, artifactID uuid.UUID, earliest time.Time) (*store.PublishJob, error) {
	artifact, err := s.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.Status != store.ArtifactStatusDraft {
		return nil, &store.InvalidStateError{
			Entity:   "artifact",
			ID:       artifactID.String(),
			Current:  string(artifact.Status),
			Expected: string(store.ArtifactStatusDraft),
		}
	}
	th, err := s.themes.ResolveByID(artifact.ThemeID)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", artifactID, err)
	}

	now := s.now()
	if earliest.IsZero() || earliest.Before(now) {
		earliest = now
	}
	earliest = earliest.In(s.cfg.Location)
	first := startOfDay(earliest)

	for d := 0; d < s.cfg.HorizonDays; d++ {
		day := first.AddDate(0, 0, d)
		job, err := s.scheduleOnDay(ctx, artifact.ID, th, day, earliest)
		if errors.Is(err, errDayFull) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info("artifact scheduled",
			"artifact_id", artifact.ID,
			"job_id", job.ID,
			"theme_id", th.ID,
			"target_publish_time", job.TargetPublishTime,
		)
		return job, nil
	}
	return nil, fmt.Errorf("%w: artifact %s, %d days from %s", ErrNoCapacity, artifactID, s.cfg.HorizonDays, first.Format(time.DateOnly))
}

func (s *Scheduler) scheduleOnDay(ctx context.Context, artifactID uuid.UUID, th theme.Theme, day, earliest time.Time) (*store.PublishJob, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin schedule transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.store.LockScheduleDay(ctx, tx, day); err != nil {
		return nil, err
	}

	next := day.AddDate(0, 0, 1)
	existing, err := s.store.ScheduledTimes(ctx, tx, day.Add(-s.cfg.MinInterval), next.Add(s.cfg.MinInterval))
	if err != nil {
		return nil, err
	}

	target, ok := s.pickSlot(th, day, earliest, existing)
	if !ok {
		return nil, errDayFull
	}

	job := &store.PublishJob{
		ID:                uuid.New(),
		ArtifactID:        artifactID,
		TargetPublishTime: target.UTC(),
		NextAttemptAt:     target.UTC(),
		Status:            store.JobStatusPending,
	}
	if err := s.store.CreateJob(ctx, tx, job); err != nil {
		return nil, err
	}
	if err := s.store.TransitionArtifact(ctx, tx, artifactID, store.ArtifactStatusDraft, store.ArtifactStatusScheduled, ""); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit schedule: %w", err)
	}
	return job, nil
}

// pickSlot returns the first candidate of the day that respects the cap and the
// minimum interval. existing may include posts just outside the day.
func (s *Scheduler) pickSlot(th theme.Theme, day, earliest time.Time, existing []time.Time) (time.Time, bool) {
	next := day.AddDate(0, 0, 1)
	count := 0
	for _, t := range existing {
		if !t.Before(day) && t.Before(next) {
			count++
		}
	}
	if count >= s.cfg.DailyCap {
		return time.Time{}, false
	}

	for _, c := range s.candidates(th, day) {
		if c.Before(earliest) {
			continue
		}
		if s.tooClose(c, existing) {
			continue
		}
		return c, true
	}
	return time.Time{}, false
}

// candidates lists slot times for a day: optimal slots inside the theme window
// first (or the window start when none fall inside), then the remaining slots.
func (s *Scheduler) candidates(th theme.Theme, day time.Time) []time.Time {
	var inside, outside []time.Time
	for _, offset := range s.cfg.Slots {
		t := atOffset(day, offset)
		if th.Window.Contains(t.Hour()) {
			inside = append(inside, t)
		} else {
			outside = append(outside, t)
		}
	}
	if len(inside) == 0 {
		inside = []time.Time{atOffset(day, time.Duration(th.Window.StartHour)*time.Hour)}
	}
	return append(inside, outside...)
}

func (s *Scheduler) tooClose(candidate time.Time, existing []time.Time) bool {
	for _, t := range existing {
		gap := candidate.Sub(t)
		if gap < 0 {
			gap = -gap
		}
		if gap < s.cfg.MinInterval {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// atOffset resolves a wall-clock offset on a day, so DST days keep their slot hours.
func atOffset(day time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}
