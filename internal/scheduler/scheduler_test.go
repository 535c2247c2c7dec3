package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contentplane/internal/store"
	"contentplane/internal/store/storetest"
	"contentplane/internal/theme"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 2026-10-19, 07:00 UTC.
var monday = time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *storetest.Memory) {
	t.Helper()
	mem := storetest.New()
	mem.Now = func() time.Time { return monday }
	s := New(mem, theme.MustLoad(), cfg, nil)
	s.now = func() time.Time { return monday }
	return s, mem
}

func putDraft(mem *storetest.Memory, themeID string) uuid.UUID {
	id := uuid.New()
	mem.PutArtifact(&store.Artifact{
		ID:          id,
		ThemeID:     themeID,
		ContentType: store.ContentTypeCarousel,
		Status:      store.ArtifactStatusDraft,
		CreatedAt:   monday,
	})
	return id
}

func putScheduled(mem *storetest.Memory, at time.Time) {
	mem.PutJob(&store.PublishJob{
		ID:                uuid.New(),
		ArtifactID:        uuid.New(),
		TargetPublishTime: at,
		NextAttemptAt:     at,
		Status:            store.JobStatusPending,
	})
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 10, day, hour, minute, 0, 0, time.UTC)
}

func TestSchedule_FirstWindowSlot(t *testing.T) {
	s, mem := newTestScheduler(t, Config{})
	id := putDraft(mem, "magical_monday_wisdom")

	job, err := s.Schedule(context.Background(), id, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, at(19, 9, 0), job.TargetPublishTime)
	assert.Equal(t, store.JobStatusPending, job.Status)

	a, err := mem.GetArtifact(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.ArtifactStatusScheduled, a.Status)
	require.Len(t, mem.LockedDays, 1)
	assert.Equal(t, 19, mem.LockedDays[0].Day())
}

func TestSchedule_SlotSelection(t *testing.T) {
	tests := []struct {
		name     string
		themeID  string
		existing []time.Time
		earliest time.Time
		want     time.Time
	}{
		{
			name:     "next window slot after an existing post",
			themeID:  "magical_monday_wisdom",
			existing: []time.Time{at(19, 9, 0)},
			want:     at(19, 12, 0),
		},
		{
			name:     "minimum interval pushes outside the window",
			themeID:  "magical_monday_wisdom",
			existing: []time.Time{at(19, 10, 30)},
			want:     at(19, 15, 0),
		},
		{
			name:     "evening theme prefers evening slots",
			themeID:  "serene_sunday",
			want:     at(19, 18, 0),
		},
		{
			name:     "earliest later in the day",
			themeID:  "magical_monday_wisdom",
			earliest: at(19, 13, 0),
			want:     at(19, 15, 0),
		},
		{
			name:     "full day rolls over to the next day",
			themeID:  "magical_monday_wisdom",
			existing: []time.Time{at(19, 9, 0), at(19, 15, 0), at(19, 20, 0)},
			want:     at(20, 9, 0),
		},
		{
			name:     "no usable slot left today",
			themeID:  "magical_monday_wisdom",
			earliest: at(19, 20, 30),
			want:     at(20, 9, 0),
		},
		{
			name:     "late post yesterday blocks nothing at nine",
			themeID:  "magical_monday_wisdom",
			existing: []time.Time{at(18, 23, 30)},
			want:     at(19, 9, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mem := newTestScheduler(t, Config{})
			for _, e := range tt.existing {
				putScheduled(mem, e)
			}
			id := putDraft(mem, tt.themeID)

			job, err := s.Schedule(context.Background(), id, tt.earliest)
			require.NoError(t, err)
			assert.Equal(t, tt.want, job.TargetPublishTime)
		})
	}
}

func TestSchedule_WindowWithoutOptimalSlotUsesWindowStart(t *testing.T) {
	s, mem := newTestScheduler(t, Config{Slots: []time.Duration{9 * time.Hour}})
	id := putDraft(mem, "serene_sunday")

	job, err := s.Schedule(context.Background(), id, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, at(19, 17, 0), job.TargetPublishTime)
}

func TestSchedule_NeverExceedsDailyCap(t *testing.T) {
	s, mem := newTestScheduler(t, Config{DailyCap: 2})
	ctx := context.Background()

	perDay := map[int]int{}
	for i := 0; i < 6; i++ {
		id := putDraft(mem, "thoughtful_thursday")
		job, err := s.Schedule(ctx, id, time.Time{})
		require.NoError(t, err)
		perDay[job.TargetPublishTime.Day()]++
	}
	assert.Equal(t, map[int]int{19: 2, 20: 2, 21: 2}, perDay)

	jobs := mem.Jobs()
	for i := 1; i < len(jobs); i++ {
		gap := jobs[i].TargetPublishTime.Sub(jobs[i-1].TargetPublishTime)
		assert.GreaterOrEqual(t, gap, 2*time.Hour)
	}
}

func TestSchedule_ConcurrentCallsShareTheCap(t *testing.T) {
	s, mem := newTestScheduler(t, Config{DailyCap: 2})
	ctx := context.Background()

	first, err := s.Schedule(ctx, putDraft(mem, "thoughtful_thursday"), time.Time{})
	require.NoError(t, err)
	require.Equal(t, 19, first.TargetPublishTime.Day())

	ids := []uuid.UUID{putDraft(mem, "thoughtful_thursday"), putDraft(mem, "thoughtful_thursday")}
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = s.Schedule(ctx, id, time.Time{})
		}(i, id)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	perDay := map[int]int{}
	for _, j := range mem.Jobs() {
		perDay[j.TargetPublishTime.Day()]++
	}
	assert.Equal(t, map[int]int{19: 2, 20: 1}, perDay)
}

func TestMemory_LockScheduleDayWaitsForCommit(t *testing.T) {
	mem := storetest.New()
	ctx := context.Background()
	day := at(19, 0, 0)

	tx1, err := mem.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, mem.LockScheduleDay(ctx, tx1, day))

	tx2, err := mem.BeginTx(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()
	locked := make(chan error, 1)
	go func() { locked <- mem.LockScheduleDay(ctx, tx2, day) }()

	select {
	case <-locked:
		t.Fatal("second lock acquired while the first transaction is open")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tx1.Commit())
	select {
	case err := <-locked:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second lock not acquired after commit")
	}
}

func TestSchedule_NoCapacity(t *testing.T) {
	s, mem := newTestScheduler(t, Config{DailyCap: 1, HorizonDays: 2})
	putScheduled(mem, at(19, 9, 0))
	putScheduled(mem, at(20, 9, 0))
	id := putDraft(mem, "magical_monday_wisdom")

	_, err := s.Schedule(context.Background(), id, time.Time{})
	assert.ErrorIs(t, err, ErrNoCapacity)

	a, err := mem.GetArtifact(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.ArtifactStatusDraft, a.Status)
}

func TestSchedule_RequiresDraft(t *testing.T) {
	s, mem := newTestScheduler(t, Config{})
	id := putDraft(mem, "magical_monday_wisdom")
	_, err := s.Schedule(context.Background(), id, time.Time{})
	require.NoError(t, err)

	_, err = s.Schedule(context.Background(), id, time.Time{})
	var ise *store.InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, "scheduled", ise.Current)
	assert.Len(t, mem.Jobs(), 1)
}

func TestSchedule_UnknownArtifact(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	_, err := s.Schedule(context.Background(), uuid.New(), time.Time{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSchedule_TransitionFailureRollsBackJob(t *testing.T) {
	s, mem := newTestScheduler(t, Config{})
	id := putDraft(mem, "magical_monday_wisdom")
	mem.FailOn("TransitionArtifact", errors.New("connection reset"))

	_, err := s.Schedule(context.Background(), id, time.Time{})
	require.Error(t, err)
	assert.Empty(t, mem.Jobs())
}

func TestSchedule_TimeZone(t *testing.T) {
	loc := time.FixedZone("UTC-4", -4*3600)
	s, mem := newTestScheduler(t, Config{Location: loc})
	id := putDraft(mem, "magical_monday_wisdom")

	// 07:00 UTC is 03:00 local on Monday.
	job, err := s.Schedule(context.Background(), id, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, loc).UTC(), job.TargetPublishTime)
}
