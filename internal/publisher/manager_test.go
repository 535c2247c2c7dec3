package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contentplane/internal/platform"
	"contentplane/internal/store"
	"contentplane/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (f *fakePublisher) Publish(ctx context.Context, a *store.Artifact) (*platform.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return &platform.Result{PostRef: "post-" + a.ID.String()[:8], Permalink: "https://instagram.com/p/x", PublishedAt: clock}, nil
}

func newTestManager(t *testing.T, pub platform.Publisher) (*Manager, *storetest.Memory) {
	t.Helper()
	mem := storetest.New()
	mem.Now = func() time.Time { return clock }
	m := NewManager(mem, pub, Config{MaxAttempts: 5, BaseBackoff: 10 * time.Second, MaxBackoff: time.Minute, RecordBackoff: time.Millisecond}, nil)
	m.now = func() time.Time { return clock }
	return m, mem
}

func seedScheduled(mem *storetest.Memory) (*store.Artifact, *store.PublishJob) {
	a := &store.Artifact{
		ID:          uuid.New(),
		ThemeID:     "magical_monday_wisdom",
		ContentType: store.ContentTypeCarousel,
		MediaURLs:   []string{"https://cdn/1.jpg", "https://cdn/2.jpg"},
		Status:      store.ArtifactStatusScheduled,
	}
	j := &store.PublishJob{
		ID:                uuid.New(),
		ArtifactID:        a.ID,
		TargetPublishTime: clock,
		NextAttemptAt:     clock,
		Status:            store.JobStatusPending,
	}
	mem.PutArtifact(a)
	mem.PutJob(j)
	return a, j
}

func artifactStatus(t *testing.T, mem *storetest.Memory, id uuid.UUID) *store.Artifact {
	t.Helper()
	a, err := mem.GetArtifact(context.Background(), id)
	require.NoError(t, err)
	return a
}

func TestExecute_Success(t *testing.T) {
	m, mem := newTestManager(t, &fakePublisher{})
	a, j := seedScheduled(mem)

	post, err := m.Execute(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, post.ArtifactID)
	assert.Equal(t, j.ID, post.JobID)

	job, _ := mem.GetJob(context.Background(), j.ID)
	assert.Equal(t, store.JobStatusSucceeded, job.Status)
	assert.Equal(t, store.ArtifactStatusPublished, artifactStatus(t, mem, a.ID).Status)
	assert.Len(t, mem.Posts(), 1)
}

func TestExecute_TransientFailureReschedules(t *testing.T) {
	pub := &fakePublisher{errs: []error{&platform.PublishError{Kind: platform.RateLimited, Code: 4, Message: "limit"}}}
	m, mem := newTestManager(t, pub)
	a, j := seedScheduled(mem)

	_, err := m.Execute(context.Background(), j.ID)
	var retry *RetryScheduledError
	require.True(t, errors.As(err, &retry))
	assert.Equal(t, 1, retry.Attempt)
	assert.Equal(t, clock.Add(10*time.Second), retry.NextAttemptAt)

	job, _ := mem.GetJob(context.Background(), j.ID)
	assert.Equal(t, store.JobStatusPending, job.Status)
	assert.Equal(t, 1, job.AttemptCount)
	assert.Equal(t, clock.Add(10*time.Second), job.NextAttemptAt)
	require.NotNil(t, job.LastError)
	assert.Contains(t, *job.LastError, "rate_limited")
	assert.Equal(t, store.ArtifactStatusScheduled, artifactStatus(t, mem, a.ID).Status)
}

func TestProcess_AttemptsExhausted(t *testing.T) {
	transient := &platform.PublishError{Kind: platform.ServerError, Message: "boom"}
	pub := &fakePublisher{errs: []error{transient, transient, transient, transient, transient, transient}}
	m, mem := newTestManager(t, pub)
	a, j := seedScheduled(mem)
	ctx := context.Background()

	for attempt := 1; attempt <= 5; attempt++ {
		job, err := mem.ClaimJob(ctx, j.ID)
		require.NoError(t, err, "attempt %d", attempt)
		_, err = m.Process(ctx, job)
		require.Error(t, err)
	}

	job, _ := mem.GetJob(ctx, j.ID)
	assert.Equal(t, store.JobStatusFailed, job.Status)
	assert.Equal(t, 5, job.AttemptCount)
	assert.Equal(t, store.ReasonAttemptsExhausted, *job.FailureReason)

	art := artifactStatus(t, mem, a.ID)
	assert.Equal(t, store.ArtifactStatusFailed, art.Status)
	assert.Equal(t, store.ReasonAttemptsExhausted, *art.FailureReason)
	assert.Equal(t, 5, pub.calls)

	_, err := mem.ClaimJob(ctx, j.ID)
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestProcess_PermanentFailure(t *testing.T) {
	tests := []struct {
		kind   platform.ErrorKind
		reason string
	}{
		{platform.InvalidMedia, store.ReasonInvalidMedia},
		{platform.PolicyViolation, store.ReasonPolicyViolation},
		{platform.Unauthorized, store.ReasonPublishUnauthorized},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			pub := &fakePublisher{errs: []error{&platform.PublishError{Kind: tt.kind, Message: "no"}}}
			m, mem := newTestManager(t, pub)
			a, j := seedScheduled(mem)

			_, err := m.Execute(context.Background(), j.ID)
			var pe *platform.PublishError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.kind, pe.Kind)

			job, _ := mem.GetJob(context.Background(), j.ID)
			assert.Equal(t, store.JobStatusFailed, job.Status)
			assert.Equal(t, 1, job.AttemptCount)
			assert.Equal(t, tt.reason, *job.FailureReason)
			assert.Equal(t, store.ArtifactStatusFailed, artifactStatus(t, mem, a.ID).Status)
			assert.Empty(t, mem.Posts())
		})
	}
}

func TestProcess_UnclassifiedErrorIsTransient(t *testing.T) {
	pub := &fakePublisher{errs: []error{errors.New("connection refused")}}
	m, mem := newTestManager(t, pub)
	_, j := seedScheduled(mem)

	_, err := m.Execute(context.Background(), j.ID)
	var retry *RetryScheduledError
	require.True(t, errors.As(err, &retry))
	assert.Equal(t, platform.ServerError, retry.Err.Kind)
}

func TestExecute_AlreadyInFlight(t *testing.T) {
	pub := &fakePublisher{}
	m, mem := newTestManager(t, pub)
	_, j := seedScheduled(mem)
	_, err := mem.ClaimJob(context.Background(), j.ID)
	require.NoError(t, err)

	_, err = m.Execute(context.Background(), j.ID)
	assert.ErrorIs(t, err, store.ErrInvalidState)
	assert.Equal(t, 0, pub.calls)
}

func TestExecute_ConcurrentClaimsPublishOnce(t *testing.T) {
	pub := &fakePublisher{}
	m, mem := newTestManager(t, pub)
	_, j := seedScheduled(mem)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Execute(context.Background(), j.ID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, pub.calls)
	assert.Len(t, mem.Posts(), 1)
}

func TestProcess_ArtifactNoLongerScheduled(t *testing.T) {
	pub := &fakePublisher{}
	m, mem := newTestManager(t, pub)
	a, j := seedScheduled(mem)
	a.Status = store.ArtifactStatusFailed
	mem.PutArtifact(a)

	_, err := m.Execute(context.Background(), j.ID)
	assert.ErrorIs(t, err, store.ErrInvalidState)
	assert.Equal(t, 0, pub.calls)

	job, _ := mem.GetJob(context.Background(), j.ID)
	assert.Equal(t, store.JobStatusFailed, job.Status)
	assert.Equal(t, store.ReasonArtifactNotScheduled, *job.FailureReason)
}

func TestPublishArtifact(t *testing.T) {
	m, mem := newTestManager(t, &fakePublisher{})
	a, _ := seedScheduled(mem)

	post, err := m.PublishArtifact(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, post.ArtifactID)

	_, err = m.PublishArtifact(context.Background(), a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCancel(t *testing.T) {
	m, mem := newTestManager(t, &fakePublisher{})
	a, j := seedScheduled(mem)

	job, err := m.Cancel(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusFailed, job.Status)
	assert.Equal(t, store.ReasonCancelled, *job.FailureReason)

	art := artifactStatus(t, mem, a.ID)
	assert.Equal(t, store.ArtifactStatusFailed, art.Status)
	assert.Equal(t, store.ReasonCancelled, *art.FailureReason)
}

func TestCancel_InFlightRejected(t *testing.T) {
	m, mem := newTestManager(t, &fakePublisher{})
	a, j := seedScheduled(mem)
	_, err := mem.ClaimJob(context.Background(), j.ID)
	require.NoError(t, err)

	_, err = m.Cancel(context.Background(), j.ID)
	var ise *store.InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, "in_flight", ise.Current)
	assert.Equal(t, store.ArtifactStatusScheduled, artifactStatus(t, mem, a.ID).Status)
}

func TestAbandon(t *testing.T) {
	m, mem := newTestManager(t, &fakePublisher{})
	a, j := seedScheduled(mem)
	claimed, err := mem.ClaimJob(context.Background(), j.ID)
	require.NoError(t, err)

	post, err := m.Abandon(context.Background(), claimed)
	require.NoError(t, err)
	assert.Nil(t, post)
	job, _ := mem.GetJob(context.Background(), j.ID)
	assert.Equal(t, store.ReasonInFlightAbandoned, *job.FailureReason)
	assert.Equal(t, store.ArtifactStatusFailed, artifactStatus(t, mem, a.ID).Status)

	// A second pass finds nothing to do.
	post, err = m.Abandon(context.Background(), claimed)
	assert.NoError(t, err)
	assert.Nil(t, post)
}

func TestExecute_RecordRetriedAfterTransientStoreError(t *testing.T) {
	m, mem := newTestManager(t, &fakePublisher{})
	a, j := seedScheduled(mem)
	mem.FailTimes("CreatePost", errors.New("connection reset"), 2)

	post, err := m.Execute(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, post.ArtifactID)

	job, _ := mem.GetJob(context.Background(), j.ID)
	assert.Equal(t, store.JobStatusSucceeded, job.Status)
	assert.Equal(t, store.ArtifactStatusPublished, artifactStatus(t, mem, a.ID).Status)
	assert.Len(t, mem.Posts(), 1)
}

func TestExecute_UnrecordedPostReconciledByAbandon(t *testing.T) {
	pub := &fakePublisher{}
	m, mem := newTestManager(t, pub)
	a, j := seedScheduled(mem)
	ctx := context.Background()
	mem.FailOn("CreatePost", errors.New("connection reset"))

	_, err := m.Execute(ctx, j.ID)
	var unrecorded *UnrecordedPostError
	require.True(t, errors.As(err, &unrecorded))
	assert.True(t, unrecorded.Saved)
	assert.Equal(t, "post-"+a.ID.String()[:8], unrecorded.PostRef)

	job, _ := mem.GetJob(ctx, j.ID)
	assert.Equal(t, store.JobStatusInFlight, job.Status)
	require.NotNil(t, job.Published)
	assert.Equal(t, unrecorded.PostRef, job.Published.PostRef)
	assert.Empty(t, mem.Posts())

	mem.FailOn("CreatePost", nil)
	post, err := m.Abandon(ctx, job)
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, unrecorded.PostRef, post.PostRef)
	assert.Equal(t, j.ID, post.JobID)

	job, _ = mem.GetJob(ctx, j.ID)
	assert.Equal(t, store.JobStatusSucceeded, job.Status)
	assert.Nil(t, job.FailureReason)
	assert.Equal(t, store.ArtifactStatusPublished, artifactStatus(t, mem, a.ID).Status)
	require.Len(t, mem.Posts(), 1)
	assert.Equal(t, clock, mem.Posts()[0].PublishedAt)
	assert.Equal(t, 1, pub.calls)
}

func TestAbandon_ReconcileFailureLeavesJobInFlight(t *testing.T) {
	m, mem := newTestManager(t, &fakePublisher{})
	a, j := seedScheduled(mem)
	ctx := context.Background()
	mem.FailOn("CreatePost", errors.New("connection reset"))

	_, err := m.Execute(ctx, j.ID)
	require.Error(t, err)
	job, _ := mem.GetJob(ctx, j.ID)

	_, err = m.Abandon(ctx, job)
	require.Error(t, err)

	job, _ = mem.GetJob(ctx, j.ID)
	assert.Equal(t, store.JobStatusInFlight, job.Status)
	assert.NotNil(t, job.Published)
	assert.Equal(t, store.ArtifactStatusScheduled, artifactStatus(t, mem, a.ID).Status)
}

func TestBackoff(t *testing.T) {
	m := NewManager(storetest.New(), &fakePublisher{}, Config{BaseBackoff: 10 * time.Second, MaxBackoff: time.Minute}, nil)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, time.Minute},
		{10, time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}
