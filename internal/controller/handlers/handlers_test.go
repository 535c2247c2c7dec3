package handlers

import (
	"context"
	"time"

	"contentplane/internal/analytics"
	"contentplane/internal/pipeline"
	"contentplane/internal/platform"
	"contentplane/internal/store"
	"contentplane/internal/theme"

	"github.com/google/uuid"
)

// Mock pipeline
type mockPipeline struct {
	dailyResp  *pipeline.Outcome
	dailyErr   error
	customResp *pipeline.Outcome
	customErr  error
	weeklyResp []pipeline.Outcome
	sweepResp  *pipeline.SweepSummary
	sweepErr   error

	// Spies
	capturedThemeID     string
	capturedTopic       string
	capturedContentType store.ContentType
	capturedSweep       string
}

func (m *mockPipeline) GenerateDaily(ctx context.Context) (*pipeline.Outcome, error) {
	return m.dailyResp, m.dailyErr
}

func (m *mockPipeline) GenerateWeekly(ctx context.Context) []pipeline.Outcome {
	return m.weeklyResp
}

func (m *mockPipeline) GenerateCustom(ctx context.Context, themeID, topic string, contentType store.ContentType) (*pipeline.Outcome, error) {
	m.capturedThemeID = themeID
	m.capturedTopic = topic
	m.capturedContentType = contentType
	return m.customResp, m.customErr
}

func (m *mockPipeline) RunSweep(ctx context.Context, name string) (*pipeline.SweepSummary, error) {
	m.capturedSweep = name
	return m.sweepResp, m.sweepErr
}

// Mock scheduler
type mockScheduler struct {
	scheduleResp *store.PublishJob
	scheduleErr  error

	capturedEarliest time.Time
}

func (m *mockScheduler) Schedule(ctx context.Context, artifactID uuid.UUID, earliest time.Time) (*store.PublishJob, error) {
	m.capturedEarliest = earliest
	return m.scheduleResp, m.scheduleErr
}

// Mock publisher
type mockPublisher struct {
	executeResp *store.PublishedPost
	executeErr  error
	cancelResp  *store.PublishJob
	cancelErr   error

	executed []uuid.UUID
}

func (m *mockPublisher) Execute(ctx context.Context, jobID uuid.UUID) (*store.PublishedPost, error) {
	m.executed = append(m.executed, jobID)
	return m.executeResp, m.executeErr
}

func (m *mockPublisher) Cancel(ctx context.Context, jobID uuid.UUID) (*store.PublishJob, error) {
	return m.cancelResp, m.cancelErr
}

// Mock analytics
type mockAnalytics struct {
	snapshotsResp []store.EngagementSnapshot
	snapshotsErr  error
	reportResp    *analytics.ArtifactReport
	reportErr     error
	accountResp   *platform.AccountMetrics
	accountErr    error
}

func (m *mockAnalytics) Snapshots(ctx context.Context, postRef string) ([]store.EngagementSnapshot, error) {
	return m.snapshotsResp, m.snapshotsErr
}

func (m *mockAnalytics) ArtifactAnalytics(ctx context.Context, artifactID uuid.UUID) (*analytics.ArtifactReport, error) {
	return m.reportResp, m.reportErr
}

func (m *mockAnalytics) AccountInsights(ctx context.Context) (*platform.AccountMetrics, error) {
	return m.accountResp, m.accountErr
}

// Mock store
type mockStore struct {
	getArtifactResp *store.Artifact
	getArtifactErr  error
	setMediaResp    *store.Artifact
	setMediaErr     error
	getJobResp      *store.PublishJob
	getJobErr       error
	activeJobResp   *store.PublishJob
	activeJobErr    error
	listJobsResp    []store.PublishJob
	listJobsErr     error

	capturedMedia  []string
	capturedFilter store.JobFilter
}

func (m *mockStore) GetArtifact(ctx context.Context, id uuid.UUID) (*store.Artifact, error) {
	return m.getArtifactResp, m.getArtifactErr
}

func (m *mockStore) SetMediaURLs(ctx context.Context, id uuid.UUID, urls []string) (*store.Artifact, error) {
	m.capturedMedia = urls
	return m.setMediaResp, m.setMediaErr
}

func (m *mockStore) GetJob(ctx context.Context, id uuid.UUID) (*store.PublishJob, error) {
	return m.getJobResp, m.getJobErr
}

func (m *mockStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]store.PublishJob, error) {
	m.capturedFilter = filter
	return m.listJobsResp, m.listJobsErr
}

func (m *mockStore) ActiveJobForArtifact(ctx context.Context, artifactID uuid.UUID) (*store.PublishJob, error) {
	return m.activeJobResp, m.activeJobErr
}

type mocks struct {
	pipeline  *mockPipeline
	scheduler *mockScheduler
	publisher *mockPublisher
	analytics *mockAnalytics
	store     *mockStore
}

func newTestHandlers(setup func(*mocks)) (*Handlers, *mocks) {
	m := &mocks{
		pipeline:  &mockPipeline{},
		scheduler: &mockScheduler{},
		publisher: &mockPublisher{},
		analytics: &mockAnalytics{},
		store:     &mockStore{},
	}
	if setup != nil {
		setup(m)
	}
	h := New(Deps{
		Themes:    theme.MustLoad(),
		Pipeline:  m.pipeline,
		Scheduler: m.scheduler,
		Publisher: m.publisher,
		Analytics: m.analytics,
		Store:     m.store,
	})
	return h, m
}

func testArtifact(status store.ArtifactStatus) *store.Artifact {
	return &store.Artifact{
		ID:          uuid.New(),
		ThemeID:     "magical_monday_wisdom",
		ContentType: store.ContentTypeCarousel,
		Title:       "Morning routines",
		Blocks:      []store.Block{{Kind: store.BlockSlide, Text: "Start small"}},
		Status:      status,
	}
}

func testJob(status store.JobStatus) *store.PublishJob {
	return &store.PublishJob{
		ID:                uuid.New(),
		ArtifactID:        uuid.New(),
		Status:            status,
		TargetPublishTime: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
}
