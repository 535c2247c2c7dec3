// Package publisher drives publish jobs through the platform and records their outcome.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"contentplane/internal/platform"
	"contentplane/internal/store"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// persistTimeout bounds outcome writes, which run even when the caller is gone.
const persistTimeout = 10 * time.Second

// Store is the persistence the manager needs.
type Store interface {
	store.Transactor
	GetArtifact(ctx context.Context, id uuid.UUID) (*store.Artifact, error)
	TransitionArtifact(ctx context.Context, tx store.DBTransaction, id uuid.UUID, from, to store.ArtifactStatus, reason string) error
	GetJob(ctx context.Context, id uuid.UUID) (*store.PublishJob, error)
	ActiveJobForArtifact(ctx context.Context, artifactID uuid.UUID) (*store.PublishJob, error)
	ClaimJob(ctx context.Context, id uuid.UUID) (*store.PublishJob, error)
	CompleteJob(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error
	RetryJob(ctx context.Context, tx store.DBTransaction, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastErr string) error
	FailJob(ctx context.Context, tx store.DBTransaction, id uuid.UUID, from store.JobStatus, attempts int, reason, lastErr string) error
	SavePublished(ctx context.Context, id uuid.UUID, post *store.PublishedPost) error
	CreatePost(ctx context.Context, tx store.DBTransaction, post *store.PublishedPost) error
}

// Config tunes publish retries.
type Config struct {
	MaxAttempts    int           // attempts before a transient failure becomes terminal (default: 5)
	BaseBackoff    time.Duration // delay after the first failed attempt (default: 10s)
	MaxBackoff     time.Duration // delay cap (default: 30m)
	PublishTimeout time.Duration // per platform call (default: 2m)
	RecordRetries  int           // retries of the success write after a publish (default: 3, negative disables)
	RecordBackoff  time.Duration // first delay between those retries (default: 200ms)
}

// UnrecordedPostError reports a post the platform accepted whose outcome could
// not be recorded. The job stays in flight until the cleanup sweep reconciles it.
type UnrecordedPostError struct {
	JobID   uuid.UUID
	PostRef string
	Saved   bool // the post reference was kept on the job
	Err     error
}

func (e *UnrecordedPostError) Error() string {
	return fmt.Sprintf("job %s published as %s but the outcome was not recorded: %v", e.JobID, e.PostRef, e.Err)
}

func (e *UnrecordedPostError) Unwrap() error { return e.Err }

// RetryScheduledError reports a transient failure after which the job went back to pending.
type RetryScheduledError struct {
	JobID         uuid.UUID
	Attempt       int
	NextAttemptAt time.Time
	Err           *platform.PublishError
}

func (e *RetryScheduledError) Error() string {
	return fmt.Sprintf("job %s attempt %d failed, retry at %s: %v", e.JobID, e.Attempt, e.NextAttemptAt.Format(time.RFC3339), e.Err)
}

func (e *RetryScheduledError) Unwrap() error { return e.Err }

// Manager publishes claimed jobs.
type Manager struct {
	store     Store
	publisher platform.Publisher
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	retry     retrypolicy.RetryPolicy[any]

	outcomes metric.Int64Counter
}

// NewManager creates a manager.
func NewManager(st Store, pub platform.Publisher, cfg Config, logger *slog.Logger) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 10 * time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = 30 * time.Minute
		if cfg.MaxBackoff < cfg.BaseBackoff {
			cfg.MaxBackoff = cfg.BaseBackoff
		}
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Minute
	}
	if cfg.RecordRetries == 0 {
		cfg.RecordRetries = 3
	}
	if cfg.RecordRetries < 0 {
		cfg.RecordRetries = 0
	}
	if cfg.RecordBackoff <= 0 {
		cfg.RecordBackoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Retries stop on state conflicts: another writer settled the job.
	retry := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return err != nil && !errors.Is(err, store.ErrInvalidState) && !errors.Is(err, store.ErrNotFound)
		}).
		WithBackoff(cfg.RecordBackoff, 10*cfg.RecordBackoff).
		WithMaxRetries(cfg.RecordRetries).
		ReturnLastFailure().
		Build()

	outcomes, err := otel.Meter("contentplane/publisher").Int64Counter("contentplane.publisher.outcomes",
		metric.WithDescription("Publish attempts, by outcome"))
	if err != nil {
		logger.Warn("failed to register publish outcomes counter", "error", err)
	}

	return &Manager{
		store:     st,
		publisher: pub,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		retry:     retry,
		outcomes:  outcomes,
	}
}

// Execute claims a pending job and publishes it immediately.
func (m *Manager) Execute(ctx context.Context, jobID uuid.UUID) (*store.PublishedPost, error) {
	job, err := m.store.ClaimJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return m.Process(ctx, job)
}

// PublishArtifact publishes the pending job of an artifact immediately.
func (m *Manager) PublishArtifact(ctx context.Context, artifactID uuid.UUID) (*store.PublishedPost, error) {
	job, err := m.store.ActiveJobForArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	return m.Execute(ctx, job.ID)
}

// Process publishes an in-flight job and records the outcome.
//
// Success returns the post. A transient failure below the attempt bound returns a
// *RetryScheduledError; any other failure leaves job and artifact failed and
// returns the *platform.PublishError.
func (m *Manager) Process(ctx context.Context, job *store.PublishJob) (*store.PublishedPost, error) {
	log := m.logger.With("job_id", job.ID, "artifact_id", job.ArtifactID)

	artifact, err := m.store.GetArtifact(ctx, job.ArtifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact for job %s: %w", job.ID, err)
	}
	if artifact.Status != store.ArtifactStatusScheduled {
		stateErr := &store.InvalidStateError{
			Entity:   "artifact",
			ID:       artifact.ID.String(),
			Current:  string(artifact.Status),
			Expected: string(store.ArtifactStatusScheduled),
		}
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := m.store.FailJob(pctx, nil, job.ID, store.JobStatusInFlight, job.AttemptCount, store.ReasonArtifactNotScheduled, stateErr.Error()); err != nil {
			log.Error("failed to fail orphaned job", "error", err)
		}
		m.record(ctx, "failed")
		return nil, stateErr
	}

	spanCtx, span := otel.Tracer("publisher").Start(ctx, "platform.publish")
	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("content.type", string(artifact.ContentType)),
		attribute.Int("job.attempt", job.AttemptCount+1),
	)
	callCtx, cancel := context.WithTimeout(spanCtx, m.cfg.PublishTimeout)
	result, err := m.publisher.Publish(callCtx, artifact)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
	}
	span.End()

	pctx, pcancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer pcancel()

	if err != nil {
		return nil, m.handleFailure(pctx, log, job, platform.AsPublishError(err))
	}

	post := &store.PublishedPost{
		PostRef:     result.PostRef,
		ArtifactID:  artifact.ID,
		JobID:       job.ID,
		Permalink:   result.Permalink,
		PublishedAt: result.PublishedAt,
	}
	if post.PublishedAt.IsZero() {
		post.PublishedAt = m.now().UTC()
	}
	err = failsafe.With(m.retry).WithContext(pctx).Run(func() error {
		return m.recordSuccess(pctx, job, post)
	})
	if err != nil {
		// The post exists on the platform. Keep its reference on the job so the
		// cleanup sweep can finish the bookkeeping.
		unrecorded := &UnrecordedPostError{JobID: job.ID, PostRef: post.PostRef, Err: err}
		if saveErr := m.store.SavePublished(pctx, job.ID, post); saveErr != nil {
			log.Error("failed to save post reference on job", "post_ref", post.PostRef, "error", saveErr)
		} else {
			unrecorded.Saved = true
		}
		m.record(ctx, "unrecorded")
		log.Error("published but failed to record outcome", "post_ref", post.PostRef, "saved", unrecorded.Saved, "error", err)
		return nil, unrecorded
	}

	m.record(ctx, "published")
	log.Info("artifact published", "post_ref", post.PostRef, "attempt", job.AttemptCount+1)
	return post, nil
}

func (m *Manager) recordSuccess(ctx context.Context, job *store.PublishJob, post *store.PublishedPost) error {
	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin publish transaction: %w", err)
	}
	defer tx.Rollback()

	if err := m.store.CompleteJob(ctx, tx, job.ID); err != nil {
		return err
	}
	if err := m.store.CreatePost(ctx, tx, post); err != nil {
		return err
	}
	if err := m.store.TransitionArtifact(ctx, tx, job.ArtifactID, store.ArtifactStatusScheduled, store.ArtifactStatusPublished, ""); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) handleFailure(ctx context.Context, log *slog.Logger, job *store.PublishJob, pe *platform.PublishError) error {
	attempt := job.AttemptCount + 1

	if pe.Transient() && attempt < m.cfg.MaxAttempts {
		next := m.now().UTC().Add(m.Backoff(attempt))
		if err := m.store.RetryJob(ctx, nil, job.ID, attempt, next, pe.Error()); err != nil {
			return fmt.Errorf("failed to reschedule job %s: %w", job.ID, err)
		}
		m.record(ctx, "retry")
		log.Warn("publish attempt failed, retrying", "attempt", attempt, "next_attempt_at", next, "error", pe)
		return &RetryScheduledError{JobID: job.ID, Attempt: attempt, NextAttemptAt: next, Err: pe}
	}

	reason := pe.Reason()
	if pe.Transient() {
		reason = store.ReasonAttemptsExhausted
	}
	if err := m.fail(ctx, job.ID, job.ArtifactID, store.JobStatusInFlight, attempt, reason, pe.Error()); err != nil {
		return fmt.Errorf("failed to record failure of job %s: %w", job.ID, err)
	}
	m.record(ctx, "failed")
	log.Error("publish failed", "attempt", attempt, "reason", reason, "error", pe)
	return pe
}

// fail moves job and artifact to failed in one transaction.
func (m *Manager) fail(ctx context.Context, jobID, artifactID uuid.UUID, from store.JobStatus, attempts int, reason, lastErr string) error {
	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin failure transaction: %w", err)
	}
	defer tx.Rollback()

	if err := m.store.FailJob(ctx, tx, jobID, from, attempts, reason, lastErr); err != nil {
		return err
	}
	if err := m.store.TransitionArtifact(ctx, tx, artifactID, store.ArtifactStatusScheduled, store.ArtifactStatusFailed, reason); err != nil {
		return err
	}
	return tx.Commit()
}

// Cancel fails a pending job and its artifact with reason cancelled.
// In-flight and terminal jobs cannot be cancelled.
func (m *Manager) Cancel(ctx context.Context, jobID uuid.UUID) (*store.PublishJob, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != store.JobStatusPending {
		return nil, &store.InvalidStateError{
			Entity:   "job",
			ID:       jobID.String(),
			Current:  string(job.Status),
			Expected: string(store.JobStatusPending),
		}
	}
	if err := m.fail(ctx, job.ID, job.ArtifactID, store.JobStatusPending, job.AttemptCount, store.ReasonCancelled, ""); err != nil {
		return nil, err
	}
	m.logger.Info("job cancelled", "job_id", job.ID, "artifact_id", job.ArtifactID)
	return m.store.GetJob(ctx, jobID)
}

// Abandon settles an in-flight job whose worker never reported back.
//
// A job carrying a saved post was published: it is completed and its artifact
// published, and the post is returned. Any other job is failed with its artifact.
func (m *Manager) Abandon(ctx context.Context, job *store.PublishJob) (*store.PublishedPost, error) {
	log := m.logger.With("job_id", job.ID, "artifact_id", job.ArtifactID)

	if job.Published != nil {
		post := *job.Published
		err := m.recordSuccess(ctx, job, &post)
		if errors.Is(err, store.ErrInvalidState) {
			// Finished between the scan and the update.
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to reconcile published job %s: %w", job.ID, err)
		}
		m.record(ctx, "published")
		log.Info("published job reconciled", "post_ref", post.PostRef)
		return &post, nil
	}

	err := m.fail(ctx, job.ID, job.ArtifactID, store.JobStatusInFlight, job.AttemptCount, store.ReasonInFlightAbandoned, "")
	if errors.Is(err, store.ErrInvalidState) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.record(ctx, "abandoned")
	log.Warn("abandoned job failed", "claimed_at", job.ClaimedAt)
	return nil, nil
}

// Backoff returns the delay after the given failed attempt: base·2^(attempt-1), capped.
func (m *Manager) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := m.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.cfg.MaxBackoff {
			return m.cfg.MaxBackoff
		}
	}
	return d
}

func (m *Manager) record(ctx context.Context, outcome string) {
	if m.outcomes != nil {
		m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
