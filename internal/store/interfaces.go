package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// Transactor opens transactions spanning several repository calls.
type Transactor interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// ArtifactFilter narrows ListArtifacts. Zero values match everything.
type ArtifactFilter struct {
	Status        ArtifactStatus
	ThemeID       string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}

// JobFilter narrows ListJobs. Zero values match everything.
type JobFilter struct {
	Status JobStatus
	Limit  int
}

// ArtifactStore persists content artifacts.
type ArtifactStore interface {
	// CreateArtifact inserts a new artifact.
	CreateArtifact(ctx context.Context, tx DBTransaction, artifact *Artifact) error

	// GetArtifact returns an artifact by its ID.
	GetArtifact(ctx context.Context, id uuid.UUID) (*Artifact, error)

	// ListArtifacts returns artifacts newest first.
	ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]Artifact, error)

	// TransitionArtifact moves an artifact from one status to another.
	// It fails with InvalidStateError when the current status is not 'from'.
	TransitionArtifact(ctx context.Context, tx DBTransaction, id uuid.UUID, from, to ArtifactStatus, reason string) error

	// SetMediaURLs attaches rendered media to an artifact that is not yet published.
	SetMediaURLs(ctx context.Context, id uuid.UUID, urls []string) (*Artifact, error)

	// ExpireDrafts fails every draft created before the cutoff.
	ExpireDrafts(ctx context.Context, createdBefore time.Time) (int64, error)
}

// JobStore persists publish jobs.
type JobStore interface {
	// CreateJob inserts a new pending job.
	CreateJob(ctx context.Context, tx DBTransaction, job *PublishJob) error

	// GetJob returns a job by its ID.
	GetJob(ctx context.Context, id uuid.UUID) (*PublishJob, error)

	// ActiveJobForArtifact returns the pending or in-flight job of an artifact.
	ActiveJobForArtifact(ctx context.Context, artifactID uuid.UUID) (*PublishJob, error)

	// ClaimJob moves a single pending job to in_flight.
	ClaimJob(ctx context.Context, id uuid.UUID) (*PublishJob, error)

	// CompleteJob moves an in-flight job to succeeded.
	CompleteJob(ctx context.Context, tx DBTransaction, id uuid.UUID) error

	// RetryJob returns an in-flight job to pending with its attempt count and next attempt time.
	RetryJob(ctx context.Context, tx DBTransaction, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastErr string) error

	// FailJob moves a job in status 'from' to failed.
	FailJob(ctx context.Context, tx DBTransaction, id uuid.UUID, from JobStatus, attempts int, reason, lastErr string) error

	// LockScheduleDay serializes scheduling decisions for one calendar day.
	LockScheduleDay(ctx context.Context, tx DBTransaction, day time.Time) error

	// ScheduledTimes returns target times of non-failed jobs in [from, to).
	ScheduledTimes(ctx context.Context, tx DBTransaction, from, to time.Time) ([]time.Time, error)

	// AbandonedJobs returns in-flight jobs claimed before the cutoff.
	AbandonedJobs(ctx context.Context, claimedBefore time.Time) ([]PublishJob, error)

	// SavePublished keeps the platform's answer on an in-flight job whose
	// outcome could not be recorded.
	SavePublished(ctx context.Context, id uuid.UUID, post *PublishedPost) error

	// ListJobs returns jobs ordered by target publish time.
	ListJobs(ctx context.Context, filter JobFilter) ([]PublishJob, error)
}

// PostStore persists published posts and their engagement history.
type PostStore interface {
	// CreatePost records a successful publication.
	CreatePost(ctx context.Context, tx DBTransaction, post *PublishedPost) error

	// GetPost returns a post by its platform reference.
	GetPost(ctx context.Context, postRef string) (*PublishedPost, error)

	// GetPostByArtifact returns the post an artifact was published as.
	GetPostByArtifact(ctx context.Context, artifactID uuid.UUID) (*PublishedPost, error)

	// ListPostsSince returns posts published at or after 'since'.
	ListPostsSince(ctx context.Context, since time.Time) ([]PublishedPost, error)

	// AddSnapshot appends an engagement snapshot.
	AddSnapshot(ctx context.Context, snapshot *EngagementSnapshot) error

	// ListSnapshots returns the snapshots of a post oldest first.
	ListSnapshots(ctx context.Context, postRef string) ([]EngagementSnapshot, error)
}

// GenerationStore coordinates generation runs across processes.
type GenerationStore interface {
	// ClaimGeneration takes the claim for a theme and day. It reports false
	// when the day is done, running elsewhere or out of attempts.
	ClaimGeneration(ctx context.Context, claim GenerationClaim) (bool, error)

	// FinishGeneration ends a claim. A retryable claim may be taken again.
	FinishGeneration(ctx context.Context, themeID string, day time.Time, retryable bool) error
}
