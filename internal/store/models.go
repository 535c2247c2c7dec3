// Package store contains the database layer for contentplane.
package store

import (
	"time"

	"github.com/google/uuid"
)

// ContentType is the shape of a generated artifact.
type ContentType string

const (
	ContentTypeCarousel ContentType = "carousel"
	ContentTypeVideo    ContentType = "video"
	ContentTypeStory    ContentType = "story"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeCarousel, ContentTypeVideo, ContentTypeStory:
		return true
	}
	return false
}

// ArtifactStatus represents the lifecycle state of a content artifact.
type ArtifactStatus string

const (
	ArtifactStatusDraft     ArtifactStatus = "draft"
	ArtifactStatusScheduled ArtifactStatus = "scheduled"
	ArtifactStatusPublished ArtifactStatus = "published"
	ArtifactStatusFailed    ArtifactStatus = "failed"
)

// BlockKind tags a single ordered text block of an artifact.
type BlockKind string

const (
	BlockSlide BlockKind = "slide"
	BlockHook  BlockKind = "hook"
	BlockBody  BlockKind = "body"
	BlockCTA   BlockKind = "cta"
	BlockFrame BlockKind = "frame"
)

// Block is one ordered text block of an artifact.
type Block struct {
	Kind BlockKind `json:"kind"`
	Text string    `json:"text"`
}

// Artifact is a piece of generated content and its lifecycle state.
type Artifact struct {
	ID          uuid.UUID
	ThemeID     string
	ContentType ContentType
	Topic       string
	Title       string
	Blocks      []Block
	Caption     string
	Hashtags    []string
	MediaURLs   []string
	// Concept and MagicalElement are the framing the content was written around.
	Concept        string
	MagicalElement string
	// NotBefore is the earliest publish time the artifact was generated for.
	NotBefore     *time.Time
	Status        ArtifactStatus
	FailureReason *string
	AttemptCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobStatus represents the state of a publish job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusInFlight  JobStatus = "in_flight"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// PublishJob is a scheduled intent to publish one artifact.
type PublishJob struct {
	ID                uuid.UUID
	ArtifactID        uuid.UUID
	TargetPublishTime time.Time
	NextAttemptAt     time.Time
	AttemptCount      int
	Status            JobStatus
	FailureReason     *string
	LastError         *string
	ClaimedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Published is set when the platform accepted the post but the outcome
	// was not yet recorded.
	Published *PublishedPost
}

// PublishedPost records a successful publication. It is never updated.
type PublishedPost struct {
	PostRef     string
	ArtifactID  uuid.UUID
	JobID       uuid.UUID
	Permalink   string
	PublishedAt time.Time
}

// GenerationState is the state of a generation claim.
type GenerationState string

const (
	GenerationRunning GenerationState = "running"
	GenerationRetry   GenerationState = "retry"
	GenerationDone    GenerationState = "done"
)

// GenerationClaim asks for the right to generate a theme's content for one publish day.
type GenerationClaim struct {
	ThemeID string
	Day     time.Time
	// Running claims older than StaleBefore belong to a run that died.
	StaleBefore time.Time
	// MaxAttempts bounds how often the day may be claimed. Zero means no bound.
	MaxAttempts int
	// Force takes the claim regardless of its state.
	Force bool
}

// EngagementSnapshot is a point-in-time engagement reading for a post.
type EngagementSnapshot struct {
	ID         uuid.UUID
	PostRef    string
	CapturedAt time.Time
	Likes      int64
	Comments   int64
	Reach      int64
}

// Failure reason codes recorded on artifacts and jobs.
const (
	ReasonProviderRateLimited     = "provider_rate_limited"
	ReasonProviderTimeout         = "provider_timeout"
	ReasonProviderUnauthorized    = "provider_unauthorized"
	ReasonProviderInvalidResponse = "provider_invalid_response"
	ReasonFormatError             = "format_error"
	ReasonPublishRateLimited      = "publish_rate_limited"
	ReasonPublishServerError      = "publish_server_error"
	ReasonInvalidMedia            = "invalid_media"
	ReasonPolicyViolation         = "policy_violation"
	ReasonPublishUnauthorized     = "publish_unauthorized"
	ReasonAttemptsExhausted       = "attempts_exhausted"
	ReasonCancelled               = "cancelled"
	ReasonDraftExpired            = "draft_expired"
	ReasonInFlightAbandoned       = "in_flight_abandoned"
	ReasonArtifactNotScheduled    = "artifact_not_scheduled"
)
