// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// GenerateCustomRequest is the request body for generating content for an explicit theme.
type GenerateCustomRequest struct {
	ThemeID     string `json:"theme_id"`
	Topic       string `json:"topic,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Block is one ordered text block of an artifact.
type Block struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// ArtifactResponse represents a content artifact in API responses.
type ArtifactResponse struct {
	ID             string     `json:"id"`
	ThemeID        string     `json:"theme_id"`
	ContentType    string     `json:"content_type"`
	Topic          string     `json:"topic,omitempty"`
	Title          string     `json:"title,omitempty"`
	Blocks         []Block    `json:"blocks"`
	Caption        string     `json:"caption,omitempty"`
	Hashtags       []string   `json:"hashtags"`
	MediaURLs      []string   `json:"media_urls"`
	Concept        string     `json:"concept,omitempty"`
	MagicalElement string     `json:"magical_element,omitempty"`
	NotBefore      *time.Time `json:"not_before,omitempty"`
	Status         string     `json:"status"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	AttemptCount   int        `json:"attempt_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// JobResponse represents a publish job in API responses.
type JobResponse struct {
	ID                string     `json:"id"`
	ArtifactID        string     `json:"artifact_id"`
	Status            string     `json:"status"`
	TargetPublishTime time.Time  `json:"target_publish_time"`
	NextAttemptAt     time.Time  `json:"next_attempt_at"`
	AttemptCount      int        `json:"attempt_count"`
	FailureReason     *string    `json:"failure_reason,omitempty"`
	LastError         *string    `json:"last_error,omitempty"`
	ClaimedAt         *time.Time `json:"claimed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// JobsResponse lists publish jobs, soonest target first.
type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// PostResponse represents a published post.
type PostResponse struct {
	PostRef     string    `json:"post_ref"`
	ArtifactID  string    `json:"artifact_id"`
	JobID       string    `json:"job_id"`
	Permalink   string    `json:"permalink,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// OutcomeResponse is the result of generating and scheduling one artifact.
// Artifact is present whenever one was persisted, including failed ones.
type OutcomeResponse struct {
	Weekday  string            `json:"weekday"`
	ThemeID  string            `json:"theme_id"`
	Artifact *ArtifactResponse `json:"artifact,omitempty"`
	Job      *JobResponse      `json:"job,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// WeeklyResponse lists the outcomes of a weekly batch, Monday first.
type WeeklyResponse struct {
	Outcomes []OutcomeResponse `json:"outcomes"`
}

// ThemeResponse describes one weekday theme.
type ThemeResponse struct {
	Weekday     string   `json:"weekday"`
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Tone        []string `json:"tone"`
	ContentType string   `json:"content_type"`
	WindowStart int      `json:"window_start_hour"`
	WindowEnd   int      `json:"window_end_hour"`
	Hashtags    []string `json:"hashtags"`
}

// ThemesResponse is the theme catalog.
type ThemesResponse struct {
	Themes []ThemeResponse `json:"themes"`
}

// SetMediaRequest attaches rendered media to an artifact.
type SetMediaRequest struct {
	MediaURLs []string `json:"media_urls"`
}

// ScheduleRequest is the optional body of a schedule call.
type ScheduleRequest struct {
	Earliest *time.Time `json:"earliest,omitempty"`
}

// PublishResponse is the result of an immediate publish: the post on success,
// otherwise the job state after the attempt.
type PublishResponse struct {
	Post  *PostResponse `json:"post,omitempty"`
	Job   *JobResponse  `json:"job,omitempty"`
	Error string        `json:"error,omitempty"`
}

// SnapshotResponse is one engagement reading.
type SnapshotResponse struct {
	ID         string    `json:"id"`
	PostRef    string    `json:"post_ref"`
	CapturedAt time.Time `json:"captured_at"`
	Likes      int64     `json:"likes"`
	Comments   int64     `json:"comments"`
	Reach      int64     `json:"reach"`
}

// SnapshotsResponse lists the engagement history of a post, oldest first.
type SnapshotsResponse struct {
	Snapshots []SnapshotResponse `json:"snapshots"`
}

// ArtifactAnalyticsResponse is the engagement of an artifact's post.
// Latest is absent until the first snapshot.
type ArtifactAnalyticsResponse struct {
	Post      PostResponse       `json:"post"`
	Latest    *SnapshotResponse  `json:"latest,omitempty"`
	Snapshots []SnapshotResponse `json:"snapshots"`
}

// AccountInsightsResponse is one daily reading of the publishing account.
type AccountInsightsResponse struct {
	Impressions   int64 `json:"impressions"`
	Reach         int64 `json:"reach"`
	ProfileViews  int64 `json:"profile_views"`
	FollowerCount int64 `json:"follower_count"`
}

// SweepResponse summarizes one sweep run.
type SweepResponse struct {
	Name       string         `json:"name"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Counts     map[string]int `json:"counts"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
