// Package platform talks to the social publishing provider.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contentplane/internal/store"
)

// Result describes a successful publication.
type Result struct {
	PostRef     string
	Permalink   string
	PublishedAt time.Time
}

// Metrics is one engagement reading.
type Metrics struct {
	Likes    int64
	Comments int64
	Reach    int64
}

// AccountMetrics is one daily reading of the publishing account.
type AccountMetrics struct {
	Impressions   int64
	Reach         int64
	ProfileViews  int64
	FollowerCount int64
}

// Publisher publishes an artifact.
type Publisher interface {
	Publish(ctx context.Context, artifact *store.Artifact) (*Result, error)
}

// InsightsReader reads engagement metrics of published posts and of the account.
type InsightsReader interface {
	Insights(ctx context.Context, postRef string) (*Metrics, error)
	AccountInsights(ctx context.Context) (*AccountMetrics, error)
}

// ErrorKind classifies publishing failures.
type ErrorKind string

const (
	RateLimited     ErrorKind = "rate_limited"
	ServerError     ErrorKind = "server_error"
	InvalidMedia    ErrorKind = "invalid_media"
	PolicyViolation ErrorKind = "policy_violation"
	Unauthorized    ErrorKind = "unauthorized"
)

// PublishError is returned for every provider-side failure.
type PublishError struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *PublishError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("publish %s (code %d): %s", e.Kind, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("publish %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("publish %s: %s", e.Kind, e.Message)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Transient reports whether a later attempt may succeed.
func (e *PublishError) Transient() bool {
	return e.Kind == RateLimited || e.Kind == ServerError
}

// Reason maps the kind to the failure reason recorded on jobs and artifacts.
func (e *PublishError) Reason() string {
	switch e.Kind {
	case RateLimited:
		return store.ReasonPublishRateLimited
	case ServerError:
		return store.ReasonPublishServerError
	case InvalidMedia:
		return store.ReasonInvalidMedia
	case Unauthorized:
		return store.ReasonPublishUnauthorized
	default:
		return store.ReasonPolicyViolation
	}
}

// AsPublishError classifies any error from a Publisher. Unknown errors are
// treated as transient server errors.
func AsPublishError(err error) *PublishError {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe
	}
	return &PublishError{Kind: ServerError, Message: "unclassified failure", Err: err}
}
