// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"contentplane/internal/analytics"
	"contentplane/internal/content"
	"contentplane/internal/logger"
	"contentplane/internal/pipeline"
	"contentplane/internal/platform"
	"contentplane/internal/scheduler"
	"contentplane/internal/store"
	"contentplane/internal/theme"
	"contentplane/pkg/api"

	"github.com/google/uuid"
)

// Pipeline runs the generation flows and sweeps.
type Pipeline interface {
	GenerateDaily(ctx context.Context) (*pipeline.Outcome, error)
	GenerateWeekly(ctx context.Context) []pipeline.Outcome
	GenerateCustom(ctx context.Context, themeID, topic string, contentType store.ContentType) (*pipeline.Outcome, error)
	RunSweep(ctx context.Context, name string) (*pipeline.SweepSummary, error)
}

// Scheduler turns drafts into publish jobs.
type Scheduler interface {
	Schedule(ctx context.Context, artifactID uuid.UUID, earliest time.Time) (*store.PublishJob, error)
}

// Publisher executes and cancels publish jobs.
type Publisher interface {
	Execute(ctx context.Context, jobID uuid.UUID) (*store.PublishedPost, error)
	Cancel(ctx context.Context, jobID uuid.UUID) (*store.PublishJob, error)
}

// Analytics reads engagement history.
type Analytics interface {
	Snapshots(ctx context.Context, postRef string) ([]store.EngagementSnapshot, error)
	ArtifactAnalytics(ctx context.Context, artifactID uuid.UUID) (*analytics.ArtifactReport, error)
	AccountInsights(ctx context.Context) (*platform.AccountMetrics, error)
}

// Store is the read side the handlers query directly.
type Store interface {
	GetArtifact(ctx context.Context, id uuid.UUID) (*store.Artifact, error)
	SetMediaURLs(ctx context.Context, id uuid.UUID, urls []string) (*store.Artifact, error)
	GetJob(ctx context.Context, id uuid.UUID) (*store.PublishJob, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]store.PublishJob, error)
	ActiveJobForArtifact(ctx context.Context, artifactID uuid.UUID) (*store.PublishJob, error)
}

// Deps are the collaborators of the handlers.
type Deps struct {
	Themes    *theme.Registry
	Pipeline  Pipeline
	Scheduler Scheduler
	Publisher Publisher
	Analytics Analytics
	Store     Store
	Logger    *slog.Logger
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	themes    *theme.Registry
	pipeline  Pipeline
	scheduler Scheduler
	publisher Publisher
	analytics Analytics
	store     Store
	logger    *slog.Logger
}

// New creates a new Handlers instance.
func New(d Deps) *Handlers {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handlers{
		themes:    d.Themes,
		pipeline:  d.Pipeline,
		scheduler: d.Scheduler,
		publisher: d.Publisher,
		analytics: d.Analytics,
		store:     d.Store,
		logger:    d.Logger,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidState), errors.Is(err, scheduler.ErrNoCapacity):
		return http.StatusConflict
	case errors.Is(err, content.ErrInvalidRequest), errors.Is(err, pipeline.ErrUnknownSweep):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the mapped error. Infrastructure errors are logged and masked.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), h.logger).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		h.httpError(w, "Internal error", code)
		return
	}
	h.httpError(w, err.Error(), code)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handlers) pathUUID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid "+what+" id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func toArtifactResponse(a *store.Artifact) *api.ArtifactResponse {
	if a == nil {
		return nil
	}
	blocks := make([]api.Block, len(a.Blocks))
	for i, b := range a.Blocks {
		blocks[i] = api.Block{Kind: string(b.Kind), Text: b.Text}
	}
	return &api.ArtifactResponse{
		ID:             a.ID.String(),
		ThemeID:        a.ThemeID,
		ContentType:    string(a.ContentType),
		Topic:          a.Topic,
		Title:          a.Title,
		Blocks:         blocks,
		Caption:        a.Caption,
		Hashtags:       nonNil(a.Hashtags),
		MediaURLs:      nonNil(a.MediaURLs),
		Concept:        a.Concept,
		MagicalElement: a.MagicalElement,
		NotBefore:      a.NotBefore,
		Status:         string(a.Status),
		FailureReason:  a.FailureReason,
		AttemptCount:   a.AttemptCount,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toJobResponse(j *store.PublishJob) *api.JobResponse {
	if j == nil {
		return nil
	}
	return &api.JobResponse{
		ID:                j.ID.String(),
		ArtifactID:        j.ArtifactID.String(),
		Status:            string(j.Status),
		TargetPublishTime: j.TargetPublishTime,
		NextAttemptAt:     j.NextAttemptAt,
		AttemptCount:      j.AttemptCount,
		FailureReason:     j.FailureReason,
		LastError:         j.LastError,
		ClaimedAt:         j.ClaimedAt,
		CreatedAt:         j.CreatedAt,
	}
}

func toPostResponse(p *store.PublishedPost) *api.PostResponse {
	return &api.PostResponse{
		PostRef:     p.PostRef,
		ArtifactID:  p.ArtifactID.String(),
		JobID:       p.JobID.String(),
		Permalink:   p.Permalink,
		PublishedAt: p.PublishedAt,
	}
}

func toSnapshotResponse(s store.EngagementSnapshot) api.SnapshotResponse {
	return api.SnapshotResponse{
		ID:         s.ID.String(),
		PostRef:    s.PostRef,
		CapturedAt: s.CapturedAt,
		Likes:      s.Likes,
		Comments:   s.Comments,
		Reach:      s.Reach,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
