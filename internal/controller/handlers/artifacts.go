package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"contentplane/internal/platform"
	"contentplane/internal/publisher"
	"contentplane/pkg/api"
)

// GetArtifact handles GET /artifacts/{id}.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "artifact")
	if !ok {
		return
	}
	a, err := h.store.GetArtifact(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toArtifactResponse(a))
}

// SetMedia handles PUT /artifacts/{id}/media.
// Rendered media is produced outside this service and attached before publishing.
func (h *Handlers) SetMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "artifact")
	if !ok {
		return
	}
	var req api.SetMediaRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.MediaURLs) == 0 {
		h.httpError(w, "media_urls is required", http.StatusBadRequest)
		return
	}

	a, err := h.store.SetMediaURLs(r.Context(), id, req.MediaURLs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toArtifactResponse(a))
}

// ScheduleArtifact handles POST /artifacts/{id}/schedule.
// An empty body schedules at the earliest legal slot from now.
func (h *Handlers) ScheduleArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "artifact")
	if !ok {
		return
	}
	var req api.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	var earliest time.Time
	if req.Earliest != nil {
		earliest = *req.Earliest
	}

	job, err := h.scheduler.Schedule(r.Context(), id, earliest)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJson(w, http.StatusCreated, toJobResponse(job))
}

// PublishArtifact handles POST /artifacts/{id}/publish.
// It publishes the artifact's pending job now. A platform failure, or a post
// whose outcome could not be recorded, is reported with the job state after the attempt.
func (h *Handlers) PublishArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "artifact")
	if !ok {
		return
	}
	ctx := r.Context()

	job, err := h.store.ActiveJobForArtifact(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	post, err := h.publisher.Execute(ctx, job.ID)
	if err == nil {
		h.respondJson(w, http.StatusOK, api.PublishResponse{Post: toPostResponse(post)})
		return
	}

	var retry *publisher.RetryScheduledError
	var pe *platform.PublishError
	var unrecorded *publisher.UnrecordedPostError
	if !errors.As(err, &retry) && !errors.As(err, &pe) && !errors.As(err, &unrecorded) {
		h.fail(w, r, err)
		return
	}

	after, gerr := h.store.GetJob(ctx, job.ID)
	if gerr != nil {
		h.fail(w, r, gerr)
		return
	}
	h.respondJson(w, http.StatusOK, api.PublishResponse{Job: toJobResponse(after), Error: err.Error()})
}
