package handlers

import (
	"net/http"
	"strconv"

	"contentplane/internal/store"
	"contentplane/pkg/api"
)

var jobStatuses = map[store.JobStatus]bool{
	store.JobStatusPending:   true,
	store.JobStatusInFlight:  true,
	store.JobStatusSucceeded: true,
	store.JobStatusFailed:    true,
}

// ListJobs handles GET /jobs?status=pending&limit=20.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.JobFilter{Status: store.JobStatus(q.Get("status"))}
	if filter.Status != "" && !jobStatuses[filter.Status] {
		h.httpError(w, "Invalid status filter", http.StatusBadRequest)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.httpError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	jobs, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := api.JobsResponse{Jobs: make([]api.JobResponse, 0, len(jobs))}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, *toJobResponse(&jobs[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "job")
	if !ok {
		return
	}
	job, err := h.store.GetJob(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(job))
}

// CancelJob handles POST /jobs/{id}/cancel.
// Only pending jobs can be cancelled; an in-flight publish is never interrupted.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "job")
	if !ok {
		return
	}
	job, err := h.publisher.Cancel(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(job))
}

// RunSweep handles POST /sweeps/{name}.
func (h *Handlers) RunSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.pipeline.RunSweep(r.Context(), r.PathValue("name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.SweepResponse{
		Name:       summary.Name,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Counts:     summary.Counts,
	})
}
