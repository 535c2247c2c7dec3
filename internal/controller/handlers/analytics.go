package handlers

import (
	"errors"
	"net/http"

	"contentplane/internal/platform"
	"contentplane/pkg/api"
)

// Snapshots handles GET /posts/{ref}/snapshots.
func (h *Handlers) Snapshots(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	snaps, err := h.analytics.Snapshots(r.Context(), ref)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := api.SnapshotsResponse{Snapshots: make([]api.SnapshotResponse, 0, len(snaps))}
	for _, s := range snaps {
		resp.Snapshots = append(resp.Snapshots, toSnapshotResponse(s))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// ArtifactAnalytics handles GET /artifacts/{id}/analytics.
// An artifact that was never published is not found.
func (h *Handlers) ArtifactAnalytics(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "artifact")
	if !ok {
		return
	}
	report, err := h.analytics.ArtifactAnalytics(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := api.ArtifactAnalyticsResponse{
		Post:      *toPostResponse(&report.Post),
		Snapshots: make([]api.SnapshotResponse, 0, len(report.Snapshots)),
	}
	for _, s := range report.Snapshots {
		resp.Snapshots = append(resp.Snapshots, toSnapshotResponse(s))
	}
	if latest := report.Latest(); latest != nil {
		l := toSnapshotResponse(*latest)
		resp.Latest = &l
	}
	h.respondJson(w, http.StatusOK, resp)
}

// AccountInsights handles GET /account/insights.
// Provider failures surface as 502.
func (h *Handlers) AccountInsights(w http.ResponseWriter, r *http.Request) {
	m, err := h.analytics.AccountInsights(r.Context())
	if err != nil {
		var pe *platform.PublishError
		if errors.As(err, &pe) {
			h.httpError(w, err.Error(), http.StatusBadGateway)
			return
		}
		h.fail(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.AccountInsightsResponse{
		Impressions:   m.Impressions,
		Reach:         m.Reach,
		ProfileViews:  m.ProfileViews,
		FollowerCount: m.FollowerCount,
	})
}
