package handlers

import (
	"errors"
	"net/http"

	"contentplane/internal/content"
	"contentplane/internal/pipeline"
	"contentplane/internal/store"
	"contentplane/pkg/api"
)

// GenerateDaily handles POST /generate/daily.
// It generates and schedules one artifact for today's theme.
func (h *Handlers) GenerateDaily(w http.ResponseWriter, r *http.Request) {
	out, err := h.pipeline.GenerateDaily(r.Context())
	h.respondOutcome(w, r, out, err)
}

// GenerateCustom handles POST /generate/custom.
func (h *Handlers) GenerateCustom(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateCustomRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ThemeID == "" {
		h.httpError(w, "theme_id is required", http.StatusBadRequest)
		return
	}

	out, err := h.pipeline.GenerateCustom(r.Context(), req.ThemeID, req.Topic, store.ContentType(req.ContentType))
	h.respondOutcome(w, r, out, err)
}

// GenerateWeekly handles POST /generate/weekly.
// Days fail independently; the response always lists seven outcomes.
func (h *Handlers) GenerateWeekly(w http.ResponseWriter, r *http.Request) {
	outcomes := h.pipeline.GenerateWeekly(r.Context())

	resp := api.WeeklyResponse{Outcomes: make([]api.OutcomeResponse, 0, len(outcomes))}
	for i := range outcomes {
		resp.Outcomes = append(resp.Outcomes, toOutcomeResponse(&outcomes[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// Themes handles GET /themes.
func (h *Handlers) Themes(w http.ResponseWriter, r *http.Request) {
	all := h.themes.All()
	resp := api.ThemesResponse{Themes: make([]api.ThemeResponse, 0, len(all))}
	for _, t := range all {
		resp.Themes = append(resp.Themes, api.ThemeResponse{
			Weekday:     t.Weekday.String(),
			ID:          t.ID,
			DisplayName: t.DisplayName,
			Tone:        nonNil(t.Tone),
			ContentType: string(t.ContentType),
			WindowStart: t.Window.StartHour,
			WindowEnd:   t.Window.EndHour,
			Hashtags:    nonNil(t.Hashtags),
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// respondOutcome writes a single generation outcome. A provider or format
// failure is a result, not a request error: the failed artifact carries the reason.
func (h *Handlers) respondOutcome(w http.ResponseWriter, r *http.Request, out *pipeline.Outcome, err error) {
	if err == nil || (out != nil && out.Artifact != nil && isGenerationFailure(err)) {
		h.respondJson(w, http.StatusOK, toOutcomeResponse(out))
		return
	}
	if out != nil && out.Artifact != nil && statusFor(err) == http.StatusConflict {
		// Generated but not scheduled; the draft is kept for the generation sweep.
		h.respondJson(w, http.StatusConflict, api.ErrorResponse{
			Error:   err.Error(),
			Code:    "409",
			Details: "artifact " + out.Artifact.ID.String() + " kept as draft",
		})
		return
	}
	h.fail(w, r, err)
}

func isGenerationFailure(err error) bool {
	var pe *content.ProviderError
	var fe *content.FormatError
	return errors.As(err, &pe) || errors.As(err, &fe)
}

func toOutcomeResponse(out *pipeline.Outcome) api.OutcomeResponse {
	resp := api.OutcomeResponse{
		Weekday:  out.Weekday.String(),
		ThemeID:  out.ThemeID,
		Artifact: toArtifactResponse(out.Artifact),
		Job:      toJobResponse(out.Job),
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	return resp
}
