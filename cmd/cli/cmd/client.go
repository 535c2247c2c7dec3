package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"contentplane/pkg/api"
)

// ContentClient handles API calls to the contentplane controller.
type ContentClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewContentClient creates a new client with the given base URL and token.
// Generation waits on the provider, so the timeout is generous.
func NewContentClient(baseURL, token string) *ContentClient {
	return &ContentClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends a JSON request and decodes a 2xx response into out.
func (c *ContentClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		msg := errResp.Error
		if errResp.Details != "" {
			msg += " (" + errResp.Details + ")"
		}
		return &APIError{StatusCode: status, Message: msg}
	}
	return &APIError{StatusCode: status, Message: string(bytes.TrimSpace(body))}
}

// GenerateDaily sends POST /generate/daily.
func (c *ContentClient) GenerateDaily() (*api.OutcomeResponse, error) {
	var out api.OutcomeResponse
	return &out, c.do(http.MethodPost, "/generate/daily", nil, &out)
}

// GenerateWeekly sends POST /generate/weekly.
func (c *ContentClient) GenerateWeekly() (*api.WeeklyResponse, error) {
	var out api.WeeklyResponse
	return &out, c.do(http.MethodPost, "/generate/weekly", nil, &out)
}

// GenerateCustom sends POST /generate/custom.
func (c *ContentClient) GenerateCustom(req api.GenerateCustomRequest) (*api.OutcomeResponse, error) {
	var out api.OutcomeResponse
	return &out, c.do(http.MethodPost, "/generate/custom", req, &out)
}

// Themes sends GET /themes.
func (c *ContentClient) Themes() (*api.ThemesResponse, error) {
	var out api.ThemesResponse
	return &out, c.do(http.MethodGet, "/themes", nil, &out)
}

// GetArtifact sends GET /artifacts/{id}.
func (c *ContentClient) GetArtifact(id string) (*api.ArtifactResponse, error) {
	var out api.ArtifactResponse
	return &out, c.do(http.MethodGet, "/artifacts/"+url.PathEscape(id), nil, &out)
}

// SetMedia sends PUT /artifacts/{id}/media.
func (c *ContentClient) SetMedia(id string, urls []string) (*api.ArtifactResponse, error) {
	var out api.ArtifactResponse
	return &out, c.do(http.MethodPut, "/artifacts/"+url.PathEscape(id)+"/media", api.SetMediaRequest{MediaURLs: urls}, &out)
}

// Schedule sends POST /artifacts/{id}/schedule.
func (c *ContentClient) Schedule(id string, earliest *time.Time) (*api.JobResponse, error) {
	var out api.JobResponse
	return &out, c.do(http.MethodPost, "/artifacts/"+url.PathEscape(id)+"/schedule", api.ScheduleRequest{Earliest: earliest}, &out)
}

// Publish sends POST /artifacts/{id}/publish.
func (c *ContentClient) Publish(id string) (*api.PublishResponse, error) {
	var out api.PublishResponse
	return &out, c.do(http.MethodPost, "/artifacts/"+url.PathEscape(id)+"/publish", nil, &out)
}

// GetJob sends GET /jobs/{id}.
func (c *ContentClient) GetJob(id string) (*api.JobResponse, error) {
	var out api.JobResponse
	return &out, c.do(http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &out)
}

// ListJobs sends GET /jobs. An empty status lists every job.
func (c *ContentClient) ListJobs(status string, limit int) (*api.JobsResponse, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out api.JobsResponse
	return &out, c.do(http.MethodGet, path, nil, &out)
}

// CancelJob sends POST /jobs/{id}/cancel.
func (c *ContentClient) CancelJob(id string) (*api.JobResponse, error) {
	var out api.JobResponse
	return &out, c.do(http.MethodPost, "/jobs/"+url.PathEscape(id)+"/cancel", nil, &out)
}

// Snapshots sends GET /posts/{ref}/snapshots.
func (c *ContentClient) Snapshots(postRef string) (*api.SnapshotsResponse, error) {
	var out api.SnapshotsResponse
	return &out, c.do(http.MethodGet, "/posts/"+url.PathEscape(postRef)+"/snapshots", nil, &out)
}

// ArtifactAnalytics sends GET /artifacts/{id}/analytics.
func (c *ContentClient) ArtifactAnalytics(id string) (*api.ArtifactAnalyticsResponse, error) {
	var out api.ArtifactAnalyticsResponse
	return &out, c.do(http.MethodGet, "/artifacts/"+url.PathEscape(id)+"/analytics", nil, &out)
}

// AccountInsights sends GET /account/insights.
func (c *ContentClient) AccountInsights() (*api.AccountInsightsResponse, error) {
	var out api.AccountInsightsResponse
	return &out, c.do(http.MethodGet, "/account/insights", nil, &out)
}

// RunSweep sends POST /sweeps/{name}.
func (c *ContentClient) RunSweep(name string) (*api.SweepResponse, error) {
	var out api.SweepResponse
	return &out, c.do(http.MethodPost, "/sweeps/"+url.PathEscape(name), nil, &out)
}

// printError reports a failed call the way every command does.
func printError(out interface{ Printf(string, ...interface{}) }, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		out.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
		return
	}
	out.Printf("Error: %v\n", err)
}
