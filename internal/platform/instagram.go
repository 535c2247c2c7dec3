package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"contentplane/internal/store"
)

// InstagramConfig configures the Graph API client.
type InstagramConfig struct {
	APIURL      string
	AccessToken string
	AccountID   string
	Timeout     time.Duration

	// Video containers are processed asynchronously and polled before publishing.
	ContainerPollInterval time.Duration
	ContainerPollAttempts int
}

// Instagram publishes through the Instagram Graph API.
type Instagram struct {
	client  *http.Client
	limiter Limiter
	apiURL  string
	token   string
	account string

	pollInterval time.Duration
	pollAttempts int
}

// NewInstagram creates a client. A nil limiter disables the request budget.
func NewInstagram(cfg InstagramConfig, limiter Limiter) *Instagram {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://graph.facebook.com/v18.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ContainerPollInterval <= 0 {
		cfg.ContainerPollInterval = 3 * time.Second
	}
	if cfg.ContainerPollAttempts <= 0 {
		cfg.ContainerPollAttempts = 20
	}
	return &Instagram{
		client:       &http.Client{Timeout: cfg.Timeout},
		limiter:      limiter,
		apiURL:       apiURL,
		token:        cfg.AccessToken,
		account:      cfg.AccountID,
		pollInterval: cfg.ContainerPollInterval,
		pollAttempts: cfg.ContainerPollAttempts,
	}
}

type graphError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

type idResponse struct {
	ID string `json:"id"`
}

// Publish creates the media container(s) for the artifact and publishes them.
func (c *Instagram) Publish(ctx context.Context, a *store.Artifact) (*Result, error) {
	caption := Caption(a)

	var containerID string
	var err error
	switch a.ContentType {
	case store.ContentTypeCarousel:
		containerID, err = c.carouselContainer(ctx, a, caption)
	case store.ContentTypeVideo:
		containerID, err = c.videoContainer(ctx, a, caption)
	case store.ContentTypeStory:
		containerID, err = c.storyContainer(ctx, a)
	default:
		return nil, &PublishError{Kind: InvalidMedia, Message: fmt.Sprintf("unsupported content type %q", a.ContentType)}
	}
	if err != nil {
		return nil, err
	}

	var published idResponse
	if err := c.post(ctx, c.account+"/media_publish", url.Values{"creation_id": {containerID}}, &published); err != nil {
		return nil, err
	}
	if published.ID == "" {
		return nil, &PublishError{Kind: ServerError, Message: "publish returned no media id"}
	}

	res := &Result{PostRef: published.ID, PublishedAt: time.Now().UTC()}

	// Permalink is informational; the post exists either way.
	var link struct {
		Permalink string `json:"permalink"`
	}
	if err := c.get(ctx, published.ID, url.Values{"fields": {"permalink"}}, &link); err == nil {
		res.Permalink = link.Permalink
	}
	return res, nil
}

func (c *Instagram) carouselContainer(ctx context.Context, a *store.Artifact, caption string) (string, error) {
	if len(a.MediaURLs) < 2 || len(a.MediaURLs) > 10 {
		return "", &PublishError{Kind: InvalidMedia, Message: fmt.Sprintf("carousel needs 2 to 10 media items, got %d", len(a.MediaURLs))}
	}

	children := make([]string, 0, len(a.MediaURLs))
	for _, mediaURL := range a.MediaURLs {
		var child idResponse
		err := c.post(ctx, c.account+"/media", url.Values{
			"image_url":        {mediaURL},
			"is_carousel_item": {"true"},
		}, &child)
		if err != nil {
			return "", err
		}
		children = append(children, child.ID)
	}

	var container idResponse
	err := c.post(ctx, c.account+"/media", url.Values{
		"media_type": {"CAROUSEL"},
		"children":   {strings.Join(children, ",")},
		"caption":    {caption},
	}, &container)
	return container.ID, err
}

func (c *Instagram) videoContainer(ctx context.Context, a *store.Artifact, caption string) (string, error) {
	if len(a.MediaURLs) == 0 {
		return "", &PublishError{Kind: InvalidMedia, Message: "video has no media url"}
	}

	var container idResponse
	if err := c.post(ctx, c.account+"/media", url.Values{
		"media_type": {"REELS"},
		"video_url":  {a.MediaURLs[0]},
		"caption":    {caption},
	}, &container); err != nil {
		return "", err
	}
	return container.ID, c.awaitContainer(ctx, container.ID)
}

func (c *Instagram) storyContainer(ctx context.Context, a *store.Artifact) (string, error) {
	if len(a.MediaURLs) == 0 {
		return "", &PublishError{Kind: InvalidMedia, Message: "story has no media url"}
	}

	var container idResponse
	err := c.post(ctx, c.account+"/media", url.Values{
		"media_type": {"STORIES"},
		"image_url":  {a.MediaURLs[0]},
	}, &container)
	return container.ID, err
}

// awaitContainer polls an asynchronously processed container until it is ready.
func (c *Instagram) awaitContainer(ctx context.Context, containerID string) error {
	for i := 0; i < c.pollAttempts; i++ {
		var status struct {
			StatusCode string `json:"status_code"`
		}
		if err := c.get(ctx, containerID, url.Values{"fields": {"status_code"}}, &status); err != nil {
			return err
		}
		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return &PublishError{Kind: InvalidMedia, Message: fmt.Sprintf("media container %s is %s", containerID, status.StatusCode)}
		}

		select {
		case <-ctx.Done():
			return &PublishError{Kind: ServerError, Message: "container processing interrupted", Err: ctx.Err()}
		case <-time.After(c.pollInterval):
		}
	}
	return &PublishError{Kind: ServerError, Message: fmt.Sprintf("media container %s still processing", containerID)}
}

type insightsResponse struct {
	Data []struct {
		Name   string `json:"name"`
		Values []struct {
			Value int64 `json:"value"`
		} `json:"values"`
		TotalValue *struct {
			Value int64 `json:"value"`
		} `json:"total_value"`
	} `json:"data"`
}

// values returns the latest value of each metric. total_value wins over the series.
func (r insightsResponse) values() map[string]int64 {
	out := make(map[string]int64, len(r.Data))
	for _, d := range r.Data {
		switch {
		case d.TotalValue != nil:
			out[d.Name] = d.TotalValue.Value
		case len(d.Values) > 0:
			out[d.Name] = d.Values[len(d.Values)-1].Value
		}
	}
	return out
}

// Insights reads likes, comments and reach of a post.
func (c *Instagram) Insights(ctx context.Context, postRef string) (*Metrics, error) {
	var resp insightsResponse
	if err := c.get(ctx, postRef+"/insights", url.Values{"metric": {"likes,comments,reach"}}, &resp); err != nil {
		return nil, err
	}
	v := resp.values()
	return &Metrics{Likes: v["likes"], Comments: v["comments"], Reach: v["reach"]}, nil
}

// AccountInsights reads the daily account metrics.
func (c *Instagram) AccountInsights(ctx context.Context) (*AccountMetrics, error) {
	var resp insightsResponse
	err := c.get(ctx, c.account+"/insights", url.Values{
		"metric": {"impressions,reach,profile_views,follower_count"},
		"period": {"day"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	v := resp.values()
	return &AccountMetrics{
		Impressions:   v["impressions"],
		Reach:         v["reach"],
		ProfileViews:  v["profile_views"],
		FollowerCount: v["follower_count"],
	}, nil
}

func (c *Instagram) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	form.Set("access_token", c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("instagram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, req, out)
}

func (c *Instagram) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	query.Set("access_token", c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/"+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("instagram: create request: %w", err)
	}
	return c.do(ctx, req, out)
}

func (c *Instagram) do(ctx context.Context, req *http.Request, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Allow(ctx); err != nil {
			return err
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &PublishError{Kind: ServerError, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &PublishError{Kind: ServerError, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return classifyGraphError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &PublishError{Kind: ServerError, Message: "undecodable response", Err: err}
	}
	return nil
}

// classifyGraphError maps Graph API error codes to publish error kinds.
func classifyGraphError(status int, body []byte) error {
	var ge graphError
	_ = json.Unmarshal(body, &ge)
	code, sub := ge.Error.Code, ge.Error.ErrorSubcode
	msg := ge.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	kind := PolicyViolation
	switch {
	case status == http.StatusTooManyRequests || code == 4 || code == 17 || code == 32 || code == 613:
		kind = RateLimited
	case status == http.StatusUnauthorized || code == 190 || code == 102:
		kind = Unauthorized
	case code == 9004 || code == 36003 || code == 352 || (sub >= 2207001 && sub <= 2207099):
		kind = InvalidMedia
	case code == 368:
		kind = PolicyViolation
	case status >= http.StatusInternalServerError || code == 1 || code == 2:
		kind = ServerError
	}
	return &PublishError{Kind: kind, Code: code, Message: msg}
}

// Caption joins the artifact caption and hashtags the way they are posted.
func Caption(a *store.Artifact) string {
	if len(a.Hashtags) == 0 {
		return a.Caption
	}
	return a.Caption + "\n\n" + strings.Join(a.Hashtags, " ")
}

var _ Publisher = (*Instagram)(nil)
var _ InsightsReader = (*Instagram)(nil)
