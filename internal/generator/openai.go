// Package generator implements content.Generator against an OpenAI-compatible chat completions API.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"contentplane/internal/content"

	"golang.org/x/time/rate"
)

// Config configures the OpenAI provider.
type Config struct {
	APIURL            string
	APIKey            string
	Model             string
	Temperature       float64
	MaxTokens         int
	RequestsPerMinute int
	Timeout           time.Duration
}

// OpenAI calls /chat/completions and returns the first choice's message content.
type OpenAI struct {
	client      *http.Client
	limiter     *rate.Limiter
	apiURL      string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAI creates a provider with local request pacing.
func NewOpenAI(cfg Config) *OpenAI {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &OpenAI{
		client:      &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		apiURL:      apiURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate implements content.Generator.
func (p *OpenAI) Generate(ctx context.Context, prompt content.Prompt) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", &content.ProviderError{Kind: content.RateLimited, Message: "local request budget exhausted", Err: err}
	}

	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature:    p.temperature,
		MaxTokens:      p.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", transportError(err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", statusError(resp.StatusCode, body)
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &content.ProviderError{Kind: content.InvalidResponse, Message: "undecodable response", Err: err}
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", &content.ProviderError{Kind: content.InvalidResponse, Message: "response has no content"}
	}
	return out.Choices[0].Message.Content, nil
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var apiErr apiErrorBody
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	msg = fmt.Sprintf("status %d: %s", status, msg)

	switch {
	case status == http.StatusTooManyRequests:
		return &content.ProviderError{Kind: content.RateLimited, Message: msg}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &content.ProviderError{Kind: content.Unauthorized, Message: msg}
	case status == http.StatusRequestTimeout || status >= http.StatusInternalServerError:
		return &content.ProviderError{Kind: content.Timeout, Message: msg}
	default:
		return &content.ProviderError{Kind: content.InvalidResponse, Message: msg}
	}
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &content.ProviderError{Kind: content.Timeout, Message: "request timed out", Err: err}
	}
	// Connection resets and refused dials are transient from the caller's view.
	return &content.ProviderError{Kind: content.Timeout, Message: "request failed", Err: err}
}
