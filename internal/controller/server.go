// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"contentplane/internal/controller/handlers"
	"contentplane/internal/controller/middleware"
)

// Options configures the server surface.
type Options struct {
	// APIToken is the bearer token every API route requires.
	APIToken string

	// GenerateRatePerMinute limits generation requests per client. Zero disables the limit.
	GenerateRatePerMinute int
	GenerateBurst         int

	// Metrics serves /metrics when set.
	Metrics http.Handler

	// WriteTimeout bounds a response. Generation with provider retries is slow (default: 5m).
	WriteTimeout time.Duration
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, deps handlers.Deps, opts Options) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Minute
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      NewHandler(deps, opts),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: opts.WriteTimeout,
		},
	}
}

// NewHandler builds the routed handler tree.
func NewHandler(deps handlers.Deps, opts Options) http.Handler {
	h := handlers.New(deps)
	auth := middleware.RequireToken(opts.APIToken)
	burst := opts.GenerateBurst
	if burst <= 0 {
		burst = 3
	}
	limit := middleware.NewRateLimiter(opts.GenerateRatePerMinute, middleware.WithBurst(burst)).Middleware()

	authed := func(f http.HandlerFunc) http.Handler { return auth(f) }
	generation := func(f http.HandlerFunc) http.Handler { return auth(limit(f)) }

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	// Generation calls the provider and is rate limited.
	mux.Handle("POST /generate/daily", generation(h.GenerateDaily))
	mux.Handle("POST /generate/weekly", generation(h.GenerateWeekly))
	mux.Handle("POST /generate/custom", generation(h.GenerateCustom))

	mux.Handle("GET /themes", authed(h.Themes))
	mux.Handle("GET /artifacts/{id}", authed(h.GetArtifact))
	mux.Handle("PUT /artifacts/{id}/media", authed(h.SetMedia))
	mux.Handle("POST /artifacts/{id}/schedule", authed(h.ScheduleArtifact))
	mux.Handle("POST /artifacts/{id}/publish", authed(h.PublishArtifact))
	mux.Handle("GET /artifacts/{id}/analytics", authed(h.ArtifactAnalytics))
	mux.Handle("GET /jobs", authed(h.ListJobs))
	mux.Handle("GET /jobs/{id}", authed(h.GetJob))
	mux.Handle("POST /jobs/{id}/cancel", authed(h.CancelJob))
	mux.Handle("GET /posts/{ref}/snapshots", authed(h.Snapshots))
	mux.Handle("GET /account/insights", authed(h.AccountInsights))
	mux.Handle("POST /sweeps/{name}", authed(h.RunSweep))

	return middleware.RequestID(mux)
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
