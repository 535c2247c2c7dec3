// Package content turns a theme and topic into a validated, persisted artifact.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"contentplane/internal/store"
	"contentplane/internal/theme"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// ErrInvalidRequest is returned for requests rejected before any provider call.
var ErrInvalidRequest = errors.New("invalid content request")

// Request asks for one artifact. An empty ContentType uses the theme's default.
// NotBefore, when set, is stored on the artifact as its earliest publish time.
type Request struct {
	ThemeID     string
	Topic       string
	ContentType store.ContentType
	NotBefore   time.Time
}

// ArtifactWriter is the persistence the engine needs.
type ArtifactWriter interface {
	CreateArtifact(ctx context.Context, tx store.DBTransaction, artifact *store.Artifact) error
}

// Config tunes provider retries.
type Config struct {
	MaxRetries  int           // retries after the first call (default: 3)
	BaseBackoff time.Duration // first retry delay (default: 2s)
	MaxBackoff  time.Duration // delay cap (default: 30s)
	CallTimeout time.Duration // per provider call (default: 60s)
}

// Engine generates content artifacts.
type Engine struct {
	themes *theme.Registry
	gen    Generator
	store  ArtifactWriter
	cfg    Config
	retry  retrypolicy.RetryPolicy[string]
	logger *slog.Logger
	now    func() time.Time

	artifacts     metric.Int64Counter
	providerCalls metric.Int64Counter
}

// NewEngine creates an engine. A negative MaxRetries disables retries.
func NewEngine(themes *theme.Registry, gen Generator, st ArtifactWriter, cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	retry := retrypolicy.NewBuilder[string]().
		HandleIf(func(_ string, err error) bool {
			return IsRetryable(err)
		}).
		WithBackoff(cfg.BaseBackoff, cfg.MaxBackoff).
		WithMaxRetries(cfg.MaxRetries).
		ReturnLastFailure().
		Build()

	meter := otel.Meter("contentplane/content")
	artifacts, err := meter.Int64Counter("contentplane.content.artifacts",
		metric.WithDescription("Artifacts generated, by resulting status"))
	if err != nil {
		logger.Warn("failed to register artifacts counter", "error", err)
	}
	providerCalls, err := meter.Int64Counter("contentplane.content.provider_calls",
		metric.WithDescription("Calls made to the generative provider"))
	if err != nil {
		logger.Warn("failed to register provider calls counter", "error", err)
	}

	return &Engine{
		themes:        themes,
		gen:           gen,
		store:         st,
		cfg:           cfg,
		retry:         retry,
		logger:        logger,
		now:           time.Now,
		artifacts:     artifacts,
		providerCalls: providerCalls,
	}
}

// Generate produces and persists one artifact.
//
// Unknown themes and invalid requests fail without persisting anything.
// Provider and format failures persist a failed artifact and return it together
// with the *ProviderError or *FormatError. On success the artifact is a draft.
func (e *Engine) Generate(ctx context.Context, req Request) (*store.Artifact, error) {
	th, err := e.themes.ResolveByID(req.ThemeID)
	if err != nil {
		return nil, err
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = th.ContentType
	}
	if !contentType.Valid() {
		return nil, fmt.Errorf("%w: unknown content type %q", ErrInvalidRequest, contentType)
	}

	now := e.now().UTC()
	topic := req.Topic
	if topic == "" {
		topic = FallbackTopic(th, now)
	}

	ctx, span := otel.Tracer("content-engine").Start(ctx, "content.generate")
	span.SetAttributes(
		attribute.String("theme.id", th.ID),
		attribute.String("content.type", string(contentType)),
	)
	defer span.End()

	framing := PickFraming(th, now)
	prompt := BuildPrompt(th, topic, contentType, framing)

	calls := 0
	raw, genErr := failsafe.With(e.retry).WithContext(ctx).Get(func() (string, error) {
		calls++
		if e.providerCalls != nil {
			e.providerCalls.Add(ctx, 1)
		}
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
		out, err := e.gen.Generate(callCtx, prompt)
		if err != nil {
			return "", classify(err)
		}
		return out, nil
	})

	artifact := &store.Artifact{
		ID:             uuid.New(),
		ThemeID:        th.ID,
		ContentType:    contentType,
		Topic:          topic,
		Hashtags:       Hashtags(th, topic, contentType),
		Concept:        framing.Concept,
		MagicalElement: framing.MagicalElement,
		AttemptCount:   max(calls-1, 0),
		CreatedAt:      now,
	}
	if !req.NotBefore.IsZero() {
		notBefore := req.NotBefore.UTC()
		artifact.NotBefore = &notBefore
	}

	var failure error
	if genErr != nil {
		failure = classify(genErr)
	} else {
		parsed, err := Parse(contentType, raw)
		if err != nil {
			failure = err
		} else {
			artifact.Title = parsed.Title
			artifact.Blocks = parsed.Blocks
			artifact.Caption = parsed.Caption
			if artifact.Title == "" {
				artifact.Title = fmt.Sprintf("%s: %s", th.DisplayName, topic)
			}
			if artifact.Caption == "" {
				artifact.Caption = fallbackCaption(contentType, topic)
			}
		}
	}

	if failure != nil {
		reason := failureReason(failure)
		artifact.Status = store.ArtifactStatusFailed
		artifact.FailureReason = &reason
		span.RecordError(failure)
		span.SetStatus(codes.Error, reason)
	} else {
		artifact.Status = store.ArtifactStatusDraft
	}

	// Persist even when the caller's context is already done.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.store.CreateArtifact(persistCtx, nil, artifact); err != nil {
		return nil, fmt.Errorf("failed to persist artifact: %w", err)
	}

	if e.artifacts != nil {
		e.artifacts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(artifact.Status)),
			attribute.String("content_type", string(contentType)),
		))
	}

	log := e.logger.With("artifact_id", artifact.ID, "theme_id", th.ID, "content_type", contentType, "provider_calls", calls)
	if failure != nil {
		log.Warn("content generation failed", "reason", *artifact.FailureReason, "error", failure)
		return artifact, failure
	}
	log.Info("content generated")
	return artifact, nil
}

// FallbackTopic picks a theme topic deterministically for the given day.
func FallbackTopic(t theme.Theme, day time.Time) string {
	if len(t.FallbackTopics) == 0 {
		return "everyday parenting"
	}
	return t.FallbackTopics[day.YearDay()%len(t.FallbackTopics)]
}

// classify converts arbitrary generator errors into the provider taxonomy.
func classify(err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	var fe *FormatError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ProviderError{Kind: Timeout, Message: "provider call did not complete", Err: err}
	}
	return &ProviderError{Kind: InvalidResponse, Message: "unclassified provider failure", Err: err}
}

func failureReason(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason()
	}
	return store.ReasonFormatError
}
