// Package worker contains the pull loop that publishes due jobs.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"contentplane/internal/publisher"
	"contentplane/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Processor publishes one claimed job and records its outcome.
type Processor interface {
	Process(ctx context.Context, job *store.PublishJob) (*store.PublishedPost, error)
}

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	ID           string
	Concurrency  int
	PollInterval time.Duration
	MaxBackoff   time.Duration // Maximum backoff when queue is empty (default: 30s)
	JobTimeout   time.Duration // Upper bound for processing one job (default: 5m)
}

// Agent is the main worker agent that runs the pull-loop for publish jobs.
type Agent struct {
	queue     store.Queue
	processor Processor
	config    AgentConfig
	logger    *slog.Logger
	done      chan struct{}
}

// New creates a new worker agent.
func New(q store.Queue, p Processor, config AgentConfig, logger *slog.Logger) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	if config.JobTimeout <= 0 {
		config.JobTimeout = 5 * time.Minute
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		queue:     q,
		processor: p,
		config:    config,
		logger:    logger.With("agent_id", config.ID),
		done:      make(chan struct{}),
	}
}

// Run starts the main pull-loop. It blocks until the context is cancelled.
// On SIGTERM, it stops claiming new work and allows in-flight publishes to finish.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", "concurrency", a.config.Concurrency)

	// Semaphore to limit concurrency
	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal when a slot becomes available (adaptive polling)
	pollNow := make(chan struct{}, 1)

	// Current backoff duration (increases on empty queue, resets on work found)
	currentBackoff := a.config.PollInterval

	// Helper to trigger immediate non-blocking re-poll
	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending
		}
	}

	// Initial poll
	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("context cancelled, waiting for running publishes to finish")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			// Timer-based poll (with backoff)
			triggerPoll()

		case <-pollNow:
			// Count available slots
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			// Batch claim up to available slots
			jobs, err := a.queue.ClaimDueJobs(ctx, availableSlots)
			if err != nil {
				if ctx.Err() == nil {
					a.logger.Error("claim due jobs failed", "error", err)
				}
				continue
			}

			if len(jobs) == 0 {
				// Empty queue - increase backoff (exponential, capped at MaxBackoff)
				currentBackoff = currentBackoff * 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			// Found work - reset backoff to minimum
			currentBackoff = a.config.PollInterval

			a.logger.Info("claimed jobs", "count", len(jobs))

			// Dispatch each job to a worker goroutine
			for i := range jobs {
				// Acquire semaphore slot
				sem <- struct{}{}

				wg.Add(1)
				go func(job store.PublishJob) {
					defer wg.Done()
					defer func() {
						<-sem
						// Signal that a slot is now available - trigger immediate re-poll
						triggerPoll()
					}()
					a.processJob(ctx, &job)
				}(jobs[i])
			}

			// If we got jobs and there are still slots available, poll again immediately
			if len(jobs) < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// processJob publishes a single job that has already been claimed.
func (a *Agent) processJob(ctx context.Context, job *store.PublishJob) {
	tracer := otel.Tracer("worker-agent")
	spanCtx, span := tracer.Start(ctx, "process_job",
		trace.WithAttributes(
			attribute.String("job.id", job.ID.String()),
			attribute.String("artifact.id", job.ArtifactID.String()),
			attribute.Int("job.attempt_count", job.AttemptCount),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	// A claimed job is finished even after SIGTERM (graceful drain).
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(spanCtx), a.config.JobTimeout)
	defer cancel()

	post, err := a.processor.Process(execCtx, job)
	if err != nil {
		span.RecordError(err)
		var retry *publisher.RetryScheduledError
		if errors.As(err, &retry) {
			a.logger.Warn("publish will be retried", "job_id", job.ID, "next_attempt_at", retry.NextAttemptAt)
			return
		}
		var unrecorded *publisher.UnrecordedPostError
		if errors.As(err, &unrecorded) {
			a.logger.Error("published, outcome left for reconciliation", "job_id", job.ID, "post_ref", unrecorded.PostRef, "saved", unrecorded.Saved)
			return
		}
		a.logger.Error("publish failed", "job_id", job.ID, "error", err)
		return
	}

	span.SetAttributes(attribute.String("post.ref", post.PostRef))
	a.logger.Info("publish completed", "job_id", job.ID, "post_ref", post.PostRef)
}
