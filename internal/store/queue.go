package store

import "context"

// Queue defines the worker-facing operations over due publish jobs.
// Implementations must use SELECT ... FOR UPDATE SKIP LOCKED semantics.
type Queue interface {
	// ClaimDueJobs claims up to 'limit' due pending jobs atomically.
	// Returns nil slice if nothing is due.
	ClaimDueJobs(ctx context.Context, limit int) ([]PublishJob, error)

	// CountPendingJobs tracks the number of jobs waiting to publish.
	CountPendingJobs(ctx context.Context) (int64, error)
}
