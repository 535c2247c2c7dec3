package postgres

import (
	"context"
	"fmt"
	"time"

	"contentplane/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ClaimDueJobs claims up to 'limit' due pending jobs atomically using SELECT ... FOR UPDATE SKIP LOCKED.
// Returns nil slice if no jobs are due.
func (s *Store) ClaimDueJobs(ctx context.Context, limit int) ([]store.PublishJob, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM publish_jobs
		WHERE status = $2 AND next_attempt_at <= NOW()
		ORDER BY next_attempt_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, limit, store.JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs query failed: %w", err)
	}
	defer rows.Close()

	var jobs []store.PublishJob
	var ids []uuid.UUID
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("claim due jobs scan failed: %w", err)
		}
		jobs = append(jobs, *job)
		ids = append(ids, job.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due jobs rows error: %w", err)
	}

	if len(jobs) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE publish_jobs
		SET status = $1, claimed_at = NOW(), updated_at = NOW()
		WHERE id = ANY($2)
	`, store.JobStatusInFlight, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("claim due jobs status update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range jobs {
		jobs[i].Status = store.JobStatusInFlight
		jobs[i].ClaimedAt = &now
	}
	return jobs, nil
}

// CountPendingJobs tracks the number of jobs waiting to publish.
func (s *Store) CountPendingJobs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM publish_jobs WHERE status = $1", store.JobStatusPending).Scan(&count)
	return count, err
}
