package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"contentplane/internal/store"

	"github.com/google/uuid"
)

const jobColumns = `id, artifact_id, target_publish_time, next_attempt_at, attempt_count, status,
	failure_reason, last_error, claimed_at, created_at, updated_at, post_ref, permalink, published_at`

// scheduleLockClass namespaces the per-day advisory locks.
const scheduleLockClass = 2

func scanJob(row rowScanner) (*store.PublishJob, error) {
	var j store.PublishJob
	var failureReason, lastError, postRef, permalink sql.NullString
	var claimedAt, publishedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.ArtifactID, &j.TargetPublishTime, &j.NextAttemptAt, &j.AttemptCount, &j.Status,
		&failureReason, &lastError, &claimedAt, &j.CreatedAt, &j.UpdatedAt,
		&postRef, &permalink, &publishedAt,
	)
	if err != nil {
		return nil, err
	}
	if failureReason.Valid {
		j.FailureReason = &failureReason.String
	}
	if lastError.Valid {
		j.LastError = &lastError.String
	}
	if claimedAt.Valid {
		j.ClaimedAt = &claimedAt.Time
	}
	if postRef.Valid {
		j.Published = &store.PublishedPost{
			PostRef:     postRef.String,
			ArtifactID:  j.ArtifactID,
			JobID:       j.ID,
			Permalink:   permalink.String,
			PublishedAt: publishedAt.Time,
		}
	}
	return &j, nil
}

// CreateJob inserts a new pending job. A second live job for the same
// artifact is rejected by the partial unique index.
func (s *Store) CreateJob(ctx context.Context, tx store.DBTransaction, job *store.PublishJob) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt
	if job.NextAttemptAt.IsZero() {
		job.NextAttemptAt = job.TargetPublishTime
	}
	if job.Status == "" {
		job.Status = store.JobStatusPending
	}

	_, err := s.getExecutor(tx).ExecContext(ctx, `
		INSERT INTO publish_jobs (id, artifact_id, target_publish_time, next_attempt_at, attempt_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, job.ID, job.ArtifactID, job.TargetPublishTime, job.NextAttemptAt, job.AttemptCount, job.Status, job.CreatedAt, job.UpdatedAt)
	if isUniqueViolation(err) {
		return &store.InvalidStateError{Entity: "artifact", ID: job.ArtifactID.String(), Expected: "without an active publish job"}
	}
	if err != nil {
		return fmt.Errorf("failed to insert publish job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns a job by its ID.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*store.PublishJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM publish_jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.NotFoundError{Entity: "publish job", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get publish job %s: %w", id, err)
	}
	return job, nil
}

// ActiveJobForArtifact returns the pending or in-flight job of an artifact.
func (s *Store) ActiveJobForArtifact(ctx context.Context, artifactID uuid.UUID) (*store.PublishJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM publish_jobs
		WHERE artifact_id = $1 AND status IN ('pending', 'in_flight')
	`, artifactID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.NotFoundError{Entity: "active publish job for artifact", ID: artifactID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active job of artifact %s: %w", artifactID, err)
	}
	return job, nil
}

// ClaimJob moves a single pending job to in_flight. Exactly one caller wins.
func (s *Store) ClaimJob(ctx context.Context, id uuid.UUID) (*store.PublishJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `
		UPDATE publish_jobs
		SET status = $1, claimed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING `+jobColumns,
		store.JobStatusInFlight, id, store.JobStatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.jobStateError(ctx, s.db, id, store.JobStatusPending)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim publish job %s: %w", id, err)
	}
	return job, nil
}

// CompleteJob moves an in-flight job to succeeded.
func (s *Store) CompleteJob(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx, `
		UPDATE publish_jobs
		SET status = $1, last_error = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, store.JobStatusSucceeded, id, store.JobStatusInFlight)
	if err != nil {
		return fmt.Errorf("failed to complete publish job %s: %w", id, err)
	}
	return s.checkJobUpdated(ctx, executor, res, id, store.JobStatusInFlight)
}

// RetryJob returns an in-flight job to pending for another attempt.
func (s *Store) RetryJob(ctx context.Context, tx store.DBTransaction, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastErr string) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx, `
		UPDATE publish_jobs
		SET status = $1, attempt_count = $2, next_attempt_at = $3, last_error = $4, claimed_at = NULL, updated_at = NOW()
		WHERE id = $5 AND status = $6
	`, store.JobStatusPending, attempts, nextAttemptAt, lastErr, id, store.JobStatusInFlight)
	if err != nil {
		return fmt.Errorf("failed to reschedule publish job %s: %w", id, err)
	}
	return s.checkJobUpdated(ctx, executor, res, id, store.JobStatusInFlight)
}

// FailJob moves a job in status 'from' to failed. The attempt count never decreases.
func (s *Store) FailJob(ctx context.Context, tx store.DBTransaction, id uuid.UUID, from store.JobStatus, attempts int, reason, lastErr string) error {
	executor := s.getExecutor(tx)
	res, err := executor.ExecContext(ctx, `
		UPDATE publish_jobs
		SET status = $1, attempt_count = GREATEST(attempt_count, $2), failure_reason = $3,
			last_error = COALESCE(NULLIF($4, ''), last_error), updated_at = NOW()
		WHERE id = $5 AND status = $6
	`, store.JobStatusFailed, attempts, reason, lastErr, id, from)
	if err != nil {
		return fmt.Errorf("failed to fail publish job %s: %w", id, err)
	}
	return s.checkJobUpdated(ctx, executor, res, id, from)
}

// LockScheduleDay takes a transaction-scoped advisory lock for one calendar day.
func (s *Store) LockScheduleDay(ctx context.Context, tx store.DBTransaction, day time.Time) error {
	dayKey := int32(day.Year()*10000 + int(day.Month())*100 + day.Day())
	if _, err := s.getExecutor(tx).ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, scheduleLockClass, dayKey); err != nil {
		return fmt.Errorf("failed to lock schedule day %s: %w", day.Format(time.DateOnly), err)
	}
	return nil
}

// ScheduledTimes returns target times of non-failed jobs in [from, to).
func (s *Store) ScheduledTimes(ctx context.Context, tx store.DBTransaction, from, to time.Time) ([]time.Time, error) {
	rows, err := s.getExecutor(tx).QueryContext(ctx, `
		SELECT target_publish_time
		FROM publish_jobs
		WHERE status <> $1 AND target_publish_time >= $2 AND target_publish_time < $3
		ORDER BY target_publish_time ASC
	`, store.JobStatusFailed, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduled times query failed: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// AbandonedJobs returns in-flight jobs claimed before the cutoff.
func (s *Store) AbandonedJobs(ctx context.Context, claimedBefore time.Time) ([]store.PublishJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM publish_jobs
		WHERE status = $1 AND claimed_at < $2
		ORDER BY claimed_at ASC
	`, store.JobStatusInFlight, claimedBefore)
	if err != nil {
		return nil, fmt.Errorf("abandoned jobs query failed: %w", err)
	}
	defer rows.Close()

	var jobs []store.PublishJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// SavePublished stores the platform's answer on an in-flight job.
func (s *Store) SavePublished(ctx context.Context, id uuid.UUID, post *store.PublishedPost) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE publish_jobs
		SET post_ref = $1, permalink = $2, published_at = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`, post.PostRef, post.Permalink, post.PublishedAt, id, store.JobStatusInFlight)
	if err != nil {
		return fmt.Errorf("failed to save post %s on publish job %s: %w", post.PostRef, id, err)
	}
	return s.checkJobUpdated(ctx, s.db, res, id, store.JobStatusInFlight)
}

// ListJobs returns jobs ordered by target publish time, soonest first.
func (s *Store) ListJobs(ctx context.Context, filter store.JobFilter) ([]store.PublishJob, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	args := []interface{}{limit}
	whereClause := ""
	if filter.Status != "" {
		args = append(args, filter.Status)
		whereClause = "WHERE status = $2"
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM publish_jobs
		%s
		ORDER BY target_publish_time ASC
		LIMIT $1
	`, jobColumns, whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs query failed: %w", err)
	}
	defer rows.Close()

	var jobs []store.PublishJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs scan failed: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *Store) checkJobUpdated(ctx context.Context, executor store.DBTransaction, res sql.Result, id uuid.UUID, expected store.JobStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	return s.jobStateError(ctx, executor, id, expected)
}

func (s *Store) jobStateError(ctx context.Context, executor store.DBTransaction, id uuid.UUID, expected store.JobStatus) error {
	var current string
	err := executor.QueryRowContext(ctx, "SELECT status FROM publish_jobs WHERE id = $1", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &store.NotFoundError{Entity: "publish job", ID: id.String()}
	}
	if err != nil {
		return fmt.Errorf("failed to read publish job %s status: %w", id, err)
	}
	return &store.InvalidStateError{Entity: "publish job", ID: id.String(), Current: current, Expected: string(expected)}
}
