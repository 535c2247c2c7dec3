package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"contentplane/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const artifactColumns = `id, theme_id, content_type, topic, title, blocks, caption, hashtags, media_urls,
	concept, magical_element, not_before, status, failure_reason, attempt_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArtifact(row rowScanner) (*store.Artifact, error) {
	var a store.Artifact
	var blocks []byte
	var failureReason sql.NullString
	var notBefore sql.NullTime
	err := row.Scan(
		&a.ID, &a.ThemeID, &a.ContentType, &a.Topic, &a.Title, &blocks, &a.Caption,
		pq.Array(&a.Hashtags), pq.Array(&a.MediaURLs),
		&a.Concept, &a.MagicalElement, &notBefore,
		&a.Status, &failureReason, &a.AttemptCount, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(blocks) > 0 {
		if err := json.Unmarshal(blocks, &a.Blocks); err != nil {
			return nil, fmt.Errorf("failed to decode blocks of artifact %s: %w", a.ID, err)
		}
	}
	if failureReason.Valid {
		a.FailureReason = &failureReason.String
	}
	if notBefore.Valid {
		a.NotBefore = &notBefore.Time
	}
	return &a, nil
}

// CreateArtifact inserts a new artifact.
func (s *Store) CreateArtifact(ctx context.Context, tx store.DBTransaction, a *store.Artifact) error {
	blocks, err := json.Marshal(a.Blocks)
	if err != nil {
		return fmt.Errorf("failed to encode blocks: %w", err)
	}
	if a.Blocks == nil {
		blocks = []byte("[]")
	}

	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt

	_, err = s.getExecutor(tx).ExecContext(ctx, `
		INSERT INTO artifacts (id, theme_id, content_type, topic, title, blocks, caption, hashtags, media_urls,
			concept, magical_element, not_before, status, failure_reason, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, a.ID, a.ThemeID, a.ContentType, a.Topic, a.Title, blocks, a.Caption,
		pq.Array(nonNil(a.Hashtags)), pq.Array(nonNil(a.MediaURLs)),
		a.Concept, a.MagicalElement, a.NotBefore,
		a.Status, a.FailureReason, a.AttemptCount, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert artifact %s: %w", a.ID, err)
	}
	return nil
}

// GetArtifact returns an artifact by its ID.
func (s *Store) GetArtifact(ctx context.Context, id uuid.UUID) (*store.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = $1`, id)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.NotFoundError{Entity: "artifact", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact %s: %w", id, err)
	}
	return a, nil
}

// ListArtifacts returns artifacts newest first.
func (s *Store) ListArtifacts(ctx context.Context, filter store.ArtifactFilter) ([]store.Artifact, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	args := []interface{}{limit}
	var conds []string
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ThemeID != "" {
		args = append(args, filter.ThemeID)
		conds = append(conds, fmt.Sprintf("theme_id = $%d", len(args)))
	}
	if !filter.CreatedAfter.IsZero() {
		args = append(args, filter.CreatedAfter)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.CreatedBefore.IsZero() {
		args = append(args, filter.CreatedBefore)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	whereClause := ""
	if len(conds) > 0 {
		whereClause = "WHERE " + strings.Join(conds, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM artifacts
		%s
		ORDER BY created_at DESC
		LIMIT $1
	`, artifactColumns, whereClause)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts query failed: %w", err)
	}
	defer rows.Close()

	var artifacts []store.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("list artifacts scan failed: %w", err)
		}
		artifacts = append(artifacts, *a)
	}
	return artifacts, rows.Err()
}

// TransitionArtifact is a compare-and-set on the artifact status.
func (s *Store) TransitionArtifact(ctx context.Context, tx store.DBTransaction, id uuid.UUID, from, to store.ArtifactStatus, reason string) error {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx, `
		UPDATE artifacts
		SET status = $1, failure_reason = COALESCE(NULLIF($2, ''), failure_reason), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, to, reason, id, from)
	if err != nil {
		return fmt.Errorf("failed to transition artifact %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	return s.artifactStateError(ctx, executor, id, string(from))
}

// SetMediaURLs attaches rendered media to a draft or scheduled artifact.
func (s *Store) SetMediaURLs(ctx context.Context, id uuid.UUID, urls []string) (*store.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE artifacts
		SET media_urls = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('draft', 'scheduled')
		RETURNING `+artifactColumns, pq.Array(nonNil(urls)), id)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.artifactStateError(ctx, s.db, id, "draft or scheduled")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set media of artifact %s: %w", id, err)
	}
	return a, nil
}

// ExpireDrafts fails every draft created before the cutoff.
func (s *Store) ExpireDrafts(ctx context.Context, createdBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE artifacts
		SET status = $1, failure_reason = $2, updated_at = NOW()
		WHERE status = $3 AND created_at < $4
	`, store.ArtifactStatusFailed, store.ReasonDraftExpired, store.ArtifactStatusDraft, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to expire drafts: %w", err)
	}
	return res.RowsAffected()
}

// artifactStateError explains why a conditional update touched no row.
func (s *Store) artifactStateError(ctx context.Context, executor store.DBTransaction, id uuid.UUID, expected string) error {
	var current string
	err := executor.QueryRowContext(ctx, "SELECT status FROM artifacts WHERE id = $1", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &store.NotFoundError{Entity: "artifact", ID: id.String()}
	}
	if err != nil {
		return fmt.Errorf("failed to read artifact %s status: %w", id, err)
	}
	return &store.InvalidStateError{Entity: "artifact", ID: id.String(), Current: current, Expected: expected}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
