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

// CreatePost records a successful publication.
func (s *Store) CreatePost(ctx context.Context, tx store.DBTransaction, p *store.PublishedPost) error {
	_, err := s.getExecutor(tx).ExecContext(ctx, `
		INSERT INTO published_posts (post_ref, artifact_id, job_id, permalink, published_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.PostRef, p.ArtifactID, p.JobID, p.Permalink, p.PublishedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("post %s already recorded: %w", p.PostRef, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert post %s: %w", p.PostRef, err)
	}
	return nil
}

// GetPost returns a post by its platform reference.
func (s *Store) GetPost(ctx context.Context, postRef string) (*store.PublishedPost, error) {
	var p store.PublishedPost
	err := s.db.QueryRowContext(ctx, `
		SELECT post_ref, artifact_id, job_id, permalink, published_at
		FROM published_posts WHERE post_ref = $1
	`, postRef).Scan(&p.PostRef, &p.ArtifactID, &p.JobID, &p.Permalink, &p.PublishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.NotFoundError{Entity: "post", ID: postRef}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post %s: %w", postRef, err)
	}
	return &p, nil
}

// GetPostByArtifact returns the post an artifact was published as.
func (s *Store) GetPostByArtifact(ctx context.Context, artifactID uuid.UUID) (*store.PublishedPost, error) {
	var p store.PublishedPost
	err := s.db.QueryRowContext(ctx, `
		SELECT post_ref, artifact_id, job_id, permalink, published_at
		FROM published_posts WHERE artifact_id = $1
	`, artifactID).Scan(&p.PostRef, &p.ArtifactID, &p.JobID, &p.Permalink, &p.PublishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.NotFoundError{Entity: "post for artifact", ID: artifactID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post of artifact %s: %w", artifactID, err)
	}
	return &p, nil
}

// ListPostsSince returns posts published at or after 'since', newest first.
func (s *Store) ListPostsSince(ctx context.Context, since time.Time) ([]store.PublishedPost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_ref, artifact_id, job_id, permalink, published_at
		FROM published_posts
		WHERE published_at >= $1
		ORDER BY published_at DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list posts query failed: %w", err)
	}
	defer rows.Close()

	var posts []store.PublishedPost
	for rows.Next() {
		var p store.PublishedPost
		if err := rows.Scan(&p.PostRef, &p.ArtifactID, &p.JobID, &p.Permalink, &p.PublishedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// AddSnapshot appends an engagement snapshot.
func (s *Store) AddSnapshot(ctx context.Context, snap *store.EngagementSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engagement_snapshots (id, post_ref, captured_at, likes, comments, reach)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, snap.ID, snap.PostRef, snap.CapturedAt, snap.Likes, snap.Comments, snap.Reach)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot for post %s: %w", snap.PostRef, err)
	}
	return nil
}

// ListSnapshots returns the snapshots of a post oldest first.
func (s *Store) ListSnapshots(ctx context.Context, postRef string) ([]store.EngagementSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_ref, captured_at, likes, comments, reach
		FROM engagement_snapshots
		WHERE post_ref = $1
		ORDER BY captured_at ASC
	`, postRef)
	if err != nil {
		return nil, fmt.Errorf("list snapshots query failed: %w", err)
	}
	defer rows.Close()

	var snaps []store.EngagementSnapshot
	for rows.Next() {
		var sn store.EngagementSnapshot
		if err := rows.Scan(&sn.ID, &sn.PostRef, &sn.CapturedAt, &sn.Likes, &sn.Comments, &sn.Reach); err != nil {
			return nil, err
		}
		snaps = append(snaps, sn)
	}
	return snaps, rows.Err()
}
