package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"contentplane/internal/store"
)

// ClaimGeneration takes the generation claim of a theme and day.
//
// A new row is always claimable. An existing one is taken again when forced, when
// its last run asked for a retry, or when a running claim went stale; in the last
// two cases only while attempts stay below the bound.
func (s *Store) ClaimGeneration(ctx context.Context, claim store.GenerationClaim) (bool, error) {
	maxAttempts := claim.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1 << 30
	}

	var attempts int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO generation_claims AS c (theme_id, day, state, attempts, claimed_at, updated_at)
		VALUES ($1, $2::date, $3, 1, NOW(), NOW())
		ON CONFLICT (theme_id, day) DO UPDATE
		SET state = $3, attempts = c.attempts + 1, claimed_at = NOW(), updated_at = NOW()
		WHERE $4
			OR (c.attempts < $5 AND (c.state = $6 OR (c.state = $3 AND c.claimed_at < $7)))
		RETURNING attempts
	`, claim.ThemeID, claim.Day.Format(time.DateOnly), store.GenerationRunning,
		claim.Force, maxAttempts, store.GenerationRetry, claim.StaleBefore).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim generation of %s on %s: %w", claim.ThemeID, claim.Day.Format(time.DateOnly), err)
	}
	return true, nil
}

// FinishGeneration marks a claim done, or open for another attempt when retryable.
func (s *Store) FinishGeneration(ctx context.Context, themeID string, day time.Time, retryable bool) error {
	state := store.GenerationDone
	if retryable {
		state = store.GenerationRetry
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE generation_claims
		SET state = $1, updated_at = NOW()
		WHERE theme_id = $2 AND day = $3::date
	`, state, themeID, day.Format(time.DateOnly))
	if err != nil {
		return fmt.Errorf("failed to finish generation of %s on %s: %w", themeID, day.Format(time.DateOnly), err)
	}
	return nil
}
