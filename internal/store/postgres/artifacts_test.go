package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"contentplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

var artifactRowColumns = []string{
	"id", "theme_id", "content_type", "topic", "title", "blocks", "caption", "hashtags", "media_urls",
	"concept", "magical_element", "not_before", "status", "failure_reason", "attempt_count", "created_at", "updated_at",
}

func TestGetArtifact_DecodesBlocksAndArrays(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	now := time.Now().UTC()
	blocks := []byte(`[{"kind":"hook","text":"Why do kids ask why?"},{"kind":"body","text":"Because."},{"kind":"cta","text":"Follow for more"}]`)

	mock.ExpectQuery(`SELECT .* FROM artifacts WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(artifactRowColumns).AddRow(
			id, "wonder_wednesday", "video", "curiosity", "Why?", blocks, "caption",
			[]byte(`{#wonder,#kids}`), []byte(`{}`), "growth mindset", "owl wisdom", now, "draft", nil, 1, now, now,
		))

	a, err := s.GetArtifact(context.Background(), id)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if a.ContentType != store.ContentTypeVideo {
		t.Errorf("got content type %s, want video", a.ContentType)
	}
	if len(a.Blocks) != 3 || a.Blocks[0].Kind != store.BlockHook || a.Blocks[2].Kind != store.BlockCTA {
		t.Errorf("unexpected blocks: %+v", a.Blocks)
	}
	if len(a.Hashtags) != 2 || a.Hashtags[1] != "#kids" {
		t.Errorf("unexpected hashtags: %v", a.Hashtags)
	}
	if a.FailureReason != nil {
		t.Errorf("expected nil failure reason, got %q", *a.FailureReason)
	}
	if a.AttemptCount != 1 {
		t.Errorf("got attempt count %d, want 1", a.AttemptCount)
	}
	if a.Concept != "growth mindset" || a.MagicalElement != "owl wisdom" {
		t.Errorf("unexpected framing: %q / %q", a.Concept, a.MagicalElement)
	}
	if a.NotBefore == nil || !a.NotBefore.Equal(now) {
		t.Errorf("got not before %v, want %v", a.NotBefore, now)
	}
}

func TestGetArtifact_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT .* FROM artifacts`).
		WillReturnRows(sqlmock.NewRows(artifactRowColumns))

	_, err := s.GetArtifact(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestCreateArtifact_EncodesNilSlices(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	a := &store.Artifact{
		ID:          uuid.New(),
		ThemeID:     "serene_sunday",
		ContentType: store.ContentTypeStory,
		Status:      store.ArtifactStatusFailed,
	}

	mock.ExpectExec(`INSERT INTO artifacts`).
		WithArgs(a.ID, "serene_sunday", store.ContentTypeStory, "", "", []byte("[]"), "",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "", "", nil, store.ArtifactStatusFailed, nil, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateArtifact(context.Background(), nil, a); err != nil {
		t.Fatalf("CreateArtifact failed: %v", err)
	}
	if a.CreatedAt.IsZero() || !a.UpdatedAt.Equal(a.CreatedAt) {
		t.Errorf("expected timestamps to be stamped, got %v / %v", a.CreatedAt, a.UpdatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTransitionArtifact_CompareAndSet(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		current     string
		wantErr     error
		expectCheck bool
	}{
		{name: "swapped", affected: 1},
		{name: "concurrent change", affected: 0, current: "published", wantErr: store.ErrInvalidState, expectCheck: true},
		{name: "missing", affected: 0, wantErr: store.ErrNotFound, expectCheck: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			defer s.db.Close()

			id := uuid.New()
			mock.ExpectExec(`UPDATE artifacts SET status = \$1`).
				WithArgs(store.ArtifactStatusScheduled, "", id, store.ArtifactStatusDraft).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			if tt.expectCheck {
				rows := sqlmock.NewRows([]string{"status"})
				if tt.current != "" {
					rows.AddRow(tt.current)
				}
				mock.ExpectQuery(`SELECT status FROM artifacts`).WithArgs(id).WillReturnRows(rows)
			}

			err := s.TransitionArtifact(context.Background(), nil, id, store.ArtifactStatusDraft, store.ArtifactStatusScheduled, "")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestExpireDrafts(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectExec(`UPDATE artifacts`).
		WithArgs(store.ArtifactStatusFailed, store.ReasonDraftExpired, store.ArtifactStatusDraft, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := s.ExpireDrafts(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ExpireDrafts failed: %v", err)
	}
	if n != 4 {
		t.Errorf("got %d expired, want 4", n)
	}
}

func TestListArtifacts_BuildsFilter(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT .* FROM artifacts WHERE status = \$2 AND theme_id = \$3 ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(100, store.ArtifactStatusDraft, "fantasy_friday").
		WillReturnRows(sqlmock.NewRows(artifactRowColumns))

	artifacts, err := s.ListArtifacts(context.Background(), store.ArtifactFilter{
		Status:  store.ArtifactStatusDraft,
		ThemeID: "fantasy_friday",
	})
	if err != nil {
		t.Fatalf("ListArtifacts failed: %v", err)
	}
	if len(artifacts) != 0 {
		t.Errorf("expected no artifacts, got %d", len(artifacts))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
