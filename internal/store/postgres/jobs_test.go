package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"contentplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func TestClaimJob_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID, artifactID := uuid.New(), uuid.New()
	rows := jobRow(sqlmock.NewRows(jobRowColumns), jobID, artifactID, store.JobStatusInFlight, 0)

	mock.ExpectQuery(`UPDATE publish_jobs SET status = \$1, claimed_at = NOW\(\)`).
		WithArgs(store.JobStatusInFlight, jobID, store.JobStatusPending).
		WillReturnRows(rows)

	job, err := s.ClaimJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if job.Status != store.JobStatusInFlight {
		t.Errorf("got status %s, want in_flight", job.Status)
	}
	if job.ArtifactID != artifactID {
		t.Errorf("got artifact %s, want %s", job.ArtifactID, artifactID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimJob_AlreadyInFlight(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID := uuid.New()

	mock.ExpectQuery(`UPDATE publish_jobs`).
		WillReturnRows(sqlmock.NewRows(jobRowColumns))
	mock.ExpectQuery(`SELECT status FROM publish_jobs WHERE id = \$1`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("in_flight"))

	_, err := s.ClaimJob(context.Background(), jobID)
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}

	var stateErr *store.InvalidStateError
	if !errors.As(err, &stateErr) || stateErr.Current != "in_flight" {
		t.Errorf("expected current status in_flight, got %+v", stateErr)
	}
}

func TestClaimJob_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`UPDATE publish_jobs`).
		WillReturnRows(sqlmock.NewRows(jobRowColumns))
	mock.ExpectQuery(`SELECT status FROM publish_jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, err := s.ClaimJob(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestCreateJob_DefaultsNextAttemptToTarget(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	target := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	job := &store.PublishJob{ID: uuid.New(), ArtifactID: uuid.New(), TargetPublishTime: target}

	mock.ExpectExec(`INSERT INTO publish_jobs`).
		WithArgs(job.ID, job.ArtifactID, target, target, 0, store.JobStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateJob(context.Background(), nil, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if !job.NextAttemptAt.Equal(target) {
		t.Errorf("got next attempt %v, want %v", job.NextAttemptAt, target)
	}
}

func TestCreateJob_SecondActiveJobRejected(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO publish_jobs`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := s.CreateJob(context.Background(), nil, &store.PublishJob{ID: uuid.New(), ArtifactID: uuid.New(), TargetPublishTime: time.Now()})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
}

func TestRetryJob_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID := uuid.New()
	next := time.Now().Add(20 * time.Second)

	mock.ExpectExec(`UPDATE publish_jobs`).
		WithArgs(store.JobStatusPending, 2, next, "rate limited", jobID, store.JobStatusInFlight).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.RetryJob(context.Background(), nil, jobID, 2, next, "rate limited"); err != nil {
		t.Fatalf("RetryJob failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFailJob_WrongState(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID := uuid.New()

	mock.ExpectExec(`UPDATE publish_jobs`).
		WithArgs(store.JobStatusFailed, 0, store.ReasonCancelled, "", jobID, store.JobStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM publish_jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("in_flight"))

	err := s.FailJob(context.Background(), nil, jobID, store.JobStatusPending, 0, store.ReasonCancelled, "")
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
}

func TestLockScheduleDay_UsesDateKey(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	day := time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)

	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1, \$2\)`).
		WithArgs(scheduleLockClass, int32(20261018)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.LockScheduleDay(context.Background(), nil, day); err != nil {
		t.Fatalf("LockScheduleDay failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestScheduledTimes(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	from := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	t1 := from.Add(9 * time.Hour)
	t2 := from.Add(12 * time.Hour)

	mock.ExpectQuery(`SELECT target_publish_time FROM publish_jobs`).
		WithArgs(store.JobStatusFailed, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"target_publish_time"}).AddRow(t1).AddRow(t2))

	times, err := s.ScheduledTimes(context.Background(), nil, from, to)
	if err != nil {
		t.Fatalf("ScheduledTimes failed: %v", err)
	}
	if len(times) != 2 || !times[0].Equal(t1) || !times[1].Equal(t2) {
		t.Errorf("unexpected times: %v", times)
	}
}

func TestSavePublished(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID := uuid.New()
	at := time.Date(2026, 10, 19, 9, 0, 4, 0, time.UTC)
	post := &store.PublishedPost{PostRef: "17890", Permalink: "https://instagram.com/p/abc", PublishedAt: at}

	mock.ExpectExec(`UPDATE publish_jobs SET post_ref = \$1, permalink = \$2, published_at = \$3`).
		WithArgs("17890", "https://instagram.com/p/abc", at, jobID, store.JobStatusInFlight).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.SavePublished(context.Background(), jobID, post); err != nil {
		t.Fatalf("SavePublished failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSavePublished_JobNoLongerInFlight(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE publish_jobs SET post_ref`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM publish_jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failed"))

	err := s.SavePublished(context.Background(), uuid.New(), &store.PublishedPost{PostRef: "17890"})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
}

func TestListJobs(t *testing.T) {
	tests := []struct {
		name   string
		filter store.JobFilter
		query  string
		args   []driver.Value
	}{
		{
			name:   "all",
			filter: store.JobFilter{},
			query:  `SELECT .* FROM publish_jobs ORDER BY target_publish_time ASC LIMIT \$1`,
			args:   []driver.Value{100},
		},
		{
			name:   "by status",
			filter: store.JobFilter{Status: store.JobStatusPending, Limit: 20},
			query:  `SELECT .* FROM publish_jobs WHERE status = \$2 ORDER BY target_publish_time ASC LIMIT \$1`,
			args:   []driver.Value{20, store.JobStatusPending},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			defer s.db.Close()

			id := uuid.New()
			mock.ExpectQuery(tt.query).
				WithArgs(tt.args...).
				WillReturnRows(jobRow(sqlmock.NewRows(jobRowColumns), id, uuid.New(), store.JobStatusPending, 0))

			jobs, err := s.ListJobs(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("ListJobs failed: %v", err)
			}
			if len(jobs) != 1 || jobs[0].ID != id {
				t.Errorf("unexpected jobs: %+v", jobs)
			}
			if jobs[0].Published != nil {
				t.Errorf("expected no saved post, got %+v", jobs[0].Published)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestGetJob_DecodesSavedPost(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID, artifactID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM publish_jobs WHERE id = \$1`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(
			jobID, artifactID, now, now, 0, "in_flight", nil, nil, now, now, now,
			"17890", "https://instagram.com/p/abc", now,
		))

	job, err := s.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Published == nil {
		t.Fatal("expected saved post")
	}
	if job.Published.PostRef != "17890" || job.Published.JobID != jobID || job.Published.ArtifactID != artifactID {
		t.Errorf("unexpected saved post: %+v", job.Published)
	}
}
