// Package storetest provides an in-memory store for tests of packages above the database layer.
package storetest

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"contentplane/internal/store"

	"github.com/google/uuid"
)

type injectedFailure struct {
	err error
	// remaining calls to fail; zero fails forever
	remaining int
}

type claimKey struct {
	themeID string
	day     string
}

type claim struct {
	state     store.GenerationState
	attempts  int
	claimedAt time.Time
}

var errNoSQL = errors.New("storetest: raw SQL is not supported")

// Memory implements the store interfaces with the same status compare-and-set
// rules as the Postgres store. Writes made through a transaction are applied on Commit.
type Memory struct {
	mu        sync.Mutex
	artifacts map[uuid.UUID]*store.Artifact
	jobs      map[uuid.UUID]*store.PublishJob
	posts     map[string]*store.PublishedPost
	snapshots []store.EngagementSnapshot
	claims    map[claimKey]*claim
	failures  map[string]*injectedFailure
	dayLocks  map[string]chan struct{}

	// Now is the clock used for claims and due checks.
	Now func() time.Time

	// LockedDays records every LockScheduleDay call.
	LockedDays []time.Time
}

// New returns an empty store.
func New() *Memory {
	return &Memory{
		artifacts: make(map[uuid.UUID]*store.Artifact),
		jobs:      make(map[uuid.UUID]*store.PublishJob),
		posts:     make(map[string]*store.PublishedPost),
		claims:    make(map[claimKey]*claim),
		failures:  make(map[string]*injectedFailure),
		dayLocks:  make(map[string]chan struct{}),
		Now:       time.Now,
	}
}

// FailOn makes every later call of the named method return err. A nil err clears it.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = &injectedFailure{err: err}
}

// FailTimes makes the next n calls of the named method return err.
func (m *Memory) FailTimes(method string, err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = &injectedFailure{err: err, remaining: n}
}

// failure returns the injected error of a method. Callers hold m.mu.
func (m *Memory) failure(method string) error {
	f, ok := m.failures[method]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(m.failures, method)
		}
	}
	return f.err
}

type memTx struct {
	m         *Memory
	ops       []func()
	locks     []chan struct{}
	done      bool
	committed bool
}

// unlock releases the day locks held by the transaction.
func (t *memTx) unlock() {
	for _, l := range t.locks {
		<-l
	}
	t.locks = nil
}

func (t *memTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, errNoSQL
}

func (t *memTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (t *memTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (t *memTx) Commit() error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.done {
		return sql.ErrTxDone
	}
	if err := t.m.failure("Commit"); err != nil {
		return err
	}
	for _, op := range t.ops {
		op()
	}
	t.done, t.committed = true, true
	t.unlock()
	return nil
}

func (t *memTx) Rollback() error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.unlock()
	return nil
}

// BeginTx opens a transaction whose writes apply on Commit.
func (m *Memory) BeginTx(ctx context.Context) (store.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("BeginTx"); err != nil {
		return nil, err
	}
	return &memTx{m: m}, nil
}

// apply runs op now, or on commit when tx is a memory transaction. Callers hold m.mu.
func (m *Memory) apply(tx store.DBTransaction, op func()) {
	if t, ok := tx.(*memTx); ok && t != nil {
		t.ops = append(t.ops, op)
		return
	}
	op()
}

// PutArtifact stores an artifact as is.
func (m *Memory) PutArtifact(a *store.Artifact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.artifacts[a.ID] = &c
}

// PutJob stores a job as is.
func (m *Memory) PutJob(j *store.PublishJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *j
	m.jobs[j.ID] = &c
}

// PutPost stores a post as is.
func (m *Memory) PutPost(p *store.PublishedPost) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	m.posts[p.PostRef] = &c
}

// Jobs returns every job ordered by target time.
func (m *Memory) Jobs() []store.PublishJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.PublishJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].TargetPublishTime.Before(out[k].TargetPublishTime) })
	return out
}

// Posts returns every published post.
func (m *Memory) Posts() []store.PublishedPost {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.PublishedPost, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, *p)
	}
	return out
}

// Artifacts

func (m *Memory) CreateArtifact(ctx context.Context, tx store.DBTransaction, a *store.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateArtifact"); err != nil {
		return err
	}
	now := m.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	c := *a
	m.apply(tx, func() { m.artifacts[c.ID] = &c })
	return nil
}

func (m *Memory) GetArtifact(ctx context.Context, id uuid.UUID) (*store.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetArtifact"); err != nil {
		return nil, err
	}
	a, ok := m.artifacts[id]
	if !ok {
		return nil, &store.NotFoundError{Entity: "artifact", ID: id.String()}
	}
	c := *a
	return &c, nil
}

func (m *Memory) ListArtifacts(ctx context.Context, f store.ArtifactFilter) ([]store.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ListArtifacts"); err != nil {
		return nil, err
	}
	var out []store.Artifact
	for _, a := range m.artifacts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.ThemeID != "" && a.ThemeID != f.ThemeID {
			continue
		}
		if !f.CreatedAfter.IsZero() && a.CreatedAt.Before(f.CreatedAfter) {
			continue
		}
		if !f.CreatedBefore.IsZero() && !a.CreatedAt.Before(f.CreatedBefore) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) TransitionArtifact(ctx context.Context, tx store.DBTransaction, id uuid.UUID, from, to store.ArtifactStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("TransitionArtifact"); err != nil {
		return err
	}
	a, ok := m.artifacts[id]
	if !ok {
		return &store.NotFoundError{Entity: "artifact", ID: id.String()}
	}
	if a.Status != from {
		return &store.InvalidStateError{Entity: "artifact", ID: id.String(), Current: string(a.Status), Expected: string(from)}
	}
	now := m.Now().UTC()
	m.apply(tx, func() {
		a.Status = to
		if reason != "" {
			r := reason
			a.FailureReason = &r
		}
		a.UpdatedAt = now
	})
	return nil
}

func (m *Memory) SetMediaURLs(ctx context.Context, id uuid.UUID, urls []string) (*store.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("SetMediaURLs"); err != nil {
		return nil, err
	}
	a, ok := m.artifacts[id]
	if !ok {
		return nil, &store.NotFoundError{Entity: "artifact", ID: id.String()}
	}
	if a.Status != store.ArtifactStatusDraft && a.Status != store.ArtifactStatusScheduled {
		return nil, &store.InvalidStateError{Entity: "artifact", ID: id.String(), Current: string(a.Status), Expected: "draft or scheduled"}
	}
	a.MediaURLs = append([]string(nil), urls...)
	a.UpdatedAt = m.Now().UTC()
	c := *a
	return &c, nil
}

func (m *Memory) ExpireDrafts(ctx context.Context, createdBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ExpireDrafts"); err != nil {
		return 0, err
	}
	var n int64
	reason := store.ReasonDraftExpired
	for _, a := range m.artifacts {
		if a.Status == store.ArtifactStatusDraft && a.CreatedAt.Before(createdBefore) {
			a.Status = store.ArtifactStatusFailed
			r := reason
			a.FailureReason = &r
			n++
		}
	}
	return n, nil
}

// Jobs

func (m *Memory) CreateJob(ctx context.Context, tx store.DBTransaction, j *store.PublishJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateJob"); err != nil {
		return err
	}
	for _, existing := range m.jobs {
		if existing.ArtifactID == j.ArtifactID && (existing.Status == store.JobStatusPending || existing.Status == store.JobStatusInFlight) {
			return &store.InvalidStateError{Entity: "artifact", ID: j.ArtifactID.String(), Current: "has active job", Expected: "no active job"}
		}
	}
	now := m.Now().UTC()
	if j.Status == "" {
		j.Status = store.JobStatusPending
	}
	if j.NextAttemptAt.IsZero() {
		j.NextAttemptAt = j.TargetPublishTime
	}
	j.CreatedAt, j.UpdatedAt = now, now
	c := *j
	m.apply(tx, func() { m.jobs[c.ID] = &c })
	return nil
}

func (m *Memory) GetJob(ctx context.Context, id uuid.UUID) (*store.PublishJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetJob"); err != nil {
		return nil, err
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, &store.NotFoundError{Entity: "job", ID: id.String()}
	}
	c := *j
	return &c, nil
}

func (m *Memory) ActiveJobForArtifact(ctx context.Context, artifactID uuid.UUID) (*store.PublishJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ArtifactID == artifactID && (j.Status == store.JobStatusPending || j.Status == store.JobStatusInFlight) {
			c := *j
			return &c, nil
		}
	}
	return nil, &store.NotFoundError{Entity: "active job for artifact", ID: artifactID.String()}
}

// jobInStatus returns the job when it is in the expected status. Callers hold m.mu.
func (m *Memory) jobInStatus(id uuid.UUID, expected store.JobStatus) (*store.PublishJob, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, &store.NotFoundError{Entity: "job", ID: id.String()}
	}
	if j.Status != expected {
		return nil, &store.InvalidStateError{Entity: "job", ID: id.String(), Current: string(j.Status), Expected: string(expected)}
	}
	return j, nil
}

func (m *Memory) ClaimJob(ctx context.Context, id uuid.UUID) (*store.PublishJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ClaimJob"); err != nil {
		return nil, err
	}
	j, err := m.jobInStatus(id, store.JobStatusPending)
	if err != nil {
		return nil, err
	}
	now := m.Now().UTC()
	j.Status = store.JobStatusInFlight
	j.ClaimedAt = &now
	j.UpdatedAt = now
	c := *j
	return &c, nil
}

func (m *Memory) CompleteJob(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CompleteJob"); err != nil {
		return err
	}
	j, err := m.jobInStatus(id, store.JobStatusInFlight)
	if err != nil {
		return err
	}
	now := m.Now().UTC()
	m.apply(tx, func() {
		j.Status = store.JobStatusSucceeded
		j.UpdatedAt = now
	})
	return nil
}

func (m *Memory) RetryJob(ctx context.Context, tx store.DBTransaction, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("RetryJob"); err != nil {
		return err
	}
	j, err := m.jobInStatus(id, store.JobStatusInFlight)
	if err != nil {
		return err
	}
	now := m.Now().UTC()
	m.apply(tx, func() {
		j.Status = store.JobStatusPending
		j.AttemptCount = attempts
		j.NextAttemptAt = nextAttemptAt
		le := lastErr
		j.LastError = &le
		j.ClaimedAt = nil
		j.UpdatedAt = now
	})
	return nil
}

func (m *Memory) FailJob(ctx context.Context, tx store.DBTransaction, id uuid.UUID, from store.JobStatus, attempts int, reason, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("FailJob"); err != nil {
		return err
	}
	j, err := m.jobInStatus(id, from)
	if err != nil {
		return err
	}
	now := m.Now().UTC()
	m.apply(tx, func() {
		j.Status = store.JobStatusFailed
		if attempts > j.AttemptCount {
			j.AttemptCount = attempts
		}
		r := reason
		j.FailureReason = &r
		if lastErr != "" {
			le := lastErr
			j.LastError = &le
		}
		j.UpdatedAt = now
	})
	return nil
}

// LockScheduleDay blocks until no other transaction holds the day. The lock is
// released when tx commits or rolls back, or at once when tx is nil.
func (m *Memory) LockScheduleDay(ctx context.Context, tx store.DBTransaction, day time.Time) error {
	m.mu.Lock()
	if err := m.failure("LockScheduleDay"); err != nil {
		m.mu.Unlock()
		return err
	}
	m.LockedDays = append(m.LockedDays, day)
	key := day.Format(time.DateOnly)
	l, ok := m.dayLocks[key]
	if !ok {
		l = make(chan struct{}, 1)
		m.dayLocks[key] = l
	}
	m.mu.Unlock()

	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	t, ok := tx.(*memTx)
	if !ok || t == nil {
		<-l
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.done {
		<-l
		return sql.ErrTxDone
	}
	t.locks = append(t.locks, l)
	return nil
}

func (m *Memory) ScheduledTimes(ctx context.Context, tx store.DBTransaction, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ScheduledTimes"); err != nil {
		return nil, err
	}
	var out []time.Time
	for _, j := range m.jobs {
		if j.Status == store.JobStatusFailed {
			continue
		}
		if !j.TargetPublishTime.Before(from) && j.TargetPublishTime.Before(to) {
			out = append(out, j.TargetPublishTime)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Before(out[k]) })
	return out, nil
}

func (m *Memory) SavePublished(ctx context.Context, id uuid.UUID, post *store.PublishedPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("SavePublished"); err != nil {
		return err
	}
	j, err := m.jobInStatus(id, store.JobStatusInFlight)
	if err != nil {
		return err
	}
	p := *post
	p.JobID, p.ArtifactID = j.ID, j.ArtifactID
	j.Published = &p
	j.UpdatedAt = m.Now().UTC()
	return nil
}

func (m *Memory) ListJobs(ctx context.Context, f store.JobFilter) ([]store.PublishJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ListJobs"); err != nil {
		return nil, err
	}
	var out []store.PublishJob
	for _, j := range m.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].TargetPublishTime.Before(out[k].TargetPublishTime) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) AbandonedJobs(ctx context.Context, claimedBefore time.Time) ([]store.PublishJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("AbandonedJobs"); err != nil {
		return nil, err
	}
	var out []store.PublishJob
	for _, j := range m.jobs {
		if j.Status == store.JobStatusInFlight && j.ClaimedAt != nil && j.ClaimedAt.Before(claimedBefore) {
			out = append(out, *j)
		}
	}
	return out, nil
}

// Queue

func (m *Memory) ClaimDueJobs(ctx context.Context, limit int) ([]store.PublishJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ClaimDueJobs"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}
	now := m.Now().UTC()
	var due []*store.PublishJob
	for _, j := range m.jobs {
		if j.Status == store.JobStatusPending && !j.NextAttemptAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].NextAttemptAt.Before(due[k].NextAttemptAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	var out []store.PublishJob
	for _, j := range due {
		claimed := now
		j.Status = store.JobStatusInFlight
		j.ClaimedAt = &claimed
		out = append(out, *j)
	}
	return out, nil
}

func (m *Memory) CountPendingJobs(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Status == store.JobStatusPending {
			n++
		}
	}
	return n, nil
}

// Posts

func (m *Memory) CreatePost(ctx context.Context, tx store.DBTransaction, p *store.PublishedPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreatePost"); err != nil {
		return err
	}
	if _, ok := m.posts[p.PostRef]; ok {
		return &store.InvalidStateError{Entity: "post", ID: p.PostRef, Current: "exists", Expected: "absent"}
	}
	c := *p
	m.apply(tx, func() { m.posts[c.PostRef] = &c })
	return nil
}

func (m *Memory) GetPost(ctx context.Context, ref string) (*store.PublishedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[ref]
	if !ok {
		return nil, &store.NotFoundError{Entity: "post", ID: ref}
	}
	c := *p
	return &c, nil
}

func (m *Memory) GetPostByArtifact(ctx context.Context, artifactID uuid.UUID) (*store.PublishedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.ArtifactID == artifactID {
			c := *p
			return &c, nil
		}
	}
	return nil, &store.NotFoundError{Entity: "post for artifact", ID: artifactID.String()}
}

func (m *Memory) ListPostsSince(ctx context.Context, since time.Time) ([]store.PublishedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ListPostsSince"); err != nil {
		return nil, err
	}
	var out []store.PublishedPost
	for _, p := range m.posts {
		if !p.PublishedAt.Before(since) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].PublishedAt.Before(out[k].PublishedAt) })
	return out, nil
}

func (m *Memory) AddSnapshot(ctx context.Context, s *store.EngagementSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("AddSnapshot"); err != nil {
		return err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.snapshots = append(m.snapshots, *s)
	return nil
}

func (m *Memory) ListSnapshots(ctx context.Context, ref string) ([]store.EngagementSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.EngagementSnapshot
	for _, s := range m.snapshots {
		if s.PostRef == ref {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CapturedAt.Before(out[k].CapturedAt) })
	return out, nil
}

// Generation claims

func (m *Memory) ClaimGeneration(ctx context.Context, c store.GenerationClaim) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ClaimGeneration"); err != nil {
		return false, err
	}
	key := claimKey{themeID: c.ThemeID, day: c.Day.Format(time.DateOnly)}
	now := m.Now().UTC()
	existing, ok := m.claims[key]
	if !ok {
		m.claims[key] = &claim{state: store.GenerationRunning, attempts: 1, claimedAt: now}
		return true, nil
	}
	underBound := c.MaxAttempts <= 0 || existing.attempts < c.MaxAttempts
	stale := existing.state == store.GenerationRunning && existing.claimedAt.Before(c.StaleBefore)
	if !c.Force && !(underBound && (existing.state == store.GenerationRetry || stale)) {
		return false, nil
	}
	existing.state = store.GenerationRunning
	existing.attempts++
	existing.claimedAt = now
	return true, nil
}

func (m *Memory) FinishGeneration(ctx context.Context, themeID string, day time.Time, retryable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("FinishGeneration"); err != nil {
		return err
	}
	c, ok := m.claims[claimKey{themeID: themeID, day: day.Format(time.DateOnly)}]
	if !ok {
		return nil
	}
	c.state = store.GenerationDone
	if retryable {
		c.state = store.GenerationRetry
	}
	return nil
}

// GenerationAttempts returns how often a theme's day was claimed.
func (m *Memory) GenerationAttempts(themeID string, day time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.claims[claimKey{themeID: themeID, day: day.Format(time.DateOnly)}]; ok {
		return c.attempts
	}
	return 0
}

var (
	_ store.Transactor      = (*Memory)(nil)
	_ store.ArtifactStore   = (*Memory)(nil)
	_ store.JobStore        = (*Memory)(nil)
	_ store.PostStore       = (*Memory)(nil)
	_ store.Queue           = (*Memory)(nil)
	_ store.GenerationStore = (*Memory)(nil)
)
