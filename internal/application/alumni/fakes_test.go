package alumni_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
)

const (
	testCollegeID = "6f1c7a3e-2d4b-4c5a-9e8f-0a1b2c3d4e5f"
	testAdminID   = "0d9e8f7a-6b5c-4d3e-8f2a-1b0c9d8e7f6a"
)

var errStorage = errors.New("storage unavailable")

// memStore keeps jobs and staged rows in memory with the same transition rules as the database.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.ImportJob
	rows map[string][]*domain.ImportedRow

	// failRecordAt makes the n-th RecordOutcome call (1-based) fail; zero disables it.
	failRecordAt int
	recordCalls  int
	// cancelAfterRecords raises the cancel flag once this many outcomes were recorded.
	cancelAfterRecords int
	// reclaimAfterRecords simulates another run claiming the job once this many outcomes were recorded.
	reclaimAfterRecords int
	// stageDelay keeps Stage busy, like a large upload would.
	stageDelay   time.Duration
	releaseCalls int
	heartbeats   int
}

// owns mirrors the lease check of the database: only the latest claim may change a processing job.
func (s *memStore) owns(jobID string, attempt int) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrImportNotFound
	}
	if job.Status != domain.StatusProcessing || job.Attempts != attempt {
		return fmt.Errorf("%w: job %s attempt %d", domain.ErrLeaseLost, jobID, attempt)
	}
	return nil
}

func (s *memStore) reclaim(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID].Attempts++
}

func (s *memStore) heartbeatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeats
}

func newMemStore() *memStore {
	return &memStore{
		jobs: make(map[string]*domain.ImportJob),
		rows: make(map[string][]*domain.ImportedRow),
	}
}

func (s *memStore) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	stored := job
	s.jobs[job.ID] = &stored
	return job, nil
}

func (s *memStore) Get(ctx context.Context, jobID string) (domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ImportJob{}, domain.ErrImportNotFound
	}
	return *job, nil
}

func (s *memStore) Claim(ctx context.Context, jobID string, leaseDuration time.Duration) (domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ImportJob{}, domain.ErrImportNotFound
	}
	if !job.Status.Launchable() {
		return *job, &domain.JobStateError{JobID: jobID, Status: job.Status, Operation: "launch"}
	}

	now := time.Now()
	job.Status = domain.StatusProcessing
	job.Attempts++
	job.CancelRequested = false
	job.StartedAt = &now
	job.FinishedAt = nil
	return *job, nil
}

func (s *memStore) ClaimNext(ctx context.Context, leaseDuration time.Duration) (*domain.ImportJob, error) {
	return nil, nil
}

func (s *memStore) Heartbeat(ctx context.Context, jobID string, attempt int, leaseDuration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.owns(jobID, attempt); err != nil {
		return err
	}
	s.heartbeats++
	return nil
}

func (s *memStore) ReleaseLease(ctx context.Context, jobID string, attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseCalls++
	return s.owns(jobID, attempt)
}

func (s *memStore) Complete(ctx context.Context, jobID string, attempt int, summary domain.JobErrors) (domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.owns(jobID, attempt); err != nil {
		return domain.ImportJob{}, err
	}
	job := s.jobs[jobID]
	now := time.Now()
	job.Status = domain.StatusDone
	job.Errors = &summary
	job.FinishedAt = &now
	return *job, nil
}

func (s *memStore) Fail(ctx context.Context, jobID string, attempt int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.owns(jobID, attempt); err != nil {
		return err
	}
	job := s.jobs[jobID]
	now := time.Now()
	job.Status = domain.StatusFailed
	job.Errors = &domain.JobErrors{Fatal: reason}
	job.FinishedAt = &now
	return nil
}

func (s *memStore) RequestCancel(ctx context.Context, jobID string) (domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ImportJob{}, domain.ErrImportNotFound
	}
	switch job.Status {
	case domain.StatusPending:
		job.Status = domain.StatusCancelled
	case domain.StatusProcessing:
		job.CancelRequested = true
	default:
		return *job, &domain.JobStateError{JobID: jobID, Status: job.Status, Operation: "cancel"}
	}
	return *job, nil
}

func (s *memStore) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[jobID].CancelRequested, nil
}

func (s *memStore) MarkCancelled(ctx context.Context, jobID string, attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.owns(jobID, attempt); err != nil {
		return err
	}
	job := s.jobs[jobID]
	now := time.Now()
	job.Status = domain.StatusCancelled
	job.CancelRequested = false
	job.FinishedAt = &now
	return nil
}

func (s *memStore) Stage(ctx context.Context, jobID string, attempt int, source domain.RowSource) (int64, error) {
	if s.stageDelay > 0 {
		select {
		case <-time.After(s.stageDelay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	var staged []*domain.ImportedRow
	for source.Next() {
		raw := source.Row()
		staged = append(staged, &domain.ImportedRow{
			ID:        fmt.Sprintf("%s-row-%d", jobID, raw.RowNumber),
			JobID:     jobID,
			RowNumber: raw.RowNumber,
			RawData:   raw.Data,
		})
	}
	if err := source.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.owns(jobID, attempt); err != nil {
		return 0, err
	}
	s.rows[jobID] = staged
	s.jobs[jobID].TotalRows = int64(len(staged))
	return int64(len(staged)), nil
}

func (s *memStore) ListForAttempt(ctx context.Context, jobID string, afterRow int, limit int) ([]domain.ImportedRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ImportedRow
	for _, row := range s.rows[jobID] {
		if row.RowNumber <= afterRow || !row.NeedsAttempt() {
			continue
		}
		out = append(out, *row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) RecordOutcome(ctx context.Context, jobID string, attempt int, rowID string, outcome domain.RowOutcome) (domain.ImportProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.owns(jobID, attempt); err != nil {
		return domain.ImportProgress{}, err
	}
	s.recordCalls++
	if s.failRecordAt > 0 && s.recordCalls == s.failRecordAt {
		return domain.ImportProgress{}, errStorage
	}
	// postgres rejects TEXT values that are not valid UTF-8
	if !utf8.ValidString(outcome.Message) {
		return domain.ImportProgress{}, fmt.Errorf("invalid byte sequence for encoding UTF8 in row %s", rowID)
	}

	job := s.jobs[jobID]
	for _, row := range s.rows[jobID] {
		if row.ID != rowID {
			continue
		}
		if !row.Processed {
			job.ProcessedRows++
		}
		success := outcome.Success
		row.Processed = true
		row.Success = &success
		row.Message = outcome.Message
	}
	if s.cancelAfterRecords > 0 && s.recordCalls == s.cancelAfterRecords {
		job.CancelRequested = true
	}
	if s.reclaimAfterRecords > 0 && s.recordCalls == s.reclaimAfterRecords {
		job.Attempts++
	}
	return domain.ImportProgress{Status: job.Status, TotalRows: job.TotalRows, ProcessedRows: job.ProcessedRows}, nil
}

func (s *memStore) List(ctx context.Context, jobID string, filter domain.RowFilter) ([]domain.ImportedRow, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.ImportedRow
	for _, row := range s.rows[jobID] {
		if filter.Success != nil && (row.Success == nil || *row.Success != *filter.Success) {
			continue
		}
		matched = append(matched, *row)
	}
	start := (filter.Page - 1) * filter.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := min(start+filter.PageSize, len(matched))
	return matched[start:end], int64(len(matched)), nil
}

func (s *memStore) Failures(ctx context.Context, jobID string, limit int) (domain.JobErrors, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary domain.JobErrors
	for _, row := range s.rows[jobID] {
		if !row.Processed || row.Success == nil || *row.Success {
			continue
		}
		summary.FailedRows++
		if len(summary.Rows) < limit {
			summary.Rows = append(summary.Rows, domain.RowFailure{RowNumber: row.RowNumber, Message: row.Message})
		}
	}
	return summary, nil
}

func (s *memStore) job(id string) domain.ImportJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *memStore) countProcessed(jobID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, row := range s.rows[jobID] {
		if row.Processed {
			n++
		}
	}
	return n
}

func (s *memStore) row(jobID string, rowNumber int) domain.ImportedRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.rows[jobID] {
		if row.RowNumber == rowNumber {
			return *row
		}
	}
	return domain.ImportedRow{}
}

type sliceSource struct {
	rows []domain.RawRow
	pos  int
	cur  domain.RawRow
}

func (s *sliceSource) Next() bool {
	if s.pos >= len(s.rows) {
		return false
	}
	s.cur = s.rows[s.pos]
	s.pos++
	return true
}

func (s *sliceSource) Row() domain.RawRow { return s.cur }
func (s *sliceSource) Err() error         { return nil }
func (s *sliceSource) Close() error       { return nil }

type fakeParser struct {
	rows  []domain.RawRow
	err   error
	calls int
}

func (f *fakeParser) Parse(r io.Reader) (domain.RowSource, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &sliceSource{rows: f.rows}, nil
}

type fakeBlobs struct {
	openErr   error
	storeErr  error
	opened    []string
	storedAs  string
	storedRaw string
}

func (f *fakeBlobs) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.storedAs = name
	f.storedRaw = string(data)
	return "file:///blobs/" + name, nil
}

func (f *fakeBlobs) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	f.opened = append(f.opened, uri)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(strings.NewReader("")), nil
}

type fakeColleges struct {
	err error
}

func (f *fakeColleges) LoadContext(ctx context.Context, collegeID string) (*domain.CollegeContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	return domain.NewCollegeContext(
		domain.College{ID: collegeID, Name: "Riverside College", EstablishedYear: 1990, AdminUserID: testAdminID},
		[]domain.Course{{ID: "course-mba", CollegeID: collegeID, Name: "MBA", DurationYears: 2, IsActive: true}},
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	), nil
}

type fakeCommitter struct {
	mu        sync.Mutex
	committed []string
	failFor   map[string]error
	panicFor  map[string]bool
}

func (f *fakeCommitter) Commit(ctx context.Context, row domain.NormalizedRow, college domain.College) (domain.CommitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.panicFor[row.Email] {
		panic("nil membership")
	}
	if err := f.failFor[row.Email]; err != nil {
		return domain.CommitResult{}, err
	}
	f.committed = append(f.committed, row.Email)
	return domain.CommitResult{Created: true}, nil
}

func (f *fakeCommitter) emails() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.committed...)
	sort.Strings(out)
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.ImportNotification
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, n domain.ImportNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeNotifier) last() domain.ImportNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return domain.ImportNotification{}
	}
	return f.sent[len(f.sent)-1]
}

type fakePolicy struct {
	allowed    bool
	err        error
	membership *string
}

func (f *fakePolicy) CanManageImports(ctx context.Context, actor domain.Actor, collegeID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.allowed || actor.IsStaff, nil
}

func (f *fakePolicy) ActingMembership(ctx context.Context, actor domain.Actor, collegeID string) (*string, error) {
	return f.membership, nil
}

type fakeLauncher struct {
	store *memStore
	err   error
	calls int
}

func (f *fakeLauncher) Launch(ctx context.Context, jobID string) (domain.ImportJob, error) {
	f.calls++
	if f.err != nil {
		return domain.ImportJob{}, f.err
	}
	return f.store.Claim(ctx, jobID, time.Minute)
}

func alumniRow(n int, startYear, endYear string) domain.RawRow {
	return domain.RawRow{RowNumber: n, Data: domain.RawData{
		"email":      fmt.Sprintf("alum%02d@example.com", n),
		"first_name": fmt.Sprintf("Alum %d", n),
		"course":     "MBA",
		"start_year": startYear,
		"end_year":   endYear,
	}}
}

func alumniRows(count int) []domain.RawRow {
	rows := make([]domain.RawRow, 0, count)
	for i := 1; i <= count; i++ {
		rows = append(rows, alumniRow(i, "2015", "2017"))
	}
	return rows
}

func ptr[T any](v T) *T {
	return &v
}
