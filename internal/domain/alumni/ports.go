package alumni

import (
	"context"
	"io"
	"time"
)

type ImportJobRepository interface {
	Create(ctx context.Context, job ImportJob) (ImportJob, error)
	Get(ctx context.Context, jobID string) (ImportJob, error)
	// Claim moves a launchable job to processing. A job already processing is returned together
	// with a *JobStateError so callers can report its progress.
	Claim(ctx context.Context, jobID string, leaseDuration time.Duration) (ImportJob, error)
	// ClaimNext picks a pending job or a processing job whose lease expired, or returns nil.
	ClaimNext(ctx context.Context, leaseDuration time.Duration) (*ImportJob, error)
	RequestCancel(ctx context.Context, jobID string) (ImportJob, error)
	CancelRequested(ctx context.Context, jobID string) (bool, error)
	// The methods below take the Attempts value of the claim that owns the run. They fail with
	// ErrLeaseLost once the job was claimed again or is no longer processing.
	Heartbeat(ctx context.Context, jobID string, attempt int, leaseDuration time.Duration) error
	ReleaseLease(ctx context.Context, jobID string, attempt int) error
	Complete(ctx context.Context, jobID string, attempt int, summary JobErrors) (ImportJob, error)
	Fail(ctx context.Context, jobID string, attempt int, reason string) error
	MarkCancelled(ctx context.Context, jobID string, attempt int) error
}

type ImportRowRepository interface {
	// Stage materializes every parsed row for the job and sets its total_rows, in one transaction.
	Stage(ctx context.Context, jobID string, attempt int, rows RowSource) (int64, error)
	// ListForAttempt returns rows after afterRow that are unprocessed or failed, by row number.
	ListForAttempt(ctx context.Context, jobID string, afterRow int, limit int) ([]ImportedRow, error)
	// RecordOutcome persists one attempt and bumps the job counter on first processing, atomically.
	// It fails with ErrLeaseLost when attempt no longer owns the job.
	RecordOutcome(ctx context.Context, jobID string, attempt int, rowID string, outcome RowOutcome) (ImportProgress, error)
	List(ctx context.Context, jobID string, filter RowFilter) ([]ImportedRow, int64, error)
	Failures(ctx context.Context, jobID string, limit int) (JobErrors, error)
}

// RowSource is a single-pass sequence of parsed rows.
type RowSource interface {
	Next() bool
	Row() RawRow
	Err() error
	Close() error
}

type RowParser interface {
	Parse(r io.Reader) (RowSource, error)
}

type CollegeRepository interface {
	LoadContext(ctx context.Context, collegeID string) (*CollegeContext, error)
}

type Committer interface {
	Commit(ctx context.Context, row NormalizedRow, college College) (CommitResult, error)
}

type BlobStore interface {
	Store(ctx context.Context, name string, r io.Reader) (string, error)
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

type Notifier interface {
	Notify(ctx context.Context, n ImportNotification) error
}

type AccessPolicy interface {
	CanManageImports(ctx context.Context, actor Actor, collegeID string) (bool, error)
	// ActingMembership returns the caller's membership id in the college, if any.
	ActingMembership(ctx context.Context, actor Actor, collegeID string) (*string, error)
}
