package alumni

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
)

const maxStoredFailures = 100

type ImportWorkerConfig struct {
	Workers           int
	QueueSize         int
	PageSize          int
	PollInterval      time.Duration
	LeaseDuration     time.Duration
	HeartbeatInterval time.Duration
	NotifyTimeout     time.Duration
}

type ImportWorkerDeps struct {
	Jobs      domain.ImportJobRepository
	Rows      domain.ImportRowRepository
	Colleges  domain.CollegeRepository
	Blobs     domain.BlobStore
	Parser    domain.RowParser
	Committer domain.Committer
	Notifier  domain.Notifier
}

// ImportWorker owns the import job lifecycle. A job is processed by one worker at a time: the
// processing status plus its lease act as the lock.
type ImportWorker struct {
	deps   ImportWorkerDeps
	cfg    ImportWorkerConfig
	logger *zap.Logger
	queue  chan domain.ImportJob

	once sync.Once
}

func NewImportWorker(deps ImportWorkerDeps, cfg ImportWorkerConfig, logger *zap.Logger) *ImportWorker {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 60 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = cfg.LeaseDuration / 2
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ImportWorker{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan domain.ImportJob, cfg.QueueSize),
	}
}

func (w *ImportWorker) Start(ctx context.Context) {
	w.once.Do(func() {
		for i := 0; i < w.cfg.Workers; i++ {
			go w.workerLoop(ctx)
		}
	})
}

// Launch claims the job for processing and hands it to the pool. Launching a job that is already
// processing is a no-op that returns the job as it stands together with a *domain.JobStateError.
func (w *ImportWorker) Launch(ctx context.Context, jobID string) (domain.ImportJob, error) {
	job, err := w.deps.Jobs.Claim(ctx, jobID, w.cfg.LeaseDuration)
	if err != nil {
		return job, err
	}

	select {
	case w.queue <- job:
	default:
		// every worker is busy; an expired lease lets the next poll pick the job up
		if err := w.deps.Jobs.ReleaseLease(ctx, job.ID, job.Attempts); err != nil {
			w.logger.Warn("release lease of queued import failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	return job, nil
}

func (w *ImportWorker) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.queue:
			w.run(ctx, job)
			continue
		default:
		}

		job, err := w.deps.Jobs.ClaimNext(ctx, w.cfg.LeaseDuration)
		if err != nil {
			w.logger.Error("claim next import job failed", zap.Error(err))
		}
		if job != nil {
			w.run(ctx, *job)
			continue
		}

		timer := time.NewTimer(w.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case job := <-w.queue:
			timer.Stop()
			w.run(ctx, job)
		case <-timer.C:
		}
	}
}

func (w *ImportWorker) run(ctx context.Context, job domain.ImportJob) {
	m := getMetrics()
	m.running.Inc()
	defer m.running.Dec()

	if err := w.ProcessJob(ctx, job); err != nil && !errors.Is(err, domain.ErrLeaseLost) {
		w.logger.Error("process import job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// keepLease renews the lease until ctx ends. Losing the lease cancels the run with
// domain.ErrLeaseLost as the cause; other heartbeat errors are retried on the next tick.
func (w *ImportWorker) keepLease(ctx context.Context, lost context.CancelCauseFunc, job domain.ImportJob) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := w.deps.Jobs.Heartbeat(ctx, job.ID, job.Attempts, w.cfg.LeaseDuration)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrLeaseLost):
			lost(err)
			return
		case ctx.Err() == nil:
			w.logger.Warn("import heartbeat failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// ProcessJob drives a claimed job until every staged row is processed, a fatal error occurs, the
// operator cancels it, or ctx ends. In the last case the job stays processing and is resumed once
// its lease expires. The lease is renewed in the background for the whole run; once another run
// takes the job over, ProcessJob stops without touching it and returns domain.ErrLeaseLost.
func (w *ImportWorker) ProcessJob(ctx context.Context, job domain.ImportJob) error {
	logger := w.logger.With(zap.String("job_id", job.ID), zap.String("college_id", job.CollegeID), zap.Int("attempt", job.Attempts))

	ctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	go w.keepLease(ctx, stop, job)

	cc, err := w.deps.Colleges.LoadContext(ctx, job.CollegeID)
	if err != nil {
		return w.fail(ctx, job, domain.College{ID: job.CollegeID}, fmt.Errorf("resolve college: %w", err))
	}

	if !job.Staged() {
		total, err := w.stage(ctx, job)
		if err != nil {
			return w.fail(ctx, job, cc.College, err)
		}
		job.TotalRows = total
		logger.Info("import rows staged", zap.Int64("total_rows", total))
	}

	m := getMetrics()
	afterRow := 0
	for {
		batch, err := w.deps.Rows.ListForAttempt(ctx, job.ID, afterRow, w.cfg.PageSize)
		if err != nil {
			return w.fail(ctx, job, cc.College, fmt.Errorf("list staged rows: %w", err))
		}
		if len(batch) == 0 {
			break
		}

		for _, row := range batch {
			afterRow = row.RowNumber

			if ctx.Err() != nil {
				return context.Cause(ctx)
			}

			cancelled, err := w.deps.Jobs.CancelRequested(ctx, job.ID)
			if err != nil {
				return w.fail(ctx, job, cc.College, fmt.Errorf("check cancellation: %w", err))
			}
			if cancelled {
				return w.cancel(ctx, job, cc.College)
			}

			started := time.Now()
			outcome := w.attempt(ctx, row, cc)
			m.rowDuration.Observe(time.Since(started).Seconds())

			progress, err := w.deps.Rows.RecordOutcome(ctx, job.ID, job.Attempts, row.ID, outcome)
			if err != nil {
				return w.fail(ctx, job, cc.College, fmt.Errorf("record outcome of row %d: %w", row.RowNumber, err))
			}
			job.ProcessedRows = progress.ProcessedRows

			if outcome.Success {
				m.rowsTotal.WithLabelValues("success").Inc()
			} else {
				m.rowsTotal.WithLabelValues("failure").Inc()
				logger.Debug("import row failed", zap.Int("row_number", row.RowNumber), zap.String("message", outcome.Message))
			}
		}
	}

	summary, err := w.deps.Rows.Failures(ctx, job.ID, maxStoredFailures)
	if err != nil {
		return w.fail(ctx, job, cc.College, fmt.Errorf("summarize failures: %w", err))
	}
	done, err := w.deps.Jobs.Complete(ctx, job.ID, job.Attempts, summary)
	if err != nil {
		return w.fail(ctx, job, cc.College, fmt.Errorf("complete job: %w", err))
	}

	m.jobsTotal.WithLabelValues(string(domain.StatusDone)).Inc()
	logger.Info("import finished",
		zap.Int64("total_rows", done.TotalRows),
		zap.Int64("processed_rows", done.ProcessedRows),
		zap.Int64("failed_rows", summary.FailedRows),
	)
	w.notify(ctx, done, cc.College, summary.FailedRows, "")
	return nil
}

func (w *ImportWorker) stage(ctx context.Context, job domain.ImportJob) (int64, error) {
	reader, err := w.deps.Blobs.Open(ctx, job.BlobURI)
	if err != nil {
		return 0, &domain.MalformedFileError{Reason: "open blob " + job.BlobURI, Err: err}
	}
	defer reader.Close()

	source, err := w.deps.Parser.Parse(reader)
	if err != nil {
		return 0, err
	}
	defer source.Close()

	total, err := w.deps.Rows.Stage(ctx, job.ID, job.Attempts, source)
	if err != nil {
		return 0, fmt.Errorf("stage rows: %w", err)
	}
	return total, nil
}

// attempt validates and commits one row. Nothing a single row does may escape as a panic.
func (w *ImportWorker) attempt(ctx context.Context, row domain.ImportedRow, cc *domain.CollegeContext) (outcome domain.RowOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.RowOutcome{Message: truncateReason(fmt.Sprintf("unexpected error: %v", r))}
		}
	}()

	normalized, err := domain.ValidateRow(domain.RawRow{RowNumber: row.RowNumber, Data: row.RawData}, cc)
	if err != nil {
		return domain.RowOutcome{Message: truncateReason(err.Error())}
	}

	result, err := w.deps.Committer.Commit(ctx, normalized, cc.College)
	if err != nil {
		return domain.RowOutcome{Message: truncateReason(err.Error())}
	}

	return domain.RowOutcome{Success: true, Message: describeCommit(result)}
}

func describeCommit(result domain.CommitResult) string {
	switch {
	case result.Promoted:
		return "membership promoted to alumni"
	case result.Created:
		return "alumni membership created"
	default:
		return "alumni membership updated"
	}
}

func (w *ImportWorker) cancel(ctx context.Context, job domain.ImportJob, college domain.College) error {
	if err := w.deps.Jobs.MarkCancelled(ctx, job.ID, job.Attempts); err != nil {
		return w.fail(ctx, job, college, fmt.Errorf("mark cancelled: %w", err))
	}
	getMetrics().jobsTotal.WithLabelValues(string(domain.StatusCancelled)).Inc()
	w.logger.Info("import cancelled", zap.String("job_id", job.ID), zap.Int64("processed_rows", job.ProcessedRows))

	job.Status = domain.StatusCancelled
	w.notify(ctx, job, college, 0, "")
	return nil
}

func (w *ImportWorker) fail(ctx context.Context, job domain.ImportJob, college domain.College, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, domain.ErrLeaseLost) {
		err = cause
	}
	if errors.Is(err, domain.ErrLeaseLost) {
		w.logger.Warn("import lease lost, leaving the job to its new owner",
			zap.String("job_id", job.ID), zap.Int("attempt", job.Attempts), zap.Error(err))
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return err
	}

	reason := truncateReason(err.Error())
	if failErr := w.deps.Jobs.Fail(ctx, job.ID, job.Attempts, reason); failErr != nil {
		return fmt.Errorf("%v; fail update failed: %w", err, failErr)
	}
	getMetrics().jobsTotal.WithLabelValues(string(domain.StatusFailed)).Inc()

	job.Status = domain.StatusFailed
	w.notify(ctx, job, college, 0, reason)
	return err
}

// notify is fire-and-forget: a failing notifier never changes the job outcome.
func (w *ImportWorker) notify(ctx context.Context, job domain.ImportJob, college domain.College, failedRows int64, fatal string) {
	if w.deps.Notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.NotifyTimeout)
	defer cancel()

	err := w.deps.Notifier.Notify(notifyCtx, domain.ImportNotification{
		JobID:         job.ID,
		CollegeID:     job.CollegeID,
		CollegeName:   college.Name,
		AdminUserID:   college.AdminUserID,
		Status:        job.Status,
		TotalRows:     job.TotalRows,
		ProcessedRows: job.ProcessedRows,
		FailedRows:    failedRows,
		Fatal:         fatal,
	})
	if err != nil {
		w.logger.Warn("import notification failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// truncateReason makes a message storable in a TEXT column: valid UTF-8, no NUL bytes, and at
// most maxLen bytes cut on a character boundary.
func truncateReason(reason string) string {
	const maxLen = 1000
	reason = strings.ToValidUTF8(strings.TrimSpace(reason), "\uFFFD")
	reason = strings.ReplaceAll(reason, "\x00", "")
	if len(reason) <= maxLen {
		return reason
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
