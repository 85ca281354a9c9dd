package alumni

import "time"

type ImportStatus string

const (
	StatusPending    ImportStatus = "pending"
	StatusProcessing ImportStatus = "processing"
	StatusDone       ImportStatus = "done"
	StatusFailed     ImportStatus = "failed"
	StatusCancelled  ImportStatus = "cancelled"
)

func (s ImportStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Launchable reports whether a job in this status may be claimed for (re)processing.
func (s ImportStatus) Launchable() bool {
	return s == StatusPending || s.Terminal()
}

type ImportJob struct {
	ID              string
	CollegeID       string
	UploadedBy      *string
	BlobURI         string
	Status          ImportStatus
	TotalRows       int64
	ProcessedRows   int64
	Errors          *JobErrors
	CancelRequested bool
	Attempts        int
	StartedAt       *time.Time
	FinishedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Staged reports whether the blob was already materialized into rows.
func (j ImportJob) Staged() bool {
	return j.TotalRows > 0
}

// JobErrors is the job-level aggregate stored alongside the job.
type JobErrors struct {
	Fatal      string       `json:"fatal,omitempty"`
	FailedRows int64        `json:"failed_rows"`
	Rows       []RowFailure `json:"rows,omitempty"`
}

type RowFailure struct {
	RowNumber int    `json:"row_number"`
	Message   string `json:"message"`
}

type ImportedRow struct {
	ID        string
	JobID     string
	RowNumber int
	RawData   RawData
	Processed bool
	Success   *bool
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NeedsAttempt reports whether a run must (re)process the row.
func (r ImportedRow) NeedsAttempt() bool {
	return !r.Processed || r.Success == nil || !*r.Success
}

type RowOutcome struct {
	Success bool
	Message string
}

type RowFilter struct {
	Success  *bool
	Page     int
	PageSize int
}

type ImportProgress struct {
	Status        ImportStatus
	TotalRows     int64
	ProcessedRows int64
}

type ImportNotification struct {
	JobID         string
	CollegeID     string
	CollegeName   string
	AdminUserID   string
	Status        ImportStatus
	TotalRows     int64
	ProcessedRows int64
	FailedRows    int64
	Fatal         string
}
