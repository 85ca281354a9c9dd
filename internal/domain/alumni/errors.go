package alumni

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrImportNotFound        = errors.New("alumni import not found")
	ErrImportRowNotFound     = errors.New("imported alumni row not found")
	ErrCollegeNotFound       = errors.New("college not found")
	ErrMissingCollegeContext = errors.New("college context is required")
	// ErrLeaseLost means the job was reclaimed by another run or left processing.
	ErrLeaseLost = errors.New("import lease lost")
)

// MalformedFileError is fatal for the job: the uploaded blob could not be read as tabular data.
type MalformedFileError struct {
	Reason string
	Err    error
}

func (e *MalformedFileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed import file: %s: %v", e.Reason, e.Err)
	}
	return "malformed import file: " + e.Reason
}

func (e *MalformedFileError) Unwrap() error {
	return e.Err
}

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Reason
}

// FieldValidationError carries every problem found in a single row.
type FieldValidationError struct {
	Errors []FieldError
}

func (e *FieldValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.String())
	}
	return "invalid row: " + strings.Join(parts, "; ")
}

// HasField reports whether one of the collected errors refers to field.
func (e *FieldValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

type DuplicateEnrollmentError struct {
	EnrollmentNumber string
	Reason           string
}

func (e *DuplicateEnrollmentError) Error() string {
	if e.EnrollmentNumber == "" {
		return "duplicate enrollment: " + e.Reason
	}
	return fmt.Sprintf("duplicate enrollment %q: %s", e.EnrollmentNumber, e.Reason)
}

// CommitError wraps any failure of the per-row transaction that is not a domain rejection.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return "commit row: " + e.Err.Error()
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// JobStateError reports an operation that is not allowed in the job's current status.
type JobStateError struct {
	JobID     string
	Status    ImportStatus
	Operation string
}

func (e *JobStateError) Error() string {
	return fmt.Sprintf("cannot %s import %s in status %q", e.Operation, e.JobID, e.Status)
}
