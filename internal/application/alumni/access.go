package alumni

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
)

type importLauncher interface {
	Launch(ctx context.Context, jobID string) (domain.ImportJob, error)
}

type ImportView struct {
	ID              string            `json:"id"`
	CollegeID       string            `json:"college_id"`
	UploadedBy      *string           `json:"uploaded_by"`
	BlobURI         string            `json:"blob_uri"`
	Status          string            `json:"status"`
	TotalRows       int64             `json:"total_rows"`
	ProcessedRows   int64             `json:"processed_rows"`
	Errors          *domain.JobErrors `json:"errors"`
	CancelRequested bool              `json:"cancel_requested"`
	Attempts        int               `json:"attempts"`
	StartedAt       *time.Time        `json:"started_at"`
	FinishedAt      *time.Time        `json:"finished_at"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func newImportView(job domain.ImportJob) ImportView {
	return ImportView{
		ID:              job.ID,
		CollegeID:       job.CollegeID,
		UploadedBy:      job.UploadedBy,
		BlobURI:         job.BlobURI,
		Status:          string(job.Status),
		TotalRows:       job.TotalRows,
		ProcessedRows:   job.ProcessedRows,
		Errors:          job.Errors,
		CancelRequested: job.CancelRequested,
		Attempts:        job.Attempts,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

func authorize(ctx context.Context, policy domain.AccessPolicy, actor domain.Actor, collegeID string) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}

	allowed, err := policy.CanManageImports(ctx, actor, collegeID)
	if err != nil {
		if errors.Is(err, domain.ErrCollegeNotFound) {
			return ErrCollegeNotFound
		}
		return fmt.Errorf("%w: %v", ErrAuthorize, err)
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

// loadAuthorizedJob fetches the job and checks the actor may manage imports of its college.
// Unknown ids and foreign colleges are indistinguishable to a caller without access.
func loadAuthorizedJob(ctx context.Context, jobs domain.ImportJobRepository, policy domain.AccessPolicy, actor domain.Actor, importID string) (domain.ImportJob, error) {
	if !actor.Authenticated() {
		return domain.ImportJob{}, ErrUnauthenticated
	}
	if _, err := uuid.Parse(importID); err != nil {
		return domain.ImportJob{}, ErrInvalidImportID
	}

	job, err := jobs.Get(ctx, importID)
	if err != nil {
		if errors.Is(err, domain.ErrImportNotFound) {
			return domain.ImportJob{}, ErrImportNotFound
		}
		return domain.ImportJob{}, fmt.Errorf("%w: %v", ErrGetImport, err)
	}

	if err := authorize(ctx, policy, actor, job.CollegeID); err != nil {
		if errors.Is(err, ErrForbidden) || errors.Is(err, ErrCollegeNotFound) {
			return domain.ImportJob{}, ErrImportNotFound
		}
		return domain.ImportJob{}, err
	}
	return job, nil
}
