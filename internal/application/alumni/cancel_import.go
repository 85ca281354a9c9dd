package alumni

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
)

type CancelImportInput struct {
	Actor    domain.Actor
	ImportID string
}

// CancelImport stops a pending job at once; a processing job stops at its next row boundary.
type CancelImport interface {
	Execute(ctx context.Context, in CancelImportInput) (ImportView, error)
}

type cancelImport struct {
	jobs   domain.ImportJobRepository
	policy domain.AccessPolicy
}

func NewCancelImport(jobs domain.ImportJobRepository, policy domain.AccessPolicy) CancelImport {
	return &cancelImport{jobs: jobs, policy: policy}
}

func (uc *cancelImport) Execute(ctx context.Context, in CancelImportInput) (ImportView, error) {
	job, err := loadAuthorizedJob(ctx, uc.jobs, uc.policy, in.Actor, in.ImportID)
	if err != nil {
		return ImportView{}, err
	}

	updated, err := uc.jobs.RequestCancel(ctx, job.ID)
	if err != nil {
		var stateErr *domain.JobStateError
		if errors.As(err, &stateErr) {
			return newImportView(updated), fmt.Errorf("%w: %v", ErrImportNotCancellable, err)
		}
		if errors.Is(err, domain.ErrImportNotFound) {
			return ImportView{}, ErrImportNotFound
		}
		return ImportView{}, fmt.Errorf("%w: %v", ErrCancelImport, err)
	}

	return newImportView(updated), nil
}
