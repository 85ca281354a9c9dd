package alumni

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
)

type RetryImportInput struct {
	Actor    domain.Actor
	ImportID string
}

// RetryImport re-launches a job so that only its unsuccessful rows are attempted again. When the
// job is already processing the returned view carries its progress alongside ErrImportInProgress.
type RetryImport interface {
	Execute(ctx context.Context, in RetryImportInput) (ImportView, error)
}

type retryImport struct {
	jobs     domain.ImportJobRepository
	policy   domain.AccessPolicy
	launcher importLauncher
}

func NewRetryImport(jobs domain.ImportJobRepository, policy domain.AccessPolicy, launcher importLauncher) RetryImport {
	return &retryImport{jobs: jobs, policy: policy, launcher: launcher}
}

func (uc *retryImport) Execute(ctx context.Context, in RetryImportInput) (ImportView, error) {
	job, err := loadAuthorizedJob(ctx, uc.jobs, uc.policy, in.Actor, in.ImportID)
	if err != nil {
		return ImportView{}, err
	}

	launched, err := uc.launcher.Launch(ctx, job.ID)
	if err != nil {
		var stateErr *domain.JobStateError
		if errors.As(err, &stateErr) {
			return newImportView(launched), fmt.Errorf("%w: %v", ErrImportInProgress, err)
		}
		if errors.Is(err, domain.ErrImportNotFound) {
			return ImportView{}, ErrImportNotFound
		}
		return ImportView{}, fmt.Errorf("%w: %v", ErrRetryImport, err)
	}

	return newImportView(launched), nil
}
