package alumni

import (
	"context"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
)

type GetImportInput struct {
	Actor    domain.Actor
	ImportID string
}

type GetImport interface {
	Execute(ctx context.Context, in GetImportInput) (ImportView, error)
}

type getImport struct {
	jobs   domain.ImportJobRepository
	policy domain.AccessPolicy
}

func NewGetImport(jobs domain.ImportJobRepository, policy domain.AccessPolicy) GetImport {
	return &getImport{jobs: jobs, policy: policy}
}

func (uc *getImport) Execute(ctx context.Context, in GetImportInput) (ImportView, error) {
	job, err := loadAuthorizedJob(ctx, uc.jobs, uc.policy, in.Actor, in.ImportID)
	if err != nil {
		return ImportView{}, err
	}
	return newImportView(job), nil
}
