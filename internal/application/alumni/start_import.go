package alumni

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
)

var allowedUploadExtensions = map[string]struct{}{
	".csv":  {},
	".xlsx": {},
}

// StartImportInput names the source either by an already stored BlobURI or by an uploaded File.
type StartImportInput struct {
	Actor     domain.Actor
	CollegeID string
	BlobURI   string
	File      io.Reader
	FileName  string
}

type StartImportOutput struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type StartImport interface {
	Execute(ctx context.Context, in StartImportInput) (StartImportOutput, error)
}

type startImport struct {
	jobs     domain.ImportJobRepository
	policy   domain.AccessPolicy
	blobs    domain.BlobStore
	launcher importLauncher
	logger   *zap.Logger
}

func NewStartImport(jobs domain.ImportJobRepository, policy domain.AccessPolicy, blobs domain.BlobStore, launcher importLauncher, logger *zap.Logger) StartImport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &startImport{jobs: jobs, policy: policy, blobs: blobs, launcher: launcher, logger: logger}
}

func (uc *startImport) Execute(ctx context.Context, in StartImportInput) (StartImportOutput, error) {
	if _, err := uuid.Parse(in.CollegeID); err != nil {
		return StartImportOutput{}, ErrInvalidCollegeID
	}

	blobURI := strings.TrimSpace(in.BlobURI)
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(in.FileName)))
	switch {
	case in.File != nil && blobURI != "":
		return StartImportOutput{}, fmt.Errorf("%w: give either a file or a blob uri", ErrInvalidImportSource)
	case in.File != nil:
		if _, ok := allowedUploadExtensions[ext]; !ok {
			return StartImportOutput{}, fmt.Errorf("%w: only .csv and .xlsx files are accepted", ErrInvalidImportSource)
		}
	case blobURI == "":
		return StartImportOutput{}, ErrInvalidImportSource
	}

	if err := authorize(ctx, uc.policy, in.Actor, in.CollegeID); err != nil {
		return StartImportOutput{}, err
	}

	if in.File != nil {
		stored, err := uc.blobs.Store(ctx, uuid.NewString()+ext, in.File)
		if err != nil {
			return StartImportOutput{}, fmt.Errorf("%w: %v", ErrStoreUpload, err)
		}
		blobURI = stored
	}

	uploadedBy, err := uc.policy.ActingMembership(ctx, in.Actor, in.CollegeID)
	if err != nil {
		return StartImportOutput{}, fmt.Errorf("%w: %v", ErrAuthorize, err)
	}

	job, err := uc.jobs.Create(ctx, domain.ImportJob{
		ID:         uuid.NewString(),
		CollegeID:  in.CollegeID,
		UploadedBy: uploadedBy,
		BlobURI:    blobURI,
		Status:     domain.StatusPending,
	})
	if err != nil {
		return StartImportOutput{}, fmt.Errorf("%w: %v", ErrEnqueueImportJob, err)
	}

	launched, err := uc.launcher.Launch(ctx, job.ID)
	if err != nil {
		var stateErr *domain.JobStateError
		if !errors.As(err, &stateErr) {
			// the job is durable as pending; the worker poll claims it later
			uc.logger.Warn("launch import failed", zap.String("job_id", job.ID), zap.Error(err))
			return StartImportOutput{JobID: job.ID, Status: string(job.Status)}, nil
		}
	}

	return StartImportOutput{JobID: job.ID, Status: string(launched.Status)}, nil
}
