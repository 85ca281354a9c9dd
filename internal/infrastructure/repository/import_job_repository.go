package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/db/models"
)

type ImportJobRepository struct {
	db *gorm.DB
}

func NewImportJobRepository(db *gorm.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

func (r *ImportJobRepository) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	row := models.AlumniImport{
		ID:           job.ID,
		CollegeID:    job.CollegeID,
		UploadedByID: job.UploadedBy,
		BlobURI:      job.BlobURI,
		Status:       string(domain.StatusPending),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.ImportJob{}, fmt.Errorf("create import job: %w", err)
	}
	return toDomainJob(row)
}

func (r *ImportJobRepository) Get(ctx context.Context, jobID string) (domain.ImportJob, error) {
	var row models.AlumniImport
	if err := r.db.WithContext(ctx).First(&row, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ImportJob{}, domain.ErrImportNotFound
		}
		return domain.ImportJob{}, fmt.Errorf("get import job: %w", err)
	}
	return toDomainJob(row)
}

func (r *ImportJobRepository) Claim(ctx context.Context, jobID string, leaseDuration time.Duration) (domain.ImportJob, error) {
	var claimed models.AlumniImport
	var stateErr error

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.AlumniImport
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrImportNotFound
			}
			return fmt.Errorf("lock import job: %w", err)
		}

		if !domain.ImportStatus(row.Status).Launchable() {
			claimed = row
			stateErr = &domain.JobStateError{JobID: jobID, Status: domain.ImportStatus(row.Status), Operation: "launch"}
			return nil
		}

		updated, err := markClaimed(tx, row, leaseDuration)
		if err != nil {
			return err
		}
		claimed = updated
		return nil
	})
	if err != nil {
		return domain.ImportJob{}, err
	}

	job, err := toDomainJob(claimed)
	if err != nil {
		return domain.ImportJob{}, err
	}
	return job, stateErr
}

func (r *ImportJobRepository) ClaimNext(ctx context.Context, leaseDuration time.Duration) (*domain.ImportJob, error) {
	var claimed *models.AlumniImport

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.AlumniImport
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? OR (status = ? AND (lease_expires_at IS NULL OR lease_expires_at < NOW()))",
				domain.StatusPending, domain.StatusProcessing).
			Order("created_at").
			First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("select next import job: %w", err)
		}

		updated, err := markClaimed(tx, row, leaseDuration)
		if err != nil {
			return err
		}
		claimed = &updated
		return nil
	})
	if err != nil || claimed == nil {
		return nil, err
	}

	job, err := toDomainJob(*claimed)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// markClaimed starts a run. The bumped attempts value identifies the run from here on. A job that
// was already processing keeps its cancel flag so a cancel requested before a crash is still honoured.
func markClaimed(tx *gorm.DB, row models.AlumniImport, leaseDuration time.Duration) (models.AlumniImport, error) {
	now := time.Now()
	lease := now.Add(leaseDuration)
	updates := map[string]any{
		"status":           string(domain.StatusProcessing),
		"attempts":         gorm.Expr("attempts + 1"),
		"heartbeat_at":     now,
		"lease_expires_at": lease,
		"finished_at":      nil,
		"updated_at":       now,
	}
	if row.Status != string(domain.StatusProcessing) {
		updates["cancel_requested"] = false
		updates["started_at"] = now
		updates["errors"] = nil
	}

	if err := tx.Model(&models.AlumniImport{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
		return models.AlumniImport{}, fmt.Errorf("claim import job: %w", err)
	}

	var updated models.AlumniImport
	if err := tx.First(&updated, "id = ?", row.ID).Error; err != nil {
		return models.AlumniImport{}, fmt.Errorf("reload import job: %w", err)
	}
	return updated, nil
}

// leased scopes an update to the run that holds the claim. Every claim bumps attempts, so a
// reclaimed job no longer matches the attempt of its previous owner.
func leased(tx *gorm.DB, jobID string, attempt int) *gorm.DB {
	return tx.Model(&models.AlumniImport{}).
		Where("id = ? AND status = ? AND attempts = ?", jobID, domain.StatusProcessing, attempt)
}

func leaseLost(jobID string, attempt int) error {
	return fmt.Errorf("%w: job %s attempt %d", domain.ErrLeaseLost, jobID, attempt)
}

func (r *ImportJobRepository) Heartbeat(ctx context.Context, jobID string, attempt int, leaseDuration time.Duration) error {
	now := time.Now()
	result := leased(r.db.WithContext(ctx), jobID, attempt).
		Updates(map[string]any{
			"heartbeat_at":     now,
			"lease_expires_at": now.Add(leaseDuration),
		})
	if result.Error != nil {
		return fmt.Errorf("heartbeat import job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return leaseLost(jobID, attempt)
	}
	return nil
}

func (r *ImportJobRepository) ReleaseLease(ctx context.Context, jobID string, attempt int) error {
	result := leased(r.db.WithContext(ctx), jobID, attempt).
		Update("lease_expires_at", gorm.Expr("NOW()"))
	if result.Error != nil {
		return fmt.Errorf("release import lease: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return leaseLost(jobID, attempt)
	}
	return nil
}

func (r *ImportJobRepository) Complete(ctx context.Context, jobID string, attempt int, summary domain.JobErrors) (domain.ImportJob, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("encode import errors: %w", err)
	}

	if err := r.finish(ctx, jobID, attempt, domain.StatusDone, datatypes.JSON(payload)); err != nil {
		return domain.ImportJob{}, err
	}
	return r.Get(ctx, jobID)
}

func (r *ImportJobRepository) Fail(ctx context.Context, jobID string, attempt int, reason string) error {
	payload, err := json.Marshal(domain.JobErrors{Fatal: reason})
	if err != nil {
		return fmt.Errorf("encode import errors: %w", err)
	}
	return r.finish(ctx, jobID, attempt, domain.StatusFailed, datatypes.JSON(payload))
}

func (r *ImportJobRepository) MarkCancelled(ctx context.Context, jobID string, attempt int) error {
	return r.finish(ctx, jobID, attempt, domain.StatusCancelled, nil)
}

func (r *ImportJobRepository) finish(ctx context.Context, jobID string, attempt int, status domain.ImportStatus, errs datatypes.JSON) error {
	now := time.Now()
	updates := map[string]any{
		"status":           string(status),
		"cancel_requested": false,
		"lease_expires_at": nil,
		"finished_at":      now,
		"updated_at":       now,
	}
	if errs != nil {
		updates["errors"] = errs
	}

	result := leased(r.db.WithContext(ctx), jobID, attempt).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("mark import job %s: %w", status, result.Error)
	}
	if result.RowsAffected == 0 {
		return leaseLost(jobID, attempt)
	}
	return nil
}

func (r *ImportJobRepository) RequestCancel(ctx context.Context, jobID string) (domain.ImportJob, error) {
	var current models.AlumniImport
	var stateErr error

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrImportNotFound
			}
			return fmt.Errorf("lock import job: %w", err)
		}

		now := time.Now()
		var updates map[string]any
		switch domain.ImportStatus(current.Status) {
		case domain.StatusPending:
			updates = map[string]any{"status": string(domain.StatusCancelled), "finished_at": now, "updated_at": now}
		case domain.StatusProcessing:
			updates = map[string]any{"cancel_requested": true, "updated_at": now}
		default:
			stateErr = &domain.JobStateError{JobID: jobID, Status: domain.ImportStatus(current.Status), Operation: "cancel"}
			return nil
		}

		if err := tx.Model(&models.AlumniImport{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
			return fmt.Errorf("cancel import job: %w", err)
		}
		return tx.First(&current, "id = ?", jobID).Error
	})
	if err != nil {
		return domain.ImportJob{}, err
	}

	job, err := toDomainJob(current)
	if err != nil {
		return domain.ImportJob{}, err
	}
	return job, stateErr
}

func (r *ImportJobRepository) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var requested bool
	err := r.db.WithContext(ctx).Model(&models.AlumniImport{}).
		Select("cancel_requested").
		Where("id = ?", jobID).
		Scan(&requested).Error
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return requested, nil
}

func toDomainJob(row models.AlumniImport) (domain.ImportJob, error) {
	job := domain.ImportJob{
		ID:              row.ID,
		CollegeID:       row.CollegeID,
		UploadedBy:      row.UploadedByID,
		BlobURI:         row.BlobURI,
		Status:          domain.ImportStatus(row.Status),
		TotalRows:       row.TotalRows,
		ProcessedRows:   row.ProcessedRows,
		CancelRequested: row.CancelRequested,
		Attempts:        row.Attempts,
		StartedAt:       row.StartedAt,
		FinishedAt:      row.FinishedAt,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if len(row.Errors) > 0 && string(row.Errors) != "null" {
		var errs domain.JobErrors
		if err := json.Unmarshal(row.Errors, &errs); err != nil {
			return domain.ImportJob{}, fmt.Errorf("decode import errors: %w", err)
		}
		job.Errors = &errs
	}
	return job, nil
}
