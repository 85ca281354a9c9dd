package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/db/models"
)

// ImportRowRepository stages rows with COPY through pgx and tracks per-row outcomes through gorm.
type ImportRowRepository struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

func NewImportRowRepository(db *gorm.DB, pool *pgxpool.Pool) *ImportRowRepository {
	return &ImportRowRepository{db: db, pool: pool}
}

func (r *ImportRowRepository) Stage(ctx context.Context, jobID string, attempt int, rows domain.RowSource) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		total   int64
		status  string
		current int
	)
	err = tx.QueryRow(ctx, "SELECT total_rows, status, attempts FROM alumni_imports WHERE id = $1 FOR UPDATE", jobID).
		Scan(&total, &status, &current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrImportNotFound
		}
		return 0, fmt.Errorf("lock import job: %w", err)
	}
	if status != string(domain.StatusProcessing) || current != attempt {
		return 0, leaseLost(jobID, attempt)
	}
	if total > 0 {
		// staged by an earlier run that crashed before it could report back
		return total, nil
	}

	var sourceErr error
	copied, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"imported_alumni_rows"},
		[]string{"import_job_id", "row_number", "raw_data"},
		pgx.CopyFromFunc(func() ([]any, error) {
			if !rows.Next() {
				sourceErr = rows.Err()
				return nil, sourceErr
			}
			raw := rows.Row()
			payload, err := json.Marshal(raw.Data)
			if err != nil {
				return nil, fmt.Errorf("encode row %d: %w", raw.RowNumber, err)
			}
			return []any{jobID, int32(raw.RowNumber), payload}, nil
		}),
	)
	if sourceErr != nil {
		return 0, sourceErr
	}
	if err != nil {
		return 0, fmt.Errorf("copy staged rows: %w", err)
	}
	if copied == 0 {
		return 0, &domain.MalformedFileError{Reason: "no data rows"}
	}

	if _, err := tx.Exec(ctx, "UPDATE alumni_imports SET total_rows = $2, updated_at = NOW() WHERE id = $1", jobID, copied); err != nil {
		return 0, fmt.Errorf("set total rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit staged rows: %w", err)
	}
	return copied, nil
}

func (r *ImportRowRepository) ListForAttempt(ctx context.Context, jobID string, afterRow int, limit int) ([]domain.ImportedRow, error) {
	var rows []models.ImportedAlumniRow
	err := r.db.WithContext(ctx).
		Where("import_job_id = ? AND row_number > ?", jobID, afterRow).
		Where("processed = FALSE OR success IS NOT TRUE").
		Order("row_number").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list rows for attempt: %w", err)
	}
	return toDomainRows(rows)
}

func (r *ImportRowRepository) RecordOutcome(ctx context.Context, jobID string, attempt int, rowID string, outcome domain.RowOutcome) (domain.ImportProgress, error) {
	var progress domain.ImportProgress

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the job row lock orders this write against a concurrent reclaim
		var job models.AlumniImport
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "status", "attempts").
			First(&job, "id = ?", jobID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrImportNotFound
			}
			return fmt.Errorf("lock import job: %w", err)
		}
		if job.Status != string(domain.StatusProcessing) || job.Attempts != attempt {
			return leaseLost(jobID, attempt)
		}

		var row models.ImportedAlumniRow
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "processed").
			First(&row, "id = ? AND import_job_id = ?", rowID, jobID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrImportRowNotFound
			}
			return fmt.Errorf("lock staged row: %w", err)
		}

		now := time.Now()
		err = tx.Model(&models.ImportedAlumniRow{}).Where("id = ?", rowID).Updates(map[string]any{
			"processed":  true,
			"success":    outcome.Success,
			"message":    outcome.Message,
			"updated_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("update staged row: %w", err)
		}

		if !row.Processed {
			err = tx.Model(&models.AlumniImport{}).Where("id = ?", jobID).Updates(map[string]any{
				"processed_rows": gorm.Expr("processed_rows + 1"),
				"updated_at":     now,
			}).Error
			if err != nil {
				return fmt.Errorf("increment processed rows: %w", err)
			}
		}

		if err := tx.Select("status", "total_rows", "processed_rows").First(&job, "id = ?", jobID).Error; err != nil {
			return fmt.Errorf("read progress: %w", err)
		}
		progress = domain.ImportProgress{
			Status:        domain.ImportStatus(job.Status),
			TotalRows:     job.TotalRows,
			ProcessedRows: job.ProcessedRows,
		}
		return nil
	})
	if err != nil {
		return domain.ImportProgress{}, err
	}
	return progress, nil
}

func (r *ImportRowRepository) List(ctx context.Context, jobID string, filter domain.RowFilter) ([]domain.ImportedRow, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ImportedAlumniRow{}).Where("import_job_id = ?", jobID)
	if filter.Success != nil {
		query = query.Where("success = ?", *filter.Success)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count staged rows: %w", err)
	}

	var rows []models.ImportedAlumniRow
	err := query.
		Order("row_number").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list staged rows: %w", err)
	}

	out, err := toDomainRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *ImportRowRepository) Failures(ctx context.Context, jobID string, limit int) (domain.JobErrors, error) {
	failed := r.db.WithContext(ctx).Model(&models.ImportedAlumniRow{}).
		Where("import_job_id = ? AND processed = TRUE AND success = FALSE", jobID).
		Session(&gorm.Session{})

	var summary domain.JobErrors
	if err := failed.Count(&summary.FailedRows).Error; err != nil {
		return domain.JobErrors{}, fmt.Errorf("count failed rows: %w", err)
	}
	if summary.FailedRows == 0 {
		return summary, nil
	}

	var rows []models.ImportedAlumniRow
	if err := failed.Select("row_number", "message").Order("row_number").Limit(limit).Find(&rows).Error; err != nil {
		return domain.JobErrors{}, fmt.Errorf("list failed rows: %w", err)
	}
	summary.Rows = make([]domain.RowFailure, 0, len(rows))
	for _, row := range rows {
		summary.Rows = append(summary.Rows, domain.RowFailure{RowNumber: row.RowNumber, Message: row.Message})
	}
	return summary, nil
}

func toDomainRows(rows []models.ImportedAlumniRow) ([]domain.ImportedRow, error) {
	out := make([]domain.ImportedRow, 0, len(rows))
	for _, row := range rows {
		var data domain.RawData
		if len(row.RawData) > 0 {
			if err := json.Unmarshal(row.RawData, &data); err != nil {
				return nil, fmt.Errorf("decode raw data of row %d: %w", row.RowNumber, err)
			}
		}
		out = append(out, domain.ImportedRow{
			ID:        row.ID,
			JobID:     row.ImportJobID,
			RowNumber: row.RowNumber,
			RawData:   data,
			Processed: row.Processed,
			Success:   row.Success,
			Message:   row.Message,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return out, nil
}
