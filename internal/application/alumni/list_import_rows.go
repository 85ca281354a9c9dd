package alumni

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
)

const (
	defaultRowsPageSize = 50
	maxRowsPageSize     = 500
)

type ListImportRowsInput struct {
	Actor    domain.Actor
	ImportID string
	Success  *bool
	Page     int
	PageSize int
}

type ImportRowView struct {
	ID        string         `json:"id"`
	RowNumber int            `json:"row_number"`
	RawData   map[string]any `json:"raw_data"`
	Processed bool           `json:"processed"`
	Success   *bool          `json:"success"`
	Message   string         `json:"message"`
}

type ListImportRowsOutput struct {
	Rows     []ImportRowView `json:"rows"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type ListImportRows interface {
	Execute(ctx context.Context, in ListImportRowsInput) (ListImportRowsOutput, error)
}

type listImportRows struct {
	jobs   domain.ImportJobRepository
	rows   domain.ImportRowRepository
	policy domain.AccessPolicy
}

func NewListImportRows(jobs domain.ImportJobRepository, rows domain.ImportRowRepository, policy domain.AccessPolicy) ListImportRows {
	return &listImportRows{jobs: jobs, rows: rows, policy: policy}
}

func (uc *listImportRows) Execute(ctx context.Context, in ListImportRowsInput) (ListImportRowsOutput, error) {
	job, err := loadAuthorizedJob(ctx, uc.jobs, uc.policy, in.Actor, in.ImportID)
	if err != nil {
		return ListImportRowsOutput{}, err
	}

	page := in.Page
	if page < 1 {
		page = 1
	}
	pageSize := in.PageSize
	if pageSize <= 0 {
		pageSize = defaultRowsPageSize
	}
	if pageSize > maxRowsPageSize {
		pageSize = maxRowsPageSize
	}

	rows, total, err := uc.rows.List(ctx, job.ID, domain.RowFilter{Success: in.Success, Page: page, PageSize: pageSize})
	if err != nil {
		if errors.Is(err, domain.ErrImportNotFound) {
			return ListImportRowsOutput{}, ErrImportNotFound
		}
		return ListImportRowsOutput{}, fmt.Errorf("%w: %v", ErrListImportRows, err)
	}

	views := make([]ImportRowView, 0, len(rows))
	for _, row := range rows {
		views = append(views, ImportRowView{
			ID:        row.ID,
			RowNumber: row.RowNumber,
			RawData:   row.RawData,
			Processed: row.Processed,
			Success:   row.Success,
			Message:   row.Message,
		})
	}

	return ListImportRowsOutput{Rows: views, Total: total, Page: page, PageSize: pageSize}, nil
}
