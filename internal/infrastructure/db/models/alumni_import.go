package models

import (
	"time"

	"gorm.io/datatypes"
)

type AlumniImport struct {
	ID              string         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	CollegeID       string         `gorm:"type:uuid;not null;index"`
	UploadedByID    *string        `gorm:"column:uploaded_by;type:uuid"`
	BlobURI         string         `gorm:"type:text;not null"`
	Status          string         `gorm:"type:text;not null;index"`
	TotalRows       int64          `gorm:"not null;default:0"`
	ProcessedRows   int64          `gorm:"not null;default:0"`
	Errors          datatypes.JSON `gorm:"type:jsonb"`
	CancelRequested bool           `gorm:"not null;default:false"`
	Attempts        int            `gorm:"not null;default:0"`
	HeartbeatAt     *time.Time
	LeaseExpiresAt  *time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (AlumniImport) TableName() string {
	return "alumni_imports"
}

type ImportedAlumniRow struct {
	ID          string         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	ImportJobID string         `gorm:"type:uuid;not null;uniqueIndex:ux_imported_rows_job_row"`
	RowNumber   int            `gorm:"not null;uniqueIndex:ux_imported_rows_job_row"`
	RawData     datatypes.JSON `gorm:"type:jsonb;not null"`
	Processed   bool           `gorm:"not null;default:false"`
	Success     *bool
	Message     string `gorm:"type:text;not null;default:''"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ImportedAlumniRow) TableName() string {
	return "imported_alumni_rows"
}
