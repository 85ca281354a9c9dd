package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/db/models"
)

type CollegeRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCollegeRepository(db *gorm.DB) *CollegeRepository {
	return &CollegeRepository{db: db, now: time.Now}
}

func (r *CollegeRepository) LoadContext(ctx context.Context, collegeID string) (*domain.CollegeContext, error) {
	var college models.College
	err := r.db.WithContext(ctx).First(&college, "id = ? AND is_deleted = FALSE", collegeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCollegeNotFound
		}
		return nil, fmt.Errorf("get college: %w", err)
	}

	var courses []models.Course
	if err := r.db.WithContext(ctx).Where("college_id = ?", collegeID).Order("name, specialization").Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}

	out := make([]domain.Course, 0, len(courses))
	for _, course := range courses {
		out = append(out, domain.Course{
			ID:             course.ID,
			CollegeID:      course.CollegeID,
			Name:           course.Name,
			Specialization: course.Specialization,
			DurationYears:  course.DurationYears,
			IsActive:       course.IsActive,
		})
	}

	established := 0
	if college.EstablishedYear != nil {
		established = *college.EstablishedYear
	}
	return domain.NewCollegeContext(domain.College{
		ID:              college.ID,
		Name:            college.Name,
		Handle:          college.Handle,
		EstablishedYear: established,
		AdminUserID:     college.AdminUserID,
	}, out, r.now()), nil
}
