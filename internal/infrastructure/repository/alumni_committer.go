package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/db/models"
)

// AlumniCommitter turns one validated row into user, membership, enrollment and academic record
// inside a single transaction. Re-committing the same row resolves to the same entities.
type AlumniCommitter struct {
	db *gorm.DB
}

func NewAlumniCommitter(db *gorm.DB) *AlumniCommitter {
	return &AlumniCommitter{db: db}
}

func (c *AlumniCommitter) Commit(ctx context.Context, row domain.NormalizedRow, college domain.College) (domain.CommitResult, error) {
	var result domain.CommitResult

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := findOrCreateUser(tx, row)
		if err != nil {
			return err
		}

		membership, promoted, created, err := resolveMembership(tx, user, row, college)
		if err != nil {
			return err
		}

		enrollment, err := resolveEnrollment(tx, membership, row, college)
		if err != nil {
			return err
		}

		result = domain.CommitResult{
			Membership: toDomainMembership(membership),
			Enrollment: toDomainEnrollment(enrollment),
			Promoted:   promoted,
			Created:    created,
		}

		if row.HasAcademicRecord() {
			record, err := upsertAcademicRecord(tx, enrollment, row)
			if err != nil {
				return err
			}
			result.AcademicRecord = &domain.AcademicRecord{
				ID:           record.ID,
				EnrollmentID: record.EnrollmentID,
				Semester:     record.Semester,
				CGPA:         record.CGPA,
				SGPA:         record.SGPA,
				Percentage:   record.Percentage,
				Remarks:      record.Remarks,
			}
		}
		return nil
	})
	if err != nil {
		var dup *domain.DuplicateEnrollmentError
		if errors.As(err, &dup) {
			return domain.CommitResult{}, dup
		}
		return domain.CommitResult{}, &domain.CommitError{Err: err}
	}
	return result, nil
}

func findOrCreateUser(tx *gorm.DB, row domain.NormalizedRow) (models.User, error) {
	candidate := models.User{
		Email:     row.Email,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Phone:     row.Phone,
	}
	err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&candidate).Error
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}

	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "email = ?", row.Email).Error; err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}

	// existing profile data wins; the import only fills gaps
	fill := map[string]any{}
	if user.FirstName == "" && row.FirstName != "" {
		fill["first_name"] = row.FirstName
	}
	if user.LastName == "" && row.LastName != "" {
		fill["last_name"] = row.LastName
	}
	if user.Phone == "" && row.Phone != "" {
		fill["phone"] = row.Phone
	}
	if len(fill) > 0 {
		fill["updated_at"] = time.Now()
		if err := tx.Model(&user).Updates(fill).Error; err != nil {
			return models.User{}, fmt.Errorf("fill user profile: %w", err)
		}
	}
	return user, nil
}

func resolveMembership(tx *gorm.DB, user models.User, row domain.NormalizedRow, college domain.College) (models.Membership, bool, bool, error) {
	var existing []models.Membership
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND college_id = ?", user.ID, college.ID).
		Find(&existing).Error
	if err != nil {
		return models.Membership{}, false, false, fmt.Errorf("load memberships: %w", err)
	}

	byRole := make(map[domain.Role]models.Membership, len(existing))
	for _, m := range existing {
		byRole[domain.Role(m.Role)] = m
	}

	if m, ok := byRole[domain.RoleAlumni]; ok {
		m, err := fillContact(tx, m, row)
		return m, false, false, err
	}

	for _, role := range domain.PromotionOrder {
		m, ok := byRole[role]
		if !ok {
			continue
		}
		err := tx.Model(&m).Updates(map[string]any{"role": string(domain.RoleAlumni), "updated_at": time.Now()}).Error
		if err != nil {
			return models.Membership{}, false, false, fmt.Errorf("promote %s membership: %w", role, err)
		}
		m.Role = string(domain.RoleAlumni)
		m, err = fillContact(tx, m, row)
		return m, true, false, err
	}

	created := models.Membership{
		UserID:       user.ID,
		CollegeID:    college.ID,
		Role:         string(domain.RoleAlumni),
		ContactEmail: row.Email,
		ContactPhone: row.Phone,
	}
	if err := tx.Create(&created).Error; err != nil {
		return models.Membership{}, false, false, fmt.Errorf("create membership: %w", err)
	}
	return created, false, true, nil
}

func fillContact(tx *gorm.DB, m models.Membership, row domain.NormalizedRow) (models.Membership, error) {
	fill := map[string]any{}
	if m.ContactEmail == "" {
		fill["contact_email"] = row.Email
		m.ContactEmail = row.Email
	}
	if m.ContactPhone == "" && row.Phone != "" {
		fill["contact_phone"] = row.Phone
		m.ContactPhone = row.Phone
	}
	if len(fill) == 0 {
		return m, nil
	}
	if err := tx.Model(&models.Membership{}).Where("id = ?", m.ID).Updates(fill).Error; err != nil {
		return models.Membership{}, fmt.Errorf("fill membership contact: %w", err)
	}
	return m, nil
}

func resolveEnrollment(tx *gorm.DB, membership models.Membership, row domain.NormalizedRow, college domain.College) (models.Enrollment, error) {
	query := tx.Where("membership_id = ? AND course_id = ?", membership.ID, row.Course.ID)

	if row.EnrollmentNumber != "" {
		var foreign int64
		err := tx.Model(&models.Enrollment{}).
			Joins("JOIN memberships ON memberships.id = enrollments.membership_id").
			Where("memberships.college_id = ? AND enrollments.enrollment_number = ? AND enrollments.membership_id <> ?",
				college.ID, row.EnrollmentNumber, membership.ID).
			Count(&foreign).Error
		if err != nil {
			return models.Enrollment{}, fmt.Errorf("check enrollment number: %w", err)
		}
		if foreign > 0 {
			return models.Enrollment{}, &domain.DuplicateEnrollmentError{
				EnrollmentNumber: row.EnrollmentNumber,
				Reason:           "already used by another member of the college",
			}
		}
		query = query.Where("enrollment_number = ?", row.EnrollmentNumber)
	} else {
		query = query.Where("enrollment_number = '' AND start_year = ? AND end_year = ?", row.StartYear, row.EndYear)
	}

	var enrollment models.Enrollment
	err := query.Clauses(clause.Locking{Strength: "UPDATE"}).Order("created_at").First(&enrollment).Error
	switch {
	case err == nil:
		if enrollment.StartYear != row.StartYear || enrollment.EndYear != row.EndYear {
			return models.Enrollment{}, &domain.DuplicateEnrollmentError{
				EnrollmentNumber: row.EnrollmentNumber,
				Reason:           fmt.Sprintf("existing enrollment covers %d-%d", enrollment.StartYear, enrollment.EndYear),
			}
		}
		if !enrollment.IsConfirmed {
			if err := tx.Model(&enrollment).Update("is_confirmed", true).Error; err != nil {
				return models.Enrollment{}, fmt.Errorf("confirm enrollment: %w", err)
			}
			enrollment.IsConfirmed = true
		}
		return enrollment, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return models.Enrollment{}, fmt.Errorf("load enrollment: %w", err)
	}

	enrollment = models.Enrollment{
		MembershipID:     membership.ID,
		CourseID:         row.Course.ID,
		EnrollmentNumber: row.EnrollmentNumber,
		StartYear:        row.StartYear,
		EndYear:          row.EndYear,
		IsConfirmed:      true,
	}
	if err := tx.Create(&enrollment).Error; err != nil {
		return models.Enrollment{}, fmt.Errorf("create enrollment: %w", err)
	}
	return enrollment, nil
}

func upsertAcademicRecord(tx *gorm.DB, enrollment models.Enrollment, row domain.NormalizedRow) (models.AcademicRecord, error) {
	query := tx.Where("enrollment_id = ?", enrollment.ID)
	if row.Semester != nil {
		query = query.Where("semester = ?", *row.Semester)
	} else {
		query = query.Where("semester IS NULL")
	}

	var record models.AcademicRecord
	err := query.Clauses(clause.Locking{Strength: "UPDATE"}).First(&record).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.AcademicRecord{}, fmt.Errorf("load academic record: %w", err)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = models.AcademicRecord{
			EnrollmentID: enrollment.ID,
			Semester:     row.Semester,
			CGPA:         row.CGPA,
			SGPA:         row.SGPA,
			Percentage:   row.Percentage,
			Remarks:      row.Remarks,
		}
		if len(row.Marks) > 0 {
			record.MarksJSON = datatypes.JSON(row.Marks)
		}
		if err := tx.Create(&record).Error; err != nil {
			return models.AcademicRecord{}, fmt.Errorf("create academic record: %w", err)
		}
		return record, nil
	}

	updates := map[string]any{"updated_at": time.Now()}
	if row.CGPA != nil {
		updates["cgpa"] = *row.CGPA
		record.CGPA = row.CGPA
	}
	if row.SGPA != nil {
		updates["sgpa"] = *row.SGPA
		record.SGPA = row.SGPA
	}
	if row.Percentage != nil {
		updates["percentage"] = *row.Percentage
		record.Percentage = row.Percentage
	}
	if len(row.Marks) > 0 {
		updates["marks_json"] = datatypes.JSON(row.Marks)
		record.MarksJSON = datatypes.JSON(row.Marks)
	}
	if row.Remarks != "" {
		updates["remarks"] = row.Remarks
		record.Remarks = row.Remarks
	}
	if err := tx.Model(&models.AcademicRecord{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
		return models.AcademicRecord{}, fmt.Errorf("update academic record: %w", err)
	}
	return record, nil
}

func toDomainMembership(m models.Membership) domain.Membership {
	return domain.Membership{
		ID:           m.ID,
		UserID:       m.UserID,
		CollegeID:    m.CollegeID,
		Role:         domain.Role(m.Role),
		ContactEmail: m.ContactEmail,
		ContactPhone: m.ContactPhone,
	}
}

func toDomainEnrollment(e models.Enrollment) domain.Enrollment {
	return domain.Enrollment{
		ID:               e.ID,
		MembershipID:     e.MembershipID,
		CourseID:         e.CourseID,
		EnrollmentNumber: e.EnrollmentNumber,
		StartYear:        e.StartYear,
		EndYear:          e.EndYear,
		IsConfirmed:      e.IsConfirmed,
	}
}
