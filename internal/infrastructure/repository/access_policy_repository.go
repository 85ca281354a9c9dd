package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/db/models"
)

// AccessPolicyRepository lets staff, the college admin and sub_admin members manage imports.
type AccessPolicyRepository struct {
	db *gorm.DB
}

func NewAccessPolicyRepository(db *gorm.DB) *AccessPolicyRepository {
	return &AccessPolicyRepository{db: db}
}

func (r *AccessPolicyRepository) CanManageImports(ctx context.Context, actor domain.Actor, collegeID string) (bool, error) {
	var college models.College
	err := r.db.WithContext(ctx).Select("id", "admin_user_id").First(&college, "id = ? AND is_deleted = FALSE", collegeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, domain.ErrCollegeNotFound
		}
		return false, fmt.Errorf("get college: %w", err)
	}

	if actor.IsStaff || college.AdminUserID == actor.UserID {
		return true, nil
	}

	var granted int64
	err = r.db.WithContext(ctx).Raw(`
SELECT
  (SELECT COUNT(*) FROM users WHERE id = ? AND is_staff) +
  (SELECT COUNT(*) FROM memberships WHERE user_id = ? AND college_id = ? AND role = ?)
`, actor.UserID, actor.UserID, collegeID, string(domain.RoleSubAdmin)).Scan(&granted).Error
	if err != nil {
		return false, fmt.Errorf("check import permission: %w", err)
	}
	return granted > 0, nil
}

func (r *AccessPolicyRepository) ActingMembership(ctx context.Context, actor domain.Actor, collegeID string) (*string, error) {
	var membership models.Membership
	err := r.db.WithContext(ctx).
		Select("id").
		Where("user_id = ? AND college_id = ?", actor.UserID, collegeID).
		Order(fmt.Sprintf("CASE role WHEN '%s' THEN 0 ELSE 1 END, created_at", domain.RoleSubAdmin)).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get acting membership: %w", err)
	}
	return &membership.ID, nil
}
