package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mkrylosov/orderhub/internal/models"
)

// RoleRepo is the role lookup collaborator. No caching: a role change takes
// effect on the next lookup.
type RoleRepo struct {
	DB *gorm.DB
}

func (r *RoleRepo) GetRoles(ctx context.Context, userID uint) ([]string, error) {
	var names []string
	err := r.DB.WithContext(ctx).
		Model(&models.UserRole{}).
		Select("roles.name").
		Joins("JOIN roles ON roles.id = user_roles.role_id AND roles.deleted_at IS NULL").
		Where("user_roles.user_id = ? AND user_roles.deleted_at IS NULL", userID).
		Scan(&names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (r *RoleRepo) EnsureRole(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	err := r.DB.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if err == nil {
		return &role, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	role = models.Role{Name: name}
	if err := r.DB.WithContext(ctx).Create(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *RoleRepo) Assign(ctx context.Context, userID uint, roleName string) error {
	role, err := r.EnsureRole(ctx, roleName)
	if err != nil {
		return err
	}
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.UserRole{}).
		Where("user_id = ? AND role_id = ?", userID, role.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Create(&models.UserRole{UserID: userID, RoleID: role.ID}).Error
}
