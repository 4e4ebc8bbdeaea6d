package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/stewardhq/steward/internal/organization/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateUnit(ctx context.Context, unit domain.OrganizationUnit) error {
	return r.db.WithContext(ctx).Create(&unit).Error
}

func (r *repository) GetUnit(ctx context.Context, id snowflake.ID) (*domain.OrganizationUnit, error) {
	var unit domain.OrganizationUnit
	if err := r.db.WithContext(ctx).First(&unit, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *repository) GetRootUnit(ctx context.Context) (*domain.OrganizationUnit, error) {
	var unit domain.OrganizationUnit
	err := r.db.WithContext(ctx).First(&unit, "parent_id IS NULL").Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *repository) ListUnits(ctx context.Context) ([]domain.OrganizationUnit, error) {
	var units []domain.OrganizationUnit
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (r *repository) ListChildren(ctx context.Context, parentID snowflake.ID) ([]domain.OrganizationUnit, error) {
	var units []domain.OrganizationUnit
	err := r.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("created_at ASC").
		Find(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (r *repository) UpdateUnitParent(ctx context.Context, id snowflake.ID, parentID *snowflake.ID) error {
	return r.db.WithContext(ctx).
		Model(&domain.OrganizationUnit{}).
		Where("id = ?", id).
		Update("parent_id", parentID).Error
}

func (r *repository) CreateRole(ctx context.Context, role domain.OrganizationRole) error {
	return r.db.WithContext(ctx).Create(&role).Error
}

func (r *repository) GetRole(ctx context.Context, id snowflake.ID) (*domain.OrganizationRole, error) {
	var role domain.OrganizationRole
	if err := r.db.WithContext(ctx).First(&role, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *repository) GetRoleByName(ctx context.Context, name string) (*domain.OrganizationRole, error) {
	var role domain.OrganizationRole
	err := r.db.WithContext(ctx).First(&role, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *repository) ListRoles(ctx context.Context) ([]domain.OrganizationRole, error) {
	var roles []domain.OrganizationRole
	err := r.db.WithContext(ctx).Order("level DESC, name ASC").Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *repository) UpdateRole(ctx context.Context, role domain.OrganizationRole) error {
	return r.db.WithContext(ctx).
		Model(&domain.OrganizationRole{}).
		Where("id = ?", role.ID).
		Updates(map[string]any{
			"level":         role.Level,
			"is_leadership": role.IsLeadership,
			"is_active":     role.IsActive,
			"updated_at":    role.UpdatedAt,
		}).Error
}

func (r *repository) ListBindings(ctx context.Context, unitID snowflake.ID) ([]domain.RoleBinding, error) {
	var bindings []domain.RoleBinding
	err := r.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("created_at ASC").
		Find(&bindings).Error
	if err != nil {
		return nil, err
	}
	return bindings, nil
}

func (r *repository) InsertBinding(ctx context.Context, binding domain.RoleBinding) error {
	return r.db.WithContext(ctx).Create(&binding).Error
}

func (r *repository) DeleteBindings(ctx context.Context, unitID snowflake.ID) error {
	return r.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Delete(&domain.RoleBinding{}).Error
}

func (r *repository) DeleteBinding(ctx context.Context, unitID, roleID snowflake.ID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("unit_id = ? AND role_id = ?", unitID, roleID).
		Delete(&domain.RoleBinding{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
