package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/stewardhq/steward/internal/membership/domain"
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

func (r *repository) CreatePerson(ctx context.Context, person domain.Person) error {
	return r.db.WithContext(ctx).Create(&person).Error
}

func (r *repository) GetPerson(ctx context.Context, id snowflake.ID) (*domain.Person, error) {
	var person domain.Person
	if err := r.db.WithContext(ctx).First(&person, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &person, nil
}

func (r *repository) UpdatePerson(ctx context.Context, person domain.Person) error {
	return r.db.WithContext(ctx).
		Model(&domain.Person{}).
		Where("id = ?", person.ID).
		Updates(map[string]any{
			"name":       person.Name,
			"email":      person.Email,
			"phone":      person.Phone,
			"updated_at": person.UpdatedAt,
		}).Error
}

func (r *repository) InsertMembership(ctx context.Context, membership domain.Membership) error {
	return r.db.WithContext(ctx).Create(&membership).Error
}

func (r *repository) GetMembership(ctx context.Context, id snowflake.ID) (*domain.Membership, error) {
	var membership domain.Membership
	if err := r.db.WithContext(ctx).First(&membership, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *repository) ListByPerson(ctx context.Context, personID snowflake.ID) ([]domain.Membership, error) {
	var memberships []domain.Membership
	err := r.db.WithContext(ctx).
		Where("person_id = ?", personID).
		Order("created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

func (r *repository) ListActiveByUnit(ctx context.Context, unitID snowflake.ID) ([]domain.Membership, error) {
	var memberships []domain.Membership
	err := r.db.WithContext(ctx).
		Where("unit_id = ? AND status = ?", unitID, domain.MembershipActive).
		Order("created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

func (r *repository) UpdateMembership(ctx context.Context, membership domain.Membership) error {
	return r.db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("id = ?", membership.ID).
		Updates(map[string]any{
			"unit_id":    membership.UnitID,
			"role_id":    membership.RoleID,
			"is_primary": membership.IsPrimary,
			"status":     membership.Status,
			"ended_at":   membership.EndedAt,
			"updated_at": membership.UpdatedAt,
		}).Error
}

func (r *repository) InsertHistory(ctx context.Context, history domain.MembershipHistory) error {
	return r.db.WithContext(ctx).Create(&history).Error
}

func (r *repository) ListHistory(ctx context.Context, personID snowflake.ID) ([]domain.MembershipHistory, error) {
	var histories []domain.MembershipHistory
	err := r.db.WithContext(ctx).
		Where("person_id = ?", personID).
		Order("created_at ASC, id ASC").
		Find(&histories).Error
	if err != nil {
		return nil, err
	}
	return histories, nil
}
