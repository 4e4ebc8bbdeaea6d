package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/stewardhq/steward/internal/account/domain"
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

func (r *repository) Insert(ctx context.Context, account domain.UserAccount) error {
	return r.db.WithContext(ctx).Create(&account).Error
}

func (r *repository) GetByID(ctx context.Context, id snowflake.ID) (*domain.UserAccount, error) {
	var account domain.UserAccount
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var account domain.UserAccount
	err := r.db.WithContext(ctx).First(&account, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) GetByPersonID(ctx context.Context, personID snowflake.ID) (*domain.UserAccount, error) {
	var account domain.UserAccount
	err := r.db.WithContext(ctx).First(&account, "person_id = ?", personID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) Update(ctx context.Context, account domain.UserAccount) error {
	return r.db.WithContext(ctx).
		Model(&domain.UserAccount{}).
		Where("id = ?", account.ID).
		Updates(map[string]any{
			"display_name":           account.DisplayName,
			"system_role":            account.SystemRole,
			"tier":                   account.Tier,
			"status":                 account.Status,
			"must_change_credential": account.MustChangeCredential,
			"disabled_at":            account.DisabledAt,
			"updated_at":             account.UpdatedAt,
		}).Error
}

func (r *repository) List(ctx context.Context) ([]domain.UserAccount, error) {
	var accounts []domain.UserAccount
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}
