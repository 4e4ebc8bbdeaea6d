package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stewardhq/steward/internal/expense/domain"
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

func (r *repository) Insert(ctx context.Context, report domain.ExpenseReport) error {
	return r.db.WithContext(ctx).Create(&report).Error
}

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.ExpenseReport, error) {
	var report domain.ExpenseReport
	if err := r.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repository) ListByRequester(ctx context.Context, accountID snowflake.ID) ([]domain.ExpenseReport, error) {
	var reports []domain.ExpenseReport
	err := r.db.WithContext(ctx).
		Where("requester_account_id = ?", accountID).
		Order("created_at DESC").
		Find(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *repository) SetStatus(ctx context.Context, id snowflake.ID, workflowStatus, businessStatus, rejectionReason string) error {
	return r.db.WithContext(ctx).
		Model(&domain.ExpenseReport{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"workflow_status":  workflowStatus,
			"business_status":  businessStatus,
			"rejection_reason": rejectionReason,
			"updated_at":       time.Now().UTC(),
		}).Error
}
