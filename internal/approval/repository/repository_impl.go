package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stewardhq/steward/internal/approval/domain"
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

func (r *repository) InsertFlow(ctx context.Context, flow domain.ApprovalFlow) error {
	return r.db.WithContext(ctx).Create(&flow).Error
}

func (r *repository) GetFlow(ctx context.Context, id snowflake.ID) (*domain.ApprovalFlow, error) {
	var flow domain.ApprovalFlow
	if err := r.db.WithContext(ctx).First(&flow, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &flow, nil
}

func (r *repository) GetFlowByReport(ctx context.Context, reportID snowflake.ID) (*domain.ApprovalFlow, error) {
	var flow domain.ApprovalFlow
	err := r.db.WithContext(ctx).First(&flow, "expense_report_id = ?", reportID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

func (r *repository) TransitionFlow(ctx context.Context, flowID snowflake.ID, expectIndex int, expectVersion int64, newIndex int, newStatus string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.ApprovalFlow{}).
		Where("id = ? AND current_step_index = ? AND version = ?", flowID, expectIndex, expectVersion).
		Updates(map[string]any{
			"current_step_index": newIndex,
			"status":             newStatus,
			"version":            expectVersion + 1,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) InsertSteps(ctx context.Context, steps []domain.ApprovalStep) error {
	return r.db.WithContext(ctx).Create(&steps).Error
}

func (r *repository) ListSteps(ctx context.Context, flowID snowflake.ID) ([]domain.ApprovalStep, error) {
	var steps []domain.ApprovalStep
	err := r.db.WithContext(ctx).
		Where("flow_id = ?", flowID).
		Order("step_order ASC").
		Find(&steps).Error
	if err != nil {
		return nil, err
	}
	return steps, nil
}

func (r *repository) GetStep(ctx context.Context, flowID snowflake.ID, stepOrder int) (*domain.ApprovalStep, error) {
	var step domain.ApprovalStep
	err := r.db.WithContext(ctx).
		First(&step, "flow_id = ? AND step_order = ?", flowID, stepOrder).Error
	if err != nil {
		return nil, err
	}
	return &step, nil
}

func (r *repository) UpdateStep(ctx context.Context, step domain.ApprovalStep) error {
	return r.db.WithContext(ctx).
		Model(&domain.ApprovalStep{}).
		Where("id = ?", step.ID).
		Updates(map[string]any{
			"status":       step.Status,
			"comments":     step.Comments,
			"processed_at": step.ProcessedAt,
			"updated_at":   step.UpdatedAt,
		}).Error
}
