package repository

import (
	"context"
	"time"

	"github.com/stewardhq/steward/internal/audit/domain"
	"github.com/stewardhq/steward/pkg/db/pagination"
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

func (r *repository) Insert(ctx context.Context, log domain.AuditLog) error {
	return r.db.WithContext(ctx).Create(&log).Error
}

func (r *repository) List(ctx context.Context, filter domain.Filter, p pagination.Pagination) ([]domain.AuditLog, *pagination.PageInfo, error) {
	pageSize := p.PageSize
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 250 {
		pageSize = 250
	}

	query := r.db.WithContext(ctx).Model(&domain.AuditLog{})
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.TargetType != "" {
		query = query.Where("target_type = ?", filter.TargetType)
	}
	if filter.TargetID != "" {
		query = query.Where("target_id = ?", filter.TargetID)
	}
	if filter.ActorID != "" {
		query = query.Where("actor_id = ?", filter.ActorID)
	}

	if p.PageToken != "" {
		cursor, err := pagination.DecodeCursor(p.PageToken)
		if err != nil {
			return nil, nil, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, err
		}
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, cursor.ID)
	}

	var logs []domain.AuditLog
	err := query.
		Order("created_at DESC, id DESC").
		Limit(pageSize + 1).
		Find(&logs).Error
	if err != nil {
		return nil, nil, err
	}

	info := &pagination.PageInfo{}
	if len(logs) > pageSize {
		logs = logs[:pageSize]
		last := logs[len(logs)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, nil, err
		}
		info.NextPageToken = token
		info.HasMore = true
	}
	return logs, info, nil
}
