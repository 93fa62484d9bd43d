package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"AuraFM/model"
)

// HistoryRepository 下载历史的留档与分页查询，走 GORM
type HistoryRepository interface {
	Append(ctx context.Context, entry *model.DownloadHistory) error
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.DownloadHistory, int64, error)
}

type gormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository creates a new gormHistoryRepository.
func NewGormHistoryRepository(db *gorm.DB) HistoryRepository {
	return &gormHistoryRepository{db: db}
}

// Append 追加一条终态记录
func (r *gormHistoryRepository) Append(ctx context.Context, entry *model.DownloadHistory) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append download history: %w", err)
	}
	return nil
}

// ListByUser 按完成时间倒序分页，返回记录与总数
func (r *gormHistoryRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.DownloadHistory, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.DownloadHistory{}).
		Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count download history: %w", err)
	}

	var entries []*model.DownloadHistory
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("finished_at DESC").
		Limit(limit).Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list download history: %w", err)
	}
	return entries, total, nil
}
