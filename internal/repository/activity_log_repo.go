package repository

import (
	"context"

	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityLogRepository 操作日志仓库
type ActivityLogRepository struct {
	db *gorm.DB
}

func NewActivityLogRepository(db *gorm.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Create 追加一条操作日志
func (r *ActivityLogRepository) Create(ctx context.Context, log *entity.ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByOrg 查询组织的操作日志
func (r *ActivityLogRepository) FindByOrg(ctx context.Context, orgID string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	var items []entity.ActivityLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ActivityLog{}).
		Where("organization_id = ?", orgID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByTarget 查询某实体的操作日志
func (r *ActivityLogRepository) FindByTarget(ctx context.Context, orgID, targetType, targetID string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	var items []entity.ActivityLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ActivityLog{}).
		Where("organization_id = ? AND target_type = ? AND target_id = ?", orgID, targetType, targetID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// CountByTarget 统计某实体的日志条数
func (r *ActivityLogRepository) CountByTarget(ctx context.Context, orgID, targetType, targetID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.ActivityLog{}).
		Where("organization_id = ? AND target_type = ? AND target_id = ?", orgID, targetType, targetID).
		Count(&count).Error
	return count, err
}
