package service

import (
	"context"

	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/bitfantasy/invoiceflow/internal/repository"
	"go.uber.org/zap"
)

// ActivityService 操作日志服务。写入失败只记日志，
// 绝不向调用方传播错误——审计日志不能让业务流程失败。
type ActivityService struct {
	repo   *repository.ActivityLogRepository
	logger *zap.Logger
}

func NewActivityService(repo *repository.ActivityLogRepository, logger *zap.Logger) *ActivityService {
	return &ActivityService{repo: repo, logger: logger}
}

// ActivityEntry 一条操作记录
type ActivityEntry struct {
	Action     string
	TargetType string
	TargetID   string
	FromStatus string
	ToStatus   string
	Details    entity.JSONB
}

// Log 追加一条操作日志，错误吞掉
func (s *ActivityService) Log(ctx context.Context, orgID string, actor Actor, e ActivityEntry) {
	log := &entity.ActivityLog{
		OrganizationID: orgID,
		Action:         e.Action,
		TargetType:     e.TargetType,
		TargetID:       e.TargetID,
		FromStatus:     e.FromStatus,
		ToStatus:       e.ToStatus,
		Details:        e.Details,
		OperatorID:     actor.ID,
		OperatorName:   actor.Name,
	}
	if err := s.repo.Create(ctx, log); err != nil {
		s.logger.Error("failed to write activity log",
			zap.String("org_id", orgID),
			zap.String("action", e.Action),
			zap.String("target_id", e.TargetID),
			zap.Error(err),
		)
	}
}

// ListByOrg 查询组织操作日志
func (s *ActivityService) ListByOrg(ctx context.Context, orgID string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	return s.repo.FindByOrg(ctx, orgID, page, pageSize)
}

// ListByTarget 查询某实体的操作日志
func (s *ActivityService) ListByTarget(ctx context.Context, orgID, targetType, targetID string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	return s.repo.FindByTarget(ctx, orgID, targetType, targetID, page, pageSize)
}
