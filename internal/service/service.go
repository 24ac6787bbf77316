package service

import (
	"context"
	"io"

	"github.com/bitfantasy/invoiceflow/internal/config"
	"github.com/bitfantasy/invoiceflow/internal/repository"
	"github.com/bitfantasy/invoiceflow/internal/sse"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ObjectStore 附件的对象存储后端
type ObjectStore interface {
	Put(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, objectPath string) error
	PresignedURL(ctx context.Context, objectPath, fileName string) (string, error)
}

// Actor 执行写操作的用户，用于盖created_by/操作日志
type Actor struct {
	ID   string
	Name string
}

// Services 服务集合
type Services struct {
	Auth       *AuthService
	Invoice    *InvoiceService
	Attachment *AttachmentService
	Activity   *ActivityService
	Org        *OrgService
	User       *UserService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, store ObjectStore, rdb *redis.Client, hub *sse.Hub, cfg *config.Config, logger *zap.Logger) *Services {
	activitySvc := NewActivityService(repos.ActivityLog, logger)
	attachmentSvc := NewAttachmentService(store, cfg.Upload, logger)

	return &Services{
		Auth:       NewAuthService(repos.User, repos.Org, rdb, cfg, logger),
		Invoice:    NewInvoiceService(repos.Invoice, attachmentSvc, activitySvc, rdb, hub, logger),
		Attachment: attachmentSvc,
		Activity:   activitySvc,
		Org:        NewOrgService(repos.Org, repos.User, activitySvc, logger),
		User:       NewUserService(repos.User),
	}
}
