package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/bitfantasy/invoiceflow/internal/config"
	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/bitfantasy/invoiceflow/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadFile 待上传的本地文件
type UploadFile struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// SkippedFile 预检被拒绝的文件及原因
type SkippedFile struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// Progress 单文件与整批的上传进度（0-100）
type Progress struct {
	FileIndex    int
	FileName     string
	FilePercent  int
	TotalPercent int
}

// ProgressFunc 进度回调
type ProgressFunc func(p Progress)

// UploadResult 一批上传的结果。Attachments与输入中通过预检的
// 文件顺序一致；Skipped列出被预检排除的文件。
type UploadResult struct {
	Attachments []entity.Attachment
	Skipped     []SkippedFile
}

// AttachmentService 附件上传服务
type AttachmentService struct {
	store  ObjectStore
	cfg    config.UploadConfig
	logger *zap.Logger
}

func NewAttachmentService(store ObjectStore, cfg config.UploadConfig, logger *zap.Logger) *AttachmentService {
	return &AttachmentService{store: store, cfg: cfg, logger: logger}
}

// Validate 预检单个文件，通过返回空串，否则返回拒绝原因。
// 预检不访问对象存储。
func (s *AttachmentService) Validate(f UploadFile) string {
	if f.Size > s.cfg.MaxFileSize {
		return fmt.Sprintf("file exceeds maximum size of %dMB", s.cfg.MaxFileSize/(1024*1024))
	}
	allowed := false
	for _, t := range s.cfg.AllowedTypes {
		if t == f.ContentType {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Sprintf("file type %q is not allowed", f.ContentType)
	}
	return ""
}

// UploadBatch 上传一批附件。
//
// 超限或类型不符的文件在预检阶段被剔除并记入Skipped，其余文件
// 按输入顺序依次上传。任何一个文件上传失败会中止整批，并删除
// 本批已写入的对象后返回错误——不留孤儿对象。
// 附件记录由调用方落库。
func (s *AttachmentService) UploadBatch(ctx context.Context, orgID, invoiceID string, actor Actor, files []UploadFile, progress ProgressFunc) (*UploadResult, error) {
	result := &UploadResult{}

	var accepted []UploadFile
	var totalBytes int64
	for _, f := range files {
		if reason := s.Validate(f); reason != "" {
			result.Skipped = append(result.Skipped, SkippedFile{FileName: f.FileName, Reason: reason})
			continue
		}
		accepted = append(accepted, f)
		totalBytes += f.Size
	}

	var uploadedBytes int64
	for i, f := range accepted {
		objectPath := fmt.Sprintf("organizations/%s/invoices/%s/attachments/%s_%s",
			orgID, invoiceID, uuid.New().String()[:8], filepath.Base(f.FileName))

		fileSize := f.Size
		reader := storage.NewProgressReader(f.Reader, func(read int64) {
			if progress == nil {
				return
			}
			p := Progress{FileIndex: i, FileName: f.FileName}
			if fileSize > 0 {
				p.FilePercent = int(read * 100 / fileSize)
			}
			if totalBytes > 0 {
				p.TotalPercent = int((uploadedBytes + read) * 100 / totalBytes)
			}
			progress(p)
		})

		if err := s.store.Put(ctx, objectPath, reader, f.Size, f.ContentType); err != nil {
			// 中止整批并清理本批已上传的对象
			s.Cleanup(ctx, result.Attachments)
			return nil, fmt.Errorf("upload attachment %q: %w", f.FileName, err)
		}
		uploadedBytes += f.Size

		result.Attachments = append(result.Attachments, entity.Attachment{
			ID:          uuid.New().String()[:32],
			InvoiceID:   invoiceID,
			FileName:    f.FileName,
			ContentType: f.ContentType,
			Size:        f.Size,
			ObjectPath:  objectPath,
			UploadedBy:  actor.ID,
			UploadedAt:  time.Now(),
		})
	}

	return result, nil
}

// Cleanup 尽力删除一组附件对象，错误只记日志
func (s *AttachmentService) Cleanup(ctx context.Context, atts []entity.Attachment) {
	for _, att := range atts {
		if err := s.store.Remove(ctx, att.ObjectPath); err != nil {
			s.logger.Warn("failed to remove attachment object",
				zap.String("object_path", att.ObjectPath),
				zap.Error(err),
			)
		}
	}
}

// DownloadURL 生成附件下载链接
func (s *AttachmentService) DownloadURL(ctx context.Context, att *entity.Attachment) (string, error) {
	return s.store.PresignedURL(ctx, att.ObjectPath, att.FileName)
}
