package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/bitfantasy/invoiceflow/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore 附件对象存储
type MinIOStore struct {
	client       *minio.Client
	bucket       string
	presignedTTL time.Duration
}

// NewMinIOStore 创建MinIO存储客户端
func NewMinIOStore(cfg config.MinIOConfig, presignedTTL time.Duration) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIOStore{
		client:       client,
		bucket:       cfg.Bucket,
		presignedTTL: presignedTTL,
	}, nil
}

// EnsureBucket 桶不存在时创建
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Put 上传对象
func (s *MinIOStore) Put(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectPath, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Remove 删除对象
func (s *MinIOStore) Remove(ctx context.Context, objectPath string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// PresignedURL 生成带下载文件名的预签名URL
func (s *MinIOStore) PresignedURL(ctx context.Context, objectPath, fileName string) (string, error) {
	reqParams := make(url.Values)
	if fileName != "" {
		reqParams.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectPath, s.presignedTTL, reqParams)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}
