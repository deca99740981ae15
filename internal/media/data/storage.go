package data

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/clipstash/clipstash-backend/internal/media/biz"
	"github.com/clipstash/clipstash-backend/internal/pkg/logger"
	pkgminio "github.com/clipstash/clipstash-backend/internal/pkg/minio"
)

const storageKeyPrefix = "videos/"

// minioStorage 基于 MinIO 的对象存储网关实现
type minioStorage struct {
	client        *pkgminio.Client
	bucket        string
	publicBaseURL string
	logger        *logger.Logger
}

// NewBlobStore 创建对象存储网关。
// publicBaseURL 为空时用客户端 endpoint 派生公开 URL。
func NewBlobStore(client *pkgminio.Client, bucket, publicBaseURL string, log *logger.Logger) biz.BlobStore {
	return &minioStorage{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        log,
	}
}

// ObjectKey 派生存储键：videos/<id><原始扩展名>
func (s *minioStorage) ObjectKey(id, filename string) string {
	return storageKeyPrefix + id + path.Ext(filename)
}

// Put 上传对象并返回公开访问 URL
func (s *minioStorage) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, pkgminio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	return s.PublicURL(key), nil
}

// Exists 探测对象是否存在
func (s *minioStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, pkgminio.StatObjectOptions{})
	if err != nil {
		if pkgminio.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}

	return true, nil
}

// Stat 返回对象大小
func (s *minioStorage) Stat(ctx context.Context, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, pkgminio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("stat object: %w", err)
	}

	return info.Size, nil
}

// IssueGrant 签发限时预签名 PUT 授权
func (s *minioStorage) IssueGrant(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("issue upload grant: %w", err)
	}

	return u.String(), nil
}

// PublicURL 由存储键派生公开访问 URL
func (s *minioStorage) PublicURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + s.bucket + "/" + key
	}

	scheme := "http"
	if s.client.UseSSL() {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.client.Endpoint(), s.bucket, key)
}
