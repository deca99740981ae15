package biz

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/clipstash/clipstash-backend/internal/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 缓存分组（互不重叠的命名空间）
const (
	GroupObjectsByID     = "objects-by-id"     // key = 对象 ID，value = MediaObject 快照
	GroupListResults     = "list-results"      // key = 分页指纹，value = ListResult
	GroupPendingUploads  = "pending-uploads"   // key = 对象 ID，value = 上传授权
	GroupExistenceChecks = "existence-checks"  // key = 存储键，value = bool（仅缓存 true）
)

// DefaultPageSize 列表默认分页大小
const DefaultPageSize = 50

// MediaObject 媒体对象元数据
type MediaObject struct {
	ID          string
	Filename    string
	ContentType string
	SizeBytes   int64
	StorageKey  string
	PublicURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsComplete 判断记录是否完整（两阶段路径下未完成的记录为临时记录）
func (m *MediaObject) IsComplete() bool {
	return m.PublicURL != "" && m.SizeBytes > 0
}

// UploadGrant 两阶段上传授权
type UploadGrant struct {
	ID         string    `json:"id"`
	StorageKey string    `json:"storage_key"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CompletionSignal 上传完成信号（至少一次投递，由 Reconciler 幂等消费）
type CompletionSignal struct {
	ID          string `json:"id"`
	StorageKey  string `json:"storage_key"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	PublicURL   string `json:"public_url"`
}

// ListResult 列表查询结果
type ListResult struct {
	Items []*MediaObject `json:"items"`
	Count int            `json:"count"`
}

// MediaRepo 元数据仓储接口
type MediaRepo interface {
	// Upsert 按 id 幂等写入；冲突时更新，id/storage_key/created_at 一经写入不再变更
	Upsert(ctx context.Context, obj *MediaObject) error
	// GetByID 按 id 查询；不存在时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*MediaObject, error)
	// ListRecent 按创建时间倒序返回最多 limit 条记录
	ListRecent(ctx context.Context, limit int) ([]*MediaObject, error)
	// DeleteByID 按 id 删除；返回是否删除了记录
	DeleteByID(ctx context.Context, id string) (bool, error)
}

// BlobStore 对象存储网关接口
type BlobStore interface {
	// ObjectKey 为对象派生存储键
	ObjectKey(id, filename string) string
	// Put 上传对象并返回公开访问 URL
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	// Exists 探测对象是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// Stat 返回对象大小
	Stat(ctx context.Context, key string) (int64, error)
	// IssueGrant 签发限时上传授权
	IssueGrant(ctx context.Context, key string, expiry time.Duration) (string, error)
	// PublicURL 由存储键派生公开访问 URL
	PublicURL(key string) string
}

// Cache 分组缓存接口（cache-aside，所有操作均为尽力而为）
type Cache interface {
	// Get 读取缓存并反序列化到 dest；返回是否命中
	Get(ctx context.Context, group, key string, dest interface{}) (bool, error)
	// Set 无条件覆盖写入
	Set(ctx context.Context, group, key string, value interface{}) error
	// Delete 删除单个条目；条目不存在时为空操作
	Delete(ctx context.Context, group, key string) error
	// ClearGroup 原子清空整个分组
	ClearGroup(ctx context.Context, group string) error
	// ListGroup 枚举分组内所有条目的原始值（仅维护/诊断流程使用）
	ListGroup(ctx context.Context, group string) ([]string, error)
	// GroupSize 返回分组内条目数量
	GroupSize(ctx context.Context, group string) (int64, error)
}

// CompletionQueue 完成信号队列生产端
type CompletionQueue interface {
	Enqueue(ctx context.Context, sig *CompletionSignal) error
}

// MediaUseCase 媒体对象用例
type MediaUseCase struct {
	repo        MediaRepo
	blobs       BlobStore
	cache       Cache
	queue       CompletionQueue
	grantExpiry time.Duration
	logger      *logger.Logger
}

// NewMediaUseCase 创建媒体对象用例
func NewMediaUseCase(
	repo MediaRepo,
	blobs BlobStore,
	cache Cache,
	queue CompletionQueue,
	grantExpiry time.Duration,
	log *logger.Logger,
) *MediaUseCase {
	if grantExpiry <= 0 {
		grantExpiry = 30 * time.Minute
	}
	return &MediaUseCase{
		repo:        repo,
		blobs:       blobs,
		cache:       cache,
		queue:       queue,
		grantExpiry: grantExpiry,
		logger:      log,
	}
}

// Upload 直传协议：单次请求携带字节，产出完整记录
func (uc *MediaUseCase) Upload(ctx context.Context, filename, contentType string, data []byte) (*MediaObject, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	id := uuid.New().String()
	key := uc.blobs.ObjectKey(id, filename)

	url, err := uc.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailed, err)
	}

	now := time.Now()
	obj := &MediaObject{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		StorageKey:  key,
		PublicURL:   url,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Upsert(ctx, obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	// 以下步骤均为尽力而为：blob 与元数据已持久化即视为成功
	uc.cacheSet(ctx, GroupObjectsByID, obj.ID, obj)
	uc.cacheClearGroup(ctx, GroupListResults)
	uc.emitCompletion(ctx, obj)

	return obj, nil
}

// RequestUploadGrant 两阶段协议第一步：预留 id 与存储键，签发上传授权
func (uc *MediaUseCase) RequestUploadGrant(ctx context.Context, filename, contentType string, sizeBytes int64) (*UploadGrant, error) {
	if sizeBytes < 0 {
		sizeBytes = 0
	}

	id := uuid.New().String()
	key := uc.blobs.ObjectKey(id, filename)

	grantURL, err := uc.blobs.IssueGrant(ctx, key, uc.grantExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: issue upload grant: %w", ErrStorageFailed, err)
	}

	now := time.Now()
	obj := &MediaObject{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		StorageKey:  key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Upsert(ctx, obj); err != nil {
		return nil, fmt.Errorf("%w: provisional record: %w", ErrPersistFailed, err)
	}

	grant := &UploadGrant{
		ID:         id,
		StorageKey: key,
		URL:        grantURL,
		ExpiresAt:  now.Add(uc.grantExpiry),
	}

	uc.cacheSet(ctx, GroupPendingUploads, id, grant)

	return grant, nil
}

// CompleteUpload 两阶段协议的客户端回调：传输完成后将临时记录转为完整记录
func (uc *MediaUseCase) CompleteUpload(ctx context.Context, id string) (*MediaObject, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	obj, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	if obj == nil {
		return nil, ErrObjectNotFound
	}

	size, err := uc.blobs.Stat(ctx, obj.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: stat key %s: %w", ErrStorageFailed, obj.StorageKey, err)
	}

	obj.SizeBytes = size
	obj.PublicURL = uc.blobs.PublicURL(obj.StorageKey)
	obj.UpdatedAt = time.Now()

	if err := uc.repo.Upsert(ctx, obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	uc.cacheDelete(ctx, GroupPendingUploads, obj.ID)
	uc.cacheSet(ctx, GroupObjectsByID, obj.ID, obj)
	uc.cacheClearGroup(ctx, GroupListResults)
	uc.emitCompletion(ctx, obj)

	return obj, nil
}

// Get 按 id 查询（cache-aside；无负缓存）
func (uc *MediaUseCase) Get(ctx context.Context, id string) (*MediaObject, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	var cached MediaObject
	if hit := uc.cacheGet(ctx, GroupObjectsByID, id, &cached); hit {
		return &cached, nil
	}

	obj, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	if obj == nil {
		return nil, ErrObjectNotFound
	}

	uc.cacheSet(ctx, GroupObjectsByID, obj.ID, obj)
	return obj, nil
}

// List 按创建时间倒序列表（cache-aside，按分页指纹缓存）
func (uc *MediaUseCase) List(ctx context.Context, pageSize int) (*ListResult, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	fingerprint := listFingerprint(pageSize)

	var cached ListResult
	if hit := uc.cacheGet(ctx, GroupListResults, fingerprint, &cached); hit {
		return &cached, nil
	}

	items, err := uc.repo.ListRecent(ctx, pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	result := &ListResult{
		Items: items,
		Count: len(items),
	}

	uc.cacheSet(ctx, GroupListResults, fingerprint, result)
	return result, nil
}

// Delete 删除对象元数据：先删持久层（提交点），再做缓存清理
func (uc *MediaUseCase) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	deleted, err := uc.repo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	if !deleted {
		return ErrObjectNotFound
	}

	uc.cacheDelete(ctx, GroupObjectsByID, id)
	uc.cacheDelete(ctx, GroupPendingUploads, id)
	uc.cacheClearGroup(ctx, GroupListResults)

	return nil
}

// listFingerprint 计算列表查询的分页指纹
func listFingerprint(pageSize int) string {
	return fmt.Sprintf("size=%d", pageSize)
}

// ==================== 缓存辅助方法（失败仅记录日志，绝不上抛） ====================

func (uc *MediaUseCase) cacheGet(ctx context.Context, group, key string, dest interface{}) bool {
	hit, err := uc.cache.Get(ctx, group, key, dest)
	if err != nil {
		uc.logger.Warn("cache get failed, falling back to store",
			zap.String("group", group),
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return hit
}

func (uc *MediaUseCase) cacheSet(ctx context.Context, group, key string, value interface{}) {
	if err := uc.cache.Set(ctx, group, key, value); err != nil {
		uc.logger.Warn("cache set failed",
			zap.String("group", group),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func (uc *MediaUseCase) cacheDelete(ctx context.Context, group, key string) {
	if err := uc.cache.Delete(ctx, group, key); err != nil {
		uc.logger.Warn("cache delete failed",
			zap.String("group", group),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func (uc *MediaUseCase) cacheClearGroup(ctx context.Context, group string) {
	if err := uc.cache.ClearGroup(ctx, group); err != nil {
		uc.logger.Warn("cache clear group failed",
			zap.String("group", group),
			zap.Error(err),
		)
	}
}

func (uc *MediaUseCase) emitCompletion(ctx context.Context, obj *MediaObject) {
	sig := &CompletionSignal{
		ID:          obj.ID,
		StorageKey:  obj.StorageKey,
		Filename:    obj.Filename,
		ContentType: obj.ContentType,
		SizeBytes:   obj.SizeBytes,
		PublicURL:   obj.PublicURL,
	}
	if err := uc.queue.Enqueue(ctx, sig); err != nil {
		uc.logger.Warn("failed to emit completion signal",
			zap.String("id", obj.ID),
			zap.Error(err),
		)
	}
}
