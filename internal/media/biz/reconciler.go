package biz

import (
	"context"
	"time"

	"github.com/clipstash/clipstash-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// Reconciler 消费完成信号，校验 blob 存在性并回写元数据与缓存。
// 所有错误在本组件内吸收：对象已在 blob 存储中持久化，重复 reconcile
// 只是浪费而非危害，吞掉错误可以避免投递层的重试放大。
type Reconciler struct {
	repo   MediaRepo
	blobs  BlobStore
	cache  Cache
	logger *logger.Logger
}

// NewReconciler 创建 Reconciler
func NewReconciler(repo MediaRepo, blobs BlobStore, cache Cache, log *logger.Logger) *Reconciler {
	return &Reconciler{
		repo:   repo,
		blobs:  blobs,
		cache:  cache,
		logger: log,
	}
}

// Reconcile 处理一条完成信号。绝不返回错误。
func (r *Reconciler) Reconcile(ctx context.Context, sig *CompletionSignal) {
	if sig == nil || sig.ID == "" {
		r.logger.Warn("reconciler received invalid completion signal")
		return
	}

	if !r.verifyExists(ctx, sig.StorageKey) {
		// 对象可能仍在传输中，不回滚记录；reconciler 只做建议性校验
		r.logger.Warn("blob not yet confirmed in storage, proceeding anyway",
			zap.String("id", sig.ID),
			zap.String("storage_key", sig.StorageKey),
		)
	}

	now := time.Now()
	obj := &MediaObject{
		ID:          sig.ID,
		Filename:    sig.Filename,
		ContentType: sig.ContentType,
		SizeBytes:   sig.SizeBytes,
		StorageKey:  sig.StorageKey,
		PublicURL:   sig.PublicURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.repo.Upsert(ctx, obj); err != nil {
		r.logger.Error("reconciler failed to upsert metadata",
			zap.String("id", sig.ID),
			zap.Error(err),
		)
		return
	}

	if err := r.cache.Set(ctx, GroupObjectsByID, obj.ID, obj); err != nil {
		r.logger.Warn("reconciler cache set failed",
			zap.String("id", obj.ID),
			zap.Error(err),
		)
	}

	if err := r.cache.ClearGroup(ctx, GroupListResults); err != nil {
		r.logger.Warn("reconciler cache clear group failed",
			zap.String("group", GroupListResults),
			zap.Error(err),
		)
	}
}

// verifyExists 校验 blob 存在性，用缓存记忆化探测结果。
// 只缓存 true：对象可能仍在传输中，陈旧的 false 会错误地抑制后续探测。
func (r *Reconciler) verifyExists(ctx context.Context, storageKey string) bool {
	if storageKey == "" {
		return false
	}

	var cached bool
	hit, err := r.cache.Get(ctx, GroupExistenceChecks, storageKey, &cached)
	if err == nil && hit && cached {
		return true
	}

	exists, err := r.blobs.Exists(ctx, storageKey)
	if err != nil {
		r.logger.Warn("blob existence probe failed",
			zap.String("storage_key", storageKey),
			zap.Error(err),
		)
		return false
	}

	if exists {
		if err := r.cache.Set(ctx, GroupExistenceChecks, storageKey, true); err != nil {
			r.logger.Warn("failed to cache existence check",
				zap.String("storage_key", storageKey),
				zap.Error(err),
			)
		}
	}

	return exists
}
