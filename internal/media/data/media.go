package data

import (
	"context"
	"fmt"
	"time"

	"github.com/clipstash/clipstash-backend/internal/media/biz"
	"github.com/clipstash/clipstash-backend/internal/pkg/database"
	"github.com/clipstash/clipstash-backend/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// MediaObjectPO 媒体对象持久化模型
type MediaObjectPO struct {
	ID          string    `gorm:"type:varchar(64);primaryKey"`
	Filename    string    `gorm:"type:varchar(512);not null"`
	ContentType string    `gorm:"type:varchar(128)"`
	SizeBytes   int64     `gorm:"not null;default:0"`
	StorageKey  string    `gorm:"type:varchar(512);not null"`
	PublicURL   string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

// TableName 指定表名
func (MediaObjectPO) TableName() string {
	return "media_objects"
}

// mediaRepo 基于 GORM 的元数据仓储实现
type mediaRepo struct {
	db     *database.DB
	logger *logger.Logger
}

// NewMediaRepo 创建元数据仓储
func NewMediaRepo(db *database.DB, log *logger.Logger) biz.MediaRepo {
	return &mediaRepo{
		db:     db,
		logger: log,
	}
}

// Upsert 按 id 幂等写入。冲突时只更新可变列：
// storage_key 与 created_at 一经写入不再变更。
func (r *mediaRepo) Upsert(ctx context.Context, obj *biz.MediaObject) error {
	po := toPO(obj)

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"filename",
			"content_type",
			"size_bytes",
			"public_url",
			"updated_at",
		}),
	}).Create(po).Error
	if err != nil {
		r.logger.Error("failed to upsert media object",
			zap.String("id", obj.ID),
			zap.Error(err),
		)
		return fmt.Errorf("upsert media object: %w", err)
	}

	return nil
}

// GetByID 按 id 查询；不存在时返回 (nil, nil)
func (r *mediaRepo) GetByID(ctx context.Context, id string) (*biz.MediaObject, error) {
	var po MediaObjectPO
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		r.logger.Error("failed to get media object",
			zap.String("id", id),
			zap.Error(err),
		)
		return nil, fmt.Errorf("get media object: %w", err)
	}

	return toDomain(&po), nil
}

// ListRecent 按创建时间倒序返回最多 limit 条记录
func (r *mediaRepo) ListRecent(ctx context.Context, limit int) ([]*biz.MediaObject, error) {
	var pos []MediaObjectPO
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		r.logger.Error("failed to list media objects",
			zap.Int("limit", limit),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list media objects: %w", err)
	}

	objs := make([]*biz.MediaObject, 0, len(pos))
	for i := range pos {
		objs = append(objs, toDomain(&pos[i]))
	}

	return objs, nil
}

// DeleteByID 按 id 删除；返回是否删除了记录
func (r *mediaRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&MediaObjectPO{})
	if result.Error != nil {
		r.logger.Error("failed to delete media object",
			zap.String("id", id),
			zap.Error(result.Error),
		)
		return false, fmt.Errorf("delete media object: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// toPO 领域模型转持久化模型
func toPO(obj *biz.MediaObject) *MediaObjectPO {
	return &MediaObjectPO{
		ID:          obj.ID,
		Filename:    obj.Filename,
		ContentType: obj.ContentType,
		SizeBytes:   obj.SizeBytes,
		StorageKey:  obj.StorageKey,
		PublicURL:   obj.PublicURL,
		CreatedAt:   obj.CreatedAt,
		UpdatedAt:   obj.UpdatedAt,
	}
}

// toDomain 持久化模型转领域模型
func toDomain(po *MediaObjectPO) *biz.MediaObject {
	return &biz.MediaObject{
		ID:          po.ID,
		Filename:    po.Filename,
		ContentType: po.ContentType,
		SizeBytes:   po.SizeBytes,
		StorageKey:  po.StorageKey,
		PublicURL:   po.PublicURL,
		CreatedAt:   po.CreatedAt,
		UpdatedAt:   po.UpdatedAt,
	}
}
