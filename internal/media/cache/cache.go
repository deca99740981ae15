package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clipstash/clipstash-backend/internal/media/biz"
	"github.com/clipstash/clipstash-backend/internal/pkg/logger"
	pkgredis "github.com/clipstash/clipstash-backend/internal/pkg/redis"
	"go.uber.org/zap"
)

const (
	entryPrefix   = "cache:"
	indexPrefix   = "cacheidx:"
	versionPrefix = "cachever:"
)

// Config 各分组的 TTL 配置
type Config struct {
	ObjectTTL    time.Duration
	ListTTL      time.Duration
	PendingTTL   time.Duration
	ExistenceTTL time.Duration
}

// DefaultConfig 默认 TTL 配置
func DefaultConfig() *Config {
	return &Config{
		ObjectTTL:    10 * time.Minute,
		ListTTL:      5 * time.Minute,
		PendingTTL:   30 * time.Minute,
		ExistenceTTL: 10 * time.Minute,
	}
}

// RedisCache 基于 Redis 的分组缓存。
// 每个分组带一个版本号，条目键与索引键都含当前版本；
// 整组清空只需版本号自增一条命令，旧版本下的全部条目随即不可达。
// 每个版本维护一个成员索引集合，服务于 ListGroup/GroupSize。
type RedisCache struct {
	client *pkgredis.Client
	ttls   map[string]time.Duration
	logger *logger.Logger
}

// NewRedisCache 创建分组缓存
func NewRedisCache(client *pkgredis.Client, cfg *Config, log *logger.Logger) *RedisCache {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &RedisCache{
		client: client,
		ttls: map[string]time.Duration{
			biz.GroupObjectsByID:     cfg.ObjectTTL,
			biz.GroupListResults:     cfg.ListTTL,
			biz.GroupPendingUploads:  cfg.PendingTTL,
			biz.GroupExistenceChecks: cfg.ExistenceTTL,
		},
		logger: log,
	}
}

// entryKey 构造条目键（含分组当前版本）
func entryKey(group, version, key string) string {
	return entryPrefix + group + ":v" + version + ":" + key
}

// indexKey 构造分组索引键（含分组当前版本）
func indexKey(group, version string) string {
	return indexPrefix + group + ":v" + version
}

// versionKey 构造分组版本键
func versionKey(group string) string {
	return versionPrefix + group
}

func (c *RedisCache) ttl(group string) time.Duration {
	if ttl, ok := c.ttls[group]; ok && ttl > 0 {
		return ttl
	}
	return 10 * time.Minute
}

// version 读取分组当前版本；版本键不存在视为初始版本 0
func (c *RedisCache) version(ctx context.Context, group string) (string, error) {
	val, err := c.client.Get(ctx, versionKey(group))
	if err != nil {
		if pkgredis.IsNil(err) {
			return "0", nil
		}
		return "", err
	}
	return val, nil
}

// Get 读取缓存并反序列化到 dest；返回是否命中
func (c *RedisCache) Get(ctx context.Context, group, key string, dest interface{}) (bool, error) {
	ver, err := c.version(ctx, group)
	if err != nil {
		return false, fmt.Errorf("cache get: %w", err)
	}

	raw, err := c.client.Get(ctx, entryKey(group, ver, key))
	if err != nil {
		if pkgredis.IsNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("cache get: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		// 损坏的条目当作未命中处理，交由持久层回填覆盖
		c.logger.Warn("cache entry corrupted, treating as miss",
			zap.String("group", group),
			zap.String("key", key),
			zap.Error(err),
		)
		return false, nil
	}

	return true, nil
}

// Set 无条件覆盖写入，同时把条目登记进当前版本的分组索引
func (c *RedisCache) Set(ctx context.Context, group, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache set marshal: %w", err)
	}

	ver, err := c.version(ctx, group)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}

	ek := entryKey(group, ver, key)
	ik := indexKey(group, ver)
	ttl := c.ttl(group)

	// 先登记索引再写条目：索引允许残留已过期成员，但绝不漏掉存活条目
	if _, err := c.client.SAdd(ctx, ik, ek); err != nil {
		return fmt.Errorf("cache index add: %w", err)
	}
	// 索引随每次写入续期；版本号自增后废弃的旧索引由 TTL 回收
	if _, err := c.client.Expire(ctx, ik, ttl); err != nil {
		return fmt.Errorf("cache index expire: %w", err)
	}

	if err := c.client.Set(ctx, ek, data, ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}

	return nil
}

// Delete 删除单个条目；条目不存在时为空操作
func (c *RedisCache) Delete(ctx context.Context, group, key string) error {
	ver, err := c.version(ctx, group)
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}

	ek := entryKey(group, ver, key)

	if _, err := c.client.Del(ctx, ek); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}

	if _, err := c.client.SRem(ctx, indexKey(group, ver), ek); err != nil {
		return fmt.Errorf("cache index remove: %w", err)
	}

	return nil
}

// ClearGroup 原子清空整个分组：版本号自增一条命令完成，旧版本下的
// 所有条目与索引随即不可达，由各自的 TTL 回收。与并发 Set 之间不存在
// 竞态窗口：写入要么落在旧版本（自增后立即不可达），要么已读到新版本
// （属于清空之后的新写入，由下一次清空负责）。
func (c *RedisCache) ClearGroup(ctx context.Context, group string) error {
	if _, err := c.client.Incr(ctx, versionKey(group)); err != nil {
		return fmt.Errorf("cache clear group: %w", err)
	}
	return nil
}

// ListGroup 枚举分组内所有条目的原始 JSON 值（仅维护/诊断流程使用）
func (c *RedisCache) ListGroup(ctx context.Context, group string) ([]string, error) {
	ver, err := c.version(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("cache list group: %w", err)
	}

	members, err := c.client.SMembers(ctx, indexKey(group, ver))
	if err != nil {
		return nil, fmt.Errorf("cache list group: %w", err)
	}

	if len(members) == 0 {
		return nil, nil
	}

	vals, err := c.client.MGet(ctx, members...)
	if err != nil {
		return nil, fmt.Errorf("cache list group: %w", err)
	}

	result := make([]string, 0, len(vals))
	for _, v := range vals {
		// 已过期的条目在 MGet 中表现为 nil，跳过
		if s, ok := v.(string); ok {
			result = append(result, s)
		}
	}

	return result, nil
}

// GroupSize 返回分组当前版本索引内的条目数量
func (c *RedisCache) GroupSize(ctx context.Context, group string) (int64, error) {
	ver, err := c.version(ctx, group)
	if err != nil {
		return 0, fmt.Errorf("cache group size: %w", err)
	}

	n, err := c.client.SCard(ctx, indexKey(group, ver))
	if err != nil {
		return 0, fmt.Errorf("cache group size: %w", err)
	}
	return n, nil
}
