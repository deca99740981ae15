package cleanup

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/clipstash/clipstash-backend/internal/media/biz"
	"github.com/clipstash/clipstash-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// QueueInspector 队列诊断接口
type QueueInspector interface {
	QueueSize(ctx context.Context) (int64, error)
}

// Job 周期性维护任务。只做诊断巡检：枚举各缓存分组的规模并记录
// 过期未完成的上传授权。不改变任何状态。
type Job struct {
	cache    biz.Cache
	queue    QueueInspector
	interval time.Duration
	logger   *logger.Logger
	wg       sync.WaitGroup
	stopCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewJob 创建维护任务
func NewJob(cache biz.Cache, queue QueueInspector, interval time.Duration, log *logger.Logger) *Job {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Job{
		cache:    cache,
		queue:    queue,
		interval: interval,
		logger:   log,
		stopCh:   make(chan struct{}),
	}
}

// Start 启动周期巡检
func (j *Job) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}

	j.running = true
	j.logger.Info("starting cleanup job", zap.Duration("interval", j.interval))

	j.wg.Add(1)
	go j.runLoop(ctx)
}

// Stop 停止巡检
func (j *Job) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}

	close(j.stopCh)
	j.wg.Wait()
	j.running = false
	j.logger.Info("cleanup job stopped")
}

func (j *Job) runLoop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep 执行一次巡检
func (j *Job) Sweep(ctx context.Context) {
	for _, group := range []string{
		biz.GroupObjectsByID,
		biz.GroupListResults,
		biz.GroupPendingUploads,
		biz.GroupExistenceChecks,
	} {
		size, err := j.cache.GroupSize(ctx, group)
		if err != nil {
			j.logger.Warn("failed to inspect cache group",
				zap.String("group", group),
				zap.Error(err),
			)
			continue
		}
		j.logger.Info("cache group size",
			zap.String("group", group),
			zap.Int64("entries", size),
		)
	}

	j.reportExpiredGrants(ctx)

	if j.queue != nil {
		if size, err := j.queue.QueueSize(ctx); err == nil {
			j.logger.Info("completion queue backlog", zap.Int64("pending", size))
		}
	}
}

// reportExpiredGrants 记录已过期但仍未完成的上传授权
func (j *Job) reportExpiredGrants(ctx context.Context) {
	vals, err := j.cache.ListGroup(ctx, biz.GroupPendingUploads)
	if err != nil {
		j.logger.Warn("failed to list pending uploads", zap.Error(err))
		return
	}

	now := time.Now()
	for _, raw := range vals {
		var grant biz.UploadGrant
		if err := json.Unmarshal([]byte(raw), &grant); err != nil {
			continue
		}
		if grant.ExpiresAt.Before(now) {
			j.logger.Warn("upload grant expired without completion",
				zap.String("id", grant.ID),
				zap.String("storage_key", grant.StorageKey),
				zap.Time("expired_at", grant.ExpiresAt),
			)
		}
	}
}
