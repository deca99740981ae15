package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/clipstash/clipstash-backend/internal/media/biz"
	pkgredis "github.com/clipstash/clipstash-backend/internal/pkg/redis"
	"github.com/clipstash/clipstash-backend/internal/pkg/workerpool"
	"go.uber.org/zap"
)

const (
	// CompletionQueueKey 完成信号队列
	CompletionQueueKey = "queue:media:completion"
)

// Worker 完成信号消费者。
// 从 Redis 列表轮询信号，投递到 worker pool 执行 reconcile。
// 弹出即确认：reconcile 对错误全量吸收且幂等，本组件不做重试。
type Worker struct {
	redis        *pkgredis.Client
	reconciler   *biz.Reconciler
	pool         *workerpool.Pool
	logger       *zap.Logger
	pollInterval time.Duration
	wg           sync.WaitGroup
	stopCh       chan struct{}
	mu           sync.Mutex
	running      bool
}

// NewWorker 创建完成信号 Worker
func NewWorker(
	redis *pkgredis.Client,
	reconciler *biz.Reconciler,
	pool *workerpool.Pool,
	logger *zap.Logger,
	pollInterval time.Duration,
) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		redis:        redis,
		reconciler:   reconciler,
		pool:         pool,
		logger:       logger,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
	}
}

// Start 启动消费循环
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("completion worker already running")
	}

	w.running = true
	w.logger.Info("starting completion signal worker",
		zap.Duration("poll_interval", w.pollInterval))

	w.wg.Add(1)
	go w.consumeLoop(ctx)

	return nil
}

// Stop 停止消费循环
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.logger.Info("stopping completion signal worker")
	close(w.stopCh)
	w.wg.Wait()
	w.running = false
	w.logger.Info("completion signal worker stopped")
}

// Enqueue 发布完成信号
func (w *Worker) Enqueue(ctx context.Context, sig *biz.CompletionSignal) error {
	sigJSON, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal completion signal: %w", err)
	}

	_, err = w.redis.LPush(ctx, CompletionQueueKey, string(sigJSON))
	if err != nil {
		return fmt.Errorf("failed to enqueue completion signal: %w", err)
	}

	w.logger.Debug("completion signal enqueued", zap.String("id", sig.ID))
	return nil
}

// consumeLoop 消费循环
func (w *Worker) consumeLoop(ctx context.Context) {
	defer w.wg.Done()

	w.logger.Info("completion worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("completion worker stopping")
			return
		case <-ctx.Done():
			w.logger.Info("context cancelled, completion worker stopping")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain 清空当前队列中的所有信号
func (w *Worker) drain(ctx context.Context) {
	for {
		sigJSON, err := w.redis.RPop(ctx, CompletionQueueKey)
		if err != nil || sigJSON == "" {
			return
		}

		var sig biz.CompletionSignal
		if err := json.Unmarshal([]byte(sigJSON), &sig); err != nil {
			w.logger.Error("failed to unmarshal completion signal", zap.Error(err))
			continue
		}

		if err := w.pool.Submit(func() {
			w.reconciler.Reconcile(ctx, &sig)
		}); err != nil {
			// 提交失败退化为同步执行，信号已出队不可丢
			w.logger.Warn("worker pool submit failed, reconciling inline",
				zap.String("id", sig.ID),
				zap.Error(err),
			)
			w.reconciler.Reconcile(ctx, &sig)
		}
	}
}

// QueueSize 获取待处理信号数量
func (w *Worker) QueueSize(ctx context.Context) (int64, error) {
	return w.redis.LLen(ctx, CompletionQueueKey)
}
