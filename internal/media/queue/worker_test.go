package queue

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/clipstash/clipstash-backend/internal/media/biz"
	"github.com/clipstash/clipstash-backend/internal/pkg/logger"
	pkgredis "github.com/clipstash/clipstash-backend/internal/pkg/redis"
	"github.com/clipstash/clipstash-backend/internal/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo 记录 Upsert 调用的最小仓储替身
type memRepo struct {
	mu      sync.Mutex
	objects map[string]*biz.MediaObject
}

func (r *memRepo) Upsert(_ context.Context, obj *biz.MediaObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.objects == nil {
		r.objects = make(map[string]*biz.MediaObject)
	}
	cp := *obj
	r.objects[obj.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*biz.MediaObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	if !ok {
		return nil, nil
	}
	cp := *obj
	return &cp, nil
}

func (r *memRepo) ListRecent(_ context.Context, _ int) ([]*biz.MediaObject, error) {
	return nil, nil
}

func (r *memRepo) DeleteByID(_ context.Context, _ string) (bool, error) {
	return false, nil
}

type memBlobStore struct{}

func (memBlobStore) ObjectKey(id, _ string) string { return "videos/" + id }
func (memBlobStore) Put(_ context.Context, key string, _ io.Reader, _ int64, _ string) (string, error) {
	return "http://blob.local/" + key, nil
}
func (memBlobStore) Exists(_ context.Context, _ string) (bool, error) { return true, nil }
func (memBlobStore) Stat(_ context.Context, _ string) (int64, error)  { return 0, nil }
func (memBlobStore) IssueGrant(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://blob.local/presigned/" + key, nil
}
func (memBlobStore) PublicURL(key string) string { return "http://blob.local/" + key }

type memCache struct{}

func (memCache) Get(_ context.Context, _, _ string, _ interface{}) (bool, error) { return false, nil }
func (memCache) Set(_ context.Context, _, _ string, _ interface{}) error         { return nil }
func (memCache) Delete(_ context.Context, _, _ string) error                     { return nil }
func (memCache) ClearGroup(_ context.Context, _ string) error                    { return nil }
func (memCache) ListGroup(_ context.Context, _ string) ([]string, error)         { return nil, nil }
func (memCache) GroupSize(_ context.Context, _ string) (int64, error)            { return 0, nil }

func setupWorker(t *testing.T) (*Worker, *memRepo, *pkgredis.Client) {
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "console"})
	require.NoError(t, err)

	client, err := pkgredis.New(pkgredis.DefaultConfig(), log)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}

	repo := &memRepo{}
	reconciler := biz.NewReconciler(repo, memBlobStore{}, memCache{}, log)

	pool, err := workerpool.New(&workerpool.Config{Workers: 2}, log.GetZapLogger())
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)

	worker := NewWorker(client, reconciler, pool, log.GetZapLogger(), 50*time.Millisecond)
	return worker, repo, client
}

func TestEnqueueAndQueueSize(t *testing.T) {
	worker, _, client := setupWorker(t)
	defer client.Close()

	ctx := context.Background()
	defer client.Del(ctx, CompletionQueueKey)

	sig := &biz.CompletionSignal{
		ID:          "q-test-1",
		StorageKey:  "videos/q-test-1",
		Filename:    "a.webm",
		ContentType: "video/webm",
		SizeBytes:   10,
		PublicURL:   "http://blob.local/videos/q-test-1",
	}

	require.NoError(t, worker.Enqueue(ctx, sig))

	size, err := worker.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestConsumeReconciles(t *testing.T) {
	worker, repo, client := setupWorker(t)
	defer client.Close()

	ctx := context.Background()
	defer client.Del(ctx, CompletionQueueKey)

	sig := &biz.CompletionSignal{
		ID:          "q-test-2",
		StorageKey:  "videos/q-test-2",
		Filename:    "b.webm",
		ContentType: "video/webm",
		SizeBytes:   20,
		PublicURL:   "http://blob.local/videos/q-test-2",
	}
	require.NoError(t, worker.Enqueue(ctx, sig))

	require.NoError(t, worker.Start(ctx))
	defer worker.Stop()

	// 信号被消费并落库
	assert.Eventually(t, func() bool {
		obj, err := repo.GetByID(ctx, "q-test-2")
		return err == nil && obj != nil && obj.SizeBytes == 20
	}, 3*time.Second, 50*time.Millisecond)

	size, err := worker.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestStartTwice(t *testing.T) {
	worker, _, client := setupWorker(t)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop()

	assert.Error(t, worker.Start(ctx))
}
