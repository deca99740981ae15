package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T) (*Reconciler, *fakeRepo, *fakeBlobStore, *fakeCache) {
	repo := newFakeRepo()
	blobs := newFakeBlobStore()
	cache := newFakeCache()

	r := NewReconciler(repo, blobs, cache, testLogger(t))
	return r, repo, blobs, cache
}

func completeSignal() *CompletionSignal {
	return &CompletionSignal{
		ID:          "sig-1",
		StorageKey:  "videos/sig-1.webm",
		Filename:    "a.webm",
		ContentType: "video/webm",
		SizeBytes:   10,
		PublicURL:   "http://blob.local/media/videos/sig-1.webm",
	}
}

func TestReconcileUpsertsAndCaches(t *testing.T) {
	r, repo, blobs, cache := newTestReconciler(t)
	ctx := context.Background()

	blobs.store("videos/sig-1.webm", []byte("0123456789"))

	// 预置一个会被整组失效的列表缓存
	cache.seed(GroupListResults, "size=50", &ListResult{Count: 0})

	r.Reconcile(ctx, completeSignal())

	got, err := repo.GetByID(ctx, "sig-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsComplete())

	assert.True(t, cache.has(GroupObjectsByID, "sig-1"))
	assert.Equal(t, 0, cache.groupLen(GroupListResults))
}

func TestReconcileCachesOnlyPositiveExistence(t *testing.T) {
	r, _, blobs, cache := newTestReconciler(t)
	ctx := context.Background()

	// blob 缺失：不缓存 false
	r.Reconcile(ctx, completeSignal())
	assert.Equal(t, 0, cache.groupLen(GroupExistenceChecks))

	// blob 存在：缓存 true
	blobs.store("videos/sig-1.webm", []byte("0123456789"))
	r.Reconcile(ctx, completeSignal())
	assert.True(t, cache.has(GroupExistenceChecks, "videos/sig-1.webm"))

	var cached bool
	hit, err := cache.Get(ctx, GroupExistenceChecks, "videos/sig-1.webm", &cached)
	require.NoError(t, err)
	require.True(t, hit)
	assert.True(t, cached)
}

func TestReconcileSkipsProbeOnCachedTrue(t *testing.T) {
	r, _, blobs, cache := newTestReconciler(t)
	ctx := context.Background()

	cache.seed(GroupExistenceChecks, "videos/sig-1.webm", true)

	r.Reconcile(ctx, completeSignal())

	// 缓存命中 true 时跳过探测
	assert.Equal(t, 0, blobs.probeCount())
}

func TestReconcileMissingBlobStillUpserts(t *testing.T) {
	r, repo, _, _ := newTestReconciler(t)
	ctx := context.Background()

	// 探测为负也不回滚：对象可能仍在传输中
	r.Reconcile(ctx, completeSignal())

	got, err := repo.GetByID(ctx, "sig-1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestReconcileAbsorbsProbeFailure(t *testing.T) {
	r, repo, blobs, _ := newTestReconciler(t)
	ctx := context.Background()

	blobs.failProbe = true

	assert.NotPanics(t, func() {
		r.Reconcile(ctx, completeSignal())
	})

	got, err := repo.GetByID(ctx, "sig-1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestReconcileAbsorbsRepoFailure(t *testing.T) {
	r, repo, blobs, cache := newTestReconciler(t)
	ctx := context.Background()

	blobs.store("videos/sig-1.webm", []byte("0123456789"))
	repo.fail = true

	assert.NotPanics(t, func() {
		r.Reconcile(ctx, completeSignal())
	})

	// 持久化失败时不写对象缓存
	assert.False(t, cache.has(GroupObjectsByID, "sig-1"))
}

func TestReconcileAbsorbsCacheFailure(t *testing.T) {
	r, repo, blobs, cache := newTestReconciler(t)
	ctx := context.Background()

	blobs.store("videos/sig-1.webm", []byte("0123456789"))
	cache.fail = true

	assert.NotPanics(t, func() {
		r.Reconcile(ctx, completeSignal())
	})

	got, err := repo.GetByID(ctx, "sig-1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestReconcileIdempotent(t *testing.T) {
	r, repo, blobs, _ := newTestReconciler(t)
	ctx := context.Background()

	blobs.store("videos/sig-1.webm", []byte("0123456789"))

	r.Reconcile(ctx, completeSignal())
	r.Reconcile(ctx, completeSignal())

	assert.Equal(t, 1, repo.count())
}

func TestReconcileInvalidSignal(t *testing.T) {
	r, repo, _, _ := newTestReconciler(t)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		r.Reconcile(ctx, nil)
		r.Reconcile(ctx, &CompletionSignal{})
	})

	assert.Equal(t, 0, repo.count())
}
