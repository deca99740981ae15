package biz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"
	"time"
)

// ==================== 测试替身 ====================

type fakeRepo struct {
	mu      sync.Mutex
	objects map[string]*MediaObject
	upserts int
	fail    bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{objects: make(map[string]*MediaObject)}
}

func (r *fakeRepo) Upsert(_ context.Context, obj *MediaObject) error {
	if r.fail {
		return errors.New("metadata store unavailable")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *obj
	// 冲突时 storage_key 与 created_at 保持首次写入的值
	if existing, ok := r.objects[obj.ID]; ok {
		cp.StorageKey = existing.StorageKey
		cp.CreatedAt = existing.CreatedAt
	}
	r.objects[obj.ID] = &cp
	r.upserts++
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*MediaObject, error) {
	if r.fail {
		return nil, errors.New("metadata store unavailable")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[id]
	if !ok {
		return nil, nil
	}
	cp := *obj
	return &cp, nil
}

func (r *fakeRepo) ListRecent(_ context.Context, limit int) ([]*MediaObject, error) {
	if r.fail {
		return nil, errors.New("metadata store unavailable")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	objs := make([]*MediaObject, 0, len(r.objects))
	for _, obj := range r.objects {
		cp := *obj
		objs = append(objs, &cp)
	}
	sort.Slice(objs, func(i, j int) bool {
		return objs[i].CreatedAt.After(objs[j].CreatedAt)
	})
	if len(objs) > limit {
		objs = objs[:limit]
	}
	return objs, nil
}

func (r *fakeRepo) DeleteByID(_ context.Context, id string) (bool, error) {
	if r.fail {
		return false, errors.New("metadata store unavailable")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.objects[id]; !ok {
		return false, nil
	}
	delete(r.objects, id)
	return true, nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

type fakeBlobStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	probes     int
	failPut    bool
	failProbe  bool
	grantCount int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (s *fakeBlobStore) ObjectKey(id, filename string) string {
	return "videos/" + id + path.Ext(filename)
}

func (s *fakeBlobStore) Put(_ context.Context, key string, reader io.Reader, _ int64, _ string) (string, error) {
	if s.failPut {
		return "", errors.New("blob store unavailable")
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()

	return s.PublicURL(key), nil
}

func (s *fakeBlobStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.probes++
	if s.failProbe {
		return false, errors.New("blob store unavailable")
	}
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeBlobStore) Stat(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	if !ok {
		return 0, errors.New("object not found")
	}
	return int64(len(data)), nil
}

func (s *fakeBlobStore) IssueGrant(_ context.Context, key string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grantCount++
	return "http://blob.local/presigned/" + key, nil
}

func (s *fakeBlobStore) PublicURL(key string) string {
	return "http://blob.local/media/" + key
}

func (s *fakeBlobStore) store(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

func (s *fakeBlobStore) probeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probes
}

// fakeCache 内存分组缓存；值经 JSON 序列化以模拟真实编解码路径
type fakeCache struct {
	mu     sync.Mutex
	groups map[string]map[string][]byte
	fail   bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{groups: make(map[string]map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, group, key string, dest interface{}) (bool, error) {
	if c.fail {
		return false, errors.New("cache unavailable")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.groups[group]
	if !ok {
		return false, nil
	}
	raw, ok := entries[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *fakeCache) Set(_ context.Context, group, key string, value interface{}) error {
	if c.fail {
		return errors.New("cache unavailable")
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.groups[group] == nil {
		c.groups[group] = make(map[string][]byte)
	}
	c.groups[group][key] = raw
	return nil
}

func (c *fakeCache) Delete(_ context.Context, group, key string) error {
	if c.fail {
		return errors.New("cache unavailable")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entries, ok := c.groups[group]; ok {
		delete(entries, key)
	}
	return nil
}

func (c *fakeCache) ClearGroup(_ context.Context, group string) error {
	if c.fail {
		return errors.New("cache unavailable")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.groups, group)
	return nil
}

func (c *fakeCache) ListGroup(_ context.Context, group string) ([]string, error) {
	if c.fail {
		return nil, errors.New("cache unavailable")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var vals []string
	for _, raw := range c.groups[group] {
		vals = append(vals, string(raw))
	}
	return vals, nil
}

func (c *fakeCache) GroupSize(_ context.Context, group string) (int64, error) {
	if c.fail {
		return 0, errors.New("cache unavailable")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return int64(len(c.groups[group])), nil
}

func (c *fakeCache) has(group, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.groups[group]
	if !ok {
		return false
	}
	_, ok = entries[key]
	return ok
}

func (c *fakeCache) groupLen(group string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.groups[group])
}

// seed 直接写入缓存条目，绕过 Set 的失败开关
func (c *fakeCache) seed(group, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("seed marshal: %v", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.groups[group] == nil {
		c.groups[group] = make(map[string][]byte)
	}
	c.groups[group][key] = raw
}

type fakeQueue struct {
	mu      sync.Mutex
	signals []*CompletionSignal
	fail    bool
}

func (q *fakeQueue) Enqueue(_ context.Context, sig *CompletionSignal) error {
	if q.fail {
		return errors.New("queue unavailable")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.signals = append(q.signals, sig)
	return nil
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.signals)
}

func (q *fakeQueue) last() *CompletionSignal {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.signals) == 0 {
		return nil
	}
	return q.signals[len(q.signals)-1]
}
