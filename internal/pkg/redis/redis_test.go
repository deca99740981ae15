package redis

import (
	"context"
	"testing"
	"time"

	"github.com/clipstash/clipstash-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRedisAddr = "localhost:6379"
)

func setupTestClient(t *testing.T) *Client {
	log, err := logger.New(&logger.Config{
		Level:  "debug",
		Format: "json",
		Output: "console",
	})
	require.NoError(t, err)

	cfg := &Config{
		Mode:         ModeSingle,
		Addr:         testRedisAddr,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}

	client, err := New(cfg, log)
	if err != nil {
		t.Skipf("redis not available at %s: %v", testRedisAddr, err)
	}
	require.NotNil(t, client)

	return client
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid single config",
			config: &Config{
				Mode:        ModeSingle,
				Addr:        testRedisAddr,
				PoolSize:    10,
				DialTimeout: 5 * time.Second,
				PoolTimeout: 4 * time.Second,
			},
			wantErr: false,
		},
		{
			name: "missing addr",
			config: &Config{
				Mode:        ModeSingle,
				PoolSize:    10,
				DialTimeout: 5 * time.Second,
				PoolTimeout: 4 * time.Second,
			},
			wantErr: true,
		},
		{
			name: "sentinel without master name",
			config: &Config{
				Mode:          ModeSentinel,
				SentinelAddrs: []string{"localhost:26379"},
				PoolSize:      10,
				DialTimeout:   5 * time.Second,
				PoolTimeout:   4 * time.Second,
			},
			wantErr: true,
		},
		{
			name: "invalid pool size",
			config: &Config{
				Mode:        ModeSingle,
				Addr:        testRedisAddr,
				PoolSize:    0,
				DialTimeout: 5 * time.Second,
				PoolTimeout: 4 * time.Second,
			},
			wantErr: true,
		},
		{
			name: "invalid db",
			config: &Config{
				Mode:        ModeSingle,
				Addr:        testRedisAddr,
				DB:          42,
				PoolSize:    10,
				DialTimeout: 5 * time.Second,
				PoolTimeout: 4 * time.Second,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStringOperations(t *testing.T) {
	client := setupTestClient(t)
	defer client.Close()

	ctx := context.Background()
	key := "test:ops:string"
	defer client.Del(ctx, key)

	err := client.Set(ctx, key, "value1", time.Minute)
	require.NoError(t, err)

	val, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "value1", val)

	n, err := client.Exists(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = client.Del(ctx, key)
	require.NoError(t, err)

	_, err = client.Get(ctx, key)
	assert.True(t, IsNil(err))
}

func TestMGet(t *testing.T) {
	client := setupTestClient(t)
	defer client.Close()

	ctx := context.Background()
	defer client.Del(ctx, "test:mget:a", "test:mget:b")

	require.NoError(t, client.Set(ctx, "test:mget:a", "1", time.Minute))
	require.NoError(t, client.Set(ctx, "test:mget:b", "2", time.Minute))

	vals, err := client.MGet(ctx, "test:mget:a", "test:mget:missing", "test:mget:b")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, "1", vals[0])
	assert.Nil(t, vals[1])
	assert.Equal(t, "2", vals[2])
}

func TestListOperations(t *testing.T) {
	client := setupTestClient(t)
	defer client.Close()

	ctx := context.Background()
	key := "test:ops:list"
	defer client.Del(ctx, key)

	_, err := client.LPush(ctx, key, "a", "b")
	require.NoError(t, err)

	n, err := client.LLen(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// LPush 后 RPop 先进先出
	val, err := client.RPop(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "a", val)
}

func TestSetOperations(t *testing.T) {
	client := setupTestClient(t)
	defer client.Close()

	ctx := context.Background()
	key := "test:ops:set"
	defer client.Del(ctx, key)

	_, err := client.SAdd(ctx, key, "m1", "m2")
	require.NoError(t, err)

	members, err := client.SMembers(ctx, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m1", "m2"}, members)

	n, err := client.SCard(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = client.SRem(ctx, key, "m1")
	require.NoError(t, err)

	n, err = client.SCard(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
