package kv

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRedis connects to LIGHTCYCLE_TEST_REDIS (default localhost:6379) or skips.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("LIGHTCYCLE_TEST_REDIS")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisBucket(t *testing.T) {
	client := testRedis(t)
	prefix := "lightcycle-test:" + t.Name() + ":"

	b := NewRedisBucket(client, prefix, "rules")
	t.Cleanup(func() { _ = b.Clear(context.Background()) })
	require.NoError(t, b.Clear(context.Background()))

	assert.Equal(t, "rules", b.Name())
	assert.True(t, b.IsPersistent())
	exerciseBucket(t, b)
}

func TestRedisBucket_SharedAcrossClients(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	prefix := "lightcycle-test:" + t.Name() + ":"

	first := NewRedisBucket(client, prefix, "cycling")
	t.Cleanup(func() { _ = first.Clear(ctx) })
	require.NoError(t, first.Store(ctx, "lights_program_index_map", map[string]int{"123": 2}))

	second := NewRedisBucket(client, prefix, "cycling")
	v, err := second.Get(ctx, "lights_program_index_map")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"123": float64(2)}, v)

	// the hash lives under prefix+name
	n, err := client.Exists(ctx, prefix+"cycling").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
