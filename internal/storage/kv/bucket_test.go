package kv

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightcycle/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

// exerciseBucket runs the same behavior checks against any backend.
func exerciseBucket(t *testing.T, b Bucket) {
	ctx := context.Background()

	v, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, b.Store(ctx, "a", map[string]any{"x": 1}))
	require.NoError(t, b.Store(ctx, "b", "text"))

	ok, err := b.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "b"}, keys)

	// overwrite
	require.NoError(t, b.Store(ctx, "b", "other"))
	v, err = b.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "other", v)

	deleted, err := b.Delete(ctx, "b")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = b.Delete(ctx, "b")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, b.Clear(ctx))
	keys, err = b.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryBucket(t *testing.T) {
	exerciseBucket(t, NewMemoryBucket("test"))
}

func TestSQLiteBucket(t *testing.T) {
	exerciseBucket(t, NewSQLiteBucket(openTestDB(t).DB, "test"))
}

func TestSQLiteBucket_DecodesJSONNumbers(t *testing.T) {
	ctx := context.Background()
	b := NewSQLiteBucket(openTestDB(t).DB, "numbers")

	require.NoError(t, b.Store(ctx, "m", map[string]int{"k": 2}))
	v, err := b.Get(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": float64(2)}, v)
}

func TestSQLiteBucket_IsolatedByName(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	a := NewSQLiteBucket(database.DB, "a")
	b := NewSQLiteBucket(database.DB, "b")

	require.NoError(t, a.Store(ctx, "k", "from-a"))
	v, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestManager(t *testing.T) {
	database := openTestDB(t)
	m := NewManager(database.DB, nil, "")

	b1, err := m.Bucket("cycling", BackendSQLite)
	require.NoError(t, err)
	b2, err := m.Bucket("cycling", BackendSQLite)
	require.NoError(t, err)
	assert.Same(t, b1, b2)
	assert.True(t, b1.IsPersistent())

	mem, err := m.Bucket("scratch", BackendMemory)
	require.NoError(t, err)
	assert.False(t, mem.IsPersistent())

	_, err = m.Bucket("shared", BackendRedis)
	assert.Error(t, err)
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("redis")
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, b)

	_, err = ParseBackend("etcd")
	assert.Error(t, err)
}
