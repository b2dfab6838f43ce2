package kv

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Manager hands out buckets by name, creating them on first use.
type Manager struct {
	db          *sql.DB
	redis       *redis.Client
	redisPrefix string

	mu      sync.Mutex
	buckets map[string]Bucket
}

// NewManager creates a manager. db and redisClient may be nil when their backend is unused.
func NewManager(db *sql.DB, redisClient *redis.Client, redisPrefix string) *Manager {
	return &Manager{
		db:          db,
		redis:       redisClient,
		redisPrefix: redisPrefix,
		buckets:     make(map[string]Bucket),
	}
}

// Bucket returns the named bucket, creating it on the given backend if needed.
func (m *Manager) Bucket(name string, backend Backend) (Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bucket, ok := m.buckets[name]; ok {
		return bucket, nil
	}

	var bucket Bucket
	switch backend {
	case BackendMemory:
		bucket = NewMemoryBucket(name)
	case BackendSQLite:
		if m.db == nil {
			return nil, fmt.Errorf("bucket %q: sqlite backend not configured", name)
		}
		bucket = NewSQLiteBucket(m.db, name)
	case BackendRedis:
		if m.redis == nil {
			return nil, fmt.Errorf("bucket %q: redis backend not configured", name)
		}
		bucket = NewRedisBucket(m.redis, m.redisPrefix, name)
	default:
		return nil, fmt.Errorf("bucket %q: unknown backend %q", name, backend)
	}

	m.buckets[name] = bucket
	log.Debug().
		Str("bucket", name).
		Str("backend", string(backend)).
		Bool("persistent", bucket.IsPersistent()).
		Msg("Created KV bucket")

	return bucket, nil
}
