// Package kv provides key-value buckets backed by memory, SQLite or Redis.
package kv

import (
	"context"
	"fmt"
)

// Backend selects where a bucket keeps its data.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendMemory, BackendSQLite, BackendRedis:
		return b, nil
	}
	return "", fmt.Errorf("unknown kv backend %q", s)
}

// Bucket is a namespace of JSON-shaped values.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// IsPersistent returns true if values survive a process restart.
	IsPersistent() bool

	// Store saves a value with the given key.
	Store(ctx context.Context, key string, value any) error

	// Get retrieves a value by key. Returns nil if the key doesn't exist.
	// Persistent buckets return values as decoded JSON (numbers become float64).
	Get(ctx context.Context, key string) (any, error)

	// Exists returns true if the key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes a key from the bucket. Returns true if the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Keys returns all keys in the bucket.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes all keys from the bucket.
	Clear(ctx context.Context) error
}
