package kv

import (
	"context"
	"sync"
)

// MemoryBucket is an in-memory bucket that lives as long as the process.
type MemoryBucket struct {
	name    string
	entries map[string]any
	mu      sync.RWMutex
}

// NewMemoryBucket creates a new in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		entries: make(map[string]any),
	}
}

func (b *MemoryBucket) Name() string       { return b.name }
func (b *MemoryBucket) IsPersistent() bool { return false }

func (b *MemoryBucket) Store(_ context.Context, key string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = value
	return nil
}

func (b *MemoryBucket) Get(_ context.Context, key string) (any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[key], nil
}

func (b *MemoryBucket) Exists(_ context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[key]
	return ok, nil
}

func (b *MemoryBucket) Delete(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[key]
	delete(b.entries, key)
	return ok, nil
}

func (b *MemoryBucket) Keys(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func (b *MemoryBucket) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]any)
	return nil
}
