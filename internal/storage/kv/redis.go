package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBucket stores a bucket as one Redis hash, so several hosts can share it.
type RedisBucket struct {
	client *redis.Client
	name   string
	key    string
}

// NewRedisBucket creates a bucket stored under the hash "<prefix><name>".
func NewRedisBucket(client *redis.Client, prefix, name string) *RedisBucket {
	return &RedisBucket{
		client: client,
		name:   name,
		key:    prefix + name,
	}
}

func (b *RedisBucket) Name() string       { return b.name }
func (b *RedisBucket) IsPersistent() bool { return true }

func (b *RedisBucket) Store(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := b.client.HSet(ctx, b.key, key, data).Err(); err != nil {
		return fmt.Errorf("failed to set hash field %s:%s: %w", b.key, key, err)
	}
	return nil
}

func (b *RedisBucket) Get(ctx context.Context, key string) (any, error) {
	raw, err := b.client.HGet(ctx, b.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hash field %s:%s: %w", b.key, key, err)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return value, nil
}

func (b *RedisBucket) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := b.client.HExists(ctx, b.key, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check hash field %s:%s: %w", b.key, key, err)
	}
	return ok, nil
}

func (b *RedisBucket) Delete(ctx context.Context, key string) (bool, error) {
	n, err := b.client.HDel(ctx, b.key, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete hash field %s:%s: %w", b.key, key, err)
	}
	return n > 0, nil
}

func (b *RedisBucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.client.HKeys(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list hash %s: %w", b.key, err)
	}
	return keys, nil
}

func (b *RedisBucket) Clear(ctx context.Context) error {
	if err := b.client.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("failed to delete hash %s: %w", b.key, err)
	}
	return nil
}
