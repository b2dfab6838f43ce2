// Package cycling remembers, per light, which program of a cycling list was activated last.
package cycling

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"unicode/utf16"

	"github.com/dokzlo13/lightcycle/internal/storage/kv"
)

// MapKey is the bucket key holding the whole light → index mapping.
const MapKey = "lights_program_index_map"

// LightKey hashes a switch item name into the key used for cycling lookups.
// It is the 31-multiplier string hash over UTF-16 code units with 32-bit wraparound,
// so keys stay stable across hosts that share a store.
func LightKey(switchItem string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(switchItem)) {
		h = 31*h + int32(u)
	}
	return h
}

// Store persists cycling positions in a kv bucket.
type Store struct {
	bucket kv.Bucket

	mu    sync.Mutex
	locks map[int32]*sync.Mutex

	// guards the whole-map read-modify-write in Put
	writeMu sync.Mutex
}

// NewStore creates a store on top of bucket.
func NewStore(bucket kv.Bucket) *Store {
	return &Store{
		bucket: bucket,
		locks:  make(map[int32]*sync.Mutex),
	}
}

// Lock serializes read-modify-write sequences for one light. Call the returned func to release.
func (s *Store) Lock(key int32) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Ensure creates an empty mapping if none is stored yet.
func (s *Store) Ensure(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ok, err := s.bucket.Exists(ctx, MapKey)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.bucket.Store(ctx, MapKey, map[string]int{})
}

// Get returns the last index activated for key.
func (s *Store) Get(ctx context.Context, key int32) (int, bool, error) {
	m, err := s.load(ctx)
	if err != nil {
		return 0, false, err
	}
	idx, ok := m[strconv.FormatInt(int64(key), 10)]
	return idx, ok, nil
}

// Put records index as the last one activated for key.
func (s *Store) Put(ctx context.Context, key int32, index int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	m, err := s.load(ctx)
	if err != nil {
		return err
	}
	m[strconv.FormatInt(int64(key), 10)] = index
	if err := s.bucket.Store(ctx, MapKey, m); err != nil {
		return fmt.Errorf("failed to store cycling map: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the whole mapping.
func (s *Store) Snapshot(ctx context.Context) (map[string]int, error) {
	return s.load(ctx)
}

// Reset forgets all positions.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.bucket.Delete(ctx, MapKey)
	return err
}

// load reads the mapping, normalizing whatever shape the backend returned.
func (s *Store) load(ctx context.Context) (map[string]int, error) {
	raw, err := s.bucket.Get(ctx, MapKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load cycling map: %w", err)
	}

	out := make(map[string]int)
	switch m := raw.(type) {
	case nil:
	case map[string]int:
		for k, v := range m {
			out[k] = v
		}
	case map[string]any:
		for k, v := range m {
			if idx, ok := toInt(v); ok {
				out[k] = idx
			}
		}
	default:
		return nil, fmt.Errorf("unexpected cycling map type %T", raw)
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
