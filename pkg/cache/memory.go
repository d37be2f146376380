package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time
}

func (it *memoryItem) expired() bool {
	return !it.expireAt.IsZero() && time.Now().After(it.expireAt)
}

// MemoryCache is an in-process Service implementation. It backs tests for
// anything that talks to the key-value store, with the same atomicity
// guarantees on SetIfAbsent as the Redis backend.
type MemoryCache struct {
	mu   sync.Mutex
	data map[string]*memoryItem
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]*memoryItem)}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.data[key] = newItem(data, expiration)
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, ok := mc.data[key]
	if ok && item.expired() {
		delete(mc.data, key)
		ok = false
	}
	mc.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}

	if strPtr, sok := dest.(*string); sok {
		*strPtr = string(item.value)
		return nil
	}
	return json.Unmarshal(item.value, dest)
}

func (mc *MemoryCache) SetIfAbsent(_ context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	data, err := encodeValue(value)
	if err != nil {
		return false, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if item, ok := mc.data[key]; ok && !item.expired() {
		return false, nil
	}
	mc.data[key] = newItem(data, expiration)
	return true, nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.data, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if item, ok := mc.data[key]; ok && !item.expired() {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) Expire(_ context.Context, key string, expiration time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.data[key]
	if !ok || item.expired() {
		return false, nil
	}
	item.expireAt = time.Now().Add(expiration)
	return true, nil
}

func (mc *MemoryCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return mc.SetIfAbsent(ctx, key, "locked", ttl)
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

func newItem(data []byte, expiration time.Duration) *memoryItem {
	item := &memoryItem{value: data}
	if expiration > 0 {
		item.expireAt = time.Now().Add(expiration)
	}
	return item
}

var _ Service = (*MemoryCache)(nil)
var _ Service = (*RedisCache)(nil)
