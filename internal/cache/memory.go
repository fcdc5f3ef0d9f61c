package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the in-memory cache
const DefaultMaxEntries = 256

// MemoryCache implements an in-memory cache with TTL support. Expired
// entries are dropped on access; when full, the least recently used entry
// is evicted.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	maxSize int
	now     func() time.Time
}

type memoryItem struct {
	value      []byte
	expiration time.Time
	accessed   time.Time
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	return &MemoryCache{
		items:   make(map[string]*memoryItem),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get retrieves a value from memory cache
func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.items[key]
	if !ok {
		return nil, false, nil
	}
	now := mc.now()
	if !item.expiration.IsZero() && now.After(item.expiration) {
		delete(mc.items, key)
		return nil, false, nil
	}
	item.accessed = now
	return slices.Clone(item.value), true, nil
}

// Set stores a copy of value
func (mc *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	if _, exists := mc.items[key]; !exists && len(mc.items) >= mc.maxSize {
		mc.evictOldest()
	}

	item := &memoryItem{value: slices.Clone(value), accessed: now}
	if ttl > 0 {
		item.expiration = now.Add(ttl)
	}
	mc.items[key] = item
	return nil
}

// Delete removes a key
func (mc *MemoryCache) Delete(_ context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.items, key)
	return nil
}

// Len returns the number of stored entries, expired ones included
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.items)
}

// Close drops every entry
func (mc *MemoryCache) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.items = make(map[string]*memoryItem)
	return nil
}

func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, item := range mc.items {
		if oldestKey == "" || item.accessed.Before(oldest) {
			oldestKey, oldest = k, item.accessed
		}
	}
	delete(mc.items, oldestKey)
}
