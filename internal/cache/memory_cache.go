package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memItem struct {
	value   []byte
	expires time.Time
}

// MemoryCache реализует CacheRepo в памяти процесса
type MemoryCache struct {
	mu         sync.RWMutex
	items      map[string]memItem
	defaultTTL time.Duration
	clock      func() time.Time
	closed     bool
	stats      stats
}

// NewMemoryCache создаёт кэш в памяти. defaultTTL <= 0 означает 30 секунд.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	return &MemoryCache{
		items:      make(map[string]memItem),
		defaultTTL: defaultTTL,
		clock:      time.Now,
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer m.stats.recordLatency(start)

	m.mu.RLock()
	item, ok := m.items[key]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return nil, ErrCacheClosed
	}
	if !ok || !m.clock().Before(item.expires) {
		m.stats.miss()
		return nil, ErrCacheMiss
	}
	m.stats.hit()
	return item.value, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrCacheClosed
	}
	m.items[key] = memItem{value: value, expires: m.clock().Add(ttl)}
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

func (m *MemoryCache) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

// Close очищает кэш, дальнейшие Get и Set возвращают ErrCacheClosed
func (m *MemoryCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]memItem)
	m.closed = true
	return nil
}

func (m *MemoryCache) GetMetrics() *CacheMetrics {
	m.mu.RLock()
	keys := int64(len(m.items))
	m.mu.RUnlock()
	return m.stats.snapshot(keys)
}
