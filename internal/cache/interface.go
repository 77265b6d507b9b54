package cache

import (
	"context"
	"fmt"
	"time"
)

// CacheRepo кэш готовых представлений мира (JSON-ответы по чанкам).
//
// Использование:
//
//	cache := NewMemoryCache(30 * time.Second)
//	data, err := cache.Get(ctx, ChunkViewKey(1, 2, ""))
//	err = cache.Set(ctx, ChunkViewKey(1, 2, ""), data, 0)
//	err = cache.DeletePrefix(ctx, ChunkViewPrefix(1, 2))
type CacheRepo interface {
	// Get получает значение по ключу.
	// Возвращает ErrCacheMiss если ключ не найден или истёк.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение с указанным TTL.
	// TTL = 0 означает TTL по умолчанию.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключи.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix удаляет все ключи с префиксом.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close освобождает ресурсы.
	Close() error

	// GetMetrics возвращает метрики кеша.
	GetMetrics() *CacheMetrics
}

// ChunkViewPrefix префикс всех представлений чанка (x, z)
func ChunkViewPrefix(x, z int) string {
	return fmt.Sprintf("view:chunk:%d:%d:", x, z)
}

// ChunkViewKey ключ представления чанка (x, z) по пути тега, "" для всего дерева
func ChunkViewKey(x, z int, path string) string {
	return ChunkViewPrefix(x, z) + path
}

// CacheMetrics содержит метрики производительности кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	TotalKeys int64 `json:"total_keys"`

	LastUpdate time.Time `json:"last_update"`
}

// CacheConfig содержит конфигурацию для кеша. Пустой RedisURL означает кэш в памяти.
type CacheConfig struct {
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	DefaultTTL time.Duration `yaml:"default_ttl"`
	MaxTTL     time.Duration `yaml:"max_ttl"`

	MaxConnections int           `yaml:"max_connections"`
	PoolTimeout    time.Duration `yaml:"pool_timeout"`
}

// Ошибки кеша
var (
	ErrCacheMiss   = NewCacheError("cache miss")
	ErrCacheClosed = NewCacheError("cache closed")
)

// CacheError представляет ошибку кеша.
type CacheError struct {
	Message string
}

func (e *CacheError) Error() string {
	return e.Message
}

// NewCacheError создаёт новую ошибку кеша.
func NewCacheError(message string) *CacheError {
	return &CacheError{Message: message}
}

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return err == ErrCacheMiss
}
