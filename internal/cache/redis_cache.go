package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/mca-tools/internal/logging"
)

// scanBatch число ключей за один SCAN при удалении по префиксу
const scanBatch = 256

// RedisCache реализует CacheRepo поверх Redis. Несколько серверов над одной
// копией мира могут делить представления чанков.
type RedisCache struct {
	client *redis.Client
	config *CacheConfig
	stats  stats
	log    *logging.Logger
}

// NewRedisCache создаёт Redis кеш и проверяет соединение.
func NewRedisCache(config *CacheConfig) (*RedisCache, error) {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 30 * time.Second
	}
	if config.MaxTTL == 0 {
		config.MaxTTL = 1 * time.Hour
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		PoolSize:     config.MaxConnections,
		PoolTimeout:  config.PoolTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log := logging.GetComponentLogger("cache")
	log.Info("Redis cache initialized: %s", config.RedisURL)
	return &RedisCache{client: rdb, config: config, log: log}, nil
}

// Get получает значение по ключу из Redis.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer r.stats.recordLatency(start)

	val, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		r.stats.hit()
		return val, nil
	}

	r.stats.miss()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	r.log.Error("Redis Get error for key %s: %v", key, err)
	return nil, fmt.Errorf("redis get error: %w", err)
}

// Set сохраняет значение, TTL ограничен MaxTTL.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer r.stats.recordLatency(start)

	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}
	if ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.log.Error("Redis Set error for key %s: %v", key, err)
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete удаляет ключи.
func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	defer r.stats.recordLatency(start)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.Error("Redis Delete error for keys %v: %v", keys, err)
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// DeletePrefix находит ключи через SCAN и удаляет их пачками.
func (r *RedisCache) DeletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan error: %w", err)
		}
		if err := r.Delete(ctx, keys...); err != nil {
			return err
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close закрывает соединение с Redis.
func (r *RedisCache) Close() error {
	if err := r.client.Close(); err != nil {
		r.log.Error("Error closing Redis connection: %v", err)
		return err
	}
	r.log.Info("Redis cache closed")
	return nil
}

// GetMetrics возвращает текущие метрики кеша.
func (r *RedisCache) GetMetrics() *CacheMetrics {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	keys, err := r.client.DBSize(ctx).Result()
	if err != nil {
		keys = -1
	}
	return r.stats.snapshot(keys)
}

// New выбирает реализацию по конфигурации: Redis при заданном RedisURL, иначе память.
func New(config *CacheConfig) (CacheRepo, error) {
	if config == nil || config.RedisURL == "" {
		var ttl time.Duration
		if config != nil {
			ttl = config.DefaultTTL
		}
		return NewMemoryCache(ttl), nil
	}
	return NewRedisCache(config)
}
