package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/polyview/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки Redis кеша
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	PoolSize  int
}

// RedisCache - кеш, общий для узлов, поверх Redis
type RedisCache struct {
	client *redis.Client
	prefix string
	counters
}

// NewRedisCache подключается к Redis и проверяет соединение
func NewRedisCache(ctx context.Context, config RedisConfig) (*RedisCache, error) {
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "polyview:cache:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("Redis cache initialized: %s", config.Addr)
	return newRedisCache(rdb, config.KeyPrefix), nil
}

func newRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.miss()
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	r.hit()
	return val, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) Metrics() Metrics { return r.snapshot() }
