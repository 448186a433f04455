// Package cache - горячий уровень перед постоянными хранилищами: кеш в памяти
// узла или в Redis и рассылка инвалидаций между узлами через NATS.
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Cache - горячее хранилище байтовых значений с TTL.
//
// Использование:
//
//	c := NewMemoryCache(1 << 20)
//	err := c.Set(ctx, "key", data, 30*time.Second)
//	data, err := c.Get(ctx, "key")
type Cache interface {
	// Get возвращает ErrCacheMiss, если ключа нет
	Get(ctx context.Context, key string) ([]byte, error)
	// Set сохраняет значение; ttl == 0 означает отсутствие истечения
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
	Metrics() Metrics
}

// Invalidator рассылает и принимает уведомления об инвалидации ключей
type Invalidator interface {
	Publish(ctx context.Context, key string) error
	// Subscribe вызывает handler для инвалидаций других узлов до отмены ctx
	Subscribe(ctx context.Context, handler InvalidationHandler) error
	Close() error
}

// InvalidationHandler обрабатывает уведомление об инвалидации ключа
type InvalidationHandler func(key string) error

// ErrCacheMiss - ключа нет в кеше
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss проверяет, является ли ошибка промахом кеша
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Metrics - счётчики обращений к кешу
type Metrics struct {
	Requests int64   `json:"total_requests"`
	Hits     int64   `json:"cache_hits"`
	Misses   int64   `json:"cache_misses"`
	HitRatio float64 `json:"hit_ratio"`
}

type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) hit()  { c.hits.Add(1) }
func (c *counters) miss() { c.misses.Add(1) }

func (c *counters) snapshot() Metrics {
	m := Metrics{Hits: c.hits.Load(), Misses: c.misses.Load()}
	m.Requests = m.Hits + m.Misses
	if m.Requests > 0 {
		m.HitRatio = float64(m.Hits) / float64(m.Requests)
	}
	return m
}
