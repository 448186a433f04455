package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// MemoryCache - кеш в памяти узла на ristretto. Стоимость записи - длина значения.
type MemoryCache struct {
	cache *ristretto.Cache
	counters
}

// NewMemoryCache создаёт кеш с ограничением maxBytes на суммарный размер значений
func NewMemoryCache(maxBytes int64) (*MemoryCache, error) {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxBytes / 8,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{cache: c}, nil
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		m.miss()
		return nil, ErrCacheMiss
	}
	m.hit()
	return v.([]byte), nil
}

// Set дожидается применения записи, чтобы следующий Get её видел
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.cache.SetWithTTL(key, value, int64(len(value))+int64(len(key)), ttl)
	m.cache.Wait()
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.cache.Del(key)
	return nil
}

func (m *MemoryCache) Close() error {
	m.cache.Close()
	return nil
}

func (m *MemoryCache) Metrics() Metrics { return m.snapshot() }
