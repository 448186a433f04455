package cache

import (
	"context"
	"time"

	"github.com/annel0/polyview/internal/logging"
)

// PrefBackend - постоянное хранилище маппингов игроков
type PrefBackend interface {
	SaveMapping(ctx context.Context, player, mapping string) error
	LoadMapping(ctx context.Context, player string) (string, bool, error)
	Close() error
}

// PrefCache - read-through кеш маппингов игроков перед постоянным хранилищем.
// При сохранении ключ обновляется локально, а другим узлам рассылается инвалидация.
type PrefCache struct {
	cold PrefBackend
	hot  Cache
	inv  Invalidator // может быть nil
	ttl  time.Duration

	cancel context.CancelFunc
}

// NewPrefCache оборачивает cold кешем hot. inv может быть nil (один узел).
func NewPrefCache(cold PrefBackend, hot Cache, inv Invalidator, ttl time.Duration) (*PrefCache, error) {
	p := &PrefCache{cold: cold, hot: hot, inv: inv, ttl: ttl, cancel: func() {}}
	if inv != nil {
		ctx, cancel := context.WithCancel(context.Background())
		if err := inv.Subscribe(ctx, p.invalidate); err != nil {
			cancel()
			return nil, err
		}
		p.cancel = cancel
	}
	return p, nil
}

func prefCacheKey(player string) string { return "pref:" + player }

func (p *PrefCache) invalidate(key string) error {
	return p.hot.Delete(context.Background(), key)
}

// SaveMapping пишет в постоянное хранилище, затем обновляет кеш
func (p *PrefCache) SaveMapping(ctx context.Context, player, mapping string) error {
	if err := p.cold.SaveMapping(ctx, player, mapping); err != nil {
		return err
	}
	key := prefCacheKey(player)
	if err := p.hot.Set(ctx, key, []byte(mapping), p.ttl); err != nil {
		logging.Warn("⚠️ Кеш маппингов: запись %s: %v", key, err)
	}
	if p.inv != nil {
		if err := p.inv.Publish(ctx, key); err != nil {
			logging.Warn("⚠️ Кеш маппингов: инвалидация %s: %v", key, err)
		}
	}
	return nil
}

// LoadMapping читает из кеша, при промахе - из постоянного хранилища
func (p *PrefCache) LoadMapping(ctx context.Context, player string) (string, bool, error) {
	key := prefCacheKey(player)
	if val, err := p.hot.Get(ctx, key); err == nil {
		return string(val), true, nil
	} else if !IsCacheMiss(err) {
		logging.Warn("⚠️ Кеш маппингов: чтение %s: %v", key, err)
	}

	mapping, ok, err := p.cold.LoadMapping(ctx, player)
	if err != nil || !ok {
		return mapping, ok, err
	}
	if err := p.hot.Set(ctx, key, []byte(mapping), p.ttl); err != nil {
		logging.Warn("⚠️ Кеш маппингов: запись %s: %v", key, err)
	}
	return mapping, true, nil
}

// Metrics возвращает счётчики горячего уровня
func (p *PrefCache) Metrics() Metrics { return p.hot.Metrics() }

// Stats - счётчики кеша и, если invalidator их отдаёт, рассылки инвалидаций
func (p *PrefCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{"cache": p.hot.Metrics()}
	if s, ok := p.inv.(interface{ Stats() map[string]interface{} }); ok {
		stats["invalidation"] = s.Stats()
	}
	return stats
}

// Close закрывает invalidator, кеш и хранилище
func (p *PrefCache) Close() error {
	p.cancel()
	var firstErr error
	if p.inv != nil {
		firstErr = p.inv.Close()
	}
	if err := p.hot.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.cold.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
