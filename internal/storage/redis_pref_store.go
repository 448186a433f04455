package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/polyview/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записи, 0 - без ограничения
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "polyview:pref:",
		TTL:       30 * 24 * time.Hour,
	}
}

// RedisPrefStore хранит предпочтения в Redis
type RedisPrefStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisPrefStore подключается к Redis и проверяет соединение
func NewRedisPrefStore(ctx context.Context, config *RedisConfig) (*RedisPrefStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("✅ Подключено к Redis: %s", config.Addr)
	return newRedisPrefStore(client, config), nil
}

func newRedisPrefStore(client *redis.Client, config *RedisConfig) *RedisPrefStore {
	return &RedisPrefStore{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
	}
}

func (r *RedisPrefStore) key(player string) string {
	return r.keyPrefix + prefKey(player)
}

// SaveMapping запоминает маппинг игрока
func (r *RedisPrefStore) SaveMapping(ctx context.Context, player, mapping string) error {
	if err := validatePref(player, mapping); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(player), mapping, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", player, err)
	}
	return nil
}

// LoadMapping возвращает сохранённый маппинг
func (r *RedisPrefStore) LoadMapping(ctx context.Context, player string) (string, bool, error) {
	mapping, err := r.client.Get(ctx, r.key(player)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", player, err)
	}
	return mapping, true, nil
}

// Delete забывает выбор игрока
func (r *RedisPrefStore) Delete(ctx context.Context, player string) error {
	return r.client.Del(ctx, r.key(player)).Err()
}

// Close закрывает клиент
func (r *RedisPrefStore) Close() error {
	return r.client.Close()
}
