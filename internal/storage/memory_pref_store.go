package storage

import (
	"context"
	"sync"
)

// MemoryPrefStore хранит предпочтения в памяти.
// Используется по умолчанию и в тестах.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryPrefStore struct {
	mu   sync.RWMutex
	data map[string]string // игрок -> маппинг
}

// NewMemoryPrefStore создает пустое хранилище
func NewMemoryPrefStore() *MemoryPrefStore {
	return &MemoryPrefStore{data: make(map[string]string)}
}

// SaveMapping запоминает маппинг игрока
func (r *MemoryPrefStore) SaveMapping(ctx context.Context, player, mapping string) error {
	if err := validatePref(player, mapping); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[prefKey(player)] = mapping
	return nil
}

// LoadMapping возвращает сохранённый маппинг; false - игрок ещё не выбирал
func (r *MemoryPrefStore) LoadMapping(ctx context.Context, player string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	mapping, ok := r.data[prefKey(player)]
	return mapping, ok, nil
}

// Delete забывает выбор игрока
func (r *MemoryPrefStore) Delete(ctx context.Context, player string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, prefKey(player))
	return nil
}

// Count возвращает количество записей (для отладки)
func (r *MemoryPrefStore) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Close ничего не делает
func (r *MemoryPrefStore) Close() error { return nil }
