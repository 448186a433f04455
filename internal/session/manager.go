package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/polyview/internal/logging"
	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/wizard"
	"github.com/google/uuid"
)

var (
	ErrUnknownMapping = errors.New("unknown mapping")
	ErrEmptyName      = errors.New("player name is empty")
)

// PrefStore запоминает выбранный игроком маппинг между подключениями
type PrefStore interface {
	SaveMapping(ctx context.Context, player, mapping string) error
	LoadMapping(ctx context.Context, player string) (string, bool, error)
}

// Mappings - набор маппингов, из которых игрок выбирает свой
type Mappings interface {
	Get(name string) (*polymap.Map, bool)
	Default() *polymap.Map
}

// Manager хранит подключённых игроков. Безопасен для конкурентного использования.
type Manager struct {
	mu        sync.RWMutex
	players   map[uuid.UUID]*Player
	mappings  Mappings
	prefs     PrefStore
	queueSize int
}

// NewManager создаёт менеджер; prefs может быть nil
func NewManager(mappings Mappings, prefs PrefStore, queueSize int) *Manager {
	return &Manager{
		players:   make(map[uuid.UUID]*Player),
		mappings:  mappings,
		prefs:     prefs,
		queueSize: queueSize,
	}
}

// Join подключает игрока. Пустой mappingName означает сохранённый выбор игрока
// или маппинг по умолчанию.
func (m *Manager) Join(ctx context.Context, name, mappingName string) (*Player, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	if mappingName == "" && m.prefs != nil {
		saved, ok, err := m.prefs.LoadMapping(ctx, name)
		if err != nil {
			logging.Warn("⚠️ Не удалось загрузить маппинг игрока %s: %v", name, err)
		} else if ok {
			mappingName = saved
		}
	}

	mapping := m.mappings.Default()
	if mappingName != "" {
		var ok bool
		mapping, ok = m.mappings.Get(mappingName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMapping, mappingName)
		}
	}

	p := NewPlayer(name, mapping, m.queueSize)
	m.mu.Lock()
	m.players[p.ID()] = p
	m.mu.Unlock()

	if m.prefs != nil {
		if err := m.prefs.SaveMapping(ctx, name, mapping.Name()); err != nil {
			logging.Warn("⚠️ Не удалось сохранить маппинг игрока %s: %v", name, err)
		}
	}

	logging.Info("👤 Игрок %s (%s) подключился с маппингом %s", name, p.ID(), mapping.Name())
	return p, nil
}

// Leave отключает игрока
func (m *Manager) Leave(id uuid.UUID) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[id]
	if !ok {
		return nil, false
	}
	delete(m.players, id)
	logging.Info("👋 Игрок %s (%s) отключился", p.Name(), id)
	return p, true
}

// Get возвращает игрока по ID
func (m *Manager) Get(id uuid.UUID) (*Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[id]
	return p, ok
}

// List возвращает игроков, упорядоченных по времени входа
func (m *Manager) List() []*Player {
	m.mu.RLock()
	out := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt().Before(out[j].JoinedAt()) })
	return out
}

// Len возвращает количество подключённых игроков
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players)
}

// MapOf возвращает маппинг зрителя. Неизвестному зрителю - nil: визардов он не видит.
func (m *Manager) MapOf(v wizard.Viewer) polymap.PolyMap {
	if p, ok := v.(*Player); ok {
		return p.Mapping()
	}
	if p, ok := m.Get(v.ID()); ok {
		return p.Mapping()
	}
	return nil
}
