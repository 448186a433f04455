// Package session хранит подключённых игроков и их маппинги.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/wizard"
	"github.com/google/uuid"
)

// DefaultQueueSize - размер очереди исходящих обновлений игрока
const DefaultQueueSize = 256

// Player - подключённый клиент. Реализует wizard.Viewer.
//
// Обновления визардов складываются в ограниченную очередь и забираются
// сетевым слоем через Drain; при переполнении новые обновления отбрасываются.
type Player struct {
	id       uuid.UUID
	name     string
	mapping  polymap.PolyMap
	joinedAt time.Time

	mu      sync.Mutex
	queue   []wizard.Update
	limit   int
	dropped atomic.Uint64
}

// NewPlayer создаёт игрока с новым ID
func NewPlayer(name string, mapping polymap.PolyMap, queueSize int) *Player {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Player{
		id:       uuid.New(),
		name:     name,
		mapping:  mapping,
		joinedAt: time.Now(),
		limit:    queueSize,
	}
}

func (p *Player) ID() uuid.UUID { return p.id }

func (p *Player) Name() string { return p.name }

// Mapping возвращает маппинг, с которым подключился игрок
func (p *Player) Mapping() polymap.PolyMap { return p.mapping }

func (p *Player) JoinedAt() time.Time { return p.joinedAt }

// SendWizardUpdate ставит обновление в очередь. Вызывается из потока мира и не блокирует.
func (p *Player) SendWizardUpdate(u wizard.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) >= p.limit {
		p.dropped.Add(1)
		return
	}
	p.queue = append(p.queue, u)
}

// Drain забирает накопленные обновления
func (p *Player) Drain() []wizard.Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.queue
	p.queue = nil
	return out
}

// Pending возвращает количество обновлений в очереди
func (p *Player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Dropped возвращает количество отброшенных обновлений
func (p *Player) Dropped() uint64 { return p.dropped.Load() }
