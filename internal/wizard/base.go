package wizard

import (
	"github.com/annel0/polyview/internal/vec"
	"github.com/google/uuid"
)

// Base реализует набор видимости и однократное снятие.
// Встраивается в конкретные визарды.
type Base struct {
	info    Info
	viewers map[uuid.UUID]Viewer
	removed bool
}

// NewBase создаёт базу визарда для позиции
func NewBase(info Info) Base {
	return Base{
		info:    info,
		viewers: make(map[uuid.UUID]Viewer),
	}
}

// Pos возвращает позицию, к которой привязан визард
func (b *Base) Pos() vec.Vec3 { return b.info.Pos }

// World возвращает мир, к которому привязан визард
func (b *Base) World() WorldView { return b.info.World }

// Removed сообщает, был ли визард снят
func (b *Base) Removed() bool { return b.removed }

// Track добавляет зрителя; false если он уже виден или визард снят
func (b *Base) Track(v Viewer) bool {
	if b.removed {
		return false
	}
	if _, exists := b.viewers[v.ID()]; exists {
		return false
	}
	b.viewers[v.ID()] = v
	return true
}

// Untrack убирает зрителя; false если его не было
func (b *Base) Untrack(v Viewer) bool {
	if _, exists := b.viewers[v.ID()]; !exists {
		return false
	}
	delete(b.viewers, v.ID())
	return true
}

// HasViewer проверяет, виден ли визард игроку
func (b *Base) HasViewer(id uuid.UUID) bool {
	_, exists := b.viewers[id]
	return exists
}

// ViewerCount возвращает количество зрителей
func (b *Base) ViewerCount() int { return len(b.viewers) }

// Viewers возвращает срез текущих зрителей
func (b *Base) Viewers() []Viewer {
	out := make([]Viewer, 0, len(b.viewers))
	for _, v := range b.viewers {
		out = append(out, v)
	}
	return out
}

func (b *Base) AddPlayer(v Viewer)    { b.Track(v) }
func (b *Base) RemovePlayer(v Viewer) { b.Untrack(v) }

func (b *Base) RemoveAllPlayers() {
	b.viewers = make(map[uuid.UUID]Viewer)
}

// OnTick по умолчанию ничего не делает
func (b *Base) OnTick(tick uint64) {}

// OnRemove помечает визарда снятым. Повторный вызов - no-op.
func (b *Base) OnRemove() {
	if b.removed {
		return
	}
	b.removed = true
	b.viewers = make(map[uuid.UUID]Viewer)
}
