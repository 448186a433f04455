// Package wizard описывает визардов - объекты поведения, которые отображают
// подменённый блок конкретной позиции для клиентов одного маппинга.
package wizard

import (
	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/google/uuid"
)

// Viewer - подключённый клиент, которому визард показывает своё поведение
type Viewer interface {
	ID() uuid.UUID
	SendWizardUpdate(u Update)
}

// WorldView - то, что визард видит из мира, к которому привязан
type WorldView interface {
	Name() string
	StateAt(pos vec.Vec3) block.StateID
	CurrentTick() uint64
}

// Info - данные размещения, передаваемые фабрике визарда
type Info struct {
	Pos   vec.Vec3
	World WorldView
}

// Wizard - поведение одной позиции для одного маппинга.
//
// Жизненный цикл: создан → виден набору игроков → снят (OnRemove, терминально).
// После OnRemove никакие операции над экземпляром недопустимы; реализации
// должны быть указателями (визарды используются как ключи карт).
type Wizard interface {
	Pos() vec.Vec3
	AddPlayer(v Viewer)
	RemovePlayer(v Viewer)
	RemoveAllPlayers()
	// OnTick вызывается раз в серверный тик и не должен блокироваться
	OnTick(tick uint64)
	// OnRemove - явный сигнал снятия, срабатывает не более одного раза
	OnRemove()
	Removed() bool
}

// Factory создаёт визарда для позиции
type Factory func(info Info) Wizard

// TickRegistry - коллаборатор, который раз в тик вызывает OnTick у визардов
type TickRegistry interface {
	Add(w Wizard)
	Remove(w Wizard)
}

// UpdateKind - тип обновления, отправляемого клиенту
type UpdateKind uint8

const (
	UpdateSpawn   UpdateKind = iota // показать сущность отображения
	UpdateDespawn                   // убрать сущность отображения
	UpdateAnimate                   // кадр анимации
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateSpawn:
		return "spawn"
	case UpdateDespawn:
		return "despawn"
	case UpdateAnimate:
		return "animate"
	default:
		return "unknown"
	}
}

// Update - обновление визарда для одного клиента.
// Кодирование в пакеты протокола выполняется снаружи.
type Update struct {
	Kind     UpdateKind
	EntityID int32
	Pos      vec.Vec3
	Client   block.StateID
	Frame    int
	Tick     uint64
}
