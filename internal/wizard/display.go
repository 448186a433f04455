package wizard

import (
	"sync/atomic"

	"github.com/annel0/polyview/internal/world/block"
)

// Счётчик ID клиентских сущностей отображения.
// Начинаем с большого значения, чтобы не пересекаться с ID настоящих сущностей.
var nextEntityID atomic.Int32

func init() {
	nextEntityID.Store(1 << 24)
}

// DisplayWizard показывает клиенту сущность отображения на месте блока,
// для которого у клиента нет собственной модели, и анимирует её раз в Interval тиков.
type DisplayWizard struct {
	Base
	entityID int32
	client   block.StateID
	interval uint64
	frame    int
}

// NewDisplayWizard создаёт визарда отображения.
// interval == 0 отключает анимацию.
func NewDisplayWizard(info Info, client block.StateID, interval uint64) *DisplayWizard {
	return &DisplayWizard{
		Base:     NewBase(info),
		entityID: nextEntityID.Add(1),
		client:   client,
		interval: interval,
	}
}

// DisplayFactory возвращает фабрику визардов отображения
func DisplayFactory(client block.StateID, interval uint64) Factory {
	return func(info Info) Wizard {
		return NewDisplayWizard(info, client, interval)
	}
}

// EntityID возвращает ID клиентской сущности отображения
func (w *DisplayWizard) EntityID() int32 { return w.entityID }

// Frame возвращает номер текущего кадра анимации
func (w *DisplayWizard) Frame() int { return w.frame }

func (w *DisplayWizard) AddPlayer(v Viewer) {
	if w.Track(v) {
		v.SendWizardUpdate(w.update(UpdateSpawn, 0))
	}
}

func (w *DisplayWizard) RemovePlayer(v Viewer) {
	if w.Untrack(v) {
		v.SendWizardUpdate(w.update(UpdateDespawn, 0))
	}
}

func (w *DisplayWizard) RemoveAllPlayers() {
	w.despawnAll()
	w.Base.RemoveAllPlayers()
}

func (w *DisplayWizard) OnTick(tick uint64) {
	if w.removed || w.interval == 0 || tick%w.interval != 0 {
		return
	}
	w.frame++
	for _, v := range w.viewers {
		v.SendWizardUpdate(w.update(UpdateAnimate, tick))
	}
}

func (w *DisplayWizard) OnRemove() {
	if w.removed {
		return
	}
	w.despawnAll()
	w.Base.OnRemove()
}

func (w *DisplayWizard) despawnAll() {
	for _, v := range w.viewers {
		v.SendWizardUpdate(w.update(UpdateDespawn, 0))
	}
}

func (w *DisplayWizard) update(kind UpdateKind, tick uint64) Update {
	return Update{
		Kind:     kind,
		EntityID: w.entityID,
		Pos:      w.info.Pos,
		Client:   w.client,
		Frame:    w.frame,
		Tick:     tick,
	}
}
