package world

import (
	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/wizard"
	"github.com/annel0/polyview/internal/world/block"
)

// ChunkListener получает события чанка синхронно, в потоке мира
type ChunkListener interface {
	// OnBlockSet вызывается после изменения состояния ячейки
	OnBlockSet(pos vec.Vec3, state block.StateID, moved bool)
	// OnPlayerJoin вызывается, когда чанк становится виден игроку
	OnPlayerJoin(p wizard.Viewer)
	// OnPlayerLeave вызывается, когда игрок перестаёт видеть чанк
	OnPlayerLeave(p wizard.Viewer)
	// OnDiscard вызывается при выгрузке чанка, до того как он станет недоступен
	OnDiscard()
}

// MapResolver возвращает текущий маппинг игрока
type MapResolver interface {
	MapOf(v wizard.Viewer) polymap.PolyMap
}

// MapResolverFunc адаптирует функцию к MapResolver
type MapResolverFunc func(v wizard.Viewer) polymap.PolyMap

func (f MapResolverFunc) MapOf(v wizard.Viewer) polymap.PolyMap { return f(v) }
