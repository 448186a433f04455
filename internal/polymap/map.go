package polymap

import (
	"github.com/annel0/polyview/internal/world/block"
)

// Map - стандартная неизменяемая реализация PolyMap.
// Удобнее всего собирается через Registry.
type Map struct {
	name         string
	blocks       *block.Registry
	polys        []BlockPoly // индекс - BlockID
	wizardBlocks int
	vanillaLike  bool
}

func (m *Map) Name() string { return m.name }

func (m *Map) IsVanillaLike() bool { return m.vanillaLike }

func (m *Map) HasBlockWizards() bool { return m.wizardBlocks > 0 }

func (m *Map) BlockPoly(id block.BlockID) BlockPoly {
	if int(id) >= len(m.polys) {
		return nil
	}
	return m.polys[id]
}

func (m *Map) HasWizardFor(id block.BlockID) bool {
	poly := m.BlockPoly(id)
	return poly != nil && poly.HasWizard()
}

// ClientState переводит серверное состояние; без обработчика состояние не меняется
func (m *Map) ClientState(id block.StateID) block.StateID {
	state, ok := m.blocks.State(id)
	if !ok {
		return id
	}
	poly := m.BlockPoly(state.Block)
	if poly == nil {
		return id
	}
	return poly.ClientState(state)
}

// Polys возвращает количество блоков с обработчиками
func (m *Map) Polys() int {
	n := 0
	for _, p := range m.polys {
		if p != nil {
			n++
		}
	}
	return n
}
