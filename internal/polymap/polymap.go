// Package polymap содержит маппинги (PolyMap): неизменяемые таблицы, которые
// переводят серверные блоки в представления, понятные конкретному клиенту.
package polymap

import (
	"github.com/annel0/polyview/internal/wizard"
	"github.com/annel0/polyview/internal/world/block"
)

// BlockPoly - обработчик подмены одного серверного блока в рамках маппинга
type BlockPoly interface {
	// ClientState возвращает состояние, которое увидит клиент
	ClientState(state block.State) block.StateID
	// HasWizard сообщает, нужен ли блоку визард
	HasWizard() bool
	// CreateWizard создаёт визарда для позиции; вызывается только при HasWizard
	CreateWizard(info wizard.Info) wizard.Wizard
}

// PolyMap - маппинг клиента. Сравнивается по идентичности, не по значению.
// Реализации неизменяемы и безопасны для конкурентного чтения.
type PolyMap interface {
	Name() string
	// ClientState переводит серверное состояние в клиентское
	ClientState(id block.StateID) block.StateID
	// BlockPoly возвращает обработчик блока или nil
	BlockPoly(id block.BlockID) BlockPoly
	// HasBlockWizards - дешёвая проверка, есть ли у маппинга хоть один блок с визардом
	HasBlockWizards() bool
	// HasWizardFor сообщает, нужен ли визард блоку id
	HasWizardFor(id block.BlockID) bool
	// IsVanillaLike - маппинг для клиентов без модов
	IsVanillaLike() bool
}

// WizardPoly возвращает обработчик блока, только если ему нужен визард.
// Неизвестные маппингу блоки - не ошибка, а отсутствие подмены.
func WizardPoly(m PolyMap, id block.BlockID) BlockPoly {
	poly := m.BlockPoly(id)
	if poly == nil || !poly.HasWizard() {
		return nil
	}
	return poly
}
