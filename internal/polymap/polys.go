package polymap

import (
	"github.com/annel0/polyview/internal/wizard"
	"github.com/annel0/polyview/internal/world/block"
)

// Replacement подменяет блок другим состоянием без визарда.
// Если Clients содержит одно состояние, оно используется для всех вариантов,
// иначе вариант блока выбирает состояние по индексу.
type Replacement struct {
	Clients []block.StateID
}

// SimpleReplacement создаёт подмену на одно состояние
func SimpleReplacement(client block.StateID) *Replacement {
	return &Replacement{Clients: []block.StateID{client}}
}

func (p *Replacement) ClientState(state block.State) block.StateID {
	if len(p.Clients) == 0 {
		return state.ID
	}
	if len(p.Clients) == 1 || state.Variant >= len(p.Clients) {
		return p.Clients[0]
	}
	return p.Clients[state.Variant]
}

func (p *Replacement) HasWizard() bool { return false }

func (p *Replacement) CreateWizard(info wizard.Info) wizard.Wizard { return nil }

// WizardBlockPoly подменяет блок и создаёт визарда для каждой позиции
type WizardBlockPoly struct {
	Replacement
	Factory wizard.Factory
}

// NewWizardBlockPoly создаёт обработчик с визардом
func NewWizardBlockPoly(client block.StateID, factory wizard.Factory) *WizardBlockPoly {
	return &WizardBlockPoly{
		Replacement: Replacement{Clients: []block.StateID{client}},
		Factory:     factory,
	}
}

func (p *WizardBlockPoly) HasWizard() bool { return p.Factory != nil }

func (p *WizardBlockPoly) CreateWizard(info wizard.Info) wizard.Wizard {
	return p.Factory(info)
}
