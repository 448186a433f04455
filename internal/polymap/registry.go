package polymap

import (
	"errors"
	"fmt"

	"github.com/annel0/polyview/internal/world/block"
)

var (
	ErrRegistryBuilt = errors.New("poly registry already built")
	ErrDuplicatePoly = errors.New("block already has a poly")
)

// Registry собирает Map. После Build изменения запрещены.
type Registry struct {
	name        string
	blocks      *block.Registry
	polys       map[block.BlockID]BlockPoly
	vanillaLike bool
	built       bool
}

// NewRegistry создаёт построитель маппинга
func NewRegistry(name string, blocks *block.Registry) *Registry {
	return &Registry{
		name:        name,
		blocks:      blocks,
		polys:       make(map[block.BlockID]BlockPoly),
		vanillaLike: true,
	}
}

// SetVanillaLike помечает, рассчитан ли маппинг на клиента без модов
func (r *Registry) SetVanillaLike(v bool) { r.vanillaLike = v }

// RegisterBlockPoly назначает обработчик блоку
func (r *Registry) RegisterBlockPoly(id block.BlockID, poly BlockPoly) error {
	if r.built {
		return ErrRegistryBuilt
	}
	if _, ok := r.blocks.Block(id); !ok {
		return fmt.Errorf("%w: %d", block.ErrUnknownBlock, id)
	}
	if _, exists := r.polys[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicatePoly, id)
	}
	r.polys[id] = poly
	return nil
}

// HasBlockPoly проверяет, назначен ли блоку обработчик
func (r *Registry) HasBlockPoly(id block.BlockID) bool {
	_, exists := r.polys[id]
	return exists
}

// Build создаёт неизменяемый маппинг
func (r *Registry) Build() *Map {
	r.built = true

	m := &Map{
		name:        r.name,
		blocks:      r.blocks,
		polys:       make([]BlockPoly, len(r.blocks.Blocks())),
		vanillaLike: r.vanillaLike,
	}
	for id, poly := range r.polys {
		m.polys[id] = poly
		if poly.HasWizard() {
			m.wizardBlocks++
		}
	}
	return m
}

// Native возвращает пустой маппинг для клиентов, у которых есть все моды
func Native(blocks *block.Registry) *Map {
	r := NewRegistry("native", blocks)
	r.SetVanillaLike(false)
	return r.Build()
}
