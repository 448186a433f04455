package palette

import (
	"fmt"
	"math/bits"

	"github.com/annel0/polyview/internal/world/block"
)

const (
	// MinLinearBits - начальная ширина элемента линейной палитры
	MinLinearBits = 4
	// MaxLinearBits - после этой ширины контейнер переходит на глобальную палитру
	MaxLinearBits = 8
)

// Container связывает палитру и хранилище одной секции и умеет расширяться
// при добавлении новых состояний.
type Container struct {
	palette    Palette
	storage    Storage
	globalSize int
}

// NewContainer создаёт контейнер из size ячеек, заполненных состоянием fill.
// globalSize - количество глобальных состояний (для прямой палитры).
func NewContainer(size int, fill block.StateID, globalSize int) *Container {
	storage, _ := NewPackedStorage(MinLinearBits, size, nil)
	return &Container{
		palette:    NewLinear(fill),
		storage:    storage,
		globalSize: globalSize,
	}
}

// ContainerOf оборачивает уже готовые палитру и хранилище (например, загруженные с диска)
func ContainerOf(p Palette, s Storage, globalSize int) *Container {
	return &Container{palette: p, storage: s, globalSize: globalSize}
}

// Palette возвращает текущую палитру
func (c *Container) Palette() Palette { return c.palette }

// Storage возвращает текущее хранилище
func (c *Container) Storage() Storage { return c.storage }

// Len возвращает количество ячеек
func (c *Container) Len() int { return c.storage.Len() }

// Get возвращает состояние ячейки i. Индекс вне палитры читается как воздух.
func (c *Container) Get(i int) block.StateID {
	id, ok := c.palette.Get(c.storage.Get(i))
	if !ok {
		return block.AirState
	}
	return id
}

// Set записывает состояние ячейки i и возвращает предыдущее
func (c *Container) Set(i int, id block.StateID) (block.StateID, error) {
	prev := c.Get(i)

	idx, ok := c.palette.IndexOf(id)
	if !ok {
		var err error
		idx, err = c.add(id)
		if err != nil {
			return prev, err
		}
	}

	c.storage.Set(i, idx)
	return prev, nil
}

// add добавляет состояние в палитру, при необходимости перекодируя хранилище
func (c *Container) add(id block.StateID) (int, error) {
	linear, isLinear := c.palette.(*Linear)
	if !isLinear {
		return 0, fmt.Errorf("состояние %d вне глобальной палитры размера %d", id, c.globalSize)
	}

	packed, isPacked := c.storage.(*PackedStorage)
	if !isPacked || linear.Len() < 1<<packed.Bits() {
		return linear.Add(id), nil
	}

	newBits := packed.Bits() + 1
	if newBits > MaxLinearBits {
		if int(id) >= c.globalSize {
			return 0, fmt.Errorf("состояние %d вне глобальной палитры размера %d", id, c.globalSize)
		}
		c.regrow(Global{Size: c.globalSize}, globalBits(c.globalSize))
		return int(id), nil
	}

	grown := NewLinear(linear.Values()...)
	c.regrow(grown, newBits)
	return grown.Add(id), nil
}

// regrow перекодирует все ячейки в новую палитру с новой шириной элемента
func (c *Container) regrow(p Palette, width int) {
	storage, _ := NewPackedStorage(width, c.storage.Len(), nil)
	old := c.palette
	c.storage.ForEach(func(index, value int) {
		id, ok := old.Get(value)
		if !ok {
			id = block.AirState
		}
		idx, _ := p.IndexOf(id)
		storage.Set(index, idx)
	})
	c.palette = p
	c.storage = storage
}

func globalBits(size int) int {
	n := bits.Len(uint(size - 1))
	if n < 1 {
		n = 1
	}
	return n
}
