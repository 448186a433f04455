package palette

import (
	"github.com/annel0/polyview/internal/world/block"
)

// Palette - упорядоченный набор состояний, на который ссылаются ячейки хранилища
type Palette interface {
	// Len возвращает размер палитры
	Len() int
	// Get возвращает состояние по индексу палитры
	Get(i int) (block.StateID, bool)
	// IndexOf возвращает индекс состояния в палитре
	IndexOf(id block.StateID) (int, bool)
}

// Linear - явная палитра с линейным набором состояний
type Linear struct {
	values []block.StateID
	index  map[block.StateID]int
}

// NewLinear создаёт палитру из перечисленных состояний (порядок сохраняется)
func NewLinear(values ...block.StateID) *Linear {
	p := &Linear{
		values: make([]block.StateID, 0, len(values)),
		index:  make(map[block.StateID]int, len(values)),
	}
	for _, v := range values {
		p.Add(v)
	}
	return p
}

func (p *Linear) Len() int { return len(p.values) }

func (p *Linear) Get(i int) (block.StateID, bool) {
	if i < 0 || i >= len(p.values) {
		return 0, false
	}
	return p.values[i], true
}

func (p *Linear) IndexOf(id block.StateID) (int, bool) {
	i, ok := p.index[id]
	return i, ok
}

// Add добавляет состояние (если его ещё нет) и возвращает его индекс
func (p *Linear) Add(id block.StateID) int {
	if i, ok := p.index[id]; ok {
		return i
	}
	p.values = append(p.values, id)
	p.index[id] = len(p.values) - 1
	return len(p.values) - 1
}

// Values возвращает копию состояний палитры
func (p *Linear) Values() []block.StateID {
	out := make([]block.StateID, len(p.values))
	copy(out, p.values)
	return out
}

// Global - прямая палитра: индекс совпадает с глобальным ID состояния
type Global struct {
	Size int
}

func (p Global) Len() int { return p.Size }

func (p Global) Get(i int) (block.StateID, bool) {
	if i < 0 || i >= p.Size {
		return 0, false
	}
	return block.StateID(i), true
}

func (p Global) IndexOf(id block.StateID) (int, bool) {
	if int(id) >= p.Size {
		return 0, false
	}
	return int(id), true
}
