package world

import (
	"github.com/annel0/polyview/internal/palette"
	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/world/block"
)

// Section - секция чанка 16x16x16 с палитрой состояний
type Section struct {
	Y      int
	Blocks *palette.Container
	nonAir int
}

// NewSection создаёт секцию, заполненную воздухом
func NewSection(y int, globalSize int) *Section {
	return &Section{
		Y:      y,
		Blocks: palette.NewContainer(vec.SectionVolume, block.AirState, globalSize),
	}
}

// SectionOf оборачивает готовый контейнер (например, загруженный из хранилища).
// Данные контейнера не проверяются: повреждения обнаружит сканер.
func SectionOf(y int, blocks *palette.Container) *Section {
	s := &Section{Y: y, Blocks: blocks}
	s.recount()
	return s
}

// recount пересчитывает непустые ячейки. Индексы вне палитры читаются как воздух.
func (s *Section) recount() {
	p := s.Blocks.Palette()
	s.nonAir = 0
	s.Blocks.Storage().ForEach(func(_, value int) {
		if id, ok := p.Get(value); ok && !block.IsAir(id) {
			s.nonAir++
		}
	})
}

// IsEmpty сообщает, что в секции только воздух
func (s *Section) IsEmpty() bool { return s.nonAir == 0 }

// NonAir возвращает количество непустых ячеек
func (s *Section) NonAir() int { return s.nonAir }

// Get возвращает состояние ячейки по локальному индексу
func (s *Section) Get(index int) block.StateID {
	return s.Blocks.Get(index)
}

// Set записывает состояние ячейки и возвращает предыдущее
func (s *Section) Set(index int, id block.StateID) (block.StateID, error) {
	prev, err := s.Blocks.Set(index, id)
	if err != nil {
		return prev, err
	}
	if block.IsAir(prev) && !block.IsAir(id) {
		s.nonAir++
	} else if !block.IsAir(prev) && block.IsAir(id) {
		s.nonAir--
	}
	return prev, nil
}
