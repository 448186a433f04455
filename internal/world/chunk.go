package world

import (
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/wizard"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/google/uuid"
)

var (
	ErrOutOfBounds    = errors.New("position is outside of the world height")
	ErrChunkDiscarded = errors.New("chunk is discarded")
)

// Chunk - столб секций 16 блоков в ширину.
// Не потокобезопасен: все вызовы идут из потока мира.
type Chunk struct {
	pos        vec.ChunkPos
	world      wizard.WorldView
	minY, maxY int // диапазон номеров секций включительно
	globalSize int

	sections  map[int]*Section
	players   map[uuid.UUID]wizard.Viewer
	listeners []ChunkListener
	wizards   *WizardCache
	discarded bool
}

// NewChunk создаёт пустой чанк с секциями в диапазоне [minY, maxY]
func NewChunk(pos vec.ChunkPos, world wizard.WorldView, minY, maxY, globalSize int) *Chunk {
	return &Chunk{
		pos:        pos,
		world:      world,
		minY:       minY,
		maxY:       maxY,
		globalSize: globalSize,
		sections:   make(map[int]*Section),
		players:    make(map[uuid.UUID]wizard.Viewer),
	}
}

// Pos возвращает координаты чанка
func (c *Chunk) Pos() vec.ChunkPos { return c.pos }

// World возвращает мир, которому принадлежит чанк
func (c *Chunk) World() wizard.WorldView { return c.world }

// Discarded сообщает, что чанк выгружен
func (c *Chunk) Discarded() bool { return c.discarded }

// AddListener подписывает слушателя на события чанка
func (c *Chunk) AddListener(l ChunkListener) {
	c.listeners = append(c.listeners, l)
}

// AttachWizards создаёт кеш визардов чанка и подписывает его на события
func (c *Chunk) AttachWizards(cfg CacheConfig) *WizardCache {
	c.wizards = NewWizardCache(c, cfg)
	c.AddListener(c.wizards)
	return c.wizards
}

// Wizards возвращает кеш визардов или nil, если он не подключён
func (c *Chunk) Wizards() *WizardCache { return c.wizards }

// SetSection устанавливает секцию (при загрузке и генерации)
func (c *Chunk) SetSection(s *Section) error {
	if s.Y < c.minY || s.Y > c.maxY {
		return fmt.Errorf("%w: секция %d вне [%d, %d]", ErrOutOfBounds, s.Y, c.minY, c.maxY)
	}
	c.sections[s.Y] = s
	return nil
}

// SectionAt возвращает секцию по номеру или nil
func (c *Chunk) SectionAt(y int) *Section {
	return c.sections[y]
}

// Sections возвращает секции по возрастанию Y
func (c *Chunk) Sections() []*Section {
	out := make([]*Section, 0, len(c.sections))
	for _, s := range c.sections {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Y < out[j].Y })
	return out
}

// Contains проверяет, что позиция принадлежит чанку
func (c *Chunk) Contains(pos vec.Vec3) bool {
	return pos.ChunkPos() == c.pos
}

// Bounds возвращает диапазон высот чанка в блоках, включительно
func (c *Chunk) Bounds() (minY, maxY int) {
	return c.minY * vec.SectionSize, (c.maxY+1)*vec.SectionSize - 1
}

// StateAt возвращает состояние блока; вне секций - воздух
func (c *Chunk) StateAt(pos vec.Vec3) block.StateID {
	s := c.sections[pos.SectionY()]
	if s == nil {
		return block.AirState
	}
	return s.Get(pos.SectionIndex())
}

// CheckWritable проверяет, что в pos можно записать блок
func (c *Chunk) CheckWritable(pos vec.Vec3) error {
	if c.discarded {
		return ErrChunkDiscarded
	}
	if !c.Contains(pos) {
		return fmt.Errorf("%w: %v не в чанке %v", ErrOutOfBounds, pos, c.pos)
	}
	if y := pos.SectionY(); y < c.minY || y > c.maxY {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, pos)
	}
	return nil
}

// SetBlockState меняет состояние ячейки и оповещает слушателей.
// moved == true означает, что блок переносится, а не ломается.
func (c *Chunk) SetBlockState(pos vec.Vec3, state block.StateID, moved bool) (block.StateID, error) {
	if err := c.CheckWritable(pos); err != nil {
		return block.AirState, err
	}
	y := pos.SectionY()

	s := c.sections[y]
	if s == nil {
		if block.IsAir(state) {
			return block.AirState, nil
		}
		s = NewSection(y, c.globalSize)
		c.sections[y] = s
	}

	prev, err := s.Set(pos.SectionIndex(), state)
	if err != nil {
		return prev, err
	}
	if prev == state {
		return prev, nil
	}

	for _, l := range c.listeners {
		l.OnBlockSet(pos, state, moved)
	}
	return prev, nil
}

// AddPlayer делает чанк видимым игроку
func (c *Chunk) AddPlayer(p wizard.Viewer) {
	if c.discarded {
		return
	}
	if _, exists := c.players[p.ID()]; exists {
		return
	}
	c.players[p.ID()] = p
	for _, l := range c.listeners {
		l.OnPlayerJoin(p)
	}
}

// RemovePlayer убирает игрока из наблюдателей чанка
func (c *Chunk) RemovePlayer(p wizard.Viewer) {
	if _, exists := c.players[p.ID()]; !exists {
		return
	}
	delete(c.players, p.ID())
	for _, l := range c.listeners {
		l.OnPlayerLeave(p)
	}
}

// HasPlayer проверяет, наблюдает ли игрок чанк
func (c *Chunk) HasPlayer(id uuid.UUID) bool {
	_, exists := c.players[id]
	return exists
}

// Players возвращает наблюдателей чанка
func (c *Chunk) Players() []wizard.Viewer {
	out := make([]wizard.Viewer, 0, len(c.players))
	for _, p := range c.players {
		out = append(out, p)
	}
	return out
}

// Discard выгружает чанк: слушатели получают OnDiscard синхронно,
// после чего чанк не принимает изменений. Повторный вызов - no-op.
func (c *Chunk) Discard() {
	if c.discarded {
		return
	}
	c.discarded = true
	for _, l := range c.listeners {
		l.OnDiscard()
	}
	c.players = make(map[uuid.UUID]wizard.Viewer)
}

// WizardsAt возвращает визардов позиции по маппингам
func (c *Chunk) WizardsAt(pos vec.Vec3) map[polymap.PolyMap]wizard.Wizard {
	if c.wizards == nil {
		return nil
	}
	return c.wizards.WizardsAt(pos)
}

// RemoveWizardsAt снимает визардов позиции и возвращает их
func (c *Chunk) RemoveWizardsAt(pos vec.Vec3, move bool) map[polymap.PolyMap]wizard.Wizard {
	if c.wizards == nil {
		return nil
	}
	return c.wizards.RemoveWizardsAt(pos, move)
}
