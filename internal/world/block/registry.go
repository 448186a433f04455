package block

import (
	"errors"
	"fmt"
	"math/bits"
)

// BlockID представляет идентификатор типа блока (идентичность блока)
type BlockID uint16

// StateID - глобальный идентификатор состояния блока.
// Именно эти значения хранятся в палитрах секций.
type StateID uint32

// Константы ID встроенных блоков
const (
	// Базовые типы блоков
	AirBlockID   BlockID = iota // 0
	StoneBlockID                // 1
	DirtBlockID                 // 2
	GrassBlockID                // 3
	WaterBlockID                // 4
	SandBlockID                 // 5

	// Модовые блоки, которым на клиенте нужна подмена
	GlowingOreBlockID // 6 - руда с эффектом свечения
	CrystalBlockID    // 7 - кристалл, 4 варианта роста
	LanternBlockID    // 8 - фонарь, 2 варианта (вкл/выкл)
)

// AirState - состояние воздуха, всегда имеет ID 0
const AirState StateID = 0

var (
	ErrUnknownBlock   = errors.New("unknown block")
	ErrDuplicateBlock = errors.New("block already registered")
	ErrRegistryFrozen = errors.New("block registry is frozen")
)

// Block описывает тип блока и диапазон его состояний
type Block struct {
	ID         BlockID
	Name       string
	Variants   int
	FirstState StateID
}

// State описывает одно конкретное состояние блока
type State struct {
	ID      StateID
	Block   BlockID
	Variant int
}

// StateResolver разрешает состояние в идентичность блока.
// Неизвестное состояние - не ошибка, а отсутствие блока (ok == false).
type StateResolver interface {
	BlockOf(id StateID) (BlockID, bool)
}

// Registry - неизменяемый после построения реестр блоков и их состояний.
// Безопасен для конкурентного чтения без блокировок.
type Registry struct {
	blocks []Block
	byName map[string]BlockID
	states []State
}

// Builder собирает Registry. Воздух регистрируется автоматически первым.
type Builder struct {
	reg    *Registry
	frozen bool
}

// NewBuilder создаёт построитель реестра
func NewBuilder() *Builder {
	b := &Builder{reg: &Registry{byName: make(map[string]BlockID)}}
	// Ошибка невозможна: реестр пуст
	_, _ = b.Register("minecraft:air", 1)
	return b
}

// Register добавляет блок с указанным количеством вариантов состояния
func (b *Builder) Register(name string, variants int) (BlockID, error) {
	if b.frozen {
		return 0, ErrRegistryFrozen
	}
	if _, exists := b.reg.byName[name]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateBlock, name)
	}
	if variants < 1 {
		variants = 1
	}

	id := BlockID(len(b.reg.blocks))
	first := StateID(len(b.reg.states))
	b.reg.blocks = append(b.reg.blocks, Block{ID: id, Name: name, Variants: variants, FirstState: first})
	b.reg.byName[name] = id
	for v := 0; v < variants; v++ {
		b.reg.states = append(b.reg.states, State{ID: first + StateID(v), Block: id, Variant: v})
	}
	return id, nil
}

// RegisterAll регистрирует набор описаний блоков
func (b *Builder) RegisterAll(defs []Definition) error {
	for _, def := range defs {
		if _, err := b.Register(def.Name, def.Variants); err != nil {
			return err
		}
	}
	return nil
}

// Build замораживает построитель и возвращает реестр
func (b *Builder) Build() *Registry {
	b.frozen = true
	return b.reg
}

// Block возвращает описание блока по ID
func (r *Registry) Block(id BlockID) (Block, bool) {
	if int(id) >= len(r.blocks) {
		return Block{}, false
	}
	return r.blocks[id], true
}

// BlockByName возвращает ID блока по имени
func (r *Registry) BlockByName(name string) (BlockID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// State возвращает описание состояния по глобальному ID
func (r *Registry) State(id StateID) (State, bool) {
	if int(id) >= len(r.states) {
		return State{}, false
	}
	return r.states[id], true
}

// BlockOf возвращает идентичность блока для состояния
func (r *Registry) BlockOf(id StateID) (BlockID, bool) {
	if int(id) >= len(r.states) {
		return 0, false
	}
	return r.states[id].Block, true
}

// DefaultState возвращает первое состояние блока
func (r *Registry) DefaultState(id BlockID) (StateID, bool) {
	blk, ok := r.Block(id)
	if !ok {
		return 0, false
	}
	return blk.FirstState, true
}

// StateOf возвращает состояние блока с заданным вариантом
func (r *Registry) StateOf(id BlockID, variant int) (StateID, bool) {
	blk, ok := r.Block(id)
	if !ok || variant < 0 || variant >= blk.Variants {
		return 0, false
	}
	return blk.FirstState + StateID(variant), true
}

// Name возвращает имя блока для состояния или пустую строку
func (r *Registry) Name(id StateID) string {
	st, ok := r.State(id)
	if !ok {
		return ""
	}
	return r.blocks[st.Block].Name
}

// Len возвращает количество зарегистрированных состояний
func (r *Registry) Len() int {
	return len(r.states)
}

// Blocks возвращает копию списка блоков
func (r *Registry) Blocks() []Block {
	out := make([]Block, len(r.blocks))
	copy(out, r.blocks)
	return out
}

// Bits возвращает ширину элемента для прямой (глобальной) палитры
func (r *Registry) Bits() int {
	n := bits.Len(uint(len(r.states) - 1))
	if n < 1 {
		n = 1
	}
	return n
}

// IsAir проверяет, является ли состояние воздухом
func IsAir(id StateID) bool {
	return id == AirState
}
