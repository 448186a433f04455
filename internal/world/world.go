package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/polyview/internal/eventbus"
	"github.com/annel0/polyview/internal/logging"
	"github.com/annel0/polyview/internal/metrics"
	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/scan"
	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/wizard"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/google/uuid"
)

var (
	ErrChunkNotLoaded = errors.New("chunk is not loaded")
	ErrUnknownState   = errors.New("unknown block state")
)

// Generator заполняет секции нового чанка
type Generator interface {
	Generate(c *Chunk) error
}

// ChunkStore сохраняет и загружает секции чанков
type ChunkStore interface {
	// LoadSections возвращает секции чанка; ok == false, если чанк ещё не сохранялся
	LoadSections(pos vec.ChunkPos, globalSize int) (sections []*Section, ok bool, err error)
	SaveSections(pos vec.ChunkPos, sections []*Section) error
}

// Options - зависимости и параметры мира
type Options struct {
	Name       string
	Blocks     *block.Registry
	Maps       MapResolver
	Generator  Generator
	Store      ChunkStore
	Bus        eventbus.EventBus
	MinSection int
	MaxSection int
	TickRate   int
	// DirectThreshold - размер палитры, с которого сканер запрашивает маппинг для каждой ячейки
	DirectThreshold int
	SignalOnMove    bool
}

// World владеет загруженными чанками, тикером визардов и видимостью игроков.
//
// Все изменения идут под mu: тики, события игроков и изменения блоков
// сериализуются так же, как в потоке мира. Визарды получают view, который
// читает мир без блокировки, так как вызываются уже под mu.
type World struct {
	mu      sync.RWMutex
	opts    Options
	scanner *scan.Scanner
	ticker  *wizard.Ticker
	view    *worldView

	chunks  map[vec.ChunkPos]*Chunk
	watched map[uuid.UUID]map[vec.ChunkPos]struct{}
	viewers map[uuid.UUID]wizard.Viewer
	tick    uint64
	closed  bool
}

// New создаёт мир
func New(opts Options) *World {
	if opts.Name == "" {
		opts.Name = "overworld"
	}
	if opts.TickRate <= 0 {
		opts.TickRate = 20
	}
	if opts.MinSection == 0 && opts.MaxSection == 0 {
		opts.MaxSection = 15
	}

	w := &World{
		opts: opts,
		scanner: &scan.Scanner{
			Resolver:        opts.Blocks,
			DirectThreshold: opts.DirectThreshold,
		},
		ticker:  wizard.NewTicker(),
		chunks:  make(map[vec.ChunkPos]*Chunk),
		watched: make(map[uuid.UUID]map[vec.ChunkPos]struct{}),
		viewers: make(map[uuid.UUID]wizard.Viewer),
	}
	w.view = &worldView{w: w}
	return w
}

// Name возвращает имя мира
func (w *World) Name() string { return w.opts.Name }

// Blocks возвращает реестр блоков мира
func (w *World) Blocks() *block.Registry { return w.opts.Blocks }

// CurrentTick возвращает номер текущего тика
func (w *World) CurrentTick() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tick
}

func (w *World) source() string { return "world/" + w.opts.Name }

// LoadChunk загружает чанк из хранилища или генерирует его.
// Уже загруженный чанк возвращается как есть.
func (w *World) LoadChunk(pos vec.ChunkPos) (*Chunk, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadChunk(pos)
}

func (w *World) loadChunk(pos vec.ChunkPos) (*Chunk, error) {
	if w.closed {
		return nil, ErrChunkDiscarded
	}
	if c, ok := w.chunks[pos]; ok {
		return c, nil
	}

	c := NewChunk(pos, w.view, w.opts.MinSection, w.opts.MaxSection, w.opts.Blocks.Len())
	c.AttachWizards(CacheConfig{
		Scanner:      w.scanner,
		Ticker:       w.ticker,
		Maps:         w.opts.Maps,
		SignalOnMove: w.opts.SignalOnMove,
	})

	loaded := false
	if w.opts.Store != nil {
		sections, ok, err := w.opts.Store.LoadSections(pos, w.opts.Blocks.Len())
		if err != nil {
			return nil, fmt.Errorf("загрузка чанка %v: %w", pos, err)
		}
		if ok {
			for _, s := range sections {
				if err := c.SetSection(s); err != nil {
					logging.Warn("⚠️ Чанк %v: секция отброшена: %v", pos, err)
				}
			}
			loaded = true
		}
	}
	if !loaded && w.opts.Generator != nil {
		if err := w.opts.Generator.Generate(c); err != nil {
			return nil, fmt.Errorf("генерация чанка %v: %w", pos, err)
		}
	}

	w.chunks[pos] = c
	metrics.ChunksLoaded.Inc()
	eventbus.Emit(w.opts.Bus, w.source(), eventbus.TypeChunkLoaded, ChunkEvent{X: pos.X, Z: pos.Z, Stored: loaded})
	logging.Debug("📦 Чанк %v загружен (из хранилища: %v)", pos, loaded)
	return c, nil
}

// Chunk возвращает загруженный чанк
func (w *World) Chunk(pos vec.ChunkPos) (*Chunk, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.chunks[pos]
	return c, ok
}

// UnloadChunk снимает все визарды чанка синхронно, сохраняет и забывает его
func (w *World) UnloadChunk(pos vec.ChunkPos) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unloadChunk(pos)
}

func (w *World) unloadChunk(pos vec.ChunkPos) error {
	c, ok := w.chunks[pos]
	if !ok {
		return fmt.Errorf("%w: %v", ErrChunkNotLoaded, pos)
	}

	c.Discard()
	delete(w.chunks, pos)
	for _, set := range w.watched {
		delete(set, pos)
	}
	metrics.ChunksLoaded.Dec()

	var err error
	if w.opts.Store != nil {
		if err = w.opts.Store.SaveSections(pos, c.Sections()); err != nil {
			err = fmt.Errorf("сохранение чанка %v: %w", pos, err)
		}
	}
	eventbus.Emit(w.opts.Bus, w.source(), eventbus.TypeChunkUnloaded, ChunkEvent{X: pos.X, Z: pos.Z})
	return err
}

// SetBlock ставит состояние блока в загруженном чанке и возвращает предыдущее
func (w *World) SetBlock(pos vec.Vec3, state block.StateID) (block.StateID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setBlock(pos, state, false)
}

func (w *World) setBlock(pos vec.Vec3, state block.StateID, moved bool) (block.StateID, error) {
	if _, ok := w.opts.Blocks.State(state); !ok {
		return block.AirState, fmt.Errorf("%w: %d", ErrUnknownState, state)
	}
	c, ok := w.chunks[pos.ChunkPos()]
	if !ok {
		return block.AirState, fmt.Errorf("%w: %v", ErrChunkNotLoaded, pos.ChunkPos())
	}

	prev, err := c.SetBlockState(pos, state, moved)
	if err != nil {
		return prev, err
	}
	if prev != state {
		eventbus.Emit(w.opts.Bus, w.source(), eventbus.TypeBlockSet, BlockEvent{
			X: pos.X, Y: pos.Y, Z: pos.Z,
			State: uint32(state), Prev: uint32(prev), Moved: moved,
		})
	}
	return prev, nil
}

// MoveBlock переносит блок из from в to.
// Визарды from снимаются с флагом перемещения и возвращаются вызывающему:
// обратно в мир они не возвращаются, на новом месте создаются свежие.
func (w *World) MoveBlock(from, to vec.Vec3) (map[polymap.PolyMap]wizard.Wizard, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	src, ok := w.chunks[from.ChunkPos()]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrChunkNotLoaded, from.ChunkPos())
	}
	dst, ok := w.chunks[to.ChunkPos()]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrChunkNotLoaded, to.ChunkPos())
	}
	// до первого изменения: неудачный перенос не должен терять блок
	if err := src.CheckWritable(from); err != nil {
		return nil, err
	}
	if err := dst.CheckWritable(to); err != nil {
		return nil, err
	}

	state := src.StateAt(from)
	detached := src.RemoveWizardsAt(from, true)

	if _, err := w.setBlock(from, block.AirState, true); err != nil {
		return detached, err
	}
	if _, err := w.setBlock(to, state, false); err != nil {
		// возвращаем блок на место; на нём появятся свежие визарды
		if _, rerr := w.setBlock(from, state, false); rerr != nil {
			logging.Error("❌ Не удалось вернуть блок на %v после неудачного переноса: %v", from, rerr)
		}
		return detached, err
	}
	return detached, nil
}

// StateAt возвращает состояние блока; в незагруженных чанках - воздух
func (w *World) StateAt(pos vec.Vec3) block.StateID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stateAt(pos)
}

func (w *World) stateAt(pos vec.Vec3) block.StateID {
	c, ok := w.chunks[pos.ChunkPos()]
	if !ok {
		return block.AirState
	}
	return c.StateAt(pos)
}

// Watch делает загруженный чанк видимым игроку
func (w *World) Watch(p wizard.Viewer, pos vec.ChunkPos) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watch(p, pos)
}

func (w *World) watch(p wizard.Viewer, pos vec.ChunkPos) error {
	c, ok := w.chunks[pos]
	if !ok {
		return fmt.Errorf("%w: %v", ErrChunkNotLoaded, pos)
	}

	set, ok := w.watched[p.ID()]
	if !ok {
		set = make(map[vec.ChunkPos]struct{})
		w.watched[p.ID()] = set
		w.viewers[p.ID()] = p
		eventbus.Emit(w.opts.Bus, w.source(), eventbus.TypePlayerJoined, PlayerEvent{ID: p.ID().String()})
	}
	set[pos] = struct{}{}
	c.AddPlayer(p)
	return nil
}

// Unwatch убирает чанк из видимости игрока
func (w *World) Unwatch(p wizard.Viewer, pos vec.ChunkPos) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unwatch(p, pos)
}

func (w *World) unwatch(p wizard.Viewer, pos vec.ChunkPos) {
	if set, ok := w.watched[p.ID()]; ok {
		delete(set, pos)
	}
	if c, ok := w.chunks[pos]; ok {
		c.RemovePlayer(p)
	}
}

// Disconnect убирает игрока из всех чанков мира
func (w *World) Disconnect(p wizard.Viewer) {
	w.mu.Lock()
	defer w.mu.Unlock()

	set, ok := w.watched[p.ID()]
	if !ok {
		return
	}
	for pos := range set {
		if c, ok := w.chunks[pos]; ok {
			c.RemovePlayer(p)
		}
	}
	delete(w.watched, p.ID())
	delete(w.viewers, p.ID())
	eventbus.Emit(w.opts.Bus, w.source(), eventbus.TypePlayerLeft, PlayerEvent{ID: p.ID().String()})
}

// UpdateView приводит видимость игрока к квадрату чанков радиуса radius вокруг center.
// Недостающие чанки загружаются, вышедшие из радиуса перестают быть видимыми.
func (w *World) UpdateView(p wizard.Viewer, center vec.ChunkPos, radius int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for pos := range w.watched[p.ID()] {
		if !pos.Within(center, radius) {
			w.unwatch(p, pos)
		}
	}

	var errs []error
	for x := center.X - radius; x <= center.X+radius; x++ {
		for z := center.Z - radius; z <= center.Z+radius; z++ {
			pos := vec.ChunkPos{X: x, Z: z}
			if _, err := w.loadChunk(pos); err != nil {
				errs = append(errs, err)
				continue
			}
			if err := w.watch(p, pos); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Watching возвращает чанки, видимые игроку
func (w *World) Watching(id uuid.UUID) []vec.ChunkPos {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]vec.ChunkPos, 0, len(w.watched[id]))
	for pos := range w.watched[id] {
		out = append(out, pos)
	}
	return out
}

// Tick продвигает мир на один тик
func (w *World) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.tick++
	w.ticker.Tick(w.tick)
}

// Run тикает мир с частотой TickRate до отмены контекста
func (w *World) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(w.opts.TickRate))
	defer ticker.Stop()

	logging.Info("🌍 Мир %s запущен: %d TPS", w.opts.Name, w.opts.TickRate)
	for {
		select {
		case <-ctx.Done():
			logging.Info("🛑 Мир %s остановлен на тике %d", w.opts.Name, w.CurrentTick())
			return
		case <-ticker.C:
			w.Tick()
		}
	}
}

// Close выгружает все чанки. Ошибки сохранения собираются, выгрузка продолжается.
func (w *World) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	var errs []error
	for pos := range w.chunks {
		if err := w.unloadChunk(pos); err != nil {
			errs = append(errs, err)
		}
	}
	w.closed = true
	logging.Info("💾 Мир %s закрыт", w.opts.Name)
	return errors.Join(errs...)
}

// Stats - снимок состояния мира
type Stats struct {
	Name        string `json:"name"`
	Tick        uint64 `json:"tick"`
	Chunks      int    `json:"chunks"`
	LiveWizards int    `json:"live_wizards"`
	Tables      int    `json:"tables"`
	Players     int    `json:"players"`
}

// Stats возвращает снимок состояния мира
func (w *World) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	tables := 0
	for _, c := range w.chunks {
		if c.Wizards() != nil {
			tables += c.Wizards().Tables()
		}
	}
	return Stats{
		Name:        w.opts.Name,
		Tick:        w.tick,
		Chunks:      len(w.chunks),
		LiveWizards: w.ticker.Len(),
		Tables:      tables,
		Players:     len(w.viewers),
	}
}

// WizardInfo - снимок визарда, безопасный для чтения вне потока мира
type WizardInfo struct {
	Mapping string   `json:"mapping"`
	Pos     vec.Vec3 `json:"pos"`
	Kind    string   `json:"kind"`
	Viewers int      `json:"viewers"`
}

type viewerCounter interface {
	ViewerCount() int
}

func describe(m polymap.PolyMap, w wizard.Wizard) WizardInfo {
	info := WizardInfo{Mapping: m.Name(), Pos: w.Pos(), Kind: fmt.Sprintf("%T", w)}
	if vc, ok := w.(viewerCounter); ok {
		info.Viewers = vc.ViewerCount()
	}
	return info
}

// ChunkWizards возвращает снимки визардов чанка для маппинга (nil m - все маппинги)
func (w *World) ChunkWizards(pos vec.ChunkPos, m polymap.PolyMap) ([]WizardInfo, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	c, ok := w.chunks[pos]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrChunkNotLoaded, pos)
	}

	var out []WizardInfo
	for _, mapping := range c.Wizards().Mappings() {
		if m != nil && mapping != m {
			continue
		}
		for _, wz := range c.Wizards().Snapshot(mapping) {
			out = append(out, describe(mapping, wz))
		}
	}
	return out, nil
}

// WizardAt возвращает снимок визарда позиции для маппинга
func (w *World) WizardAt(pos vec.Vec3, m polymap.PolyMap) (WizardInfo, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	c, ok := w.chunks[pos.ChunkPos()]
	if !ok || c.Wizards() == nil {
		return WizardInfo{}, false
	}
	wz, ok := c.Wizards().WizardAt(m, pos)
	if !ok {
		return WizardInfo{}, false
	}
	return describe(m, wz), true
}

// worldView - доступ визардов к миру из потока мира (mu уже захвачен)
type worldView struct {
	w *World
}

func (v *worldView) Name() string                       { return v.w.opts.Name }
func (v *worldView) StateAt(pos vec.Vec3) block.StateID { return v.w.stateAt(pos) }
func (v *worldView) CurrentTick() uint64                { return v.w.tick }
