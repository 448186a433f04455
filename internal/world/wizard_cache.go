package world

import (
	"encoding/binary"
	"fmt"

	"github.com/annel0/polyview/internal/logging"
	"github.com/annel0/polyview/internal/metrics"
	"github.com/annel0/polyview/internal/palette"
	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/scan"
	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/wizard"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/google/uuid"
)

// CacheConfig - зависимости кеша визардов чанка
type CacheConfig struct {
	Scanner *scan.Scanner
	Ticker  wizard.TickRegistry
	Maps    MapResolver
	// SignalOnMove включает OnRemove и для перемещаемых блоков
	SignalOnMove bool
}

// WizardCache хранит для чанка по одной таблице позиция→визард на каждый маппинг.
//
// Таблица маппинга строится лениво при первом входе игрока с этим маппингом
// и дальше поддерживается изменениями блоков. На каждую пару (маппинг, позиция)
// приходится не больше одного живого визарда. Кеш работает в потоке мира и
// не использует блокировок.
type WizardCache struct {
	chunk *Chunk
	cfg   CacheConfig

	tables  map[polymap.PolyMap]map[vec.Vec3]wizard.Wizard
	players map[uuid.UUID]wizard.Viewer
}

// NewWizardCache создаёт пустой кеш для чанка
func NewWizardCache(chunk *Chunk, cfg CacheConfig) *WizardCache {
	return &WizardCache{
		chunk:   chunk,
		cfg:     cfg,
		tables:  make(map[polymap.PolyMap]map[vec.Vec3]wizard.Wizard),
		players: make(map[uuid.UUID]wizard.Viewer),
	}
}

// tableFor возвращает таблицу маппинга, строя её при первом обращении
func (c *WizardCache) tableFor(m polymap.PolyMap) map[vec.Vec3]wizard.Wizard {
	if table, ok := c.tables[m]; ok {
		return table
	}

	table := make(map[vec.Vec3]wizard.Wizard)
	if !m.HasBlockWizards() {
		c.tables[m] = table
		metrics.TablesBuilt.WithLabelValues("empty").Inc()
		return table
	}

	for _, s := range c.chunk.Sections() {
		if s.IsEmpty() {
			continue
		}
		c.scanSection(m, s, table)
	}
	// таблица попадает в кеш только целиком построенной
	c.tables[m] = table
	metrics.TablesBuilt.WithLabelValues("scanned").Inc()
	logging.Debug("🧙 Таблица визардов чанка %v для маппинга %s: %d визардов", c.chunk.Pos(), m.Name(), len(table))
	return table
}

type found struct {
	pos  vec.Vec3
	poly polymap.BlockPoly
}

// scanSection добавляет в таблицу визардов одной секции.
// Визарды создаются только после успешного сканирования: повреждённая секция
// пропускается целиком.
func (c *WizardCache) scanSection(m polymap.PolyMap, s *Section, table map[vec.Vec3]wizard.Wizard) {
	origin := c.chunk.Pos().Origin().Add(vec.Vec3{Y: s.Y * vec.SectionSize})

	hits, err := c.collect(m, s, origin)
	if err != nil {
		metrics.MalformedSections.Inc()
		logging.LogMalformedSection(c.chunk.Pos().X, c.chunk.Pos().Z, s.Y, err, rawBytes(s.Blocks.Storage()))
		return
	}

	for _, h := range hits {
		if w := c.create(m, h.pos, h.poly, "scan"); w != nil {
			table[h.pos] = w
		}
	}
}

// collect сканирует секцию; паника сканера считается повреждённой секцией
func (c *WizardCache) collect(m polymap.PolyMap, s *Section, origin vec.Vec3) (hits []found, err error) {
	defer func() {
		if r := recover(); r != nil {
			hits, err = nil, fmt.Errorf("%w: паника сканера: %v", scan.ErrMalformedSection, r)
		}
	}()
	_, err = c.cfg.Scanner.Scan(m, s.Blocks.Palette(), s.Blocks.Storage(), func(index int, poly polymap.BlockPoly) {
		hits = append(hits, found{pos: vec.FromSectionIndex(index).Add(origin), poly: poly})
	})
	return hits, err
}

// create создаёт визарда и регистрирует его в тикере.
// Паника фабрики не должна ронять обработку остальных позиций.
func (c *WizardCache) create(m polymap.PolyMap, pos vec.Vec3, poly polymap.BlockPoly, reason string) (w wizard.Wizard) {
	defer func() {
		if r := recover(); r != nil {
			w = nil
			metrics.WizardPanics.WithLabelValues("create").Inc()
			logging.Error("❌ Паника при создании визарда на %v (маппинг %s): %v", pos, m.Name(), r)
		}
	}()

	w = poly.CreateWizard(wizard.Info{Pos: pos, World: c.chunk.World()})
	if w == nil {
		return nil
	}
	c.cfg.Ticker.Add(w)
	metrics.WizardsCreated.WithLabelValues(reason).Inc()
	return w
}

// retire снимает визарда с тиков; signal включает явное снятие (OnRemove)
func (c *WizardCache) retire(w wizard.Wizard, signal bool, reason string) {
	if signal {
		wizard.Guard("remove", w, w.OnRemove)
	}
	c.cfg.Ticker.Remove(w)
	metrics.WizardsRemoved.WithLabelValues(reason).Inc()
}

// OnPlayerJoin строит при необходимости таблицу маппинга игрока
// и делает все её визарды видимыми игроку.
func (c *WizardCache) OnPlayerJoin(p wizard.Viewer) {
	m := c.cfg.Maps.MapOf(p)
	if m == nil {
		logging.Warn("⚠️ У игрока %s нет маппинга, визарды чанка %v не показаны", p.ID(), c.chunk.Pos())
		return
	}
	c.players[p.ID()] = p

	for _, w := range c.tableFor(m) {
		wizard.Guard("add_player", w, func() { w.AddPlayer(p) })
	}
}

// OnPlayerLeave убирает игрока из всех визардов всех таблиц. Таблицы остаются.
func (c *WizardCache) OnPlayerLeave(p wizard.Viewer) {
	delete(c.players, p.ID())

	for _, table := range c.tables {
		for _, w := range table {
			wizard.Guard("remove_player", w, func() { w.RemovePlayer(p) })
		}
	}
}

// OnAllPlayersRemoved снимает все визарды чанка и отбрасывает таблицы
func (c *WizardCache) OnAllPlayersRemoved() {
	removed := 0
	for _, table := range c.tables {
		for _, w := range table {
			wizard.Guard("remove_all_players", w, w.RemoveAllPlayers)
			c.retire(w, true, "discard")
			removed++
		}
	}

	c.tables = make(map[polymap.PolyMap]map[vec.Vec3]wizard.Wizard)
	c.players = make(map[uuid.UUID]wizard.Viewer)

	if removed > 0 {
		logging.Debug("🧹 Чанк %v: снято %d визардов", c.chunk.Pos(), removed)
	}
}

// OnDiscard реализует ChunkListener
func (c *WizardCache) OnDiscard() {
	c.OnAllPlayersRemoved()
}

// OnBlockSet обновляет позицию в каждой существующей таблице ровно один раз,
// независимо от числа игроков с этим маппингом.
func (c *WizardCache) OnBlockSet(pos vec.Vec3, state block.StateID, moved bool) {
	if len(c.tables) == 0 {
		return
	}
	metrics.BlockSetEvents.Inc()

	signal := !moved || c.cfg.SignalOnMove
	reason := "replace"
	if moved {
		reason = "move"
	}
	id, known := c.cfg.Scanner.Resolver.BlockOf(state)

	for m, table := range c.tables {
		if old, ok := table[pos]; ok {
			delete(table, pos)
			c.retire(old, signal, reason)
		}
		if !known {
			continue
		}

		poly := polymap.WizardPoly(m, id)
		if poly == nil {
			continue
		}
		w := c.create(m, pos, poly, "place")
		if w == nil {
			continue
		}
		table[pos] = w

		for _, p := range c.players {
			if c.cfg.Maps.MapOf(p) != m {
				continue
			}
			wizard.Guard("add_player", w, func() { w.AddPlayer(p) })
		}
	}
}

// WizardsAt возвращает визарда позиции в каждом маппинге, где он есть.
// Таблицы при этом не строятся.
func (c *WizardCache) WizardsAt(pos vec.Vec3) map[polymap.PolyMap]wizard.Wizard {
	out := make(map[polymap.PolyMap]wizard.Wizard)
	for m, table := range c.tables {
		if w, ok := table[pos]; ok {
			out[m] = w
		}
	}
	return out
}

// WizardAt возвращает визарда позиции для конкретного маппинга
func (c *WizardCache) WizardAt(m polymap.PolyMap, pos vec.Vec3) (wizard.Wizard, bool) {
	table, ok := c.tables[m]
	if !ok {
		return nil, false
	}
	w, ok := table[pos]
	return w, ok
}

// RemoveWizardsAt убирает визардов позиции из всех таблиц и возвращает их.
// При move визарды только снимаются с тиков (если не включён SignalOnMove),
// дальнейшая судьба экземпляров - на вызывающем.
func (c *WizardCache) RemoveWizardsAt(pos vec.Vec3, move bool) map[polymap.PolyMap]wizard.Wizard {
	signal := !move || c.cfg.SignalOnMove
	reason := "replace"
	if move {
		reason = "move"
	}

	out := make(map[polymap.PolyMap]wizard.Wizard)
	for m, table := range c.tables {
		w, ok := table[pos]
		if !ok {
			continue
		}
		delete(table, pos)
		c.retire(w, signal, reason)
		out[m] = w
	}
	return out
}

// HasTable сообщает, построена ли таблица маппинга
func (c *WizardCache) HasTable(m polymap.PolyMap) bool {
	_, ok := c.tables[m]
	return ok
}

// Tables возвращает количество построенных таблиц
func (c *WizardCache) Tables() int { return len(c.tables) }

// Len возвращает общее количество живых визардов во всех таблицах
func (c *WizardCache) Len() int {
	n := 0
	for _, table := range c.tables {
		n += len(table)
	}
	return n
}

// Snapshot возвращает копию таблицы маппинга (nil, если она не построена)
func (c *WizardCache) Snapshot(m polymap.PolyMap) map[vec.Vec3]wizard.Wizard {
	table, ok := c.tables[m]
	if !ok {
		return nil
	}
	out := make(map[vec.Vec3]wizard.Wizard, len(table))
	for pos, w := range table {
		out[pos] = w
	}
	return out
}

// Mappings возвращает маппинги, для которых построены таблицы
func (c *WizardCache) Mappings() []polymap.PolyMap {
	out := make([]polymap.PolyMap, 0, len(c.tables))
	for m := range c.tables {
		out = append(out, m)
	}
	return out
}

// rawBytes возвращает сырые слова хранилища для диагностики
func rawBytes(st palette.Storage) []byte {
	packed, ok := st.(scan.PackedWords)
	if !ok {
		return nil
	}
	words := packed.Raw()
	out := make([]byte, 0, len(words)*8)
	for _, word := range words {
		out = binary.LittleEndian.AppendUint64(out, word)
	}
	return out
}

func (c *WizardCache) String() string {
	return fmt.Sprintf("WizardCache%v{tables: %d, wizards: %d}", c.chunk.Pos(), len(c.tables), c.Len())
}
