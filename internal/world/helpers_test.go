package world

import (
	"testing"

	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/scan"
	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/wizard"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testPlayer - зритель с собственным маппингом
type testPlayer struct {
	id      uuid.UUID
	mapping polymap.PolyMap
	updates []wizard.Update
}

func newPlayer(m polymap.PolyMap) *testPlayer {
	return &testPlayer{id: uuid.New(), mapping: m}
}

func (p *testPlayer) ID() uuid.UUID                    { return p.id }
func (p *testPlayer) SendWizardUpdate(u wizard.Update) { p.updates = append(p.updates, u) }

// mapsOf разрешает маппинг по самому игроку
var mapsOf = MapResolverFunc(func(v wizard.Viewer) polymap.PolyMap {
	if p, ok := v.(*testPlayer); ok {
		return p.mapping
	}
	return nil
})

// countingWizard считает вызовы жизненного цикла
type countingWizard struct {
	wizard.Base
	removes int
	adds    map[uuid.UUID]int
	ticks   int
}

func (w *countingWizard) AddPlayer(v wizard.Viewer) {
	w.adds[v.ID()]++
	w.Base.AddPlayer(v)
}

func (w *countingWizard) OnRemove() {
	w.removes++
	w.Base.OnRemove()
}

func (w *countingWizard) OnTick(uint64) { w.ticks++ }

// factory запоминает всех созданных визардов
type factory struct {
	created []*countingWizard
}

func (f *factory) create(info wizard.Info) wizard.Wizard {
	w := &countingWizard{Base: wizard.NewBase(info), adds: make(map[uuid.UUID]int)}
	f.created = append(f.created, w)
	return w
}

// panicOnAdd падает при добавлении игрока
type panicOnAdd struct {
	wizard.Base
}

func (w *panicOnAdd) AddPlayer(wizard.Viewer) { panic("сломанная видимость") }

type env struct {
	blocks  *block.Registry
	ore     block.StateID
	lantern block.StateID
	stone   block.StateID
	dirt    block.StateID

	vanilla *polymap.Map // руда с визардом
	legacy  *polymap.Map // фонарь с визардом, руда без
	native  *polymap.Map

	oreWizards     *factory
	lanternWizards *factory
	ticker         *wizard.Ticker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		blocks:         block.Defaults(),
		oreWizards:     &factory{},
		lanternWizards: &factory{},
		ticker:         wizard.NewTicker(),
	}
	e.ore, _ = e.blocks.DefaultState(block.GlowingOreBlockID)
	e.lantern, _ = e.blocks.DefaultState(block.LanternBlockID)
	e.stone, _ = e.blocks.DefaultState(block.StoneBlockID)
	e.dirt, _ = e.blocks.DefaultState(block.DirtBlockID)

	vanilla := polymap.NewRegistry("vanilla", e.blocks)
	require.NoError(t, vanilla.RegisterBlockPoly(block.GlowingOreBlockID, polymap.NewWizardBlockPoly(e.stone, e.oreWizards.create)))
	require.NoError(t, vanilla.RegisterBlockPoly(block.LanternBlockID, polymap.SimpleReplacement(e.dirt)))
	e.vanilla = vanilla.Build()

	legacy := polymap.NewRegistry("legacy", e.blocks)
	require.NoError(t, legacy.RegisterBlockPoly(block.GlowingOreBlockID, polymap.SimpleReplacement(e.stone)))
	require.NoError(t, legacy.RegisterBlockPoly(block.LanternBlockID, polymap.NewWizardBlockPoly(e.stone, e.lanternWizards.create)))
	e.legacy = legacy.Build()

	e.native = polymap.Native(e.blocks)
	return e
}

func (e *env) cacheConfig() CacheConfig {
	return CacheConfig{Scanner: scan.New(e.blocks), Ticker: e.ticker, Maps: mapsOf}
}

// chunk создаёт чанк с подключённым кешем
func (e *env) chunk(pos vec.ChunkPos) (*Chunk, *WizardCache) {
	c := NewChunk(pos, nil, 0, 15, e.blocks.Len())
	return c, c.AttachWizards(e.cacheConfig())
}

// place ставит блоки до входа игроков (таблиц ещё нет, визарды не создаются)
func place(t *testing.T, c *Chunk, state block.StateID, positions ...vec.Vec3) {
	t.Helper()
	for _, pos := range positions {
		_, err := c.SetBlockState(pos, state, false)
		require.NoError(t, err)
	}
}
