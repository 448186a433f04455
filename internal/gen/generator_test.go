package gen

import (
	"testing"

	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/world"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generate(t *testing.T, terrain *Terrain, reg *block.Registry, pos vec.ChunkPos) *world.Chunk {
	t.Helper()
	c := world.NewChunk(pos, nil, 0, 7, reg.Len())
	require.NoError(t, terrain.Generate(c))
	return c
}

func snapshot(c *world.Chunk) map[int][]block.StateID {
	out := make(map[int][]block.StateID)
	for _, s := range c.Sections() {
		cells := make([]block.StateID, vec.SectionVolume)
		for i := range cells {
			cells[i] = s.Get(i)
		}
		out[s.Y] = cells
	}
	return out
}

func TestTerrainDeterministic(t *testing.T) {
	reg := block.Defaults()
	a, err := NewTerrain(DefaultConfig(), reg)
	require.NoError(t, err)
	b, err := NewTerrain(DefaultConfig(), reg)
	require.NoError(t, err)

	pos := vec.ChunkPos{X: 3, Z: -2}
	assert.Equal(t, snapshot(generate(t, a, reg, pos)), snapshot(generate(t, b, reg, pos)))
}

func TestTerrainLayers(t *testing.T) {
	reg := block.Defaults()
	cfg := DefaultConfig()
	terrain, err := NewTerrain(cfg, reg)
	require.NoError(t, err)

	pos := vec.ChunkPos{X: 0, Z: 0}
	c := generate(t, terrain, reg, pos)
	origin := pos.Origin()

	for x := 0; x < vec.SectionSize; x++ {
		for z := 0; z < vec.SectionSize; z++ {
			col := origin.Add(vec.Vec3{X: x, Z: z})
			h := terrain.HeightAt(col.X, col.Z)
			require.GreaterOrEqual(t, h, cfg.BaseHeight)
			require.LessOrEqual(t, h, cfg.BaseHeight+cfg.Amplitude)

			assert.False(t, block.IsAir(c.StateAt(vec.Vec3{X: col.X, Y: 0, Z: col.Z})), "дно заполнено")
			assert.False(t, block.IsAir(c.StateAt(vec.Vec3{X: col.X, Y: h, Z: col.Z})), "поверхность заполнена")
			above := c.StateAt(vec.Vec3{X: col.X, Y: max(h, cfg.SeaLevel) + 2, Z: col.Z})
			assert.True(t, block.IsAir(above), "над поверхностью и водой воздух")
		}
	}
}

func TestTerrainPlacesModdedBlocks(t *testing.T) {
	reg := block.Defaults()
	cfg := DefaultConfig()
	cfg.OreChance = 0.2
	cfg.CrystalChance = 0.2
	terrain, err := NewTerrain(cfg, reg)
	require.NoError(t, err)

	c := generate(t, terrain, reg, vec.ChunkPos{X: 1, Z: 1})
	counts := make(map[block.BlockID]int)
	for _, s := range c.Sections() {
		for i := 0; i < vec.SectionVolume; i++ {
			id, _ := reg.BlockOf(s.Get(i))
			counts[id]++
		}
	}
	assert.Positive(t, counts[block.GlowingOreBlockID])
	assert.Positive(t, counts[block.CrystalBlockID])
	assert.Positive(t, counts[block.StoneBlockID])
}

func TestTerrainRespectsBounds(t *testing.T) {
	reg := block.Defaults()
	terrain, err := NewTerrain(DefaultConfig(), reg)
	require.NoError(t, err)

	// Только одна секция: всё выше 15 обрезается без ошибок
	c := world.NewChunk(vec.ChunkPos{}, nil, 0, 0, reg.Len())
	require.NoError(t, terrain.Generate(c))
	sections := c.Sections()
	require.Len(t, sections, 1)
	assert.Equal(t, 0, sections[0].Y)
}

func TestTerrainRequiresBaseBlocks(t *testing.T) {
	b := block.NewBuilder()
	_, err := b.Register("minecraft:stone", 1)
	require.NoError(t, err)

	_, err = NewTerrain(DefaultConfig(), b.Build())
	assert.ErrorIs(t, err, block.ErrUnknownBlock)
}

func TestNoiseRange(t *testing.T) {
	n := NewNoise(7)
	for i := 0; i < 100; i++ {
		v := n.At(float64(i)*0.37, float64(i)*0.11)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, n.At(1.5, 2.5), NewNoise(7).At(1.5, 2.5))
}
