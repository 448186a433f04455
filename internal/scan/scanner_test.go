package scan

import (
	"testing"

	"github.com/annel0/polyview/internal/palette"
	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/wizard"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	blocks *block.Registry
	m      *polymap.Map
	stone  block.StateID
	dirt   block.StateID
	ore    block.StateID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	b := block.NewDefaultBuilder()
	_, err := b.Register("test:filler", 120)
	require.NoError(t, err)
	blocks := b.Build()

	f := fixture{blocks: blocks}
	f.stone, _ = blocks.DefaultState(block.StoneBlockID)
	f.dirt, _ = blocks.DefaultState(block.DirtBlockID)
	f.ore, _ = blocks.DefaultState(block.GlowingOreBlockID)

	reg := polymap.NewRegistry("test", blocks)
	require.NoError(t, reg.RegisterBlockPoly(block.GlowingOreBlockID,
		polymap.NewWizardBlockPoly(f.stone, wizard.DisplayFactory(f.stone, 0))))
	require.NoError(t, reg.RegisterBlockPoly(block.DirtBlockID, polymap.SimpleReplacement(f.stone)))
	f.m = reg.Build()
	return f
}

func (f fixture) filler(t *testing.T, n int) []block.StateID {
	t.Helper()
	id, ok := f.blocks.BlockByName("test:filler")
	require.True(t, ok)
	out := make([]block.StateID, n)
	for i := range out {
		out[i], ok = f.blocks.StateOf(id, i)
		require.True(t, ok)
	}
	return out
}

func collect(t *testing.T, s *Scanner, m polymap.PolyMap, p palette.Palette, st palette.Storage) ([]int, Path) {
	t.Helper()
	var hits []int
	path, err := s.Scan(m, p, st, func(index int, poly polymap.BlockPoly) {
		require.True(t, poly.HasWizard())
		hits = append(hits, index)
	})
	require.NoError(t, err)
	return hits, path
}

func TestSmallPaletteAllCellsQualify(t *testing.T) {
	f := newFixture(t)
	p := palette.NewLinear(f.stone, f.ore, f.dirt)
	st, err := palette.NewPackedStorage(2, vec.SectionVolume, nil)
	require.NoError(t, err)
	for i := 0; i < vec.SectionVolume; i++ {
		st.Set(i, 1)
	}

	hits, path := collect(t, New(f.blocks), f.m, p, st)
	assert.Equal(t, PathPalette, path)
	require.Len(t, hits, vec.SectionVolume)
	for i, idx := range hits {
		assert.Equal(t, i, idx)
	}

	// позиция ячейки восстанавливается из индекса со смещением секции
	origin := vec.ChunkPos{X: 2, Z: -1}.Origin().Add(vec.Vec3{Y: 3 * vec.SectionSize})
	last := vec.FromSectionIndex(hits[len(hits)-1]).Add(origin)
	assert.Equal(t, vec.Vec3{X: 32 + 15, Y: 48 + 15, Z: -16 + 15}, last)
}

func TestLargePaletteUsesDirectPath(t *testing.T) {
	f := newFixture(t)
	values := append(f.filler(t, 99), f.ore)
	p := palette.NewLinear(values...)
	require.Equal(t, 100, p.Len())

	st, err := palette.NewPackedStorage(7, vec.SectionVolume, nil)
	require.NoError(t, err)
	for i := 0; i < vec.SectionVolume; i++ {
		st.Set(i, i%99)
	}
	st.Set(1234, 99)

	hits, path := collect(t, New(f.blocks), f.m, p, st)
	assert.Equal(t, PathDirect, path)
	assert.Equal(t, []int{1234}, hits)
}

func TestThresholdIsConfigurable(t *testing.T) {
	f := newFixture(t)
	p := palette.NewLinear(f.stone, f.ore)
	st := palette.ArrayStorageOf([]int32{0, 1, 1, 0})

	s := &Scanner{Resolver: f.blocks, DirectThreshold: 2}
	hits, path := collect(t, s, f.m, p, st)
	assert.Equal(t, PathDirect, path)
	assert.Equal(t, []int{1, 2}, hits)
}

func TestArrayStorageSmallPalette(t *testing.T) {
	f := newFixture(t)
	p := palette.NewLinear(f.dirt, f.ore)
	st := palette.ArrayStorageOf([]int32{1, 0, 0, 1, 0})

	hits, path := collect(t, New(f.blocks), f.m, p, st)
	assert.Equal(t, PathPalette, path)
	assert.Equal(t, []int{0, 3}, hits)
}

func TestEmptyStorage(t *testing.T) {
	f := newFixture(t)
	st, err := palette.NewPackedStorage(4, 0, nil)
	require.NoError(t, err)

	hits, path := collect(t, New(f.blocks), f.m, palette.NewLinear(f.ore), st)
	assert.Equal(t, PathEmpty, path)
	assert.Empty(t, hits)
}

func TestNoQualifyingSlotsSkipsCells(t *testing.T) {
	f := newFixture(t)
	// dirt подменяется, но без визарда
	hits, path := collect(t, New(f.blocks), f.m, palette.NewLinear(f.stone, f.dirt), &panicStorage{size: 16})
	assert.Equal(t, PathSkipped, path)
	assert.Empty(t, hits)
}

func TestUnknownStateIsNotAnError(t *testing.T) {
	f := newFixture(t)
	p := palette.NewLinear(block.StateID(1_000_000), f.ore)
	st := palette.ArrayStorageOf([]int32{0, 1, 0})

	hits, _ := collect(t, New(f.blocks), f.m, p, st)
	assert.Equal(t, []int{1}, hits)

	big := palette.Global{Size: 5000}
	direct := palette.ArrayStorageOf([]int32{4999, int32(f.ore)})
	hits, path := collect(t, New(f.blocks), f.m, big, direct)
	assert.Equal(t, PathDirect, path)
	assert.Equal(t, []int{1}, hits)
}

func TestCellCountNotDividingWord(t *testing.T) {
	f := newFixture(t)
	p := palette.NewLinear(f.ore)

	for bits := 1; bits <= palette.MaxBits; bits++ {
		for _, size := range []int{1, 7, 63, 64, 65, 100, 4096} {
			words := palette.WordsFor(bits, size)
			data := make([]uint64, words)
			for i := range data {
				data[i] = ^uint64(0) // мусор в битах выравнивания
			}
			st, err := palette.NewPackedStorage(bits, size, data)
			require.NoError(t, err)
			for i := 0; i < size; i++ {
				st.Set(i, 0)
			}

			hits, _ := collect(t, New(f.blocks), f.m, p, st)
			assert.Len(t, hits, size, "bits=%d size=%d", bits, size)
		}
	}
}

func TestTruncatedPackedData(t *testing.T) {
	f := newFixture(t)
	full, err := palette.NewPackedStorage(4, 64, nil)
	require.NoError(t, err)
	st := &truncatedStorage{PackedStorage: full, words: 2}

	var hits int
	_, err = New(f.blocks).Scan(f.m, palette.NewLinear(f.ore), st, func(int, polymap.BlockPoly) { hits++ })
	assert.ErrorIs(t, err, ErrMalformedSection)
	assert.Equal(t, 32, hits, "сканер не читает дальше имеющихся слов")
}

func TestPaletteIndexOutOfRange(t *testing.T) {
	f := newFixture(t)
	st := palette.ArrayStorageOf([]int32{0, 5, 0})

	_, err := New(f.blocks).Scan(f.m, palette.NewLinear(f.ore), st, func(int, polymap.BlockPoly) {})
	assert.ErrorIs(t, err, ErrMalformedSection)

	values := append(f.filler(t, 70), f.ore)
	_, err = New(f.blocks).Scan(f.m, palette.NewLinear(values...), palette.ArrayStorageOf([]int32{70, 900}),
		func(int, polymap.BlockPoly) {})
	assert.ErrorIs(t, err, ErrMalformedSection)
}

func TestNegativeCellIsMalformed(t *testing.T) {
	f := newFixture(t)
	var hits []int
	_, err := New(f.blocks).Scan(f.m, palette.NewLinear(f.ore), palette.ArrayStorageOf([]int32{0, -1, 0}),
		func(index int, _ polymap.BlockPoly) { hits = append(hits, index) })
	assert.ErrorIs(t, err, ErrMalformedSection)
	assert.Equal(t, []int{0, 2}, hits)

	values := append(f.filler(t, 70), f.ore)
	_, err = New(f.blocks).Scan(f.m, palette.NewLinear(values...), palette.ArrayStorageOf([]int32{70, -3}),
		func(int, polymap.BlockPoly) {})
	assert.ErrorIs(t, err, ErrMalformedSection)
}

func TestNativeMappingNeverVisits(t *testing.T) {
	f := newFixture(t)
	values := append(f.filler(t, 70), f.ore)
	hits, path := collect(t, New(f.blocks), polymap.Native(f.blocks), palette.NewLinear(values...), &panicStorage{size: 8})
	assert.Equal(t, PathSkipped, path)
	assert.Empty(t, hits)
}

// truncatedStorage объявляет больше ячеек, чем помещается в его слова
type truncatedStorage struct {
	*palette.PackedStorage
	words int
}

func (s *truncatedStorage) Raw() []uint64 { return s.PackedStorage.Raw()[:s.words] }

// panicStorage падает при любом обращении к ячейкам
type panicStorage struct{ size int }

func (s *panicStorage) Len() int                       { return s.size }
func (s *panicStorage) Get(int) int                    { panic("cells must not be read") }
func (s *panicStorage) Set(int, int)                   { panic("cells must not be written") }
func (s *panicStorage) ForEach(func(index, value int)) { panic("cells must not be iterated") }
