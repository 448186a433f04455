package storage

import (
	"encoding/json"
	"testing"

	"github.com/annel0/polyview/internal/palette"
	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/world"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) *WorldStorage {
	t.Helper()
	storage, err := NewWorldStorage(t.TempDir(), "overworld")
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestSaveAndLoadSections(t *testing.T) {
	storage := setupTestStorage(t)
	reg := block.Defaults()
	ore, _ := reg.DefaultState(block.GlowingOreBlockID)
	crystal, _ := reg.StateOf(block.CrystalBlockID, 2)

	floor := world.NewSection(0, reg.Len())
	for i := 0; i < vec.SectionSize*vec.SectionSize; i++ {
		_, err := floor.Set(i, ore)
		require.NoError(t, err)
	}
	upper := world.NewSection(3, reg.Len())
	_, err := upper.Set(1234, crystal)
	require.NoError(t, err)

	pos := vec.ChunkPos{X: 10, Z: -20}
	require.NoError(t, storage.SaveSections(pos, []*world.Section{floor, world.NewSection(1, reg.Len()), upper}))

	loaded, found, err := storage.LoadSections(pos, reg.Len())
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, loaded, 2, "пустые секции не сохраняются")

	assert.Equal(t, 0, loaded[0].Y)
	assert.Equal(t, floor.NonAir(), loaded[0].NonAir())
	assert.Equal(t, ore, loaded[0].Get(255))
	assert.Equal(t, block.AirState, loaded[0].Get(256))

	assert.Equal(t, 3, loaded[1].Y)
	assert.Equal(t, 1, loaded[1].NonAir())
	assert.Equal(t, crystal, loaded[1].Get(1234))
}

func TestLoadMissingChunk(t *testing.T) {
	storage := setupTestStorage(t)

	sections, found, err := storage.LoadSections(vec.ChunkPos{X: 1, Z: 1}, 16)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, sections)
}

func TestGlobalPaletteRoundTrip(t *testing.T) {
	storage := setupTestStorage(t)
	reg := block.Defaults()

	// Прямая палитра и упакованное хранилище собираются руками
	bits := reg.Bits()
	st, err := palette.NewPackedStorage(bits, vec.SectionVolume, nil)
	require.NoError(t, err)
	for i := 0; i < vec.SectionVolume; i++ {
		st.Set(i, i%reg.Len())
	}
	section := world.SectionOf(2, palette.ContainerOf(palette.Global{Size: reg.Len()}, st, reg.Len()))

	pos := vec.ChunkPos{X: 0, Z: 0}
	require.NoError(t, storage.SaveSections(pos, []*world.Section{section}))

	loaded, found, err := storage.LoadSections(pos, reg.Len())
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, loaded, 1)

	_, isGlobal := loaded[0].Blocks.Palette().(palette.Global)
	assert.True(t, isGlobal)
	for _, idx := range []int{0, 7, 100, 4095} {
		assert.Equal(t, block.StateID(idx%reg.Len()), loaded[0].Get(idx))
	}
}

func TestArrayStorageRoundTrip(t *testing.T) {
	storage := setupTestStorage(t)

	cells := make([]int32, vec.SectionVolume)
	cells[42] = 1
	p := palette.NewLinear(block.AirState, block.StateID(1))
	section := world.SectionOf(0, palette.ContainerOf(p, palette.ArrayStorageOf(cells), 64))

	pos := vec.ChunkPos{X: 5, Z: 5}
	require.NoError(t, storage.SaveSections(pos, []*world.Section{section}))

	loaded, _, err := storage.LoadSections(pos, 64)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, block.StateID(1), loaded[0].Get(42))
	assert.Equal(t, 1, loaded[0].NonAir())
}

func TestMalformedSectionSkipped(t *testing.T) {
	storage := setupTestStorage(t)
	pos := vec.ChunkPos{X: 3, Z: 4}

	record := chunkRecord{X: 3, Z: 4, Sections: []sectionRecord{
		{Y: 0, Palette: []uint32{0, 1}, Bits: 4, Size: vec.SectionVolume, Data: make([]uint64, 3)},
		{Y: 1, Palette: []uint32{0, 1}, Size: vec.SectionVolume, Cells: make([]int32, vec.SectionVolume)},
	}}
	writeRaw(t, storage, pos, record)

	loaded, found, err := storage.LoadSections(pos, 64)
	require.NoError(t, err)
	assert.True(t, found)
	require.Len(t, loaded, 1)
	assert.Equal(t, 1, loaded[0].Y)
}

func TestDecodeRejectsCorruptSections(t *testing.T) {
	negative := make([]int32, vec.SectionVolume)
	negative[7] = -1
	cases := map[string]sectionRecord{
		"отрицательная ячейка": {Palette: []uint32{0, 1}, Size: vec.SectionVolume, Cells: negative},
		"повтор в палитре":     {Palette: []uint32{0, 5, 5, 9}, Size: vec.SectionVolume, Cells: make([]int32, vec.SectionVolume)},
	}
	for name, rec := range cases {
		_, err := decodeSection(rec, 64)
		assert.ErrorIs(t, err, palette.ErrMalformedStorage, name)
	}

	pos := vec.ChunkPos{X: 6, Z: 1}
	storage := setupTestStorage(t)
	writeRaw(t, storage, pos, chunkRecord{X: 6, Z: 1, Sections: []sectionRecord{
		{Y: 0, Palette: []uint32{0, 1}, Size: vec.SectionVolume, Cells: negative},
		{Y: 2, Palette: []uint32{0, 1}, Size: vec.SectionVolume, Cells: make([]int32, vec.SectionVolume)},
	}})
	loaded, _, err := storage.LoadSections(pos, 64)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 2, loaded[0].Y)
}

func TestDeleteAndClose(t *testing.T) {
	storage := setupTestStorage(t)
	reg := block.Defaults()
	pos := vec.ChunkPos{X: 9, Z: 9}

	s := world.NewSection(0, reg.Len())
	_, err := s.Set(0, block.StateID(1))
	require.NoError(t, err)
	require.NoError(t, storage.SaveSections(pos, []*world.Section{s}))
	require.NoError(t, storage.DeleteChunk(pos))

	_, found, err := storage.LoadSections(pos, reg.Len())
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, storage.Close())
	require.NoError(t, storage.Close())
	_, _, err = storage.LoadSections(pos, reg.Len())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, storage.SaveSections(pos, nil), ErrNotReady)
}

func writeRaw(t *testing.T, ws *WorldStorage, pos vec.ChunkPos, record chunkRecord) {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	err = ws.db.Update(func(txn *badger.Txn) error {
		return txn.Set(ws.key(pos), ws.encoder.EncodeAll(data, nil))
	})
	require.NoError(t, err)
}
