package polymap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/annel0/polyview/internal/wizard"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateOf(t *testing.T, reg *block.Registry, id block.BlockID, variant int) block.StateID {
	t.Helper()
	st, ok := reg.StateOf(id, variant)
	require.True(t, ok)
	return st
}

func TestRegistryBuildsImmutableMap(t *testing.T) {
	blocks := block.Defaults()
	stone := stateOf(t, blocks, block.StoneBlockID, 0)

	reg := NewRegistry("test", blocks)
	require.NoError(t, reg.RegisterBlockPoly(block.LanternBlockID, SimpleReplacement(stone)))
	require.NoError(t, reg.RegisterBlockPoly(block.GlowingOreBlockID,
		NewWizardBlockPoly(stone, wizard.DisplayFactory(stone, 0))))

	err := reg.RegisterBlockPoly(block.LanternBlockID, SimpleReplacement(stone))
	assert.ErrorIs(t, err, ErrDuplicatePoly)

	m := reg.Build()
	assert.ErrorIs(t, reg.RegisterBlockPoly(block.CrystalBlockID, SimpleReplacement(stone)), ErrRegistryBuilt)

	assert.Equal(t, "test", m.Name())
	assert.True(t, m.HasBlockWizards())
	assert.True(t, m.HasWizardFor(block.GlowingOreBlockID))
	assert.False(t, m.HasWizardFor(block.LanternBlockID), "у подмены без визарда нет визарда")
	assert.False(t, m.HasWizardFor(block.BlockID(9999)), "неизвестный блок - не ошибка")
	assert.Nil(t, WizardPoly(m, block.LanternBlockID))
	assert.NotNil(t, WizardPoly(m, block.GlowingOreBlockID))
	assert.Equal(t, 2, m.Polys())
}

func TestRegisterUnknownBlock(t *testing.T) {
	reg := NewRegistry("test", block.Defaults())
	err := reg.RegisterBlockPoly(block.BlockID(500), SimpleReplacement(0))
	assert.ErrorIs(t, err, block.ErrUnknownBlock)
}

func TestClientState(t *testing.T) {
	blocks := block.Defaults()
	stone := stateOf(t, blocks, block.StoneBlockID, 0)
	lit := stateOf(t, blocks, block.LanternBlockID, 1)

	reg := NewRegistry("test", blocks)
	require.NoError(t, reg.RegisterBlockPoly(block.LanternBlockID, SimpleReplacement(stone)))
	m := reg.Build()

	assert.Equal(t, stone, m.ClientState(lit))
	dirt := stateOf(t, blocks, block.DirtBlockID, 0)
	assert.Equal(t, dirt, m.ClientState(dirt), "блок без обработчика не меняется")
	assert.Equal(t, block.StateID(100000), m.ClientState(100000))
}

func TestReplacementPerVariant(t *testing.T) {
	p := &Replacement{Clients: []block.StateID{10, 11}}
	assert.Equal(t, block.StateID(11), p.ClientState(block.State{ID: 5, Variant: 1}))
	assert.Equal(t, block.StateID(10), p.ClientState(block.State{ID: 5, Variant: 7}))
	assert.Equal(t, block.StateID(5), (&Replacement{}).ClientState(block.State{ID: 5}))
}

func TestNativeMap(t *testing.T) {
	m := Native(block.Defaults())
	assert.False(t, m.IsVanillaLike())
	assert.False(t, m.HasBlockWizards())
}

func TestBuildDefaultSet(t *testing.T) {
	set, err := BuildSet(DefaultFile(), block.Defaults(), DefaultKinds())
	require.NoError(t, err)

	assert.Equal(t, []string{"legacy", "native", "vanilla"}, set.Names())
	assert.Equal(t, "vanilla", set.Default().Name())

	vanilla, _ := set.Get("vanilla")
	legacy, _ := set.Get("legacy")
	assert.True(t, vanilla.HasWizardFor(block.GlowingOreBlockID))
	assert.False(t, legacy.HasWizardFor(block.GlowingOreBlockID))
	assert.True(t, legacy.HasWizardFor(block.LanternBlockID))
	assert.NotSame(t, vanilla, legacy)
}

func TestLoadMappingsFromYAML(t *testing.T) {
	content := `
default: main
mappings:
  - name: main
    blocks:
      - server: polyview:crystal
        client: minecraft:water
        variant: 3
        wizard: display
        options:
          interval: 5
  - name: mods
    native: true
`
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	blocks := block.Defaults()
	set, err := LoadMappings(path, blocks, DefaultKinds())
	require.NoError(t, err)

	main := set.Default()
	crystal := stateOf(t, blocks, block.CrystalBlockID, 2)
	assert.Equal(t, stateOf(t, blocks, block.WaterBlockID, 3), main.ClientState(crystal))

	w := WizardPoly(main, block.CrystalBlockID).CreateWizard(wizard.Info{})
	_, isDisplay := w.(*wizard.DisplayWizard)
	assert.True(t, isDisplay)

	mods, ok := set.Get("mods")
	require.True(t, ok)
	assert.False(t, mods.IsVanillaLike())
}

func TestBuildSetErrors(t *testing.T) {
	blocks := block.Defaults()
	kinds := DefaultKinds()

	cases := map[string]File{
		"пусто":              {},
		"неизвестный блок":   {Mappings: []MappingDef{{Name: "a", Blocks: []BlockRule{{Server: "x:y", Client: "minecraft:stone"}}}}},
		"неизвестный клиент": {Mappings: []MappingDef{{Name: "a", Blocks: []BlockRule{{Server: "minecraft:stone", Client: "x:y"}}}}},
		"неизвестный вид":    {Mappings: []MappingDef{{Name: "a", Blocks: []BlockRule{{Server: "minecraft:stone", Client: "minecraft:dirt", Wizard: "nope"}}}}},
		"дубликат":           {Mappings: []MappingDef{{Name: "a"}, {Name: "a"}}},
		"нет default":        {Default: "b", Mappings: []MappingDef{{Name: "a"}}},
	}
	for name, file := range cases {
		_, err := BuildSet(file, blocks, kinds)
		assert.Error(t, err, name)
	}
}

func TestValidateDocument(t *testing.T) {
	valid := `
mappings:
  - name: main
    blocks:
      - server: polyview:lantern
        client: minecraft:stone
`
	require.NoError(t, ValidateDocument([]byte(valid)))

	cases := map[string]string{
		"опечатка в ключе": `
mappings:
  - name: main
    blokcs: []
`,
		"нет маппингов": `default: main`,
		"пустое имя": `
mappings:
  - name: ""
`,
		"нецелая опция": `
mappings:
  - name: main
    blocks:
      - server: polyview:lantern
        client: minecraft:stone
        options:
          interval: fast
`,
		"имя без пространства": `
mappings:
  - name: main
    blocks:
      - server: lantern
        client: minecraft:stone
`,
	}
	for name, doc := range cases {
		assert.Error(t, ValidateDocument([]byte(doc)), name)
	}
}

func TestLoadMappingsRejectsSchemaViolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mappings:\n  - name: main\n    nativ: true\n"), 0o644))

	_, err := LoadMappings(path, block.Defaults(), DefaultKinds())
	assert.ErrorContains(t, err, "схеме")
}
