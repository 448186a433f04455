package gen

import (
	"fmt"
	"math/rand"

	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/world"
	"github.com/annel0/polyview/internal/world/block"
)

// Config задаёт параметры ландшафта
type Config struct {
	Seed          int64   `yaml:"seed"`
	NoiseScale    float64 `yaml:"noise_scale"`    // Масштаб шума высот
	BaseHeight    int     `yaml:"base_height"`    // Минимальная высота поверхности
	Amplitude     int     `yaml:"amplitude"`      // Разброс высот над BaseHeight
	SeaLevel      int     `yaml:"sea_level"`      // Ниже - вода
	OreChance     float64 `yaml:"ore_chance"`     // Шанс руды в каменной ячейке
	CrystalChance float64 `yaml:"crystal_chance"` // Шанс кристалла в каменной ячейке
	LanternChance float64 `yaml:"lantern_chance"` // Шанс фонаря на поверхности колонки
}

// DefaultConfig возвращает настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		Seed:          42,
		NoiseScale:    0.05,
		BaseHeight:    48,
		Amplitude:     24,
		SeaLevel:      56,
		OreChance:     0.01,
		CrystalChance: 0.004,
		LanternChance: 0.02,
	}
}

// Terrain генерирует ландшафт чанка: камень, слой земли или песка, вода
// до уровня моря и модовые блоки (руда, кристаллы, фонари), которым на
// клиенте нужны подмены.
type Terrain struct {
	cfg   Config
	noise *Noise

	stone, dirt, sand, water block.StateID
	ore, lantern             block.StateID
	crystals                 []block.StateID
}

// NewTerrain разрешает состояния блоков в реестре.
// Модовые блоки необязательны: если их нет в реестре, они не ставятся.
func NewTerrain(cfg Config, blocks *block.Registry) (*Terrain, error) {
	if cfg.NoiseScale <= 0 {
		cfg.NoiseScale = DefaultConfig().NoiseScale
	}
	if cfg.Amplitude < 0 {
		return nil, fmt.Errorf("отрицательная амплитуда %d", cfg.Amplitude)
	}

	t := &Terrain{cfg: cfg, noise: NewNoise(cfg.Seed)}

	required := []struct {
		name string
		dst  *block.StateID
	}{
		{"minecraft:stone", &t.stone},
		{"minecraft:dirt", &t.dirt},
		{"minecraft:sand", &t.sand},
		{"minecraft:water", &t.water},
	}
	for _, r := range required {
		st, ok := defaultState(blocks, r.name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", block.ErrUnknownBlock, r.name)
		}
		*r.dst = st
	}

	t.ore, _ = defaultState(blocks, "polyview:glowing_ore")
	t.lantern, _ = defaultState(blocks, "polyview:lantern")
	if id, ok := blocks.BlockByName("polyview:crystal"); ok {
		b, _ := blocks.Block(id)
		for v := 0; v < b.Variants; v++ {
			st, _ := blocks.StateOf(id, v)
			t.crystals = append(t.crystals, st)
		}
	}
	return t, nil
}

func defaultState(blocks *block.Registry, name string) (block.StateID, bool) {
	id, ok := blocks.BlockByName(name)
	if !ok {
		return block.AirState, false
	}
	return blocks.DefaultState(id)
}

// HeightAt возвращает высоту поверхности в мировой колонке (x, z)
func (t *Terrain) HeightAt(x, z int) int {
	h := t.noise.At(float64(x)*t.cfg.NoiseScale, float64(z)*t.cfg.NoiseScale)
	return t.cfg.BaseHeight + int(h*float64(t.cfg.Amplitude))
}

// Generate заполняет чанк. Ячейки вне вертикальных границ чанка пропускаются.
// Результат зависит только от сида и координат чанка.
func (t *Terrain) Generate(c *world.Chunk) error {
	pos := c.Pos()
	// Для каждого чанка уникальный сид на основе глобального сида и координат
	chunkSeed := t.cfg.Seed + int64(pos.X*31) + int64(pos.Z*17)
	rng := rand.New(rand.NewSource(chunkSeed))
	origin := pos.Origin()

	for x := 0; x < vec.SectionSize; x++ {
		for z := 0; z < vec.SectionSize; z++ {
			column := origin.Add(vec.Vec3{X: x, Z: z})
			height := t.HeightAt(column.X, column.Z)
			if err := t.fillColumn(c, column, height, rng); err != nil {
				return fmt.Errorf("колонка %d,%d: %w", column.X, column.Z, err)
			}
		}
	}
	return nil
}

func (t *Terrain) fillColumn(c *world.Chunk, column vec.Vec3, height int, rng *rand.Rand) error {
	minY, maxY := c.Bounds()
	top := min(max(height, t.cfg.SeaLevel), maxY)

	for y := minY; y <= top; y++ {
		p := vec.Vec3{X: column.X, Y: y, Z: column.Z}
		state := t.cellAt(y, height, rng)
		if block.IsAir(state) {
			continue
		}
		if _, err := c.SetBlockState(p, state, false); err != nil {
			return err
		}
	}

	// Фонари только на суше
	surface := vec.Vec3{X: column.X, Y: height + 1, Z: column.Z}
	if height >= t.cfg.SeaLevel && t.lantern != block.AirState && surface.Y >= minY && surface.Y <= maxY && rng.Float64() < t.cfg.LanternChance {
		if _, err := c.SetBlockState(surface, t.lantern, false); err != nil {
			return err
		}
	}
	return nil
}

func (t *Terrain) cellAt(y, height int, rng *rand.Rand) block.StateID {
	switch {
	case y > height:
		return t.water
	case y == height && height <= t.cfg.SeaLevel+1:
		return t.sand
	case y > height-3:
		return t.dirt
	}

	roll := rng.Float64()
	switch {
	case t.ore != block.AirState && roll < t.cfg.OreChance:
		return t.ore
	case len(t.crystals) > 0 && roll < t.cfg.OreChance+t.cfg.CrystalChance:
		return t.crystals[rng.Intn(len(t.crystals))]
	}
	return t.stone
}
