package polymap

import (
	"fmt"
	"os"
	"sort"

	"github.com/annel0/polyview/internal/wizard"
	"github.com/annel0/polyview/internal/world/block"
	"gopkg.in/yaml.v3"
)

// KindFactory собирает фабрику визардов вида по клиентскому состоянию и опциям
type KindFactory func(client block.StateID, options map[string]int) (wizard.Factory, error)

// DefaultKinds - встроенные виды визардов
func DefaultKinds() map[string]KindFactory {
	return map[string]KindFactory{
		"display": func(client block.StateID, options map[string]int) (wizard.Factory, error) {
			interval := options["interval"]
			if interval < 0 {
				return nil, fmt.Errorf("interval должен быть >= 0, получено %d", interval)
			}
			return wizard.DisplayFactory(client, uint64(interval)), nil
		},
	}
}

// BlockRule - правило подмены одного блока
type BlockRule struct {
	Server  string         `yaml:"server"`
	Client  string         `yaml:"client"`
	Variant int            `yaml:"variant"`
	Wizard  string         `yaml:"wizard"`
	Options map[string]int `yaml:"options"`
}

// MappingDef - описание одного маппинга
type MappingDef struct {
	Name   string      `yaml:"name"`
	Native bool        `yaml:"native"`
	Blocks []BlockRule `yaml:"blocks"`
}

// File - корень YAML-файла маппингов
type File struct {
	Default  string       `yaml:"default"`
	Mappings []MappingDef `yaml:"mappings"`
}

// Set - набор именованных маппингов процесса
type Set struct {
	defaultName string
	maps        map[string]*Map
}

// Get возвращает маппинг по имени
func (s *Set) Get(name string) (*Map, bool) {
	m, ok := s.maps[name]
	return m, ok
}

// Default возвращает маппинг по умолчанию
func (s *Set) Default() *Map {
	return s.maps[s.defaultName]
}

// Names возвращает отсортированные имена маппингов
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.maps))
	for name := range s.maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadMappings читает маппинги из YAML-файла
func LoadMappings(path string, blocks *block.Registry, kinds map[string]KindFactory) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := ValidateDocument(data); err != nil {
		return nil, fmt.Errorf("маппинги %s не соответствуют схеме: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка разбора маппингов %s: %w", path, err)
	}
	return BuildSet(file, blocks, kinds)
}

// BuildSet собирает маппинги из уже разобранного описания.
// Неизвестные имена блоков здесь ошибка: конфигурация наша, в отличие от данных чанков.
func BuildSet(file File, blocks *block.Registry, kinds map[string]KindFactory) (*Set, error) {
	if len(file.Mappings) == 0 {
		return nil, fmt.Errorf("не описано ни одного маппинга")
	}

	set := &Set{maps: make(map[string]*Map, len(file.Mappings))}
	for _, def := range file.Mappings {
		if def.Name == "" {
			return nil, fmt.Errorf("маппинг без имени")
		}
		if _, exists := set.maps[def.Name]; exists {
			return nil, fmt.Errorf("маппинг %s описан дважды", def.Name)
		}

		m, err := buildMap(def, blocks, kinds)
		if err != nil {
			return nil, fmt.Errorf("маппинг %s: %w", def.Name, err)
		}
		set.maps[def.Name] = m
	}

	set.defaultName = file.Default
	if set.defaultName == "" {
		set.defaultName = file.Mappings[0].Name
	}
	if _, ok := set.maps[set.defaultName]; !ok {
		return nil, fmt.Errorf("маппинг по умолчанию %s не найден", set.defaultName)
	}
	return set, nil
}

func buildMap(def MappingDef, blocks *block.Registry, kinds map[string]KindFactory) (*Map, error) {
	reg := NewRegistry(def.Name, blocks)
	reg.SetVanillaLike(!def.Native)

	for _, rule := range def.Blocks {
		serverID, ok := blocks.BlockByName(rule.Server)
		if !ok {
			return nil, fmt.Errorf("%w: %s", block.ErrUnknownBlock, rule.Server)
		}
		clientBlock, ok := blocks.BlockByName(rule.Client)
		if !ok {
			return nil, fmt.Errorf("%w: %s", block.ErrUnknownBlock, rule.Client)
		}
		client, ok := blocks.StateOf(clientBlock, rule.Variant)
		if !ok {
			return nil, fmt.Errorf("у блока %s нет варианта %d", rule.Client, rule.Variant)
		}

		var poly BlockPoly = SimpleReplacement(client)
		if rule.Wizard != "" {
			kind, ok := kinds[rule.Wizard]
			if !ok {
				return nil, fmt.Errorf("неизвестный вид визарда %q для %s", rule.Wizard, rule.Server)
			}
			factory, err := kind(client, rule.Options)
			if err != nil {
				return nil, fmt.Errorf("визард %s для %s: %w", rule.Wizard, rule.Server, err)
			}
			poly = NewWizardBlockPoly(client, factory)
		}

		if err := reg.RegisterBlockPoly(serverID, poly); err != nil {
			return nil, err
		}
	}
	return reg.Build(), nil
}

// DefaultFile - встроенные маппинги для встроенного реестра блоков
func DefaultFile() File {
	return File{
		Default: "vanilla",
		Mappings: []MappingDef{
			{
				Name: "vanilla",
				Blocks: []BlockRule{
					{Server: "polyview:glowing_ore", Client: "minecraft:stone", Wizard: "display", Options: map[string]int{"interval": 20}},
					{Server: "polyview:crystal", Client: "minecraft:sand", Wizard: "display", Options: map[string]int{"interval": 10}},
					{Server: "polyview:lantern", Client: "minecraft:dirt"},
				},
			},
			{
				Name: "legacy",
				Blocks: []BlockRule{
					{Server: "polyview:glowing_ore", Client: "minecraft:stone"},
					{Server: "polyview:crystal", Client: "minecraft:stone"},
					{Server: "polyview:lantern", Client: "minecraft:stone", Wizard: "display"},
				},
			},
			{Name: "native", Native: true},
		},
	}
}
