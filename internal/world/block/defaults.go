package block

// builtinBlocks - встроенные блоки в порядке их ID (см. константы в registry.go).
// Воздух регистрируется построителем сам.
var builtinBlocks = []Definition{
	{Name: "minecraft:stone", Variants: 1},
	{Name: "minecraft:dirt", Variants: 1},
	{Name: "minecraft:grass_block", Variants: 2},
	{Name: "minecraft:water", Variants: 16},
	{Name: "minecraft:sand", Variants: 1},
	{Name: "polyview:glowing_ore", Variants: 1},
	{Name: "polyview:crystal", Variants: 4},
	{Name: "polyview:lantern", Variants: 2},
}

// NewDefaultBuilder возвращает построитель с уже зарегистрированными встроенными блоками
func NewDefaultBuilder() *Builder {
	b := NewBuilder()
	// Встроенные имена уникальны, ошибок быть не может
	_ = b.RegisterAll(builtinBlocks)
	return b
}

// Defaults возвращает реестр только со встроенными блоками
func Defaults() *Registry {
	return NewDefaultBuilder().Build()
}
