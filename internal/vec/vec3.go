package vec

import "fmt"

// SectionSize - сторона секции чанка в блоках
const SectionSize = 16

// SectionVolume - количество ячеек в одной секции (16*16*16)
const SectionVolume = SectionSize * SectionSize * SectionSize

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Используется как позиция блока в мировых координатах.
type Vec3 struct {
	X int
	Y int
	Z int
}

// FromSectionIndex раскладывает индекс ячейки секции [0, 4095] в локальные координаты.
// Раскладка фиксирована: x = idx & 0xF, z = (idx>>4) & 0xF, y = idx>>8.
func FromSectionIndex(idx int) Vec3 {
	return Vec3{
		X: idx & 0xF,
		Y: (idx >> 8) & 0xF,
		Z: (idx >> 4) & 0xF,
	}
}

// SectionIndex возвращает индекс ячейки внутри секции (обратное к FromSectionIndex)
func (v Vec3) SectionIndex() int {
	return (v.Y&0xF)<<8 | (v.Z&0xF)<<4 | (v.X & 0xF)
}

// ChunkPos возвращает координаты чанка, которому принадлежит позиция
func (v Vec3) ChunkPos() ChunkPos {
	return ChunkPos{X: v.X >> 4, Z: v.Z >> 4} // Деление на 16 с округлением вниз
}

// SectionY возвращает номер секции по вертикали
func (v Vec3) SectionY() int {
	return v.Y >> 4
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// DistanceTo возвращает квадрат расстояния до другого вектора
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return float64(dx*dx + dy*dy + dz*dz)
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}
