package vec

import "fmt"

// ChunkPos - координаты чанка в единицах секций по горизонтали
type ChunkPos struct {
	X, Z int
}

// Origin возвращает мировые координаты угла чанка с минимальными X и Z
func (c ChunkPos) Origin() Vec3 {
	return Vec3{X: c.X * SectionSize, Z: c.Z * SectionSize}
}

// Within проверяет, что чанк находится в квадрате радиуса r вокруг center
func (c ChunkPos) Within(center ChunkPos, r int) bool {
	dx := c.X - center.X
	dz := c.Z - center.Z
	return dx >= -r && dx <= r && dz >= -r && dz <= r
}

func (c ChunkPos) String() string {
	return fmt.Sprintf("[%d,%d]", c.X, c.Z)
}
