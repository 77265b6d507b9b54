package vec

// Vec3 координаты блока в мире
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Horizontal отбрасывает высоту
func (v Vec3) Horizontal() Vec2 {
	return Vec2{X: v.X, Z: v.Z}
}

// ChunkCoords координаты чанка, содержащего блок
func (v Vec3) ChunkCoords() Vec2 {
	return v.Horizontal().ToChunkCoords()
}

// RegionCoords координаты региона, содержащего блок
func (v Vec3) RegionCoords() Vec2 {
	return v.Horizontal().ToRegionCoords()
}

// SectionY индекс секции по высоте (деление на 16 с округлением вниз)
func (v Vec3) SectionY() int {
	return v.Y >> 4
}

// Local координаты внутри секции 16x16x16
func (v Vec3) Local() Vec3 {
	return Vec3{X: v.X & 0xF, Y: v.Y & 0xF, Z: v.Z & 0xF}
}

// SectionIndex линейный индекс блока внутри секции: (y*16+z)*16+x
func (v Vec3) SectionIndex() int {
	l := v.Local()
	return (l.Y*16+l.Z)*16 + l.X
}

// FromSectionIndex восстанавливает локальные координаты из индекса секции
func FromSectionIndex(i int) Vec3 {
	return Vec3{X: i & 0xF, Y: i >> 8 & 0xF, Z: i >> 4 & 0xF}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}
