package vec

// Vec2 горизонтальные координаты (X, Z): блока, чанка или региона
type Vec2 struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// ToChunkCoords преобразует координаты блока в координаты чанка
func (v Vec2) ToChunkCoords() Vec2 {
	return Vec2{X: v.X >> 4, Z: v.Z >> 4} // Деление на 16 с округлением вниз
}

// ToRegionCoords преобразует координаты блока в координаты региона
func (v Vec2) ToRegionCoords() Vec2 {
	return Vec2{X: v.X >> 9, Z: v.Z >> 9} // Деление на 512 (16*32)
}

// ChunkToRegion преобразует координаты чанка в координаты региона
func (v Vec2) ChunkToRegion() Vec2 {
	return Vec2{X: v.X >> 5, Z: v.Z >> 5}
}

// LocalInChunk возвращает локальные координаты блока внутри чанка
func (v Vec2) LocalInChunk() Vec2 {
	return Vec2{X: v.X & 0xF, Z: v.Z & 0xF} // Модуль 16
}

// LocalInRegion возвращает локальные координаты чанка внутри региона
func (v Vec2) LocalInRegion() Vec2 {
	return Vec2{X: v.X & 31, Z: v.Z & 31}
}

// Slot индекс чанка в заголовке региона
func (v Vec2) Slot() int {
	l := v.LocalInRegion()
	return l.X + l.Z*32
}

// ChunkOrigin координаты первого блока чанка
func (v Vec2) ChunkOrigin() Vec2 {
	return Vec2{X: v.X << 4, Z: v.Z << 4}
}
