package chunk

import "github.com/annel0/mca-tools/internal/vec"

// SectionVolume число блоков в секции 16x16x16
const SectionVolume = 16 * 16 * 16

// Tensor плотный массив индексов палитры одной секции.
// Индекс ячейки: (y*16+z)*16+x.
type Tensor struct {
	cells []int
}

// NewTensor создаёт тензор из 4096 индексов. Короткий срез дополняется нулями.
func NewTensor(indices []int) *Tensor {
	cells := make([]int, SectionVolume)
	copy(cells, indices)
	return &Tensor{cells: cells}
}

// At возвращает индекс палитры в локальной точке
func (t *Tensor) At(x, y, z int) int {
	return t.cells[vec.Vec3{X: x, Y: y, Z: z}.SectionIndex()]
}

// Set записывает индекс палитры в локальную точку
func (t *Tensor) Set(x, y, z, v int) {
	t.cells[vec.Vec3{X: x, Y: y, Z: z}.SectionIndex()] = v
}

// Indices возвращает копию всех индексов в порядке секции
func (t *Tensor) Indices() []int {
	out := make([]int, len(t.cells))
	copy(out, t.cells)
	return out
}
