package chunk

import (
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/nbt"
	"github.com/annel0/mca-tools/internal/vec"
)

// DataVersion, начиная с которой индексы не пересекают границу слова
const PaddedPackingDataVersion = 2527

var (
	ErrSectionNotPresent  = errors.New("section not present")
	ErrMissingCoordinates = errors.New("chunk has no coordinates")
	ErrMissingSections    = errors.New("chunk has no section list")
	ErrHeightmapNotFound  = errors.New("heightmap not found")
)

// Пути различаются между версиями формата: до 1.18 данные лежат под Level
var (
	xPosPaths     = []string{"Level/xPos", "xPos"}
	zPosPaths     = []string{"Level/zPos", "zPos"}
	sectionPaths  = []string{"Level/Sections", "sections"}
	heightmapRoot = []string{"Level/Heightmaps", "Heightmaps"}
)

// Chunk обёртка над корневым тегом чанка с кэшем декодированных секций.
// Не потокобезопасен.
type Chunk struct {
	root     nbt.Tag
	cache    sectionCache
	modified bool // изменён после последней записи в регион
}

// sectionCache декодированные секции по индексу Y
type sectionCache struct {
	entries map[int]*sectionEntry
}

type sectionEntry struct {
	tensor  *Tensor
	palette []nbt.Compound
	dirty   bool
}

func (c *sectionCache) get(y int) (*sectionEntry, bool) {
	e, ok := c.entries[y]
	return e, ok
}

func (c *sectionCache) put(y int, e *sectionEntry) {
	if c.entries == nil {
		c.entries = make(map[int]*sectionEntry)
	}
	c.entries[y] = e
}

func (c *sectionCache) dirty() []int {
	var ys []int
	for y, e := range c.entries {
		if e.dirty {
			ys = append(ys, y)
		}
	}
	sort.Ints(ys)
	return ys
}

// New оборачивает корневой тег
func New(root nbt.Tag) *Chunk {
	return &Chunk{root: root}
}

// Root возвращает текущий корневой тег (без несохранённых изменений секций)
func (c *Chunk) Root() nbt.Tag {
	return c.root
}

func findFirst(root nbt.Tag, paths []string) (nbt.Tag, string, bool) {
	for _, p := range paths {
		if t, ok := nbt.Find(root, p); ok {
			return t, p, true
		}
	}
	return nbt.Tag{}, "", false
}

func findInt(root nbt.Tag, paths []string) (int, bool) {
	t, _, ok := findFirst(root, paths)
	if !ok {
		return 0, false
	}
	v, ok := nbt.Int64(t.Payload)
	return int(v), ok
}

// IsValidRoot проверяет, что тег похож на корень чанка: COMPOUND с
// координатами и списком секций
func IsValidRoot(tag nbt.Tag) bool {
	if tag.Kind() != nbt.KindCompound {
		return false
	}
	if _, ok := findInt(tag, xPosPaths); !ok {
		return false
	}
	if _, ok := findInt(tag, zPosPaths); !ok {
		return false
	}
	sections, _, ok := findFirst(tag, sectionPaths)
	return ok && IsValidSectionList(sections)
}

// IsValidSectionList проверяет, что тег является списком COMPOUND (пустой список допустим)
func IsValidSectionList(tag nbt.Tag) bool {
	l, ok := tag.Payload.(nbt.List)
	if !ok {
		return false
	}
	return l.Elem == nbt.KindCompound || len(l.Items) == 0
}

// ChunkCoordinates координаты чанка (xPos, zPos)
func (c *Chunk) ChunkCoordinates() (vec.Vec2, bool) {
	x, okX := findInt(c.root, xPosPaths)
	z, okZ := findInt(c.root, zPosPaths)
	return vec.Vec2{X: x, Z: z}, okX && okZ
}

// Coordinates координаты первого блока чанка
func (c *Chunk) Coordinates() (vec.Vec2, bool) {
	pos, ok := c.ChunkCoordinates()
	return pos.ChunkOrigin(), ok
}

// ContainsCoordinate проверяет, что блок (x, z) лежит в этом чанке
func (c *Chunk) ContainsCoordinate(x, z int) bool {
	pos, ok := c.ChunkCoordinates()
	return ok && vec.Vec2{X: x, Z: z}.ToChunkCoords() == pos
}

// CoordinateKey строковый ключ чанка "x,z"
func (c *Chunk) CoordinateKey() string {
	pos, _ := c.ChunkCoordinates()
	return fmt.Sprintf("%d,%d", pos.X, pos.Z)
}

// DataVersion версия данных чанка; 0, если тега нет
func (c *Chunk) DataVersion() int {
	v, _ := findInt(c.root, []string{"DataVersion"})
	return v
}

// Layout способ упаковки индексов для версии этого чанка
func (c *Chunk) Layout() blockstate.Layout {
	if c.DataVersion() < PaddedPackingDataVersion {
		return blockstate.Legacy
	}
	return blockstate.Current
}

// Section секция чанка
type Section struct {
	Y     int // индекс по высоте
	Index int // позиция в списке секций
	Tag   nbt.Compound
}

// Sections возвращает секции в порядке хранения
func (c *Chunk) Sections() []Section {
	t, _, ok := findFirst(c.root, sectionPaths)
	if !ok {
		return nil
	}
	l, ok := t.Payload.(nbt.List)
	if !ok {
		return nil
	}
	out := make([]Section, 0, len(l.Items))
	for i, item := range l.Items {
		comp, ok := item.(nbt.Compound)
		if !ok {
			continue
		}
		y, ok := sectionY(comp)
		if !ok {
			continue
		}
		out = append(out, Section{Y: y, Index: i, Tag: comp})
	}
	return out
}

// SortedSections секции по возрастанию Y. Отсутствующие секции не создаются.
func (c *Chunk) SortedSections() []Section {
	out := c.Sections()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Y < out[j].Y })
	return out
}

// sectionY читает индекс секции. Байтовое значение трактуется как беззнаковое:
// старые версии хранят отрицательные секции как 252..255.
func sectionY(c nbt.Compound) (int, bool) {
	t, ok := c.Get("Y")
	if !ok {
		return 0, false
	}
	if b, ok := t.Payload.(nbt.Byte); ok {
		y := int(uint8(b))
		if y >= 252 {
			y -= 256
		}
		return y, true
	}
	v, ok := nbt.Int64(t.Payload)
	return int(v), ok
}

func (c *Chunk) section(y int) (Section, bool) {
	for _, s := range c.Sections() {
		if s.Y == y {
			return s, true
		}
	}
	return Section{}, false
}

// sectionsPath путь к списку секций в корне
func (c *Chunk) sectionsPath() (string, bool) {
	_, p, ok := findFirst(c.root, sectionPaths)
	return p, ok
}

// blockStateKeys имена тегов данных и палитры внутри секции.
// С 1.18 они вложены в block_states.
// До 1.18 массив BlockStates обязателен и не короче 4 бит на индекс.
type blockStateKeys struct {
	container string
	data      string
	palette   string
	minWidth  int
}

var (
	modernKeys = blockStateKeys{container: "block_states", data: "data", palette: "palette"}
	olderKeys  = blockStateKeys{data: "BlockStates", palette: "Palette", minWidth: 4}
)

// keys выбирает имена по формату чанка: список "sections" в корне
// появился вместе с block_states
func (c *Chunk) keys() blockStateKeys {
	if p, _ := c.sectionsPath(); p == "sections" {
		return modernKeys
	}
	return olderKeys
}

func (k blockStateKeys) base(section nbt.Tag) nbt.Tag {
	if k.container == "" {
		return section
	}
	t, _ := section.Child(k.container)
	return t
}

// SectionBlockStateTensor декодирует секцию yIndex в тензор индексов и
// возвращает его вместе с палитрой. Результат кэшируется; чтение не помечает
// секцию изменённой.
func (c *Chunk) SectionBlockStateTensor(yIndex int) (*Tensor, []nbt.Compound, error) {
	e, err := c.entry(yIndex)
	if err != nil {
		return nil, nil, err
	}
	return e.tensor, e.palette, nil
}

func (c *Chunk) entry(yIndex int) (*sectionEntry, error) {
	if e, ok := c.cache.get(yIndex); ok {
		return e, nil
	}

	s, ok := c.section(yIndex)
	if !ok {
		return nil, fmt.Errorf("chunk %s: section %d: %w", c.CoordinateKey(), yIndex, ErrSectionNotPresent)
	}

	keys := c.keys()
	base := keys.base(nbt.Tag{Payload: s.Tag})

	var palette []nbt.Compound
	if t, ok := base.Child(keys.palette); ok {
		if l, ok := t.Payload.(nbt.List); ok {
			for _, item := range l.Items {
				if comp, ok := item.(nbt.Compound); ok {
					palette = append(palette, comp)
				}
			}
		}
	}
	// секция без палитры считается заполненной воздухом
	if len(palette) == 0 {
		palette = []nbt.Compound{blockstate.PaletteEntry(blockstate.Air)}
	}

	var data nbt.LongArray
	if t, ok := base.Child(keys.data); ok {
		data, _ = t.Payload.(nbt.LongArray)
	}

	layout := c.Layout()
	width := blockstate.BitsPerIndex(len(palette), layout)
	if width > 0 && data.Len() != blockstate.WordCount(width, SectionVolume, layout) {
		if w := blockstate.InferWidth(data.Len(), SectionVolume, width, layout); w > 0 {
			width = w
		}
	}

	indices, err := blockstate.DecodeWidth(data, width, SectionVolume, layout)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: section %d: %w", c.CoordinateKey(), yIndex, err)
	}

	e := &sectionEntry{tensor: NewTensor(indices), palette: palette}
	c.cache.put(yIndex, e)
	return e, nil
}

// GetBlock возвращает блок по мировым координатам. X и Z берутся по модулю 16.
func (c *Chunk) GetBlock(x, y, z int) (blockstate.Block, error) {
	p := vec.Vec3{X: x, Y: y, Z: z}
	e, err := c.entry(p.SectionY())
	if err != nil {
		return blockstate.Block{}, err
	}
	l := p.Local()
	idx := e.tensor.At(l.X, l.Y, l.Z)
	if idx < 0 || idx >= len(e.palette) {
		return blockstate.Block{}, fmt.Errorf("chunk %s: index %d, palette size %d: %w",
			c.CoordinateKey(), idx, len(e.palette), blockstate.ErrIndexOutOfRange)
	}
	return blockstate.BlockFromPaletteEntry(e.palette[idx]), nil
}

// SetBlock записывает блок по мировым координатам и помечает секцию изменённой.
// Блок, которого нет в палитре, добавляется в её конец.
func (c *Chunk) SetBlock(x, y, z int, b blockstate.Block) error {
	p := vec.Vec3{X: x, Y: y, Z: z}
	e, err := c.entry(p.SectionY())
	if err != nil {
		return err
	}

	idx := blockstate.IndexOf(e.palette, b)
	if idx < 0 {
		// палитра могла быть взята из дерева, поэтому копируем перед добавлением
		palette := make([]nbt.Compound, len(e.palette), len(e.palette)+1)
		copy(palette, e.palette)
		e.palette = append(palette, blockstate.PaletteEntry(b))
		idx = len(e.palette) - 1
	}

	l := p.Local()
	e.tensor.Set(l.X, l.Y, l.Z, idx)
	e.dirty = true
	c.modified = true
	return nil
}

// Dirty есть ли секции, не перенесённые в дерево
func (c *Chunk) Dirty() bool {
	return len(c.cache.dirty()) > 0
}

// Modified был ли чанк изменён после последнего MarkSaved.
// В отличие от Dirty, не сбрасывается в ChunkData.
func (c *Chunk) Modified() bool {
	return c.modified
}

// MarkSaved отмечает, что текущее дерево записано в регион
func (c *Chunk) MarkSaved() {
	c.modified = false
}

// ChunkData сериализует изменённые секции обратно в дерево и возвращает новый
// корень. Флаги изменений сбрасываются, сохранённые секции удаляются из кэша.
func (c *Chunk) ChunkData() (nbt.Tag, error) {
	dirty := c.cache.dirty()
	if len(dirty) == 0 {
		return c.root, nil
	}

	sectionsPath, ok := c.sectionsPath()
	if !ok {
		return nbt.Tag{}, fmt.Errorf("chunk %s: %w", c.CoordinateKey(), ErrMissingSections)
	}

	root := c.root
	layout := c.Layout()
	opts := nbt.Options{Overwrite: true, Recursive: true}

	for _, y := range dirty {
		e, _ := c.cache.get(y)
		s, ok := c.section(y)
		if !ok {
			return nbt.Tag{}, fmt.Errorf("chunk %s: section %d: %w", c.CoordinateKey(), y, ErrSectionNotPresent)
		}

		indices, palette, err := blockstate.Canonicalize(e.tensor.Indices(), e.palette)
		if err != nil {
			return nbt.Tag{}, fmt.Errorf("chunk %s: section %d: %w", c.CoordinateKey(), y, err)
		}
		keys := c.keys()
		data, err := blockstate.EncodeWidth(indices, max(keys.minWidth, blockstate.BitsPerIndex(len(palette), layout)), layout)
		if err != nil {
			return nbt.Tag{}, fmt.Errorf("chunk %s: section %d: %w", c.CoordinateKey(), y, err)
		}

		base := nbt.JoinPath(sectionsPath, fmt.Sprintf("[%d]", s.Index), keys.container)

		items := make([]nbt.Payload, len(palette))
		for i, p := range palette {
			items[i] = p
		}
		root, err = nbt.AddTag(root, base, nbt.NewList(keys.palette, nbt.KindCompound, items...), opts)
		if err != nil {
			return nbt.Tag{}, fmt.Errorf("chunk %s: section %d: %w", c.CoordinateKey(), y, err)
		}

		if data.Len() == 0 {
			pruned, err := nbt.DeleteTag(root, nbt.JoinPath(base, keys.data), false)
			switch {
			case err == nil:
				root = pruned
			case !errors.Is(err, nbt.ErrPathNotFound):
				return nbt.Tag{}, fmt.Errorf("chunk %s: section %d: %w", c.CoordinateKey(), y, err)
			}
			continue
		}

		root, err = nbt.AddTag(root, base, nbt.Tag{Name: keys.data, Payload: data}, opts)
		if err != nil {
			return nbt.Tag{}, fmt.Errorf("chunk %s: section %d: %w", c.CoordinateKey(), y, err)
		}
	}

	c.root = root
	for _, y := range dirty {
		delete(c.cache.entries, y)
	}
	return root, nil
}
