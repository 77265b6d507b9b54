package chunk

import (
	"fmt"
	"sort"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/nbt"
	"github.com/annel0/mca-tools/internal/vec"
)

// HeightmapBits ширина значения в карте высот
const HeightmapBits = 9

// Виды карт высот
const (
	HeightmapMotionBlocking = "MOTION_BLOCKING"
	HeightmapWorldSurface   = "WORLD_SURFACE"
	HeightmapOceanFloor     = "OCEAN_FLOOR"
)

// FindBlocksByName возвращает мировые координаты всех блоков с именем name,
// по секциям снизу вверх
func (c *Chunk) FindBlocksByName(name string) ([]vec.Vec3, error) {
	origin, ok := c.Coordinates()
	if !ok {
		return nil, ErrMissingCoordinates
	}

	var out []vec.Vec3
	for _, s := range c.SortedSections() {
		tensor, palette, err := c.SectionBlockStateTensor(s.Y)
		if err != nil {
			return nil, err
		}

		match := make(map[int]bool)
		for i, entry := range palette {
			if blockstate.BlockFromPaletteEntry(entry).Name == name {
				match[i] = true
			}
		}
		if len(match) == 0 {
			continue
		}

		for i, idx := range tensor.cells {
			if !match[idx] {
				continue
			}
			l := vec.FromSectionIndex(i)
			out = append(out, vec.Vec3{X: origin.X + l.X, Y: s.Y*16 + l.Y, Z: origin.Z + l.Z})
		}
	}
	return out, nil
}

// UniqueBlockNames отсортированные имена блоков из палитр всех секций
func (c *Chunk) UniqueBlockNames() ([]string, error) {
	seen := make(map[string]struct{})
	for _, s := range c.SortedSections() {
		_, palette, err := c.SectionBlockStateTensor(s.Y)
		if err != nil {
			return nil, err
		}
		for _, entry := range palette {
			seen[blockstate.BlockFromPaletteEntry(entry).Name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Heightmap декодирует карту высот kind в 256 значений, индекс z*16+x
func (c *Chunk) Heightmap(kind string) ([]int, error) {
	maps, _, ok := findFirst(c.root, heightmapRoot)
	if !ok {
		return nil, fmt.Errorf("chunk %s: %s: %w", c.CoordinateKey(), kind, ErrHeightmapNotFound)
	}
	t, ok := maps.Child(kind)
	if !ok {
		return nil, fmt.Errorf("chunk %s: %s: %w", c.CoordinateKey(), kind, ErrHeightmapNotFound)
	}
	data, ok := t.Payload.(nbt.LongArray)
	if !ok {
		return nil, fmt.Errorf("chunk %s: %s: %w", c.CoordinateKey(), kind, ErrHeightmapNotFound)
	}
	return blockstate.DecodeWidth(data, HeightmapBits, 256, c.Layout())
}

// WorldHeights возвращает карту высот в мировых координатах Y.
// Значения карты отсчитываются от нижней границы мира (yPos*16).
func (c *Chunk) WorldHeights(kind string) ([]int, error) {
	heights, err := c.Heightmap(kind)
	if err != nil {
		return nil, err
	}
	minY, _ := findInt(c.root, []string{"yPos"})
	for i := range heights {
		heights[i] += minY * 16
	}
	return heights, nil
}
