package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/nbt"
	"github.com/annel0/mca-tools/internal/vec"
)

const (
	modernVersion = 3465 // 1.20.1
	paddedVersion = 2730 // 1.17.1
	legacyVersion = 1976 // 1.14.4
)

var (
	stone  = blockstate.Block{Name: "minecraft:stone"}
	oakLog = blockstate.Block{Name: "minecraft:oak_log", Properties: map[string]string{"axis": "x"}}
)

func TestCoordinates(t *testing.T) {
	for _, version := range []int{modernVersion, legacyVersion} {
		c := New(NewRoot(2, -3, version, 0))

		pos, ok := c.ChunkCoordinates()
		require.True(t, ok)
		assert.Equal(t, vec.Vec2{X: 2, Z: -3}, pos)

		origin, ok := c.Coordinates()
		require.True(t, ok)
		assert.Equal(t, vec.Vec2{X: 32, Z: -48}, origin)

		assert.True(t, c.ContainsCoordinate(33, -46))
		assert.False(t, c.ContainsCoordinate(0, 0))
		assert.Equal(t, "2,-3", c.CoordinateKey())
	}
}

func TestIsValidRoot(t *testing.T) {
	assert.True(t, IsValidRoot(NewRoot(0, 0, modernVersion)))
	assert.True(t, IsValidRoot(NewRoot(0, 0, legacyVersion, 1)))
	assert.False(t, IsValidRoot(nbt.NewCompoundTag("")))
	assert.False(t, IsValidRoot(nbt.NewInt("xPos", 1)))

	bad := nbt.NewCompoundTag("", nbt.NewInt("xPos", 0), nbt.NewInt("zPos", 0),
		nbt.NewList("sections", nbt.KindInt, nbt.Int(1)))
	assert.False(t, IsValidRoot(bad))
}

func TestLayoutFromDataVersion(t *testing.T) {
	assert.Equal(t, blockstate.Current, New(NewRoot(0, 0, modernVersion)).Layout())
	assert.Equal(t, blockstate.Current, New(NewRoot(0, 0, paddedVersion)).Layout())
	assert.Equal(t, blockstate.Legacy, New(NewRoot(0, 0, legacyVersion)).Layout())
}

func TestSortedSections(t *testing.T) {
	c := New(NewRoot(0, 0, legacyVersion, 1, -1, 0))

	var ys []int
	for _, s := range c.SortedSections() {
		ys = append(ys, s.Y)
	}
	assert.Equal(t, []int{-1, 0, 1}, ys, "байт 255 читается как секция -1")
	assert.Equal(t, 1, c.SortedSections()[0].Index)
}

func TestSetBlockPersists(t *testing.T) {
	tests := []struct {
		name    string
		version int
		ys      []int
		pos     vec.Vec3
	}{
		{"1.20", modernVersion, []int{-4, 0, 1}, vec.Vec3{X: 33, Y: -60, Z: -46}},
		{"1.17", paddedVersion, []int{0, 1}, vec.Vec3{X: 40, Y: 20, Z: -33}},
		{"1.14", legacyVersion, []int{-1, 0}, vec.Vec3{X: 47, Y: 3, Z: -48}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(NewRoot(2, -3, tt.version, tt.ys...))

			require.NoError(t, c.SetBlock(tt.pos.X, tt.pos.Y, tt.pos.Z, stone))
			require.NoError(t, c.SetBlock(tt.pos.X, tt.pos.Y+1, tt.pos.Z, oakLog))
			assert.True(t, c.Dirty())

			root, err := c.ChunkData()
			require.NoError(t, err)
			assert.False(t, c.Dirty())

			reread := New(root)
			got, err := reread.GetBlock(tt.pos.X, tt.pos.Y, tt.pos.Z)
			require.NoError(t, err)
			assert.Equal(t, stone, got)

			got, err = reread.GetBlock(tt.pos.X, tt.pos.Y+1, tt.pos.Z)
			require.NoError(t, err)
			assert.Equal(t, oakLog, got)

			got, err = reread.GetBlock(tt.pos.X+1, tt.pos.Y, tt.pos.Z)
			require.NoError(t, err)
			assert.Equal(t, blockstate.Air, got)

			// дерево должно кодироваться после прививки
			_, err = nbt.Encode(root)
			require.NoError(t, err)
		})
	}
}

func TestReadOnlyAccessDoesNotDirty(t *testing.T) {
	c := New(NewRoot(0, 0, modernVersion, 0))

	tensor, palette, err := c.SectionBlockStateTensor(0)
	require.NoError(t, err)
	assert.Equal(t, 0, tensor.At(5, 5, 5))
	assert.Len(t, palette, 1)

	_, err = c.GetBlock(1, 2, 3)
	require.NoError(t, err)
	assert.False(t, c.Dirty())

	root, err := c.ChunkData()
	require.NoError(t, err)
	assert.True(t, nbt.Equal(c.Root(), root))
}

func TestModifiedSurvivesChunkData(t *testing.T) {
	c := New(NewRoot(0, 0, modernVersion, 0))
	assert.False(t, c.Modified())

	require.NoError(t, c.SetBlock(1, 1, 1, stone))
	_, err := c.ChunkData()
	require.NoError(t, err)
	assert.False(t, c.Dirty())
	assert.True(t, c.Modified())

	c.MarkSaved()
	assert.False(t, c.Modified())
}

func TestMissingSection(t *testing.T) {
	c := New(NewRoot(0, 0, modernVersion, 0))

	_, err := c.GetBlock(0, 100, 0)
	assert.ErrorIs(t, err, ErrSectionNotPresent)
	err = c.SetBlock(0, -1, 0, stone)
	assert.ErrorIs(t, err, ErrSectionNotPresent)
}

func TestPaletteReuseAndPrune(t *testing.T) {
	c := New(NewRoot(0, 0, modernVersion, 0))

	require.NoError(t, c.SetBlock(0, 0, 0, stone))
	require.NoError(t, c.SetBlock(1, 0, 0, stone))
	_, palette, err := c.SectionBlockStateTensor(0)
	require.NoError(t, err)
	assert.Len(t, palette, 2, "повторный блок не добавляется в палитру")

	// возвращаем воздух: палитра сжимается до одного элемента, data удаляется
	require.NoError(t, c.SetBlock(0, 0, 0, blockstate.Air))
	require.NoError(t, c.SetBlock(1, 0, 0, blockstate.Air))
	root, err := c.ChunkData()
	require.NoError(t, err)

	_, ok := nbt.Find(root, "sections/[0]/block_states/data")
	assert.False(t, ok)
	l, ok := nbt.FindPayload(root, "sections/[0]/block_states/palette")
	require.True(t, ok)
	assert.Len(t, l.(nbt.List).Items, 1)
}

func TestLegacyWidthInference(t *testing.T) {
	// 1.14 пишет минимум 4 бита даже для палитры из пяти блоков
	names := []string{"minecraft:air", "minecraft:stone", "minecraft:dirt", "minecraft:sand", "minecraft:gravel"}
	palette := make([]nbt.Payload, len(names))
	for i, n := range names {
		palette[i] = blockstate.PaletteEntry(blockstate.Block{Name: n})
	}
	indices := make([]int, SectionVolume)
	for i := range indices {
		indices[i] = i % len(names)
	}
	data, err := blockstate.EncodeWidth(indices, 4, blockstate.Legacy)
	require.NoError(t, err)

	root := nbt.NewCompoundTag("",
		nbt.NewInt("DataVersion", legacyVersion),
		nbt.NewCompoundTag("Level",
			nbt.NewInt("xPos", 0),
			nbt.NewInt("zPos", 0),
			nbt.NewList("Sections", nbt.KindCompound, nbt.NewCompound(
				nbt.NewByte("Y", 0),
				nbt.NewList("Palette", nbt.KindCompound, palette...),
				nbt.Tag{Name: "BlockStates", Payload: data},
			)),
		),
	)

	c := New(root)
	for i := 0; i < 20; i++ {
		p := vec.FromSectionIndex(i)
		got, err := c.GetBlock(p.X, p.Y, p.Z)
		require.NoError(t, err)
		assert.Equal(t, names[i%len(names)], got.Name)
	}
}

func TestFindBlocksAndNames(t *testing.T) {
	c := New(NewRoot(1, 1, modernVersion, 0, 1))
	require.NoError(t, c.SetBlock(16, 3, 17, stone))
	require.NoError(t, c.SetBlock(20, 18, 30, stone))
	require.NoError(t, c.SetBlock(21, 18, 30, oakLog))

	found, err := c.FindBlocksByName(stone.Name)
	require.NoError(t, err)
	assert.Equal(t, []vec.Vec3{{X: 16, Y: 3, Z: 17}, {X: 20, Y: 18, Z: 30}}, found)

	names, err := c.UniqueBlockNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"minecraft:air", "minecraft:oak_log", "minecraft:stone"}, names)
}

func TestWorldHeights(t *testing.T) {
	values := make([]int, 256)
	for i := range values {
		values[i] = 64 + i%16
	}
	data, err := blockstate.EncodeWidth(values, HeightmapBits, blockstate.Current)
	require.NoError(t, err)
	assert.Equal(t, 37, data.Len())

	root, err := nbt.AddTag(NewRoot(0, 0, modernVersion, -4, 0), "Heightmaps",
		nbt.Tag{Name: HeightmapWorldSurface, Payload: data}, nbt.Options{Recursive: true})
	require.NoError(t, err)

	c := New(root)
	raw, err := c.Heightmap(HeightmapWorldSurface)
	require.NoError(t, err)
	assert.Equal(t, values, raw)

	heights, err := c.WorldHeights(HeightmapWorldSurface)
	require.NoError(t, err)
	assert.Equal(t, 0, heights[0])
	assert.Equal(t, 15, heights[15])

	_, err = c.Heightmap(HeightmapOceanFloor)
	assert.ErrorIs(t, err, ErrHeightmapNotFound)
}
