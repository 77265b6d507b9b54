package blockstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mca-tools/internal/nbt"
)

func TestCanonicalKey(t *testing.T) {
	b := Block{Name: "minecraft:oak_log", Properties: map[string]string{"axis": "y", "a": "1"}}
	assert.Equal(t, "minecraft:oak_log(a:1,axis:y)", b.CanonicalKey())
	assert.Equal(t, "minecraft:air", Air.CanonicalKey())

	same := Block{Name: "minecraft:oak_log", Properties: map[string]string{"a": "1", "axis": "y"}}
	assert.Equal(t, b.Digest(), same.Digest())
	assert.True(t, b.Equal(same))
	assert.NotEqual(t, b.Digest(), AirDigest)
}

func TestPaletteEntryRoundTrip(t *testing.T) {
	b := Block{Name: "minecraft:furnace", Properties: map[string]string{"lit": "false", "facing": "north"}}

	entry := PaletteEntry(b)
	props, ok := entry.Get("Properties")
	require.True(t, ok)

	// свойства записаны в порядке ключей
	children := props.Payload.(nbt.Compound).Children()
	require.Len(t, children, 2)
	assert.Equal(t, "facing", children[0].Name)

	assert.Equal(t, b, BlockFromPaletteEntry(entry))
	assert.Equal(t, Air, BlockFromPaletteEntry(PaletteEntry(Air)))
}

func TestIndexOf(t *testing.T) {
	stone := Block{Name: "minecraft:stone"}
	palette := []nbt.Compound{PaletteEntry(Air), PaletteEntry(stone)}

	assert.Equal(t, 1, IndexOf(palette, stone))
	assert.Equal(t, 0, IndexOf(palette, Air))
	assert.Equal(t, -1, IndexOf(palette, Block{Name: "minecraft:dirt"}))
}
