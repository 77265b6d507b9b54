package save

import (
	"bytes"
	"io"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/chunk"
	"github.com/annel0/mca-tools/internal/nbt"
	"github.com/annel0/mca-tools/internal/region"
	"github.com/annel0/mca-tools/internal/vec"
)

var diamond = blockstate.Block{Name: "minecraft:diamond_ore"}

func regionBlob(t *testing.T, chunks ...vec.Vec2) []byte {
	t.Helper()
	c, err := region.Open(nil)
	require.NoError(t, err)

	list := make([]*chunk.Chunk, len(chunks))
	for i, p := range chunks {
		list[i] = chunk.New(chunk.NewRoot(p.X, p.Z, 3465, 3))
	}
	blob, err := c.Flush(list, false)
	require.NoError(t, err)
	return blob
}

func levelDat(t *testing.T) []byte {
	t.Helper()
	raw, err := nbt.Encode(nbt.NewCompoundTag("",
		nbt.NewCompoundTag("Data", nbt.NewString("LevelName", "test world"))))
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testWorld(t *testing.T) fstest.MapFS {
	return fstest.MapFS{
		"level.dat":         {Data: levelDat(t)},
		"region/r.1.1.mca":  {Data: regionBlob(t, vec.Vec2{X: 37, Z: 37})},
		"region/r.-1.0.mca": {Data: regionBlob(t)},
		"region/x.1.1.mca":  {Data: []byte("junk")},
		"r.1.100.mca":       {Data: []byte("junk")},
		"data/raids.dat":    {Data: []byte("raids")},
	}
}

func TestRegionFileNames(t *testing.T) {
	for _, name := range []string{"r.1.1.mca", "r.-1.-1.mca", "r.999.100.mca"} {
		assert.True(t, IsValidRegionFileName(name), name)
	}
	for _, name := range []string{"r.1.1.mcb", "s.1.1.mca", "r.-.1.mca", "r.1.mca"} {
		assert.False(t, IsValidRegionFileName(name), name)
	}

	p, err := ParseRegionName("r.-1.-1.mca")
	require.NoError(t, err)
	assert.Equal(t, vec.Vec2{X: -1, Z: -1}, p)

	p, err = ParseRegionName("r.999.100.mca")
	require.NoError(t, err)
	assert.Equal(t, vec.Vec2{X: 999, Z: 100}, p)

	_, err = ParseRegionName("level.dat")
	assert.ErrorIs(t, err, ErrInvalidRegionName)

	assert.Equal(t, "region/r.-2.3.mca", RegionPath(-2, 3))
}

func TestRegions(t *testing.T) {
	w := Open(testWorld(t))
	regions, err := w.Regions()
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, vec.Vec2{X: -1, Z: 0}, regions[0].Coords)
	assert.Equal(t, "region/r.1.1.mca", regions[1].Path)

	empty, err := Open(fstest.MapFS{"level.dat": {Data: []byte{}}}).Regions()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLevel(t *testing.T) {
	level, err := Open(testWorld(t)).Level()
	require.NoError(t, err)

	name, ok := nbt.FindPayload(level, "Data/LevelName")
	require.True(t, ok)
	assert.Equal(t, nbt.String("test world"), name)

	_, err = Open(fstest.MapFS{}).Level()
	assert.Error(t, err)
}

func TestGetSetBlock(t *testing.T) {
	w := Open(testWorld(t))

	got, err := w.GetBlock(600, 50, 600)
	require.NoError(t, err)
	assert.Equal(t, blockstate.Air, got)

	require.NoError(t, w.SetBlock(600, 50, 600, diamond))
	got, err = w.GetBlock(600, 50, 600)
	require.NoError(t, err)
	assert.Equal(t, diamond, got)
	assert.Equal(t, []vec.Vec2{{X: 1, Z: 1}}, w.Modified())

	_, err = w.GetBlock(5000, 0, 0)
	assert.ErrorIs(t, err, ErrRegionNotFound)
	_, err = w.GetBlock(520, 50, 520)
	assert.ErrorIs(t, err, region.ErrChunkNotPresent)

	c, ok, err := w.RegionAt(-1, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, c.Chunks())
}

type mapArchive map[string][]byte

func (m mapArchive) WriteFile(name string, data []byte) error {
	m[name] = data
	return nil
}

func TestExportSubstitutesModifiedRegions(t *testing.T) {
	fsys := testWorld(t)
	w := Open(fsys)
	require.NoError(t, w.SetBlock(600, 50, 600, diamond))

	out := mapArchive{}
	require.NoError(t, w.Export(out))
	assert.Len(t, out, len(fsys))
	assert.Equal(t, []byte("raids"), out["data/raids.dat"])
	assert.Equal(t, fsys["region/r.-1.0.mca"].Data, out["region/r.-1.0.mca"])

	c, err := region.Open(out["region/r.1.1.mca"])
	require.NoError(t, err)
	got, err := c.GetBlock(600, 50, 600)
	require.NoError(t, err)
	assert.Equal(t, diamond, got)
}

func TestExportZip(t *testing.T) {
	w := Open(testWorld(t))
	require.NoError(t, w.SetBlock(600, 50, 600, diamond))

	var buf bytes.Buffer
	require.NoError(t, w.ExportZip(&buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var found []byte
	for _, f := range zr.File {
		if f.Name != "region/r.1.1.mca" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		found, err = io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
	}
	require.NotNil(t, found)

	c, err := region.Open(found)
	require.NoError(t, err)
	got, err := c.GetBlock(600, 50, 600)
	require.NoError(t, err)
	assert.Equal(t, diamond, got)
}

func TestSaveWritesModifiedRegions(t *testing.T) {
	w := Open(testWorld(t))
	require.NoError(t, w.SetBlock(600, 50, 600, diamond))

	dir := t.TempDir()
	paths, err := w.Save(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"region/r.1.1.mca"}, paths)

	saved := OpenDir(dir)
	got, err := saved.GetBlock(600, 50, 600)
	require.NoError(t, err)
	assert.Equal(t, diamond, got)
}
