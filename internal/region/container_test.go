package region

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/chunk"
	"github.com/annel0/mca-tools/internal/nbt"
	"github.com/annel0/mca-tools/internal/stream"
)

const dataVersion = 3465

var (
	stone     = blockstate.Block{Name: "minecraft:stone"}
	fixedTime = time.Unix(1700000000, 0)
)

func fixedClock() time.Time { return fixedTime }

// countingCompressor считает вызовы распаковки
type countingCompressor struct {
	Compressor
	decompressed int
	big          int
}

func (c *countingCompressor) Compress(data []byte) ([]byte, error) {
	if c.big > 0 {
		return make([]byte, c.big), nil
	}
	return c.Compressor.Compress(data)
}

func (c *countingCompressor) Decompress(kind CompressionKind, data []byte) ([]byte, error) {
	c.decompressed++
	return c.Compressor.Decompress(kind, data)
}

type rawChunk struct {
	slot      int
	kind      CompressionKind
	payload   []byte
	timestamp uint32
}

// rawRegion собирает блоб вручную, чанки идут подряд с сектора 2
func rawRegion(t *testing.T, chunks ...rawChunk) []byte {
	t.Helper()
	header := stream.NewStream(make([]byte, HeaderSize))
	body := stream.NewGrowableStream(nil)

	var locations [SlotCount]Location
	var timestamps [SlotCount]uint32
	next := firstSector
	for _, rc := range chunks {
		sectors := (len(rc.payload) + descriptorSize + SectorSize - 1) / SectorSize
		locations[rc.slot] = Location{Offset: uint32(next), SectorCount: uint8(sectors)}
		timestamps[rc.slot] = rc.timestamp
		next += sectors

		block := stream.NewStream(make([]byte, sectors*SectorSize))
		require.NoError(t, WriteDescriptor(block, Descriptor{Length: uint32(len(rc.payload) + 1), Compression: rc.kind}))
		require.NoError(t, block.WriteBytes(rc.payload))
		require.NoError(t, body.WriteBytes(block.Bytes()))
	}
	for _, l := range locations {
		require.NoError(t, WriteLocation(header, l))
	}
	for _, ts := range timestamps {
		require.NoError(t, header.WriteUint32(ts))
	}
	return append(header.Bytes(), body.Bytes()...)
}

func encodedRoot(t *testing.T, x, z int) []byte {
	t.Helper()
	data, err := nbt.Encode(chunk.NewRoot(x, z, dataVersion, 0))
	require.NoError(t, err)
	return data
}

func TestReadLocationAndDescriptor(t *testing.T) {
	s := stream.NewStream([]byte{0, 1, 2, 3, 3})
	loc, err := ReadLocation(s)
	require.NoError(t, err)
	assert.Equal(t, Location{Offset: 258, SectorCount: 3}, loc)
	assert.Equal(t, 4, s.Position())
	assert.Equal(t, 1, s.Remaining())

	d, err := ReadDescriptor(stream.NewStream([]byte{0, 1, 2, 3, 3}))
	require.NoError(t, err)
	assert.Equal(t, Descriptor{Length: 66051, Compression: CompressionNone}, d)
}

func TestSlotWraps(t *testing.T) {
	for x := -70; x <= 70; x += 7 {
		for z := -70; z <= 70; z += 11 {
			s := Slot(x, z)
			assert.Equal(t, s, Slot(x+32, z))
			assert.Equal(t, s, Slot(x, z+32))
			assert.GreaterOrEqual(t, s, 0)
			assert.Less(t, s, SlotCount)
		}
	}
	assert.Equal(t, 1023, Slot(-1, -1))
}

func TestOpen(t *testing.T) {
	c, err := Open(nil)
	require.NoError(t, err)
	assert.Len(t, c.Bytes(), HeaderSize)
	assert.Empty(t, c.Chunks())

	_, err = Open(make([]byte, 100))
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestAbsentSlotSkipsDecompression(t *testing.T) {
	comp := &countingCompressor{Compressor: DefaultCompressor}
	blob := rawRegion(t, rawChunk{slot: Slot(1, 0), kind: CompressionNone, payload: encodedRoot(t, 1, 0)})
	c, err := Open(blob, WithCompressor(comp))
	require.NoError(t, err)

	ch, ok, err := c.GetChunk(0, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, ch)
	assert.Equal(t, 0, comp.decompressed)

	_, ok, err = c.GetChunk(1, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, comp.decompressed)
}

func TestGetChunkCaches(t *testing.T) {
	blob := rawRegion(t, rawChunk{slot: Slot(2, 3), kind: CompressionNone, payload: encodedRoot(t, 2, 3)})
	c, err := Open(blob)
	require.NoError(t, err)

	a, ok, err := c.GetChunk(2, 3)
	require.NoError(t, err)
	require.True(t, ok)
	b, _, err := c.GetChunk(34, 3)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestDecompressionFailure(t *testing.T) {
	blob := rawRegion(t, rawChunk{slot: 0, kind: CompressionZlib, payload: []byte("not zlib")})
	c, err := Open(blob)
	require.NoError(t, err)

	_, _, err = c.GetChunk(0, 0)
	assert.ErrorIs(t, err, ErrDecompression)
	var se *SlotError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, se.Slot)
	assert.Equal(t, 2*SectorSize, se.Offset)
}

func TestSetBlockFlushReread(t *testing.T) {
	c, err := Open(nil, WithRegionCoords(0, 0), WithClock(fixedClock))
	require.NoError(t, err)

	_, err = c.Flush([]*chunk.Chunk{
		chunk.New(chunk.NewRoot(1, 2, dataVersion, 0)),
		chunk.New(chunk.NewRoot(3, 4, dataVersion, 0)),
	}, false)
	require.NoError(t, err)

	c, err = Open(c.Bytes(), WithRegionCoords(0, 0), WithClock(fixedClock))
	require.NoError(t, err)
	require.NoError(t, c.SetBlock(20, 5, 37, stone))
	assert.True(t, c.Dirty())

	blob, err := c.Flush(nil, false)
	require.NoError(t, err)
	assert.False(t, c.Dirty())

	reread, err := Open(blob, WithRegionCoords(0, 0))
	require.NoError(t, err)
	got, err := reread.GetBlock(20, 5, 37)
	require.NoError(t, err)
	assert.Equal(t, stone, got)

	got, err = reread.GetBlock(21, 5, 37)
	require.NoError(t, err)
	assert.Equal(t, blockstate.Air, got)
	got, err = reread.GetBlock(50, 5, 70)
	require.NoError(t, err)
	assert.Equal(t, blockstate.Air, got)

	assert.True(t, reread.Present(3, 4))
	assert.Equal(t, uint32(fixedTime.Unix()), reread.Timestamp(Slot(1, 2)))
}

func TestFlushAfterChunkData(t *testing.T) {
	c, err := Open(nil, WithRegionCoords(0, 0))
	require.NoError(t, err)
	_, err = c.Flush([]*chunk.Chunk{chunk.New(chunk.NewRoot(0, 0, dataVersion, 0))}, false)
	require.NoError(t, err)

	require.NoError(t, c.SetBlock(1, 1, 1, stone))
	ch, ok, err := c.GetChunk(0, 0)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = ch.ChunkData()
	require.NoError(t, err)
	assert.True(t, c.Dirty())

	blob, err := c.Flush(nil, false)
	require.NoError(t, err)
	assert.False(t, ch.Modified())

	reread, err := Open(blob)
	require.NoError(t, err)
	got, err := reread.GetBlock(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, stone, got)
}

func TestBlockCoordinateErrors(t *testing.T) {
	c, err := Open(nil, WithRegionCoords(0, 0))
	require.NoError(t, err)

	_, err = c.GetBlock(600, 0, 0)
	assert.ErrorIs(t, err, ErrCoordinateOutOfRegion)
	_, err = c.GetBlock(-1, 0, 0)
	assert.ErrorIs(t, err, ErrCoordinateOutOfRegion)
	_, err = c.GetBlock(5, 0, 5)
	assert.ErrorIs(t, err, ErrChunkNotPresent)
}

func TestFlushOrdering(t *testing.T) {
	kept := rawChunk{slot: Slot(5, 5), kind: CompressionNone, payload: encodedRoot(t, 5, 5), timestamp: 42}
	c, err := Open(rawRegion(t, kept), WithClock(fixedClock))
	require.NoError(t, err)

	passed := chunk.New(chunk.NewRoot(7, 0, dataVersion, 0))
	blob, err := c.Flush([]*chunk.Chunk{passed}, false)
	require.NoError(t, err)

	reread, err := Open(blob)
	require.NoError(t, err)

	first := reread.Location(Slot(7, 0))
	second := reread.Location(Slot(5, 5))
	assert.Equal(t, uint32(2), first.Offset)
	assert.Equal(t, first.Offset+uint32(first.SectorCount), second.Offset)

	// сохранившийся чанк копируется как есть
	assert.Equal(t, uint32(42), reread.Timestamp(Slot(5, 5)))
	d, data, err := reread.payload(Slot(5, 5))
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, d.Compression)
	assert.Equal(t, kept.payload, data)

	d, _, err = reread.payload(Slot(7, 0))
	require.NoError(t, err)
	assert.Equal(t, CompressionZlib, d.Compression)
	assert.Len(t, blob, HeaderSize+SectorSize*int(first.SectorCount+second.SectorCount))
}

func TestFlushExactDropsOthers(t *testing.T) {
	c, err := Open(rawRegion(t,
		rawChunk{slot: Slot(0, 0), kind: CompressionNone, payload: encodedRoot(t, 0, 0)},
		rawChunk{slot: Slot(1, 0), kind: CompressionNone, payload: encodedRoot(t, 1, 0)},
	))
	require.NoError(t, err)

	_, ok, err := c.GetChunk(1, 0)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = c.Flush([]*chunk.Chunk{chunk.New(chunk.NewRoot(0, 0, dataVersion, 0))}, true)
	require.NoError(t, err)

	assert.True(t, c.Present(0, 0))
	assert.False(t, c.Present(1, 0))
	_, ok, err = c.GetChunk(1, 0)
	require.NoError(t, err)
	assert.False(t, ok, "кэш выброшенного слота сброшен")
}

func TestFlushChunkTooLarge(t *testing.T) {
	comp := &countingCompressor{Compressor: DefaultCompressor, big: MaxSectorCount * SectorSize}
	c, err := Open(nil, WithCompressor(comp))
	require.NoError(t, err)

	_, err = c.Flush([]*chunk.Chunk{chunk.New(chunk.NewRoot(0, 0, dataVersion, 0))}, false)
	assert.ErrorIs(t, err, ErrChunkTooLarge)
}

func TestFlushWithoutCoordinates(t *testing.T) {
	c, err := Open(nil)
	require.NoError(t, err)

	_, err = c.Flush([]*chunk.Chunk{chunk.New(nbt.NewCompoundTag(""))}, false)
	assert.ErrorIs(t, err, chunk.ErrMissingCoordinates)
}

func TestFlushRejectsForeignChunk(t *testing.T) {
	c, err := Open(rawRegion(t, rawChunk{slot: Slot(1, 1), kind: CompressionNone, payload: encodedRoot(t, 1, 1)}),
		WithRegionCoords(0, 0))
	require.NoError(t, err)

	_, err = c.Flush([]*chunk.Chunk{chunk.New(chunk.NewRoot(33, 33, dataVersion, 0))}, false)
	require.ErrorIs(t, err, ErrCoordinateOutOfRegion)

	ch, ok, err := c.GetChunk(1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	pos, _ := ch.ChunkCoordinates()
	assert.Equal(t, 1, pos.X, "чанк слота не перезаписан")

	// без координат контейнера все чанки должны быть из одного региона
	free, err := Open(nil)
	require.NoError(t, err)
	_, err = free.Flush([]*chunk.Chunk{
		chunk.New(chunk.NewRoot(1, 1, dataVersion, 0)),
		chunk.New(chunk.NewRoot(-31, 1, dataVersion, 0)),
	}, false)
	assert.ErrorIs(t, err, ErrCoordinateOutOfRegion)
}

func TestChunksWithRegionCoords(t *testing.T) {
	c, err := Open(rawRegion(t, rawChunk{slot: Slot(-1, -2), kind: CompressionNone, payload: encodedRoot(t, -1, -2)}),
		WithRegionCoords(-1, -1))
	require.NoError(t, err)

	chunks := c.Chunks()
	require.Len(t, chunks, 1)
	assert.Equal(t, -1, chunks[0].X)
	assert.Equal(t, -2, chunks[0].Z)
}

func TestCompressorRoundTrip(t *testing.T) {
	data := []byte("region payload region payload region payload")
	compressed, err := DefaultCompressor.Compress(data)
	require.NoError(t, err)

	out, err := DefaultCompressor.Decompress(CompressionZlib, compressed)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	_, err = DefaultCompressor.Decompress(CompressionKind(9), compressed)
	assert.ErrorIs(t, err, ErrUnknownCompression)
}
