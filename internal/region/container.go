package region

import (
	"fmt"
	"sort"
	"time"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/chunk"
	"github.com/annel0/mca-tools/internal/logging"
	"github.com/annel0/mca-tools/internal/nbt"
	"github.com/annel0/mca-tools/internal/stream"
	"github.com/annel0/mca-tools/internal/vec"
)

// Размеры формата Anvil
const (
	SectorSize     = 4096
	SlotCount      = 1024
	HeaderSize     = 2 * SectorSize
	MaxSectorCount = 255
	RegionChunks   = 32

	descriptorSize = 5
	firstSector    = HeaderSize / SectorSize
)

// CompressionKind вид сжатия полезной нагрузки чанка
type CompressionKind uint8

const (
	CompressionGzip CompressionKind = 1
	CompressionZlib CompressionKind = 2
	CompressionNone CompressionKind = 3
)

func (k CompressionKind) String() string {
	switch k {
	case CompressionGzip:
		return "GZIP"
	case CompressionZlib:
		return "ZLIB"
	case CompressionNone:
		return "NONE"
	default:
		return fmt.Sprintf("CompressionKind(%d)", uint8(k))
	}
}

// Location запись таблицы расположения: 24-битный номер сектора и число секторов
type Location struct {
	Offset      uint32
	SectorCount uint8
}

// Present false для пустого слота
func (l Location) Present() bool {
	return l.SectorCount != 0
}

// ReadLocation читает 4-байтовую запись расположения
func ReadLocation(s *stream.Stream) (Location, error) {
	off, err := s.ReadUintN(3)
	if err != nil {
		return Location{}, err
	}
	count, err := s.ReadUint8()
	if err != nil {
		return Location{}, err
	}
	return Location{Offset: uint32(off), SectorCount: count}, nil
}

// WriteLocation записывает 4-байтовую запись расположения
func WriteLocation(s *stream.Stream, l Location) error {
	if err := s.WriteUintN(uint64(l.Offset), 3); err != nil {
		return err
	}
	return s.WriteUint8(l.SectorCount)
}

// Descriptor заголовок данных чанка. Length учитывает байт вида сжатия.
type Descriptor struct {
	Length      uint32
	Compression CompressionKind
}

// ReadDescriptor читает 5-байтовый дескриптор данных чанка
func ReadDescriptor(s *stream.Stream) (Descriptor, error) {
	length, err := s.ReadUint32()
	if err != nil {
		return Descriptor{}, err
	}
	kind, err := s.ReadUint8()
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Length: length, Compression: CompressionKind(kind)}, nil
}

// WriteDescriptor записывает 5-байтовый дескриптор данных чанка
func WriteDescriptor(s *stream.Stream, d Descriptor) error {
	if err := s.WriteUint32(d.Length); err != nil {
		return err
	}
	return s.WriteUint8(uint8(d.Compression))
}

// Slot индекс слота для координат чанка. Slot(x, z) == Slot(x+32, z).
func Slot(x, z int) int {
	return vec.Vec2{X: x, Z: z}.Slot()
}

// Option настройка контейнера
type Option func(*Container)

// WithRegionCoords задаёт координаты региона. Без них контейнер не проверяет,
// что мировые координаты попадают в регион.
func WithRegionCoords(rx, rz int) Option {
	return func(c *Container) {
		c.coords = vec.Vec2{X: rx, Z: rz}
		c.hasCoords = true
	}
}

// WithClock задаёт источник времени для меток записи
func WithClock(clock func() time.Time) Option {
	return func(c *Container) {
		c.clock = clock
	}
}

// WithCompressor задаёт компрессор
func WithCompressor(comp Compressor) Option {
	return func(c *Container) {
		c.compressor = comp
	}
}

// Container регион Anvil в памяти. Чанки декодируются лениво и кэшируются.
// Не потокобезопасен.
type Container struct {
	data       []byte
	locations  [SlotCount]Location
	timestamps [SlotCount]uint32
	cache      chunkCache

	coords     vec.Vec2
	hasCoords  bool
	clock      func() time.Time
	compressor Compressor
	log        *logging.Logger
}

// chunkCache декодированные чанки по слоту
type chunkCache struct {
	chunks map[int]*chunk.Chunk
}

func (c *chunkCache) get(slot int) (*chunk.Chunk, bool) {
	ch, ok := c.chunks[slot]
	return ch, ok
}

func (c *chunkCache) put(slot int, ch *chunk.Chunk) {
	if c.chunks == nil {
		c.chunks = make(map[int]*chunk.Chunk)
	}
	c.chunks[slot] = ch
}

func (c *chunkCache) drop(slot int) {
	delete(c.chunks, slot)
}

func (c *chunkCache) slots() []int {
	out := make([]int, 0, len(c.chunks))
	for slot := range c.chunks {
		out = append(out, slot)
	}
	sort.Ints(out)
	return out
}

// Open разбирает блоб региона. Пустой блоб даёт пустой регион.
func Open(data []byte, opts ...Option) (*Container, error) {
	c := &Container{
		clock:      time.Now,
		compressor: DefaultCompressor,
		log:        logging.GetRegionLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if len(data) == 0 {
		c.data = make([]byte, HeaderSize)
		return c, nil
	}
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("region header: %d of %d bytes: %w", len(data), HeaderSize, ErrTruncatedInput)
	}

	s := stream.NewStream(data)
	for i := range c.locations {
		loc, err := ReadLocation(s)
		if err != nil {
			return nil, fmt.Errorf("region header: %w", err)
		}
		c.locations[i] = loc
	}
	for i := range c.timestamps {
		ts, err := s.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("region header: %w", err)
		}
		c.timestamps[i] = ts
	}

	c.data = data
	return c, nil
}

// Bytes возвращает текущий блоб региона
func (c *Container) Bytes() []byte {
	return c.data
}

// RegionCoords координаты региона, если они заданы
func (c *Container) RegionCoords() (vec.Vec2, bool) {
	return c.coords, c.hasCoords
}

// Location запись расположения слота
func (c *Container) Location(slot int) Location {
	return c.locations[slot]
}

// Timestamp метка времени последней записи слота, секунды
func (c *Container) Timestamp(slot int) uint32 {
	return c.timestamps[slot]
}

// Present есть ли в регионе чанк с координатами (x, z)
func (c *Container) Present(x, z int) bool {
	return c.locations[Slot(x, z)].Present()
}

// Chunks координаты присутствующих чанков в порядке слотов.
// Без координат региона возвращаются локальные координаты 0..31.
func (c *Container) Chunks() []vec.Vec2 {
	var out []vec.Vec2
	for slot, loc := range c.locations {
		if !loc.Present() {
			continue
		}
		p := vec.Vec2{X: slot % RegionChunks, Z: slot / RegionChunks}
		if c.hasCoords {
			p.X += c.coords.X * RegionChunks
			p.Z += c.coords.Z * RegionChunks
		}
		out = append(out, p)
	}
	return out
}

// Dirty есть ли в кэше чанки, изменённые после последнего Flush
func (c *Container) Dirty() bool {
	for _, ch := range c.cache.chunks {
		if ch.Modified() {
			return true
		}
	}
	return false
}

// payload возвращает дескриптор и сжатые данные чанка слота
func (c *Container) payload(slot int) (Descriptor, []byte, error) {
	offset := int(c.locations[slot].Offset) * SectorSize
	s := stream.NewStream(c.data)
	s.Seek(offset)

	d, err := ReadDescriptor(s)
	if err != nil {
		return Descriptor{}, nil, &SlotError{Slot: slot, Offset: offset, Err: err}
	}
	if d.Length == 0 {
		return Descriptor{}, nil, &SlotError{Slot: slot, Offset: offset, Err: ErrTruncatedInput}
	}
	data, err := s.ReadBytes(int(d.Length) - 1)
	if err != nil {
		return Descriptor{}, nil, &SlotError{Slot: slot, Offset: offset, Err: err}
	}
	return d, data, nil
}

// ReadChunkTag декодирует корневой тег чанка (x, z). Для пустого слота
// возвращает false без попытки распаковки.
func (c *Container) ReadChunkTag(x, z int) (nbt.Tag, bool, error) {
	slot := Slot(x, z)
	if !c.locations[slot].Present() {
		return nbt.Tag{}, false, nil
	}

	d, data, err := c.payload(slot)
	if err != nil {
		return nbt.Tag{}, false, err
	}
	raw, err := c.compressor.Decompress(d.Compression, data)
	if err != nil {
		return nbt.Tag{}, false, &SlotError{Slot: slot, Offset: int(c.locations[slot].Offset) * SectorSize, Err: err}
	}
	tag, err := nbt.Decode(raw)
	if err != nil {
		return nbt.Tag{}, false, &SlotError{Slot: slot, Offset: int(c.locations[slot].Offset) * SectorSize, Err: err}
	}
	return tag, true, nil
}

// GetChunk возвращает чанк (x, z). Чанк с корректным корнем кэшируется,
// повторные вызовы возвращают тот же объект.
func (c *Container) GetChunk(x, z int) (*chunk.Chunk, bool, error) {
	slot := Slot(x, z)
	if ch, ok := c.cache.get(slot); ok {
		return ch, true, nil
	}

	tag, ok, err := c.ReadChunkTag(x, z)
	if err != nil || !ok {
		return nil, ok, err
	}

	ch := chunk.New(tag)
	if chunk.IsValidRoot(tag) {
		c.cache.put(slot, ch)
	}
	return ch, true, nil
}

// chunkAt находит чанк, содержащий мировой блок (x, z)
func (c *Container) chunkAt(x, z int) (*chunk.Chunk, error) {
	cp := vec.Vec2{X: x, Z: z}.ToChunkCoords()
	if c.hasCoords && cp.ChunkToRegion() != c.coords {
		return nil, fmt.Errorf("block (%d, %d) outside region %d,%d: %w",
			x, z, c.coords.X, c.coords.Z, ErrCoordinateOutOfRegion)
	}

	ch, ok, err := c.GetChunk(cp.X, cp.Z)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("chunk %d,%d: %w", cp.X, cp.Z, ErrChunkNotPresent)
	}
	return ch, nil
}

// GetBlock возвращает блок по мировым координатам
func (c *Container) GetBlock(x, y, z int) (blockstate.Block, error) {
	ch, err := c.chunkAt(x, z)
	if err != nil {
		return blockstate.Block{}, err
	}
	return ch.GetBlock(x, y, z)
}

// SetBlock записывает блок по мировым координатам. Изменение попадает
// в блоб только после Flush.
func (c *Container) SetBlock(x, y, z int, b blockstate.Block) error {
	ch, err := c.chunkAt(x, z)
	if err != nil {
		return err
	}
	return ch.SetBlock(x, y, z, b)
}

// placement данные одного слота нового блоба
type placement struct {
	slot      int
	block     []byte // дескриптор, данные и нулевое выравнивание до сектора
	timestamp uint32
}

func (p placement) sectors() int {
	return len(p.block) / SectorSize
}

// encodeChunk сериализует и сжимает чанк в выровненный по секторам блок
func (c *Container) encodeChunk(slot int, ch *chunk.Chunk, now uint32) (placement, error) {
	tag, err := ch.ChunkData()
	if err != nil {
		return placement{}, err
	}
	raw, err := nbt.Encode(tag)
	if err != nil {
		return placement{}, err
	}
	compressed, err := c.compressor.Compress(raw)
	if err != nil {
		return placement{}, err
	}

	sectors := (len(compressed) + descriptorSize + SectorSize - 1) / SectorSize
	if sectors > MaxSectorCount {
		return placement{}, &SlotError{Slot: slot, Err: fmt.Errorf("%d sectors: %w", sectors, ErrChunkTooLarge)}
	}

	s := stream.NewStream(make([]byte, sectors*SectorSize))
	if err := WriteDescriptor(s, Descriptor{Length: uint32(len(compressed) + 1), Compression: CompressionZlib}); err != nil {
		return placement{}, err
	}
	if err := s.WriteBytes(compressed); err != nil {
		return placement{}, err
	}
	return placement{slot: slot, block: s.Bytes(), timestamp: now}, nil
}

// copyChunk переносит данные существующего слота без перекодирования
func (c *Container) copyChunk(slot int) (placement, error) {
	d, data, err := c.payload(slot)
	if err != nil {
		return placement{}, err
	}
	sectors := (len(data) + descriptorSize + SectorSize - 1) / SectorSize

	s := stream.NewStream(make([]byte, sectors*SectorSize))
	if err := WriteDescriptor(s, d); err != nil {
		return placement{}, err
	}
	if err := s.WriteBytes(data); err != nil {
		return placement{}, err
	}
	return placement{slot: slot, block: s.Bytes(), timestamp: c.timestamps[slot]}, nil
}

// Flush собирает новый блоб региона. Секторы назначаются заново, начиная со
// второго, в порядке: переданные чанки, сохранившиеся чанки старого блоба
// (пропускаются при exact), изменённые чанки из кэша. Слоты вне этих групп
// очищаются. Контейнер переходит на новый блоб.
// Изменённым считается чанк с Modified, даже если ChunkData уже вызывался.
// Переданные чанки должны лежать в регионе контейнера (или, если его
// координаты неизвестны, в одном регионе), иначе ErrCoordinateOutOfRegion.
func (c *Container) Flush(chunks []*chunk.Chunk, exact bool) ([]byte, error) {
	now := uint32(c.clock().Unix())

	var passed []placement
	taken := make(map[int]int) // слот -> индекс в passed
	region, fixed := c.coords, c.hasCoords
	for _, ch := range chunks {
		pos, ok := ch.ChunkCoordinates()
		if !ok {
			return nil, fmt.Errorf("flush: %w", chunk.ErrMissingCoordinates)
		}
		// без координат контейнера регион задаёт первый переданный чанк
		if !fixed {
			region, fixed = pos.ChunkToRegion(), true
		}
		if pos.ChunkToRegion() != region {
			return nil, fmt.Errorf("flush: chunk %d,%d outside region %d,%d: %w",
				pos.X, pos.Z, region.X, region.Z, ErrCoordinateOutOfRegion)
		}
		slot := Slot(pos.X, pos.Z)
		p, err := c.encodeChunk(slot, ch, now)
		if err != nil {
			return nil, fmt.Errorf("flush: chunk %d,%d: %w", pos.X, pos.Z, err)
		}
		if i, dup := taken[slot]; dup {
			passed[i] = p
			continue
		}
		taken[slot] = len(passed)
		passed = append(passed, p)
	}

	var dirty []placement
	for _, slot := range c.cache.slots() {
		ch, _ := c.cache.get(slot)
		if _, ok := taken[slot]; ok || !ch.Modified() {
			continue
		}
		p, err := c.encodeChunk(slot, ch, now)
		if err != nil {
			return nil, fmt.Errorf("flush: slot %d: %w", slot, err)
		}
		dirty = append(dirty, p)
	}

	var kept []placement
	if !exact {
		rewritten := make(map[int]bool, len(dirty))
		for _, p := range dirty {
			rewritten[p.slot] = true
		}
		for slot, loc := range c.locations {
			if !loc.Present() || rewritten[slot] {
				continue
			}
			if _, ok := taken[slot]; ok {
				continue
			}
			p, err := c.copyChunk(slot)
			if err != nil {
				return nil, fmt.Errorf("flush: %w", err)
			}
			kept = append(kept, p)
		}
	}

	var (
		locations  [SlotCount]Location
		timestamps [SlotCount]uint32
		order      = make([]placement, 0, len(passed)+len(kept)+len(dirty))
	)
	order = append(order, passed...)
	order = append(order, kept...)
	order = append(order, dirty...)

	next := firstSector
	for _, p := range order {
		locations[p.slot] = Location{Offset: uint32(next), SectorCount: uint8(p.sectors())}
		timestamps[p.slot] = p.timestamp
		next += p.sectors()
	}

	s := stream.NewGrowableStream(nil)
	for _, loc := range locations {
		if err := WriteLocation(s, loc); err != nil {
			return nil, err
		}
	}
	for _, ts := range timestamps {
		if err := s.WriteUint32(ts); err != nil {
			return nil, err
		}
	}
	for _, p := range order {
		if err := s.WriteBytes(p.block); err != nil {
			return nil, err
		}
	}

	c.data = s.Bytes()
	c.locations = locations
	c.timestamps = timestamps

	for _, slot := range c.cache.slots() {
		if !locations[slot].Present() {
			c.cache.drop(slot)
		}
	}
	for _, p := range dirty {
		ch, _ := c.cache.get(p.slot)
		ch.MarkSaved()
	}
	for _, ch := range chunks {
		ch.MarkSaved()
		if !chunk.IsValidRoot(ch.Root()) {
			continue
		}
		pos, _ := ch.ChunkCoordinates()
		c.cache.put(Slot(pos.X, pos.Z), ch)
	}

	c.log.Debug("flush: %d passed, %d kept, %d dirty, %d sectors, exact=%t",
		len(passed), len(kept), len(dirty), next, exact)
	return c.data, nil
}
