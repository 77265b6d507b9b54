package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/mca-tools/internal/chunk"
	"github.com/annel0/mca-tools/internal/logging"
	"github.com/annel0/mca-tools/internal/nbt"
	"github.com/annel0/mca-tools/internal/region"
)

// ErrNotReady хранилище закрыто
var ErrNotReady = errors.New("хранилище не готово")

// Виды снимков
const (
	KindChunk  = "chunk"
	KindRegion = "region"
	KindTag    = "tag"
)

const metaPrefix = "meta:"

// SnapshotStore хранилище снимков чанков и регионов в BadgerDB.
// Значения сжимаются zstd. Безопасно для конкурентного использования.
type SnapshotStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool

	encoder *zstd.Encoder
	decoder *zstd.Decoder
	log     *logging.Logger
}

// SnapshotMeta описание сохранённого снимка
type SnapshotMeta struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	Kind       string    `json:"kind"`
	Created    time.Time `json:"created"`
	RawSize    int       `json:"raw_size"`
	StoredSize int       `json:"stored_size"`
}

// ChunkKey ключ снимка чанка
func ChunkKey(x, z int) string {
	return fmt.Sprintf("%s:%d:%d", KindChunk, x, z)
}

// RegionKey ключ снимка региона
func RegionKey(rx, rz int) string {
	return fmt.Sprintf("%s:%d:%d", KindRegion, rx, rz)
}

// NewSnapshotStore открывает хранилище в dataPath/snapshots
func NewSnapshotStore(dataPath string) (*SnapshotStore, error) {
	dbPath := filepath.Join(dataPath, "snapshots")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &SnapshotStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
		encoder: encoder,
		decoder: decoder,
		log:     logging.GetStorageLogger(),
	}, nil
}

// Close закрывает хранилище данных
func (s *SnapshotStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}

	s.isReady = false
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}

// put сжимает и сохраняет значение вместе с метаданными в одной транзакции
func (s *SnapshotStore) put(key, kind string, raw []byte) (SnapshotMeta, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return SnapshotMeta{}, ErrNotReady
	}

	data := s.encoder.EncodeAll(raw, nil)
	meta := SnapshotMeta{
		ID:         uuid.NewString(),
		Key:        key,
		Kind:       kind,
		Created:    time.Now().UTC(),
		RawSize:    len(raw),
		StoredSize: len(data),
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), data); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+key), metaData)
	})
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	s.log.Debug("снимок %s: %d -> %d байт", key, meta.RawSize, meta.StoredSize)
	return meta, nil
}

// get читает значение ключа. false, если ключа нет.
func (s *SnapshotStore) get(key string) ([]byte, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, false, ErrNotReady
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return data, true, nil
}

func (s *SnapshotStore) load(key string) ([]byte, bool, error) {
	data, ok, err := s.get(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	raw, err := s.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, false, fmt.Errorf("снимок %s: %w", key, err)
	}
	return raw, true, nil
}

// SaveTag сохраняет произвольный тег под ключом key
func (s *SnapshotStore) SaveTag(key string, tag nbt.Tag) (SnapshotMeta, error) {
	raw, err := nbt.Encode(tag)
	if err != nil {
		return SnapshotMeta{}, err
	}
	return s.put(key, KindTag, raw)
}

// LoadTag загружает тег, сохранённый SaveTag или SaveChunk
func (s *SnapshotStore) LoadTag(key string) (nbt.Tag, bool, error) {
	raw, ok, err := s.load(key)
	if err != nil || !ok {
		return nbt.Tag{}, ok, err
	}
	tag, err := nbt.Decode(raw)
	if err != nil {
		return nbt.Tag{}, false, fmt.Errorf("снимок %s: %w", key, err)
	}
	return tag, true, nil
}

// SaveChunk сохраняет чанк вместе с несохранёнными изменениями секций
func (s *SnapshotStore) SaveChunk(ch *chunk.Chunk) (SnapshotMeta, error) {
	pos, ok := ch.ChunkCoordinates()
	if !ok {
		return SnapshotMeta{}, chunk.ErrMissingCoordinates
	}
	root, err := ch.ChunkData()
	if err != nil {
		return SnapshotMeta{}, err
	}
	raw, err := nbt.Encode(root)
	if err != nil {
		return SnapshotMeta{}, err
	}
	return s.put(ChunkKey(pos.X, pos.Z), KindChunk, raw)
}

// LoadChunk загружает снимок чанка (x, z)
func (s *SnapshotStore) LoadChunk(x, z int) (*chunk.Chunk, bool, error) {
	tag, ok, err := s.LoadTag(ChunkKey(x, z))
	if err != nil || !ok {
		return nil, ok, err
	}
	return chunk.New(tag), true, nil
}

// SaveRegion сохраняет блоб региона. Несохранённые изменения сначала
// сбрасываются в контейнер.
func (s *SnapshotStore) SaveRegion(rx, rz int, c *region.Container) (SnapshotMeta, error) {
	if c.Dirty() {
		if _, err := c.Flush(nil, false); err != nil {
			return SnapshotMeta{}, err
		}
	}
	return s.put(RegionKey(rx, rz), KindRegion, c.Bytes())
}

// LoadRegion открывает сохранённый регион
func (s *SnapshotStore) LoadRegion(rx, rz int, opts ...region.Option) (*region.Container, bool, error) {
	raw, ok, err := s.load(RegionKey(rx, rz))
	if err != nil || !ok {
		return nil, ok, err
	}
	opts = append([]region.Option{region.WithRegionCoords(rx, rz)}, opts...)
	c, err := region.Open(raw, opts...)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// Meta метаданные снимка key
func (s *SnapshotStore) Meta(key string) (SnapshotMeta, bool, error) {
	data, ok, err := s.get(metaPrefix + key)
	if err != nil || !ok {
		return SnapshotMeta{}, ok, err
	}
	var meta SnapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return SnapshotMeta{}, false, fmt.Errorf("ошибка десериализации метаданных: %w", err)
	}
	return meta, true, nil
}

// Keys ключи снимков с префиксом prefix в порядке BadgerDB
func (s *SnapshotStore) Keys(prefix string) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, ErrNotReady
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			if strings.HasPrefix(key, metaPrefix) {
				continue
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return keys, nil
}

// Delete удаляет снимок и его метаданные
func (s *SnapshotStore) Delete(key string) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return ErrNotReady
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil {
			return err
		}
		return txn.Delete([]byte(metaPrefix + key))
	})
}
