// Package save работает с каталогом сохранения мира: файлами регионов,
// level.dat и выгрузкой изменённого мира в архив.
package save

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/logging"
	"github.com/annel0/mca-tools/internal/nbt"
	"github.com/annel0/mca-tools/internal/region"
	"github.com/annel0/mca-tools/internal/vec"
)

const (
	RegionDir = "region"
	LevelFile = "level.dat"
)

var (
	ErrInvalidRegionName = errors.New("invalid region file name, expected r.<x>.<z>.mca")
	ErrRegionNotFound    = errors.New("region not found")
)

var regionFileName = regexp.MustCompile(`^r\.(-?[0-9]+)\.(-?[0-9]+)\.mca$`)

// IsValidRegionFileName проверяет имя вида r.<x>.<z>.mca
func IsValidRegionFileName(name string) bool {
	return regionFileName.MatchString(name)
}

// ParseRegionName извлекает координаты региона из имени файла
func ParseRegionName(name string) (vec.Vec2, error) {
	m := regionFileName.FindStringSubmatch(name)
	if m == nil {
		return vec.Vec2{}, fmt.Errorf("%q: %w", name, ErrInvalidRegionName)
	}
	x, err := strconv.Atoi(m[1])
	if err != nil {
		return vec.Vec2{}, fmt.Errorf("%q: %w", name, ErrInvalidRegionName)
	}
	z, err := strconv.Atoi(m[2])
	if err != nil {
		return vec.Vec2{}, fmt.Errorf("%q: %w", name, ErrInvalidRegionName)
	}
	return vec.Vec2{X: x, Z: z}, nil
}

// RegionPath путь файла региона относительно корня мира
func RegionPath(rx, rz int) string {
	return path.Join(RegionDir, fmt.Sprintf("r.%d.%d.mca", rx, rz))
}

// RegionFile файл региона в каталоге мира
type RegionFile struct {
	Coords vec.Vec2
	Path   string
}

// World каталог сохранения мира. Открытые регионы кэшируются,
// изменения хранятся в памяти до Export или Save. Не потокобезопасен.
type World struct {
	fsys    fs.FS
	files   map[vec.Vec2]RegionFile
	open    map[vec.Vec2]*region.Container
	touched map[vec.Vec2]bool
	opts    []region.Option
	log     *logging.Logger
}

// Open создаёт World поверх файловой системы. opts передаются каждому
// открываемому региону.
func Open(fsys fs.FS, opts ...region.Option) *World {
	return &World{
		fsys:    fsys,
		open:    make(map[vec.Vec2]*region.Container),
		touched: make(map[vec.Vec2]bool),
		opts:    opts,
		log:     logging.GetSaveLogger(),
	}
}

// OpenDir открывает мир из каталога на диске
func OpenDir(dir string, opts ...region.Option) *World {
	return Open(os.DirFS(dir), opts...)
}

// Regions возвращает файлы регионов, отсортированные по X, затем по Z.
// Отсутствие каталога region означает пустой мир.
func (w *World) Regions() ([]RegionFile, error) {
	entries, err := fs.ReadDir(w.fsys, RegionDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", RegionDir, err)
	}

	var out []RegionFile
	for _, e := range entries {
		if e.IsDir() || !IsValidRegionFileName(e.Name()) {
			continue
		}
		coords, err := ParseRegionName(e.Name())
		if err != nil {
			continue
		}
		out = append(out, RegionFile{Coords: coords, Path: path.Join(RegionDir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Coords.X != out[j].Coords.X {
			return out[i].Coords.X < out[j].Coords.X
		}
		return out[i].Coords.Z < out[j].Coords.Z
	})
	return out, nil
}

func (w *World) regionFiles() (map[vec.Vec2]RegionFile, error) {
	if w.files != nil {
		return w.files, nil
	}
	regions, err := w.Regions()
	if err != nil {
		return nil, err
	}
	w.files = make(map[vec.Vec2]RegionFile, len(regions))
	for _, r := range regions {
		w.files[r.Coords] = r
	}
	return w.files, nil
}

// Level читает level.dat. Файл может быть сжат gzip.
func (w *World) Level() (nbt.Tag, error) {
	data, err := fs.ReadFile(w.fsys, LevelFile)
	if err != nil {
		return nbt.Tag{}, fmt.Errorf("read %s: %w", LevelFile, err)
	}
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nbt.Tag{}, fmt.Errorf("%s: %v: %w", LevelFile, err, region.ErrDecompression)
		}
		defer r.Close()
		if data, err = io.ReadAll(r); err != nil {
			return nbt.Tag{}, fmt.Errorf("%s: %v: %w", LevelFile, err, region.ErrDecompression)
		}
	}

	tag, err := nbt.Decode(data)
	if err != nil {
		return nbt.Tag{}, fmt.Errorf("%s: %w", LevelFile, err)
	}
	return tag, nil
}

// Region открывает регион по координатам региона. false, если файла нет.
func (w *World) Region(rx, rz int) (*region.Container, bool, error) {
	key := vec.Vec2{X: rx, Z: rz}
	if c, ok := w.open[key]; ok {
		return c, true, nil
	}

	files, err := w.regionFiles()
	if err != nil {
		return nil, false, err
	}
	f, ok := files[key]
	if !ok {
		return nil, false, nil
	}

	data, err := fs.ReadFile(w.fsys, f.Path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", f.Path, err)
	}
	opts := append([]region.Option{region.WithRegionCoords(rx, rz)}, w.opts...)
	c, err := region.Open(data, opts...)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", f.Path, err)
	}

	w.open[key] = c
	w.log.Debug("открыт регион %s (%d чанков)", f.Path, len(c.Chunks()))
	return c, true, nil
}

// RegionAt открывает регион, содержащий мировой блок (x, z)
func (w *World) RegionAt(x, z int) (*region.Container, bool, error) {
	r := vec.Vec2{X: x, Z: z}.ToRegionCoords()
	return w.Region(r.X, r.Z)
}

func (w *World) regionFor(x, z int) (*region.Container, error) {
	c, ok, err := w.RegionAt(x, z)
	if err != nil {
		return nil, err
	}
	if !ok {
		r := vec.Vec2{X: x, Z: z}.ToRegionCoords()
		return nil, fmt.Errorf("block (%d, %d): region %d,%d: %w", x, z, r.X, r.Z, ErrRegionNotFound)
	}
	return c, nil
}

// GetBlock возвращает блок по мировым координатам
func (w *World) GetBlock(x, y, z int) (blockstate.Block, error) {
	c, err := w.regionFor(x, z)
	if err != nil {
		return blockstate.Block{}, err
	}
	return c.GetBlock(x, y, z)
}

// SetBlock записывает блок по мировым координатам
func (w *World) SetBlock(x, y, z int, b blockstate.Block) error {
	c, err := w.regionFor(x, z)
	if err != nil {
		return err
	}
	if err := c.SetBlock(x, y, z, b); err != nil {
		return err
	}
	w.touched[vec.Vec2{X: x, Z: z}.ToRegionCoords()] = true
	return nil
}

// Modified координаты регионов с изменениями, отсортированные
func (w *World) Modified() []vec.Vec2 {
	out := make([]vec.Vec2, 0, len(w.touched))
	for k := range w.touched {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Z < out[j].Z
	})
	return out
}

// flushed сбрасывает изменения изменённых регионов и возвращает новые блобы по путям
func (w *World) flushed() (map[string][]byte, error) {
	out := make(map[string][]byte, len(w.touched))
	for _, key := range w.Modified() {
		c := w.open[key]
		if c.Dirty() {
			if _, err := c.Flush(nil, false); err != nil {
				return nil, fmt.Errorf("flush region %d,%d: %w", key.X, key.Z, err)
			}
		}
		out[RegionPath(key.X, key.Z)] = c.Bytes()
	}
	return out, nil
}

// Save записывает изменённые регионы в каталог dir и возвращает их пути
func (w *World) Save(dir string) ([]string, error) {
	blobs, err := w.flushed()
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(blobs))
	for p := range blobs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		target := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(target, blobs[p], 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", target, err)
		}
	}
	w.log.Info("💾 сохранено регионов: %d", len(paths))
	return paths, nil
}

// Export передаёт все файлы мира в архив. Изменённые регионы заменяются
// актуальными данными.
func (w *World) Export(aw ArchiveWriter) error {
	blobs, err := w.flushed()
	if err != nil {
		return err
	}

	files := 0
	err = fs.WalkDir(w.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, ok := blobs[p]
		if !ok {
			if data, err = fs.ReadFile(w.fsys, p); err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
		}
		files++
		return aw.WriteFile(p, data)
	})
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	w.log.Info("📦 экспортировано файлов: %d (изменённых регионов: %d)", files, len(blobs))
	return nil
}

// ExportZip выгружает мир в zip-архив
func (w *World) ExportZip(out io.Writer) error {
	zw := NewZipWriter(out)
	if err := w.Export(zw); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
