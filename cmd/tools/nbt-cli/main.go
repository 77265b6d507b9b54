package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/logging"
	"github.com/annel0/mca-tools/internal/nbt"
	"github.com/annel0/mca-tools/internal/region"
	"github.com/annel0/mca-tools/internal/save"
	"github.com/annel0/mca-tools/internal/storage"
	"github.com/annel0/mca-tools/internal/vec"
)

func main() {
	var (
		command  = flag.String("cmd", "regions", "Command: dump, regions, get-block, set-block, export, snapshot")
		worldDir = flag.String("world", ".", "World save directory")
		file     = flag.String("file", "", "NBT file for dump (gzip allowed for level.dat)")
		path     = flag.String("path", "", "Tag path inside the dumped tree, e.g. sections/0/block_states")
		raw      = flag.Bool("raw", false, "Hex dump of the encoded tag instead of JSON")
		x        = flag.Int("x", 0, "X coordinate (block, or chunk for dump/snapshot)")
		y        = flag.Int("y", 0, "Y coordinate")
		z        = flag.Int("z", 0, "Z coordinate (block, or chunk for dump/snapshot)")
		name     = flag.String("block", "", "Block name for set-block")
		props    = flag.String("props", "", "Block properties for set-block (key=value, comma-separated)")
		out      = flag.String("out", "world.zip", "Output archive for export")
		dataDir  = flag.String("data", "data", "Snapshot store directory")
		verbose  = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	if *verbose {
		logging.Configure("", logging.DEBUG)
	}
	w := save.OpenDir(*worldDir)

	var err error
	switch *command {
	case "dump":
		err = dump(w, *file, *path, *raw, *x, *z)
	case "regions":
		err = listRegions(w)
	case "get-block":
		err = getBlock(w, *x, *y, *z)
	case "set-block":
		err = setBlock(w, *worldDir, *x, *y, *z, *name, *props)
	case "export":
		err = export(w, *out)
	case "snapshot":
		err = snapshot(w, *dataDir, *x, *z)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: dump, regions, get-block, set-block, export, snapshot")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// dump печатает тег файла или чанка (x, z) мира
func dump(w *save.World, file, path string, raw bool, x, z int) error {
	tag, err := loadTag(w, file, x, z)
	if err != nil {
		return err
	}
	if path != "" {
		found, ok := nbt.Find(tag, path)
		if !ok {
			return fmt.Errorf("path %q not found", path)
		}
		tag = found
	}

	if raw {
		data, err := nbt.Encode(tag)
		if err != nil {
			return err
		}
		fmt.Print(logging.HexDump(data))
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{tag.Name: nbt.Simplify(tag.Payload)})
}

func loadTag(w *save.World, file string, x, z int) (nbt.Tag, error) {
	switch file {
	case "":
	case save.LevelFile:
		return w.Level()
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return nbt.Tag{}, err
		}
		return nbt.Decode(data)
	}

	r := vec.Vec2{X: x, Z: z}.ChunkToRegion()
	c, ok, err := w.Region(r.X, r.Z)
	if err != nil {
		return nbt.Tag{}, err
	}
	if !ok {
		return nbt.Tag{}, save.ErrRegionNotFound
	}
	tag, ok, err := c.ReadChunkTag(x, z)
	if err != nil {
		return nbt.Tag{}, err
	}
	if !ok {
		return nbt.Tag{}, region.ErrChunkNotPresent
	}
	return tag, nil
}

// listRegions выводит регионы и число чанков в каждом
func listRegions(w *save.World) error {
	regions, err := w.Regions()
	if err != nil {
		return err
	}
	for _, r := range regions {
		c, _, err := w.Region(r.Coords.X, r.Coords.Z)
		if err != nil {
			fmt.Printf("%-24s error: %v\n", r.Path, err)
			continue
		}
		fmt.Printf("%-24s %4d chunks\n", r.Path, len(c.Chunks()))
	}
	fmt.Printf("\n📊 Total regions: %d\n", len(regions))
	return nil
}

func getBlock(w *save.World, x, y, z int) error {
	b, err := w.GetBlock(x, y, z)
	if err != nil {
		return err
	}
	fmt.Printf("(%d,%d,%d) %s\n", x, y, z, b)
	return nil
}

// setBlock меняет блок и сохраняет изменённый регион на место
func setBlock(w *save.World, dir string, x, y, z int, name, props string) error {
	if name == "" {
		return fmt.Errorf("-block is required")
	}
	b := blockstate.Block{Name: name, Properties: parseProperties(props)}
	if err := w.SetBlock(x, y, z, b); err != nil {
		return err
	}
	paths, err := w.Save(dir)
	if err != nil {
		return err
	}
	fmt.Printf("✅ (%d,%d,%d) = %s, written: %s\n", x, y, z, b, strings.Join(paths, ", "))
	return nil
}

func export(w *save.World, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := w.ExportZip(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("📦 Exported to %s\n", out)
	return nil
}

// snapshot сохраняет чанк (x, z) в хранилище снимков
func snapshot(w *save.World, dataDir string, x, z int) error {
	store, err := storage.NewSnapshotStore(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	r := vec.Vec2{X: x, Z: z}.ChunkToRegion()
	c, ok, err := w.Region(r.X, r.Z)
	if err != nil {
		return err
	}
	if !ok {
		return save.ErrRegionNotFound
	}
	ch, ok, err := c.GetChunk(x, z)
	if err != nil {
		return err
	}
	if !ok {
		return region.ErrChunkNotPresent
	}

	meta, err := store.SaveChunk(ch)
	if err != nil {
		return err
	}
	fmt.Printf("💾 %s id=%s raw=%d stored=%d\n", meta.Key, meta.ID, meta.RawSize, meta.StoredSize)
	return nil
}

// parseProperties парсит строку вида "axis=x,waterlogged=false"
func parseProperties(s string) map[string]string {
	if s == "" {
		return nil
	}
	result := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && k != "" {
			result[k] = v
		}
	}
	return result
}
