package eventbus

import (
	"errors"

	"github.com/annel0/mca-tools/internal/blockstate"
	"github.com/annel0/mca-tools/internal/vec"
)

// ErrBusClosed публикация в закрытую шину
var ErrBusClosed = errors.New("event bus closed")

// BlockChanged полезная нагрузка EventBlockChanged
type BlockChanged struct {
	Pos      vec.Vec3         `json:"pos"`
	Block    blockstate.Block `json:"block"`
	Previous blockstate.Block `json:"previous"`
}

// RegionsSaved полезная нагрузка EventRegionsSaved
type RegionsSaved struct {
	Dir   string   `json:"dir"`
	Paths []string `json:"paths"`
}

// WorldExported полезная нагрузка EventWorldExported
type WorldExported struct {
	Name string `json:"name"`
}

// SnapshotTaken полезная нагрузка EventSnapshotTaken
type SnapshotTaken struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}
