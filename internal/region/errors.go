package region

import (
	"errors"
	"fmt"

	"github.com/annel0/mca-tools/internal/stream"
)

var (
	// ErrTruncatedInput данных меньше, чем требует заголовок или дескриптор
	ErrTruncatedInput = stream.ErrTruncatedInput

	ErrCoordinateOutOfRegion = errors.New("coordinate out of region")
	ErrChunkNotPresent       = errors.New("chunk not present")
	ErrChunkTooLarge         = errors.New("chunk does not fit in 255 sectors")
	ErrDecompression         = errors.New("decompression failed")
	ErrUnknownCompression    = errors.New("unknown compression kind")
)

// SlotError ошибка, относящаяся к конкретному слоту региона
type SlotError struct {
	Slot   int
	Offset int // байтовое смещение данных чанка в блобе
	Err    error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("region slot %d at offset %d: %v", e.Slot, e.Offset, e.Err)
}

func (e *SlotError) Unwrap() error {
	return e.Err
}
