package blockstate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/annel0/mca-tools/internal/nbt"
	"github.com/annel0/mca-tools/internal/stream"
)

// Layout способ упаковки индексов палитры в 64-битные слова
type Layout int

const (
	// Current: в слово помещается floor(64/w) индексов, старшие биты слова
	// остаются нулевыми, индекс не пересекает границу слова (DataVersion >= 2527)
	Current Layout = iota
	// Legacy: индексы упакованы подряд и могут пересекать границу слов
	Legacy
)

func (l Layout) String() string {
	if l == Legacy {
		return "legacy"
	}
	return "current"
}

var (
	// ErrTruncatedInput данных меньше, чем нужно для count индексов
	ErrTruncatedInput = stream.ErrTruncatedInput
	// ErrIndexOutOfRange индекс не помещается в ширину поля или выходит за палитру
	ErrIndexOutOfRange = errors.New("palette index out of range")
	// ErrInvalidWidth ширина поля вне 0..64
	ErrInvalidWidth = stream.ErrInvalidWidth
)

// BitsPerIndex ширина индекса для палитры заданного размера.
// Палитра из одного элемента не требует данных (ширина 0).
func BitsPerIndex(paletteSize int, layout Layout) int {
	if paletteSize <= 1 {
		return 0
	}
	w := bits.Len(uint(paletteSize - 1))
	if layout == Current && w < 4 {
		w = 4
	}
	return w
}

// WordCount число слов для count индексов ширины width
func WordCount(width, count int, layout Layout) int {
	if width <= 0 || count <= 0 {
		return 0
	}
	if layout == Legacy {
		return (count*width + 63) / 64
	}
	per := 64 / width
	return (count + per - 1) / per
}

// Decode распаковывает count индексов для палитры размера paletteSize
func Decode(data nbt.LongArray, paletteSize, count int, layout Layout) ([]int, error) {
	return DecodeWidth(data, BitsPerIndex(paletteSize, layout), count, layout)
}

// DecodeWidth распаковывает count значений фиксированной ширины.
// Используется также для карт высот (9 бит).
//
// Слова в NBT хранятся в big-endian, а значение i лежит внутри слова начиная
// с младших бит. Поэтому поток читается от старших бит к младшим, а прочитанные
// значения разворачиваются.
func DecodeWidth(data nbt.LongArray, width, count int, layout Layout) ([]int, error) {
	if width < 0 || width > 64 {
		return nil, fmt.Errorf("blockstate: width %d: %w", width, ErrInvalidWidth)
	}
	out := make([]int, count)
	if width == 0 || count == 0 {
		return out, nil
	}

	need := WordCount(width, count, layout)
	if data.Len() < need {
		return nil, fmt.Errorf("blockstate: need %d words for %d values of width %d, have %d: %w",
			need, count, width, data.Len(), ErrTruncatedInput)
	}

	if layout == Legacy {
		return decodeLegacy(data, width, count, need, out)
	}
	return decodeCurrent(data, width, count, out)
}

func decodeCurrent(data nbt.LongArray, width, count int, out []int) ([]int, error) {
	per := 64 / width
	pad := 64 - per*width
	bs := stream.NewBitStream(data.Raw())

	for word := 0; word*per < count; word++ {
		bs.SeekBit(word*64 + pad)
		base := word * per
		for k := per - 1; k >= 0; k-- {
			v, err := bs.ReadBits(width)
			if err != nil {
				return nil, fmt.Errorf("blockstate: word %d: %w", word, err)
			}
			if i := base + k; i < count {
				out[i] = int(v)
			}
		}
	}
	return out, nil
}

func decodeLegacy(data nbt.LongArray, width, count, words int, out []int) ([]int, error) {
	// Последовательность слов трактуется как одно большое little-endian число:
	// переворачиваем порядок слов и читаем его от старших бит.
	raw := make([]byte, words*8)
	for k := 0; k < words; k++ {
		binary.BigEndian.PutUint64(raw[k*8:], data.Word(words-1-k))
	}

	bs := stream.NewBitStream(raw)
	bs.SeekBit(words*64 - count*width)
	for i := count - 1; i >= 0; i-- {
		v, err := bs.ReadBits(width)
		if err != nil {
			return nil, fmt.Errorf("blockstate: index %d: %w", i, err)
		}
		out[i] = int(v)
	}
	return out, nil
}

// Encode упаковывает индексы. Если palette задана, палитра канонизируется:
// записи с одинаковым каноническим ключом объединяются, неиспользуемые
// удаляются, порядок по первому использованию. Без палитры индексы считаются
// каноническими, а размер палитры равен max+1; возвращаемая палитра тогда nil.
func Encode(indices []int, palette []nbt.Compound, layout Layout) (nbt.LongArray, []nbt.Compound, error) {
	if palette == nil {
		size := 0
		for i, v := range indices {
			if v < 0 {
				return nbt.LongArray{}, nil, fmt.Errorf("blockstate: index %d = %d: %w", i, v, ErrIndexOutOfRange)
			}
			size = max(size, v+1)
		}
		data, err := EncodeWidth(indices, BitsPerIndex(size, layout), layout)
		return data, nil, err
	}

	remapped, canonical, err := Canonicalize(indices, palette)
	if err != nil {
		return nbt.LongArray{}, nil, err
	}
	data, err := EncodeWidth(remapped, BitsPerIndex(len(canonical), layout), layout)
	if err != nil {
		return nbt.LongArray{}, nil, err
	}
	return data, canonical, nil
}

// Canonicalize перестраивает палитру по фактическому использованию и
// возвращает перенумерованные индексы
func Canonicalize(indices []int, palette []nbt.Compound) ([]int, []nbt.Compound, error) {
	keys := make([]string, len(palette))
	for i, entry := range palette {
		keys[i] = BlockFromPaletteEntry(entry).CanonicalKey()
	}

	seen := make(map[string]int, len(palette))
	remapped := make([]int, len(indices))
	var out []nbt.Compound
	for i, v := range indices {
		if v < 0 || v >= len(palette) {
			return nil, nil, fmt.Errorf("blockstate: index %d = %d, palette size %d: %w",
				i, v, len(palette), ErrIndexOutOfRange)
		}
		n, ok := seen[keys[v]]
		if !ok {
			n = len(out)
			seen[keys[v]] = n
			out = append(out, palette[v])
		}
		remapped[i] = n
	}
	if out == nil {
		out = []nbt.Compound{}
	}
	return remapped, out, nil
}

// InferWidth подбирает наименьшую ширину не меньше minWidth, при которой
// count значений занимают ровно words слов. Возвращает 0, если такой нет.
// Нужна для данных, записанных с шириной больше минимальной.
func InferWidth(words, count, minWidth int, layout Layout) int {
	if words <= 0 || count <= 0 {
		return 0
	}
	for w := max(minWidth, 1); w <= 64; w++ {
		if WordCount(w, count, layout) == words {
			return w
		}
	}
	return 0
}

// EncodeWidth упаковывает значения фиксированной ширины.
// Ширина 0 даёт пустой массив.
func EncodeWidth(values []int, width int, layout Layout) (nbt.LongArray, error) {
	if width < 0 || width > 64 {
		return nbt.LongArray{}, fmt.Errorf("blockstate: width %d: %w", width, ErrInvalidWidth)
	}
	if width == 0 {
		for i, v := range values {
			if v != 0 {
				return nbt.LongArray{}, fmt.Errorf("blockstate: index %d = %d with width 0: %w", i, v, ErrIndexOutOfRange)
			}
		}
		return nbt.NewLongArray(nil), nil
	}

	limit := uint64(1)<<uint(width) - 1
	if width == 64 {
		limit = ^uint64(0)
	}

	words := make([]uint64, WordCount(width, len(values), layout))
	per := 64 / width
	for i, v := range values {
		if v < 0 || uint64(v) > limit {
			return nbt.LongArray{}, fmt.Errorf("blockstate: index %d = %d exceeds width %d: %w", i, v, width, ErrIndexOutOfRange)
		}
		u := uint64(v)
		if layout == Legacy {
			bit := i * width
			w, off := bit/64, uint(bit%64)
			words[w] |= u << off
			if int(off)+width > 64 {
				words[w+1] |= u >> (64 - off)
			}
			continue
		}
		words[i/per] |= u << uint((i%per)*width)
	}
	return nbt.NewLongArray(words), nil
}
