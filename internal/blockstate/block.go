package blockstate

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/annel0/mca-tools/internal/nbt"
)

// AirName имя пустого блока
const AirName = "minecraft:air"

// Block вариант блока из палитры: имя и свойства
type Block struct {
	Name       string            `json:"name" yaml:"name"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Air пустой блок
var Air = Block{Name: AirName}

// AirDigest дайджест пустого блока
var AirDigest = Air.Digest()

// CanonicalKey возвращает ключ вида "name(k1:v1,k2:v2)" с сортировкой по ключам.
// Блок без свойств даёт просто имя.
func (b Block) CanonicalKey() string {
	if len(b.Properties) == 0 {
		return b.Name
	}
	keys := make([]string, 0, len(b.Properties))
	for k := range b.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(b.Name)
	sb.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.WriteString(b.Properties[k])
	}
	sb.WriteByte(')')
	return sb.String()
}

// Digest 32-битный xxhash канонического ключа
func (b Block) Digest() uint32 {
	return digestKey(b.CanonicalKey())
}

func digestKey(key string) uint32 {
	return uint32(xxhash.Sum64String(key))
}

// Equal сравнивает блоки по каноническому ключу
func (b Block) Equal(o Block) bool {
	return b.CanonicalKey() == o.CanonicalKey()
}

func (b Block) String() string {
	return b.CanonicalKey()
}

// BlockFromPaletteEntry читает блок из элемента палитры {Name, Properties}.
// Нестроковые свойства пропускаются.
func BlockFromPaletteEntry(c nbt.Compound) Block {
	var b Block
	if t, ok := c.Get("Name"); ok {
		if s, ok := t.Payload.(nbt.String); ok {
			b.Name = string(s)
		}
	}
	if t, ok := c.Get("Properties"); ok {
		if props, ok := t.Payload.(nbt.Compound); ok {
			for _, p := range props.Children() {
				if s, ok := p.Payload.(nbt.String); ok {
					if b.Properties == nil {
						b.Properties = make(map[string]string)
					}
					b.Properties[p.Name] = string(s)
				}
			}
		}
	}
	return b
}

// PaletteEntry строит элемент палитры. Свойства записываются в порядке ключей.
func PaletteEntry(b Block) nbt.Compound {
	tags := []nbt.Tag{nbt.NewString("Name", b.Name)}
	if len(b.Properties) > 0 {
		keys := make([]string, 0, len(b.Properties))
		for k := range b.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		props := make([]nbt.Tag, 0, len(keys))
		for _, k := range keys {
			props = append(props, nbt.NewString(k, b.Properties[k]))
		}
		tags = append(tags, nbt.NewCompoundTag("Properties", props...))
	}
	return nbt.NewCompound(tags...)
}

// IndexOf линейно ищет блок в палитре. Возвращает -1, если блока нет.
func IndexOf(palette []nbt.Compound, b Block) int {
	key := b.CanonicalKey()
	digest := digestKey(key)
	for i, entry := range palette {
		k := BlockFromPaletteEntry(entry).CanonicalKey()
		if digestKey(k) == digest && k == key {
			return i
		}
	}
	return -1
}
