package nbt

import (
	"encoding/binary"
	"math"
)

// Payload значение тега. Интерфейс закрыт: его реализуют только 13 типов
// этого пакета, поэтому switch по типу покрывает все варианты.
type Payload interface {
	Kind() Kind
	payload()
}

// Tag именованный тег. Элементы LIST хранятся как Payload без имени.
type Tag struct {
	Name    string
	Payload Payload
}

type (
	// End завершающий тег COMPOUND
	End struct{}
	// Byte знаковый 8-битный тег
	Byte int8
	// Short знаковый 16-битный тег
	Short int16
	// Int знаковый 32-битный тег
	Int int32
	// Long знаковый 64-битный тег
	Long int64
	// Float 32-битное число с плавающей точкой
	Float float32
	// Double 64-битное число с плавающей точкой
	Double float64
	// ByteArray массив знаковых байт
	ByteArray []int8
	// String строка в модифицированном UTF-8 (хранится как есть)
	String string
	// IntArray массив 32-битных целых
	IntArray []int32
	// Compound упорядоченная последовательность тегов, последний элемент End
	Compound []Tag
)

// List однородный список безымянных значений
type List struct {
	Elem  Kind
	Items []Payload
}

// LongArray хранит сырые count*8 байт в порядке big-endian.
// Слова декодируются только по запросу.
type LongArray struct {
	raw []byte
}

func (End) Kind() Kind       { return KindEnd }
func (Byte) Kind() Kind      { return KindByte }
func (Short) Kind() Kind     { return KindShort }
func (Int) Kind() Kind       { return KindInt }
func (Long) Kind() Kind      { return KindLong }
func (Float) Kind() Kind     { return KindFloat }
func (Double) Kind() Kind    { return KindDouble }
func (ByteArray) Kind() Kind { return KindByteArray }
func (String) Kind() Kind    { return KindString }
func (List) Kind() Kind      { return KindList }
func (Compound) Kind() Kind  { return KindCompound }
func (IntArray) Kind() Kind  { return KindIntArray }
func (LongArray) Kind() Kind { return KindLongArray }

func (End) payload()       {}
func (Byte) payload()      {}
func (Short) payload()     {}
func (Int) payload()       {}
func (Long) payload()      {}
func (Float) payload()     {}
func (Double) payload()    {}
func (ByteArray) payload() {}
func (String) payload()    {}
func (List) payload()      {}
func (Compound) payload()  {}
func (IntArray) payload()  {}
func (LongArray) payload() {}

// NewLongArray упаковывает слова в big-endian представление
func NewLongArray(words []uint64) LongArray {
	raw := make([]byte, len(words)*8)
	for i, w := range words {
		binary.BigEndian.PutUint64(raw[i*8:], w)
	}
	return LongArray{raw: raw}
}

// LongArrayFromRaw оборачивает готовые байты. Длина должна быть кратна 8.
func LongArrayFromRaw(raw []byte) LongArray {
	return LongArray{raw: raw[:len(raw)/8*8]}
}

// Len число 64-битных слов
func (a LongArray) Len() int {
	return len(a.raw) / 8
}

// Raw возвращает сырые байты массива
func (a LongArray) Raw() []byte {
	return a.raw
}

// Word возвращает i-е слово в порядке big-endian
func (a LongArray) Word(i int) uint64 {
	return binary.BigEndian.Uint64(a.raw[i*8:])
}

// Words декодирует все слова как big-endian
func (a LongArray) Words() []uint64 {
	out := make([]uint64, a.Len())
	for i := range out {
		out[i] = a.Word(i)
	}
	return out
}

// WordsLE переинтерпретирует байты как little-endian слова
func (a LongArray) WordsLE() []uint64 {
	out := make([]uint64, a.Len())
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(a.raw[i*8:])
	}
	return out
}

// Kind возвращает тип тега. Тег без значения считается END.
func (t Tag) Kind() Kind {
	if t.Payload == nil {
		return KindEnd
	}
	return t.Payload.Kind()
}

// Child ищет дочерний тег по имени в COMPOUND t
func (t Tag) Child(name string) (Tag, bool) {
	c, ok := t.Payload.(Compound)
	if !ok {
		return Tag{}, false
	}
	return c.Get(name)
}

// NewCompound собирает COMPOUND из тегов и добавляет завершающий End
func NewCompound(tags ...Tag) Compound {
	out := make(Compound, 0, len(tags)+1)
	for _, t := range tags {
		if t.Kind() != KindEnd {
			out = append(out, t)
		}
	}
	return append(out, Tag{Payload: End{}})
}

// Children возвращает дочерние теги без End
func (c Compound) Children() []Tag {
	out := make([]Tag, 0, len(c))
	for _, t := range c {
		if t.Kind() != KindEnd {
			out = append(out, t)
		}
	}
	return out
}

// Get возвращает дочерний тег по имени
func (c Compound) Get(name string) (Tag, bool) {
	if i := c.index(name); i >= 0 {
		return c[i], true
	}
	return Tag{}, false
}

func (c Compound) index(name string) int {
	for i, t := range c {
		if t.Kind() != KindEnd && t.Name == name {
			return i
		}
	}
	return -1
}

// Конструкторы именованных тегов

func NewByte(name string, v int8) Tag        { return Tag{Name: name, Payload: Byte(v)} }
func NewShort(name string, v int16) Tag      { return Tag{Name: name, Payload: Short(v)} }
func NewInt(name string, v int32) Tag        { return Tag{Name: name, Payload: Int(v)} }
func NewLong(name string, v int64) Tag       { return Tag{Name: name, Payload: Long(v)} }
func NewFloat(name string, v float32) Tag    { return Tag{Name: name, Payload: Float(v)} }
func NewDouble(name string, v float64) Tag   { return Tag{Name: name, Payload: Double(v)} }
func NewString(name, v string) Tag           { return Tag{Name: name, Payload: String(v)} }
func NewByteArray(name string, v []int8) Tag { return Tag{Name: name, Payload: ByteArray(v)} }
func NewIntArray(name string, v []int32) Tag { return Tag{Name: name, Payload: IntArray(v)} }

// NewCompoundTag именованный COMPOUND
func NewCompoundTag(name string, tags ...Tag) Tag {
	return Tag{Name: name, Payload: NewCompound(tags...)}
}

// NewList именованный LIST
func NewList(name string, elem Kind, items ...Payload) Tag {
	return Tag{Name: name, Payload: List{Elem: elem, Items: items}}
}

// NewLongArrayTag именованный LONG_ARRAY
func NewLongArrayTag(name string, words []uint64) Tag {
	return Tag{Name: name, Payload: NewLongArray(words)}
}

// Int64 приводит числовое значение к int64
func Int64(p Payload) (int64, bool) {
	switch v := p.(type) {
	case Byte:
		return int64(v), true
	case Short:
		return int64(v), true
	case Int:
		return int64(v), true
	case Long:
		return int64(v), true
	}
	return 0, false
}

// Equal структурное сравнение тегов
func Equal(a, b Tag) bool {
	return a.Name == b.Name && PayloadEqual(a.Payload, b.Payload)
}

// PayloadEqual структурное сравнение значений. Числа с плавающей точкой
// сравниваются побитово.
func PayloadEqual(a, b Payload) bool {
	if a == nil || b == nil {
		return (a == nil || a.Kind() == KindEnd) && (b == nil || b.Kind() == KindEnd)
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch x := a.(type) {
	case End:
		return true
	case Byte, Short, Int, Long, String:
		return a == b
	case Float:
		return math.Float32bits(float32(x)) == math.Float32bits(float32(b.(Float)))
	case Double:
		return math.Float64bits(float64(x)) == math.Float64bits(float64(b.(Double)))
	case ByteArray:
		y := b.(ByteArray)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case IntArray:
		y := b.(IntArray)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case LongArray:
		y := b.(LongArray)
		return string(x.raw) == string(y.raw)
	case List:
		y := b.(List)
		if x.Elem != y.Elem || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !PayloadEqual(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	case Compound:
		y := b.(Compound)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return false
}
