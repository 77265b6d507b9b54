package nbt

// Kind идентификатор типа тега в бинарном формате
type Kind byte

// Типы тегов
const (
	KindEnd Kind = iota
	KindByte
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindByteArray
	KindString
	KindList
	KindCompound
	KindIntArray
	KindLongArray
)

var kindNames = [...]string{
	KindEnd:       "END",
	KindByte:      "BYTE",
	KindShort:     "SHORT",
	KindInt:       "INT",
	KindLong:      "LONG",
	KindFloat:     "FLOAT",
	KindDouble:    "DOUBLE",
	KindByteArray: "BYTE_ARRAY",
	KindString:    "STRING",
	KindList:      "LIST",
	KindCompound:  "COMPOUND",
	KindIntArray:  "INT_ARRAY",
	KindLongArray: "LONG_ARRAY",
}

// Valid проверяет, что тип входит в 13 известных
func (k Kind) Valid() bool {
	return k <= KindLongArray
}

// IsContainer возвращает true для COMPOUND и LIST
func (k Kind) IsContainer() bool {
	return k == KindCompound || k == KindList
}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return "UNKNOWN"
}
