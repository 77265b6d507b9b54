package nbt

// Simplify переводит значение в обычные Go-типы для вывода в JSON:
// COMPOUND становится map[string]any, LIST в []any, LONG_ARRAY в []int64.
func Simplify(p Payload) any {
	switch v := p.(type) {
	case End, nil:
		return nil
	case Byte:
		return int8(v)
	case Short:
		return int16(v)
	case Int:
		return int32(v)
	case Long:
		return int64(v)
	case Float:
		return float32(v)
	case Double:
		return float64(v)
	case String:
		return string(v)
	case ByteArray:
		return []int8(v)
	case IntArray:
		return []int32(v)
	case LongArray:
		out := make([]int64, v.Len())
		for i := range out {
			out[i] = int64(v.Word(i))
		}
		return out
	case List:
		out := make([]any, len(v.Items))
		for i, item := range v.Items {
			out[i] = Simplify(item)
		}
		return out
	case Compound:
		out := make(map[string]any, len(v))
		for _, t := range v.Children() {
			out[t.Name] = Simplify(t.Payload)
		}
		return out
	}
	return nil
}
