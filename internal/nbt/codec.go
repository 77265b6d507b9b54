package nbt

import (
	"github.com/annel0/mca-tools/internal/stream"
)

// MaxDepth предельная вложенность контейнеров при разборе
const MaxDepth = 512

// Decode разбирает корневой тег. Корень обязан быть COMPOUND; имя корня
// не проверяется (в level.dat оно бывает непустым).
func Decode(data []byte) (Tag, error) {
	s := stream.NewStream(data)
	t, err := DecodeTag(s)
	if err != nil {
		return Tag{}, err
	}
	if t.Kind() != KindCompound {
		return Tag{}, &DecodeError{Offset: 0, Kind: byte(t.Kind()), Err: ErrInvalidRoot}
	}
	return t, nil
}

// DecodeTag читает один именованный тег с текущей позиции потока
func DecodeTag(s *stream.Stream) (Tag, error) {
	return decodeTag(s, 0)
}

func decodeTag(s *stream.Stream, depth int) (Tag, error) {
	offset := s.Position()
	k, err := s.ReadUint8()
	if err != nil {
		return Tag{}, &DecodeError{Offset: offset, Err: err}
	}
	if !Kind(k).Valid() {
		return Tag{}, &DecodeError{Offset: offset, Kind: k, Err: ErrInvalidTagKind}
	}
	if Kind(k) == KindEnd {
		return Tag{Payload: End{}}, nil
	}

	name, err := readString(s)
	if err != nil {
		return Tag{}, &DecodeError{Offset: s.Position(), Kind: k, Err: err}
	}

	p, err := decodePayload(s, Kind(k), depth)
	if err != nil {
		return Tag{}, err
	}
	return Tag{Name: name, Payload: p}, nil
}

func readString(s *stream.Stream) (string, error) {
	n, err := s.ReadUint16()
	if err != nil {
		return "", err
	}
	b, err := s.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readCount читает 32-битную длину массива и проверяет, что width*count
// байт действительно есть в буфере
func readCount(s *stream.Stream, width int) (int, error) {
	n, err := s.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrTruncatedInput
	}
	if width > 0 && int64(n)*int64(width) > int64(s.Remaining()) {
		return 0, ErrTruncatedInput
	}
	return int(n), nil
}

func decodePayload(s *stream.Stream, k Kind, depth int) (Payload, error) {
	offset := s.Position()
	fail := func(err error) (Payload, error) {
		return nil, &DecodeError{Offset: offset, Kind: byte(k), Err: err}
	}

	switch k {
	case KindEnd:
		return End{}, nil
	case KindByte:
		v, err := s.ReadInt8()
		if err != nil {
			return fail(err)
		}
		return Byte(v), nil
	case KindShort:
		v, err := s.ReadInt16()
		if err != nil {
			return fail(err)
		}
		return Short(v), nil
	case KindInt:
		v, err := s.ReadInt32()
		if err != nil {
			return fail(err)
		}
		return Int(v), nil
	case KindLong:
		v, err := s.ReadInt64()
		if err != nil {
			return fail(err)
		}
		return Long(v), nil
	case KindFloat:
		v, err := s.ReadFloat32()
		if err != nil {
			return fail(err)
		}
		return Float(v), nil
	case KindDouble:
		v, err := s.ReadFloat64()
		if err != nil {
			return fail(err)
		}
		return Double(v), nil
	case KindByteArray:
		n, err := readCount(s, 1)
		if err != nil {
			return fail(err)
		}
		raw, err := s.ReadBytes(n)
		if err != nil {
			return fail(err)
		}
		out := make(ByteArray, n)
		for i, b := range raw {
			out[i] = int8(b)
		}
		return out, nil
	case KindString:
		v, err := readString(s)
		if err != nil {
			return fail(err)
		}
		return String(v), nil
	case KindIntArray:
		n, err := readCount(s, 4)
		if err != nil {
			return fail(err)
		}
		out := make(IntArray, n)
		for i := range out {
			if out[i], err = s.ReadInt32(); err != nil {
				return fail(err)
			}
		}
		return out, nil
	case KindLongArray:
		n, err := readCount(s, 8)
		if err != nil {
			return fail(err)
		}
		raw, err := s.ReadBytes(n * 8)
		if err != nil {
			return fail(err)
		}
		return LongArray{raw: raw}, nil
	case KindList:
		if depth >= MaxDepth {
			return fail(ErrTooDeep)
		}
		ek, err := s.ReadUint8()
		if err != nil {
			return fail(err)
		}
		if !Kind(ek).Valid() {
			return nil, &DecodeError{Offset: offset, Kind: ek, Err: ErrInvalidTagKind}
		}
		n, err := readCount(s, 0)
		if err != nil {
			return fail(err)
		}
		// END допустим только в пустом списке, остальные элементы занимают хотя бы байт
		if Kind(ek) == KindEnd && n > 0 {
			return nil, &DecodeError{Offset: offset, Kind: ek, Err: ErrInvalidTagKind}
		}
		if n > s.Remaining() {
			return fail(ErrTruncatedInput)
		}
		items := make([]Payload, 0, n)
		for i := 0; i < n; i++ {
			p, err := decodePayload(s, Kind(ek), depth+1)
			if err != nil {
				return nil, err
			}
			items = append(items, p)
		}
		return List{Elem: Kind(ek), Items: items}, nil
	case KindCompound:
		if depth >= MaxDepth {
			return fail(ErrTooDeep)
		}
		var out Compound
		for {
			t, err := decodeTag(s, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
			if t.Kind() == KindEnd {
				return out, nil
			}
		}
	}
	return nil, &DecodeError{Offset: offset, Kind: byte(k), Err: ErrInvalidTagKind}
}

// Encode сериализует тег в новый буфер. Результат детерминирован.
func Encode(t Tag) ([]byte, error) {
	s := stream.NewGrowableStream(nil)
	if err := EncodeTag(s, t); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

// EncodeTag записывает именованный тег в поток
func EncodeTag(s *stream.Stream, t Tag) error {
	return encodeTag(s, t, t.Name)
}

func encodeTag(s *stream.Stream, t Tag, path string) error {
	k := t.Kind()
	if err := s.WriteUint8(uint8(k)); err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	if k == KindEnd {
		return nil
	}
	if err := writeString(s, t.Name); err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	return encodePayload(s, t.Payload, path)
}

func writeString(s *stream.Stream, v string) error {
	if len(v) > 0xFFFF {
		return ErrStringTooLong
	}
	if err := s.WriteUint16(uint16(len(v))); err != nil {
		return err
	}
	return s.WriteFixedString(v)
}

func encodePayload(s *stream.Stream, p Payload, path string) error {
	var err error
	switch v := p.(type) {
	case End:
	case Byte:
		err = s.WriteInt8(int8(v))
	case Short:
		err = s.WriteInt16(int16(v))
	case Int:
		err = s.WriteInt32(int32(v))
	case Long:
		err = s.WriteInt64(int64(v))
	case Float:
		err = s.WriteFloat32(float32(v))
	case Double:
		err = s.WriteFloat64(float64(v))
	case ByteArray:
		if err = s.WriteInt32(int32(len(v))); err == nil {
			raw := make([]byte, len(v))
			for i, b := range v {
				raw[i] = byte(b)
			}
			err = s.WriteBytes(raw)
		}
	case String:
		err = writeString(s, string(v))
	case IntArray:
		err = s.WriteInt32(int32(len(v)))
		for i := 0; err == nil && i < len(v); i++ {
			err = s.WriteInt32(v[i])
		}
	case LongArray:
		if err = s.WriteInt32(int32(v.Len())); err == nil {
			err = s.WriteBytes(v.raw)
		}
	case List:
		if err = s.WriteUint8(uint8(v.Elem)); err != nil {
			break
		}
		if err = s.WriteInt32(int32(len(v.Items))); err != nil {
			break
		}
		for i, item := range v.Items {
			itemPath := JoinPath(path, "["+itoa(i)+"]")
			if item == nil || item.Kind() != v.Elem {
				return &EncodeError{Path: itemPath, Err: ErrListKindMismatch}
			}
			if err := encodePayload(s, item, itemPath); err != nil {
				return err
			}
		}
	case Compound:
		// всё после первого End не сериализуется; End пишется всегда
		for _, child := range v {
			if child.Kind() == KindEnd {
				break
			}
			if err := encodeTag(s, child, JoinPath(path, child.Name)); err != nil {
				return err
			}
		}
		err = s.WriteUint8(uint8(KindEnd))
	}
	if err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	return nil
}
