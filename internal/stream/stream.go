package stream

import (
	"encoding/binary"
	"math"
)

// initialGrowableSize начальная ёмкость растущего потока без исходного буфера
const initialGrowableSize = 64

// Stream представляет байтовый поток с курсором.
// Фиксированный поток никогда не меняет размер буфера; растущий (NewGrowableStream)
// удваивает ёмкость перед записью, которая не помещается в остаток.
type Stream struct {
	buf      []byte
	pos      int
	end      int // верхняя граница записанных данных (для растущего потока)
	growable bool
}

// NewStream создаёт поток фиксированного размера поверх buf.
// Буфер принадлежит потоку на всё время его жизни.
func NewStream(buf []byte) *Stream {
	return &Stream{buf: buf, end: len(buf)}
}

// NewGrowableStream создаёт растущий поток. Исходные байты buf копируются.
func NewGrowableStream(buf []byte) *Stream {
	size := len(buf)
	if size == 0 {
		size = initialGrowableSize
	}
	b := make([]byte, size)
	copy(b, buf)
	return &Stream{buf: b, end: len(buf), growable: true}
}

// Seek перемещает курсор на абсолютную позицию
func (s *Stream) Seek(pos int) {
	s.pos = pos
}

// Position возвращает текущую позицию курсора
func (s *Stream) Position() int {
	return s.pos
}

// Remaining возвращает число байт от курсора до конца буфера
func (s *Stream) Remaining() int {
	if s.pos >= len(s.buf) {
		return 0
	}
	return len(s.buf) - s.pos
}

// Len возвращает длину данных потока
func (s *Stream) Len() int {
	if s.growable {
		return s.end
	}
	return len(s.buf)
}

// Bytes возвращает содержимое потока. Для растущего потока до максимальной
// записанной позиции. Последующие записи могут перевыделить буфер, поэтому
// сохранённые ссылки на результат становятся неактуальными.
func (s *Stream) Bytes() []byte {
	return s.buf[:s.Len()]
}

// next возвращает срез из n байт для чтения и сдвигает курсор
func (s *Stream) next(n int) ([]byte, error) {
	if n < 0 || s.pos < 0 || n > s.Remaining() {
		return nil, truncated("read", s.pos, n, s.Remaining())
	}
	b := s.buf[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

// reserve возвращает срез из n байт для записи и сдвигает курсор.
// Растущий поток удваивает буфер, пока запись не поместится.
func (s *Stream) reserve(n int) ([]byte, error) {
	if s.pos < 0 {
		return nil, truncated("write", s.pos, n, 0)
	}
	if n > s.Remaining() {
		if !s.growable {
			return nil, truncated("write", s.pos, n, s.Remaining())
		}
		s.grow(n)
	}
	b := s.buf[s.pos : s.pos+n]
	s.pos += n
	if s.pos > s.end {
		s.end = s.pos
	}
	return b, nil
}

func (s *Stream) grow(n int) {
	size := len(s.buf)
	if size == 0 {
		size = initialGrowableSize
	}
	for n > size-s.pos {
		size *= 2
	}
	b := make([]byte, size)
	copy(b, s.buf)
	s.buf = b
}

// ReadUint8 читает один байт
func (s *Stream) ReadUint8() (uint8, error) {
	b, err := s.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteUint8 записывает один байт
func (s *Stream) WriteUint8(v uint8) error {
	b, err := s.reserve(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// ReadInt8 читает знаковый байт
func (s *Stream) ReadInt8() (int8, error) {
	v, err := s.ReadUint8()
	return int8(v), err
}

// WriteInt8 записывает знаковый байт
func (s *Stream) WriteInt8(v int8) error {
	return s.WriteUint8(uint8(v))
}

func (s *Stream) readUint16(order binary.ByteOrder) (uint16, error) {
	b, err := s.next(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

func (s *Stream) writeUint16(order binary.ByteOrder, v uint16) error {
	b, err := s.reserve(2)
	if err != nil {
		return err
	}
	order.PutUint16(b, v)
	return nil
}

func (s *Stream) readUint32(order binary.ByteOrder) (uint32, error) {
	b, err := s.next(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

func (s *Stream) writeUint32(order binary.ByteOrder, v uint32) error {
	b, err := s.reserve(4)
	if err != nil {
		return err
	}
	order.PutUint32(b, v)
	return nil
}

func (s *Stream) readUint64(order binary.ByteOrder) (uint64, error) {
	b, err := s.next(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}

func (s *Stream) writeUint64(order binary.ByteOrder, v uint64) error {
	b, err := s.reserve(8)
	if err != nil {
		return err
	}
	order.PutUint64(b, v)
	return nil
}

// ReadUint16 читает big-endian uint16
func (s *Stream) ReadUint16() (uint16, error) { return s.readUint16(binary.BigEndian) }

// WriteUint16 записывает big-endian uint16
func (s *Stream) WriteUint16(v uint16) error { return s.writeUint16(binary.BigEndian, v) }

// ReadUint16LE читает little-endian uint16
func (s *Stream) ReadUint16LE() (uint16, error) { return s.readUint16(binary.LittleEndian) }

// WriteUint16LE записывает little-endian uint16
func (s *Stream) WriteUint16LE(v uint16) error { return s.writeUint16(binary.LittleEndian, v) }

// ReadInt16 читает big-endian int16
func (s *Stream) ReadInt16() (int16, error) {
	v, err := s.ReadUint16()
	return int16(v), err
}

// WriteInt16 записывает big-endian int16
func (s *Stream) WriteInt16(v int16) error { return s.WriteUint16(uint16(v)) }

// ReadInt16LE читает little-endian int16
func (s *Stream) ReadInt16LE() (int16, error) {
	v, err := s.ReadUint16LE()
	return int16(v), err
}

// WriteInt16LE записывает little-endian int16
func (s *Stream) WriteInt16LE(v int16) error { return s.WriteUint16LE(uint16(v)) }

// ReadUint32 читает big-endian uint32
func (s *Stream) ReadUint32() (uint32, error) { return s.readUint32(binary.BigEndian) }

// WriteUint32 записывает big-endian uint32
func (s *Stream) WriteUint32(v uint32) error { return s.writeUint32(binary.BigEndian, v) }

// ReadUint32LE читает little-endian uint32
func (s *Stream) ReadUint32LE() (uint32, error) { return s.readUint32(binary.LittleEndian) }

// WriteUint32LE записывает little-endian uint32
func (s *Stream) WriteUint32LE(v uint32) error { return s.writeUint32(binary.LittleEndian, v) }

// ReadInt32 читает big-endian int32
func (s *Stream) ReadInt32() (int32, error) {
	v, err := s.ReadUint32()
	return int32(v), err
}

// WriteInt32 записывает big-endian int32
func (s *Stream) WriteInt32(v int32) error { return s.WriteUint32(uint32(v)) }

// ReadInt32LE читает little-endian int32
func (s *Stream) ReadInt32LE() (int32, error) {
	v, err := s.ReadUint32LE()
	return int32(v), err
}

// WriteInt32LE записывает little-endian int32
func (s *Stream) WriteInt32LE(v int32) error { return s.WriteUint32LE(uint32(v)) }

// ReadUint64 читает big-endian uint64
func (s *Stream) ReadUint64() (uint64, error) { return s.readUint64(binary.BigEndian) }

// WriteUint64 записывает big-endian uint64
func (s *Stream) WriteUint64(v uint64) error { return s.writeUint64(binary.BigEndian, v) }

// ReadUint64LE читает little-endian uint64
func (s *Stream) ReadUint64LE() (uint64, error) { return s.readUint64(binary.LittleEndian) }

// WriteUint64LE записывает little-endian uint64
func (s *Stream) WriteUint64LE(v uint64) error { return s.writeUint64(binary.LittleEndian, v) }

// ReadInt64 читает big-endian int64
func (s *Stream) ReadInt64() (int64, error) {
	v, err := s.ReadUint64()
	return int64(v), err
}

// WriteInt64 записывает big-endian int64
func (s *Stream) WriteInt64(v int64) error { return s.WriteUint64(uint64(v)) }

// ReadInt64LE читает little-endian int64
func (s *Stream) ReadInt64LE() (int64, error) {
	v, err := s.ReadUint64LE()
	return int64(v), err
}

// WriteInt64LE записывает little-endian int64
func (s *Stream) WriteInt64LE(v int64) error { return s.WriteUint64LE(uint64(v)) }

// ReadFloat32 читает big-endian float32
func (s *Stream) ReadFloat32() (float32, error) {
	v, err := s.ReadUint32()
	return math.Float32frombits(v), err
}

// WriteFloat32 записывает big-endian float32
func (s *Stream) WriteFloat32(v float32) error { return s.WriteUint32(math.Float32bits(v)) }

// ReadFloat64 читает big-endian float64
func (s *Stream) ReadFloat64() (float64, error) {
	v, err := s.ReadUint64()
	return math.Float64frombits(v), err
}

// WriteFloat64 записывает big-endian float64
func (s *Stream) WriteFloat64(v float64) error { return s.WriteUint64(math.Float64bits(v)) }

// ReadUintN читает беззнаковое big-endian целое шириной n байт (1..8).
// Используется для 24-битных смещений секторов.
func (s *Stream) ReadUintN(n int) (uint64, error) {
	if n < 1 || n > 8 {
		return 0, &Error{Op: "read", Offset: s.pos, Want: n, Err: ErrInvalidWidth}
	}
	b, err := s.next(n)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// WriteUintN записывает младшие n байт значения в big-endian порядке
func (s *Stream) WriteUintN(v uint64, n int) error {
	if n < 1 || n > 8 {
		return &Error{Op: "write", Offset: s.pos, Want: n, Err: ErrInvalidWidth}
	}
	b, err := s.reserve(n)
	if err != nil {
		return err
	}
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return nil
}

// ReadBytes читает n байт. Возвращается копия.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	b, err := s.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// WriteBytes вставляет произвольный буфер в позицию курсора
func (s *Stream) WriteBytes(data []byte) error {
	b, err := s.reserve(len(data))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

// ReadCString читает строку до нулевого байта (нулевой байт поглощается).
// max > 0 ограничивает длину строки: чтение останавливается после max символов.
func (s *Stream) ReadCString(max int) (string, error) {
	var out []byte
	for {
		c, err := s.ReadUint8()
		if err != nil {
			return "", err
		}
		if c == 0 {
			break
		}
		out = append(out, c)
		if max > 0 && len(out) == max {
			break
		}
	}
	return string(out), nil
}

// WriteCString записывает строку с завершающим нулевым байтом
func (s *Stream) WriteCString(v string) error {
	b, err := s.reserve(len(v) + 1)
	if err != nil {
		return err
	}
	copy(b, v)
	b[len(v)] = 0
	return nil
}

// ReadFixedString читает строку фиксированной длины n, отбрасывая нулевые байты
func (s *Stream) ReadFixedString(n int) (string, error) {
	b, err := s.next(n)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, n)
	for _, c := range b {
		if c != 0 {
			out = append(out, c)
		}
	}
	return string(out), nil
}

// WriteFixedString записывает байты строки без терминатора
func (s *Stream) WriteFixedString(v string) error {
	b, err := s.reserve(len(v))
	if err != nil {
		return err
	}
	copy(b, v)
	return nil
}
