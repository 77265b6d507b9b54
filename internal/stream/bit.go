package stream

// BitStream читает и пишет поля произвольной ширины (1..64 бит) поверх
// байтового буфера. Биты внутри байта идут от старшего к младшему, следующие
// байты дают младшие разряды значения.
//
// Незавершённый байт не копируется в отдельный аккумулятор: partial хранит
// число ещё не прочитанных (не записанных) младших бит в buf[pos-1].
// Поэтому чтение и запись разделяют одно состояние, а Seek на середину байта
// позволяет продолжить с нужного бита.
type BitStream struct {
	buf     []byte
	pos     int
	partial int
}

// NewBitStream создаёт битовый поток поверх buf. Размер буфера не меняется.
func NewBitStream(buf []byte) *BitStream {
	return &BitStream{buf: buf}
}

// Bytes возвращает исходный буфер
func (b *BitStream) Bytes() []byte {
	return b.buf
}

// Seek перемещает курсор на байт bytePos, оставляя partialCount (0..7)
// непрочитанных младших бит байта bytePos-1
func (b *BitStream) Seek(bytePos, partialCount int) {
	b.pos = bytePos
	b.partial = partialCount
}

// SeekBit перемещает курсор на абсолютную битовую позицию
func (b *BitStream) SeekBit(bit int) {
	if r := bit % 8; r != 0 {
		b.Seek(bit/8+1, 8-r)
		return
	}
	b.Seek(bit/8, 0)
}

// Position возвращает абсолютную битовую позицию курсора
func (b *BitStream) Position() int {
	return b.pos*8 - b.partial
}

// Remaining возвращает число бит до конца буфера
func (b *BitStream) Remaining() int {
	r := len(b.buf)*8 - b.Position()
	if r < 0 {
		return 0
	}
	return r
}

func bitMask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<uint(n) - 1
}

func (b *BitStream) check(op string, n int) error {
	if n < 1 || n > 64 {
		return &Error{Op: op, Offset: b.pos, Want: n, Err: ErrInvalidWidth}
	}
	if b.pos < 0 || b.pos > len(b.buf) || (b.partial > 0 && b.pos == 0) {
		return truncated(op, b.pos, n, 0)
	}
	if n > b.Remaining() {
		return truncated(op, b.pos, n, b.Remaining())
	}
	return nil
}

// ReadBits читает n бит (1..64) и возвращает их как беззнаковое целое
func (b *BitStream) ReadBits(n int) (uint64, error) {
	if err := b.check("read", n); err != nil {
		return 0, err
	}

	var v uint64
	need := n

	// Сначала добираем остаток предыдущего байта
	if b.partial > 0 {
		take := min(need, b.partial)
		bits := uint64(b.buf[b.pos-1]) & bitMask(b.partial)
		v = bits >> uint(b.partial-take)
		b.partial -= take
		need -= take
	}

	for need >= 8 {
		v = v<<8 | uint64(b.buf[b.pos])
		b.pos++
		need -= 8
	}

	if need > 0 {
		c := b.buf[b.pos]
		b.pos++
		v = v<<uint(need) | uint64(c>>uint(8-need))
		b.partial = 8 - need
	}

	return v, nil
}

// WriteBits записывает младшие n бит значения v.
// Биты буфера вне записываемого поля сохраняются.
func (b *BitStream) WriteBits(n int, v uint64) error {
	if err := b.check("write", n); err != nil {
		return err
	}

	v &= bitMask(n)
	left := n

	if b.partial > 0 {
		take := min(left, b.partial)
		bits := byte((v >> uint(left-take)) & bitMask(take))
		shift := uint(b.partial - take)
		m := byte(bitMask(take)) << shift
		b.buf[b.pos-1] = b.buf[b.pos-1]&^m | bits<<shift
		b.partial -= take
		left -= take
	}

	for left >= 8 {
		b.buf[b.pos] = byte(v >> uint(left-8))
		b.pos++
		left -= 8
	}

	if left > 0 {
		bits := byte(v & bitMask(left))
		shift := uint(8 - left)
		m := byte(bitMask(left)) << shift
		b.buf[b.pos] = b.buf[b.pos]&^m | bits<<shift
		b.pos++
		b.partial = 8 - left
	}

	return nil
}
