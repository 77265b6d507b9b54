package region

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Compressor сжимает полезную нагрузку чанков.
// Compress всегда производит ZLIB, Decompress понимает все виды.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(kind CompressionKind, data []byte) ([]byte, error)
}

type deflateCompressor struct {
	level int
}

// NewCompressor создаёт компрессор на klauspost/compress с уровнем zlib level
func NewCompressor(level int) Compressor {
	return &deflateCompressor{level: level}
}

// DefaultCompressor уровень по умолчанию
var DefaultCompressor = NewCompressor(zlib.DefaultCompression)

func (d *deflateCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, d.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *deflateCompressor) Decompress(kind CompressionKind, data []byte) ([]byte, error) {
	var (
		r   io.ReadCloser
		err error
	)
	switch kind {
	case CompressionNone:
		return data, nil
	case CompressionZlib:
		r, err = zlib.NewReader(bytes.NewReader(data))
	case CompressionGzip:
		r, err = gzip.NewReader(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("kind %d: %w", kind, ErrUnknownCompression)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", kind, err, ErrDecompression)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", kind, err, ErrDecompression)
	}
	return out, nil
}
