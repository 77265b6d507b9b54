package sync

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/gzip"
)

// DeltaCompressor кодирует/декодирует пакет правок (Change) в полезную нагрузку EditBatch.
type DeltaCompressor interface {
	Compress(changes []Change) ([]byte, error)
	Decompress(payload []byte) ([]Change, error)
}

type passthroughCompressor struct{}

// NewPassthroughCompressor пакет как JSON-массив без сжатия
func NewPassthroughCompressor() DeltaCompressor { return &passthroughCompressor{} }

func (p *passthroughCompressor) Compress(changes []Change) ([]byte, error) {
	return json.Marshal(changes)
}

func (p *passthroughCompressor) Decompress(payload []byte) ([]Change, error) {
	var res []Change
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// smartCompressor применяет gzip поверх JSON
type smartCompressor struct{}

func NewSmartCompressor() DeltaCompressor { return &smartCompressor{} }

func (s *smartCompressor) Compress(changes []Change) ([]byte, error) {
	raw, err := (&passthroughCompressor{}).Compress(changes)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *smartCompressor) Decompress(payload []byte) ([]Change, error) {
	gz, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, err
	}
	return (&passthroughCompressor{}).Decompress(raw)
}
