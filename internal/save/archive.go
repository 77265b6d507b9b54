package save

import (
	"io"

	"github.com/klauspost/compress/zip"
)

// ArchiveWriter принимает файлы экспортируемого мира
type ArchiveWriter interface {
	WriteFile(name string, data []byte) error
}

// ZipWriter пишет файлы в zip-архив
type ZipWriter struct {
	zw *zip.Writer
}

// NewZipWriter создаёт архив поверх w
func NewZipWriter(w io.Writer) *ZipWriter {
	return &ZipWriter{zw: zip.NewWriter(w)}
}

// WriteFile добавляет файл name в архив
func (z *ZipWriter) WriteFile(name string, data []byte) error {
	f, err := z.zw.Create(name)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}

// Close дописывает центральный каталог архива
func (z *ZipWriter) Close() error {
	return z.zw.Close()
}
