package nbt

import (
	"errors"
	"fmt"

	"github.com/annel0/mca-tools/internal/stream"
)

// Ошибки декодирования
var (
	// ErrInvalidTagKind неизвестный байт типа тега
	ErrInvalidTagKind = errors.New("invalid tag kind")
	// ErrTruncatedInput данных меньше, чем объявлено заголовком
	ErrTruncatedInput = stream.ErrTruncatedInput
	// ErrInvalidRoot корневой тег не является COMPOUND
	ErrInvalidRoot = errors.New("root tag is not a compound")
	// ErrTooDeep превышена допустимая вложенность
	ErrTooDeep = errors.New("nesting too deep")
)

// Ошибки кодирования
var (
	// ErrListKindMismatch элемент списка не совпадает с объявленным типом
	ErrListKindMismatch = errors.New("list element kind mismatch")
	// ErrStringTooLong строка или имя длиннее 65535 байт
	ErrStringTooLong = errors.New("string too long")
)

// Ошибки операций над деревом
var (
	ErrPathNotFound         = errors.New("path not found")
	ErrAlreadyExists        = errors.New("tag already exists")
	ErrMissingRecursiveFlag = errors.New("recursive flag is required")
	ErrNotContainer         = errors.New("not a container")
)

// DecodeError ошибка разбора с позицией в буфере
type DecodeError struct {
	Offset int
	Kind   byte // байт типа, при разборе которого произошла ошибка
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("nbt: decode %s (0x%02x) at offset %d: %v", Kind(e.Kind), e.Kind, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError ошибка сериализации с путём к тегу
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("nbt: encode %q: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// PathError ошибка операции над деревом
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("nbt: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}
