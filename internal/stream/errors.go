package stream

import (
	"errors"
	"fmt"
)

// Базовые ошибки потоков
var (
	// ErrTruncatedInput возвращается, когда в буфере осталось меньше байт (бит), чем требуется
	ErrTruncatedInput = errors.New("truncated input")
	// ErrInvalidWidth возвращается при запросе недопустимой ширины поля
	ErrInvalidWidth = errors.New("invalid width")
)

// Error описывает ошибку чтения/записи с позицией в буфере
type Error struct {
	Op     string // "read" или "write"
	Offset int    // позиция курсора в байтах
	Want   int    // сколько байт (бит для BitStream) требовалось
	Have   int    // сколько было доступно
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at offset %d: want %d, have %d: %v", e.Op, e.Offset, e.Want, e.Have, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func truncated(op string, offset, want, have int) error {
	return &Error{Op: op, Offset: offset, Want: want, Have: have, Err: ErrTruncatedInput}
}
