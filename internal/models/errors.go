package models

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfOrder = errors.New("chunk out of order")
	ErrDecode     = errors.New("decode chunk")
	ErrMalformed  = errors.New("malformed request")
	ErrStorage    = errors.New("storage failure")
	ErrNotFound   = errors.New("record not found")
)

// OutOfOrderError сообщает, какую страницу сервер ждал и какую получил.
type OutOfOrderError struct {
	Key      UploadKey
	Expected int
	Got      int
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("expected page %d, got %d", e.Expected, e.Got)
}

// Is позволяет сравнивать ошибку через errors.Is(err, ErrOutOfOrder).
func (e *OutOfOrderError) Is(target error) bool {
	return target == ErrOutOfOrder
}
