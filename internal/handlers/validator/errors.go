package validator

import (
	"fmt"
)

// ErrInvalidForm carries every field-level failure of a request body.
type ErrInvalidForm struct {
	error
}

func NewErrInvalidForm(format string, args ...any) *ErrInvalidForm {
	return &ErrInvalidForm{fmt.Errorf(format, args...)}
}
