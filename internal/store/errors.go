package store

import "errors"

var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidDataType = errors.New("invalid data type")
)
