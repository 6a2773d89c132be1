package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidTitle      = errors.New("invalid title")
	ErrInvalidLabel      = errors.New("invalid label")
	ErrInvalidColumnType = errors.New("invalid column type")
	ErrInvalidColor      = errors.New("invalid color")
	ErrInvalidValue      = errors.New("invalid value")
	ErrNotEnumerable     = errors.New("column type has no options")
)
