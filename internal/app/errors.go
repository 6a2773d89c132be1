package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidScope    = errors.New("invalid scope key")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)
