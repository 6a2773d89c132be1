package grid

import "errors"

// ErrValidation and ErrReferential classify rejected engine calls.
//
// Validation failures come from caller input (empty titles, bad cell values).
// Referential failures name a lane, parent or column that does not exist.
// Neither mutates state.
var (
	ErrValidation  = errors.New("validation error")
	ErrReferential = errors.New("referential error")
	ErrClosed      = errors.New("grid closed")
)
