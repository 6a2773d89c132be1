package grid

// ResizeSession tracks one column-resize gesture.
type ResizeSession struct {
	ColumnID   string
	StartX     int
	StartWidth int
	Width      int
}

// WidthAt returns the width for pointer x, floored at minWidth. There is no upper bound.
func (s ResizeSession) WidthAt(x, minWidth int) int {
	return max(minWidth, s.StartWidth+(x-s.StartX))
}
