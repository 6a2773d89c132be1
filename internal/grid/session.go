package grid

import "github.com/hylla/tabula/internal/domain"

// SessionKind tags the single active interaction of a grid.
type SessionKind string

// SessionNone and related constants enumerate session kinds.
const (
	SessionNone     SessionKind = "none"
	SessionDragging SessionKind = "dragging"
	SessionResizing SessionKind = "resizing"
	SessionEditing  SessionKind = "editing"
)

// Session is a copy of the grid's active interaction. At most one of the
// pointers is non-nil and Kind names it.
type Session struct {
	Kind   SessionKind
	Drag   *DragSession
	Resize *ResizeSession
	Edit   *EditSession
}

// EditSession is the single active cell editor.
type EditSession struct {
	RecordID  string
	ColumnID  string
	Kind      EditorKind
	Anchor    domain.Rect
	Popup     domain.Size
	Placement Placement
	// Initial is the cell's current value rendered as editor input.
	Initial string
}

// PopupRect returns the rectangle the popover occupies.
func (e EditSession) PopupRect() domain.Rect {
	return e.Placement.Rect(e.Popup)
}

// DismissHooks are called when the first session starts and when the last one
// ends, so a host can attach Escape/click-outside listeners only while needed.
type DismissHooks struct {
	Install func()
	Remove  func()
}

func (s Session) clone() Session {
	switch {
	case s.Drag != nil:
		d := *s.Drag
		if d.Target != nil {
			tg := *d.Target
			d.Target = &tg
		}
		return Session{Kind: SessionDragging, Drag: &d}
	case s.Resize != nil:
		r := *s.Resize
		return Session{Kind: SessionResizing, Resize: &r}
	case s.Edit != nil:
		e := *s.Edit
		return Session{Kind: SessionEditing, Edit: &e}
	default:
		return Session{Kind: SessionNone}
	}
}
