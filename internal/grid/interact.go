package grid

import (
	"fmt"
	"strconv"

	"github.com/hylla/tabula/internal/domain"
)

// Session returns a copy of the active session.
func (g *Grid) Session() Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session.clone()
}

// setSession swaps the active session, installing dismiss hooks when the
// first session starts and removing them when the last one ends.
func (g *Grid) setSession(s Session) {
	wasActive := g.session.Kind != SessionNone
	g.session = s
	isActive := s.Kind != SessionNone
	switch {
	case !wasActive && isActive && g.hooks.Install != nil:
		g.hooks.Install()
	case wasActive && !isActive && g.hooks.Remove != nil:
		g.hooks.Remove()
	}
}

func (g *Grid) endSession() {
	g.setSession(Session{Kind: SessionNone})
}

// pointerBusy reports whether a drag or resize owns the pointer.
func (g *Grid) pointerBusy() bool {
	return g.session.Kind == SessionDragging || g.session.Kind == SessionResizing
}

// Drag.

// BeginDrag starts dragging recordID. It is a no-op while a drag or resize is
// active and cancels an open editor.
func (g *Grid) BeginDrag(recordID string, pointer domain.Point) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pointerBusy() {
		return false
	}
	n, ok := g.tree.nodes[recordID]
	if !ok {
		return false
	}
	g.setSession(Session{Kind: SessionDragging, Drag: &DragSession{
		SourceID:       recordID,
		OriginLaneID:   n.rec.LaneID,
		OriginParentID: n.parentID,
		PointerStart:   pointer,
	}})
	return true
}

// HoverRow points the drag at a row. It reports whether the resulting target
// would commit.
func (g *Grid) HoverRow(recordID string, pointerY, rowTop, rowHeight int) (DropTarget, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.session.Drag
	if d == nil {
		return DropTarget{}, false
	}
	if !g.tree.Has(recordID) {
		d.Target = nil
		return DropTarget{}, false
	}
	d.Target = &DropTarget{RecordID: recordID, Position: PositionFor(pointerY, rowTop, rowHeight)}
	_, ok := Resolve(g.tree, *d)
	return *d.Target, ok
}

// HoverLane points the drag at a lane's empty area.
func (g *Grid) HoverLane(laneID string) (DropTarget, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.session.Drag
	if d == nil {
		return DropTarget{}, false
	}
	if !g.lanes.Has(laneID) {
		d.Target = nil
		return DropTarget{}, false
	}
	d.Target = &DropTarget{LaneID: laneID, Position: DropIntoLane}
	return *d.Target, true
}

// ClearDropTarget forgets the current drop target.
func (g *Grid) ClearDropTarget() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session.Drag != nil {
		g.session.Drag.Target = nil
	}
}

// EndDrag commits the drag when its target is valid and cancels it otherwise.
func (g *Grid) EndDrag() (MoveOp, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.session.Drag
	if d == nil {
		return MoveOp{}, false
	}
	g.endSession()
	op, ok := Resolve(g.tree, *d)
	if !ok {
		return MoveOp{}, false
	}
	if op.ParentID == "" && !g.lanes.Has(op.LaneID) {
		return MoveOp{}, false
	}
	if !g.tree.Move(op.SourceID, op.LaneID, op.ParentID, op.Index) {
		return MoveOp{}, false
	}
	g.commit()
	return op, true
}

// CancelDrag ends a drag without moving anything.
func (g *Grid) CancelDrag() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session.Drag != nil {
		g.endSession()
	}
}

// Resize.

// BeginResize starts resizing a column from pointer x. It is a no-op while a
// drag or resize is active and cancels an open editor.
func (g *Grid) BeginResize(columnID string, x int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pointerBusy() {
		return false
	}
	col, ok := g.schema.Get(columnID)
	if !ok || !col.Resizable {
		return false
	}
	g.setSession(Session{Kind: SessionResizing, Resize: &ResizeSession{
		ColumnID:   columnID,
		StartX:     x,
		StartWidth: col.Width,
		Width:      col.Width,
	}})
	return true
}

// ResizeTo computes the width for pointer x and returns it. Columns and
// Column report it right away; the schema and snapshots only see it once
// EndResize applies it.
func (g *Grid) ResizeTo(x int) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.session.Resize
	if r == nil {
		return 0, false
	}
	col, ok := g.schema.Get(r.ColumnID)
	if !ok {
		g.endSession()
		return 0, false
	}
	r.Width = r.WidthAt(x, col.MinWidth)
	return r.Width, true
}

// EndResize applies and persists the final width.
func (g *Grid) EndResize() {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.session.Resize
	if r == nil {
		return
	}
	g.endSession()
	before, ok := g.schema.Get(r.ColumnID)
	if !ok {
		return
	}
	if after, _ := g.schema.SetWidth(r.ColumnID, r.Width); after.Width != before.Width {
		g.commit()
	}
}

func (g *Grid) cancelResize() {
	g.endSession()
}

// withLiveWidth overlays the width of an in-progress resize.
func (g *Grid) withLiveWidth(col domain.Column) domain.Column {
	if r := g.session.Resize; r != nil && r.ColumnID == col.ID {
		col.Width = r.Width
	}
	return col
}

// Editing.

// OpenEditor opens the floating editor for one cell, closing any other
// editor. It is a no-op during a drag or resize. Toggle cells (checkboxes)
// flip immediately and open nothing; the returned bool reports whether an
// editor is now open.
func (g *Grid) OpenEditor(recordID, columnID string, anchor domain.Rect, popup, viewport domain.Size) (EditSession, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pointerBusy() {
		return EditSession{}, false
	}
	n, ok := g.tree.nodes[recordID]
	if !ok {
		return EditSession{}, false
	}

	edit := EditSession{
		RecordID: recordID,
		ColumnID: columnID,
		Kind:     EditorInline,
		Anchor:   anchor,
		Popup:    popup,
	}
	if columnID == TitleField {
		edit.Initial = n.rec.Title
	} else {
		col, ok := g.schema.Get(columnID)
		if !ok {
			return EditSession{}, false
		}
		edit.Kind = g.registry.Editor(col.Type).Kind()
		value := n.rec.Fields[columnID]
		if edit.Kind == EditorToggle {
			g.endSession()
			on, _ := value.(bool)
			g.tree.Update(recordID, RecordPatch{Fields: map[string]any{columnID: !on}})
			g.commit()
			return EditSession{}, false
		}
		edit.Initial = editorInput(g.registry, col, value)
	}
	edit.Placement = Place(anchor, popup, viewport, editorMargin)
	g.setSession(Session{Kind: SessionEditing, Edit: &edit})
	return edit, true
}

// ActiveEditor returns the open editor, if any.
func (g *Grid) ActiveEditor() (EditSession, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session.Edit == nil {
		return EditSession{}, false
	}
	return *g.session.Edit, true
}

// CommitEditor stores input into the edited cell and closes the editor. On a
// validation error the editor stays open.
func (g *Grid) CommitEditor(input string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.session.Edit
	if e == nil {
		return nil
	}
	if err := g.setCellLocked(e.RecordID, e.ColumnID, input); err != nil {
		return err
	}
	g.endSession()
	return nil
}

// SelectOption commits an existing option of a picker editor.
func (g *Grid) SelectOption(optionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.session.Edit
	if e == nil || e.Kind != EditorPicker {
		return nil
	}
	col, ok := g.schema.Get(e.ColumnID)
	if !ok {
		g.endSession()
		return fmt.Errorf("%w: column %q", ErrReferential, e.ColumnID)
	}
	if _, ok := col.Option(optionID); !ok {
		return fmt.Errorf("%w: unknown option %q", ErrValidation, optionID)
	}
	g.tree.Update(e.RecordID, RecordPatch{Fields: map[string]any{e.ColumnID: optionID}})
	g.endSession()
	g.commit()
	return nil
}

// ClearOption unsets the cell of a picker editor and closes it.
func (g *Grid) ClearOption() {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.session.Edit
	if e == nil || e.Kind != EditorPicker {
		return
	}
	g.tree.Update(e.RecordID, RecordPatch{Unset: []string{e.ColumnID}})
	g.endSession()
	g.commit()
}

// CreateOption adds an option to the edited cell's column, not the row, and
// commits it as the cell's value.
func (g *Grid) CreateOption(label, color string) (domain.Option, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.session.Edit
	if e == nil || e.Kind != EditorPicker {
		return domain.Option{}, fmt.Errorf("%w: no option editor is open", ErrValidation)
	}
	opt, err := g.schema.AddOption(e.ColumnID, label, color)
	if err != nil {
		return domain.Option{}, err
	}
	g.tree.Update(e.RecordID, RecordPatch{Fields: map[string]any{e.ColumnID: opt.ID}})
	g.endSession()
	g.commit()
	return opt, nil
}

// BlurEditor commits input when it is valid and cancels otherwise.
func (g *Grid) BlurEditor(input string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.session.Edit
	if e == nil {
		return false
	}
	committed := g.setCellLocked(e.RecordID, e.ColumnID, input) == nil
	g.endSession()
	return committed
}

// CancelEditor closes the editor without committing.
func (g *Grid) CancelEditor() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session.Edit != nil {
		g.endSession()
	}
}

// Cancellation.

// Escape ends whichever session is active without mutating. A cancelled
// resize leaves the stored width untouched.
func (g *Grid) Escape() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelLocked()
}

// PointerDown dismisses the active session for a press outside it. An editor
// survives presses on its trigger cell or inside its popover.
func (g *Grid) PointerDown(p domain.Point) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e := g.session.Edit; e != nil {
		if e.Anchor.Contains(p) || e.PopupRect().Contains(p) {
			return false
		}
	}
	return g.cancelLocked()
}

func (g *Grid) cancelLocked() bool {
	switch g.session.Kind {
	case SessionResizing:
		g.cancelResize()
	case SessionDragging, SessionEditing:
		g.endSession()
	default:
		return false
	}
	return true
}

// editorInput renders a stored value the way an inline editor expects to
// receive it back.
func editorInput(r *Registry, col domain.Column, value any) string {
	if value == nil {
		return ""
	}
	switch col.Type {
	case domain.ColumnTypeNumber, domain.ColumnTypeMoney:
		if f, ok := asFloat(value); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	case domain.ColumnTypeText, domain.ColumnTypeLongText, domain.ColumnTypeDate, domain.ColumnTypeStatus, domain.ColumnTypePriority, domain.ColumnTypeDropdown:
		return fmt.Sprint(value)
	}
	return r.Render(col, value)
}
