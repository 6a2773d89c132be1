package grid

import (
	"slices"

	"github.com/hylla/tabula/internal/domain"
)

// DropPosition is where a dragged record lands relative to the target.
type DropPosition string

// DropBefore and related constants enumerate drop positions.
const (
	DropBefore   DropPosition = "before"
	DropAfter    DropPosition = "after"
	DropIntoLane DropPosition = "into-lane"
)

// DropTarget is the insertion point computed while dragging. Exactly one of
// RecordID and LaneID is set.
type DropTarget struct {
	RecordID string       `json:"record_id,omitempty"`
	LaneID   string       `json:"lane_id,omitempty"`
	Position DropPosition `json:"position"`
}

// DragSession tracks one row-drag gesture from pointer-down to release.
type DragSession struct {
	SourceID       string
	OriginLaneID   string
	OriginParentID string
	PointerStart   domain.Point
	Target         *DropTarget
}

// MoveOp is a resolved structural move. Index is the slot in the target
// sibling list after the source has been removed.
type MoveOp struct {
	SourceID string
	LaneID   string
	ParentID string
	Index    int
}

// PositionFor compares pointerY to a row's vertical midpoint.
func PositionFor(pointerY, rowTop, rowHeight int) DropPosition {
	// pointerY < rowTop + rowHeight/2 without losing the half unit.
	if 2*pointerY < 2*rowTop+rowHeight {
		return DropBefore
	}
	return DropAfter
}

// Resolve turns the session's drop target into a move. Self drops, drops into
// the source's own subtree and unknown targets resolve to false.
func Resolve(t *Tree, s DragSession) (MoveOp, bool) {
	if s.Target == nil || !t.Has(s.SourceID) {
		return MoveOp{}, false
	}
	target := *s.Target
	switch target.Position {
	case DropIntoLane:
		if target.LaneID == "" {
			return MoveOp{}, false
		}
		return MoveOp{SourceID: s.SourceID, LaneID: target.LaneID, Index: 0}, true
	case DropBefore, DropAfter:
		if target.RecordID == s.SourceID || !t.Has(target.RecordID) {
			return MoveOp{}, false
		}
		if t.IsDescendant(s.SourceID, target.RecordID) {
			return MoveOp{}, false
		}
		n := t.nodes[target.RecordID]
		list := t.siblings(n.rec.LaneID, n.parentID)
		idx := slices.Index(list, target.RecordID)
		if target.Position == DropAfter {
			idx++
		}
		// remove-then-insert correction for moves within one list
		if srcIdx := slices.Index(list, s.SourceID); srcIdx >= 0 && srcIdx < idx {
			idx--
		}
		return MoveOp{
			SourceID: s.SourceID,
			LaneID:   n.rec.LaneID,
			ParentID: n.parentID,
			Index:    idx,
		}, true
	default:
		return MoveOp{}, false
	}
}
