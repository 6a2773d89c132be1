package grid

import (
	"fmt"
	"slices"

	"github.com/hylla/tabula/internal/domain"
)

// InsertPosition selects which end of a sibling list receives a new record.
type InsertPosition string

// InsertBack and InsertFront are the supported insert positions.
const (
	InsertBack  InsertPosition = "back"
	InsertFront InsertPosition = "front"
)

// RecordPatch carries a partial record update. Nil fields are left alone.
type RecordPatch struct {
	Title  *string
	Fields map[string]any
	Unset  []string
}

// Row is one visible line of a flattened lane.
type Row struct {
	Record     domain.Record
	Depth      int
	ChildCount int
}

type node struct {
	rec      domain.Record
	parentID string
	children []string
}

// Tree stores records as an id index plus explicit child-id lists.
// Top-level records are kept per lane in roots.
type Tree struct {
	nodes map[string]*node
	roots map[string][]string
}

// NewTree constructs an empty tree.
func NewTree() *Tree {
	return &Tree{
		nodes: map[string]*node{},
		roots: map[string][]string{},
	}
}

// Len returns the number of records in the forest.
func (t *Tree) Len() int { return len(t.nodes) }

// Has reports whether id is present.
func (t *Tree) Has(id string) bool {
	_, ok := t.nodes[id]
	return ok
}

// Insert stores rec. With a parent it becomes the parent's last child, takes the
// parent's lane and every ancestor is expanded. Without a parent it is placed at
// pos of rec.LaneID's top-level list.
func (t *Tree) Insert(rec domain.Record, parentID string, pos InsertPosition) error {
	if _, dup := t.nodes[rec.ID]; dup {
		return fmt.Errorf("%w: duplicate record id %q", ErrValidation, rec.ID)
	}
	rec.Children = nil
	n := &node{rec: rec, parentID: parentID}
	if parentID != "" {
		parent, ok := t.nodes[parentID]
		if !ok {
			return fmt.Errorf("%w: parent %q", ErrReferential, parentID)
		}
		n.rec.LaneID = parent.rec.LaneID
		parent.children = append(parent.children, rec.ID)
		t.nodes[rec.ID] = n
		t.expandChain(parentID)
		return nil
	}
	if pos == InsertFront {
		t.roots[rec.LaneID] = slices.Insert(t.roots[rec.LaneID], 0, rec.ID)
	} else {
		t.roots[rec.LaneID] = append(t.roots[rec.LaneID], rec.ID)
	}
	t.nodes[rec.ID] = n
	return nil
}

// Update merges patch into a record. Unknown ids are ignored.
func (t *Tree) Update(id string, patch RecordPatch) bool {
	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	if patch.Title != nil {
		n.rec.Title = *patch.Title
	}
	if len(patch.Fields) > 0 && n.rec.Fields == nil {
		n.rec.Fields = map[string]any{}
	}
	for k, v := range patch.Fields {
		if v == nil {
			delete(n.rec.Fields, k)
			continue
		}
		n.rec.Fields[k] = v
	}
	for _, k := range patch.Unset {
		delete(n.rec.Fields, k)
	}
	return true
}

// Delete removes a record and its subtree, returning the removed ids.
func (t *Tree) Delete(id string) []string {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	t.detach(id, n)
	var removed []string
	t.walkIDs(id, func(cur string) { removed = append(removed, cur) })
	for _, cur := range removed {
		delete(t.nodes, cur)
	}
	return removed
}

// Move relocates source under parentID (or to the top level of laneID when
// parentID is empty) at index of the list as it stands after source is
// removed. Self-parenting and moves into the source's own subtree are refused.
func (t *Tree) Move(sourceID, laneID, parentID string, index int) bool {
	src, ok := t.nodes[sourceID]
	if !ok {
		return false
	}
	if parentID != "" {
		if parentID == sourceID || t.IsDescendant(sourceID, parentID) {
			return false
		}
		parent, ok := t.nodes[parentID]
		if !ok {
			return false
		}
		laneID = parent.rec.LaneID
	}
	if laneID == "" {
		return false
	}

	t.detach(sourceID, src)
	list := t.siblings(laneID, parentID)
	list = slices.Insert(list, clamp(index, 0, len(list)), sourceID)
	t.setSiblings(laneID, parentID, list)
	src.parentID = parentID
	t.setLane(sourceID, laneID)
	if parentID != "" {
		t.expandChain(parentID)
	}
	return true
}

// ToggleExpand flips a record's expanded flag.
func (t *Tree) ToggleExpand(id string) bool {
	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	n.rec.Expanded = !n.rec.Expanded
	return true
}

// ToggleSelect flips a record's selected flag.
func (t *Tree) ToggleSelect(id string) bool {
	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	n.rec.Selected = !n.rec.Selected
	return true
}

// SelectedIDs returns selected record ids, outermost first, skipping
// descendants of an already selected record.
func (t *Tree) SelectedIDs(laneOrder []string) []string {
	var out []string
	for _, laneID := range laneOrder {
		for _, root := range t.roots[laneID] {
			t.collectSelected(root, &out)
		}
	}
	return out
}

func (t *Tree) collectSelected(id string, out *[]string) {
	n := t.nodes[id]
	if n.rec.Selected {
		*out = append(*out, id)
		return
	}
	for _, child := range n.children {
		t.collectSelected(child, out)
	}
}

// ClearSelection unselects every record.
func (t *Tree) ClearSelection() {
	for _, n := range t.nodes {
		n.rec.Selected = false
	}
}

// Record returns a copy of a record with its subtree.
func (t *Tree) Record(id string) (domain.Record, bool) {
	if _, ok := t.nodes[id]; !ok {
		return domain.Record{}, false
	}
	return t.build(id), true
}

// Parent returns the parent id of a record, empty for top-level records.
func (t *Tree) Parent(id string) (string, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return "", false
	}
	return n.parentID, true
}

// Children returns the ordered child ids of a record.
func (t *Tree) Children(id string) []string {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return slices.Clone(n.children)
}

// Roots returns the ordered top-level record ids of a lane.
func (t *Tree) Roots(laneID string) []string {
	return slices.Clone(t.roots[laneID])
}

// Ancestors returns the ancestor chain of id, nearest first.
func (t *Tree) Ancestors(id string) []string {
	var out []string
	n, ok := t.nodes[id]
	for ok && n.parentID != "" {
		out = append(out, n.parentID)
		n, ok = t.nodes[n.parentID]
	}
	return out
}

// IsDescendant reports whether id lies strictly below ancestorID.
func (t *Tree) IsDescendant(ancestorID, id string) bool {
	return slices.Contains(t.Ancestors(id), ancestorID)
}

// Forest returns the nested top-level records of a lane.
func (t *Tree) Forest(laneID string) []domain.Record {
	roots := t.roots[laneID]
	out := make([]domain.Record, 0, len(roots))
	for _, id := range roots {
		out = append(out, t.build(id))
	}
	return out
}

// Flatten lists a lane's rows depth-first, descending only into expanded records.
func (t *Tree) Flatten(laneID string) []Row {
	var rows []Row
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		n := t.nodes[id]
		rec := n.rec
		rec.Fields = domain.CloneFields(rec.Fields)
		rows = append(rows, Row{Record: rec, Depth: depth, ChildCount: len(n.children)})
		if !n.rec.Expanded {
			return
		}
		for _, child := range n.children {
			visit(child, depth+1)
		}
	}
	for _, id := range t.roots[laneID] {
		visit(id, 0)
	}
	return rows
}

// Count returns the number of top-level records and all records in a lane.
func (t *Tree) Count(laneID string) (topLevel, total int) {
	for _, id := range t.roots[laneID] {
		topLevel++
		t.walkIDs(id, func(string) { total++ })
	}
	return topLevel, total
}

// ReassignLane appends every top-level record of from to the end of to.
func (t *Tree) ReassignLane(from, to string) {
	moved := t.roots[from]
	delete(t.roots, from)
	for _, id := range moved {
		t.setLane(id, to)
	}
	t.roots[to] = append(t.roots[to], moved...)
}

func (t *Tree) siblings(laneID, parentID string) []string {
	if parentID != "" {
		return t.nodes[parentID].children
	}
	return t.roots[laneID]
}

func (t *Tree) setSiblings(laneID, parentID string, list []string) {
	if parentID != "" {
		t.nodes[parentID].children = list
		return
	}
	t.roots[laneID] = list
}

func (t *Tree) detach(id string, n *node) {
	list := t.siblings(n.rec.LaneID, n.parentID)
	if idx := slices.Index(list, id); idx >= 0 {
		list = slices.Delete(list, idx, idx+1)
	}
	t.setSiblings(n.rec.LaneID, n.parentID, list)
}

func (t *Tree) setLane(id, laneID string) {
	t.walkIDs(id, func(cur string) { t.nodes[cur].rec.LaneID = laneID })
}

func (t *Tree) expandChain(id string) {
	for n, ok := t.nodes[id]; ok; n, ok = t.nodes[n.parentID] {
		n.rec.Expanded = true
		if n.parentID == "" {
			return
		}
	}
}

func (t *Tree) walkIDs(id string, fn func(string)) {
	fn(id)
	for _, child := range t.nodes[id].children {
		t.walkIDs(child, fn)
	}
}

func (t *Tree) build(id string) domain.Record {
	n := t.nodes[id]
	rec := n.rec
	rec.Fields = domain.CloneFields(rec.Fields)
	if len(n.children) > 0 {
		rec.Children = make([]domain.Record, 0, len(n.children))
		for _, child := range n.children {
			rec.Children = append(rec.Children, t.build(child))
		}
	}
	return rec
}
