package grid

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/hylla/tabula/internal/domain"
)

// editorMargin keeps pinned popovers off the viewport's bottom edge.
const editorMargin = 1

// Grid composes the column schema, lane list and record tree of one scope and
// owns the single active drag, resize or edit session.
//
// Every method is one atomic transition guarded by a mutex. Committed
// mutations are handed to the Saver asynchronously; a failed save is logged
// and the in-memory state stays authoritative.
type Grid struct {
	mu sync.Mutex

	scopeKey string
	schema   *Schema
	lanes    *Lanes
	tree     *Tree
	registry *Registry
	session  Session
	hooks    DismissHooks

	idGen  func() string
	logger *log.Logger
	saver  Saver
	queue  *saveQueue
	seed   Snapshot
}

// Option configures a Grid at construction.
type Option func(*Grid)

// WithSnapshot starts the grid from snap.
func WithSnapshot(snap Snapshot) Option {
	return func(g *Grid) { g.seed = snap }
}

// WithSaver sets where committed snapshots are written.
func WithSaver(saver Saver) Option {
	return func(g *Grid) { g.saver = saver }
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(logger *log.Logger) Option {
	return func(g *Grid) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRegistry replaces the default cell editor registry.
func WithRegistry(r *Registry) Option {
	return func(g *Grid) {
		if r != nil {
			g.registry = r
		}
	}
}

// WithIDGenerator sets the record and lane id source.
func WithIDGenerator(fn func() string) Option {
	return func(g *Grid) {
		if fn != nil {
			g.idGen = fn
		}
	}
}

// WithDismissHooks installs Escape/click-outside listener hooks. Hooks run
// with the grid locked and must not call back into it.
func WithDismissHooks(h DismissHooks) Option {
	return func(g *Grid) { g.hooks = h }
}

// New builds a grid for scopeKey.
func New(scopeKey string, opts ...Option) (*Grid, error) {
	scopeKey = strings.TrimSpace(scopeKey)
	if scopeKey == "" {
		return nil, fmt.Errorf("%w: empty scope key", ErrValidation)
	}
	g := &Grid{
		scopeKey: scopeKey,
		registry: DefaultRegistry(),
		session:  Session{Kind: SessionNone},
		idGen:    uuid.NewString,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(g)
	}
	schema, lanes, tree, warnings, err := restoreSnapshot(g.seed)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		g.logger.Warn("grid snapshot repaired", "scope", scopeKey, "detail", w)
	}
	g.schema, g.lanes, g.tree = schema, lanes, tree
	g.seed = Snapshot{}
	if g.saver != nil {
		g.queue = newSaveQueue(g.saver, scopeKey, g.logger)
	}
	return g, nil
}

// ScopeKey returns the persistence scope of the grid.
func (g *Grid) ScopeKey() string { return g.scopeKey }

// Registry returns the cell editor registry.
func (g *Grid) Registry() *Registry { return g.registry }

// Flush waits for pending snapshot writes.
func (g *Grid) Flush(ctx context.Context) error {
	if g.queue == nil {
		return nil
	}
	return g.queue.flush(ctx)
}

// Close drains pending writes and stops the save goroutine.
func (g *Grid) Close() {
	if g.queue != nil {
		g.queue.close()
	}
}

// commit dispatches the current state to the saver. Caller holds g.mu.
func (g *Grid) commit() {
	if g.queue == nil {
		return
	}
	g.queue.enqueue(g.snapshotLocked())
}

// Columns.

// AddColumn appends a column of typ. An empty label is a validation error.
func (g *Grid) AddColumn(typ domain.ColumnType, label string, options ...domain.Option) (domain.Column, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	col, err := g.schema.Add(typ, label, options)
	if err != nil {
		return domain.Column{}, err
	}
	g.commit()
	return col, nil
}

// DeleteColumn removes a column definition. Cell values survive in records.
func (g *Grid) DeleteColumn(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.schema.Delete(id) {
		return
	}
	switch {
	case g.session.Edit != nil && g.session.Edit.ColumnID == id,
		g.session.Resize != nil && g.session.Resize.ColumnID == id:
		g.setSession(Session{Kind: SessionNone})
	}
	g.commit()
}

// RenameColumn relabels a column.
func (g *Grid) RenameColumn(id, label string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.schema.Rename(id, label); err != nil {
		return err
	}
	g.commit()
	return nil
}

// MoveColumn reorders a column.
func (g *Grid) MoveColumn(id string, index int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.schema.Move(id, index) {
		g.commit()
	}
}

// SetColumnWidth applies a width directly, honoring the column's floor.
func (g *Grid) SetColumnWidth(id string, width int) (domain.Column, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	col, ok := g.schema.SetWidth(id, width)
	if !ok {
		return domain.Column{}, fmt.Errorf("%w: column %q", ErrReferential, id)
	}
	g.commit()
	return col, nil
}

// AddOption appends an option to an enumerable column.
func (g *Grid) AddOption(columnID, label, color string) (domain.Option, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	opt, err := g.schema.AddOption(columnID, label, color)
	if err != nil {
		return domain.Option{}, err
	}
	g.commit()
	return opt, nil
}

// Columns returns the schema in display order.
func (g *Grid) Columns() []domain.Column {
	g.mu.Lock()
	defer g.mu.Unlock()
	cols := g.schema.List()
	for i := range cols {
		cols[i] = g.withLiveWidth(cols[i])
	}
	return cols
}

// Column returns one column definition.
func (g *Grid) Column(id string) (domain.Column, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	col, ok := g.schema.Get(id)
	if !ok {
		return domain.Column{}, false
	}
	return g.withLiveWidth(col), true
}

// Records.

// AddRecordInput holds input values for AddRecord.
type AddRecordInput struct {
	LaneID   string
	ParentID string
	Title    string
	Position InsertPosition
	Fields   map[string]any
}

// AddRecord creates a record. A parent makes it the parent's last child in
// the parent's lane.
func (g *Grid) AddRecord(in AddRecordInput) (domain.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	laneID := strings.TrimSpace(in.LaneID)
	parentID := strings.TrimSpace(in.ParentID)
	if parentID != "" {
		parent, ok := g.tree.nodes[parentID]
		if !ok {
			return domain.Record{}, fmt.Errorf("%w: parent %q", ErrReferential, parentID)
		}
		laneID = parent.rec.LaneID
	} else if !g.lanes.Has(laneID) {
		return domain.Record{}, fmt.Errorf("%w: lane %q", ErrReferential, laneID)
	}
	rec, err := domain.NewRecord(g.idGen(), laneID, in.Title)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	rec.Fields = domain.CloneFields(in.Fields)
	if err := g.tree.Insert(rec, parentID, in.Position); err != nil {
		return domain.Record{}, err
	}
	g.commit()
	out, _ := g.tree.Record(rec.ID)
	return out, nil
}

// UpdateRecord merges patch into a record. An unknown id is not an error.
func (g *Grid) UpdateRecord(id string, patch RecordPatch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return fmt.Errorf("%w: %w", ErrValidation, domain.ErrInvalidTitle)
		}
		patch.Title = &title
	}
	patch.Fields = domain.CloneFields(patch.Fields)
	if g.tree.Update(id, patch) {
		g.commit()
	}
	return nil
}

// SetCell parses input with the column's editor and stores the result. Empty
// input unsets the cell. An unknown record is not an error.
func (g *Grid) SetCell(recordID, columnID, input string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setCellLocked(recordID, columnID, input)
}

func (g *Grid) setCellLocked(recordID, columnID, input string) error {
	patch, err := g.cellPatch(columnID, input)
	if err != nil {
		return err
	}
	if g.tree.Update(recordID, patch) {
		g.commit()
	}
	return nil
}

func (g *Grid) cellPatch(columnID, input string) (RecordPatch, error) {
	if columnID == TitleField {
		title := strings.TrimSpace(input)
		if title == "" {
			return RecordPatch{}, fmt.Errorf("%w: %w", ErrValidation, domain.ErrInvalidTitle)
		}
		return RecordPatch{Title: &title}, nil
	}
	col, ok := g.schema.Get(columnID)
	if !ok {
		return RecordPatch{}, fmt.Errorf("%w: column %q", ErrReferential, columnID)
	}
	value, err := g.registry.Parse(col, input)
	if err != nil {
		return RecordPatch{}, err
	}
	if value == nil {
		return RecordPatch{Unset: []string{columnID}}, nil
	}
	return RecordPatch{Fields: map[string]any{columnID: value}}, nil
}

// ParseCells turns raw editor input keyed by column id into one patch. The
// title key renames the record; empty input unsets the cell.
func (g *Grid) ParseCells(cells map[string]string) (RecordPatch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out RecordPatch
	for columnID, input := range cells {
		patch, err := g.cellPatch(columnID, input)
		if err != nil {
			return RecordPatch{}, err
		}
		if patch.Title != nil {
			out.Title = patch.Title
		}
		out.Unset = append(out.Unset, patch.Unset...)
		for k, v := range patch.Fields {
			if out.Fields == nil {
				out.Fields = map[string]any{}
			}
			out.Fields[k] = v
		}
	}
	return out, nil
}

// DeleteRecord removes a record and its subtree. Deleting an absent id is a no-op.
func (g *Grid) DeleteRecord(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteLocked(id)
}

func (g *Grid) deleteLocked(id string) bool {
	removed := g.tree.Delete(id)
	if len(removed) == 0 {
		return false
	}
	for _, gone := range removed {
		if (g.session.Edit != nil && g.session.Edit.RecordID == gone) ||
			(g.session.Drag != nil && g.session.Drag.SourceID == gone) {
			g.setSession(Session{Kind: SessionNone})
			break
		}
	}
	g.commit()
	return true
}

// MoveRecord moves a record under parentID, or to the top level of laneID
// when parentID is empty, at index of the list after the record's removal.
// Moves that would create a cycle, and unknown ids, are silently refused.
func (g *Grid) MoveRecord(sourceID, laneID, parentID string, index int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if parentID == "" && !g.lanes.Has(laneID) {
		return false
	}
	if !g.tree.Move(sourceID, laneID, parentID, index) {
		return false
	}
	g.commit()
	return true
}

// ToggleExpand flips a record's expanded flag.
func (g *Grid) ToggleExpand(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tree.ToggleExpand(id) {
		g.commit()
	}
}

// ToggleSelect flips a record's selected flag.
func (g *Grid) ToggleSelect(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tree.ToggleSelect(id) {
		g.commit()
	}
}

// SelectedIDs returns the outermost selected records in display order.
func (g *Grid) SelectedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tree.SelectedIDs(g.laneOrder())
}

// ClearSelection unselects every record.
func (g *Grid) ClearSelection() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tree.ClearSelection()
	g.commit()
}

// DeleteSelected deletes every selected record with its subtree.
func (g *Grid) DeleteSelected() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, id := range g.tree.SelectedIDs(g.laneOrder()) {
		if g.deleteLocked(id) {
			n++
		}
	}
	return n
}

// Record returns one record with its subtree.
func (g *Grid) Record(id string) (domain.Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tree.Record(id)
}

// Forest returns the nested top-level records of a lane.
func (g *Grid) Forest(laneID string) []domain.Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tree.Forest(laneID)
}

// VisibleRows flattens a lane honoring record expansion. Collapsed lanes have no rows.
func (g *Grid) VisibleRows(laneID string) []Row {
	g.mu.Lock()
	defer g.mu.Unlock()
	lane, ok := g.lanes.Get(laneID)
	if !ok || lane.Collapsed {
		return nil
	}
	return g.tree.Flatten(laneID)
}

// CellText renders one cell for the read state.
func (g *Grid) CellText(recordID, columnID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.tree.nodes[recordID]
	if !ok {
		return ""
	}
	if columnID == TitleField {
		return n.rec.Title
	}
	col, ok := g.schema.Get(columnID)
	if !ok {
		return ""
	}
	return g.registry.Render(col, n.rec.Fields[columnID])
}

// Lanes.

// AddLane appends a lane.
func (g *Grid) AddLane(title, color string) (domain.Lane, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	lane, err := g.lanes.Add(g.idGen(), title, color)
	if err != nil {
		return domain.Lane{}, err
	}
	g.commit()
	return lane, nil
}

// RenameLane retitles a lane.
func (g *Grid) RenameLane(id, title string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.lanes.Rename(id, title); err != nil {
		return err
	}
	g.commit()
	return nil
}

// RecolorLane changes a lane's color.
func (g *Grid) RecolorLane(id, color string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.lanes.Recolor(id, color); err != nil {
		return err
	}
	g.commit()
	return nil
}

// DeleteLane removes a lane and appends its records to the first remaining
// lane. The last lane cannot be deleted.
func (g *Grid) DeleteLane(id string) (fallback domain.Lane, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fallback, err = g.lanes.Remove(id)
	if err != nil {
		return domain.Lane{}, err
	}
	g.tree.ReassignLane(id, fallback.ID)
	if d := g.session.Drag; d != nil && d.Target != nil && d.Target.LaneID == id {
		d.Target = nil
	}
	g.commit()
	return fallback, nil
}

// ReorderLane moves a lane to index.
func (g *Grid) ReorderLane(id string, index int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lanes.Move(id, index) {
		g.commit()
	}
}

// ToggleCollapse flips a lane's collapsed flag.
func (g *Grid) ToggleCollapse(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lanes.ToggleCollapse(id) {
		g.commit()
	}
}

// Lanes returns lanes in display order.
func (g *Grid) Lanes() []domain.Lane {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lanes.List()
}

// Lane returns one lane.
func (g *Grid) Lane(id string) (domain.Lane, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lanes.Get(id)
}

// LaneCounts summarizes record counts per lane.
func (g *Grid) LaneCounts() []LaneCount {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]LaneCount, 0, g.lanes.Len())
	for _, lane := range g.lanes.list {
		top, total := g.tree.Count(lane.ID)
		out = append(out, LaneCount{
			LaneID:    lane.ID,
			Title:     lane.Title,
			Color:     lane.Color,
			Collapsed: lane.Collapsed,
			TopLevel:  top,
			Total:     total,
		})
	}
	return out
}

// Snapshot returns a deep copy of the grid's persistent state.
func (g *Grid) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Grid) snapshotLocked() Snapshot {
	snap := Snapshot{
		Columns: g.schema.List(),
		Lanes:   g.lanes.List(),
		Records: []domain.Record{},
	}
	for _, lane := range g.lanes.list {
		snap.Records = append(snap.Records, g.tree.Forest(lane.ID)...)
	}
	return snap
}

func (g *Grid) laneOrder() []string {
	ids := make([]string, 0, g.lanes.Len())
	for _, lane := range g.lanes.list {
		ids = append(ids, lane.ID)
	}
	return ids
}
