package grid

import (
	"fmt"

	"github.com/hylla/tabula/internal/domain"
)

// Snapshot is the persisted form of a grid. Records holds every lane's
// top-level records, lane by lane in lane order, each with its nested subtree.
type Snapshot struct {
	Columns []domain.Column `json:"columns"`
	Lanes   []domain.Lane   `json:"lanes"`
	Records []domain.Record `json:"records"`
}

// IsZero reports whether the snapshot carries no schema, lanes or records.
func (s Snapshot) IsZero() bool {
	return len(s.Columns) == 0 && len(s.Lanes) == 0 && len(s.Records) == 0
}

// CountRecords returns the number of records including nested ones.
func (s Snapshot) CountRecords() int {
	total := 0
	for _, rec := range s.Records {
		rec.Walk(func(domain.Record, int) { total++ })
	}
	return total
}

// LaneCount summarizes one lane for dashboards. Counts ignore collapse.
type LaneCount struct {
	LaneID    string `json:"lane_id"`
	Title     string `json:"title"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
	TopLevel  int    `json:"top_level"`
	Total     int    `json:"total"`
}

// restoreSnapshot rebuilds the stores from a snapshot. Records pointing at a
// missing lane are moved to the first lane.
func restoreSnapshot(snap Snapshot) (*Schema, *Lanes, *Tree, []string, error) {
	var warnings []string

	schema := NewSchema(nil)
	for _, col := range snap.Columns {
		if col.ID == "" || col.ID == TitleField || schema.index(col.ID) >= 0 {
			return nil, nil, nil, nil, fmt.Errorf("%w: bad column id %q", ErrValidation, col.ID)
		}
		if !col.Type.Valid() {
			return nil, nil, nil, nil, fmt.Errorf("%w: column %q: %w", ErrValidation, col.ID, domain.ErrInvalidColumnType)
		}
		if !col.Type.IsEnumerable() {
			col.Options = nil
		}
		col.SetWidth(col.Width)
		schema.columns = append(schema.columns, col.Clone())
	}

	lanes := NewLanes(nil)
	for _, lane := range snap.Lanes {
		if lane.ID == "" || lanes.Has(lane.ID) {
			return nil, nil, nil, nil, fmt.Errorf("%w: bad lane id %q", ErrValidation, lane.ID)
		}
		lanes.list = append(lanes.list, lane)
	}
	if len(snap.Records) > 0 && lanes.Len() == 0 {
		return nil, nil, nil, nil, fmt.Errorf("%w: records without any lane", ErrReferential)
	}

	tree := NewTree()
	for _, rec := range snap.Records {
		if !lanes.Has(rec.LaneID) {
			warnings = append(warnings, fmt.Sprintf("record %s referenced missing lane %q", rec.ID, rec.LaneID))
			rec.LaneID = lanes.list[0].ID
		}
		if err := tree.restore(rec, "", rec.LaneID); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	return schema, lanes, tree, warnings, nil
}

// restore inserts rec and its subtree keeping stored flags.
func (t *Tree) restore(rec domain.Record, parentID, laneID string) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record without id", ErrValidation)
	}
	if _, dup := t.nodes[rec.ID]; dup {
		return fmt.Errorf("%w: duplicate record id %q", ErrValidation, rec.ID)
	}
	children := rec.Children
	rec.Children = nil
	rec.LaneID = laneID
	rec.Fields = domain.CloneFields(rec.Fields)
	t.nodes[rec.ID] = &node{rec: rec, parentID: parentID}
	if parentID == "" {
		t.roots[laneID] = append(t.roots[laneID], rec.ID)
	} else {
		parent := t.nodes[parentID]
		parent.children = append(parent.children, rec.ID)
	}
	for _, child := range children {
		if err := t.restore(child, rec.ID, laneID); err != nil {
			return err
		}
	}
	return nil
}
