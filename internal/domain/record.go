package domain

import (
	"maps"
	"slices"
	"strings"
)

// Record is one row of a grid and, through Children, the subtree it owns.
//
// Fields is sparse: an absent key means the cell is unset. Values are JSON-safe
// scalars (string, float64, bool) or []string for people columns.
type Record struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	LaneID   string         `json:"lane_id"`
	Fields   map[string]any `json:"fields,omitempty"`
	Children []Record       `json:"children,omitempty"`
	Expanded bool           `json:"expanded"`
	Selected bool           `json:"selected"`
}

// NewRecord constructs a childless record.
func NewRecord(id, laneID, title string) (Record, error) {
	id = strings.TrimSpace(id)
	laneID = strings.TrimSpace(laneID)
	title = strings.TrimSpace(title)
	if id == "" || laneID == "" {
		return Record{}, ErrInvalidID
	}
	if title == "" {
		return Record{}, ErrInvalidTitle
	}
	return Record{ID: id, Title: title, LaneID: laneID}, nil
}

// Field returns the value stored for columnID.
func (r Record) Field(columnID string) (any, bool) {
	v, ok := r.Fields[columnID]
	return v, ok
}

// Clone returns a deep copy of the record and its subtree.
func (r Record) Clone() Record {
	r.Fields = CloneFields(r.Fields)
	if r.Children != nil {
		children := make([]Record, len(r.Children))
		for i, child := range r.Children {
			children[i] = child.Clone()
		}
		r.Children = children
	}
	return r
}

// Walk visits r and every descendant depth-first, parents before children.
func (r Record) Walk(fn func(rec Record, depth int)) {
	r.walk(fn, 0)
}

func (r Record) walk(fn func(Record, int), depth int) {
	fn(r, depth)
	for _, child := range r.Children {
		child.walk(fn, depth+1)
	}
}

// CloneFields copies a field map, cloning []string values.
func CloneFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := maps.Clone(in)
	for k, v := range out {
		if names, ok := v.([]string); ok {
			out[k] = slices.Clone(names)
		}
	}
	return out
}
