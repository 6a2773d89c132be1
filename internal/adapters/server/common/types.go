// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"

	"github.com/hylla/tabula/internal/domain"
	"github.com/hylla/tabula/internal/grid"
)

// ErrInvalidRequest reports malformed transport input or rejected values.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a mutation that references something that does not exist
// in the grid, or that the grid refuses structurally.
var ErrConflict = errors.New("conflict")

// ErrUnavailable reports a missing backing service.
var ErrUnavailable = errors.New("service unavailable")

// GridState is the full read model of one scope.
type GridState struct {
	ScopeKey string             `json:"scope_key"`
	Columns  []domain.Column    `json:"columns"`
	Lanes    []grid.LaneCount   `json:"lanes"`
	Records  []domain.Record    `json:"records"`
	Rendered map[string]CellMap `json:"rendered,omitempty"`
}

// CellMap maps column ids to display text for one record.
type CellMap map[string]string

// AddRecordRequest stores transport input for record creation. Cells holds
// raw editor input keyed by column id.
type AddRecordRequest struct {
	ScopeKey string            `json:"-"`
	LaneID   string            `json:"lane_id"`
	ParentID string            `json:"parent_id,omitempty"`
	Title    string            `json:"title"`
	Position string            `json:"position,omitempty"`
	Cells    map[string]string `json:"cells,omitempty"`
}

// UpdateRecordRequest stores transport input for record edits.
type UpdateRecordRequest struct {
	ScopeKey string            `json:"-"`
	RecordID string            `json:"-"`
	Title    *string           `json:"title,omitempty"`
	Cells    map[string]string `json:"cells,omitempty"`
	Expanded *bool             `json:"expanded,omitempty"`
}

// MoveRecordRequest stores transport input for a structural move. Index
// addresses the destination sibling list after the record is taken out.
type MoveRecordRequest struct {
	ScopeKey string `json:"-"`
	RecordID string `json:"-"`
	LaneID   string `json:"lane_id"`
	ParentID string `json:"parent_id,omitempty"`
	Index    int    `json:"index"`
}

// AddColumnRequest stores transport input for column creation.
type AddColumnRequest struct {
	ScopeKey string   `json:"-"`
	Type     string   `json:"type"`
	Label    string   `json:"label"`
	Options  []string `json:"options,omitempty"`
}

// UpdateColumnRequest stores transport input for column relabel and reorder.
type UpdateColumnRequest struct {
	ScopeKey string  `json:"-"`
	ColumnID string  `json:"-"`
	Label    *string `json:"label,omitempty"`
	Index    *int    `json:"index,omitempty"`
}

// AddOptionRequest stores transport input for a new enumerable option.
type AddOptionRequest struct {
	ScopeKey string `json:"-"`
	ColumnID string `json:"-"`
	Label    string `json:"label"`
	Color    string `json:"color,omitempty"`
}

// AddLaneRequest stores transport input for lane creation.
type AddLaneRequest struct {
	ScopeKey string `json:"-"`
	Title    string `json:"title"`
	Color    string `json:"color,omitempty"`
}

// UpdateLaneRequest stores transport input for lane edits.
type UpdateLaneRequest struct {
	ScopeKey  string  `json:"-"`
	LaneID    string  `json:"-"`
	Title     *string `json:"title,omitempty"`
	Color     *string `json:"color,omitempty"`
	Collapsed *bool   `json:"collapsed,omitempty"`
	Index     *int    `json:"index,omitempty"`
}

// GridReader defines read access shared by every transport.
type GridReader interface {
	ListScopes(context.Context) ([]string, error)
	GridState(context.Context, string) (GridState, error)
	LaneCounts(context.Context, string) ([]grid.LaneCount, error)
}

// RecordService defines record mutations.
type RecordService interface {
	AddRecord(context.Context, AddRecordRequest) (domain.Record, error)
	UpdateRecord(context.Context, UpdateRecordRequest) (domain.Record, error)
	MoveRecord(context.Context, MoveRecordRequest) (domain.Record, error)
	DeleteRecord(context.Context, string, string) error
}

// LayoutService defines column and lane mutations.
type LayoutService interface {
	AddColumn(context.Context, AddColumnRequest) (domain.Column, error)
	UpdateColumn(context.Context, UpdateColumnRequest) (domain.Column, error)
	DeleteColumn(context.Context, string, string) error
	SetColumnWidth(context.Context, string, string, int) (domain.Column, error)
	AddOption(context.Context, AddOptionRequest) (domain.Option, error)
	AddLane(context.Context, AddLaneRequest) (domain.Lane, error)
	UpdateLane(context.Context, UpdateLaneRequest) (domain.Lane, error)
	DeleteLane(context.Context, string, string) (domain.Lane, error)
}

// GridService is the full surface served over HTTP and MCP.
type GridService interface {
	GridReader
	RecordService
	LayoutService
}
