package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/tabula/internal/app"
	"github.com/hylla/tabula/internal/domain"
	"github.com/hylla/tabula/internal/grid"
)

// AppServiceAdapter maps transport contracts onto app.Service grids.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// open resolves the grid of one scope key.
func (a *AppServiceAdapter) open(ctx context.Context, operation, scopeKey string) (*grid.Grid, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	g, err := a.service.Open(ctx, scopeKey)
	if err != nil {
		return nil, mapAppError(operation, err)
	}
	return g, nil
}

// ListScopes lists stored and open scope keys.
func (a *AppServiceAdapter) ListScopes(ctx context.Context) ([]string, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	scopes, err := a.service.ListScopes(ctx)
	if err != nil {
		return nil, mapAppError("list scopes", err)
	}
	return scopes, nil
}

// GridState returns the full read model of one scope, opening it on first use.
func (a *AppServiceAdapter) GridState(ctx context.Context, scopeKey string) (GridState, error) {
	g, err := a.open(ctx, "grid state", scopeKey)
	if err != nil {
		return GridState{}, err
	}
	snap := g.Snapshot()
	rendered := map[string]CellMap{}
	for _, root := range snap.Records {
		root.Walk(func(rec domain.Record, _ int) {
			cells := CellMap{}
			for _, col := range snap.Columns {
				if text := g.CellText(rec.ID, col.ID); text != "" {
					cells[col.ID] = text
				}
			}
			if len(cells) > 0 {
				rendered[rec.ID] = cells
			}
		})
	}
	return GridState{
		ScopeKey: g.ScopeKey(),
		Columns:  snap.Columns,
		Lanes:    g.LaneCounts(),
		Records:  snap.Records,
		Rendered: rendered,
	}, nil
}

// LaneCounts returns per-lane record counts.
func (a *AppServiceAdapter) LaneCounts(ctx context.Context, scopeKey string) ([]grid.LaneCount, error) {
	g, err := a.open(ctx, "lane counts", scopeKey)
	if err != nil {
		return nil, err
	}
	return g.LaneCounts(), nil
}

// AddRecord creates one record and applies its initial cells atomically.
func (a *AppServiceAdapter) AddRecord(ctx context.Context, in AddRecordRequest) (domain.Record, error) {
	g, err := a.open(ctx, "add record", in.ScopeKey)
	if err != nil {
		return domain.Record{}, err
	}
	pos, err := parseInsertPosition(in.Position)
	if err != nil {
		return domain.Record{}, err
	}
	patch, err := g.ParseCells(in.Cells)
	if err != nil {
		return domain.Record{}, mapAppError("add record", err)
	}
	title := in.Title
	if patch.Title != nil {
		title = *patch.Title
	}
	rec, err := g.AddRecord(grid.AddRecordInput{
		LaneID:   in.LaneID,
		ParentID: in.ParentID,
		Title:    title,
		Position: pos,
		Fields:   patch.Fields,
	})
	if err != nil {
		return domain.Record{}, mapAppError("add record", err)
	}
	return rec, nil
}

// UpdateRecord applies a title and cell edits to one record.
func (a *AppServiceAdapter) UpdateRecord(ctx context.Context, in UpdateRecordRequest) (domain.Record, error) {
	g, err := a.open(ctx, "update record", in.ScopeKey)
	if err != nil {
		return domain.Record{}, err
	}
	rec, ok := g.Record(in.RecordID)
	if !ok {
		return domain.Record{}, fmt.Errorf("record %q: %w", in.RecordID, ErrNotFound)
	}
	patch, err := g.ParseCells(in.Cells)
	if err != nil {
		return domain.Record{}, mapAppError("update record", err)
	}
	if in.Title != nil {
		patch.Title = in.Title
	}
	if patch.Title != nil || len(patch.Fields) > 0 || len(patch.Unset) > 0 {
		if err := g.UpdateRecord(in.RecordID, patch); err != nil {
			return domain.Record{}, mapAppError("update record", err)
		}
	}
	if in.Expanded != nil && *in.Expanded != rec.Expanded {
		g.ToggleExpand(in.RecordID)
	}
	rec, ok = g.Record(in.RecordID)
	if !ok {
		return domain.Record{}, fmt.Errorf("record %q: %w", in.RecordID, ErrNotFound)
	}
	return rec, nil
}

// MoveRecord relocates one record with its subtree.
func (a *AppServiceAdapter) MoveRecord(ctx context.Context, in MoveRecordRequest) (domain.Record, error) {
	g, err := a.open(ctx, "move record", in.ScopeKey)
	if err != nil {
		return domain.Record{}, err
	}
	if _, ok := g.Record(in.RecordID); !ok {
		return domain.Record{}, fmt.Errorf("record %q: %w", in.RecordID, ErrNotFound)
	}
	if !g.MoveRecord(in.RecordID, strings.TrimSpace(in.LaneID), strings.TrimSpace(in.ParentID), in.Index) {
		return domain.Record{}, fmt.Errorf("move record %q: destination rejected: %w", in.RecordID, ErrConflict)
	}
	rec, _ := g.Record(in.RecordID)
	return rec, nil
}

// DeleteRecord removes a record and its subtree. Missing records are not an error.
func (a *AppServiceAdapter) DeleteRecord(ctx context.Context, scopeKey, recordID string) error {
	g, err := a.open(ctx, "delete record", scopeKey)
	if err != nil {
		return err
	}
	g.DeleteRecord(recordID)
	return nil
}

// AddColumn appends one column, seeding extra options by label.
func (a *AppServiceAdapter) AddColumn(ctx context.Context, in AddColumnRequest) (domain.Column, error) {
	g, err := a.open(ctx, "add column", in.ScopeKey)
	if err != nil {
		return domain.Column{}, err
	}
	typ, err := domain.ParseColumnType(in.Type)
	if err != nil {
		return domain.Column{}, mapAppError("add column", err)
	}
	col, err := g.AddColumn(typ, in.Label)
	if err != nil {
		return domain.Column{}, mapAppError("add column", err)
	}
	for _, label := range in.Options {
		if _, err := g.AddOption(col.ID, label, ""); err != nil {
			return domain.Column{}, mapAppError("add column", err)
		}
	}
	col, _ = g.Column(col.ID)
	return col, nil
}

// UpdateColumn relabels and/or reorders one column.
func (a *AppServiceAdapter) UpdateColumn(ctx context.Context, in UpdateColumnRequest) (domain.Column, error) {
	g, err := a.open(ctx, "update column", in.ScopeKey)
	if err != nil {
		return domain.Column{}, err
	}
	if _, ok := g.Column(in.ColumnID); !ok {
		return domain.Column{}, fmt.Errorf("column %q: %w", in.ColumnID, ErrNotFound)
	}
	if in.Label != nil {
		if err := g.RenameColumn(in.ColumnID, *in.Label); err != nil {
			return domain.Column{}, mapAppError("update column", err)
		}
	}
	if in.Index != nil {
		g.MoveColumn(in.ColumnID, *in.Index)
	}
	col, _ := g.Column(in.ColumnID)
	return col, nil
}

// DeleteColumn removes a column. Record values stay in place.
func (a *AppServiceAdapter) DeleteColumn(ctx context.Context, scopeKey, columnID string) error {
	g, err := a.open(ctx, "delete column", scopeKey)
	if err != nil {
		return err
	}
	g.DeleteColumn(columnID)
	return nil
}

// SetColumnWidth stores a column width, clamped to the column floor.
func (a *AppServiceAdapter) SetColumnWidth(ctx context.Context, scopeKey, columnID string, width int) (domain.Column, error) {
	g, err := a.open(ctx, "set column width", scopeKey)
	if err != nil {
		return domain.Column{}, err
	}
	if _, ok := g.Column(columnID); !ok {
		return domain.Column{}, fmt.Errorf("column %q: %w", columnID, ErrNotFound)
	}
	col, err := g.SetColumnWidth(columnID, width)
	if err != nil {
		return domain.Column{}, mapAppError("set column width", err)
	}
	return col, nil
}

// AddOption appends an option to an enumerable column.
func (a *AppServiceAdapter) AddOption(ctx context.Context, in AddOptionRequest) (domain.Option, error) {
	g, err := a.open(ctx, "add option", in.ScopeKey)
	if err != nil {
		return domain.Option{}, err
	}
	if _, ok := g.Column(in.ColumnID); !ok {
		return domain.Option{}, fmt.Errorf("column %q: %w", in.ColumnID, ErrNotFound)
	}
	opt, err := g.AddOption(in.ColumnID, in.Label, in.Color)
	if err != nil {
		return domain.Option{}, mapAppError("add option", err)
	}
	return opt, nil
}

// AddLane appends one lane.
func (a *AppServiceAdapter) AddLane(ctx context.Context, in AddLaneRequest) (domain.Lane, error) {
	g, err := a.open(ctx, "add lane", in.ScopeKey)
	if err != nil {
		return domain.Lane{}, err
	}
	lane, err := g.AddLane(in.Title, in.Color)
	if err != nil {
		return domain.Lane{}, mapAppError("add lane", err)
	}
	return lane, nil
}

// UpdateLane renames, recolors, collapses or reorders one lane.
func (a *AppServiceAdapter) UpdateLane(ctx context.Context, in UpdateLaneRequest) (domain.Lane, error) {
	g, err := a.open(ctx, "update lane", in.ScopeKey)
	if err != nil {
		return domain.Lane{}, err
	}
	lane, ok := g.Lane(in.LaneID)
	if !ok {
		return domain.Lane{}, fmt.Errorf("lane %q: %w", in.LaneID, ErrNotFound)
	}
	if in.Title != nil {
		if err := g.RenameLane(in.LaneID, *in.Title); err != nil {
			return domain.Lane{}, mapAppError("update lane", err)
		}
	}
	if in.Color != nil {
		if err := g.RecolorLane(in.LaneID, *in.Color); err != nil {
			return domain.Lane{}, mapAppError("update lane", err)
		}
	}
	if in.Collapsed != nil && *in.Collapsed != lane.Collapsed {
		g.ToggleCollapse(in.LaneID)
	}
	if in.Index != nil {
		g.ReorderLane(in.LaneID, *in.Index)
	}
	lane, _ = g.Lane(in.LaneID)
	return lane, nil
}

// DeleteLane removes a lane and returns the lane that received its records.
func (a *AppServiceAdapter) DeleteLane(ctx context.Context, scopeKey, laneID string) (domain.Lane, error) {
	g, err := a.open(ctx, "delete lane", scopeKey)
	if err != nil {
		return domain.Lane{}, err
	}
	if _, ok := g.Lane(laneID); !ok {
		return domain.Lane{}, fmt.Errorf("lane %q: %w", laneID, ErrNotFound)
	}
	fallback, err := g.DeleteLane(laneID)
	if err != nil {
		return domain.Lane{}, mapAppError("delete lane", err)
	}
	return fallback, nil
}

// parseInsertPosition maps the transport position string.
func parseInsertPosition(raw string) (grid.InsertPosition, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(grid.InsertBack):
		return grid.InsertBack, nil
	case string(grid.InsertFront):
		return grid.InsertFront, nil
	default:
		return "", fmt.Errorf("position %q is unsupported: %w", raw, ErrInvalidRequest)
	}
}

// mapAppError maps app/grid/domain errors into transport-layer error sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, grid.ErrReferential):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, grid.ErrValidation),
		errors.Is(err, app.ErrInvalidScope),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidLabel),
		errors.Is(err, domain.ErrInvalidColumnType),
		errors.Is(err, domain.ErrInvalidColor),
		errors.Is(err, domain.ErrInvalidValue),
		errors.Is(err, domain.ErrNotEnumerable):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
