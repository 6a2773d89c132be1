// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/tabula/internal/adapters/server/common"
	"github.com/hylla/tabula/internal/domain"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing grid tools.
func NewHandler(cfg Config, grids common.GridService) (*Handler, error) {
	if grids == nil {
		return nil, fmt.Errorf("grid service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerReadTools(mcpSrv, grids)
	registerRecordTools(mcpSrv, grids)
	registerLayoutTools(mcpSrv, grids)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "tabula"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// scopeArg is the argument every grid tool takes.
func scopeArg() mcp.ToolOption {
	return mcp.WithString("scope", mcp.Required(), mcp.Description("Grid scope key, e.g. room/launch or room/launch/view/backlog"))
}

// registerReadTools registers the read-only grid tools.
func registerReadTools(srv *mcpserver.MCPServer, grids common.GridReader) {
	srv.AddTool(
		mcp.NewTool(
			"tabula.list_scopes",
			mcp.WithDescription("List every stored or open grid scope."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scopes, err := grids.ListScopes(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"scopes": scopes})
			if err != nil {
				return nil, fmt.Errorf("encode list_scopes result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tabula.grid_snapshot",
			mcp.WithDescription("Return the columns, lanes with counts, nested records and rendered cell text of one grid."),
			scopeArg(),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scope, err := req.RequireString("scope")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			state, err := grids.GridState(ctx, scope)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(state)
			if err != nil {
				return nil, fmt.Errorf("encode grid_snapshot result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tabula.lane_counts",
			mcp.WithDescription("Return top-level and total record counts per lane."),
			scopeArg(),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scope, err := req.RequireString("scope")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			counts, err := grids.LaneCounts(ctx, scope)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"lanes": counts})
			if err != nil {
				return nil, fmt.Errorf("encode lane_counts result: %w", err)
			}
			return result, nil
		},
	)
}

// registerRecordTools registers record mutation tools.
func registerRecordTools(srv *mcpserver.MCPServer, records common.RecordService) {
	srv.AddTool(
		mcp.NewTool(
			"tabula.add_record",
			mcp.WithDescription("Create a record in a lane, or as the last child of parent_id."),
			scopeArg(),
			mcp.WithString("title", mcp.Required(), mcp.Description("Record title")),
			mcp.WithString("lane_id", mcp.Description("Lane id; ignored when parent_id is set")),
			mcp.WithString("parent_id", mcp.Description("Parent record id for subitems")),
			mcp.WithString("position", mcp.Description("Insert position in the lane"), mcp.Enum("back", "front")),
			mcp.WithObject("cells", mcp.Description("Initial cell input keyed by column id, e.g. {\"status\":\"Done\"}")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Scope    string         `json:"scope"`
				Title    string         `json:"title"`
				LaneID   string         `json:"lane_id"`
				ParentID string         `json:"parent_id"`
				Position string         `json:"position"`
				Cells    map[string]any `json:"cells"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.Scope) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "scope" not found`), nil
			}
			rec, err := records.AddRecord(ctx, common.AddRecordRequest{
				ScopeKey: args.Scope,
				LaneID:   args.LaneID,
				ParentID: args.ParentID,
				Title:    args.Title,
				Position: args.Position,
				Cells:    cellInput(args.Cells),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return recordResult("add_record", rec)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tabula.update_record",
			mcp.WithDescription("Rename a record, edit its cells or expand/collapse its subitems. Empty cell input clears the cell."),
			scopeArg(),
			mcp.WithString("record_id", mcp.Required(), mcp.Description("Record id")),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithObject("cells", mcp.Description("Cell input keyed by column id")),
			mcp.WithBoolean("expanded", mcp.Description("Show or hide subitems")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Scope    string         `json:"scope"`
				RecordID string         `json:"record_id"`
				Title    *string        `json:"title"`
				Cells    map[string]any `json:"cells"`
				Expanded *bool          `json:"expanded"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.RecordID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "record_id" not found`), nil
			}
			rec, err := records.UpdateRecord(ctx, common.UpdateRecordRequest{
				ScopeKey: args.Scope,
				RecordID: args.RecordID,
				Title:    args.Title,
				Cells:    cellInput(args.Cells),
				Expanded: args.Expanded,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return recordResult("update_record", rec)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tabula.move_record",
			mcp.WithDescription("Move a record with its subitems to a lane (top level) or under a parent, at index of the destination list."),
			scopeArg(),
			mcp.WithString("record_id", mcp.Required(), mcp.Description("Record id")),
			mcp.WithString("lane_id", mcp.Description("Destination lane for a top-level move")),
			mcp.WithString("parent_id", mcp.Description("Destination parent record")),
			mcp.WithNumber("index", mcp.Description("Destination index, counted without the moved record")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scope, err := req.RequireString("scope")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			recordID, err := req.RequireString("record_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rec, err := records.MoveRecord(ctx, common.MoveRecordRequest{
				ScopeKey: scope,
				RecordID: recordID,
				LaneID:   req.GetString("lane_id", ""),
				ParentID: req.GetString("parent_id", ""),
				Index:    req.GetInt("index", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return recordResult("move_record", rec)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tabula.delete_record",
			mcp.WithDescription("Delete a record and its subitems. Deleting a missing record succeeds."),
			scopeArg(),
			mcp.WithString("record_id", mcp.Required(), mcp.Description("Record id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scope, err := req.RequireString("scope")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			recordID, err := req.RequireString("record_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := records.DeleteRecord(ctx, scope, recordID); err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"deleted": recordID})
			if err != nil {
				return nil, fmt.Errorf("encode delete_record result: %w", err)
			}
			return result, nil
		},
	)
}

// registerLayoutTools registers column and lane tools.
func registerLayoutTools(srv *mcpserver.MCPServer, layout common.LayoutService) {
	types := make([]string, 0, len(domain.ColumnTypes()))
	for _, typ := range domain.ColumnTypes() {
		types = append(types, string(typ))
	}
	srv.AddTool(
		mcp.NewTool(
			"tabula.add_column",
			mcp.WithDescription("Append a typed column. Status and priority columns come with default options."),
			scopeArg(),
			mcp.WithString("type", mcp.Required(), mcp.Description("Column type"), mcp.Enum(types...)),
			mcp.WithString("label", mcp.Required(), mcp.Description("Column label")),
			mcp.WithArray("options", mcp.Description("Extra option labels for status, priority and dropdown columns"), mcp.WithStringItems()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scope, err := req.RequireString("scope")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			typ, err := req.RequireString("type")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			label, err := req.RequireString("label")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			col, err := layout.AddColumn(ctx, common.AddColumnRequest{
				ScopeKey: scope,
				Type:     typ,
				Label:    label,
				Options:  req.GetStringSlice("options", nil),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(col)
			if err != nil {
				return nil, fmt.Errorf("encode add_column result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tabula.add_lane",
			mcp.WithDescription("Append a lane (group of records)."),
			scopeArg(),
			mcp.WithString("title", mcp.Required(), mcp.Description("Lane title")),
			mcp.WithString("color", mcp.Description("Hex color such as #579bfc")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scope, err := req.RequireString("scope")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			title, err := req.RequireString("title")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			lane, err := layout.AddLane(ctx, common.AddLaneRequest{
				ScopeKey: scope,
				Title:    title,
				Color:    req.GetString("color", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(lane)
			if err != nil {
				return nil, fmt.Errorf("encode add_lane result: %w", err)
			}
			return result, nil
		},
	)
}

// recordResult encodes one record tool result.
func recordResult(tool string, rec domain.Record) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// cellInput stringifies JSON cell values into editor input.
func cellInput(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		switch v := value.(type) {
		case nil:
			out[key] = ""
		case string:
			out[key] = v
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(v)
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ", ")
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}

// invalidRequestToolResult maps argument decoding failures.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("referential_conflict: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrUnavailable):
		return mcp.NewToolResultError("service_unavailable: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
