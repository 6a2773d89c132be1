// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/hylla/tabula/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	grids  common.GridService
	router *mux.Router
	root   http.Handler
}

// Options configures cross-origin access.
type Options struct {
	AllowedOrigins []string
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over a grid service.
func NewHandler(grids common.GridService, opts Options) *Handler {
	h := &Handler{grids: grids}
	r := mux.NewRouter().UseEncodedPath()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "endpoint not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.HandleFunc("/grids", h.handleListScopes).Methods(http.MethodGet)
	scope := r.PathPrefix("/grids/{scope}").Subrouter()
	scope.HandleFunc("", h.handleGridState).Methods(http.MethodGet)
	scope.HandleFunc("/lanes/counts", h.handleLaneCounts).Methods(http.MethodGet)
	scope.HandleFunc("/records", h.handleAddRecord).Methods(http.MethodPost)
	scope.HandleFunc("/records/{id}", h.handleUpdateRecord).Methods(http.MethodPatch)
	scope.HandleFunc("/records/{id}", h.handleDeleteRecord).Methods(http.MethodDelete)
	scope.HandleFunc("/records/{id}/move", h.handleMoveRecord).Methods(http.MethodPost)
	scope.HandleFunc("/columns", h.handleAddColumn).Methods(http.MethodPost)
	scope.HandleFunc("/columns/{id}", h.handleUpdateColumn).Methods(http.MethodPatch)
	scope.HandleFunc("/columns/{id}", h.handleDeleteColumn).Methods(http.MethodDelete)
	scope.HandleFunc("/columns/{id}/width", h.handleSetColumnWidth).Methods(http.MethodPut)
	scope.HandleFunc("/columns/{id}/options", h.handleAddOption).Methods(http.MethodPost)
	scope.HandleFunc("/lanes", h.handleAddLane).Methods(http.MethodPost)
	scope.HandleFunc("/lanes/{id}", h.handleUpdateLane).Methods(http.MethodPatch)
	scope.HandleFunc("/lanes/{id}", h.handleDeleteLane).Methods(http.MethodDelete)
	h.router = r

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	h.root = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)
	return h
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.grids == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "grid service is not configured",
		})
		return
	}
	h.root.ServeHTTP(w, r)
}

// handleListScopes serves GET `/grids`.
func (h *Handler) handleListScopes(w http.ResponseWriter, r *http.Request) {
	scopes, err := h.grids.ListScopes(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scopes": scopes})
}

// handleGridState serves GET `/grids/{scope}`.
func (h *Handler) handleGridState(w http.ResponseWriter, r *http.Request) {
	scope, ok := pathVar(w, r, "scope")
	if !ok {
		return
	}
	state, err := h.grids.GridState(r.Context(), scope)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleLaneCounts serves GET `/grids/{scope}/lanes/counts`.
func (h *Handler) handleLaneCounts(w http.ResponseWriter, r *http.Request) {
	scope, ok := pathVar(w, r, "scope")
	if !ok {
		return
	}
	counts, err := h.grids.LaneCounts(r.Context(), scope)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lanes": counts})
}

// handleAddRecord serves POST `/grids/{scope}/records`.
func (h *Handler) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	scope, ok := pathVar(w, r, "scope")
	if !ok {
		return
	}
	var req common.AddRecordRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ScopeKey = scope
	rec, err := h.grids.AddRecord(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleUpdateRecord serves PATCH `/grids/{scope}/records/{id}`.
func (h *Handler) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndID(w, r)
	if !ok {
		return
	}
	var req common.UpdateRecordRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ScopeKey, req.RecordID = scope, id
	rec, err := h.grids.UpdateRecord(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteRecord serves DELETE `/grids/{scope}/records/{id}`.
func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndID(w, r)
	if !ok {
		return
	}
	if err := h.grids.DeleteRecord(r.Context(), scope, id); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMoveRecord serves POST `/grids/{scope}/records/{id}/move`.
func (h *Handler) handleMoveRecord(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndID(w, r)
	if !ok {
		return
	}
	var req common.MoveRecordRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ScopeKey, req.RecordID = scope, id
	rec, err := h.grids.MoveRecord(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleAddColumn serves POST `/grids/{scope}/columns`.
func (h *Handler) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	scope, ok := pathVar(w, r, "scope")
	if !ok {
		return
	}
	var req common.AddColumnRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ScopeKey = scope
	col, err := h.grids.AddColumn(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

// handleDeleteColumn serves DELETE `/grids/{scope}/columns/{id}`.
func (h *Handler) handleDeleteColumn(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndID(w, r)
	if !ok {
		return
	}
	if err := h.grids.DeleteColumn(r.Context(), scope, id); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateColumn serves PATCH `/grids/{scope}/columns/{id}`.
func (h *Handler) handleUpdateColumn(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndID(w, r)
	if !ok {
		return
	}
	var req common.UpdateColumnRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ScopeKey, req.ColumnID = scope, id
	col, err := h.grids.UpdateColumn(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// handleSetColumnWidth serves PUT `/grids/{scope}/columns/{id}/width`.
func (h *Handler) handleSetColumnWidth(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndID(w, r)
	if !ok {
		return
	}
	var req struct {
		Width int `json:"width"`
	}
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	col, err := h.grids.SetColumnWidth(r.Context(), scope, id, req.Width)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// handleAddOption serves POST `/grids/{scope}/columns/{id}/options`.
func (h *Handler) handleAddOption(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndID(w, r)
	if !ok {
		return
	}
	var req common.AddOptionRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ScopeKey, req.ColumnID = scope, id
	opt, err := h.grids.AddOption(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, opt)
}

// handleAddLane serves POST `/grids/{scope}/lanes`.
func (h *Handler) handleAddLane(w http.ResponseWriter, r *http.Request) {
	scope, ok := pathVar(w, r, "scope")
	if !ok {
		return
	}
	var req common.AddLaneRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ScopeKey = scope
	lane, err := h.grids.AddLane(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lane)
}

// handleUpdateLane serves PATCH `/grids/{scope}/lanes/{id}`.
func (h *Handler) handleUpdateLane(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndID(w, r)
	if !ok {
		return
	}
	var req common.UpdateLaneRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ScopeKey, req.LaneID = scope, id
	lane, err := h.grids.UpdateLane(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lane)
}

// handleDeleteLane serves DELETE `/grids/{scope}/lanes/{id}`.
func (h *Handler) handleDeleteLane(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := scopeAndID(w, r)
	if !ok {
		return
	}
	fallback, err := h.grids.DeleteLane(r.Context(), scope, id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reassigned_to": fallback})
}

// pathVar returns one unescaped route variable. Scope keys travel with
// their slashes escaped, e.g. `room%2Flaunch`.
func pathVar(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := mux.Vars(r)[name]
	value, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(value) == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: fmt.Sprintf("invalid path parameter %s", name),
		})
		return "", false
	}
	return value, true
}

// scopeAndID resolves the `{scope}` and `{id}` route variables.
func scopeAndID(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	scope, ok := pathVar(w, r, "scope")
	if !ok {
		return "", "", false
	}
	id, ok := pathVar(w, r, "id")
	if !ok {
		return "", "", false
	}
	return scope, id, true
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "referential_conflict",
			Message: err.Error(),
			Hint:    "Check that the referenced lane, parent record and column exist.",
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
