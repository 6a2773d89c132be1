package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hylla/tabula/internal/adapters/server/common"
	"github.com/hylla/tabula/internal/app"
	"github.com/hylla/tabula/internal/domain"
	"github.com/hylla/tabula/internal/grid"
)

// memStore is an in-memory snapshot store for handler tests.
type memStore struct {
	mu    sync.Mutex
	grids map[string]grid.Snapshot
}

func (s *memStore) Load(_ context.Context, key string) (grid.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.grids[key]
	if !ok {
		return grid.Snapshot{}, app.ErrNotFound
	}
	return snap, nil
}

func (s *memStore) Save(_ context.Context, key string, snap grid.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grids == nil {
		s.grids = map[string]grid.Snapshot{}
	}
	s.grids[key] = snap
	return nil
}

func (s *memStore) ListScopes(context.Context) ([]string, error) {
	return nil, nil
}

// stubGridService fails every call with err and records the last scope.
type stubGridService struct {
	common.GridService
	err       error
	lastScope string
}

func (s *stubGridService) GridState(_ context.Context, scope string) (common.GridState, error) {
	s.lastScope = scope
	return common.GridState{}, s.err
}

func (s *stubGridService) DeleteRecord(_ context.Context, scope, _ string) error {
	s.lastScope = scope
	return s.err
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := app.NewService(&memStore{}, nil, nil, nil, app.ServiceConfig{})
	t.Cleanup(svc.Close)
	srv := httptest.NewServer(NewHandler(common.NewAppServiceAdapter(svc), Options{}))
	t.Cleanup(srv.Close)
	return srv
}

// doJSON issues one request and decodes the JSON response into out when non-nil.
func doJSON(t *testing.T, method, target, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do(%s %s) error = %v", method, target, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
	}
	return resp.StatusCode
}

// TestHandlerGridFlow drives the record and lane endpoints end to end.
func TestHandlerGridFlow(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/grids/" + url.PathEscape("room/launch")

	var state common.GridState
	if code := doJSON(t, http.MethodGet, base, "", &state); code != http.StatusOK {
		t.Fatalf("GET grid status = %d", code)
	}
	if state.ScopeKey != "room/launch" || len(state.Lanes) != 3 {
		t.Fatalf("unexpected state %#v", state)
	}
	todo, done := state.Lanes[0].LaneID, state.Lanes[2].LaneID

	var rec domain.Record
	code := doJSON(t, http.MethodPost, base+"/records", `{"lane_id":"`+todo+`","title":"Ship it","cells":{"priority":"high"}}`, &rec)
	if code != http.StatusCreated {
		t.Fatalf("POST record status = %d", code)
	}
	if rec.Fields["priority"] != "high" {
		t.Fatalf("expected priority cell, got %#v", rec.Fields)
	}

	code = doJSON(t, http.MethodPatch, base+"/records/"+rec.ID, `{"title":"Ship it now"}`, &rec)
	if code != http.StatusOK || rec.Title != "Ship it now" {
		t.Fatalf("PATCH record status = %d title = %q", code, rec.Title)
	}

	code = doJSON(t, http.MethodPost, base+"/records/"+rec.ID+"/move", `{"lane_id":"`+done+`","index":0}`, &rec)
	if code != http.StatusOK || rec.LaneID != done {
		t.Fatalf("POST move status = %d lane = %q", code, rec.LaneID)
	}

	var counts struct {
		Lanes []grid.LaneCount `json:"lanes"`
	}
	if code := doJSON(t, http.MethodGet, base+"/lanes/counts", "", &counts); code != http.StatusOK {
		t.Fatalf("GET counts status = %d", code)
	}
	if counts.Lanes[2].Total != 1 || counts.Lanes[0].Total != 0 {
		t.Fatalf("unexpected counts %#v", counts.Lanes)
	}

	var lane domain.Lane
	if code := doJSON(t, http.MethodPost, base+"/lanes", `{"title":"Blocked"}`, &lane); code != http.StatusCreated {
		t.Fatalf("POST lane status = %d", code)
	}
	if code := doJSON(t, http.MethodPatch, base+"/lanes/"+lane.ID, `{"collapsed":true}`, &lane); code != http.StatusOK || !lane.Collapsed {
		t.Fatalf("PATCH lane status = %d lane = %#v", code, lane)
	}
	if code := doJSON(t, http.MethodDelete, base+"/lanes/"+lane.ID, "", nil); code != http.StatusOK {
		t.Fatalf("DELETE lane status = %d", code)
	}

	if code := doJSON(t, http.MethodDelete, base+"/records/"+rec.ID, "", nil); code != http.StatusNoContent {
		t.Fatalf("DELETE record status = %d", code)
	}
	if code := doJSON(t, http.MethodDelete, base+"/records/"+rec.ID, "", nil); code != http.StatusNoContent {
		t.Fatalf("repeat DELETE record status = %d", code)
	}
}

// TestHandlerColumnEndpoints verifies column creation, width and options.
func TestHandlerColumnEndpoints(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/grids/" + url.PathEscape("room/launch")

	var col domain.Column
	if code := doJSON(t, http.MethodPost, base+"/columns", `{"type":"money","label":"Budget"}`, &col); code != http.StatusCreated {
		t.Fatalf("POST column status = %d", code)
	}
	if col.ID != "budget" || col.Currency != "USD" {
		t.Fatalf("unexpected column %#v", col)
	}
	if code := doJSON(t, http.MethodPut, base+"/columns/budget/width", `{"width":-5}`, &col); code != http.StatusOK {
		t.Fatalf("PUT width status = %d", code)
	}
	if col.Width != col.MinWidth {
		t.Fatalf("expected clamped width, got %d", col.Width)
	}

	var envelope ErrorEnvelope
	if code := doJSON(t, http.MethodPost, base+"/columns/budget/options", `{"label":"Big"}`, &envelope); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for option on money column, got %d", code)
	}
	var opt domain.Option
	if code := doJSON(t, http.MethodPost, base+"/columns/status/options", `{"label":"Review","color":"#a25ddc"}`, &opt); code != http.StatusCreated {
		t.Fatalf("POST option status = %d", code)
	}
	if opt.ID != "review" {
		t.Fatalf("unexpected option %#v", opt)
	}
	if code := doJSON(t, http.MethodPatch, base+"/columns/budget", `{"label":"Spend","index":0}`, &col); code != http.StatusOK {
		t.Fatalf("PATCH column status = %d", code)
	}
	if col.ID != "budget" || col.Label != "Spend" {
		t.Fatalf("unexpected relabeled column %#v", col)
	}
	if code := doJSON(t, http.MethodDelete, base+"/columns/budget", "", nil); code != http.StatusNoContent {
		t.Fatalf("DELETE column status = %d", code)
	}
}

// TestHandlerErrorEnvelopes verifies structured error mapping.
func TestHandlerErrorEnvelopes(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/grids/" + url.PathEscape("room/launch")

	cases := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"unknown lane", http.MethodPost, base + "/records", `{"lane_id":"ghost","title":"x"}`, http.StatusConflict, "referential_conflict"},
		{"unknown field", http.MethodPost, base + "/records", `{"lane":"x"}`, http.StatusBadRequest, "invalid_request"},
		{"trailing body", http.MethodPost, base + "/lanes", `{"title":"a"}{}`, http.StatusBadRequest, "invalid_request"},
		{"missing record", http.MethodPatch, base + "/records/ghost", `{"title":"x"}`, http.StatusNotFound, "not_found"},
		{"bad scope", http.MethodGet, srv.URL + "/grids/" + url.PathEscape("//"), "", http.StatusBadRequest, "invalid_request"},
		{"unknown route", http.MethodGet, srv.URL + "/nope", "", http.StatusNotFound, "not_found"},
		{"wrong method", http.MethodPut, base + "/records", `{}`, http.StatusMethodNotAllowed, "method_not_allowed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var envelope ErrorEnvelope
			if code := doJSON(t, tc.method, tc.target, tc.body, &envelope); code != tc.status {
				t.Fatalf("expected status %d, got %d (%#v)", tc.status, code, envelope)
			}
			if envelope.Error.Code != tc.code {
				t.Fatalf("expected code %q, got %#v", tc.code, envelope.Error)
			}
		})
	}
}

// TestHandlerUnescapesScope verifies escaped scope keys reach the service decoded.
func TestHandlerUnescapesScope(t *testing.T) {
	stub := &stubGridService{err: errors.New("boom")}
	handler := NewHandler(stub, Options{})

	req := httptest.NewRequest(http.MethodGet, "/grids/room%2Falpha%2Fview%2Fbacklog", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unmapped error, got %d", rec.Code)
	}
	if stub.lastScope != "room/alpha/view/backlog" {
		t.Fatalf("unexpected scope %q", stub.lastScope)
	}

	stub.err = common.ErrNotFound
	req = httptest.NewRequest(http.MethodDelete, "/grids/room%2Falpha/records/r1", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

// TestHandlerCORS verifies preflight requests from allowed origins.
func TestHandlerCORS(t *testing.T) {
	handler := NewHandler(&stubGridService{}, Options{AllowedOrigins: []string{"https://board.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/grids/room%2Fa/records", nil)
	req.Header.Set("Origin", "https://board.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://board.example" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/grids/room%2Fa/records", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin header, got %q", got)
	}
}

// TestHandlerWithoutService verifies fail-closed behavior without a backing service.
func TestHandlerWithoutService(t *testing.T) {
	handler := NewHandler(nil, Options{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/grids", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
