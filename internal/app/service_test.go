package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hylla/tabula/internal/domain"
	"github.com/hylla/tabula/internal/grid"
)

type fakeStore struct {
	mu      sync.Mutex
	grids   map[string]grid.Snapshot
	saves   int
	loadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{grids: map[string]grid.Snapshot{}}
}

func (f *fakeStore) Load(_ context.Context, key string) (grid.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return grid.Snapshot{}, f.loadErr
	}
	snap, ok := f.grids[key]
	if !ok {
		return grid.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (f *fakeStore) Save(_ context.Context, key string, snap grid.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grids[key] = snap
	f.saves++
	return nil
}

func (f *fakeStore) ListScopes(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.grids))
	for key := range f.grids {
		out = append(out, key)
	}
	return out, nil
}

func (f *fakeStore) get(key string) (grid.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.grids[key]
	return snap, ok
}

func counterIDs() IDGenerator {
	n := 0
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func flush(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func TestScopeKey(t *testing.T) {
	key, err := ScopeKey(" Launch Room ", "Backlog")
	if err != nil {
		t.Fatalf("ScopeKey() error = %v", err)
	}
	if key != "room/launch-room/view/backlog" {
		t.Fatalf("unexpected key %q", key)
	}
	if key, _ := ScopeKey("ops", ""); key != "room/ops" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, err := ScopeKey("  ", "x"); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
	if _, err := NormalizeScopeKey("room//x"); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope for empty segment, got %v", err)
	}
}

func TestOpenSeedsNewScopeFromTemplates(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, counterIDs(), nil, nil, ServiceConfig{
		DefaultLanes: []LaneTemplate{{Title: "Backlog"}, {Title: "  "}, {Title: "Shipped", Color: "#00c875"}},
	})
	defer svc.Close()

	g, err := svc.Open(context.Background(), "room/launch")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	lanes := g.Lanes()
	if len(lanes) != 2 || lanes[0].Title != "Backlog" || lanes[1].Title != "Shipped" {
		t.Fatalf("unexpected seeded lanes %#v", lanes)
	}
	cols := g.Columns()
	if len(cols) != 3 || cols[0].ID != "status" || cols[1].ID != "priority" || cols[2].Type != domain.ColumnTypeDate {
		t.Fatalf("unexpected seeded columns %#v", cols)
	}
	again, err := svc.Open(context.Background(), "room/launch/")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if again != g {
		t.Fatal("expected cached grid for the same scope")
	}
	flush(t, svc)
	if _, ok := store.get("room/launch"); !ok {
		t.Fatal("expected seeded grid to be persisted")
	}
}

func TestOpenLoadsStoredSnapshot(t *testing.T) {
	store := newFakeStore()
	store.grids["room/ops"] = grid.Snapshot{
		Lanes:   []domain.Lane{{ID: "todo", Title: "To Do", Color: "#579bfc"}},
		Records: []domain.Record{{ID: "a", Title: "A", LaneID: "todo"}},
	}
	svc := NewService(store, counterIDs(), nil, nil, ServiceConfig{})
	defer svc.Close()

	counts, err := svc.LaneCounts(context.Background(), "room/ops")
	if err != nil {
		t.Fatalf("LaneCounts() error = %v", err)
	}
	if len(counts) != 1 || counts[0].Total != 1 {
		t.Fatalf("unexpected counts %#v", counts)
	}
}

func TestOpenWithSeedUsesInitialSchema(t *testing.T) {
	svc := NewService(newFakeStore(), counterIDs(), nil, nil, ServiceConfig{})
	defer svc.Close()
	seed := grid.Snapshot{
		Columns: []domain.Column{{ID: "stage", Label: "Stage", Type: domain.ColumnTypeDropdown, Width: 140, MinWidth: 100, Resizable: true}},
		Lanes:   []domain.Lane{{ID: "l1", Title: "Only", Color: "#579bfc"}},
	}
	g, err := svc.OpenWithSeed(context.Background(), "room/custom", &seed)
	if err != nil {
		t.Fatalf("OpenWithSeed() error = %v", err)
	}
	if cols := g.Columns(); len(cols) != 1 || cols[0].ID != "stage" {
		t.Fatalf("unexpected columns %#v", cols)
	}
}

func TestOpenLoadFailureSavesOnlyLaterEdits(t *testing.T) {
	store := newFakeStore()
	store.loadErr = errors.New("connection refused")
	svc := NewService(store, counterIDs(), nil, nil, ServiceConfig{})
	defer svc.Close()

	g, err := svc.Open(context.Background(), "room/flaky")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	flush(t, svc)
	if store.saves != 0 {
		t.Fatalf("expected the seed not to overwrite an unreadable scope, got %d saves", store.saves)
	}
	if _, err := g.AddRecord(grid.AddRecordInput{LaneID: g.Lanes()[0].ID, Title: "A"}); err != nil {
		t.Fatalf("AddRecord() error = %v", err)
	}
	flush(t, svc)
	snap, ok := store.get("room/flaky")
	if !ok || store.saves != 1 {
		t.Fatalf("expected the first edit to be saved once, got saves=%d ok=%t", store.saves, ok)
	}
	if snap.CountRecords() != 1 || snap.Records[0].Title != "A" {
		t.Fatalf("unexpected saved snapshot %#v", snap.Records)
	}
}

func TestServiceHandsDismissHooksToGrids(t *testing.T) {
	var installs, removes int
	svc := NewService(newFakeStore(), counterIDs(), nil, nil, ServiceConfig{
		DismissHooks: grid.DismissHooks{
			Install: func() { installs++ },
			Remove:  func() { removes++ },
		},
	})
	defer svc.Close()

	g, err := svc.Open(context.Background(), "room/hooks")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	cols := g.Columns()
	if len(cols) == 0 {
		t.Fatal("expected seeded columns")
	}
	if !g.BeginResize(cols[0].ID, 10) {
		t.Fatal("expected resize to start")
	}
	if installs != 1 || removes != 0 {
		t.Fatalf("expected one install while resizing, got installs=%d removes=%d", installs, removes)
	}
	if !g.Escape() {
		t.Fatal("expected escape to end the resize")
	}
	if installs != 1 || removes != 1 {
		t.Fatalf("expected hooks removed after escape, got installs=%d removes=%d", installs, removes)
	}
}

func TestOpenRejectsCorruptSnapshot(t *testing.T) {
	store := newFakeStore()
	store.grids["room/bad"] = grid.Snapshot{Records: []domain.Record{{ID: "a", Title: "A", LaneID: "x"}}}
	svc := NewService(store, counterIDs(), nil, nil, ServiceConfig{})
	defer svc.Close()
	if _, err := svc.Open(context.Background(), "room/bad"); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
}

func TestListScopesMergesOpenAndStored(t *testing.T) {
	store := newFakeStore()
	store.grids["room/b"] = grid.Snapshot{}
	svc := NewService(store, counterIDs(), nil, nil, ServiceConfig{DefaultColumns: []ColumnTemplate{}})
	defer svc.Close()
	if _, err := svc.Open(context.Background(), "room/a"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	scopes, err := svc.ListScopes(context.Background())
	if err != nil {
		t.Fatalf("ListScopes() error = %v", err)
	}
	if !slices.Equal(scopes, []string{"room/a", "room/b"}) {
		t.Fatalf("unexpected scopes %v", scopes)
	}
}
