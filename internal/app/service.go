package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/hylla/tabula/internal/domain"
	"github.com/hylla/tabula/internal/grid"
)

// LaneTemplate describes a lane created for new scopes.
type LaneTemplate struct {
	Title string
	Color string
}

// ColumnTemplate describes a column created for new scopes.
type ColumnTemplate struct {
	Label string
	Type  domain.ColumnType
}

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DefaultLanes   []LaneTemplate
	DefaultColumns []ColumnTemplate
	// DismissHooks is handed to every grid the service opens. Hosts that
	// listen for Escape and outside clicks only while a session is active
	// set it; the terminal host keeps those keys bound and leaves it empty.
	DismissHooks grid.DismissHooks
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service opens grids by scope key and keeps them in sync with a SnapshotStore.
type Service struct {
	store   SnapshotStore
	idGen   IDGenerator
	clock   Clock
	logger  *log.Logger
	lanes   []LaneTemplate
	columns []ColumnTemplate
	hooks   grid.DismissHooks

	mu    sync.Mutex
	grids map[string]*grid.Grid
}

// NewService constructs a new value for this package.
func NewService(store SnapshotStore, idGen IDGenerator, clock Clock, logger *log.Logger, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = uuid.NewString
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	lanes := sanitizeLaneTemplates(cfg.DefaultLanes)
	if len(lanes) == 0 {
		lanes = defaultLaneTemplates()
	}
	columns := cfg.DefaultColumns
	if columns == nil {
		columns = defaultColumnTemplates()
	}
	return &Service{
		store:   store,
		idGen:   idGen,
		clock:   clock,
		logger:  logger,
		lanes:   lanes,
		columns: slices.Clone(columns),
		hooks:   cfg.DismissHooks,
		grids:   map[string]*grid.Grid{},
	}
}

// Open returns the grid of scopeKey, loading it from the store on first use.
// A scope that was never saved is seeded from the configured templates.
func (s *Service) Open(ctx context.Context, scopeKey string) (*grid.Grid, error) {
	return s.OpenWithSeed(ctx, scopeKey, nil)
}

// OpenWithSeed is Open with an initial snapshot used when the scope is new.
func (s *Service) OpenWithSeed(ctx context.Context, scopeKey string, seed *grid.Snapshot) (*grid.Grid, error) {
	key, err := NormalizeScopeKey(scopeKey)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.grids[key]; ok {
		return g, nil
	}

	opts := []grid.Option{grid.WithLogger(s.logger), grid.WithIDGenerator(s.idGen), grid.WithDismissHooks(s.hooks)}

	snap, err := s.store.Load(ctx, key)
	switch {
	case err == nil:
		g, err := grid.New(key, append(opts, grid.WithSnapshot(snap), grid.WithSaver(s.store))...)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidSnapshot, key, err)
		}
		s.logger.Debug("grid loaded", "scope", key, "records", snap.CountRecords())
		s.grids[key] = g
		return g, nil
	case errors.Is(err, ErrNotFound):
		opts = append(opts, grid.WithSaver(s.store))
	default:
		// the seed must not overwrite the unreadable stored copy; only edits made
		// after opening are saved.
		s.logger.Error("grid load failed, starting from seed", "scope", key, "err", err)
		gate := &armedSaver{store: s.store}
		g, err := s.seedGrid(key, seed, append(opts, grid.WithSaver(gate)))
		if err != nil {
			return nil, err
		}
		if err := g.Flush(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("grid seed flush failed", "scope", key, "err", err)
		}
		gate.armed.Store(true)
		s.grids[key] = g
		return g, nil
	}

	g, err := s.seedGrid(key, seed, opts)
	if err != nil {
		return nil, err
	}
	s.grids[key] = g
	return g, nil
}

// armedSaver drops snapshots until armed.
type armedSaver struct {
	store SnapshotStore
	armed atomic.Bool
}

func (a *armedSaver) Save(ctx context.Context, scopeKey string, snap grid.Snapshot) error {
	if !a.armed.Load() {
		return nil
	}
	return a.store.Save(ctx, scopeKey, snap)
}

func (s *Service) seedGrid(key string, seed *grid.Snapshot, opts []grid.Option) (*grid.Grid, error) {
	if seed != nil && !seed.IsZero() {
		return grid.New(key, append(opts, grid.WithSnapshot(*seed))...)
	}
	lanes := make([]domain.Lane, 0, len(s.lanes))
	for _, tpl := range s.lanes {
		lane, err := domain.NewLane(s.idGen(), tpl.Title, tpl.Color)
		if err != nil {
			return nil, err
		}
		lanes = append(lanes, lane)
	}
	g, err := grid.New(key, append(opts, grid.WithSnapshot(grid.Snapshot{Lanes: lanes}))...)
	if err != nil {
		return nil, err
	}
	for _, tpl := range s.columns {
		if _, err := g.AddColumn(tpl.Type, tpl.Label); err != nil {
			g.Close()
			return nil, err
		}
	}
	s.logger.Info("grid seeded", "scope", key, "lanes", len(lanes), "columns", len(s.columns))
	return g, nil
}

// ListScopes returns every stored or open scope key, sorted.
func (s *Service) ListScopes(ctx context.Context) ([]string, error) {
	stored, err := s.store.ListScopes(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for key := range s.grids {
		if !slices.Contains(stored, key) {
			stored = append(stored, key)
		}
	}
	s.mu.Unlock()
	slices.Sort(stored)
	return stored, nil
}

// LaneCounts returns per-lane record counts of a scope.
func (s *Service) LaneCounts(ctx context.Context, scopeKey string) ([]grid.LaneCount, error) {
	g, err := s.Open(ctx, scopeKey)
	if err != nil {
		return nil, err
	}
	return g.LaneCounts(), nil
}

// Flush waits for every open grid's pending writes.
func (s *Service) Flush(ctx context.Context) error {
	var errs []error
	for _, g := range s.openGrids() {
		if err := g.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.ScopeKey(), err))
		}
	}
	return errors.Join(errs...)
}

// Close drains and closes every open grid.
func (s *Service) Close() {
	s.mu.Lock()
	grids := s.grids
	s.grids = map[string]*grid.Grid{}
	s.mu.Unlock()
	for _, g := range grids {
		g.Close()
	}
}

func (s *Service) openGrids() []*grid.Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*grid.Grid, 0, len(s.grids))
	for _, g := range s.grids {
		out = append(out, g)
	}
	return out
}

// forget closes and drops a cached grid so the next Open reloads it.
func (s *Service) forget(key string) {
	s.mu.Lock()
	g, ok := s.grids[key]
	delete(s.grids, key)
	s.mu.Unlock()
	if ok {
		g.Close()
	}
}

func defaultLaneTemplates() []LaneTemplate {
	return []LaneTemplate{
		{Title: "To Do", Color: "#579bfc"},
		{Title: "Working on it", Color: "#fdab3d"},
		{Title: "Done", Color: "#00c875"},
	}
}

func defaultColumnTemplates() []ColumnTemplate {
	return []ColumnTemplate{
		{Label: "Status", Type: domain.ColumnTypeStatus},
		{Label: "Priority", Type: domain.ColumnTypePriority},
		{Label: "Due date", Type: domain.ColumnTypeDate},
	}
}

func sanitizeLaneTemplates(in []LaneTemplate) []LaneTemplate {
	out := make([]LaneTemplate, 0, len(in))
	for _, tpl := range in {
		if _, err := domain.NewLane("lane", tpl.Title, tpl.Color); err != nil {
			continue
		}
		out = append(out, tpl)
	}
	return out
}
