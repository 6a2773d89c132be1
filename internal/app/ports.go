package app

import (
	"context"

	"github.com/hylla/tabula/internal/grid"
)

// SnapshotStore loads and saves whole grid snapshots keyed by scope.
type SnapshotStore interface {
	// Load returns ErrNotFound when the scope has never been saved.
	Load(context.Context, string) (grid.Snapshot, error)
	Save(context.Context, string, grid.Snapshot) error
	ListScopes(context.Context) ([]string, error)
}
