package grid

import (
	"fmt"
	"slices"

	"github.com/hylla/tabula/internal/domain"
)

// Lanes is the ordered list of status lanes.
type Lanes struct {
	list []domain.Lane
}

// NewLanes copies lanes into a new store.
func NewLanes(lanes []domain.Lane) *Lanes {
	return &Lanes{list: slices.Clone(lanes)}
}

// Add appends a lane after validating it.
func (l *Lanes) Add(id, title, color string) (domain.Lane, error) {
	if l.index(id) >= 0 {
		return domain.Lane{}, fmt.Errorf("%w: duplicate lane id %q", ErrValidation, id)
	}
	lane, err := domain.NewLane(id, title, color)
	if err != nil {
		return domain.Lane{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	l.list = append(l.list, lane)
	return lane, nil
}

// Get returns one lane.
func (l *Lanes) Get(id string) (domain.Lane, bool) {
	idx := l.index(id)
	if idx < 0 {
		return domain.Lane{}, false
	}
	return l.list[idx], true
}

// Has reports whether id names a lane.
func (l *Lanes) Has(id string) bool { return l.index(id) >= 0 }

// List returns the lanes in display order.
func (l *Lanes) List() []domain.Lane { return slices.Clone(l.list) }

// Len returns the number of lanes.
func (l *Lanes) Len() int { return len(l.list) }

// Rename retitles a lane.
func (l *Lanes) Rename(id, title string) error {
	return l.update(id, func(lane *domain.Lane) error { return lane.Rename(title) })
}

// Recolor changes a lane's color token.
func (l *Lanes) Recolor(id, color string) error {
	return l.update(id, func(lane *domain.Lane) error { return lane.Recolor(color) })
}

// Move relocates a lane, clamping index.
func (l *Lanes) Move(id string, index int) bool {
	idx := l.index(id)
	if idx < 0 {
		return false
	}
	l.list = moveItem(l.list, idx, index)
	return true
}

// ToggleCollapse flips a lane's collapsed flag.
func (l *Lanes) ToggleCollapse(id string) bool {
	idx := l.index(id)
	if idx < 0 {
		return false
	}
	l.list[idx].Collapsed = !l.list[idx].Collapsed
	return true
}

// Remove deletes a lane and returns the lane that now receives its records.
func (l *Lanes) Remove(id string) (fallback domain.Lane, err error) {
	idx := l.index(id)
	if idx < 0 {
		return domain.Lane{}, fmt.Errorf("%w: lane %q", ErrReferential, id)
	}
	if len(l.list) == 1 {
		return domain.Lane{}, fmt.Errorf("%w: cannot delete the last lane", ErrValidation)
	}
	l.list = slices.Delete(l.list, idx, idx+1)
	return l.list[0], nil
}

func (l *Lanes) update(id string, fn func(*domain.Lane) error) error {
	idx := l.index(id)
	if idx < 0 {
		return fmt.Errorf("%w: lane %q", ErrReferential, id)
	}
	if err := fn(&l.list[idx]); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

func (l *Lanes) index(id string) int {
	return slices.IndexFunc(l.list, func(lane domain.Lane) bool { return lane.ID == id })
}
