package grid

import (
	"fmt"
	"slices"

	"github.com/hylla/tabula/internal/domain"
)

// TitleField is the reserved column id addressing a record's title cell.
const TitleField = "title"

// Schema is the ordered list of column definitions of one grid.
type Schema struct {
	columns []domain.Column
}

// NewSchema copies columns into a new schema.
func NewSchema(columns []domain.Column) *Schema {
	s := &Schema{}
	for _, col := range columns {
		s.columns = append(s.columns, col.Clone())
	}
	return s
}

// Add appends a column whose id is the slug of label, made unique.
func (s *Schema) Add(typ domain.ColumnType, label string, options []domain.Option) (domain.Column, error) {
	base := domain.NormalizeSlug(label)
	if base == "" {
		base = "column"
	}
	id := domain.UniqueID(base, func(candidate string) bool {
		return candidate == TitleField || s.index(candidate) >= 0
	})
	col, err := domain.NewColumn(id, label, typ)
	if err != nil {
		return domain.Column{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if len(options) > 0 {
		if !typ.IsEnumerable() {
			return domain.Column{}, fmt.Errorf("%w: %w", ErrValidation, domain.ErrNotEnumerable)
		}
		col.Options = nil
		for _, opt := range options {
			if _, err := col.AddOption(opt.Label, opt.Color); err != nil {
				return domain.Column{}, fmt.Errorf("%w: %w", ErrValidation, err)
			}
		}
	}
	s.columns = append(s.columns, col)
	return col.Clone(), nil
}

// Delete removes the column definition and reports whether it existed.
// Record values stored under the id are left in place.
func (s *Schema) Delete(id string) bool {
	idx := s.index(id)
	if idx < 0 {
		return false
	}
	s.columns = slices.Delete(s.columns, idx, idx+1)
	return true
}

// Get returns a copy of one column.
func (s *Schema) Get(id string) (domain.Column, bool) {
	idx := s.index(id)
	if idx < 0 {
		return domain.Column{}, false
	}
	return s.columns[idx].Clone(), true
}

// List returns copies of all columns in display order.
func (s *Schema) List() []domain.Column {
	out := make([]domain.Column, 0, len(s.columns))
	for _, col := range s.columns {
		out = append(out, col.Clone())
	}
	return out
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.columns) }

// Move relocates a column to index, clamped to the valid range.
func (s *Schema) Move(id string, index int) bool {
	idx := s.index(id)
	if idx < 0 {
		return false
	}
	s.columns = moveItem(s.columns, idx, index)
	return true
}

// Rename relabels a column in place.
func (s *Schema) Rename(id, label string) error {
	idx := s.index(id)
	if idx < 0 {
		return fmt.Errorf("%w: column %q", ErrReferential, id)
	}
	if err := s.columns[idx].Rename(label); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// SetWidth applies a width honoring the column's floor.
func (s *Schema) SetWidth(id string, width int) (domain.Column, bool) {
	idx := s.index(id)
	if idx < 0 {
		return domain.Column{}, false
	}
	s.columns[idx].SetWidth(width)
	return s.columns[idx].Clone(), true
}

// AddOption appends an option to an enumerable column.
func (s *Schema) AddOption(columnID, label, color string) (domain.Option, error) {
	idx := s.index(columnID)
	if idx < 0 {
		return domain.Option{}, fmt.Errorf("%w: column %q", ErrReferential, columnID)
	}
	opt, err := s.columns[idx].AddOption(label, color)
	if err != nil {
		return domain.Option{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return opt, nil
}

func (s *Schema) index(id string) int {
	return slices.IndexFunc(s.columns, func(c domain.Column) bool { return c.ID == id })
}

// moveItem removes items[from] and reinserts it at to, clamped.
func moveItem[T any](items []T, from, to int) []T {
	item := items[from]
	items = slices.Delete(items, from, from+1)
	to = clamp(to, 0, len(items))
	return slices.Insert(items, to, item)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
