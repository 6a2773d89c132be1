package domain

import (
	"slices"
	"strconv"
	"strings"
)

// ColumnType identifies how a column's cells are rendered and edited.
type ColumnType string

// ColumnTypeText and related constants enumerate the supported column types.
const (
	ColumnTypeText     ColumnType = "text"
	ColumnTypeLongText ColumnType = "longText"
	ColumnTypeNumber   ColumnType = "number"
	ColumnTypeDate     ColumnType = "date"
	ColumnTypeStatus   ColumnType = "status"
	ColumnTypePriority ColumnType = "priority"
	ColumnTypeDropdown ColumnType = "dropdown"
	ColumnTypeCheckbox ColumnType = "checkbox"
	ColumnTypeMoney    ColumnType = "money"
	ColumnTypePeople   ColumnType = "people"
)

// DefaultCurrency is applied to money columns created without one.
const DefaultCurrency = "USD"

var validColumnTypes = []ColumnType{
	ColumnTypeText,
	ColumnTypeLongText,
	ColumnTypeNumber,
	ColumnTypeDate,
	ColumnTypeStatus,
	ColumnTypePriority,
	ColumnTypeDropdown,
	ColumnTypeCheckbox,
	ColumnTypeMoney,
	ColumnTypePeople,
}

// ColumnTypes returns every supported column type in display order.
func ColumnTypes() []ColumnType {
	return slices.Clone(validColumnTypes)
}

// ParseColumnType resolves a column type case-insensitively, accepting "long-text" style spellings.
func ParseColumnType(raw string) (ColumnType, error) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.TrimSpace(raw)))
	for _, t := range validColumnTypes {
		if strings.ToLower(string(t)) == key {
			return t, nil
		}
	}
	return "", ErrInvalidColumnType
}

// Valid reports whether t is a known column type.
func (t ColumnType) Valid() bool {
	return slices.Contains(validColumnTypes, t)
}

// IsEnumerable reports whether cells of this type pick from the column's option list.
func (t ColumnType) IsEnumerable() bool {
	switch t {
	case ColumnTypeStatus, ColumnTypePriority, ColumnTypeDropdown:
		return true
	default:
		return false
	}
}

type widthPreset struct {
	width    int
	minWidth int
}

// selector columns default narrower than free text.
var widthPresets = map[ColumnType]widthPreset{
	ColumnTypeText:     {width: 150, minWidth: 120},
	ColumnTypeLongText: {width: 150, minWidth: 120},
	ColumnTypeNumber:   {width: 120, minWidth: 80},
	ColumnTypeMoney:    {width: 120, minWidth: 80},
	ColumnTypeDate:     {width: 130, minWidth: 100},
	ColumnTypeStatus:   {width: 140, minWidth: 100},
	ColumnTypePriority: {width: 140, minWidth: 100},
	ColumnTypeDropdown: {width: 140, minWidth: 100},
	ColumnTypeCheckbox: {width: 120, minWidth: 60},
	ColumnTypePeople:   {width: 140, minWidth: 100},
}

// Option is one selectable value of an enumerable column.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// NewOption validates and builds an option.
func NewOption(id, label, color string) (Option, error) {
	id = strings.TrimSpace(id)
	label = strings.TrimSpace(label)
	if id == "" {
		return Option{}, ErrInvalidID
	}
	if label == "" {
		return Option{}, ErrInvalidLabel
	}
	color, err := NormalizeColor(color, DefaultOptionColor)
	if err != nil {
		return Option{}, err
	}
	return Option{ID: id, Label: label, Color: color}, nil
}

// Column is one typed column definition of a grid schema.
type Column struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Type      ColumnType `json:"type"`
	Width     int        `json:"width"`
	MinWidth  int        `json:"min_width"`
	Resizable bool       `json:"resizable"`
	Options   []Option   `json:"options,omitempty"`
	Currency  string     `json:"currency,omitempty"`
}

// NewColumn constructs a column with per-type width presets and default options.
func NewColumn(id, label string, typ ColumnType) (Column, error) {
	id = strings.TrimSpace(id)
	label = strings.TrimSpace(label)
	if id == "" {
		return Column{}, ErrInvalidID
	}
	if label == "" {
		return Column{}, ErrInvalidLabel
	}
	if !typ.Valid() {
		return Column{}, ErrInvalidColumnType
	}

	preset := widthPresets[typ]
	col := Column{
		ID:        id,
		Label:     label,
		Type:      typ,
		Width:     preset.width,
		MinWidth:  preset.minWidth,
		Resizable: true,
	}
	switch typ {
	case ColumnTypeStatus:
		col.Options = slices.Clone(defaultStatusOptions)
	case ColumnTypePriority:
		col.Options = slices.Clone(defaultPriorityOptions)
	case ColumnTypeMoney:
		col.Currency = DefaultCurrency
	}
	return col, nil
}

// SetWidth applies w, never letting the width drop under MinWidth.
func (c *Column) SetWidth(w int) {
	c.Width = max(c.MinWidth, w)
}

// Rename relabels the column. The id is stable.
func (c *Column) Rename(label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return ErrInvalidLabel
	}
	c.Label = label
	return nil
}

// Option looks up an option by id.
func (c Column) Option(id string) (Option, bool) {
	for _, opt := range c.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// AddOption appends an option with an id derived from its label.
func (c *Column) AddOption(label, color string) (Option, error) {
	if !c.Type.IsEnumerable() {
		return Option{}, ErrNotEnumerable
	}
	if strings.TrimSpace(label) == "" {
		return Option{}, ErrInvalidLabel
	}
	base := NormalizeSlug(label)
	if base == "" {
		base = "option"
	}
	id := UniqueID(base, func(candidate string) bool {
		_, taken := c.Option(candidate)
		return taken
	})
	opt, err := NewOption(id, label, color)
	if err != nil {
		return Option{}, err
	}
	c.Options = append(c.Options, opt)
	return opt, nil
}

// Clone returns a deep copy of the column.
func (c Column) Clone() Column {
	c.Options = slices.Clone(c.Options)
	return c
}

// UniqueID returns base, or base-2, base-3... whichever is first not taken.
func UniqueID(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !taken(candidate) {
			return candidate
		}
	}
}
