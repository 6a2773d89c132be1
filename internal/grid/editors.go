package grid

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hylla/tabula/internal/domain"
)

// EditorKind describes the interaction an editor needs.
type EditorKind string

// EditorInline and related constants enumerate editor interactions.
const (
	// EditorInline collects free text.
	EditorInline EditorKind = "inline"
	// EditorPicker offers the column's options and allows creating new ones.
	EditorPicker EditorKind = "picker"
	// EditorToggle flips a boolean without opening a popover.
	EditorToggle EditorKind = "toggle"
)

// CellEditor renders and parses the cells of one column type.
type CellEditor interface {
	Kind() EditorKind
	// Render formats a stored value for the read state. nil renders empty.
	Render(col domain.Column, value any) string
	// Parse turns editor input into a storable value. Empty input yields nil (unset).
	Parse(col domain.Column, input string) (any, error)
}

// Registry dispatches cell rendering and parsing by column type.
type Registry struct {
	editors  map[domain.ColumnType]CellEditor
	fallback CellEditor
}

// DefaultRegistry returns a registry with an editor for every built-in type.
func DefaultRegistry() *Registry {
	return &Registry{
		editors: map[domain.ColumnType]CellEditor{
			domain.ColumnTypeText:     textEditor{},
			domain.ColumnTypeLongText: textEditor{multiline: true},
			domain.ColumnTypeNumber:   numberEditor{},
			domain.ColumnTypeMoney:    moneyEditor{},
			domain.ColumnTypeDate:     dateEditor{},
			domain.ColumnTypeStatus:   optionEditor{},
			domain.ColumnTypePriority: optionEditor{},
			domain.ColumnTypeDropdown: optionEditor{},
			domain.ColumnTypeCheckbox: checkboxEditor{},
			domain.ColumnTypePeople:   peopleEditor{},
		},
		fallback: textEditor{},
	}
}

// Register installs or replaces the editor for typ.
func (r *Registry) Register(typ domain.ColumnType, editor CellEditor) {
	r.editors[typ] = editor
}

// Editor returns the editor for typ, falling back to plain text.
func (r *Registry) Editor(typ domain.ColumnType) CellEditor {
	if e, ok := r.editors[typ]; ok {
		return e
	}
	return r.fallback
}

// Render formats value for col.
func (r *Registry) Render(col domain.Column, value any) string {
	if value == nil {
		return ""
	}
	return r.Editor(col.Type).Render(col, value)
}

// Parse validates input for col.
func (r *Registry) Parse(col domain.Column, input string) (any, error) {
	v, err := r.Editor(col.Type).Parse(col, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrValidation, col.Label, err)
	}
	return v, nil
}

type textEditor struct {
	multiline bool
}

func (textEditor) Kind() EditorKind { return EditorInline }

func (e textEditor) Render(_ domain.Column, value any) string {
	s := fmt.Sprint(value)
	if !e.multiline {
		return s
	}
	first, _, more := strings.Cut(s, "\n")
	if more {
		return first + " …"
	}
	return first
}

func (e textEditor) Parse(_ domain.Column, input string) (any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	if !e.multiline {
		input = strings.Join(strings.Fields(input), " ")
	}
	return input, nil
}

type numberEditor struct{}

func (numberEditor) Kind() EditorKind { return EditorInline }

func (numberEditor) Render(_ domain.Column, value any) string {
	f, ok := asFloat(value)
	if !ok {
		return fmt.Sprint(value)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (numberEditor) Parse(_ domain.Column, input string) (any, error) {
	input = strings.ReplaceAll(strings.TrimSpace(input), ",", "")
	if input == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(input, 64)
	// NaN and infinities have no JSON encoding.
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, domain.ErrInvalidValue
	}
	return f, nil
}

type moneyEditor struct{}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
}

func (moneyEditor) Kind() EditorKind { return EditorInline }

func (moneyEditor) Render(col domain.Column, value any) string {
	f, ok := asFloat(value)
	if !ok {
		return fmt.Sprint(value)
	}
	code := strings.ToUpper(col.Currency)
	if code == "" {
		code = domain.DefaultCurrency
	}
	prefix, ok := currencySymbols[code]
	if !ok {
		prefix = code + " "
	}
	sign := ""
	if f < 0 {
		sign, f = "-", -f
	}
	return sign + prefix + humanize.FormatFloat("#,###.##", f)
}

func (moneyEditor) Parse(_ domain.Column, input string) (any, error) {
	input = strings.TrimSpace(input)
	for _, sym := range currencySymbols {
		input = strings.ReplaceAll(input, sym, "")
	}
	return numberEditor{}.Parse(domain.Column{}, input)
}

type dateEditor struct{}

var dateLayouts = []string{
	time.DateOnly,
	"2006/01/02",
	"01/02/2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

func (dateEditor) Kind() EditorKind { return EditorInline }

func (dateEditor) Render(_ domain.Column, value any) string {
	s := fmt.Sprint(value)
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return s
	}
	return d.Format("Jan 2, 2006")
}

func (dateEditor) Parse(_ domain.Column, input string) (any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, input); err == nil {
			return d.Format(time.DateOnly), nil
		}
	}
	return nil, domain.ErrInvalidValue
}

type optionEditor struct{}

func (optionEditor) Kind() EditorKind { return EditorPicker }

func (optionEditor) Render(col domain.Column, value any) string {
	id, _ := value.(string)
	if opt, ok := col.Option(id); ok {
		return opt.Label
	}
	return ""
}

// Parse accepts an option id or a case-insensitive option label.
func (optionEditor) Parse(col domain.Column, input string) (any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	if opt, ok := col.Option(input); ok {
		return opt.ID, nil
	}
	for _, opt := range col.Options {
		if strings.EqualFold(opt.Label, input) {
			return opt.ID, nil
		}
	}
	return nil, domain.ErrInvalidValue
}

type checkboxEditor struct{}

func (checkboxEditor) Kind() EditorKind { return EditorToggle }

func (checkboxEditor) Render(_ domain.Column, value any) string {
	if b, _ := value.(bool); b {
		return "✓"
	}
	return ""
}

func (checkboxEditor) Parse(_ domain.Column, input string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "true", "yes", "y", "x", "1", "on":
		return true, nil
	case "false", "no", "n", "0", "off", "":
		return false, nil
	default:
		return nil, domain.ErrInvalidValue
	}
}

type peopleEditor struct{}

func (peopleEditor) Kind() EditorKind { return EditorInline }

func (peopleEditor) Render(_ domain.Column, value any) string {
	return strings.Join(asStrings(value), ", ")
}

func (peopleEditor) Parse(_ domain.Column, input string) (any, error) {
	var names []string
	for _, part := range strings.Split(input, ",") {
		name := strings.Join(strings.Fields(part), " ")
		if name == "" || slices.Contains(names, name) {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, nil
	}
	return names, nil
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asStrings accepts []string and the []any shape JSON decoding produces.
func asStrings(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}
