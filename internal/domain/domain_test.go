package domain

import (
	"errors"
	"testing"
)

func TestNormalizeSlug(t *testing.T) {
	cases := map[string]string{
		"  My Big Project!  ": "my-big-project",
		"Stage":               "stage",
		"due   date":          "due-date",
		"--":                  "",
		"Q3 / Q4":             "q3-q4",
	}
	for in, want := range cases {
		if got := NormalizeSlug(in); got != want {
			t.Fatalf("NormalizeSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewColumnPresets(t *testing.T) {
	tests := []struct {
		typ      ColumnType
		width    int
		minWidth int
	}{
		{ColumnTypeText, 150, 120},
		{ColumnTypePriority, 140, 100},
		{ColumnTypeCheckbox, 120, 60},
		{ColumnTypeNumber, 120, 80},
		{ColumnTypeDate, 130, 100},
	}
	for _, tc := range tests {
		col, err := NewColumn("c", "Label", tc.typ)
		if err != nil {
			t.Fatalf("NewColumn(%s) error = %v", tc.typ, err)
		}
		if col.Width != tc.width || col.MinWidth != tc.minWidth {
			t.Fatalf("NewColumn(%s) width=%d min=%d, want %d/%d", tc.typ, col.Width, col.MinWidth, tc.width, tc.minWidth)
		}
		if col.Width < 120 || col.Width > 150 {
			t.Fatalf("default width %d outside 120..150", col.Width)
		}
		if !col.Resizable {
			t.Fatalf("expected %s to be resizable", tc.typ)
		}
	}
}

func TestNewColumnValidation(t *testing.T) {
	if _, err := NewColumn("", "ok", ColumnTypeText); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := NewColumn("c", "   ", ColumnTypeText); err != ErrInvalidLabel {
		t.Fatalf("expected ErrInvalidLabel, got %v", err)
	}
	if _, err := NewColumn("c", "x", ColumnType("spreadsheet")); err != ErrInvalidColumnType {
		t.Fatalf("expected ErrInvalidColumnType, got %v", err)
	}
}

func TestColumnOptionsOnlyForEnumerable(t *testing.T) {
	status, err := NewColumn("status", "Status", ColumnTypeStatus)
	if err != nil {
		t.Fatalf("NewColumn() error = %v", err)
	}
	if len(status.Options) == 0 {
		t.Fatal("expected default status options")
	}
	money, err := NewColumn("budget", "Budget", ColumnTypeMoney)
	if err != nil {
		t.Fatalf("NewColumn() error = %v", err)
	}
	if len(money.Options) != 0 || money.Currency != DefaultCurrency {
		t.Fatalf("unexpected money column %#v", money)
	}
	if _, err := money.AddOption("x", ""); !errors.Is(err, ErrNotEnumerable) {
		t.Fatalf("expected ErrNotEnumerable, got %v", err)
	}
}

func TestColumnAddOptionUniqueIDs(t *testing.T) {
	col, err := NewColumn("stage", "Stage", ColumnTypeDropdown)
	if err != nil {
		t.Fatalf("NewColumn() error = %v", err)
	}
	a, err := col.AddOption("Review", "#ff0000")
	if err != nil {
		t.Fatalf("AddOption() error = %v", err)
	}
	b, err := col.AddOption("review", "")
	if err != nil {
		t.Fatalf("AddOption() error = %v", err)
	}
	if a.ID != "review" || b.ID != "review-2" {
		t.Fatalf("unexpected option ids %q %q", a.ID, b.ID)
	}
	if b.Color != DefaultOptionColor {
		t.Fatalf("expected default color, got %q", b.Color)
	}
	if _, err := col.AddOption("bad", "red"); err != ErrInvalidColor {
		t.Fatalf("expected ErrInvalidColor, got %v", err)
	}
}

func TestColumnSetWidthFloor(t *testing.T) {
	col, _ := NewColumn("p", "Priority", ColumnTypePriority)
	col.SetWidth(-400)
	if col.Width != col.MinWidth {
		t.Fatalf("expected width floor %d, got %d", col.MinWidth, col.Width)
	}
	col.SetWidth(900)
	if col.Width != 900 {
		t.Fatalf("expected unbounded width, got %d", col.Width)
	}
}

func TestParseColumnType(t *testing.T) {
	got, err := ParseColumnType(" long-text ")
	if err != nil || got != ColumnTypeLongText {
		t.Fatalf("ParseColumnType() = %q, %v", got, err)
	}
	if _, err := ParseColumnType("matrix"); err != ErrInvalidColumnType {
		t.Fatalf("expected ErrInvalidColumnType, got %v", err)
	}
}

func TestNewLaneAndRecord(t *testing.T) {
	lane, err := NewLane("todo", " To Do ", "")
	if err != nil {
		t.Fatalf("NewLane() error = %v", err)
	}
	if lane.Title != "To Do" || lane.Color != DefaultLaneColor {
		t.Fatalf("unexpected lane %#v", lane)
	}
	if _, err := NewLane("x", "  ", ""); err != ErrInvalidTitle {
		t.Fatalf("expected ErrInvalidTitle, got %v", err)
	}
	if _, err := NewRecord("r1", "todo", "   "); err != ErrInvalidTitle {
		t.Fatalf("expected ErrInvalidTitle, got %v", err)
	}
}

func TestRecordCloneIsDeep(t *testing.T) {
	rec := Record{
		ID:     "a",
		Fields: map[string]any{"people": []string{"ana"}},
		Children: []Record{
			{ID: "b", Fields: map[string]any{"n": 1.0}},
		},
	}
	cp := rec.Clone()
	cp.Fields["people"].([]string)[0] = "bo"
	cp.Children[0].Fields["n"] = 2.0
	if rec.Fields["people"].([]string)[0] != "ana" {
		t.Fatal("clone shares people slice")
	}
	if rec.Children[0].Fields["n"] != 1.0 {
		t.Fatal("clone shares child fields")
	}

	var seen []string
	rec.Walk(func(r Record, depth int) { seen = append(seen, r.ID) })
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("unexpected walk order %v", seen)
	}
}

func TestRectContains(t *testing.T) {
	r := Rect{X: 2, Y: 3, W: 4, H: 1}
	if !r.Contains(Point{X: 2, Y: 3}) || r.Contains(Point{X: 6, Y: 3}) || r.Contains(Point{X: 3, Y: 4}) {
		t.Fatal("unexpected Contains results")
	}
}
