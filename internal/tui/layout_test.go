package tui

import (
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestBuildLayoutPlacesColumnsAndLines(t *testing.T) {
	l := buildLayout(newTestGrid(t), 0, 30)
	if len(l.spans) != 5 {
		t.Fatalf("expected title plus four column spans, got %d", len(l.spans))
	}
	if l.spans[0].x0 != 0 || l.spans[0].x1 != titleCells {
		t.Fatalf("unexpected title span %#v", l.spans[0])
	}
	status := l.spans[1]
	if status.x0 != titleCells+1 || status.width() != 14 {
		t.Fatalf("expected 14-cell status span after the title separator, got %#v", status)
	}
	if next := l.spans[2]; next.x0 != status.x1+1 {
		t.Fatalf("expected spans separated by one cell, got %#v then %#v", status, next)
	}

	wantLines := []string{"lane:todo", "r1", "r1a", "r2", "lane:done", "r3"}
	if len(l.lines) != len(wantLines) {
		t.Fatalf("expected %d lines, got %d", len(wantLines), len(l.lines))
	}
	for idx, want := range wantLines {
		ln := l.lines[idx]
		got := ""
		if ln.lane != nil {
			got = "lane:" + ln.lane.LaneID
		} else {
			got = ln.row.Record.ID
		}
		if got != want {
			t.Fatalf("line %d: expected %s, got %s", idx, want, got)
		}
	}
	if spot, ok := l.rowAt(bodyTop + 2); !ok || spot.row.Record.ID != "r1a" || spot.laneID != "todo" || spot.row.Depth != 1 {
		t.Fatalf("unexpected row at y=%d: %#v ok=%t", bodyTop+2, spot, ok)
	}
	if got := l.laneOf(5); got != "done" {
		t.Fatalf("expected line 5 in done lane, got %q", got)
	}
}

func TestBuildLayoutClipsToBody(t *testing.T) {
	l := buildLayout(newTestGrid(t), 2, 6)
	if l.bodyHeight() != 2 {
		t.Fatalf("expected two body lines, got %d", l.bodyHeight())
	}
	if len(l.rows) != 2 || l.rows[0].row.Record.ID != "r1a" || l.rows[0].y != bodyTop {
		t.Fatalf("unexpected visible rows %#v", l.rows)
	}
	if len(l.lanes) != 0 {
		t.Fatalf("expected lane lines scrolled out, got %#v", l.lanes)
	}
	if got := l.recordOrder(); len(got) != 4 {
		t.Fatalf("expected record order to include scrolled rows, got %v", got)
	}
}

func TestLayoutHitTesting(t *testing.T) {
	l := buildLayout(newTestGrid(t), 0, 30)
	status := l.spans[1]
	if _, ok := l.resizeHandleAt(status.x1); !ok {
		t.Fatal("expected resize handle on the status separator")
	}
	if _, ok := l.resizeHandleAt(titleCells); ok {
		t.Fatal("expected the title column to have no resize handle")
	}
	if _, _, ok := l.spanAt(status.x1); ok {
		t.Fatal("expected separators to belong to no column")
	}
	span, idx, ok := l.spanAt(status.x0)
	if !ok || idx != 1 || span.columnID != "status" {
		t.Fatalf("unexpected span hit %#v idx=%d ok=%t", span, idx, ok)
	}
	rect := l.cellRect(5, 1)
	if rect.X != status.x0 || rect.Y != 5 || rect.W != status.width() || rect.H != 1 {
		t.Fatalf("unexpected cell rect %#v", rect)
	}
}

func TestFitCell(t *testing.T) {
	if got := fitCell("ab", 4); got != "ab  " {
		t.Fatalf("expected padded cell, got %q", got)
	}
	if got := fitCell("abcdef", 4); runewidth.StringWidth(got) != 4 || got[len(got)-len("…"):] != "…" {
		t.Fatalf("expected truncated cell with ellipsis, got %q", got)
	}
	if got := fitCell("日本語", 4); runewidth.StringWidth(got) != 4 {
		t.Fatalf("expected wide runes fitted to 4 cells, got %q", got)
	}
	if got := fitCell("x", 0); got != "" {
		t.Fatalf("expected empty cell, got %q", got)
	}
}
