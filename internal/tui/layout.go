package tui

import (
	"github.com/mattn/go-runewidth"

	"github.com/hylla/tabula/internal/domain"
	"github.com/hylla/tabula/internal/grid"
)

const (
	// widthUnit converts column widths to terminal cells.
	widthUnit = 10
	// titleCells is the fixed width of the title column, drag handle included.
	titleCells = 34
	// handleCells is the drag handle at the start of every row.
	handleCells = 2
	headerY     = 1
	bodyTop     = 2
	footerLines = 2
)

// colSpan is one column's cell range on screen. The separator at x1 is the
// column's resize handle.
type colSpan struct {
	columnID string
	x0       int
	x1       int
}

func (s colSpan) width() int { return s.x1 - s.x0 }

// rowSpot is a rendered record row.
type rowSpot struct {
	y      int
	laneID string
	row    grid.Row
}

// laneSpot is a rendered lane title line.
type laneSpot struct {
	y     int
	count grid.LaneCount
}

// line is one body line before scrolling: a lane title or a record row.
type line struct {
	lane *grid.LaneCount
	row  *grid.Row
}

// gridLayout is the screen geometry of one frame, shared by rendering and
// mouse hit testing.
type gridLayout struct {
	spans  []colSpan
	lines  []line
	rows   []rowSpot
	lanes  []laneSpot
	scroll int
	height int
}

// buildLayout places every lane and visible row. height 0 disables clipping.
func buildLayout(g *grid.Grid, scroll, height int) gridLayout {
	l := gridLayout{scroll: max(0, scroll), height: height}
	l.spans = append(l.spans, colSpan{columnID: grid.TitleField, x0: 0, x1: titleCells})
	x := titleCells + 1
	for _, col := range g.Columns() {
		w := max(3, col.Width/widthUnit)
		l.spans = append(l.spans, colSpan{columnID: col.ID, x0: x, x1: x + w})
		x += w + 1
	}

	for _, count := range g.LaneCounts() {
		lc := count
		l.lines = append(l.lines, line{lane: &lc})
		for _, row := range g.VisibleRows(count.LaneID) {
			r := row
			l.lines = append(l.lines, line{row: &r})
		}
	}

	laneID := ""
	for idx, ln := range l.lines {
		if ln.lane != nil {
			laneID = ln.lane.LaneID
		}
		y := bodyTop + idx - l.scroll
		if y < bodyTop || (height > 0 && y >= l.bodyBottom()) {
			continue
		}
		if ln.lane != nil {
			l.lanes = append(l.lanes, laneSpot{y: y, count: *ln.lane})
			continue
		}
		l.rows = append(l.rows, rowSpot{y: y, laneID: laneID, row: *ln.row})
	}
	return l
}

func (l gridLayout) bodyBottom() int {
	if l.height <= 0 {
		return bodyTop + len(l.lines)
	}
	return max(bodyTop, l.height-footerLines)
}

// bodyHeight is the number of body lines that fit on screen.
func (l gridLayout) bodyHeight() int {
	return l.bodyBottom() - bodyTop
}

// recordOrder lists every visible record id in display order, scrolled out
// rows included.
func (l gridLayout) recordOrder() []string {
	out := make([]string, 0, len(l.lines))
	for _, ln := range l.lines {
		if ln.row != nil {
			out = append(out, ln.row.Record.ID)
		}
	}
	return out
}

// lineIndex returns the unscrolled body index of a record row.
func (l gridLayout) lineIndex(recordID string) int {
	for idx, ln := range l.lines {
		if ln.row != nil && ln.row.Record.ID == recordID {
			return idx
		}
	}
	return -1
}

// laneOf returns the lane owning the unscrolled body line idx.
func (l gridLayout) laneOf(idx int) string {
	for i := min(idx, len(l.lines)-1); i >= 0; i-- {
		if l.lines[i].lane != nil {
			return l.lines[i].lane.LaneID
		}
	}
	return ""
}

func (l gridLayout) rowAt(y int) (rowSpot, bool) {
	for _, r := range l.rows {
		if r.y == y {
			return r, true
		}
	}
	return rowSpot{}, false
}

func (l gridLayout) rowByID(recordID string) (rowSpot, bool) {
	for _, r := range l.rows {
		if r.row.Record.ID == recordID {
			return r, true
		}
	}
	return rowSpot{}, false
}

func (l gridLayout) laneAt(y int) (laneSpot, bool) {
	for _, s := range l.lanes {
		if s.y == y {
			return s, true
		}
	}
	return laneSpot{}, false
}

// spanAt returns the column whose cells contain x. Separators belong to no column.
func (l gridLayout) spanAt(x int) (colSpan, int, bool) {
	for idx, s := range l.spans {
		if x >= s.x0 && x < s.x1 {
			return s, idx, true
		}
	}
	return colSpan{}, -1, false
}

// resizeHandleAt returns the resizable column whose right separator is at x.
func (l gridLayout) resizeHandleAt(x int) (colSpan, bool) {
	for _, s := range l.spans[1:] {
		if x == s.x1 {
			return s, true
		}
	}
	return colSpan{}, false
}

// cellRect is the anchor rectangle of one cell.
func (l gridLayout) cellRect(y, spanIdx int) domain.Rect {
	s := l.spans[spanIdx]
	return domain.Rect{X: s.x0, Y: y, W: s.width(), H: 1}
}

// toggleX is the column of a row's expand glyph.
func toggleX(depth int) int {
	return handleCells + 2*depth
}

// fitCell pads or truncates s to exactly w terminal cells.
func fitCell(s string, w int) string {
	if w <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) > w {
		s = runewidth.Truncate(s, w, "…")
	}
	return runewidth.FillRight(s, w)
}
