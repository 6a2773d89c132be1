package tui

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/hylla/tabula/internal/domain"
	"github.com/hylla/tabula/internal/grid"
)

// render draws the whole page as plain terminal text.
func (m Model) render() string {
	if !m.ready {
		return "loading..."
	}
	l := m.layout()
	session := m.grid.Session()
	cols := map[string]domain.Column{}
	for _, col := range m.grid.Columns() {
		cols[col.ID] = col
	}

	height := m.height
	if height <= 0 {
		height = l.bodyBottom() + footerLines
	}
	lines := make([]string, height)
	lines[0] = m.renderTitleBar()
	if headerY < height {
		lines[headerY] = m.renderHeader(l, cols, session)
	}
	for _, spot := range l.lanes {
		if spot.y < height {
			lines[spot.y] = m.renderLane(spot, session)
		}
	}
	for _, spot := range l.rows {
		if spot.y < height {
			lines[spot.y] = m.renderRow(l, spot, cols, session)
		}
	}
	if len(l.lines) == 0 && bodyTop < height {
		lines[bodyTop] = lipgloss.NewStyle().Foreground(mutedColor).Render("No lanes yet. Press L to add one.")
	}
	if height >= footerLines+bodyTop {
		lines[height-2] = m.renderStatusLine()
		lines[height-1] = m.renderHelpLine()
	}
	base := strings.Join(lines, "\n")

	if edit := session.Edit; edit != nil && m.width > 0 {
		base = overlayAt(base, m.renderEditor(*edit, cols), edit.Placement.X, edit.Placement.Y, m.width, height)
	}
	if m.mode == modePreview {
		base = overlayOnContent(base, m.renderPreview(), max(1, m.width), height)
	}
	return base
}

func (m Model) renderTitleBar() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(textColor).Render(m.title)
	scope := lipgloss.NewStyle().Foreground(mutedColor).Render(" · " + m.grid.ScopeKey())
	return title + scope
}

func (m Model) renderHeader(l gridLayout, cols map[string]domain.Column, session grid.Session) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(textColor)
	sepStyle := lipgloss.NewStyle().Foreground(dimColor)
	activeSep := lipgloss.NewStyle().Foreground(accentColor).Bold(true)

	var b strings.Builder
	for idx, span := range l.spans {
		label := "Title"
		if idx > 0 {
			label = cols[span.columnID].Label
		}
		b.WriteString(headerStyle.Render(fitCell(" "+label, span.width())))
		sep := sepStyle
		if session.Resize != nil && session.Resize.ColumnID == span.columnID {
			sep = activeSep
		}
		b.WriteString(sep.Render("│"))
	}
	return b.String()
}

func (m Model) renderLane(spot laneSpot, session grid.Session) string {
	count := spot.count
	glyph := "▾"
	if count.Collapsed {
		glyph = "▸"
	}
	style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(count.Color))
	counts := lipgloss.NewStyle().Foreground(mutedColor).Render(fmt.Sprintf("  %d · %d", count.TopLevel, count.Total))
	out := style.Render(glyph+" "+count.Title) + counts
	if d := session.Drag; d != nil && d.Target != nil && d.Target.LaneID == count.LaneID {
		out += lipgloss.NewStyle().Foreground(dropColor).Render("  ◆ drop at top")
	}
	return out
}

func (m Model) renderRow(l gridLayout, spot rowSpot, cols map[string]domain.Column, session grid.Session) string {
	rec := spot.row.Record
	handleStyle := lipgloss.NewStyle().Foreground(dimColor)
	handle := "⠿ "
	if d := session.Drag; d != nil {
		switch {
		case d.SourceID == rec.ID:
			handleStyle = lipgloss.NewStyle().Foreground(accentColor)
		case d.Target != nil && d.Target.RecordID == rec.ID:
			handleStyle = lipgloss.NewStyle().Foreground(dropColor).Bold(true)
			handle = "▲ "
			if d.Target.Position == grid.DropAfter {
				handle = "▼ "
			}
		}
	}

	toggle := "  "
	if spot.row.ChildCount > 0 {
		toggle = "▸ "
		if rec.Expanded {
			toggle = "▾ "
		}
	}
	mark := ""
	if rec.Selected {
		mark = "✓ "
	}
	titleText := strings.Repeat("  ", spot.row.Depth) + toggle + mark + rec.Title

	isCursorRow := rec.ID == m.cursorID
	cursorStyle := lipgloss.NewStyle().Reverse(true)
	sepStyle := lipgloss.NewStyle().Foreground(dimColor)

	var b strings.Builder
	b.WriteString(handleStyle.Render(handle))
	title := fitCell(titleText, titleCells-handleCells)
	if isCursorRow && m.cursorCol == 0 {
		title = cursorStyle.Render(title)
	}
	b.WriteString(title)
	b.WriteString(sepStyle.Render("│"))
	for idx, span := range l.spans[1:] {
		text := fitCell(" "+m.grid.CellText(rec.ID, span.columnID), span.width())
		style := cellStyle(cols[span.columnID], rec)
		if isCursorRow && m.cursorCol == idx+1 {
			style = style.Reverse(true)
		}
		b.WriteString(style.Render(text))
		b.WriteString(sepStyle.Render("│"))
	}
	return b.String()
}

// cellStyle colors option cells with their option color.
func cellStyle(col domain.Column, rec domain.Record) lipgloss.Style {
	style := lipgloss.NewStyle()
	if !col.Type.IsEnumerable() {
		return style
	}
	id, _ := rec.Fields[col.ID].(string)
	if opt, ok := col.Option(id); ok {
		return style.Foreground(lipgloss.Color(opt.Color))
	}
	return style
}

func (m Model) renderStatusLine() string {
	style := lipgloss.NewStyle().Foreground(dimColor)
	switch m.mode {
	case modeAddRecord, modeAddChild, modeAddLane:
		return m.prompt.View()
	case modeAddColumn:
		typ := domain.ColumnTypes()[m.columnType]
		return m.prompt.View() + style.Render(fmt.Sprintf("  type: %s (tab to change)", typ))
	}
	status := m.status
	if n := len(m.grid.SelectedIDs()); n > 0 {
		status += fmt.Sprintf(" · %d selected", n)
	}
	return style.Render(status)
}

func (m Model) renderHelpLine() string {
	h := m.help
	h.SetWidth(max(0, m.width-2))
	return lipgloss.NewStyle().Foreground(mutedColor).Render(h.View(m.keys))
}

// renderEditor draws the floating editor box for edit.
func (m Model) renderEditor(edit grid.EditSession, cols map[string]domain.Column) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Width(edit.Popup.W)
	if edit.Kind != grid.EditorPicker {
		return box.Render(m.editor.View())
	}

	col := cols[edit.ColumnID]
	rows := make([]string, 0, len(col.Options)+2)
	pointer := func(idx int) string {
		if idx == m.optionCursor {
			return "› "
		}
		return "  "
	}
	for idx, opt := range col.Options {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(opt.Color)).Render("●")
		rows = append(rows, pointer(idx)+dot+" "+opt.Label)
	}
	rows = append(rows, pointer(len(col.Options))+lipgloss.NewStyle().Foreground(mutedColor).Render("∅ clear"))
	if m.mode == modeNewOption {
		rows = append(rows, m.prompt.View())
	} else {
		rows = append(rows, pointer(len(col.Options)+1)+lipgloss.NewStyle().Foreground(accentColor).Render("+ new option"))
	}
	return box.Render(strings.Join(rows, "\n"))
}

func (m Model) renderPreview() string {
	width := max(30, min(90, m.width-8))
	body := m.preview.render(m.previewType, m.previewBody, width-4, max(3, m.height-8))
	title := lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render(m.previewTitle)
	hint := lipgloss.NewStyle().Foreground(mutedColor).Render("any key to close")
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Padding(0, 1).
		Width(width).
		Render(title + "\n\n" + body + "\n\n" + hint)
}

// overlayAt composes overlay over base with its top-left corner at x, y.
func overlayAt(base, overlay string, x, y, width, height int) string {
	canvas := lipgloss.NewCanvas(width, height)
	canvas.Compose(lipgloss.NewLayer(fitLines(base, height)).X(0).Y(0).Z(0))
	canvas.Compose(lipgloss.NewLayer(overlay).X(x).Y(y).Z(10))
	return canvas.Render()
}

// overlayOnContent centers overlay over base.
func overlayOnContent(base, overlay string, width, height int) string {
	x := max(0, (width-lipgloss.Width(overlay))/2)
	y := max(0, (height-lipgloss.Height(overlay))/2)
	return overlayAt(base, overlay, x, y, width, height)
}

// fitLines pads or cuts content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		lines = lines[:maxLines]
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}
