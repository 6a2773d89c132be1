package tui

import (
	"fmt"
	"io"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"

	"github.com/hylla/tabula/internal/domain"
	"github.com/hylla/tabula/internal/grid"
)

// inputMode identifies the footer prompt or overlay owning the keyboard.
type inputMode int

const (
	modeNone inputMode = iota
	modeAddRecord
	modeAddChild
	modeAddLane
	modeAddColumn
	modeNewOption
	modePreview
)

// dragRowHeight splits a one-line row into an upper and a lower half.
const dragRowHeight = 2

var (
	accentColor = lipgloss.Color("62")
	mutedColor  = lipgloss.Color("241")
	dimColor    = lipgloss.Color("239")
	textColor   = lipgloss.Color("252")
	dropColor   = lipgloss.Color("212")
)

// Model is the terminal host page of one grid.
type Model struct {
	grid      *grid.Grid
	title     string
	logger    *log.Logger
	keys      keyMap
	help      help.Model
	clipboard ClipboardFunc
	preview   *cellPreview

	width  int
	height int
	ready  bool
	scroll int

	cursorID  string
	cursorCol int
	status    string

	mode       inputMode
	prompt     textinput.Model
	promptLane string
	columnType int

	editor       textinput.Model
	editKey      string
	optionCursor int

	previewTitle string
	previewBody  string
	previewType  domain.ColumnType

	dragOriginY int
}

// NewModel builds the page over g.
func NewModel(g *grid.Grid, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	prompt := textinput.New()
	prompt.CharLimit = 200
	editor := textinput.New()
	editor.Prompt = ""
	editor.CharLimit = 500
	m := Model{
		grid:      g,
		title:     "tabula",
		logger:    log.New(io.Discard),
		keys:      newKeyMap(),
		help:      h,
		clipboard: clipboard.WriteAll,
		preview:   &cellPreview{},
		status:    "ready",
		prompt:    prompt,
		editor:    editor,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	m.clampCursor()
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		m.clampCursor()
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.MouseClickMsg:
		return m.handleMouseClick(msg)

	case tea.MouseMotionMsg:
		return m.handleMouseMotion(msg)

	case tea.MouseReleaseMsg:
		return m.handleMouseRelease(msg)

	case tea.MouseWheelMsg:
		return m.handleMouseWheel(msg)

	default:
		return m, nil
	}
}

func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.MouseMode = tea.MouseModeCellMotion
	v.AltScreen = true
	return v
}

func (m Model) layout() gridLayout {
	return buildLayout(m.grid, m.scroll, m.height)
}

// Keyboard.

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.mode == modePreview {
		m.mode = modeNone
		return m, nil
	}
	if m.mode != modeNone {
		return m.handlePromptKey(msg)
	}
	if edit, ok := m.grid.ActiveEditor(); ok {
		return m.handleEditorKey(msg, edit)
	}

	switch {
	case key.Matches(msg, m.keys.cancel):
		if m.grid.Escape() {
			m.status = "cancelled"
		} else if len(m.grid.SelectedIDs()) > 0 {
			m.grid.ClearSelection()
			m.status = "selection cleared"
		}
		return m, nil
	case m.grid.Session().Kind != grid.SessionNone:
		// the pointer owns the grid until release or escape.
		return m, nil
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.moveUp):
		m.moveCursor(-1)
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.moveCursor(1)
		return m, nil
	case key.Matches(msg, m.keys.moveLeft):
		m.cursorCol = max(0, m.cursorCol-1)
		return m, nil
	case key.Matches(msg, m.keys.moveRight):
		m.cursorCol = min(len(m.grid.Columns()), m.cursorCol+1)
		return m, nil
	case key.Matches(msg, m.keys.edit):
		return m.openEditorAtCursor()
	case key.Matches(msg, m.keys.toggleExpand):
		if m.cursorID != "" {
			m.grid.ToggleExpand(m.cursorID)
		}
		return m, nil
	case key.Matches(msg, m.keys.toggleSelect):
		if m.cursorID != "" {
			m.grid.ToggleSelect(m.cursorID)
		}
		return m, nil
	case key.Matches(msg, m.keys.addRecord):
		lane := m.cursorLane()
		if lane == "" {
			m.status = "add a lane first"
			return m, nil
		}
		return m.startPrompt(modeAddRecord, lane)
	case key.Matches(msg, m.keys.addChild):
		if m.cursorID == "" {
			m.status = "no row selected"
			return m, nil
		}
		return m.startPrompt(modeAddChild, "")
	case key.Matches(msg, m.keys.addColumn):
		m.columnType = 0
		return m.startPrompt(modeAddColumn, "")
	case key.Matches(msg, m.keys.addLane):
		return m.startPrompt(modeAddLane, "")
	case key.Matches(msg, m.keys.deleteRecord):
		m.deleteAtCursor()
		return m, nil
	case key.Matches(msg, m.keys.collapseLane):
		if lane := m.cursorLane(); lane != "" {
			m.grid.ToggleCollapse(lane)
			m.clampCursor()
		}
		return m, nil
	case key.Matches(msg, m.keys.yank):
		m.yankCursorCell()
		return m, nil
	case key.Matches(msg, m.keys.preview):
		m.openPreview()
		return m, nil
	default:
		return m, nil
	}
}

func (m *Model) moveCursor(delta int) {
	order := m.layout().recordOrder()
	if len(order) == 0 {
		m.cursorID = ""
		return
	}
	idx := 0
	for i, id := range order {
		if id == m.cursorID {
			idx = i
			break
		}
	}
	idx = clamp(idx+delta, 0, len(order)-1)
	m.cursorID = order[idx]
	m.ensureCursorVisible()
}

// clampCursor keeps the cursor on a visible row and inside the column range.
func (m *Model) clampCursor() {
	order := m.layout().recordOrder()
	m.cursorCol = clamp(m.cursorCol, 0, len(m.grid.Columns()))
	if len(order) == 0 {
		m.cursorID = ""
		return
	}
	for _, id := range order {
		if id == m.cursorID {
			m.ensureCursorVisible()
			return
		}
	}
	m.cursorID = order[0]
	m.ensureCursorVisible()
}

func (m *Model) ensureCursorVisible() {
	l := m.layout()
	idx := l.lineIndex(m.cursorID)
	if idx < 0 || m.height <= 0 {
		return
	}
	height := max(1, l.bodyHeight())
	switch {
	case idx < m.scroll:
		m.scroll = idx
	case idx >= m.scroll+height:
		m.scroll = idx - height + 1
	}
}

// cursorLane is the lane of the cursor row, or the first lane.
func (m Model) cursorLane() string {
	if rec, ok := m.grid.Record(m.cursorID); ok {
		return rec.LaneID
	}
	if lanes := m.grid.Lanes(); len(lanes) > 0 {
		return lanes[0].ID
	}
	return ""
}

// cursorColumnID maps the cursor column index to a column id.
func (m Model) cursorColumnID() string {
	if m.cursorCol == 0 {
		return grid.TitleField
	}
	cols := m.grid.Columns()
	if m.cursorCol-1 < len(cols) {
		return cols[m.cursorCol-1].ID
	}
	return grid.TitleField
}

func (m *Model) deleteAtCursor() {
	if n := len(m.grid.SelectedIDs()); n > 0 {
		m.grid.DeleteSelected()
		m.status = fmt.Sprintf("deleted %d selected", n)
		m.clampCursor()
		return
	}
	if m.cursorID == "" {
		return
	}
	order := m.layout().recordOrder()
	next := ""
	for i, id := range order {
		if id == m.cursorID && i+1 < len(order) {
			next = order[i+1]
		}
	}
	m.grid.DeleteRecord(m.cursorID)
	m.cursorID = next
	m.status = "deleted"
	m.clampCursor()
}

func (m *Model) yankCursorCell() {
	if m.cursorID == "" {
		return
	}
	text := m.grid.CellText(m.cursorID, m.cursorColumnID())
	if err := m.clipboard(text); err != nil {
		m.status = "copy failed: " + err.Error()
		m.logger.Warn("clipboard write failed", "err", err)
		return
	}
	m.status = "copied " + truncate(text, 32)
}

func (m *Model) openPreview() {
	if m.cursorID == "" {
		return
	}
	colID := m.cursorColumnID()
	text := m.grid.CellText(m.cursorID, colID)
	if strings.TrimSpace(text) == "" {
		m.status = "nothing to preview"
		return
	}
	title, typ := "Title", domain.ColumnTypeText
	if col, ok := m.grid.Column(colID); ok {
		title, typ = col.Label, col.Type
	}
	m.previewTitle = title
	m.previewType = typ
	m.previewBody = text
	m.mode = modePreview
}

// Footer prompts.

func (m Model) startPrompt(mode inputMode, laneID string) (tea.Model, tea.Cmd) {
	m.mode = mode
	m.promptLane = laneID
	m.prompt.SetValue("")
	switch mode {
	case modeAddRecord:
		m.prompt.Prompt = "new task: "
	case modeAddChild:
		m.prompt.Prompt = "new subtask: "
	case modeAddLane:
		m.prompt.Prompt = "new lane: "
	case modeAddColumn:
		m.prompt.Prompt = "column label: "
	case modeNewOption:
		m.prompt.Prompt = "+ "
	}
	m.prompt.SetWidth(max(10, m.width-40))
	return m, m.prompt.Focus()
}

func (m Model) closePrompt(status string) Model {
	m.mode = modeNone
	m.prompt.Blur()
	m.prompt.SetValue("")
	if status != "" {
		m.status = status
	}
	return m
}

func (m Model) handlePromptKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.closePrompt("cancelled"), nil
	case "enter":
		return m.submitPrompt()
	case "tab":
		if m.mode == modeAddColumn {
			m.columnType = (m.columnType + 1) % len(domain.ColumnTypes())
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m Model) submitPrompt() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.prompt.Value())
	if value == "" {
		m.status = "a name is required"
		return m, nil
	}
	switch m.mode {
	case modeAddRecord, modeAddChild:
		in := grid.AddRecordInput{LaneID: m.promptLane, Title: value}
		if m.mode == modeAddChild {
			in = grid.AddRecordInput{ParentID: m.cursorID, Title: value}
		}
		rec, err := m.grid.AddRecord(in)
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m = m.closePrompt("added " + rec.Title)
		m.cursorID = rec.ID
		m.clampCursor()
	case modeAddLane:
		lane, err := m.grid.AddLane(value, "")
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m = m.closePrompt("added lane " + lane.Title)
	case modeAddColumn:
		typ := domain.ColumnTypes()[m.columnType]
		col, err := m.grid.AddColumn(typ, value)
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m = m.closePrompt(fmt.Sprintf("added %s column %s", col.Type, col.Label))
	case modeNewOption:
		opt, err := m.grid.CreateOption(value, "")
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m = m.closePrompt("created option " + opt.Label)
	}
	return m, nil
}

// Floating editor.

// popupSize is the editor box size for one cell.
func (m Model) popupSize(columnID string, cellWidth int) domain.Size {
	w := max(cellWidth+2, 28)
	if col, ok := m.grid.Column(columnID); ok && m.grid.Registry().Editor(col.Type).Kind() == grid.EditorPicker {
		// options plus clear and new rows, inside a border.
		return domain.Size{W: w, H: len(col.Options) + 4}
	}
	return domain.Size{W: w, H: 3}
}

func (m Model) viewport() domain.Size {
	return domain.Size{W: m.width, H: m.height}
}

func (m Model) openEditorAtCursor() (tea.Model, tea.Cmd) {
	if m.cursorID == "" {
		return m, nil
	}
	m.ensureCursorVisible()
	l := m.layout()
	spot, ok := l.rowByID(m.cursorID)
	if !ok {
		return m, nil
	}
	return m.openEditor(l, spot, m.cursorCol)
}

func (m Model) openEditor(l gridLayout, spot rowSpot, spanIdx int) (tea.Model, tea.Cmd) {
	if spanIdx < 0 || spanIdx >= len(l.spans) {
		return m, nil
	}
	recordID := spot.row.Record.ID
	columnID := l.spans[spanIdx].columnID
	anchor := l.cellRect(spot.y, spanIdx)
	edit, ok := m.grid.OpenEditor(recordID, columnID, anchor, m.popupSize(columnID, anchor.W), m.viewport())
	m.cursorID = recordID
	m.cursorCol = spanIdx
	if !ok {
		if col, found := m.grid.Column(columnID); found && col.Type == domain.ColumnTypeCheckbox {
			m.status = "toggled " + col.Label
		}
		return m, nil
	}
	return m.syncEditor(edit)
}

// syncEditor loads the open editor's initial value into the input.
func (m Model) syncEditor(edit grid.EditSession) (tea.Model, tea.Cmd) {
	m.editKey = edit.RecordID + "/" + edit.ColumnID
	m.optionCursor = 0
	if col, ok := m.grid.Column(edit.ColumnID); ok {
		for i, opt := range col.Options {
			if opt.ID == edit.Initial {
				m.optionCursor = i
			}
		}
	}
	m.editor.SetValue(edit.Initial)
	m.editor.CursorEnd()
	m.editor.SetWidth(max(4, edit.Popup.W-4))
	m.status = "editing"
	return m, m.editor.Focus()
}

func (m Model) handleEditorKey(msg tea.KeyPressMsg, edit grid.EditSession) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		m.grid.Escape()
		m.editor.Blur()
		m.status = "edit cancelled"
		return m, nil
	}
	if edit.Kind == grid.EditorPicker {
		return m.handlePickerKey(msg, edit)
	}
	switch msg.String() {
	case "enter":
		if err := m.grid.CommitEditor(m.editor.Value()); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.editor.Blur()
		m.status = "saved"
		return m, nil
	case "tab":
		if m.grid.BlurEditor(m.editor.Value()) {
			m.status = "saved"
		} else {
			m.status = "invalid value discarded"
		}
		m.editor.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m Model) handlePickerKey(msg tea.KeyPressMsg, edit grid.EditSession) (tea.Model, tea.Cmd) {
	col, ok := m.grid.Column(edit.ColumnID)
	if !ok {
		m.grid.CancelEditor()
		return m, nil
	}
	last := len(col.Options) + 1
	switch msg.String() {
	case "up", "k":
		m.optionCursor = max(0, m.optionCursor-1)
	case "down", "j":
		m.optionCursor = min(last, m.optionCursor+1)
	case "+":
		return m.startPrompt(modeNewOption, "")
	case "enter":
		return m.choosePickerRow(col, m.optionCursor)
	}
	return m, nil
}

// choosePickerRow applies picker row idx: an option, the clear row or the new row.
func (m Model) choosePickerRow(col domain.Column, idx int) (tea.Model, tea.Cmd) {
	switch {
	case idx < len(col.Options):
		if err := m.grid.SelectOption(col.Options[idx].ID); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.status = "set " + col.Label + " to " + col.Options[idx].Label
	case idx == len(col.Options):
		m.grid.ClearOption()
		m.status = "cleared " + col.Label
	default:
		return m.startPrompt(modeNewOption, "")
	}
	return m, nil
}

// Mouse.

func (m Model) handleMouseClick(msg tea.MouseClickMsg) (tea.Model, tea.Cmd) {
	if msg.Button != tea.MouseLeft {
		return m, nil
	}
	p := domain.Point{X: msg.X, Y: msg.Y}
	if m.mode == modePreview {
		m.mode = modeNone
		return m, nil
	}
	if edit, ok := m.grid.ActiveEditor(); ok {
		if rect := edit.PopupRect(); rect.Contains(p) {
			return m.clickInPopup(edit, rect, p)
		}
		if m.grid.PointerDown(p) {
			m.editor.Blur()
			if m.mode == modeNewOption {
				m = m.closePrompt("")
			}
			m.status = "edit dismissed"
		}
		return m, nil
	}
	if m.mode != modeNone {
		return m, nil
	}

	l := m.layout()
	if msg.Y == headerY {
		if span, ok := l.resizeHandleAt(msg.X); ok && m.grid.BeginResize(span.columnID, msg.X*widthUnit) {
			m.status = "resizing"
		}
		return m, nil
	}
	if lane, ok := l.laneAt(msg.Y); ok {
		m.grid.ToggleCollapse(lane.count.LaneID)
		m.clampCursor()
		return m, nil
	}
	spot, ok := l.rowAt(msg.Y)
	if !ok {
		return m, nil
	}
	m.cursorID = spot.row.Record.ID
	switch {
	case msg.X < handleCells:
		if m.grid.BeginDrag(m.cursorID, p) {
			m.dragOriginY = msg.Y
			m.status = "dragging " + truncate(spot.row.Record.Title, 24)
		}
		return m, nil
	case msg.X == toggleX(spot.row.Depth) && spot.row.ChildCount > 0:
		m.grid.ToggleExpand(m.cursorID)
		return m, nil
	}
	_, idx, ok := l.spanAt(msg.X)
	if !ok {
		return m, nil
	}
	return m.openEditor(l, spot, idx)
}

func (m Model) clickInPopup(edit grid.EditSession, rect domain.Rect, p domain.Point) (tea.Model, tea.Cmd) {
	if edit.Kind != grid.EditorPicker || m.mode == modeNewOption {
		return m, nil
	}
	col, ok := m.grid.Column(edit.ColumnID)
	if !ok {
		return m, nil
	}
	// first line is the border.
	idx := p.Y - rect.Y - 1
	if idx < 0 || idx > len(col.Options)+1 {
		return m, nil
	}
	m.optionCursor = idx
	return m.choosePickerRow(col, idx)
}

func (m Model) handleMouseMotion(msg tea.MouseMotionMsg) (tea.Model, tea.Cmd) {
	switch m.grid.Session().Kind {
	case grid.SessionDragging:
		l := m.layout()
		if spot, ok := l.rowAt(msg.Y); ok {
			pointerY := 0
			if msg.Y > m.dragOriginY {
				pointerY = 1
			}
			m.grid.HoverRow(spot.row.Record.ID, pointerY, 0, dragRowHeight)
			return m, nil
		}
		if lane, ok := l.laneAt(msg.Y); ok {
			m.grid.HoverLane(lane.count.LaneID)
			return m, nil
		}
		m.grid.ClearDropTarget()
	case grid.SessionResizing:
		if width, ok := m.grid.ResizeTo(msg.X * widthUnit); ok {
			m.status = fmt.Sprintf("width %d", width)
		}
	}
	return m, nil
}

func (m Model) handleMouseRelease(msg tea.MouseReleaseMsg) (tea.Model, tea.Cmd) {
	switch m.grid.Session().Kind {
	case grid.SessionDragging:
		op, ok := m.grid.EndDrag()
		if !ok {
			m.status = "move cancelled"
			return m, nil
		}
		m.logger.Debug("record moved", "record", op.SourceID, "lane", op.LaneID, "parent", op.ParentID, "index", op.Index)
		m.cursorID = op.SourceID
		m.status = "moved"
		m.clampCursor()
	case grid.SessionResizing:
		m.grid.EndResize()
		m.status = "resized"
	}
	return m, nil
}

func (m Model) handleMouseWheel(msg tea.MouseWheelMsg) (tea.Model, tea.Cmd) {
	l := m.layout()
	maxScroll := max(0, len(l.lines)-l.bodyHeight())
	switch msg.Button {
	case tea.MouseWheelUp:
		m.scroll = max(0, m.scroll-1)
	case tea.MouseWheelDown:
		m.scroll = min(maxScroll, m.scroll+1)
	}
	return m, nil
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

func truncate(s string, maxLen int) string {
	rs := []rune(s)
	if maxLen <= 0 || len(rs) <= maxLen {
		return s
	}
	return string(rs[:maxLen-1]) + "…"
}
