package tui

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"charm.land/bubbles/v2/key"
)

// keyMap holds every binding of the grid page.
type keyMap struct {
	quit         key.Binding
	toggleHelp   key.Binding
	moveLeft     key.Binding
	moveRight    key.Binding
	moveUp       key.Binding
	moveDown     key.Binding
	edit         key.Binding
	toggleExpand key.Binding
	toggleSelect key.Binding
	addRecord    key.Binding
	addChild     key.Binding
	addColumn    key.Binding
	addLane      key.Binding
	deleteRecord key.Binding
	collapseLane key.Binding
	yank         key.Binding
	preview      key.Binding
	cancel       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		toggleHelp:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveLeft:     key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "cell left")),
		moveRight:    key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "cell right")),
		moveUp:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "row up")),
		moveDown:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "row down")),
		edit:         key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit cell")),
		toggleExpand: key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "expand")),
		toggleSelect: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "select")),
		addRecord:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new task")),
		addChild:     key.NewBinding(key.WithKeys("N", "shift+n"), key.WithHelp("N", "new subtask")),
		addColumn:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "add column")),
		addLane:      key.NewBinding(key.WithKeys("L", "shift+l"), key.WithHelp("L", "add lane")),
		deleteRecord: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		collapseLane: key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "collapse lane")),
		yank:         key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy cell")),
		preview:      key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "preview")),
		cancel:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

// applyConfig overrides configurable bindings, keeping defaults for blanks.
func (k *keyMap) applyConfig(cfg KeyConfig) {
	configureBinding(&k.addRecord, cfg.AddRecord, "n", "new task")
	configureBinding(&k.addChild, cfg.AddChild, "N", "new subtask")
	configureBinding(&k.addColumn, cfg.AddColumn, "c", "add column")
	configureBinding(&k.addLane, cfg.AddLane, "L", "add lane")
	configureBinding(&k.deleteRecord, cfg.Delete, "d", "delete")
	configureBinding(&k.edit, cfg.Edit, "enter", "edit cell")
	configureBinding(&k.toggleExpand, cfg.ToggleExpand, "space", "expand")
	configureBinding(&k.toggleSelect, cfg.Select, "x", "select")
	configureBinding(&k.collapseLane, cfg.CollapseLane, "z", "collapse lane")
	configureBinding(&k.yank, cfg.Yank, "y", "copy cell")
	configureBinding(&k.preview, cfg.Preview, "p", "preview")
}

// configureBinding replaces the keys and help of b.
func configureBinding(b *key.Binding, raw, fallback, desc string) {
	keys, helpKey := parseBindingKeys(raw, fallback)
	b.SetKeys(keys...)
	b.SetHelp(helpKey, desc)
}

// parseBindingKeys turns a configured key into matcher keys plus help text.
// An uppercase rune also matches its shift+ form.
func parseBindingKeys(raw, fallback string) ([]string, string) {
	value := strings.TrimSpace(raw)
	if value == "" && raw != "" {
		// a literal space survives trimming as a configured value.
		value = "space"
	}
	if value == "" {
		value = fallback
	}
	if value == "space" || value == " " {
		return []string{" ", "space"}, "space"
	}
	if utf8.RuneCountInString(value) == 1 {
		r, _ := utf8.DecodeRuneInString(value)
		if unicode.IsUpper(r) {
			return []string{value, "shift+" + string(unicode.ToLower(r))}, value
		}
		return []string{value}, value
	}
	return []string{strings.ToLower(value)}, value
}

// ShortHelp returns the bindings of the collapsed help line.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.edit, k.addRecord, k.addChild, k.toggleExpand, k.deleteRecord, k.toggleHelp, k.quit}
}

// FullHelp returns the bindings of the expanded help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveUp, k.moveDown, k.moveLeft, k.moveRight, k.edit, k.cancel},
		{k.addRecord, k.addChild, k.addColumn, k.addLane, k.deleteRecord},
		{k.toggleExpand, k.toggleSelect, k.collapseLane, k.yank, k.preview, k.toggleHelp, k.quit},
	}
}
