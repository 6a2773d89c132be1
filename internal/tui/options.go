package tui

import "github.com/charmbracelet/log"

// KeyConfig carries configurable single-key bindings.
type KeyConfig struct {
	AddRecord    string
	AddChild     string
	AddColumn    string
	AddLane      string
	Delete       string
	Edit         string
	ToggleExpand string
	Select       string
	CollapseLane string
	Yank         string
	Preview      string
}

// ClipboardFunc writes text to the system clipboard.
type ClipboardFunc func(text string) error

type Option func(*Model)

// WithKeyConfig overrides the default bindings.
func WithKeyConfig(cfg KeyConfig) Option {
	return func(m *Model) {
		m.keys.applyConfig(cfg)
	}
}

// WithClipboard replaces the clipboard writer used by yank.
func WithClipboard(fn ClipboardFunc) Option {
	return func(m *Model) {
		if fn != nil {
			m.clipboard = fn
		}
	}
}

// WithTitle sets the header title.
func WithTitle(title string) Option {
	return func(m *Model) {
		if title != "" {
			m.title = title
		}
	}
}

// WithLogger routes page events to logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}
