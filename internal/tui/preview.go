package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"

	"github.com/hylla/tabula/internal/domain"
)

const minPreviewWrap = 24

// cellPreview renders the body of the cell preview overlay. Long text is
// markdown and goes through glamour; every other cell is wrapped verbatim.
type cellPreview struct {
	width    int
	renderer *glamour.TermRenderer
}

// render wraps text to width and keeps at most maxLines lines, ending a cut
// body with an ellipsis line.
func (p *cellPreview) render(typ domain.ColumnType, text string, width, maxLines int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	width = max(width, minPreviewWrap)

	body := runewidth.Wrap(text, width)
	if typ == domain.ColumnTypeLongText {
		body = p.markdown(text, width)
	}
	return clipLines(body, maxLines)
}

func (p *cellPreview) markdown(text string, width int) string {
	if p.renderer == nil || p.width != width {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return runewidth.Wrap(text, width)
		}
		p.renderer, p.width = renderer, width
	}
	rendered, err := p.renderer.Render(text)
	if err != nil {
		return runewidth.Wrap(text, width)
	}
	return strings.Trim(rendered, "\n")
}

func clipLines(body string, maxLines int) string {
	if maxLines <= 0 {
		return body
	}
	lines := strings.Split(body, "\n")
	if len(lines) <= maxLines {
		return body
	}
	lines = append(lines[:max(0, maxLines-1)], "…")
	return strings.Join(lines, "\n")
}
