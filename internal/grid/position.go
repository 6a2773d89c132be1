package grid

import "github.com/hylla/tabula/internal/domain"

// Placement is where a floating editor is drawn.
type Placement struct {
	X     int  `json:"x"`
	Y     int  `json:"y"`
	Above bool `json:"above"`
}

// Rect returns the popup rectangle at this placement.
func (p Placement) Rect(popup domain.Size) domain.Rect {
	return domain.Rect{X: p.X, Y: p.Y, W: popup.W, H: popup.H}
}

// Place anchors popup below-left of anchor inside viewport.
//
// A popup overflowing the right edge is shifted left by the overflow. One
// overflowing the bottom edge flips above the anchor when it fits there and is
// otherwise pinned to viewport.H - margin - popup.H.
func Place(anchor domain.Rect, popup domain.Size, viewport domain.Size, margin int) Placement {
	p := Placement{X: anchor.X, Y: anchor.Bottom()}
	if overflow := p.X + popup.W - viewport.W; overflow > 0 {
		p.X -= overflow
	}
	p.X = max(0, p.X)

	if p.Y+popup.H > viewport.H {
		if above := anchor.Y - popup.H; above >= 0 {
			p.Y = above
			p.Above = true
		} else {
			p.Y = max(0, viewport.H-margin-popup.H)
		}
	}
	return p
}
