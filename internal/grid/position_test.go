package grid

import (
	"testing"

	"github.com/hylla/tabula/internal/domain"
)

func TestPlace(t *testing.T) {
	viewport := domain.Size{W: 80, H: 24}
	tests := []struct {
		name   string
		anchor domain.Rect
		popup  domain.Size
		want   Placement
	}{
		{
			name:   "below left by default",
			anchor: domain.Rect{X: 10, Y: 5, W: 12, H: 1},
			popup:  domain.Size{W: 20, H: 6},
			want:   Placement{X: 10, Y: 6},
		},
		{
			name:   "shift left by right overflow",
			anchor: domain.Rect{X: 70, Y: 5, W: 10, H: 1},
			popup:  domain.Size{W: 20, H: 6},
			want:   Placement{X: 60, Y: 6},
		},
		{
			name:   "wider than viewport clamps at zero",
			anchor: domain.Rect{X: 30, Y: 5, W: 10, H: 1},
			popup:  domain.Size{W: 120, H: 6},
			want:   Placement{X: 0, Y: 6},
		},
		{
			name:   "flip above near the bottom",
			anchor: domain.Rect{X: 10, Y: 20, W: 10, H: 1},
			popup:  domain.Size{W: 20, H: 6},
			want:   Placement{X: 10, Y: 14, Above: true},
		},
		{
			name:   "pinned when neither side fits",
			anchor: domain.Rect{X: 10, Y: 4, W: 10, H: 1},
			popup:  domain.Size{W: 20, H: 21},
			want:   Placement{X: 10, Y: 2},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Place(tc.anchor, tc.popup, viewport, 1); got != tc.want {
				t.Fatalf("Place() = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestPositionFor(t *testing.T) {
	if PositionFor(10, 10, 4) != DropBefore || PositionFor(11, 10, 4) != DropBefore {
		t.Fatal("expected upper half to resolve before")
	}
	if PositionFor(12, 10, 4) != DropAfter || PositionFor(13, 10, 4) != DropAfter {
		t.Fatal("expected midpoint and below to resolve after")
	}
}

func TestResizeSessionWidthAt(t *testing.T) {
	s := ResizeSession{ColumnID: "p", StartX: 300, StartWidth: 140}
	if got := s.WidthAt(-200, 100); got != 100 {
		t.Fatalf("WidthAt() = %d, want 100", got)
	}
	if got := s.WidthAt(310, 100); got != 150 {
		t.Fatalf("WidthAt() = %d, want 150", got)
	}
}
