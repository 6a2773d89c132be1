package domain

import "strings"

// DefaultOptionColor and DefaultLaneColor are used when callers omit a color.
const (
	DefaultOptionColor = "#c4c4c4"
	DefaultLaneColor   = "#579bfc"
)

// Palette lists the color tokens offered when creating options and lanes.
var Palette = []string{
	"#579bfc", // blue
	"#00c875", // green
	"#fdab3d", // orange
	"#e2445c", // red
	"#a25ddc", // purple
	"#ffcb00", // yellow
	"#66ccff", // sky
	"#c4c4c4", // grey
}

var defaultStatusOptions = []Option{
	{ID: "not-started", Label: "Not started", Color: "#c4c4c4"},
	{ID: "working-on-it", Label: "Working on it", Color: "#fdab3d"},
	{ID: "done", Label: "Done", Color: "#00c875"},
	{ID: "stuck", Label: "Stuck", Color: "#e2445c"},
}

var defaultPriorityOptions = []Option{
	{ID: "low", Label: "Low", Color: "#579bfc"},
	{ID: "medium", Label: "Medium", Color: "#a25ddc"},
	{ID: "high", Label: "High", Color: "#fdab3d"},
	{ID: "critical", Label: "Critical", Color: "#e2445c"},
}

// NormalizeColor accepts #rgb / #rrggbb tokens and falls back to fallback when raw is empty.
func NormalizeColor(raw, fallback string) (string, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return fallback, nil
	}
	if !strings.HasPrefix(raw, "#") || (len(raw) != 4 && len(raw) != 7) {
		return "", ErrInvalidColor
	}
	for _, r := range raw[1:] {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') {
			return "", ErrInvalidColor
		}
	}
	return raw, nil
}
