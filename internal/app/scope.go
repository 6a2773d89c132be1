package app

import (
	"strings"

	"github.com/hylla/tabula/internal/domain"
)

// ScopeKey derives the persistence key of a grid from the hosting room and
// optional view, e.g. "room/launch/view/backlog".
func ScopeKey(roomID, viewID string) (string, error) {
	room := domain.NormalizeSlug(roomID)
	if room == "" {
		return "", ErrInvalidScope
	}
	key := "room/" + room
	if view := domain.NormalizeSlug(viewID); view != "" {
		key += "/view/" + view
	}
	return key, nil
}

// NormalizeScopeKey validates a caller-supplied scope key. Keys are
// slash-separated slug segments.
func NormalizeScopeKey(raw string) (string, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(raw), "/"), "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		slug := domain.NormalizeSlug(part)
		if slug == "" {
			return "", ErrInvalidScope
		}
		out = append(out, slug)
	}
	return strings.Join(out, "/"), nil
}
