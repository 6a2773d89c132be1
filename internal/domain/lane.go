package domain

import "strings"

// Lane is a named status group partitioning top-level records.
type Lane struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
}

// NewLane constructs a lane, defaulting the color when none is given.
func NewLane(id, title, color string) (Lane, error) {
	id = strings.TrimSpace(id)
	title = strings.TrimSpace(title)
	if id == "" {
		return Lane{}, ErrInvalidID
	}
	if title == "" {
		return Lane{}, ErrInvalidTitle
	}
	color, err := NormalizeColor(color, DefaultLaneColor)
	if err != nil {
		return Lane{}, err
	}
	return Lane{ID: id, Title: title, Color: color}, nil
}

// Rename retitles the lane.
func (l *Lane) Rename(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}
	l.Title = title
	return nil
}

// Recolor sets a new color token.
func (l *Lane) Recolor(color string) error {
	color, err := NormalizeColor(color, DefaultLaneColor)
	if err != nil {
		return err
	}
	l.Color = color
	return nil
}
