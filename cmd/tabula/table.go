package main

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hylla/tabula/internal/grid"
)

// renderLaneTable draws lane counts as a bordered table with lane-colored titles.
func renderLaneTable(scope string, counts []grid.LaneCount) string {
	colors := make([]string, 0, len(counts))
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("62"))).
		Headers("Lane", "Top-level", "Total", "Collapsed").
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return style.Bold(true).Foreground(lipgloss.Color("230"))
			case col == 0 && row >= 0 && row < len(colors):
				return style.Foreground(lipgloss.Color(colors[row]))
			case col > 0:
				return style.Align(lipgloss.Right)
			}
			return style
		})
	for _, c := range counts {
		colors = append(colors, c.Color)
		collapsed := ""
		if c.Collapsed {
			collapsed = "yes"
		}
		t.Row(c.Title, strconv.Itoa(c.TopLevel), strconv.Itoa(c.Total), collapsed)
	}
	title := lipgloss.NewStyle().Bold(true).Render(scope)
	return lipgloss.JoinVertical(lipgloss.Left, title, t.Render())
}
