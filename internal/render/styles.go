package render

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/christopherklint97/deskcheck/internal/reconcile"
)

var (
	// Calendar colours: green full day, orange partial, red absent, blue upcoming.
	statusColors = map[reconcile.Status]lipgloss.Color{
		reconcile.StatusPresentFull:    lipgloss.Color("#4caf50"),
		reconcile.StatusPresentPartial: lipgloss.Color("#ff9800"),
		reconcile.StatusAbsent:         lipgloss.Color("#f44336"),
		reconcile.StatusFutureBooking:  lipgloss.Color("#2196f3"),
	}

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginBottom(1)

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// StatusColor returns the calendar colour for a status.
func StatusColor(s reconcile.Status) lipgloss.Color {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return lipgloss.Color("8")
}

// StatusStyle is a bold foreground style in the status colour.
func StatusStyle(s reconcile.Status) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(StatusColor(s)).Bold(true)
}
