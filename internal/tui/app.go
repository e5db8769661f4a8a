// Package tui is an interactive month view of a reconciled attendance calendar.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/christopherklint97/deskcheck/internal/reconcile"
	"github.com/christopherklint97/deskcheck/internal/render"
	"github.com/christopherklint97/deskcheck/internal/report"
)

// Loader builds the report shown by the app. It is called on start and on reload.
type Loader func(ctx context.Context) (*report.Report, error)

type reportMsg struct {
	report *report.Report
	err    error
}

type App struct {
	ctx     context.Context
	load    Loader
	spinner spinner.Model
	loading bool
	err     error

	report   *report.Report
	byDate   map[string]reconcile.CalendarDayEvent
	today    time.Time
	selected time.Time
}

// NewApp starts on the month containing selected.
func NewApp(ctx context.Context, selected time.Time, load Loader) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return &App{
		ctx:      ctx,
		load:     load,
		spinner:  s,
		loading:  true,
		today:    dayOf(time.Now()),
		selected: dayOf(selected),
	}
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.fetch())
}

func (a *App) fetch() tea.Cmd {
	return func() tea.Msg {
		rep, err := a.load(a.ctx)
		return reportMsg{report: rep, err: err}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case reportMsg:
		return a.handleReport(msg)
	case tea.KeyMsg:
		return a.handleKey(msg)
	case spinner.TickMsg:
		if !a.loading {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) handleReport(msg reportMsg) (tea.Model, tea.Cmd) {
	a.loading = false
	a.err = msg.err
	if msg.err != nil {
		return a, nil
	}
	a.report = msg.report
	a.byDate = make(map[string]reconcile.CalendarDayEvent, len(msg.report.Events))
	for _, e := range msg.report.Events {
		a.byDate[e.Date] = e
	}
	if t, err := reconcile.ParseDate(msg.report.Today); err == nil {
		a.today = t
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return a, tea.Quit
	case "r":
		if a.loading {
			return a, nil
		}
		a.loading = true
		a.err = nil
		return a, tea.Batch(a.spinner.Tick, a.fetch())
	}

	if a.loading {
		return a, nil
	}

	switch msg.String() {
	case "left", "h":
		a.selected = a.selected.AddDate(0, -1, 0)
	case "right", "l":
		a.selected = a.selected.AddDate(0, 1, 0)
	case "up", "k":
		a.selected = a.selected.AddDate(0, 0, -1)
	case "down", "j":
		a.selected = a.selected.AddDate(0, 0, 1)
	case "t":
		a.selected = a.today
	}
	return a, nil
}

// Selected is the highlighted day.
func (a *App) Selected() time.Time {
	return a.selected
}

func (a *App) View() string {
	if a.loading {
		return a.spinner.View() + " Loading calendar..."
	}
	if a.err != nil {
		return errorStyle.Render("Error: ") + a.err.Error() + "\n" +
			helpStyle.Render("r retry • q quit")
	}

	var b strings.Builder
	title := a.report.Employee
	if title == "" {
		title = fmt.Sprintf("Employee %d", a.report.EmployeeID)
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("%s → %s", a.report.WindowStart, a.report.WindowEnd)) + "\n")

	grid := a.monthGrid()
	detail := boxStyle.Width(36).Render(a.detail())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, grid, "  ", detail))
	b.WriteString("\n")
	b.WriteString(render.SummaryLine(a.report.Summary))
	if n := len(a.report.Anomalies); n > 0 {
		b.WriteString("\n" + warningStyle.Render(fmt.Sprintf("%d anomalies", n)))
	}
	b.WriteString("\n" + helpStyle.Render("←/→ month • ↑/↓ day • t today • r reload • q quit"))
	return b.String()
}

func (a *App) monthGrid() string {
	first := time.Date(a.selected.Year(), a.selected.Month(), 1, 0, 0, 0, 0, time.UTC)

	var b strings.Builder
	b.WriteString(monthStyle.Render(first.Format("January 2006")) + "\n")
	for _, d := range []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"} {
		b.WriteString(dimStyle.Inherit(cellStyle).Render(d))
	}
	b.WriteString("\n")

	// Monday-first offset.
	offset := (int(first.Weekday()) + 6) % 7
	b.WriteString(strings.Repeat(cellStyle.Render(""), offset))

	col := offset
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		b.WriteString(a.cell(d))
		col++
		if col == 7 {
			b.WriteString("\n")
			col = 0
		}
	}
	return b.String()
}

func (a *App) cell(d time.Time) string {
	style := cellStyle
	key := d.Format("2006-01-02")
	if e, ok := a.byDate[key]; ok {
		style = style.Foreground(render.StatusColor(e.Status)).Bold(true)
	} else {
		style = style.Inherit(dimStyle)
	}
	if d.Equal(a.today) {
		style = style.Inherit(todayStyle)
	}

	label := fmt.Sprintf("%d", d.Day())
	if d.Equal(a.selected) {
		return style.Render(selectedStyle.Render(label))
	}
	return style.Render(label)
}

func (a *App) detail() string {
	key := a.selected.Format("2006-01-02")
	heading := monthStyle.Render(a.selected.Format("Mon 2 Jan 2006"))

	e, ok := a.byDate[key]
	if !ok {
		if !a.window().Contains(a.selected) {
			return heading + "\n" + dimStyle.Render("Outside the report window")
		}
		return heading + "\n" + dimStyle.Render("Nothing recorded")
	}

	lines := []string{heading, render.StatusStyle(e.Status).Render(e.DisplayText)}
	if e.CoworkingSpace != "" && e.Status != reconcile.StatusFutureBooking {
		lines = append(lines, dimStyle.Render(e.CoworkingSpace+" · "+e.BookingType))
	}
	return strings.Join(lines, "\n")
}

func (a *App) window() reconcile.Window {
	start, _ := reconcile.ParseDate(a.report.WindowStart)
	end, _ := reconcile.ParseDate(a.report.WindowEnd)
	return reconcile.Window{Start: start, End: end}
}
