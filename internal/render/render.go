// Package render writes reconciled reports as a terminal table, JSON, YAML or a JSON Schema.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/goccy/go-yaml"
	"github.com/invopop/jsonschema"

	"github.com/christopherklint97/deskcheck/internal/reconcile"
	"github.com/christopherklint97/deskcheck/internal/report"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Formats lists the accepted values of the report format setting.
var Formats = []string{FormatTable, FormatJSON, FormatYAML}

// Report writes rep in the named format.
func Report(w io.Writer, format string, rep *report.Report) error {
	switch format {
	case FormatTable, "":
		heading := fmt.Sprintf("Employee %d", rep.EmployeeID)
		if rep.Employee != "" {
			heading = rep.Employee
		}
		heading += fmt.Sprintf("  %s → %s", rep.WindowStart, rep.WindowEnd)
		if rep.Offline {
			heading += DimStyle.Render(fmt.Sprintf("  (offline, fetched %s)", rep.FetchedAt.Local().Format("2006-01-02 15:04")))
		}
		fmt.Fprintln(w, TitleStyle.Render(heading))
		if err := Table(w, rep.Events, rep.Summary); err != nil {
			return err
		}
		for _, sk := range rep.Skipped {
			fmt.Fprintln(w, WarningStyle.Render(fmt.Sprintf("skipped %s #%d: %s", sk.Kind, sk.Index, sk.Reason)))
		}
		for _, an := range rep.Anomalies {
			fmt.Fprintln(w, WarningStyle.Render(fmt.Sprintf("anomaly on %s: %s", an.Date, an.Reason)))
		}
		return nil
	case FormatJSON:
		return JSON(w, rep)
	case FormatYAML:
		return YAML(w, rep)
	}
	return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
}

// Table writes one row per event followed by a summary line.
func Table(w io.Writer, events []reconcile.CalendarDayEvent, summary reconcile.Summary) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, DimStyle.Render("No attendance or upcoming bookings in this window."))
		return err
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("Date", "Day", "Status", "In", "Out", "Hours", "Space", "Type")

	for _, e := range events {
		hours := ""
		if e.Status != reconcile.StatusFutureBooking && e.ClockIn != "--" && e.ClockIn != "" {
			hours = fmt.Sprintf("%.1f", e.WorkedHours)
		}
		t.Row(
			e.Date,
			reconcile.WeekdayAbbrev(e.Day().Weekday()),
			statusLabel(e),
			e.ClockIn,
			e.ClockOut,
			hours,
			e.CoworkingSpace,
			e.BookingType,
		)
	}

	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if col == 2 && row >= 0 && row < len(events) {
			return cellStyle.Foreground(StatusColor(events[row].Status))
		}
		return cellStyle
	})

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, SummaryLine(summary))
	return err
}

func statusLabel(e reconcile.CalendarDayEvent) string {
	first, _, _ := strings.Cut(e.DisplayText, "\n")
	if first == "" {
		return string(e.Status)
	}
	return first
}

// SummaryLine is a one-line overview of status counts and booked-day attendance.
func SummaryLine(s reconcile.Summary) string {
	parts := make([]string, 0, len(reconcile.Statuses)+2)
	for _, st := range reconcile.Statuses {
		parts = append(parts, StatusStyle(st).Render(fmt.Sprintf("%s %d", st, s.Counts[st])))
	}
	parts = append(parts, fmt.Sprintf("worked %.1fh", s.WorkedHours))
	if s.BookedAttended+s.BookedAbsences > 0 {
		parts = append(parts, fmt.Sprintf("booked-day attendance %.0f%%", s.AttendanceRate*100))
	}
	return strings.Join(parts, DimStyle.Render(" · "))
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// YAML writes v as YAML.
func YAML(w io.Writer, v any) error {
	data, err := yaml.MarshalWithOptions(v, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Schema writes the JSON Schema of the report document.
func Schema(w io.Writer) error {
	r := &jsonschema.Reflector{
		DoNotReference: true,
	}
	s := r.Reflect(&report.Report{})
	s.Title = "deskcheck report"
	s.Description = "Reconciled attendance and coworking bookings of one employee."
	return JSON(w, s)
}
