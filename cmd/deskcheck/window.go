package main

import (
	"fmt"
	"strings"
	"time"

	naturaldate "github.com/tj/go-naturaldate"

	"github.com/christopherklint97/deskcheck/internal/config"
	"github.com/christopherklint97/deskcheck/internal/reconcile"
)

// parseDay accepts YYYY-MM-DD or a natural-language date relative to now,
// such as "yesterday" or "5 days from now". dir resolves ambiguous phrases.
func parseDay(s string, now time.Time, dir naturaldate.Direction) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := reconcile.ParseDate(s); err == nil {
		return d, nil
	}
	t, err := naturaldate.Parse(s, now, naturaldate.WithDirection(dir))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// resolveWindow applies --from/--to on top of the configured default window.
func resolveWindow(rc config.ReportConfig, from, to string, now time.Time) (reconcile.Window, error) {
	start, end := rc.Window(now)
	w := reconcile.Window{
		Start: time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		End:   time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC),
	}

	var err error
	if from != "" {
		if w.Start, err = parseDay(from, now, naturaldate.Past); err != nil {
			return reconcile.Window{}, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if w.End, err = parseDay(to, now, naturaldate.Future); err != nil {
			return reconcile.Window{}, fmt.Errorf("--to: %w", err)
		}
	}
	if w.Start.After(w.End) {
		return reconcile.Window{}, &reconcile.ArgumentError{
			Field:   "window",
			Message: fmt.Sprintf("--from %s is after --to %s", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02")),
		}
	}
	return w, nil
}
