package reconcile

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate parses a calendar date. Timestamps are accepted and truncated to
// their own calendar day. The result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := ParseTimestamp(s); err == nil {
		return truncateDay(t), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseTimestamp parses a clock timestamp. Timestamps without a zone are taken as given
// and interpreted in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// truncateDay keeps the calendar day of t in its own location and returns it at midnight UTC,
// so dates from differently-zoned inputs compare equal.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

var weekdayAbbrev = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// WeekdayAbbrev returns the lower-case three-letter abbreviation used in days_of_week.
func WeekdayAbbrev(d time.Weekday) string {
	return strings.ToLower(d.String()[:3])
}

// ParseDaysOfWeek parses a comma-separated weekday list. It returns nil when s is blank,
// meaning every day applies. Unknown tokens are ignored, so a non-blank list with no
// recognised tokens yields an empty, non-nil set that matches no day.
func ParseDaysOfWeek(s string) map[time.Weekday]bool {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	set := make(map[time.Weekday]bool)
	for _, tok := range strings.Split(s, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if len(tok) > 3 {
			tok = tok[:3]
		}
		if d, ok := weekdayAbbrev[tok]; ok {
			set[d] = true
		}
	}
	return set
}
