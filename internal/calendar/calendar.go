// Package calendar converts between reconciled events, bookings and iCalendar feeds.
package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	ical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/christopherklint97/deskcheck/internal/reconcile"
)

const (
	productID  = "-//deskcheck//attendance calendar//EN"
	propStatus = "X-DESKCHECK-STATUS"
	propReason = "X-DESKCHECK-REASON"
)

// ExportOptions identify the calendar being exported.
type ExportOptions struct {
	EmployeeID int
	Name       string
	// Stamp is written as DTSTAMP on every event. Zero means now.
	Stamp time.Time
}

// Export writes events as an iCalendar feed with one all-day VEVENT per day.
func Export(w io.Writer, events []reconcile.CalendarDayEvent, opts ExportOptions) error {
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	if opts.Name != "" {
		cal.Props.SetText("X-WR-CALNAME", opts.Name)
	}

	for _, e := range events {
		day := e.Day()
		if day.IsZero() {
			continue
		}
		summary, _, _ := strings.Cut(e.DisplayText, "\n")

		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, fmt.Sprintf("%d-%s@deskcheck", opts.EmployeeID, e.Date))
		ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		ev.Props.SetDate(ical.PropDateTimeStart, day)
		ev.Props.SetDate(ical.PropDateTimeEnd, day.AddDate(0, 0, 1))
		ev.Props.SetText(ical.PropSummary, summary)
		ev.Props.SetText(ical.PropDescription, e.DisplayText)
		ev.Props.SetText(ical.PropCategories, string(e.Status))
		ev.Props.SetText(propStatus, string(e.Status))
		ev.Props.SetText(propReason, string(e.Reason))
		if e.CoworkingSpace != "" {
			ev.Props.SetText(ical.PropLocation, e.CoworkingSpace)
		}
		ev.Props.SetText(ical.PropTransparency, "TRANSPARENT")
		cal.Children = append(cal.Children, ev.Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encoding calendar: %w", err)
	}
	return nil
}

// open returns a reader for an http(s) URL or a file path.
func open(ctx context.Context, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching calendar: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("calendar fetch returned status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("opening calendar file: %w", err)
	}
	return f, nil
}

// LoadBookings reads bookings from an iCalendar URL or file. Each VEVENT becomes one
// booking: DTSTART is the first day, RRULE UNTIL or COUNT (or DTEND) the last, RRULE
// BYDAY the weekday filter, SUMMARY the space title and CATEGORIES the booking type.
// Open-ended recurrences stop at until. Events that cannot be expressed as a booking
// are skipped.
func LoadBookings(ctx context.Context, source string, until time.Time) ([]reconcile.BookingRecord, error) {
	r, err := open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return DecodeBookings(r, until)
}

// DecodeBookings is LoadBookings over an already opened reader.
func DecodeBookings(r io.Reader, until time.Time) ([]reconcile.BookingRecord, error) {
	dec := ical.NewDecoder(r)
	var bookings []reconcile.BookingRecord

	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing calendar: %w", err)
		}

		for _, component := range cal.Children {
			if component.Name != ical.CompEvent {
				continue
			}
			b, ok := bookingFromEvent(ical.Event{Component: component}, until)
			if !ok {
				continue // skip events that are not bookings
			}
			b.ID = len(bookings) + 1
			bookings = append(bookings, b)
		}
	}

	return bookings, nil
}

var rruleDays = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

func bookingFromEvent(event ical.Event, until time.Time) (reconcile.BookingRecord, bool) {
	start, err := event.DateTimeStart(time.UTC)
	if err != nil || start.IsZero() {
		return reconcile.BookingRecord{}, false
	}
	end, err := event.DateTimeEnd(time.UTC)
	if err != nil {
		return reconcile.BookingRecord{}, false
	}

	allDay := false
	if prop := event.Props.Get(ical.PropDateTimeStart); prop != nil && prop.ValueType() == ical.ValueDate {
		allDay = true
	}

	rec := reconcile.BookingRecord{
		StartDate: start.Format("2006-01-02"),
	}

	if title, _ := event.Props.Text(ical.PropSummary); title != "" {
		rec.CoworkingSpace = &reconcile.CoworkingSpace{Title: title}
	}
	if cat, _ := event.Props.Text(ical.PropCategories); cat != "" {
		first, _, _ := strings.Cut(cat, ",")
		rec.BookingType = strings.TrimSpace(first)
	}
	if created, err := event.Props.DateTime(ical.PropCreated, time.UTC); err == nil && !created.IsZero() {
		rec.CreatedAt = created.Format(time.RFC3339)
	}
	if !allDay && end.After(start) && end.Sub(start) < 24*time.Hour {
		hours := end.Sub(start).Hours()
		rec.DurationPerDay = &hours
	}

	// Last day of a single occurrence. All-day DTEND is exclusive.
	last := end
	if allDay || (last.After(start) && last.Equal(truncate(last))) {
		last = last.AddDate(0, 0, -1)
	}
	if last.Before(start) {
		last = start
	}

	opt, err := event.Props.RecurrenceRule()
	if err != nil {
		return reconcile.BookingRecord{}, false
	}
	if opt != nil {
		ruleEnd, ok := recurrenceEnd(opt, start, until)
		if !ok {
			return reconcile.BookingRecord{}, false
		}
		days, ok := recurrenceDays(opt, start)
		if !ok {
			return reconcile.BookingRecord{}, false
		}
		rec.EndDate = ruleEnd.Format("2006-01-02")
		rec.DaysOfWeek = days
		return rec, true
	}

	rec.EndDate = last.Format("2006-01-02")
	return rec, true
}

// recurrenceDays maps the rule to a days_of_week value. Only daily and weekly rules
// with an interval of one can be expressed.
func recurrenceDays(opt *rrule.ROption, start time.Time) (string, bool) {
	if opt.Interval > 1 {
		return "", false
	}
	switch opt.Freq {
	case rrule.DAILY:
		if len(opt.Byweekday) == 0 {
			return "", true
		}
	case rrule.WEEKLY:
		if len(opt.Byweekday) == 0 {
			return reconcile.WeekdayAbbrev(start.Weekday()), true
		}
	default:
		return "", false
	}

	days := make([]string, 0, len(opt.Byweekday))
	for _, wd := range opt.Byweekday {
		days = append(days, rruleDays[wd.Day()])
	}
	return strings.Join(days, ","), true
}

func recurrenceEnd(opt *rrule.ROption, start, until time.Time) (time.Time, bool) {
	switch {
	case !opt.Until.IsZero():
		return opt.Until, true
	case opt.Count > 0:
		o := *opt
		o.Dtstart = start
		r, err := rrule.NewRRule(o)
		if err != nil {
			return time.Time{}, false
		}
		all := r.All()
		if len(all) == 0 {
			return time.Time{}, false
		}
		return all[len(all)-1], true
	case !until.IsZero() && !until.Before(start):
		return until, true
	}
	return time.Time{}, false
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Feed serves bookings from an iCalendar source. Every employee gets the same bookings.
// Until bounds open-ended rules when the caller gives no horizon of its own.
type Feed struct {
	Source string
	Until  time.Time
}

func (f Feed) ListBookings(ctx context.Context, _ int) ([]reconcile.BookingRecord, error) {
	return LoadBookings(ctx, f.Source, f.Until)
}

// ListBookingsUntil loads bookings with open-ended rules stopping at until.
func (f Feed) ListBookingsUntil(ctx context.Context, _ int, until time.Time) ([]reconcile.BookingRecord, error) {
	if until.IsZero() {
		until = f.Until
	}
	return LoadBookings(ctx, f.Source, until)
}
