// Package reconcile merges attendance records and coworking bookings into a
// per-day calendar of statuses.
//
// The engine is a pure function of its inputs and the reference date in Options:
// it performs no I/O, keeps no state between calls and is safe for concurrent use.
package reconcile

import (
	"slices"
	"strings"
	"time"
)

// Options controls a reconciliation run.
type Options struct {
	// Today is the reference date for deciding whether a booked day is in the future.
	// Zero means the current wall-clock date.
	Today time.Time
	// Thresholds default to DefaultThresholds when zero.
	Thresholds Thresholds
	// Order resolves overlapping bookings. Nil keeps input order.
	Order Order
}

// DefaultOptions uses today's date, the default thresholds and start-date ordering.
func DefaultOptions() Options {
	return Options{Thresholds: DefaultThresholds, Order: ByStartDate}
}

func (o Options) today() time.Time {
	if o.Today.IsZero() {
		return truncateDay(time.Now())
	}
	return truncateDay(o.Today)
}

func (o Options) thresholds() Thresholds {
	if o.Thresholds == (Thresholds{}) {
		return DefaultThresholds
	}
	return o.Thresholds
}

// Reconcile expands bookings, indexes attendance by date and emits one event per
// attendance date followed by one future_booking event per unattended future booked
// date inside window.
//
// Attendance events come first, in order of each date's first appearance; when a date
// repeats, the last record for it is used. Future-booking events follow in ascending
// date order. Malformed records are dropped and listed in Result.Skipped. The only
// error is an *ArgumentError for an invalid window.
func Reconcile(attendance []AttendanceRecord, bookings []BookingRecord, window Window, opts Options) (Result, error) {
	if err := window.validate(); err != nil {
		return Result{}, err
	}
	today := opts.today()
	th := opts.thresholds()

	booked, skipped := ExpandAll(bookings, today, opts.Order)

	// Index attendance: last record wins, order follows the first appearance of each date.
	index := make(map[string]AttendanceRecord, len(attendance))
	var order []string
	for i, rec := range attendance {
		if rec.Malformed != "" {
			skipped = append(skipped, Skipped{Kind: "attendance", Index: i, Reason: rec.Malformed})
			continue
		}
		day, err := ParseDate(rec.Date)
		if err != nil {
			skipped = append(skipped, Skipped{Kind: "attendance", Index: i, Reason: err.Error()})
			continue
		}
		key := formatDate(day)
		if _, seen := index[key]; !seen {
			order = append(order, key)
		}
		index[key] = rec
	}

	res := Result{Skipped: skipped, Events: make([]CalendarDayEvent, 0, len(order))}

	for _, key := range order {
		occ, isBooked := booked[key]
		c := Classify(index[key], isBooked, th)

		ev := CalendarDayEvent{
			Date:        key,
			Status:      c.Status,
			Reason:      c.Reason,
			WorkedHours: c.WorkedHours,
			IsBooked:    isBooked,
			ClockIn:     c.ClockIn,
			ClockOut:    c.ClockOut,
			DisplayText: c.DisplayText,
		}
		if isBooked {
			ev.CoworkingSpace = occ.SpaceTitle
			ev.BookingType = occ.BookingType
		}
		res.Events = append(res.Events, ev)

		if c.Inverted {
			res.Anomalies = append(res.Anomalies, Anomaly{Date: key, Reason: "clock_out is not after clock_in"})
		}
		if len(c.Unparsed) > 0 {
			res.Anomalies = append(res.Anomalies, Anomaly{Date: key, Reason: "unparseable " + strings.Join(c.Unparsed, ", ")})
		}
	}

	var future []string
	for key, occ := range booked {
		if _, attended := index[key]; attended {
			continue
		}
		if occ.IsFuture && window.Contains(occ.Date) {
			future = append(future, key)
		}
	}
	slices.Sort(future)

	for _, key := range future {
		occ := booked[key]
		res.Events = append(res.Events, CalendarDayEvent{
			Date:           key,
			Status:         StatusFutureBooking,
			Reason:         ReasonUpcomingBooking,
			IsBooked:       true,
			CoworkingSpace: occ.SpaceTitle,
			BookingType:    occ.BookingType,
			DisplayText:    upcomingText(occ),
		})
	}

	return res, nil
}

// SortByDate orders events by date, keeping attendance before future bookings on ties.
func SortByDate(events []CalendarDayEvent) {
	slices.SortStableFunc(events, func(a, b CalendarDayEvent) int {
		return strings.Compare(a.Date, b.Date)
	})
}
