package reconcile

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Booking is a BookingRecord with its dates parsed.
type Booking struct {
	Record    BookingRecord
	Start     time.Time
	End       time.Time
	CreatedAt time.Time // zero when the record has no created_at
	weekdays  map[time.Weekday]bool
}

// Order decides which of two overlapping bookings is applied first. Bookings are sorted
// stably with it and expanded in that order, so the one sorting last wins a shared date.
type Order func(a, b Booking) int

// ByStartDate applies bookings by ascending start date; the later-starting booking wins.
func ByStartDate(a, b Booking) int {
	return a.Start.Compare(b.Start)
}

// ByCreatedAt applies bookings by ascending creation time; the most recently created wins.
// Bookings without created_at sort first.
func ByCreatedAt(a, b Booking) int {
	return a.CreatedAt.Compare(b.CreatedAt)
}

// ParseBooking parses the dates of a booking record.
func ParseBooking(rec BookingRecord) (Booking, error) {
	if rec.Malformed != "" {
		return Booking{}, errors.New(rec.Malformed)
	}
	start, err := ParseDate(rec.StartDate)
	if err != nil {
		return Booking{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := ParseDate(rec.EndDate)
	if err != nil {
		return Booking{}, fmt.Errorf("end_date: %w", err)
	}
	b := Booking{
		Record:   rec,
		Start:    start,
		End:      end,
		weekdays: ParseDaysOfWeek(rec.DaysOfWeek),
	}
	if rec.CreatedAt != "" {
		if t, err := ParseTimestamp(rec.CreatedAt); err == nil {
			b.CreatedAt = t
		}
	}
	return b, nil
}

// Applies reports whether the booking's weekday filter admits day.
func (b Booking) Applies(day time.Time) bool {
	if b.weekdays == nil {
		return true
	}
	return b.weekdays[day.Weekday()]
}

// Occurrences returns every date from Start to End inclusive admitted by the weekday filter.
// today decides IsFuture and is truncated to the day.
func (b Booking) Occurrences(today time.Time) []Occurrence {
	today = truncateDay(today)
	var out []Occurrence
	for d := b.Start; !d.After(b.End); d = d.AddDate(0, 0, 1) {
		if !b.Applies(d) {
			continue
		}
		out = append(out, Occurrence{
			Date:        d,
			Booking:     b.Record,
			SpaceTitle:  b.Record.SpaceTitle(),
			BookingType: b.Record.Type(),
			IsFuture:    d.After(today),
		})
	}
	return out
}

// Expand returns the dates on which a single booking is in effect.
func Expand(rec BookingRecord, today time.Time) ([]Occurrence, error) {
	b, err := ParseBooking(rec)
	if err != nil {
		return nil, err
	}
	return b.Occurrences(today), nil
}

// ExpandAll expands a set of bookings into a date-keyed map. Bookings are sorted stably
// by order (nil keeps input order) and a later booking overwrites an earlier one on the
// same date. Bookings with unparseable dates are returned as skipped.
func ExpandAll(records []BookingRecord, today time.Time, order Order) (map[string]Occurrence, []Skipped) {
	var skipped []Skipped
	bookings := make([]Booking, 0, len(records))
	for i, rec := range records {
		b, err := ParseBooking(rec)
		if err != nil {
			skipped = append(skipped, Skipped{Kind: "booking", Index: i, Reason: err.Error()})
			continue
		}
		bookings = append(bookings, b)
	}

	if order != nil {
		slices.SortStableFunc(bookings, order)
	}

	byDate := make(map[string]Occurrence)
	for _, b := range bookings {
		for _, occ := range b.Occurrences(today) {
			byDate[formatDate(occ.Date)] = occ
		}
	}
	return byDate, skipped
}
