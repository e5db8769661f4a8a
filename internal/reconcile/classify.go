package reconcile

import (
	"fmt"
	"strconv"
	"time"
)

// Thresholds are the worked-hour boundaries for present_full and the partial-day reason.
type Thresholds struct {
	FullDay    float64
	PartialDay float64
}

// DefaultThresholds are 8 hours for a full day and 4 for a partial day.
var DefaultThresholds = Thresholds{FullDay: 8, PartialDay: 4}

// Classification is the derived view of one attendance record.
type Classification struct {
	Status      Status
	Reason      Reason
	WorkedHours float64
	ClockIn     string
	ClockOut    string
	DisplayText string

	// Inverted is set when both timestamps exist and clock-out is not after clock-in.
	Inverted bool
	// Unparsed lists clock fields that were present but could not be parsed.
	Unparsed []string
}

// Classify derives status, worked hours and display text for one attendance record.
// booked tells whether the record's date is a booking occurrence.
func Classify(rec AttendanceRecord, booked bool, th Thresholds) Classification {
	var c Classification

	in, inOK := clockField(rec.ClockIn, "clock_in", &c)
	out, outOK := clockField(rec.ClockOut, "clock_out", &c)
	c.ClockIn = formatClock(in, inOK)
	c.ClockOut = formatClock(out, outOK)

	if !inOK || !outOK {
		c.Status = StatusAbsent
		if booked {
			c.Reason = ReasonAbsentBooked
			c.DisplayText = "❌ Absent on Booked Day\nNo attendance recorded"
		} else {
			c.Reason = ReasonAbsent
			c.DisplayText = "❌ Absent\nNo attendance recorded"
		}
		return c
	}

	c.WorkedHours = out.Sub(in).Hours()
	c.Inverted = !out.After(in)

	var heading string
	switch {
	case c.WorkedHours >= th.FullDay:
		c.Status, c.Reason, heading = StatusPresentFull, ReasonFullDay, "✅ Full Day Present"
	case c.WorkedHours >= th.PartialDay:
		c.Status, c.Reason, heading = StatusPresentPartial, ReasonPartialDay, "⚠️ Partial Day Present"
	default:
		c.Status, c.Reason, heading = StatusPresentPartial, ReasonShortDay, "⚠️ Short Day"
	}
	c.DisplayText = fmt.Sprintf("%s\nIn: %s Out: %s\nWorked: %.1fh", heading, c.ClockIn, c.ClockOut, c.WorkedHours)
	return c
}

func clockField(raw, name string, c *Classification) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(raw)
	if err != nil {
		c.Unparsed = append(c.Unparsed, name)
		return time.Time{}, false
	}
	return t, true
}

func formatClock(t time.Time, ok bool) string {
	if !ok {
		return "--"
	}
	return t.Format("15:04")
}

func upcomingText(occ Occurrence) string {
	hours := strconv.FormatFloat(occ.Booking.Hours(), 'f', -1, 64)
	return fmt.Sprintf("📅 Upcoming Booking\n%sh booked\n%s · %s", hours, occ.SpaceTitle, occ.BookingType)
}
