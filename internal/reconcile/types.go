package reconcile

import "time"

// Status is the machine-readable classification of a calendar day.
type Status string

const (
	StatusPresentFull    Status = "present_full"
	StatusPresentPartial Status = "present_partial"
	StatusAbsent         Status = "absent"
	StatusFutureBooking  Status = "future_booking"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPresentFull, StatusPresentPartial, StatusAbsent, StatusFutureBooking}

// Reason is the display sub-reason behind a Status. Two reasons may share a status
// (partial_day and short_day are both present_partial).
type Reason string

const (
	ReasonFullDay         Reason = "full_day"
	ReasonPartialDay      Reason = "partial_day"
	ReasonShortDay        Reason = "short_day"
	ReasonAbsentBooked    Reason = "absent_booked"
	ReasonAbsent          Reason = "absent"
	ReasonUpcomingBooking Reason = "upcoming_booking"
)

const (
	DefaultSpaceTitle     = "Coworking Space"
	DefaultBookingType    = "daily"
	DefaultDurationPerDay = 8.0
)

// AttendanceRecord is one day of clock data as returned by the attendance source.
// Empty clock fields mean the timestamp is absent. Malformed is set by sources that
// could not decode the element; such records are skipped with that reason.
type AttendanceRecord struct {
	Date      string `json:"date" yaml:"date"`
	ClockIn   string `json:"clock_in,omitempty" yaml:"clock_in,omitempty"`
	ClockOut  string `json:"clock_out,omitempty" yaml:"clock_out,omitempty"`
	Malformed string `json:"malformed,omitempty" yaml:"malformed,omitempty"`
}

// CoworkingSpace is the subset of a coworking listing carried on a booking.
type CoworkingSpace struct {
	Title string `json:"title" yaml:"title"`
}

// BookingRecord is a coworking booking as returned by the booking source.
type BookingRecord struct {
	ID             int             `json:"id,omitempty" yaml:"id,omitempty"`
	StartDate      string          `json:"start_date" yaml:"start_date"`
	EndDate        string          `json:"end_date" yaml:"end_date"`
	DaysOfWeek     string          `json:"days_of_week,omitempty" yaml:"days_of_week,omitempty"` // e.g. "mon,wed"
	CoworkingSpace *CoworkingSpace `json:"coworking_space,omitempty" yaml:"coworking_space,omitempty"`
	BookingType    string          `json:"booking_type,omitempty" yaml:"booking_type,omitempty"`
	DurationPerDay *float64        `json:"duration_per_day,omitempty" yaml:"duration_per_day,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Malformed      string          `json:"malformed,omitempty" yaml:"malformed,omitempty"`
}

// SpaceTitle returns the coworking space title or the default label.
func (b BookingRecord) SpaceTitle() string {
	if b.CoworkingSpace == nil || b.CoworkingSpace.Title == "" {
		return DefaultSpaceTitle
	}
	return b.CoworkingSpace.Title
}

// Type returns the booking type or the default label.
func (b BookingRecord) Type() string {
	if b.BookingType == "" {
		return DefaultBookingType
	}
	return b.BookingType
}

// Hours returns the expected hours per day. Missing or non-positive values mean 8.
func (b BookingRecord) Hours() float64 {
	if b.DurationPerDay == nil || *b.DurationPerDay <= 0 {
		return DefaultDurationPerDay
	}
	return *b.DurationPerDay
}

// CalendarDayEvent is one reconciled day, ready for display.
type CalendarDayEvent struct {
	Date           string  `json:"date" yaml:"date" jsonschema:"format=date"`
	Status         Status  `json:"status" yaml:"status" jsonschema:"enum=present_full,enum=present_partial,enum=absent,enum=future_booking"`
	Reason         Reason  `json:"reason" yaml:"reason"`
	WorkedHours    float64 `json:"worked_hours" yaml:"worked_hours"`
	IsBooked       bool    `json:"is_booked" yaml:"is_booked"`
	CoworkingSpace string  `json:"coworking_space,omitempty" yaml:"coworking_space,omitempty"`
	BookingType    string  `json:"booking_type,omitempty" yaml:"booking_type,omitempty"`
	ClockIn        string  `json:"clock_in,omitempty" yaml:"clock_in,omitempty"`
	ClockOut       string  `json:"clock_out,omitempty" yaml:"clock_out,omitempty"`
	DisplayText    string  `json:"display_text" yaml:"display_text"`
}

// Day returns the event date at midnight UTC.
func (e CalendarDayEvent) Day() time.Time {
	t, _ := time.Parse(dateLayout, e.Date)
	return t
}

// Occurrence is a single date on which a booking is in effect.
type Occurrence struct {
	Date        time.Time
	Booking     BookingRecord
	SpaceTitle  string
	BookingType string
	IsFuture    bool
}

// Window is the inclusive reporting range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether day falls within the window at day granularity.
func (w Window) Contains(day time.Time) bool {
	d := truncateDay(day)
	return !d.Before(truncateDay(w.Start)) && !d.After(truncateDay(w.End))
}

// Skipped describes an input record that was dropped.
type Skipped struct {
	Kind   string `json:"kind" yaml:"kind"` // "attendance" or "booking"
	Index  int    `json:"index" yaml:"index"`
	Reason string `json:"reason" yaml:"reason"`
}

// Anomaly flags a record that was kept but looks wrong, such as an inverted clock pair.
type Anomaly struct {
	Date   string `json:"date" yaml:"date"`
	Reason string `json:"reason" yaml:"reason"`
}

// Result is the output of Reconcile.
type Result struct {
	Events    []CalendarDayEvent `json:"events" yaml:"events"`
	Skipped   []Skipped          `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Anomalies []Anomaly          `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
}
