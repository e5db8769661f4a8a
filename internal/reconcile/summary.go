package reconcile

// Summary aggregates a set of events for reporting.
type Summary struct {
	Counts         map[Status]int `json:"counts" yaml:"counts"`
	Days           int            `json:"days" yaml:"days"`
	BookedDays     int            `json:"booked_days" yaml:"booked_days"`
	BookedAttended int            `json:"booked_attended" yaml:"booked_attended"`
	BookedAbsences int            `json:"booked_absences" yaml:"booked_absences"`
	UpcomingDays   int            `json:"upcoming_days" yaml:"upcoming_days"`
	WorkedHours    float64        `json:"worked_hours" yaml:"worked_hours"`
	// AttendanceRate is attended booked days over attended plus absent booked days,
	// or 0 when there are none.
	AttendanceRate float64 `json:"attendance_rate" yaml:"attendance_rate"`
}

// Summarize counts events by status and computes booked-day attendance.
// Negative worked hours from inverted clock pairs are not added to WorkedHours.
func Summarize(events []CalendarDayEvent) Summary {
	s := Summary{Counts: make(map[Status]int, len(Statuses))}
	for _, st := range Statuses {
		s.Counts[st] = 0
	}

	for _, e := range events {
		s.Counts[e.Status]++
		s.Days++
		if e.WorkedHours > 0 {
			s.WorkedHours += e.WorkedHours
		}
		if !e.IsBooked {
			continue
		}
		s.BookedDays++
		switch e.Status {
		case StatusPresentFull, StatusPresentPartial:
			s.BookedAttended++
		case StatusAbsent:
			s.BookedAbsences++
		case StatusFutureBooking:
			s.UpcomingDays++
		}
	}

	if past := s.BookedAttended + s.BookedAbsences; past > 0 {
		s.AttendanceRate = float64(s.BookedAttended) / float64(past)
	}
	return s
}
