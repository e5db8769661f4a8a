package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func window(start, end string) Window {
	return Window{Start: day(start), End: day(end)}
}

func optsAt(today string) Options {
	o := DefaultOptions()
	o.Today = day(today)
	return o
}

func booking(start, end, days string) BookingRecord {
	return BookingRecord{StartDate: start, EndDate: end, DaysOfWeek: days}
}

func TestExpand_WeekdayFilter(t *testing.T) {
	occ, err := Expand(booking("2024-01-01", "2024-01-07", "mon,wed"), day("2023-12-01"))
	require.NoError(t, err)

	var dates []string
	for _, o := range occ {
		dates = append(dates, formatDate(o.Date))
		assert.True(t, o.IsFuture)
		assert.Equal(t, DefaultSpaceTitle, o.SpaceTitle)
		assert.Equal(t, DefaultBookingType, o.BookingType)
	}
	assert.Equal(t, []string{"2024-01-01", "2024-01-03"}, dates)
}

func TestExpand_DaysOfWeekParsing(t *testing.T) {
	tests := []struct {
		name string
		days string
		want int
	}{
		{"absent means every day", "", 7},
		{"blank means every day", "   ", 7},
		{"case and spaces", " MON , Wed ", 2},
		{"full names", "Monday,Friday", 2},
		{"unknown tokens ignored", "mon,funday", 1},
		{"nothing recognised", "xyz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ, err := Expand(booking("2024-01-01", "2024-01-07", tt.days), day("2024-01-01"))
			require.NoError(t, err)
			assert.Len(t, occ, tt.want)
		})
	}
}

func TestExpand_Edges(t *testing.T) {
	t.Run("end before start is empty", func(t *testing.T) {
		occ, err := Expand(booking("2024-01-07", "2024-01-01", ""), day("2024-01-01"))
		require.NoError(t, err)
		assert.Empty(t, occ)
	})

	t.Run("single day", func(t *testing.T) {
		occ, err := Expand(booking("2024-01-03", "2024-01-03", ""), day("2024-01-01"))
		require.NoError(t, err)
		require.Len(t, occ, 1)
		assert.Equal(t, "2024-01-03", formatDate(occ[0].Date))
	})

	t.Run("today is not future", func(t *testing.T) {
		occ, err := Expand(booking("2024-01-01", "2024-01-02", ""), time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Len(t, occ, 2)
		assert.False(t, occ[0].IsFuture)
		assert.True(t, occ[1].IsFuture)
	})

	t.Run("malformed dates", func(t *testing.T) {
		_, err := Expand(booking("01/02/2024", "2024-01-07", ""), day("2024-01-01"))
		assert.Error(t, err)
	})

	t.Run("timestamp dates are truncated", func(t *testing.T) {
		occ, err := Expand(booking("2024-01-01T00:00:00", "2024-01-02T18:30:00Z", ""), day("2024-01-01"))
		require.NoError(t, err)
		assert.Len(t, occ, 2)
	})
}

func TestExpandAll_LastWriteWins(t *testing.T) {
	a := booking("2024-01-01", "2024-01-05", "")
	a.CoworkingSpace = &CoworkingSpace{Title: "Alpha"}
	a.CreatedAt = "2024-01-10T00:00:00Z"
	b := booking("2024-01-03", "2024-01-04", "")
	b.CoworkingSpace = &CoworkingSpace{Title: "Beta"}
	b.CreatedAt = "2023-12-01T00:00:00Z"

	today := day("2023-12-31")

	t.Run("input order", func(t *testing.T) {
		got, skipped := ExpandAll([]BookingRecord{b, a}, today, nil)
		assert.Empty(t, skipped)
		assert.Equal(t, "Alpha", got["2024-01-03"].SpaceTitle)

		got, _ = ExpandAll([]BookingRecord{a, b}, today, nil)
		assert.Equal(t, "Beta", got["2024-01-03"].SpaceTitle)
		assert.Equal(t, "Alpha", got["2024-01-05"].SpaceTitle)
	})

	t.Run("start date order ignores input order", func(t *testing.T) {
		got, _ := ExpandAll([]BookingRecord{b, a}, today, ByStartDate)
		assert.Equal(t, "Beta", got["2024-01-03"].SpaceTitle)
		assert.Equal(t, "Alpha", got["2024-01-02"].SpaceTitle)
	})

	t.Run("created at order lets the newest win", func(t *testing.T) {
		got, _ := ExpandAll([]BookingRecord{a, b}, today, ByCreatedAt)
		assert.Equal(t, "Alpha", got["2024-01-03"].SpaceTitle)
	})

	t.Run("malformed booking is skipped", func(t *testing.T) {
		bad := booking("nope", "2024-01-02", "")
		got, skipped := ExpandAll([]BookingRecord{bad, a}, today, ByStartDate)
		require.Len(t, skipped, 1)
		assert.Equal(t, "booking", skipped[0].Kind)
		assert.Equal(t, 0, skipped[0].Index)
		assert.Len(t, got, 5)
	})
}

func clockPair(date string, hours float64) AttendanceRecord {
	in := day(date).Add(9 * time.Hour)
	out := in.Add(time.Duration(hours * float64(time.Hour)))
	return AttendanceRecord{
		Date:     date,
		ClockIn:  in.Format(time.RFC3339Nano),
		ClockOut: out.Format(time.RFC3339Nano),
	}
}

func TestClassify_Thresholds(t *testing.T) {
	tests := []struct {
		hours  float64
		status Status
		reason Reason
	}{
		{8.0, StatusPresentFull, ReasonFullDay},
		{9.25, StatusPresentFull, ReasonFullDay},
		{7.999, StatusPresentPartial, ReasonPartialDay},
		{4.0, StatusPresentPartial, ReasonPartialDay},
		{3.999, StatusPresentPartial, ReasonShortDay},
		{0, StatusPresentPartial, ReasonShortDay},
		{-2, StatusPresentPartial, ReasonShortDay},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.3fh", tt.hours), func(t *testing.T) {
			c := Classify(clockPair("2024-03-04", tt.hours), false, DefaultThresholds)
			assert.Equal(t, tt.status, c.Status)
			assert.Equal(t, tt.reason, c.Reason)
			assert.InDelta(t, tt.hours, c.WorkedHours, 1e-6)
			assert.Equal(t, tt.hours <= 0, c.Inverted)
		})
	}
}

func TestClassify_DisplayText(t *testing.T) {
	c := Classify(AttendanceRecord{
		Date:     "2024-03-04",
		ClockIn:  "2024-03-04T09:00:00",
		ClockOut: "2024-03-04T17:30:00",
	}, true, DefaultThresholds)
	assert.Equal(t, "✅ Full Day Present\nIn: 09:00 Out: 17:30\nWorked: 8.5h", c.DisplayText)

	c = Classify(AttendanceRecord{Date: "2024-03-04", ClockIn: "2024-03-04T09:00:00"}, true, DefaultThresholds)
	assert.Equal(t, StatusAbsent, c.Status)
	assert.Equal(t, ReasonAbsentBooked, c.Reason)
	assert.Equal(t, "❌ Absent on Booked Day\nNo attendance recorded", c.DisplayText)
	assert.Equal(t, "09:00", c.ClockIn)
	assert.Equal(t, "--", c.ClockOut)
	assert.Zero(t, c.WorkedHours)

	c = Classify(AttendanceRecord{Date: "2024-03-04"}, false, DefaultThresholds)
	assert.Equal(t, ReasonAbsent, c.Reason)
	assert.Equal(t, "❌ Absent\nNo attendance recorded", c.DisplayText)

	c = Classify(AttendanceRecord{Date: "2024-03-04", ClockIn: "garbage", ClockOut: "2024-03-04T17:00:00"}, false, DefaultThresholds)
	assert.Equal(t, StatusAbsent, c.Status)
	assert.Equal(t, []string{"clock_in"}, c.Unparsed)
}

func TestClassify_CustomThresholds(t *testing.T) {
	c := Classify(clockPair("2024-03-04", 6), false, Thresholds{FullDay: 6, PartialDay: 3})
	assert.Equal(t, StatusPresentFull, c.Status)
}

func TestReconcile_Scenarios(t *testing.T) {
	bookings := []BookingRecord{{
		StartDate:      "2024-03-01",
		EndDate:        "2024-03-15",
		CoworkingSpace: &CoworkingSpace{Title: "Hub Central"},
		BookingType:    "weekly",
	}}

	t.Run("full day on booked date", func(t *testing.T) {
		att := []AttendanceRecord{{Date: "2024-03-04", ClockIn: "2024-03-04T09:00:00", ClockOut: "2024-03-04T17:30:00"}}
		res, err := Reconcile(att, bookings, window("2024-03-01", "2024-03-31"), optsAt("2024-03-20"))
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		ev := res.Events[0]
		assert.Equal(t, StatusPresentFull, ev.Status)
		assert.True(t, ev.IsBooked)
		assert.InDelta(t, 8.5, ev.WorkedHours, 1e-9)
		assert.Equal(t, "Hub Central", ev.CoworkingSpace)
		assert.Equal(t, "weekly", ev.BookingType)
	})

	t.Run("absent on booked day", func(t *testing.T) {
		att := []AttendanceRecord{{Date: "2024-03-05"}}
		res, err := Reconcile(att, bookings, window("2024-03-01", "2024-03-31"), optsAt("2024-03-20"))
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		assert.Equal(t, StatusAbsent, res.Events[0].Status)
		assert.Contains(t, res.Events[0].DisplayText, "Absent on Booked Day")
	})

	t.Run("future booking synthesized", func(t *testing.T) {
		b := []BookingRecord{{StartDate: "2024-03-10", EndDate: "2024-03-10"}}
		res, err := Reconcile(nil, b, window("2024-03-01", "2024-03-31"), optsAt("2024-03-01"))
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		ev := res.Events[0]
		assert.Equal(t, "2024-03-10", ev.Date)
		assert.Equal(t, StatusFutureBooking, ev.Status)
		assert.True(t, ev.IsBooked)
		assert.Zero(t, ev.WorkedHours)
		assert.Equal(t, "📅 Upcoming Booking\n8h booked\nCoworking Space · daily", ev.DisplayText)
	})
}

func TestReconcile_FutureSynthesis(t *testing.T) {
	half := 4.5
	b := []BookingRecord{{StartDate: "2024-03-01", EndDate: "2024-03-05", DurationPerDay: &half}}

	res, err := Reconcile(nil, b, window("2024-02-01", "2024-03-31"), optsAt("2024-03-03"))
	require.NoError(t, err)

	var dates []string
	for _, e := range res.Events {
		dates = append(dates, e.Date)
		assert.Contains(t, e.DisplayText, "4.5h booked")
	}
	// 03-01..03-03 are on or before today: no synthesized event.
	assert.Equal(t, []string{"2024-03-04", "2024-03-05"}, dates)
}

func TestReconcile_WindowClipping(t *testing.T) {
	b := []BookingRecord{{StartDate: "2024-03-01", EndDate: "2024-04-30"}}
	res, err := Reconcile(nil, b, window("2024-03-10", "2024-03-12"), optsAt("2024-02-01"))
	require.NoError(t, err)

	var dates []string
	for _, e := range res.Events {
		dates = append(dates, e.Date)
	}
	assert.Equal(t, []string{"2024-03-10", "2024-03-11", "2024-03-12"}, dates)
}

func TestReconcile_AttendanceNotDuplicated(t *testing.T) {
	att := []AttendanceRecord{
		{Date: "2024-03-04"},
		clockPair("2024-03-05", 5),
		clockPair("2024-03-04", 9),
	}
	b := []BookingRecord{{StartDate: "2024-03-04", EndDate: "2024-03-06"}}
	res, err := Reconcile(att, b, window("2024-03-01", "2024-03-31"), optsAt("2024-03-01"))
	require.NoError(t, err)

	seen := map[string]map[Status]int{}
	for _, e := range res.Events {
		if seen[e.Date] == nil {
			seen[e.Date] = map[Status]int{}
		}
		seen[e.Date][e.Status]++
	}
	for date, statuses := range seen {
		for st, n := range statuses {
			assert.Equalf(t, 1, n, "%s has %d %s events", date, n, st)
		}
	}

	require.Len(t, res.Events, 3)
	assert.Equal(t, "2024-03-04", res.Events[0].Date)
	assert.Equal(t, StatusPresentFull, res.Events[0].Status, "last record for a date wins")
	assert.Equal(t, "2024-03-05", res.Events[1].Date)
	assert.Equal(t, "2024-03-06", res.Events[2].Date)
	assert.Equal(t, StatusFutureBooking, res.Events[2].Status)
}

func TestReconcile_MalformedRecordsSkipped(t *testing.T) {
	att := []AttendanceRecord{
		{Date: "not-a-date"},
		clockPair("2024-03-04", 8),
		{Date: ""},
	}
	b := []BookingRecord{{StartDate: "2024-03-04", EndDate: "bad"}}
	res, err := Reconcile(att, b, window("2024-03-01", "2024-03-31"), optsAt("2024-03-10"))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.False(t, res.Events[0].IsBooked)
	assert.Len(t, res.Skipped, 3)
}

func TestReconcile_SourceMalformedRecordsSkipped(t *testing.T) {
	att := []AttendanceRecord{
		clockPair("2024-03-04", 8),
		{Malformed: "decoding attendance record: bad element"},
	}
	b := []BookingRecord{
		booking("2024-03-01", "2024-03-31", "mon"),
		{StartDate: "2024-03-01", EndDate: "2024-03-31", Malformed: "decoding booking: bad element"},
	}
	res, err := Reconcile(att, b, window("2024-03-01", "2024-03-31"), optsAt("2024-03-10"))
	require.NoError(t, err)

	require.Len(t, res.Skipped, 2)
	assert.Contains(t, res.Skipped, Skipped{Kind: "booking", Index: 1, Reason: "decoding booking: bad element"})
	assert.Contains(t, res.Skipped, Skipped{Kind: "attendance", Index: 1, Reason: "decoding attendance record: bad element"})

	require.NotEmpty(t, res.Events)
	assert.True(t, res.Events[0].IsBooked)
	assert.Equal(t, StatusFutureBooking, res.Events[len(res.Events)-1].Status)
}

func TestBookingHours_NonPositiveDefaults(t *testing.T) {
	zero, negative, six := 0.0, -2.0, 6.0
	assert.Equal(t, DefaultDurationPerDay, BookingRecord{}.Hours())
	assert.Equal(t, DefaultDurationPerDay, BookingRecord{DurationPerDay: &zero}.Hours())
	assert.Equal(t, DefaultDurationPerDay, BookingRecord{DurationPerDay: &negative}.Hours())
	assert.Equal(t, 6.0, BookingRecord{DurationPerDay: &six}.Hours())

	res, err := Reconcile(nil, []BookingRecord{{StartDate: "2024-03-20", EndDate: "2024-03-20", DurationPerDay: &zero}},
		window("2024-03-01", "2024-03-31"), optsAt("2024-03-10"))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Contains(t, res.Events[0].DisplayText, "8h booked")
}

func TestReconcile_Anomalies(t *testing.T) {
	att := []AttendanceRecord{clockPair("2024-03-04", -1), clockPair("2024-03-05", 8)}
	res, err := Reconcile(att, nil, window("2024-03-01", "2024-03-31"), optsAt("2024-03-10"))
	require.NoError(t, err)
	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, "2024-03-04", res.Anomalies[0].Date)
	assert.Equal(t, ReasonShortDay, res.Events[0].Reason)
	assert.InDelta(t, -1, res.Events[0].WorkedHours, 1e-9)
}

func TestReconcile_EmptyInputs(t *testing.T) {
	res, err := Reconcile(nil, nil, window("2024-03-01", "2024-03-31"), optsAt("2024-03-10"))
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Empty(t, res.Skipped)
}

func TestReconcile_InvalidWindow(t *testing.T) {
	_, err := Reconcile(nil, nil, window("2024-03-31", "2024-03-01"), optsAt("2024-03-10"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "window", argErr.Field)

	_, err = Reconcile(nil, nil, Window{End: day("2024-03-01")}, optsAt("2024-03-10"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// A single-day window is valid.
	_, err = Reconcile(nil, nil, window("2024-03-01", "2024-03-01"), optsAt("2024-03-10"))
	assert.NoError(t, err)
}

func TestReconcile_Idempotent(t *testing.T) {
	att := []AttendanceRecord{clockPair("2024-03-04", 8.5), {Date: "2024-03-05"}, clockPair("2024-03-06", 3)}
	b := []BookingRecord{
		{StartDate: "2024-03-01", EndDate: "2024-03-31", DaysOfWeek: "mon,tue,wed,thu,fri"},
		{StartDate: "2024-03-11", EndDate: "2024-03-15", CoworkingSpace: &CoworkingSpace{Title: "Annex"}},
	}
	w := window("2024-03-01", "2024-03-31")
	opts := optsAt("2024-03-07")

	first, err := Reconcile(att, b, w, opts)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Reconcile(att, b, w, opts)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSortByDate(t *testing.T) {
	events := []CalendarDayEvent{
		{Date: "2024-03-05", Status: StatusAbsent},
		{Date: "2024-03-01", Status: StatusPresentFull},
		{Date: "2024-03-03", Status: StatusFutureBooking},
	}
	SortByDate(events)
	assert.Equal(t, "2024-03-01", events[0].Date)
	assert.Equal(t, "2024-03-05", events[2].Date)
	assert.Equal(t, day("2024-03-03"), events[1].Day())
}

func TestSummarize(t *testing.T) {
	events := []CalendarDayEvent{
		{Date: "2024-03-04", Status: StatusPresentFull, WorkedHours: 8.5, IsBooked: true},
		{Date: "2024-03-05", Status: StatusAbsent, IsBooked: true},
		{Date: "2024-03-06", Status: StatusPresentPartial, WorkedHours: 5},
		{Date: "2024-03-07", Status: StatusPresentPartial, WorkedHours: -1, IsBooked: true},
		{Date: "2024-03-08", Status: StatusFutureBooking, IsBooked: true},
	}
	s := Summarize(events)
	assert.Equal(t, 5, s.Days)
	assert.Equal(t, 1, s.Counts[StatusPresentFull])
	assert.Equal(t, 2, s.Counts[StatusPresentPartial])
	assert.Equal(t, 4, s.BookedDays)
	assert.Equal(t, 2, s.BookedAttended)
	assert.Equal(t, 1, s.BookedAbsences)
	assert.Equal(t, 1, s.UpcomingDays)
	assert.InDelta(t, 13.5, s.WorkedHours, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.AttendanceRate, 1e-9)

	empty := Summarize(nil)
	assert.Zero(t, empty.AttendanceRate)
	assert.Equal(t, 0, empty.Counts[StatusAbsent])
}
