package report

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherklint97/deskcheck/internal/reconcile"
	"github.com/christopherklint97/deskcheck/internal/store"
)

type fakeSource struct {
	mu         sync.Mutex
	attendance map[int][]reconcile.AttendanceRecord
	bookings   map[int][]reconcile.BookingRecord
	err        error
	calls      atomic.Int32
}

func (f *fakeSource) GetAttendance(_ context.Context, id int, _, _ time.Time) ([]reconcile.AttendanceRecord, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attendance[id], nil
}

func (f *fakeSource) ListBookings(_ context.Context, id int) ([]reconcile.BookingRecord, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookings[id], nil
}

var (
	today  = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	window = reconcile.Window{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	}
)

func newSource() *fakeSource {
	return &fakeSource{
		attendance: map[int][]reconcile.AttendanceRecord{
			1: {
				{Date: "2024-03-04", ClockIn: "2024-03-04T09:00:00", ClockOut: "2024-03-04T17:00:00"},
				{Date: "2024-03-05", ClockIn: "2024-03-05T17:00:00", ClockOut: "2024-03-05T09:00:00"},
			},
		},
		bookings: map[int][]reconcile.BookingRecord{
			1: {
				{ID: 10, StartDate: "2024-03-04", EndDate: "2024-03-08", DaysOfWeek: "mon,tue,thu"},
				{ID: 11, StartDate: "garbage", EndDate: "2024-03-08"},
			},
			2: {
				{ID: 20, StartDate: "2024-03-07", EndDate: "2024-03-07"},
			},
		},
	}
}

func openStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenPath(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBuild(t *testing.T) {
	src := newSource()
	db := openStore(t)
	svc := NewService(src, reconcile.DefaultOptions(), WithStore(db), WithClock(func() time.Time { return today }))

	rep, err := svc.Build(context.Background(), Request{EmployeeID: 1, Employee: "Ayaz", Window: window})
	require.NoError(t, err)

	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, "2024-03-01", rep.WindowStart)
	assert.Equal(t, "2024-03-10", rep.WindowEnd)
	assert.Equal(t, "2024-03-06", rep.Today)
	assert.False(t, rep.Offline)

	// 03-04 full, 03-05 inverted (booked, negative hours), 03-07 upcoming.
	require.Len(t, rep.Events, 3)
	assert.Equal(t, reconcile.StatusPresentFull, rep.Events[0].Status)
	assert.Equal(t, "2024-03-05", rep.Events[1].Date)
	assert.Equal(t, reconcile.StatusFutureBooking, rep.Events[2].Status)
	assert.Equal(t, "2024-03-07", rep.Events[2].Date)

	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, "booking", rep.Skipped[0].Kind)
	require.Len(t, rep.Anomalies, 1)
	assert.Equal(t, "2024-03-05", rep.Anomalies[0].Date)

	assert.Equal(t, 1, rep.Summary.UpcomingDays)

	snap, err := db.LoadSnapshot(1)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, snap.Attendance, 2)
	assert.Len(t, snap.Bookings, 2)

	runs, err := db.ListRuns(1, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Skipped)
	assert.Equal(t, 1, runs[0].Anomalies)
	assert.Equal(t, 1, runs[0].Counts[reconcile.StatusFutureBooking])
}

func TestBuild_Offline(t *testing.T) {
	src := newSource()
	db := openStore(t)
	svc := NewService(src, reconcile.DefaultOptions(), WithStore(db), WithClock(func() time.Time { return today }))

	_, err := svc.Build(context.Background(), Request{EmployeeID: 1, Window: window, Offline: true})
	require.ErrorIs(t, err, ErrNoSnapshot)

	online, err := svc.Build(context.Background(), Request{EmployeeID: 1, Window: window})
	require.NoError(t, err)
	calls := src.calls.Load()

	src.err = errors.New("console down")
	offline, err := svc.Build(context.Background(), Request{EmployeeID: 1, Window: window, Offline: true})
	require.NoError(t, err)
	assert.Equal(t, calls, src.calls.Load(), "offline mode does not call the source")
	assert.True(t, offline.Offline)
	assert.Equal(t, online.Events, offline.Events)
	assert.True(t, offline.FetchedAt.Equal(today))
}

func TestBuild_OfflineWithoutStore(t *testing.T) {
	svc := NewService(newSource(), reconcile.DefaultOptions())
	_, err := svc.Build(context.Background(), Request{EmployeeID: 1, Window: window, Offline: true})
	assert.Error(t, err)
}

func TestBuild_FetchError(t *testing.T) {
	src := newSource()
	src.err = errors.New("boom")
	svc := NewService(src, reconcile.DefaultOptions(), WithClock(func() time.Time { return today }))

	_, err := svc.Build(context.Background(), Request{EmployeeID: 1, Window: window})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching attendance for employee 1")
}

func TestBuild_InvalidWindow(t *testing.T) {
	svc := NewService(newSource(), reconcile.DefaultOptions(), WithClock(func() time.Time { return today }))
	_, err := svc.Build(context.Background(), Request{
		EmployeeID: 1,
		Window:     reconcile.Window{Start: window.End, End: window.Start},
	})
	assert.ErrorIs(t, err, reconcile.ErrInvalidArgument)
}

type staticBookings []reconcile.BookingRecord

func (s staticBookings) ListBookings(context.Context, int) ([]reconcile.BookingRecord, error) {
	return s, nil
}

func TestBuild_BookingSourceOverride(t *testing.T) {
	svc := NewService(newSource(), reconcile.DefaultOptions(),
		WithClock(func() time.Time { return today }),
		WithBookingSource(staticBookings{{StartDate: "2024-03-08", EndDate: "2024-03-09"}}),
	)

	rep, err := svc.Build(context.Background(), Request{EmployeeID: 2, Window: window})
	require.NoError(t, err)
	require.Len(t, rep.Events, 2)
	assert.Equal(t, "2024-03-08", rep.Events[0].Date)
	assert.Equal(t, "2024-03-09", rep.Events[1].Date)
}

type horizonBookings struct {
	mu     sync.Mutex
	untils []time.Time
}

func (h *horizonBookings) ListBookings(context.Context, int) ([]reconcile.BookingRecord, error) {
	return nil, errors.New("horizon not passed")
}

func (h *horizonBookings) ListBookingsUntil(_ context.Context, _ int, until time.Time) ([]reconcile.BookingRecord, error) {
	h.mu.Lock()
	h.untils = append(h.untils, until)
	h.mu.Unlock()
	return []reconcile.BookingRecord{{StartDate: "2024-03-07", EndDate: until.Format("2006-01-02")}}, nil
}

func TestBuild_HorizonFollowsRequestWindow(t *testing.T) {
	hb := &horizonBookings{}
	svc := NewService(newSource(), reconcile.DefaultOptions(),
		WithClock(func() time.Time { return today }),
		WithBookingSource(hb),
	)

	rep, err := svc.Build(context.Background(), Request{EmployeeID: 2, Window: window})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", rep.Events[len(rep.Events)-1].Date)

	later := reconcile.Window{Start: window.Start, End: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)}
	rep, err = svc.Build(context.Background(), Request{EmployeeID: 2, Window: later})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-20", rep.Events[len(rep.Events)-1].Date)

	assert.Equal(t, []time.Time{window.End, later.End}, hb.untils)
}

func TestBuildAll(t *testing.T) {
	svc := NewService(newSource(), reconcile.DefaultOptions(), WithClock(func() time.Time { return today }))

	reports, err := svc.BuildAll(context.Background(), []Request{
		{EmployeeID: 2, Window: window},
		{EmployeeID: 1, Window: window},
		{EmployeeID: 3, Window: window},
	}, 2)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, 2, reports[0].EmployeeID)
	assert.Len(t, reports[0].Events, 1)
	assert.Equal(t, 1, reports[1].EmployeeID)
	assert.Empty(t, reports[2].Events)
}

func TestBuildAll_Error(t *testing.T) {
	src := newSource()
	src.err = errors.New("boom")
	svc := NewService(src, reconcile.DefaultOptions(), WithClock(func() time.Time { return today }))

	_, err := svc.BuildAll(context.Background(), []Request{{EmployeeID: 1, Window: window}}, 0)
	assert.Error(t, err)
}

func TestOrderForPolicy(t *testing.T) {
	for _, p := range []string{"", "start_date", "created_at"} {
		o, err := OrderForPolicy(p)
		require.NoError(t, err, p)
		assert.NotNil(t, o, p)
	}

	o, err := OrderForPolicy("input")
	require.NoError(t, err)
	assert.Nil(t, o)

	_, err = OrderForPolicy("random")
	assert.Error(t, err)
}
