// Package report fetches attendance and bookings for employees and reconciles them.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/christopherklint97/deskcheck/internal/reconcile"
	"github.com/christopherklint97/deskcheck/internal/store"
)

// AttendanceSource returns attendance for one employee over a date range.
type AttendanceSource interface {
	GetAttendance(ctx context.Context, employeeID int, start, end time.Time) ([]reconcile.AttendanceRecord, error)
}

// BookingSource returns every booking for one employee.
type BookingSource interface {
	ListBookings(ctx context.Context, employeeID int) ([]reconcile.BookingRecord, error)
}

// HorizonBookingSource is a BookingSource whose bookings can be open-ended, such as an
// iCalendar feed. Build passes the end of the requested window as the horizon.
type HorizonBookingSource interface {
	BookingSource
	ListBookingsUntil(ctx context.Context, employeeID int, until time.Time) ([]reconcile.BookingRecord, error)
}

// Store persists snapshots and run history. *store.DB implements it.
type Store interface {
	SaveSnapshot(s *store.Snapshot) error
	LoadSnapshot(employeeID int) (*store.Snapshot, error)
	InsertRun(r *store.Run) error
}

// ErrNoSnapshot is returned for offline reports when nothing was fetched before.
var ErrNoSnapshot = errors.New("no saved snapshot for employee")

// Report is the reconciled calendar of one employee.
type Report struct {
	EmployeeID  int                          `json:"employee_id" yaml:"employee_id"`
	Employee    string                       `json:"employee,omitempty" yaml:"employee,omitempty"`
	WindowStart string                       `json:"window_start" yaml:"window_start" jsonschema:"format=date"`
	WindowEnd   string                       `json:"window_end" yaml:"window_end" jsonschema:"format=date"`
	Today       string                       `json:"today" yaml:"today" jsonschema:"format=date"`
	Offline     bool                         `json:"offline" yaml:"offline"`
	FetchedAt   time.Time                    `json:"fetched_at" yaml:"fetched_at"`
	Events      []reconcile.CalendarDayEvent `json:"events" yaml:"events"`
	Summary     reconcile.Summary            `json:"summary" yaml:"summary"`
	Skipped     []reconcile.Skipped          `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Anomalies   []reconcile.Anomaly          `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
}

// Request selects an employee and window.
type Request struct {
	EmployeeID int
	Employee   string
	Window     reconcile.Window
	Offline    bool
}

type Service struct {
	attendance AttendanceSource
	bookings   BookingSource
	store      Store
	opts       reconcile.Options
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Service)

// WithStore enables snapshots, offline mode and run history.
func WithStore(s Store) Option {
	return func(svc *Service) { svc.store = s }
}

// WithBookingSource replaces the booking source, for example with an iCalendar feed.
func WithBookingSource(b BookingSource) Option {
	return func(svc *Service) { svc.bookings = b }
}

// WithClock pins the reference date; tests use it to make reports deterministic.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// NewService builds a service that fetches from src and reconciles with opts.
// src usually implements both source interfaces; the booking side can be replaced
// with WithBookingSource.
func NewService(src AttendanceSource, opts reconcile.Options, options ...Option) *Service {
	svc := &Service{
		attendance: src,
		opts:       opts,
		now:        time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if b, ok := src.(BookingSource); ok {
		svc.bookings = b
	}
	for _, o := range options {
		o(svc)
	}
	return svc
}

// Build fetches attendance and bookings concurrently, waits for both and reconciles them.
func (s *Service) Build(ctx context.Context, req Request) (*Report, error) {
	var (
		attendance []reconcile.AttendanceRecord
		bookings   []reconcile.BookingRecord
		fetchedAt  time.Time
		err        error
	)

	if req.Offline {
		attendance, bookings, fetchedAt, err = s.loadSnapshot(req.EmployeeID)
	} else {
		attendance, bookings, err = s.fetch(ctx, req)
		fetchedAt = s.now()
	}
	if err != nil {
		return nil, err
	}

	opts := s.opts
	if opts.Today.IsZero() {
		opts.Today = s.now()
	}

	res, err := reconcile.Reconcile(attendance, bookings, req.Window, opts)
	if err != nil {
		return nil, err
	}

	for _, sk := range res.Skipped {
		s.logger.Warn("skipped malformed record", "employee_id", req.EmployeeID, "kind", sk.Kind, "index", sk.Index, "reason", sk.Reason)
	}
	for _, an := range res.Anomalies {
		s.logger.Warn("attendance anomaly", "employee_id", req.EmployeeID, "date", an.Date, "reason", an.Reason)
	}

	rep := &Report{
		EmployeeID:  req.EmployeeID,
		Employee:    req.Employee,
		WindowStart: req.Window.Start.Format("2006-01-02"),
		WindowEnd:   req.Window.End.Format("2006-01-02"),
		Today:       opts.Today.Format("2006-01-02"),
		Offline:     req.Offline,
		FetchedAt:   fetchedAt,
		Events:      res.Events,
		Summary:     reconcile.Summarize(res.Events),
		Skipped:     res.Skipped,
		Anomalies:   res.Anomalies,
	}

	s.logger.Debug("reconciled",
		"employee_id", req.EmployeeID,
		"attendance", len(attendance),
		"bookings", len(bookings),
		"events", len(rep.Events),
		"skipped", len(rep.Skipped),
		"anomalies", len(rep.Anomalies),
	)

	if s.store != nil {
		run := &store.Run{
			EmployeeID:  req.EmployeeID,
			WindowStart: rep.WindowStart,
			WindowEnd:   rep.WindowEnd,
			Counts:      rep.Summary.Counts,
			Skipped:     len(rep.Skipped),
			Anomalies:   len(rep.Anomalies),
			Offline:     req.Offline,
			CreatedAt:   s.now(),
		}
		if err := s.store.InsertRun(run); err != nil {
			s.logger.Error("recording report run", "employee_id", req.EmployeeID, "error", err)
		}
	}

	return rep, nil
}

func (s *Service) fetch(ctx context.Context, req Request) ([]reconcile.AttendanceRecord, []reconcile.BookingRecord, error) {
	if s.bookings == nil {
		return nil, nil, fmt.Errorf("no booking source configured")
	}

	var (
		attendance []reconcile.AttendanceRecord
		bookings   []reconcile.BookingRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		attendance, err = s.attendance.GetAttendance(gctx, req.EmployeeID, req.Window.Start, req.Window.End)
		if err != nil {
			return fmt.Errorf("fetching attendance for employee %d: %w", req.EmployeeID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if hs, ok := s.bookings.(HorizonBookingSource); ok {
			bookings, err = hs.ListBookingsUntil(gctx, req.EmployeeID, req.Window.End)
		} else {
			bookings, err = s.bookings.ListBookings(gctx, req.EmployeeID)
		}
		if err != nil {
			return fmt.Errorf("fetching bookings for employee %d: %w", req.EmployeeID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if s.store != nil {
		snap := &store.Snapshot{
			EmployeeID: req.EmployeeID,
			Attendance: attendance,
			Bookings:   bookings,
			FetchedAt:  s.now(),
		}
		if err := s.store.SaveSnapshot(snap); err != nil {
			s.logger.Error("saving snapshot", "employee_id", req.EmployeeID, "error", err)
		}
	}

	return attendance, bookings, nil
}

func (s *Service) loadSnapshot(employeeID int) ([]reconcile.AttendanceRecord, []reconcile.BookingRecord, time.Time, error) {
	if s.store == nil {
		return nil, nil, time.Time{}, fmt.Errorf("offline mode needs a local store: %w", ErrNoSnapshot)
	}
	snap, err := s.store.LoadSnapshot(employeeID)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("loading snapshot: %w", err)
	}
	if snap == nil {
		return nil, nil, time.Time{}, fmt.Errorf("employee %d: %w", employeeID, ErrNoSnapshot)
	}
	return snap.Attendance, snap.Bookings, snap.FetchedAt, nil
}

// BuildAll builds reports for several employees, at most limit at a time.
// Reports are returned in the order of reqs; the first error cancels the rest.
func (s *Service) BuildAll(ctx context.Context, reqs []Request, limit int) ([]*Report, error) {
	reports := make([]*Report, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			rep, err := s.Build(gctx, req)
			if err != nil {
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// OrderForPolicy maps a configured overlap policy to a booking order.
func OrderForPolicy(policy string) (reconcile.Order, error) {
	switch policy {
	case "", "start_date":
		return reconcile.ByStartDate, nil
	case "created_at":
		return reconcile.ByCreatedAt, nil
	case "input":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown overlap policy %q", policy)
}
