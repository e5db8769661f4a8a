package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/christopherklint97/deskcheck/internal/config"
	"github.com/christopherklint97/deskcheck/internal/reconcile"
	"github.com/christopherklint97/deskcheck/internal/report"
)

// Builder builds reports for several employees. *report.Service implements it.
type Builder interface {
	BuildAll(ctx context.Context, reqs []report.Request, limit int) ([]*report.Report, error)
}

// AlertStore remembers which absences were already notified. *store.DB implements it.
type AlertStore interface {
	MarkAlerted(employeeID int, date string, at time.Time) (bool, error)
}

// Target is a watched employee.
type Target struct {
	ID   int
	Name string
}

// Absence is a booked day without attendance.
type Absence struct {
	EmployeeID int
	Employee   string
	Date       string
}

const buildLimit = 4

type Scheduler struct {
	cfg     *config.Config
	builder Builder
	alerts  AlertStore
	targets []Target
	logger  *slog.Logger
	out     io.Writer

	notify  func(title, message string) error
	now     func() time.Time
	pidFile string
}

func New(cfg *config.Config, builder Builder, alerts AlertStore, targets []Target, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		cfg:     cfg,
		builder: builder,
		alerts:  alerts,
		targets: targets,
		logger:  logger,
		out:     os.Stdout,
		notify:  SendNotification,
		now:     time.Now,
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.writePID(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer s.removePID()

	interval := s.cfg.Watch.Interval()
	fmt.Fprintf(s.out, "Watching %d employees (interval: %s)\n", len(s.targets), interval)

	s.runCheck(ctx)

	for {
		nextTick := s.nextAlignedTick(s.now(), interval)
		fmt.Fprintf(s.out, "Next check at %s\n", nextTick.Format("15:04"))

		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out, "\nWatch stopped.")
			return nil
		case <-time.After(time.Until(nextTick)):
		}

		s.runCheck(ctx)
	}
}

func (s *Scheduler) runCheck(ctx context.Context) {
	absences, err := s.Check(ctx)
	if err != nil {
		s.logger.Error("watch check failed", "error", err)
		fmt.Fprintf(s.out, "Error checking attendance: %v\n", err)
		return
	}
	if len(absences) > 0 {
		fmt.Fprintf(s.out, "%d new booked-day absences\n", len(absences))
	}
}

// Check rebuilds the reports of every target and returns booked-day absences that
// were not reported before. New absences are notified once per employee.
func (s *Scheduler) Check(ctx context.Context) ([]Absence, error) {
	if len(s.targets) == 0 {
		return nil, nil
	}

	now := s.now()
	start, end := s.cfg.Report.Window(now)
	reqs := make([]report.Request, len(s.targets))
	for i, t := range s.targets {
		reqs[i] = report.Request{
			EmployeeID: t.ID,
			Employee:   t.Name,
			Window:     reconcile.Window{Start: start, End: end},
		}
	}

	reports, err := s.builder.BuildAll(ctx, reqs, buildLimit)
	if err != nil {
		return nil, fmt.Errorf("building reports: %w", err)
	}

	var fresh []Absence
	for _, rep := range reports {
		var dates []string
		for _, e := range rep.Events {
			if e.Status != reconcile.StatusAbsent || !e.IsBooked {
				continue
			}
			isNew, err := s.alerts.MarkAlerted(rep.EmployeeID, e.Date, now)
			if err != nil {
				return fresh, fmt.Errorf("recording alert: %w", err)
			}
			if !isNew {
				continue
			}
			dates = append(dates, e.Date)
			fresh = append(fresh, Absence{EmployeeID: rep.EmployeeID, Employee: rep.Employee, Date: e.Date})
		}

		if len(dates) == 0 {
			continue
		}
		s.logger.Info("new booked-day absences", "employee_id", rep.EmployeeID, "dates", dates)
		if s.cfg.Notifications.Enabled {
			name := rep.Employee
			if name == "" {
				name = fmt.Sprintf("Employee %d", rep.EmployeeID)
			}
			msg := fmt.Sprintf("%s missed booked days: %s", name, strings.Join(dates, ", "))
			if err := s.notify("deskcheck", msg); err != nil {
				s.logger.Warn("sending notification", "error", err)
			}
		}
	}

	return fresh, nil
}

func (s *Scheduler) nextAlignedTick(now time.Time, interval time.Duration) time.Time {
	mins := int(interval.Minutes())
	if mins <= 0 {
		mins = 60
	}

	// Ticks fall on multiples of the interval counted from midnight.
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	elapsed := now.Hour()*60 + now.Minute()
	next := ((elapsed / mins) + 1) * mins

	return dayStart.Add(time.Duration(next) * time.Minute)
}

func pidPath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "deskcheck.pid"), nil
}

func (s *Scheduler) pidPath() (string, error) {
	if s.pidFile != "" {
		return s.pidFile, nil
	}
	return pidPath()
}

func (s *Scheduler) writePID() error {
	path, err := s.pidPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (s *Scheduler) removePID() {
	if path, err := s.pidPath(); err == nil {
		os.Remove(path)
	}
}

// ReadPID returns the PID of a running watch process.
func ReadPID() (int, error) {
	path, err := pidPath()
	if err != nil {
		return 0, err
	}
	return readPIDFile(path)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("no running watch found")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file")
	}

	return pid, nil
}
