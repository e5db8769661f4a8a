package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/christopherklint97/deskcheck/internal/reconcile"
)

// Run records one reconciliation for history.
type Run struct {
	ID          string
	EmployeeID  int
	WindowStart string
	WindowEnd   string
	Counts      map[reconcile.Status]int
	Skipped     int
	Anomalies   int
	Offline     bool
	CreatedAt   time.Time
}

// InsertRun stores r, assigning an ID and creation time when unset.
func (db *DB) InsertRun(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := db.Exec(
		`INSERT INTO report_runs (id, employee_id, window_start, window_end,
			present_full, present_partial, absent, future_booking, skipped, anomalies, offline, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.EmployeeID, r.WindowStart, r.WindowEnd,
		r.Counts[reconcile.StatusPresentFull],
		r.Counts[reconcile.StatusPresentPartial],
		r.Counts[reconcile.StatusAbsent],
		r.Counts[reconcile.StatusFutureBooking],
		r.Skipped, r.Anomalies, r.Offline,
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting report run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. employeeID 0 means all employees.
func (db *DB) ListRuns(employeeID, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, employee_id, window_start, window_end,
			present_full, present_partial, absent, future_booking, skipped, anomalies, offline, created_at
		 FROM report_runs`
	args := []interface{}{}
	if employeeID != 0 {
		query += " WHERE employee_id = ?"
		args = append(args, employeeID)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying report runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var full, partial, absent, future int
		var created sql.NullString
		if err := rows.Scan(
			&r.ID, &r.EmployeeID, &r.WindowStart, &r.WindowEnd,
			&full, &partial, &absent, &future, &r.Skipped, &r.Anomalies, &r.Offline, &created,
		); err != nil {
			return nil, fmt.Errorf("scanning report run: %w", err)
		}
		r.Counts = map[reconcile.Status]int{
			reconcile.StatusPresentFull:    full,
			reconcile.StatusPresentPartial: partial,
			reconcile.StatusAbsent:         absent,
			reconcile.StatusFutureBooking:  future,
		}
		r.CreatedAt = scanTime(created)
		runs = append(runs, r)
	}

	return runs, rows.Err()
}
