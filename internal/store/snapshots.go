package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/christopherklint97/deskcheck/internal/reconcile"
)

const (
	kindAttendance = "attendance"
	kindBookings   = "bookings"
)

// Snapshot is the last raw input fetched for an employee, used for offline reports.
type Snapshot struct {
	EmployeeID int
	Attendance []reconcile.AttendanceRecord
	Bookings   []reconcile.BookingRecord
	FetchedAt  time.Time
}

func (db *DB) SaveSnapshot(s *Snapshot) error {
	att, err := json.Marshal(s.Attendance)
	if err != nil {
		return fmt.Errorf("marshaling attendance: %w", err)
	}
	bk, err := json.Marshal(s.Bookings)
	if err != nil {
		return fmt.Errorf("marshaling bookings: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	fetched := s.FetchedAt.UTC().Format(time.RFC3339)
	for _, row := range []struct {
		kind    string
		payload []byte
	}{{kindAttendance, att}, {kindBookings, bk}} {
		if _, err := tx.Exec(
			`INSERT INTO snapshots (employee_id, kind, payload, fetched_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(employee_id, kind) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
			s.EmployeeID, row.kind, string(row.payload), fetched,
		); err != nil {
			return fmt.Errorf("saving %s snapshot: %w", row.kind, err)
		}
	}

	return tx.Commit()
}

// LoadSnapshot returns the saved snapshot for an employee, or nil if none was saved.
func (db *DB) LoadSnapshot(employeeID int) (*Snapshot, error) {
	rows, err := db.Query(
		"SELECT kind, payload, fetched_at FROM snapshots WHERE employee_id = ?",
		employeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	s := &Snapshot{EmployeeID: employeeID}
	found := 0
	for rows.Next() {
		var kind, payload, fetched string
		if err := rows.Scan(&kind, &payload, &fetched); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		switch kind {
		case kindAttendance:
			err = json.Unmarshal([]byte(payload), &s.Attendance)
		case kindBookings:
			err = json.Unmarshal([]byte(payload), &s.Bookings)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("decoding %s snapshot: %w", kind, err)
		}
		if t, err := time.Parse(time.RFC3339, fetched); err == nil {
			s.FetchedAt = t
		}
		found++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if found == 0 {
		return nil, nil
	}
	return s, nil
}

// scanTime parses an RFC 3339 column, tolerating NULL.
func scanTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, ns.String)
	return t
}
