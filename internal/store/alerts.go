package store

import (
	"fmt"
	"time"
)

// MarkAlerted records that a booked-day absence was notified. It reports false when the
// date was already recorded for the employee.
func (db *DB) MarkAlerted(employeeID int, date string, at time.Time) (bool, error) {
	result, err := db.Exec(
		"INSERT OR IGNORE INTO alerts (employee_id, date, notified_at) VALUES (?, ?, ?)",
		employeeID, date, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("recording alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
