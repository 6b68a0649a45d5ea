package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
)

const workloadColumns = `staff_id, date, scheduled_minutes, daily_capacity_minutes, event_count,
	utilization_rate, is_overloaded, can_accept_new_event, updated_at`

// GetWorkload retrieves the workload row for the staff member on the given
// calendar day.
func (s *Storage) GetWorkload(ctx context.Context, staffID string, date time.Time) (persistence.StaffWorkload, error) {
	query := `SELECT ` + workloadColumns + ` FROM staff_workloads WHERE staff_id = ? AND date = ?`
	row := s.q.QueryRowContext(ctx, query, staffID, dateText(date))
	workload, err := scanWorkload(row)
	if err != nil {
		return persistence.StaffWorkload{}, mapError(err)
	}
	return workload, nil
}

// UpsertWorkload writes the workload row, replacing any existing row for the
// same (staff_id, date) key. Repeated writes with the same inputs converge.
func (s *Storage) UpsertWorkload(ctx context.Context, workload persistence.StaffWorkload) error {
	query := `INSERT INTO staff_workloads (` + workloadColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (staff_id, date) DO UPDATE SET
			scheduled_minutes = excluded.scheduled_minutes,
			daily_capacity_minutes = excluded.daily_capacity_minutes,
			event_count = excluded.event_count,
			utilization_rate = excluded.utilization_rate,
			is_overloaded = excluded.is_overloaded,
			can_accept_new_event = excluded.can_accept_new_event,
			updated_at = excluded.updated_at`
	_, err := s.q.ExecContext(ctx, query,
		workload.StaffID,
		dateText(workload.Date),
		workload.ScheduledMinutes,
		workload.DailyCapacityMinutes,
		workload.EventCount,
		workload.UtilizationRate,
		boolInt(workload.IsOverloaded),
		boolInt(workload.CanAcceptNewEvent),
		timeText(workload.UpdatedAt),
	)
	return mapError(err)
}

func scanWorkload(row rowScanner) (persistence.StaffWorkload, error) {
	var workload persistence.StaffWorkload
	var dateStr, updatedStr string
	var overloaded, canAccept int

	err := row.Scan(
		&workload.StaffID,
		&dateStr,
		&workload.ScheduledMinutes,
		&workload.DailyCapacityMinutes,
		&workload.EventCount,
		&workload.UtilizationRate,
		&overloaded,
		&canAccept,
		&updatedStr,
	)
	if err != nil {
		return persistence.StaffWorkload{}, err
	}

	workload.IsOverloaded = overloaded != 0
	workload.CanAcceptNewEvent = canAccept != 0

	if workload.Date, err = parseDate(dateStr); err != nil {
		return persistence.StaffWorkload{}, err
	}
	if workload.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return persistence.StaffWorkload{}, err
	}
	return workload, nil
}

// dateText stores the day key as a plain date so any timestamp within the UTC
// day maps to the same row.
func dateText(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse date %q: %w", value, err)
	}
	return t, nil
}
