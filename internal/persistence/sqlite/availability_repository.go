package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
)

const availabilityColumns = `id, user_id, type, start_time, end_time, is_recurring, day_of_week,
	local_start_minute, local_end_minute, recurrence_starts_on, recurrence_ends_on,
	is_auto_generated, linked_event_id, linked_leave_request_id, note, created_at, updated_at`

// CreateAvailability inserts an availability row.
func (s *Storage) CreateAvailability(ctx context.Context, row persistence.UserAvailability) error {
	query := `INSERT INTO user_availability (` + availabilityColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, query,
		row.ID,
		row.UserID,
		string(row.Type),
		nullTimeText(row.Start),
		nullTimeText(row.End),
		boolInt(row.IsRecurring),
		nullWeekday(row.DayOfWeek),
		nullInt(row.LocalStartMinute),
		nullInt(row.LocalEndMinute),
		nullTimeText(row.RecurrenceStartsOn),
		nullTimeText(row.RecurrenceEndsOn),
		boolInt(row.IsAutoGenerated),
		nullString(row.LinkedEventID),
		nullString(row.LinkedLeaveRequestID),
		nullString(row.Note),
		timeText(row.CreatedAt),
		timeText(row.UpdatedAt),
	)
	return mapError(err)
}

// ListAvailability returns rows for the filtered users. Concrete rows must
// overlap the window; recurring rows always match and are expanded by the
// aggregation layer.
func (s *Storage) ListAvailability(ctx context.Context, filter persistence.AvailabilityFilter) ([]persistence.UserAvailability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM user_availability`

	var conditions []string
	var args []any

	if len(filter.UserIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("user_id IN (%s)", placeholders(len(filter.UserIDs))))
		args = append(args, toAnySlice(filter.UserIDs)...)
	}
	var window []string
	if filter.StartsAfter != nil {
		window = append(window, "end_time > ?")
		args = append(args, timeText(*filter.StartsAfter))
	}
	if filter.EndsBefore != nil {
		window = append(window, "start_time < ?")
		args = append(args, timeText(*filter.EndsBefore))
	}
	if len(window) > 0 {
		conditions = append(conditions, "(is_recurring = 1 OR ("+strings.Join(window, " AND ")+"))")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY user_id ASC, id ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []persistence.UserAvailability
	for rows.Next() {
		row, err := scanAvailability(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// DeleteForLinkedEvent removes availability rows back-referencing the event.
func (s *Storage) DeleteForLinkedEvent(ctx context.Context, eventID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM user_availability WHERE linked_event_id = ?`, eventID)
	return mapError(err)
}

// DeleteForLinkedLeaveRequest removes availability rows back-referencing the
// leave request.
func (s *Storage) DeleteForLinkedLeaveRequest(ctx context.Context, leaveRequestID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM user_availability WHERE linked_leave_request_id = ?`, leaveRequestID)
	return mapError(err)
}

func scanAvailability(row rowScanner) (persistence.UserAvailability, error) {
	var out persistence.UserAvailability
	var availabilityType, createdStr, updatedStr string
	var startStr, endStr, recurStartStr, recurEndStr, linkedEvent, linkedLeave, note sql.NullString
	var dayOfWeek, localStart, localEnd sql.NullInt64
	var recurring, autoGenerated int

	err := row.Scan(
		&out.ID,
		&out.UserID,
		&availabilityType,
		&startStr,
		&endStr,
		&recurring,
		&dayOfWeek,
		&localStart,
		&localEnd,
		&recurStartStr,
		&recurEndStr,
		&autoGenerated,
		&linkedEvent,
		&linkedLeave,
		&note,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		return persistence.UserAvailability{}, err
	}

	out.Type = persistence.AvailabilityType(availabilityType)
	out.IsRecurring = recurring != 0
	out.IsAutoGenerated = autoGenerated != 0
	out.LinkedEventID = stringPtr(linkedEvent)
	out.LinkedLeaveRequestID = stringPtr(linkedLeave)
	out.Note = stringPtr(note)
	out.DayOfWeek = weekdayPtr(dayOfWeek)
	out.LocalStartMinute = intPtr(localStart)
	out.LocalEndMinute = intPtr(localEnd)

	if out.Start, err = timePtr(startStr); err != nil {
		return persistence.UserAvailability{}, err
	}
	if out.End, err = timePtr(endStr); err != nil {
		return persistence.UserAvailability{}, err
	}
	if out.RecurrenceStartsOn, err = timePtr(recurStartStr); err != nil {
		return persistence.UserAvailability{}, err
	}
	if out.RecurrenceEndsOn, err = timePtr(recurEndStr); err != nil {
		return persistence.UserAvailability{}, err
	}
	if out.CreatedAt, err = parseTime(createdStr); err != nil {
		return persistence.UserAvailability{}, err
	}
	if out.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return persistence.UserAvailability{}, err
	}
	return out, nil
}

func nullWeekday(day *time.Weekday) sql.NullInt64 {
	if day == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*day), Valid: true}
}

func weekdayPtr(value sql.NullInt64) *time.Weekday {
	if !value.Valid {
		return nil
	}
	day := time.Weekday(value.Int64)
	return &day
}

func nullInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func intPtr(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int64)
	return &v
}
