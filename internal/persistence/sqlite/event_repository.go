package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/calendar-scheduler/internal/persistence"
)

const eventColumns = `id, event_type, title, start_time, end_time, duration_minutes, organizer_id, status,
	reference_type, reference_id, is_auto_scheduled, rule_id, previous_event_id, reschedule_count,
	last_rescheduled_at, metadata, created_at, updated_at`

// CreateEvent inserts a calendar event.
func (s *Storage) CreateEvent(ctx context.Context, event persistence.CalendarEvent) error {
	metadata, err := encodeMetadata(event.Metadata)
	if err != nil {
		return err
	}
	query := `INSERT INTO calendar_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.q.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		event.Title,
		timeText(event.Start),
		timeText(event.End),
		event.DurationMinutes,
		event.OrganizerID,
		string(event.Status),
		nullString(event.ReferenceType),
		nullString(event.ReferenceID),
		boolInt(event.IsAutoScheduled),
		nullString(event.RuleID),
		nullString(event.PreviousEventID),
		event.RescheduleCount,
		nullTimeText(event.LastRescheduledAt),
		metadata,
		timeText(event.CreatedAt),
		timeText(event.UpdatedAt),
	)
	return mapError(err)
}

// GetEvent retrieves an event by id.
func (s *Storage) GetEvent(ctx context.Context, id string) (persistence.CalendarEvent, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if err != nil {
		return persistence.CalendarEvent{}, mapError(err)
	}
	return event, nil
}

// UpdateEvent rewrites mutable event fields.
func (s *Storage) UpdateEvent(ctx context.Context, event persistence.CalendarEvent) error {
	metadata, err := encodeMetadata(event.Metadata)
	if err != nil {
		return err
	}
	query := `UPDATE calendar_events
		SET title = ?, start_time = ?, end_time = ?, duration_minutes = ?, status = ?,
			rule_id = ?, previous_event_id = ?, reschedule_count = ?, last_rescheduled_at = ?,
			metadata = ?, updated_at = ?
		WHERE id = ?`
	result, err := s.q.ExecContext(ctx, query,
		event.Title,
		timeText(event.Start),
		timeText(event.End),
		event.DurationMinutes,
		string(event.Status),
		nullString(event.RuleID),
		nullString(event.PreviousEventID),
		event.RescheduleCount,
		nullTimeText(event.LastRescheduledAt),
		metadata,
		timeText(event.UpdatedAt),
		event.ID,
	)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListEvents returns events matching the filter ordered by start then id.
func (s *Storage) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.CalendarEvent, error) {
	query := `SELECT DISTINCT e.id, e.event_type, e.title, e.start_time, e.end_time, e.duration_minutes,
		e.organizer_id, e.status, e.reference_type, e.reference_id, e.is_auto_scheduled, e.rule_id,
		e.previous_event_id, e.reschedule_count, e.last_rescheduled_at, e.metadata, e.created_at, e.updated_at
		FROM calendar_events e`

	var conditions []string
	var args []any

	if len(filter.UserIDs) > 0 {
		query += ` LEFT JOIN event_participants p ON e.id = p.event_id`
		conditions = append(conditions, fmt.Sprintf("(p.user_id IN (%s) OR e.organizer_id IN (%s))",
			placeholders(len(filter.UserIDs)), placeholders(len(filter.UserIDs))))
		args = append(args, toAnySlice(filter.UserIDs)...)
		args = append(args, toAnySlice(filter.UserIDs)...)
	}
	if len(filter.OrganizerIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("e.organizer_id IN (%s)", placeholders(len(filter.OrganizerIDs))))
		args = append(args, toAnySlice(filter.OrganizerIDs)...)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		conditions = append(conditions, fmt.Sprintf("e.status IN (%s)", placeholders(len(statuses))))
		args = append(args, toAnySlice(statuses)...)
	}
	if filter.StartsAfter != nil {
		conditions = append(conditions, "e.end_time > ?")
		args = append(args, timeText(*filter.StartsAfter))
	}
	if filter.EndsBefore != nil {
		conditions = append(conditions, "e.start_time < ?")
		args = append(args, timeText(*filter.EndsBefore))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY e.start_time ASC, e.id ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var events []persistence.CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, mapError(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (persistence.CalendarEvent, error) {
	var event persistence.CalendarEvent
	var eventType, status, startStr, endStr, createdStr, updatedStr, metadataStr string
	var referenceType, referenceID, ruleID, previousEventID, lastRescheduledAt sql.NullString
	var autoScheduled int

	err := row.Scan(
		&event.ID,
		&eventType,
		&event.Title,
		&startStr,
		&endStr,
		&event.DurationMinutes,
		&event.OrganizerID,
		&status,
		&referenceType,
		&referenceID,
		&autoScheduled,
		&ruleID,
		&previousEventID,
		&event.RescheduleCount,
		&lastRescheduledAt,
		&metadataStr,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		return persistence.CalendarEvent{}, err
	}

	event.Type = persistence.EventType(eventType)
	event.Status = persistence.EventStatus(status)
	event.ReferenceType = stringPtr(referenceType)
	event.ReferenceID = stringPtr(referenceID)
	event.IsAutoScheduled = autoScheduled != 0
	event.RuleID = stringPtr(ruleID)
	event.PreviousEventID = stringPtr(previousEventID)

	if event.Start, err = parseTime(startStr); err != nil {
		return persistence.CalendarEvent{}, err
	}
	if event.End, err = parseTime(endStr); err != nil {
		return persistence.CalendarEvent{}, err
	}
	if event.CreatedAt, err = parseTime(createdStr); err != nil {
		return persistence.CalendarEvent{}, err
	}
	if event.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return persistence.CalendarEvent{}, err
	}
	if event.LastRescheduledAt, err = timePtr(lastRescheduledAt); err != nil {
		return persistence.CalendarEvent{}, err
	}
	if event.Metadata, err = decodeMetadata(metadataStr); err != nil {
		return persistence.CalendarEvent{}, err
	}
	return event, nil
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode metadata: %w", err)
	}
	return string(raw), nil
}

func decodeMetadata(value string) (map[string]string, error) {
	if value == "" || value == "{}" {
		return nil, nil
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(value), &metadata); err != nil {
		return nil, fmt.Errorf("sqlite: decode metadata: %w", err)
	}
	return metadata, nil
}
