package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/calendar-scheduler/internal/persistence"
)

const rescheduleColumns = `id, event_id, requester_id, reason, proposed_slots, use_auto_schedule, status,
	processed_by, processed_at, processing_note, new_event_id, selected_new_start_time, created_at, updated_at`

// CreateRescheduleRequest inserts a reschedule request.
func (s *Storage) CreateRescheduleRequest(ctx context.Context, request persistence.RescheduleRequest) error {
	slots, err := encodeProposedSlots(request.ProposedSlots)
	if err != nil {
		return err
	}
	query := `INSERT INTO reschedule_requests (` + rescheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.q.ExecContext(ctx, query,
		request.ID,
		request.EventID,
		request.RequesterID,
		request.Reason,
		slots,
		boolInt(request.UseAutoSchedule),
		string(request.Status),
		nullString(request.ProcessedBy),
		nullTimeText(request.ProcessedAt),
		nullString(request.ProcessingNote),
		nullString(request.NewEventID),
		nullTimeText(request.SelectedNewStartTime),
		timeText(request.CreatedAt),
		timeText(request.UpdatedAt),
	)
	return mapError(err)
}

// GetRescheduleRequest retrieves a request by id.
func (s *Storage) GetRescheduleRequest(ctx context.Context, id string) (persistence.RescheduleRequest, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+rescheduleColumns+` FROM reschedule_requests WHERE id = ?`, id)
	request, err := scanRescheduleRequest(row)
	if err != nil {
		return persistence.RescheduleRequest{}, mapError(err)
	}
	return request, nil
}

// UpdateRescheduleRequest rewrites the resolution fields of a request.
func (s *Storage) UpdateRescheduleRequest(ctx context.Context, request persistence.RescheduleRequest) error {
	query := `UPDATE reschedule_requests
		SET status = ?, processed_by = ?, processed_at = ?, processing_note = ?,
			new_event_id = ?, selected_new_start_time = ?, updated_at = ?
		WHERE id = ?`
	result, err := s.q.ExecContext(ctx, query,
		string(request.Status),
		nullString(request.ProcessedBy),
		nullTimeText(request.ProcessedAt),
		nullString(request.ProcessingNote),
		nullString(request.NewEventID),
		nullTimeText(request.SelectedNewStartTime),
		timeText(request.UpdatedAt),
		request.ID,
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

// ListRescheduleRequestsForEvent returns requests for the event ordered by
// creation time.
func (s *Storage) ListRescheduleRequestsForEvent(ctx context.Context, eventID string) ([]persistence.RescheduleRequest, error) {
	query := `SELECT ` + rescheduleColumns + ` FROM reschedule_requests WHERE event_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := s.q.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var requests []persistence.RescheduleRequest
	for rows.Next() {
		request, err := scanRescheduleRequest(rows)
		if err != nil {
			return nil, mapError(err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return requests, nil
}

func scanRescheduleRequest(row rowScanner) (persistence.RescheduleRequest, error) {
	var request persistence.RescheduleRequest
	var status, slotsStr, createdStr, updatedStr string
	var processedBy, processedAt, note, newEventID, selectedStart sql.NullString
	var useAuto int

	err := row.Scan(
		&request.ID,
		&request.EventID,
		&request.RequesterID,
		&request.Reason,
		&slotsStr,
		&useAuto,
		&status,
		&processedBy,
		&processedAt,
		&note,
		&newEventID,
		&selectedStart,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		return persistence.RescheduleRequest{}, err
	}

	request.Status = persistence.RescheduleStatus(status)
	request.UseAutoSchedule = useAuto != 0
	request.ProcessedBy = stringPtr(processedBy)
	request.ProcessingNote = stringPtr(note)
	request.NewEventID = stringPtr(newEventID)

	if request.ProposedSlots, err = decodeProposedSlots(slotsStr); err != nil {
		return persistence.RescheduleRequest{}, err
	}
	if request.ProcessedAt, err = timePtr(processedAt); err != nil {
		return persistence.RescheduleRequest{}, err
	}
	if request.SelectedNewStartTime, err = timePtr(selectedStart); err != nil {
		return persistence.RescheduleRequest{}, err
	}
	if request.CreatedAt, err = parseTime(createdStr); err != nil {
		return persistence.RescheduleRequest{}, err
	}
	if request.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return persistence.RescheduleRequest{}, err
	}
	return request, nil
}

type proposedSlotRecord struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func encodeProposedSlots(slots []persistence.ProposedSlot) (string, error) {
	records := make([]proposedSlotRecord, len(slots))
	for i, slot := range slots {
		records[i] = proposedSlotRecord{Start: timeText(slot.Start), End: timeText(slot.End)}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode proposed slots: %w", err)
	}
	return string(raw), nil
}

func decodeProposedSlots(value string) ([]persistence.ProposedSlot, error) {
	if value == "" || value == "[]" {
		return nil, nil
	}
	var records []proposedSlotRecord
	if err := json.Unmarshal([]byte(value), &records); err != nil {
		return nil, fmt.Errorf("sqlite: decode proposed slots: %w", err)
	}
	slots := make([]persistence.ProposedSlot, 0, len(records))
	for _, record := range records {
		start, err := parseTime(record.Start)
		if err != nil {
			return nil, err
		}
		end, err := parseTime(record.End)
		if err != nil {
			return nil, err
		}
		slots = append(slots, persistence.ProposedSlot{Start: start, End: end})
	}
	return slots, nil
}
