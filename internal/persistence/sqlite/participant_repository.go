package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/calendar-scheduler/internal/persistence"
)

const participantColumns = `id, event_id, user_id, role, status, response_deadline, responded_at, response_note, created_at, updated_at`

// CreateParticipant inserts a participant row.
func (s *Storage) CreateParticipant(ctx context.Context, participant persistence.EventParticipant) error {
	query := `INSERT INTO event_participants (` + participantColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, query,
		participant.ID,
		participant.EventID,
		participant.UserID,
		string(participant.Role),
		string(participant.Status),
		nullTimeText(participant.ResponseDeadline),
		nullTimeText(participant.RespondedAt),
		nullString(participant.ResponseNote),
		timeText(participant.CreatedAt),
		timeText(participant.UpdatedAt),
	)
	return mapError(err)
}

// GetParticipant retrieves a participant row by id.
func (s *Storage) GetParticipant(ctx context.Context, id string) (persistence.EventParticipant, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM event_participants WHERE id = ?`, id)
	participant, err := scanParticipant(row)
	if err != nil {
		return persistence.EventParticipant{}, mapError(err)
	}
	return participant, nil
}

// UpdateParticipant rewrites the response state of a participant row.
func (s *Storage) UpdateParticipant(ctx context.Context, participant persistence.EventParticipant) error {
	query := `UPDATE event_participants
		SET status = ?, response_deadline = ?, responded_at = ?, response_note = ?, updated_at = ?
		WHERE id = ?`
	result, err := s.q.ExecContext(ctx, query,
		string(participant.Status),
		nullTimeText(participant.ResponseDeadline),
		nullTimeText(participant.RespondedAt),
		nullString(participant.ResponseNote),
		timeText(participant.UpdatedAt),
		participant.ID,
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

// ListParticipantsForEvent returns the participant rows ordered by user id.
func (s *Storage) ListParticipantsForEvent(ctx context.Context, eventID string) ([]persistence.EventParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM event_participants WHERE event_id = ? ORDER BY user_id ASC`
	rows, err := s.q.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var participants []persistence.EventParticipant
	for rows.Next() {
		participant, err := scanParticipant(rows)
		if err != nil {
			return nil, mapError(err)
		}
		participants = append(participants, participant)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return participants, nil
}

func scanParticipant(row rowScanner) (persistence.EventParticipant, error) {
	var participant persistence.EventParticipant
	var role, status, createdStr, updatedStr string
	var deadline, respondedAt, note sql.NullString

	err := row.Scan(
		&participant.ID,
		&participant.EventID,
		&participant.UserID,
		&role,
		&status,
		&deadline,
		&respondedAt,
		&note,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		return persistence.EventParticipant{}, err
	}

	participant.Role = persistence.ParticipantRole(role)
	participant.Status = persistence.ParticipantStatus(status)
	participant.ResponseNote = stringPtr(note)

	if participant.ResponseDeadline, err = timePtr(deadline); err != nil {
		return persistence.EventParticipant{}, err
	}
	if participant.RespondedAt, err = timePtr(respondedAt); err != nil {
		return persistence.EventParticipant{}, err
	}
	if participant.CreatedAt, err = parseTime(createdStr); err != nil {
		return persistence.EventParticipant{}, err
	}
	if participant.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return persistence.EventParticipant{}, err
	}
	return participant, nil
}
