package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/calendar-scheduler/internal/persistence"
)

// metadataManualReschedule flags events whose decline could not be resolved
// automatically.
const metadataManualReschedule = "manual_reschedule_required"

// ResponseService records invitation responses and drives the follow-up: a
// fully accepted event confirms, a required decline opens a reschedule
// negotiation.
type ResponseService struct {
	store       persistence.Store
	reschedule  *RescheduleService
	idGenerator func() string
	now         func() time.Time
}

// NewResponseService wires dependencies for invitation responses.
func NewResponseService(store persistence.Store, reschedule *RescheduleService, idGenerator func() string, now func() time.Time) *ResponseService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &ResponseService{store: store, reschedule: reschedule, idGenerator: idGenerator, now: now}
}

// RespondToInvitation updates the participant's response and applies the event
// level consequences. Declines by required participants trigger an automatic
// reschedule attempt; when that cannot resolve, the event flips to rescheduling
// and is flagged for manual handling.
func (s *ResponseService) RespondToInvitation(ctx context.Context, params RespondParams) (ResponseOutcome, error) {
	if s == nil {
		return ResponseOutcome{}, fmt.Errorf("ResponseService is nil")
	}
	logger := serviceLogger(ctx, "response", "respond_to_invitation")

	vErr := &ValidationError{}
	if params.EventID == "" {
		vErr.add("event_id", "event id is required")
	}
	if params.UserID == "" {
		vErr.add("user_id", "user id is required")
	}
	switch params.Status {
	case persistence.ParticipantAccepted, persistence.ParticipantDeclined, persistence.ParticipantTentative:
	default:
		vErr.add("status", "response must be accepted, declined or tentative")
	}
	if vErr.HasErrors() {
		return ResponseOutcome{}, vErr
	}

	event, err := s.store.GetEvent(ctx, params.EventID)
	if err != nil {
		return ResponseOutcome{}, mapStoreError(err)
	}
	if event.Status == persistence.EventCancelled || event.Status == persistence.EventCompleted {
		return ResponseOutcome{}, fmt.Errorf("%w: event %s is %s", ErrStateConflict, event.ID, event.Status)
	}

	now := s.now()
	var outcome ResponseOutcome

	err = s.store.InTransaction(ctx, func(tx persistence.Store) error {
		participants, err := tx.ListParticipantsForEvent(ctx, event.ID)
		if err != nil {
			return err
		}

		var participant *persistence.EventParticipant
		for i := range participants {
			if participants[i].UserID == params.UserID {
				participant = &participants[i]
				break
			}
		}
		if participant == nil {
			return fmt.Errorf("%w: user %s is not invited to event %s", ErrNotFound, params.UserID, event.ID)
		}

		participant.Status = params.Status
		participant.RespondedAt = &now
		participant.ResponseNote = params.Note
		participant.UpdatedAt = now
		if err := tx.UpdateParticipant(ctx, *participant); err != nil {
			return err
		}

		if params.Status == persistence.ParticipantAccepted &&
			event.Status == persistence.EventPendingConfirmation &&
			allRequiredAccepted(participants) {
			event.Status = persistence.EventScheduled
			event.UpdatedAt = now
			if err := tx.UpdateEvent(ctx, event); err != nil {
				return err
			}
		}

		outcome = ResponseOutcome{Event: event, Participant: *participant}
		return nil
	})
	if err != nil {
		return ResponseOutcome{}, mapStoreError(err)
	}

	requiredDecline := params.Status == persistence.ParticipantDeclined &&
		outcome.Participant.Role != persistence.RoleOptional
	if !requiredDecline {
		logger.Info().
			Str("event_id", event.ID).
			Str("user_id", params.UserID).
			Str("status", string(params.Status)).
			Msg("invitation response recorded")
		return outcome, nil
	}

	return s.handleRequiredDecline(ctx, outcome, params)
}

// handleRequiredDecline opens a reschedule negotiation outside the response
// transaction; the negotiation takes its own locks.
func (s *ResponseService) handleRequiredDecline(ctx context.Context, outcome ResponseOutcome, params RespondParams) (ResponseOutcome, error) {
	logger := serviceLogger(ctx, "response", "respond_to_invitation")

	reason := fmt.Sprintf("required participant %s declined", params.UserID)
	rescheduled, err := s.reschedule.RequestReschedule(ctx, RequestRescheduleParams{
		EventID:         outcome.Event.ID,
		RequesterID:     params.UserID,
		Reason:          reason,
		UseAutoSchedule: true,
	})
	switch {
	case err == nil && !rescheduled.ManualRequired:
		outcome.RescheduleTriggered = true
		outcome.Reschedule = &rescheduled
		logger.Info().
			Str("event_id", outcome.Event.ID).
			Str("request_id", rescheduled.Request.ID).
			Msg("decline resolved by automatic reschedule")
		return outcome, nil
	case err != nil && !errors.Is(err, ErrStateConflict):
		return ResponseOutcome{}, err
	}

	// No automatic resolution left; hand the event to a human.
	if err == nil {
		outcome.RescheduleTriggered = true
		outcome.Reschedule = &rescheduled
	}
	if flagErr := s.flagManualReschedule(ctx, outcome.Event.ID); flagErr != nil {
		return ResponseOutcome{}, flagErr
	}
	fresh, err := s.store.GetEvent(ctx, outcome.Event.ID)
	if err != nil {
		return ResponseOutcome{}, mapStoreError(err)
	}
	outcome.Event = fresh
	outcome.ManualRequired = true
	logger.Warn().
		Str("event_id", outcome.Event.ID).
		Str("user_id", params.UserID).
		Msg("decline requires manual rescheduling")
	return outcome, nil
}

// flagManualReschedule flips the event into the rescheduling state and marks it
// for manual handling.
func (s *ResponseService) flagManualReschedule(ctx context.Context, eventID string) error {
	now := s.now()
	err := s.store.InTransaction(ctx, func(tx persistence.Store) error {
		event, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status == persistence.EventCancelled || event.Status == persistence.EventCompleted {
			return nil
		}
		event.Status = persistence.EventRescheduling
		if event.Metadata == nil {
			event.Metadata = make(map[string]string)
		}
		event.Metadata[metadataManualReschedule] = "true"
		event.UpdatedAt = now
		return tx.UpdateEvent(ctx, event)
	})
	return mapStoreError(err)
}

// allRequiredAccepted reports whether every organizer and required participant
// has accepted.
func allRequiredAccepted(participants []persistence.EventParticipant) bool {
	for _, p := range participants {
		if p.Role == persistence.RoleOptional {
			continue
		}
		if p.Status != persistence.ParticipantAccepted {
			return false
		}
	}
	return true
}
