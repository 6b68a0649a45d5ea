package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/scheduler"
)

const (
	// maxAutoReschedules caps how often an event can be moved automatically,
	// regardless of what the rule allows.
	maxAutoReschedules = 2
	maxProposedSlots   = 3
	// autoSearchHorizon bounds the range an automatic resolution searches.
	autoSearchHorizon = 7 * 24 * time.Hour
)

// RescheduleService runs the bounded reschedule negotiation: a request either
// resolves against a proposed slot, resolves automatically inside a search
// horizon, or stays pending for a human.
type RescheduleService struct {
	store        persistence.Store
	availability *AvailabilityService
	workloads    *WorkloadService
	idGenerator  func() string
	now          func() time.Time
}

// NewRescheduleService wires dependencies for reschedule negotiations.
func NewRescheduleService(store persistence.Store, availability *AvailabilityService, workloads *WorkloadService, idGenerator func() string, now func() time.Time) *RescheduleService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &RescheduleService{
		store:        store,
		availability: availability,
		workloads:    workloads,
		idGenerator:  idGenerator,
		now:          now,
	}
}

// RequestReschedule opens a negotiation for the event and tries to resolve it
// immediately. Proposed slots are tried in order before any automatic search.
// A request against an exhausted limit or inside the notice window is recorded
// as rejected; when nothing resolves the request stays pending and the outcome
// asks for manual handling.
func (s *RescheduleService) RequestReschedule(ctx context.Context, params RequestRescheduleParams) (RescheduleOutcome, error) {
	if s == nil {
		return RescheduleOutcome{}, fmt.Errorf("RescheduleService is nil")
	}
	logger := serviceLogger(ctx, "reschedule", "request_reschedule")

	vErr := &ValidationError{}
	if params.EventID == "" {
		vErr.add("event_id", "event id is required")
	}
	if params.RequesterID == "" {
		vErr.add("requester_id", "requester id is required")
	}
	if len(params.ProposedSlots) > maxProposedSlots {
		vErr.add("proposed_slots", fmt.Sprintf("at most %d proposed slots are allowed", maxProposedSlots))
	}
	if len(params.ProposedSlots) == 0 && !params.UseAutoSchedule {
		vErr.add("proposed_slots", "either proposed slots or automatic resolution is required")
	}
	for _, slot := range params.ProposedSlots {
		if !slot.End.After(slot.Start) {
			vErr.add("proposed_slots", "proposed slots must have positive extent")
			break
		}
	}
	if vErr.HasErrors() {
		return RescheduleOutcome{}, vErr
	}

	event, err := s.store.GetEvent(ctx, params.EventID)
	if err != nil {
		return RescheduleOutcome{}, mapStoreError(err)
	}
	if event.Status == persistence.EventCancelled || event.Status == persistence.EventCompleted {
		return RescheduleOutcome{}, fmt.Errorf("%w: event %s is %s", ErrStateConflict, event.ID, event.Status)
	}

	participants, err := s.store.ListParticipantsForEvent(ctx, event.ID)
	if err != nil {
		return RescheduleOutcome{}, mapStoreError(err)
	}
	if !isAttendee(event, participants, params.RequesterID) {
		return RescheduleOutcome{}, ErrUnauthorized
	}

	rule, err := s.ruleFor(ctx, event)
	if err != nil {
		return RescheduleOutcome{}, err
	}
	notice := time.Duration(minNoticeHours(rule)) * time.Hour
	now := s.now()

	request := persistence.RescheduleRequest{
		ID:              s.idGenerator(),
		EventID:         event.ID,
		RequesterID:     params.RequesterID,
		Reason:          params.Reason,
		ProposedSlots:   params.ProposedSlots,
		UseAutoSchedule: params.UseAutoSchedule,
		Status:          persistence.ReschedulePending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if note, ok := rescheduleGuard(event, rule, now, notice); !ok {
		request.Status = persistence.RescheduleRejected
		request.ProcessedAt = &now
		request.ProcessingNote = &note
		if err := s.store.CreateRescheduleRequest(ctx, request); err != nil {
			return RescheduleOutcome{}, mapStoreError(err)
		}
		logger.Info().Str("event_id", event.ID).Str("request_id", request.ID).
			Str("note", note).Msg("reschedule request rejected")
		return RescheduleOutcome{Request: request, ManualRequired: true, Reason: note}, nil
	}
	if err := s.store.CreateRescheduleRequest(ctx, request); err != nil {
		return RescheduleOutcome{}, mapStoreError(err)
	}

	userIDs := attendeeIDs(event, participants)
	constraints := constraintsFromRule(rule)

	target, resolved, reason, err := s.resolveTarget(ctx, s.store, event, request, constraints, userIDs, notice)
	if err != nil {
		return RescheduleOutcome{}, err
	}
	if !resolved {
		logger.Info().Str("event_id", event.ID).Str("request_id", request.ID).Msg("reschedule left pending")
		return RescheduleOutcome{Request: request, ManualRequired: true, Reason: reason}, nil
	}

	status := persistence.RescheduleAutoResolved
	if matchesProposed(request.ProposedSlots, target) {
		status = persistence.RescheduleApproved
	}
	outcome, err := s.commit(ctx, request, event, rule, target, status, nil, nil)
	if err != nil {
		return RescheduleOutcome{}, err
	}
	if !outcome.ManualRequired {
		logger.Info().
			Str("event_id", event.ID).
			Str("request_id", request.ID).
			Time("new_start", target.Start).
			Msg("reschedule resolved")
	}
	return outcome, nil
}

// ProcessRescheduleRequest resolves a pending request by hand. Approval
// requires a selected start matching one of the proposed slots when any were
// given, and re-checks the limit and notice window against the live event: a
// request that no longer qualifies is rejected rather than committed.
func (s *RescheduleService) ProcessRescheduleRequest(ctx context.Context, params ProcessRescheduleParams) (RescheduleOutcome, error) {
	if s == nil {
		return RescheduleOutcome{}, fmt.Errorf("RescheduleService is nil")
	}
	logger := serviceLogger(ctx, "reschedule", "process_reschedule_request")

	vErr := &ValidationError{}
	if params.RequestID == "" {
		vErr.add("request_id", "request id is required")
	}
	if params.ProcessorID == "" {
		vErr.add("processor_id", "processor id is required")
	}
	if params.Approve && params.SelectedStart == nil {
		vErr.add("selected_start", "approval requires a selected start time")
	}
	if vErr.HasErrors() {
		return RescheduleOutcome{}, vErr
	}

	request, err := s.store.GetRescheduleRequest(ctx, params.RequestID)
	if err != nil {
		return RescheduleOutcome{}, mapStoreError(err)
	}
	if request.Status != persistence.ReschedulePending {
		return RescheduleOutcome{}, fmt.Errorf("%w: request %s is already %s", ErrStateConflict, request.ID, request.Status)
	}

	now := s.now()

	if !params.Approve {
		request.Status = persistence.RescheduleRejected
		request.ProcessedBy = &params.ProcessorID
		request.ProcessedAt = &now
		request.ProcessingNote = params.Note
		request.UpdatedAt = now
		if err := s.store.UpdateRescheduleRequest(ctx, request); err != nil {
			return RescheduleOutcome{}, mapStoreError(err)
		}
		logger.Info().Str("request_id", request.ID).Msg("reschedule rejected")
		return RescheduleOutcome{Request: request}, nil
	}

	event, err := s.store.GetEvent(ctx, request.EventID)
	if err != nil {
		return RescheduleOutcome{}, mapStoreError(err)
	}
	if event.Status == persistence.EventCancelled || event.Status == persistence.EventCompleted {
		return RescheduleOutcome{}, fmt.Errorf("%w: event %s is %s", ErrStateConflict, event.ID, event.Status)
	}

	rule, err := s.ruleFor(ctx, event)
	if err != nil {
		return RescheduleOutcome{}, err
	}

	notice := time.Duration(minNoticeHours(rule)) * time.Hour
	if note, ok := rescheduleGuard(event, rule, now, notice); !ok {
		request.Status = persistence.RescheduleRejected
		request.ProcessedBy = &params.ProcessorID
		request.ProcessedAt = &now
		request.ProcessingNote = &note
		request.UpdatedAt = now
		if err := s.store.UpdateRescheduleRequest(ctx, request); err != nil {
			return RescheduleOutcome{}, mapStoreError(err)
		}
		logger.Info().Str("request_id", request.ID).Str("note", note).Msg("reschedule approval refused")
		return RescheduleOutcome{Request: request, ManualRequired: true, Reason: note}, nil
	}

	duration := time.Duration(event.DurationMinutes) * time.Minute
	target := scheduler.TimeRange{Start: *params.SelectedStart, End: params.SelectedStart.Add(duration)}
	if len(request.ProposedSlots) > 0 && !matchesProposed(request.ProposedSlots, target) {
		vErr.add("selected_start", "selected start does not match any proposed slot")
		return RescheduleOutcome{}, vErr
	}

	outcome, err := s.commit(ctx, request, event, rule, target, persistence.RescheduleApproved, &params.ProcessorID, params.Note)
	if err != nil {
		return RescheduleOutcome{}, err
	}
	if !outcome.ManualRequired {
		logger.Info().Str("request_id", request.ID).Time("new_start", target.Start).Msg("reschedule approved")
	}
	return outcome, nil
}

// resolveTarget picks the replacement window: the highest-scoring viable
// proposed slot, then the best automatic candidate inside the horizon. Each
// proposed slot is vetted by running the slot search constrained to exactly
// that window, so availability declarations and per-day event limits apply the
// same way they do for a fresh booking.
func (s *RescheduleService) resolveTarget(ctx context.Context, store persistence.Store, event persistence.CalendarEvent, request persistence.RescheduleRequest, constraints scheduler.Constraints, userIDs []string, notice time.Duration) (scheduler.TimeRange, bool, string, error) {
	now := s.now()
	duration := time.Duration(event.DurationMinutes) * time.Minute
	buffer := time.Duration(constraints.BufferMinutes) * time.Minute
	earliest := now.Add(notice)

	var eligible []persistence.ProposedSlot
	aggregation := scheduler.TimeRange{Start: earliest, End: earliest}
	for _, proposed := range request.ProposedSlots {
		if proposed.Start.Before(earliest) {
			continue
		}
		eligible = append(eligible, proposed)
		if end := proposed.Start.Add(duration + buffer); end.After(aggregation.End) {
			aggregation.End = end
		}
	}

	var best *scheduler.Slot
	if len(eligible) > 0 {
		// One aggregation spanning every proposal so recurring availability
		// declarations expand even when a single proposal window misses them.
		calendars, timezones, err := s.availability.Calendars(ctx, store, userIDs, aggregation, constraints.BufferMinutes, event.ID)
		if err != nil {
			return scheduler.TimeRange{}, false, "", err
		}
		for _, proposed := range eligible {
			window := scheduler.TimeRange{Start: proposed.Start, End: proposed.Start.Add(duration + buffer)}
			slots, _ := scheduler.FindSlots(scheduler.Request{
				DurationMinutes: event.DurationMinutes,
				Range:           window,
				Constraints:     constraints,
				Calendars:       calendars,
				Timezones:       timezones,
			})
			for _, slot := range slots {
				if !slot.Start.Equal(proposed.Start) {
					continue
				}
				if best == nil || slot.Score > best.Score {
					viable := slot
					best = &viable
				}
				break
			}
		}
	}
	if best != nil {
		return scheduler.TimeRange{Start: best.Start, End: best.End}, true, "", nil
	}

	if !request.UseAutoSchedule {
		return scheduler.TimeRange{}, false, "none of the proposed slots works for every participant", nil
	}

	searchRange := scheduler.TimeRange{Start: earliest, End: earliest.Add(autoSearchHorizon)}
	calendars, timezones, err := s.availability.Calendars(ctx, store, userIDs, searchRange, constraints.BufferMinutes, event.ID)
	if err != nil {
		return scheduler.TimeRange{}, false, "", err
	}
	slots, reason := scheduler.FindSlots(scheduler.Request{
		DurationMinutes: event.DurationMinutes,
		Range:           searchRange,
		Constraints:     constraints,
		Calendars:       calendars,
		Timezones:       timezones,
	})
	if len(slots) == 0 {
		return scheduler.TimeRange{}, false, reason, nil
	}
	top := slots[0]
	return scheduler.TimeRange{Start: top.Start, End: top.End}, true, "", nil
}

// commit moves the event under per-user locks: the old event flips to
// rescheduling with its auto-generated busy rows removed, and a chained
// replacement is created. The bumped reschedule count lands on both rows so
// the limit holds no matter which row a later request reads.
func (s *RescheduleService) commit(ctx context.Context, request persistence.RescheduleRequest, event persistence.CalendarEvent, rule *persistence.AutoScheduleRule, target scheduler.TimeRange, resolvedStatus persistence.RescheduleStatus, processorID, note *string) (RescheduleOutcome, error) {
	participants, err := s.store.ListParticipantsForEvent(ctx, event.ID)
	if err != nil {
		return RescheduleOutcome{}, mapStoreError(err)
	}
	userIDs := attendeeIDs(event, participants)
	constraints := constraintsFromRule(rule)
	buffer := time.Duration(constraints.BufferMinutes) * time.Minute

	release := s.store.LockUsers(userIDs)
	defer release()

	var outcome RescheduleOutcome
	err = s.store.InTransaction(ctx, func(tx persistence.Store) error {
		fresh, err := tx.GetEvent(ctx, event.ID)
		if err != nil {
			return err
		}
		if fresh.Status == persistence.EventCancelled || fresh.Status == persistence.EventCompleted {
			return fmt.Errorf("%w: event %s is %s", ErrStateConflict, fresh.ID, fresh.Status)
		}
		if fresh.RescheduleCount >= rescheduleCeiling(rule) {
			outcome = RescheduleOutcome{
				Request:        request,
				ManualRequired: true,
				Reason:         "the reschedule limit for this event is reached",
			}
			return nil
		}

		checkWindow := scheduler.TimeRange{Start: target.Start, End: target.End.Add(buffer)}
		calendars, _, err := s.availability.Calendars(ctx, tx, userIDs, checkWindow, constraints.BufferMinutes, fresh.ID)
		if err != nil {
			return err
		}
		for _, cal := range calendars {
			if scheduler.HasBusyConflict(cal.Busy, checkWindow) {
				outcome = RescheduleOutcome{
					Request:        request,
					ManualRequired: true,
					Reason:         "the target window was taken while committing",
				}
				return nil
			}
		}

		now := s.now()

		if err := tx.DeleteForLinkedEvent(ctx, fresh.ID); err != nil {
			return err
		}

		oldStart := fresh.Start
		fresh.Status = persistence.EventRescheduling
		fresh.RescheduleCount++
		fresh.LastRescheduledAt = &now
		fresh.UpdatedAt = now
		if err := tx.UpdateEvent(ctx, fresh); err != nil {
			return err
		}

		previousID := fresh.ID
		newEvent := fresh
		newEvent.ID = s.idGenerator()
		newEvent.Start = target.Start
		newEvent.End = target.End
		newEvent.Status = persistence.EventPendingConfirmation
		newEvent.PreviousEventID = &previousID
		newEvent.CreatedAt = now
		newEvent.UpdatedAt = now
		if len(participants) <= 1 {
			newEvent.Status = persistence.EventScheduled
		}
		if err := tx.CreateEvent(ctx, newEvent); err != nil {
			return err
		}

		deadline := responseDeadline(now, newEvent.Start, minNoticeHours(rule))
		for _, old := range sortedParticipants(participants) {
			participant := persistence.EventParticipant{
				ID:        s.idGenerator(),
				EventID:   newEvent.ID,
				UserID:    old.UserID,
				Role:      old.Role,
				Status:    persistence.ParticipantPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if old.Role == persistence.RoleOrganizer {
				participant.Status = persistence.ParticipantAccepted
				respondedAt := now
				participant.RespondedAt = &respondedAt
			} else {
				d := deadline
				participant.ResponseDeadline = &d
			}
			if err := tx.CreateParticipant(ctx, participant); err != nil {
				return err
			}

			start, end := newEvent.Start, newEvent.End
			eventID := newEvent.ID
			if err := tx.CreateAvailability(ctx, persistence.UserAvailability{
				ID:              s.idGenerator(),
				UserID:          old.UserID,
				Type:            persistence.AvailabilityBusy,
				Start:           &start,
				End:             &end,
				IsAutoGenerated: true,
				LinkedEventID:   &eventID,
				CreatedAt:       now,
				UpdatedAt:       now,
			}); err != nil {
				return err
			}
		}

		newEventID := newEvent.ID
		selected := newEvent.Start
		request.Status = resolvedStatus
		request.ProcessedBy = processorID
		request.ProcessedAt = &now
		request.ProcessingNote = note
		request.NewEventID = &newEventID
		request.SelectedNewStartTime = &selected
		request.UpdatedAt = now
		if err := tx.UpdateRescheduleRequest(ctx, request); err != nil {
			return err
		}

		if err := s.rebuildOrganizerWorkload(ctx, tx, newEvent, oldStart); err != nil {
			return err
		}

		outcome = RescheduleOutcome{Request: request, NewEvent: &newEvent}
		return nil
	})
	if err != nil {
		return RescheduleOutcome{}, mapStoreError(err)
	}
	return outcome, nil
}

// rebuildOrganizerWorkload recomputes the organizer's days touched by the move.
func (s *RescheduleService) rebuildOrganizerWorkload(ctx context.Context, tx persistence.Store, event persistence.CalendarEvent, oldStart time.Time) error {
	organizer, err := tx.GetUser(ctx, event.OrganizerID)
	if err != nil {
		return err
	}
	if organizer.Role != persistence.RoleStaff {
		return nil
	}
	if _, err := s.workloads.RebuildDay(ctx, tx, organizer.ID, oldStart); err != nil {
		return err
	}
	if !utcDay(oldStart).Equal(utcDay(event.Start)) {
		if _, err := s.workloads.RebuildDay(ctx, tx, organizer.ID, event.Start); err != nil {
			return err
		}
	}
	return nil
}

// ruleFor loads the event's rule, falling back to the type default.
func (s *RescheduleService) ruleFor(ctx context.Context, event persistence.CalendarEvent) (*persistence.AutoScheduleRule, error) {
	if event.RuleID != nil {
		rule, err := s.store.GetRule(ctx, *event.RuleID)
		if err != nil {
			return nil, mapStoreError(err)
		}
		return &rule, nil
	}
	rule, err := s.store.FindRuleForEventType(ctx, event.Type)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil
		}
		return nil, mapStoreError(err)
	}
	return &rule, nil
}

// rescheduleCeiling is the built-in cap tightened by the rule when the rule is
// stricter.
func rescheduleCeiling(rule *persistence.AutoScheduleRule) int {
	limit := maxAutoReschedules
	if rule != nil && rule.MaxRescheduleCount < limit {
		limit = rule.MaxRescheduleCount
	}
	return limit
}

// rescheduleGuard reports whether the event can still be moved, with the
// rejection note when it cannot. The notice window is measured against the
// current start, the limit against min(2, rule cap).
func rescheduleGuard(event persistence.CalendarEvent, rule *persistence.AutoScheduleRule, now time.Time, notice time.Duration) (string, bool) {
	if event.Start.Sub(now) < notice {
		return fmt.Sprintf("the event starts within the %s notice window", notice), false
	}
	if event.RescheduleCount >= rescheduleCeiling(rule) {
		return "the reschedule limit for this event is reached", false
	}
	return "", true
}

func isAttendee(event persistence.CalendarEvent, participants []persistence.EventParticipant, userID string) bool {
	if event.OrganizerID == userID {
		return true
	}
	for _, p := range participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func attendeeIDs(event persistence.CalendarEvent, participants []persistence.EventParticipant) []string {
	ids := []string{event.OrganizerID}
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	return uniqueStrings(ids)
}

func matchesProposed(proposed []persistence.ProposedSlot, target scheduler.TimeRange) bool {
	for _, slot := range proposed {
		if slot.Start.Equal(target.Start) {
			return true
		}
	}
	return false
}

func sortedParticipants(participants []persistence.EventParticipant) []persistence.EventParticipant {
	out := append([]persistence.EventParticipant{}, participants...)
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
