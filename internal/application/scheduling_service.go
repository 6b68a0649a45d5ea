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
	defaultMinNoticeHours = 24
	// suggestedRangeExtension is how far past the failed range the suggested
	// retry range extends.
	suggestedRangeExtension = 72 * time.Hour
)

// SchedulingService places events automatically. Searches run optimistically
// without locks; the commit re-validates the chosen slot under per-user
// advisory locks inside a transaction.
type SchedulingService struct {
	store        persistence.Store
	availability *AvailabilityService
	workloads    *WorkloadService
	idGenerator  func() string
	now          func() time.Time
}

// NewSchedulingService wires dependencies for auto-scheduling.
func NewSchedulingService(store persistence.Store, availability *AvailabilityService, workloads *WorkloadService, idGenerator func() string, now func() time.Time) *SchedulingService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &SchedulingService{
		store:        store,
		availability: availability,
		workloads:    workloads,
		idGenerator:  idGenerator,
		now:          now,
	}
}

// AutoScheduleEvent finds the best slot for the event and commits it. When no
// slot fits, the outcome asks for manual scheduling and suggests a wider range;
// that is a result, not an error.
func (s *SchedulingService) AutoScheduleEvent(ctx context.Context, params AutoScheduleParams) (ScheduleOutcome, error) {
	if s == nil {
		return ScheduleOutcome{}, fmt.Errorf("SchedulingService is nil")
	}
	logger := serviceLogger(ctx, "scheduling", "auto_schedule_event")

	window := scheduler.TimeRange{Start: params.RangeStart, End: params.RangeEnd}

	vErr := &ValidationError{}
	validateAutoSchedule(params, window, vErr)
	if vErr.HasErrors() {
		return ScheduleOutcome{}, vErr
	}

	required := uniqueStrings(append([]string{params.OrganizerID}, params.ParticipantIDs...))
	userIDs := uniqueStrings(append(append([]string{}, required...), params.OptionalParticipantIDs...))

	if err := ensureUsersExist(ctx, s.store, userIDs, vErr); err != nil {
		return ScheduleOutcome{}, err
	}
	if vErr.HasErrors() {
		return ScheduleOutcome{}, vErr
	}

	rule, err := s.resolveRule(ctx, params.RuleID, params.EventType)
	if err != nil {
		return ScheduleOutcome{}, err
	}
	constraints := constraintsFromRule(rule)
	duration := resolveDuration(params, rule)

	// Optimistic search.
	calendars, timezones, err := s.availability.Calendars(ctx, s.store, userIDs, window, constraints.BufferMinutes, "")
	if err != nil {
		return ScheduleOutcome{}, err
	}
	request := scheduler.Request{
		DurationMinutes: duration,
		Range:           window,
		Constraints:     constraints,
		Calendars:       calendars,
		Timezones:       timezones,
		PreferredSlots:  params.PreferredSlots,
	}
	slots, reason := scheduler.FindSlots(request)
	if len(slots) == 0 {
		logger.Info().Str("event_type", string(params.EventType)).Msg("no slot found, manual scheduling required")
		return manualOutcome(reason, window), nil
	}

	// Pessimistic commit: locks first, then one transaction.
	release := s.store.LockUsers(userIDs)
	defer release()

	var outcome ScheduleOutcome
	err = s.store.InTransaction(ctx, func(tx persistence.Store) error {
		freshCalendars, freshTimezones, err := s.availability.Calendars(ctx, tx, userIDs, window, constraints.BufferMinutes, "")
		if err != nil {
			return err
		}
		request.Calendars = freshCalendars
		request.Timezones = freshTimezones

		chosen, ok := firstStillOpen(slots, request)
		if !ok {
			outcome = manualOutcome("the chosen slots were taken while committing; retry or widen the range", window)
			return nil
		}

		event, participants, err := s.createEvent(ctx, tx, params, rule, chosen, duration, required, userIDs)
		if err != nil {
			return err
		}
		outcome = ScheduleOutcome{Event: event, Participants: participants, RankedAlternatives: slots}
		return nil
	})
	if err != nil {
		return ScheduleOutcome{}, mapStoreError(err)
	}

	if !outcome.ManualRequired {
		logger.Info().
			Str("event_id", outcome.Event.ID).
			Time("start", outcome.Event.Start).
			Int("participants", len(outcome.Participants)).
			Msg("event auto-scheduled")
	}
	return outcome, nil
}

func validateAutoSchedule(params AutoScheduleParams, window scheduler.TimeRange, vErr *ValidationError) {
	if params.Title == "" {
		vErr.add("title", "title is required")
	}
	if params.OrganizerID == "" {
		vErr.add("organizer_id", "organizer id is required")
	}
	switch params.EventType {
	case persistence.EventTypeHearing, persistence.EventTypeMeeting, persistence.EventTypeConsultation, persistence.EventTypeReview:
	default:
		vErr.add("event_type", "unknown event type")
	}
	if !window.IsValid() {
		vErr.add("time_range", "start must be before end")
	}
	if params.DurationMinutes < 0 {
		vErr.add("duration_minutes", "duration cannot be negative")
	}
}

// resolveRule prefers an explicit rule id, then the default active rule for the
// event type. No rule at all is fine; constraints fall back to the built-in
// defaults.
func (s *SchedulingService) resolveRule(ctx context.Context, ruleID string, eventType persistence.EventType) (*persistence.AutoScheduleRule, error) {
	if ruleID != "" {
		rule, err := s.store.GetRule(ctx, ruleID)
		if err != nil {
			return nil, mapStoreError(err)
		}
		if !rule.IsActive {
			return nil, fmt.Errorf("%w: rule %s is inactive", ErrStateConflict, ruleID)
		}
		return &rule, nil
	}
	rule, err := s.store.FindRuleForEventType(ctx, eventType)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil
		}
		return nil, mapStoreError(err)
	}
	return &rule, nil
}

// constraintsFromRule maps a stored rule onto search constraints, keeping the
// built-in step and slot cap.
func constraintsFromRule(rule *persistence.AutoScheduleRule) scheduler.Constraints {
	c := scheduler.DefaultConstraints()
	if rule == nil {
		return c
	}
	c.WorkStartMinute = rule.WorkStartMinute
	c.WorkEndMinute = rule.WorkEndMinute
	if len(rule.WorkingDays) > 0 {
		c.WorkingDays = rule.WorkingDays
	}
	c.BufferMinutes = rule.BufferMinutes
	c.LunchStartMinute = rule.LunchStartMinute
	c.LunchEndMinute = rule.LunchEndMinute
	c.AvoidLunchHours = rule.AvoidLunchHours
	if rule.MaxEventsPerDay > 0 {
		c.MaxEventsPerDay = rule.MaxEventsPerDay
	}
	return c
}

// resolveDuration picks the event length: explicit request, then the rule
// default, then the complexity heuristics.
func resolveDuration(params AutoScheduleParams, rule *persistence.AutoScheduleRule) int {
	if params.DurationMinutes > 0 {
		return params.DurationMinutes
	}
	if rule != nil && rule.DefaultDurationMinutes > 0 {
		return rule.DefaultDurationMinutes
	}
	complexity := params.Complexity
	if complexity == "" {
		complexity = persistence.ComplexityMedium
	}
	return plannedDurationMinutes(params.EventType, complexity)
}

// plannedDurationMinutes grades the length by event type and complexity.
func plannedDurationMinutes(eventType persistence.EventType, complexity persistence.Complexity) int {
	switch eventType {
	case persistence.EventTypeHearing:
		switch complexity {
		case persistence.ComplexityLow:
			return 60
		case persistence.ComplexityMedium:
			return 90
		case persistence.ComplexityHigh:
			return 120
		case persistence.ComplexityCritical:
			return 180
		}
		return 90
	case persistence.EventTypeMeeting:
		switch complexity {
		case persistence.ComplexityLow:
			return 30
		case persistence.ComplexityMedium:
			return 45
		}
		return 60
	case persistence.EventTypeConsultation:
		return 45
	case persistence.EventTypeReview:
		return 30
	}
	return 60
}

// minNoticeHours returns the rule's notice requirement or the default.
func minNoticeHours(rule *persistence.AutoScheduleRule) int {
	if rule != nil && rule.MinNoticeHours > 0 {
		return rule.MinNoticeHours
	}
	return defaultMinNoticeHours
}

// firstStillOpen walks the ranked slots and returns the first whose check
// window is still clear against the fresh calendars.
func firstStillOpen(slots []scheduler.Slot, request scheduler.Request) (scheduler.Slot, bool) {
	buffer := time.Duration(request.Constraints.BufferMinutes) * time.Minute
	for _, slot := range slots {
		window := scheduler.TimeRange{Start: slot.Start, End: slot.End.Add(buffer)}
		open := true
		for _, cal := range request.Calendars {
			if scheduler.HasBusyConflict(cal.Busy, window) {
				open = false
				break
			}
		}
		if open {
			return slot, true
		}
	}
	return scheduler.Slot{}, false
}

func manualOutcome(reason string, window scheduler.TimeRange) ScheduleOutcome {
	return ScheduleOutcome{
		ManualRequired:      true,
		Reason:              reason,
		SuggestedRangeStart: window.End,
		SuggestedRangeEnd:   window.End.Add(suggestedRangeExtension),
	}
}

// createEvent persists the event, its participant rows and the auto-generated
// busy declarations inside the caller's transaction.
func (s *SchedulingService) createEvent(ctx context.Context, tx persistence.Store, params AutoScheduleParams, rule *persistence.AutoScheduleRule, chosen scheduler.Slot, duration int, required, userIDs []string) (persistence.CalendarEvent, []persistence.EventParticipant, error) {
	now := s.now()

	status := persistence.EventPendingConfirmation
	if len(required) == 1 && len(userIDs) == 1 {
		// Solo events have nobody left to confirm.
		status = persistence.EventScheduled
	}

	event := persistence.CalendarEvent{
		ID:              s.idGenerator(),
		Type:            params.EventType,
		Title:           params.Title,
		Start:           chosen.Start,
		End:             chosen.End,
		DurationMinutes: duration,
		OrganizerID:     params.OrganizerID,
		Status:          status,
		ReferenceType:   params.ReferenceType,
		ReferenceID:     params.ReferenceID,
		IsAutoScheduled: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if rule != nil {
		ruleID := rule.ID
		event.RuleID = &ruleID
	}
	if err := tx.CreateEvent(ctx, event); err != nil {
		return persistence.CalendarEvent{}, nil, err
	}

	requiredSet := make(map[string]struct{}, len(required))
	for _, id := range required {
		requiredSet[id] = struct{}{}
	}

	deadline := responseDeadline(now, chosen.Start, minNoticeHours(rule))

	sorted := append([]string{}, userIDs...)
	sort.Strings(sorted)

	var participants []persistence.EventParticipant
	for _, userID := range sorted {
		participant := persistence.EventParticipant{
			ID:        s.idGenerator(),
			EventID:   event.ID,
			UserID:    userID,
			Status:    persistence.ParticipantPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		switch {
		case userID == params.OrganizerID:
			participant.Role = persistence.RoleOrganizer
			participant.Status = persistence.ParticipantAccepted
			respondedAt := now
			participant.RespondedAt = &respondedAt
		case hasKey(requiredSet, userID):
			participant.Role = persistence.RoleRequired
			d := deadline
			participant.ResponseDeadline = &d
		default:
			participant.Role = persistence.RoleOptional
			d := deadline
			participant.ResponseDeadline = &d
		}
		if err := tx.CreateParticipant(ctx, participant); err != nil {
			return persistence.CalendarEvent{}, nil, err
		}
		participants = append(participants, participant)

		if err := s.createAutoBusyRow(ctx, tx, event, userID, now); err != nil {
			return persistence.CalendarEvent{}, nil, err
		}
	}

	if err := s.applyOrganizerWorkload(ctx, tx, event); err != nil {
		return persistence.CalendarEvent{}, nil, err
	}

	return event, participants, nil
}

// createAutoBusyRow mirrors the event into an auto-generated busy declaration
// so availability views stay correct even without joining events.
func (s *SchedulingService) createAutoBusyRow(ctx context.Context, tx persistence.Store, event persistence.CalendarEvent, userID string, now time.Time) error {
	start, end := event.Start, event.End
	eventID := event.ID
	return tx.CreateAvailability(ctx, persistence.UserAvailability{
		ID:              s.idGenerator(),
		UserID:          userID,
		Type:            persistence.AvailabilityBusy,
		Start:           &start,
		End:             &end,
		IsAutoGenerated: true,
		LinkedEventID:   &eventID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// applyOrganizerWorkload updates the organizer's daily workload when the
// organizer is staff.
func (s *SchedulingService) applyOrganizerWorkload(ctx context.Context, tx persistence.Store, event persistence.CalendarEvent) error {
	organizer, err := tx.GetUser(ctx, event.OrganizerID)
	if err != nil {
		return err
	}
	if organizer.Role != persistence.RoleStaff {
		return nil
	}
	return s.workloads.ApplyScheduledEvent(ctx, tx, organizer.ID, event)
}

// responseDeadline is minNotice hours before the event, clamped to now for
// short-notice events.
func responseDeadline(now, start time.Time, noticeHours int) time.Time {
	deadline := start.Add(-time.Duration(noticeHours) * time.Hour)
	if deadline.Before(now) {
		return now
	}
	return deadline
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
