package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/recurrence"
	"github.com/example/calendar-scheduler/internal/scheduler"
)

// AvailabilityService records availability declarations and aggregates the
// busy, available and preferred picture slot searches consume.
type AvailabilityService struct {
	store       persistence.Store
	idGenerator func() string
	now         func() time.Time
}

// NewAvailabilityService wires dependencies for availability operations.
func NewAvailabilityService(store persistence.Store, idGenerator func() string, now func() time.Time) *AvailabilityService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &AvailabilityService{store: store, idGenerator: idGenerator, now: now}
}

// SetAvailability validates and persists one declaration. Declarations linked
// to an event or leave request replace any earlier rows for the same link, so
// repeated submissions converge on a single row.
func (s *AvailabilityService) SetAvailability(ctx context.Context, params SetAvailabilityParams) (persistence.UserAvailability, error) {
	if s == nil {
		return persistence.UserAvailability{}, fmt.Errorf("AvailabilityService is nil")
	}
	logger := serviceLogger(ctx, "availability", "set_availability")

	vErr := &ValidationError{}
	validateAvailability(params, vErr)
	if vErr.HasErrors() {
		return persistence.UserAvailability{}, vErr
	}

	if _, err := s.store.GetUser(ctx, params.UserID); err != nil {
		return persistence.UserAvailability{}, mapStoreError(err)
	}

	if !params.AllowConflicts && !params.IsRecurring && params.Type.BusyContributing() {
		window := scheduler.TimeRange{Start: params.Start, End: params.End}
		conflict, err := s.hasBusyOverlap(ctx, params.UserID, window, params.LinkedEventID, params.LinkedLeaveRequestID)
		if err != nil {
			return persistence.UserAvailability{}, err
		}
		if conflict {
			return persistence.UserAvailability{}, fmt.Errorf("%w: window overlaps an existing busy declaration", ErrStateConflict)
		}
	}

	now := s.now()
	row := persistence.UserAvailability{
		ID:                   s.idGenerator(),
		UserID:               params.UserID,
		Type:                 params.Type,
		IsRecurring:          params.IsRecurring,
		DayOfWeek:            params.DayOfWeek,
		LocalStartMinute:     params.LocalStartMinute,
		LocalEndMinute:       params.LocalEndMinute,
		RecurrenceStartsOn:   params.RecurrenceStartsOn,
		RecurrenceEndsOn:     params.RecurrenceEndsOn,
		LinkedEventID:        params.LinkedEventID,
		LinkedLeaveRequestID: params.LinkedLeaveRequestID,
		Note:                 params.Note,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if !params.IsRecurring {
		start, end := params.Start, params.End
		row.Start = &start
		row.End = &end
	}

	err := s.store.InTransaction(ctx, func(tx persistence.Store) error {
		if params.LinkedEventID != nil {
			if err := tx.DeleteForLinkedEvent(ctx, *params.LinkedEventID); err != nil {
				return err
			}
		}
		if params.LinkedLeaveRequestID != nil {
			if err := tx.DeleteForLinkedLeaveRequest(ctx, *params.LinkedLeaveRequestID); err != nil {
				return err
			}
		}
		return tx.CreateAvailability(ctx, row)
	})
	if err != nil {
		return persistence.UserAvailability{}, mapStoreError(err)
	}

	logger.Info().Str("user_id", params.UserID).Str("type", string(params.Type)).Msg("availability recorded")
	return row, nil
}

func validateAvailability(params SetAvailabilityParams, vErr *ValidationError) {
	if params.UserID == "" {
		vErr.add("user_id", "user id is required")
	}
	switch params.Type {
	case persistence.AvailabilityBusy, persistence.AvailabilityAvailable, persistence.AvailabilityPreferred,
		persistence.AvailabilityOutOfOffice, persistence.AvailabilityDoNotDisturb:
	default:
		vErr.add("type", "unknown availability type")
	}

	if params.IsRecurring {
		if params.DayOfWeek == nil {
			vErr.add("day_of_week", "recurring declarations require a weekday")
		}
		if params.LocalStartMinute == nil || params.LocalEndMinute == nil {
			vErr.add("local_window", "recurring declarations require a local window")
		} else if *params.LocalStartMinute < 0 || *params.LocalEndMinute > 24*60 || *params.LocalEndMinute <= *params.LocalStartMinute {
			vErr.add("local_window", "local window must have positive extent within the day")
		}
		if params.RecurrenceStartsOn != nil && params.RecurrenceEndsOn != nil && !params.RecurrenceStartsOn.Before(*params.RecurrenceEndsOn) {
			vErr.add("recurrence_bounds", "recurrence bounds must have positive extent")
		}
		return
	}

	window := scheduler.TimeRange{Start: params.Start, End: params.End}
	if !window.IsValid() {
		vErr.add("time_range", "start must be before end")
	}
}

// hasBusyOverlap reports whether an existing busy-contributing concrete row
// overlaps the window, ignoring rows attached to the same link (those are
// about to be replaced).
func (s *AvailabilityService) hasBusyOverlap(ctx context.Context, userID string, window scheduler.TimeRange, linkedEventID, linkedLeaveRequestID *string) (bool, error) {
	rows, err := s.store.ListAvailability(ctx, persistence.AvailabilityFilter{
		UserIDs:     []string{userID},
		StartsAfter: &window.Start,
		EndsBefore:  &window.End,
	})
	if err != nil {
		return false, mapStoreError(err)
	}
	for _, row := range rows {
		if row.IsRecurring || !row.Type.BusyContributing() || row.Start == nil || row.End == nil {
			continue
		}
		if sameLink(row.LinkedEventID, linkedEventID) && linkedEventID != nil {
			continue
		}
		if sameLink(row.LinkedLeaveRequestID, linkedLeaveRequestID) && linkedLeaveRequestID != nil {
			continue
		}
		if window.Overlaps(scheduler.TimeRange{Start: *row.Start, End: *row.End}) {
			return true, nil
		}
	}
	return false, nil
}

func sameLink(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// Calendars aggregates each user's calendar for the window: active events and
// busy-contributing declarations become padded busy ranges, available and
// preferred declarations pass through, and per-day event counts are keyed by
// the user's local calendar day. The store is a parameter so locked
// transactions can re-aggregate against their own view.
func (s *AvailabilityService) Calendars(ctx context.Context, store persistence.Store, userIDs []string, window scheduler.TimeRange, bufferMinutes int, excludeEventID string) (map[string]scheduler.UserCalendar, map[string]*time.Location, error) {
	buffer := time.Duration(bufferMinutes) * time.Minute

	timezones, err := s.timezones(ctx, store, userIDs)
	if err != nil {
		return nil, nil, err
	}

	builders := make(map[string]*calendarBuilder, len(userIDs))
	for _, id := range userIDs {
		builders[id] = &calendarBuilder{eventsPerDay: make(map[string]int)}
	}

	events, err := store.ListEvents(ctx, persistence.EventFilter{
		UserIDs:     userIDs,
		Statuses:    persistence.ActiveEventStatuses(),
		StartsAfter: &window.Start,
		EndsBefore:  &window.End,
	})
	if err != nil {
		return nil, nil, mapStoreError(err)
	}
	for _, event := range events {
		if event.ID == excludeEventID {
			continue
		}
		attendees, err := s.attendees(ctx, store, event)
		if err != nil {
			return nil, nil, err
		}
		busy := scheduler.TimeRange{Start: event.Start, End: event.End, Kind: "event"}.Pad(buffer)
		for _, userID := range attendees {
			b, ok := builders[userID]
			if !ok {
				continue
			}
			b.busy = append(b.busy, busy)
			day := event.Start.In(timezones[userID]).Format("2006-01-02")
			b.eventsPerDay[day]++
		}
	}

	rows, err := store.ListAvailability(ctx, persistence.AvailabilityFilter{
		UserIDs:     userIDs,
		StartsAfter: &window.Start,
		EndsBefore:  &window.End,
	})
	if err != nil {
		return nil, nil, mapStoreError(err)
	}
	for _, row := range rows {
		b, ok := builders[row.UserID]
		if !ok {
			continue
		}
		if row.LinkedEventID != nil && *row.LinkedEventID == excludeEventID && excludeEventID != "" {
			continue
		}
		ranges, err := declarationRanges(row, window, timezones[row.UserID])
		if err != nil {
			return nil, nil, err
		}
		for _, r := range ranges {
			switch {
			case row.Type.BusyContributing():
				b.busy = append(b.busy, r.Pad(buffer))
			case row.Type == persistence.AvailabilityAvailable:
				b.available = append(b.available, r)
			case row.Type == persistence.AvailabilityPreferred:
				b.preferred = append(b.preferred, r)
			}
		}
	}

	calendars := make(map[string]scheduler.UserCalendar, len(userIDs))
	for id, b := range builders {
		calendars[id] = scheduler.UserCalendar{
			Busy:         scheduler.SortRanges(b.busy),
			Available:    scheduler.SortRanges(b.available),
			Preferred:    scheduler.SortRanges(b.preferred),
			EventsPerDay: b.eventsPerDay,
		}
	}
	return calendars, timezones, nil
}

type calendarBuilder struct {
	busy         []scheduler.TimeRange
	available    []scheduler.TimeRange
	preferred    []scheduler.TimeRange
	eventsPerDay map[string]int
}

// attendees returns the event's organizer plus every participant that has not
// declined.
func (s *AvailabilityService) attendees(ctx context.Context, store persistence.Store, event persistence.CalendarEvent) ([]string, error) {
	participants, err := store.ListParticipantsForEvent(ctx, event.ID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	ids := []string{event.OrganizerID}
	for _, p := range participants {
		if p.Status == persistence.ParticipantDeclined {
			continue
		}
		ids = append(ids, p.UserID)
	}
	return uniqueStrings(ids), nil
}

// declarationRanges resolves one availability row into concrete ranges inside
// the window.
func declarationRanges(row persistence.UserAvailability, window scheduler.TimeRange, loc *time.Location) ([]scheduler.TimeRange, error) {
	if !row.IsRecurring {
		if row.Start == nil || row.End == nil {
			return nil, nil
		}
		r := scheduler.TimeRange{Start: *row.Start, End: *row.End, Kind: string(row.Type)}
		if !r.Overlaps(window) {
			return nil, nil
		}
		return []scheduler.TimeRange{r}, nil
	}

	if row.DayOfWeek == nil || row.LocalStartMinute == nil || row.LocalEndMinute == nil {
		return nil, nil
	}
	tpl := recurrence.Template{
		DayOfWeek:   *row.DayOfWeek,
		StartMinute: *row.LocalStartMinute,
		EndMinute:   *row.LocalEndMinute,
		StartsOn:    row.RecurrenceStartsOn,
		EndsOn:      row.RecurrenceEndsOn,
	}
	expanded, err := recurrence.Expand(tpl, window, loc)
	if err != nil {
		return nil, fmt.Errorf("expand recurring availability %s: %w", row.ID, err)
	}
	return expanded, nil
}

// timezones resolves each user's location, defaulting to UTC for unknown users
// and unparseable zone names.
func (s *AvailabilityService) timezones(ctx context.Context, store persistence.Store, userIDs []string) (map[string]*time.Location, error) {
	users, err := store.ListUsers(ctx, userIDs)
	if err != nil {
		return nil, mapStoreError(err)
	}
	timezones := make(map[string]*time.Location, len(userIDs))
	for _, id := range userIDs {
		timezones[id] = time.UTC
	}
	for _, user := range users {
		loc, err := time.LoadLocation(user.Timezone)
		if err != nil {
			loc = time.UTC
		}
		timezones[user.ID] = loc
	}
	return timezones, nil
}
