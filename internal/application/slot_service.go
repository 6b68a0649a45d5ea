package application

import (
	"context"
	"fmt"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/scheduler"
)

// SlotService answers standalone slot searches. Searches read a consistent
// optimistic snapshot; nothing is locked or written.
type SlotService struct {
	store        persistence.Store
	availability *AvailabilityService
	now          func() time.Time
}

// NewSlotService wires dependencies for slot searches.
func NewSlotService(store persistence.Store, availability *AvailabilityService, now func() time.Time) *SlotService {
	if now == nil {
		now = time.Now
	}
	return &SlotService{store: store, availability: availability, now: now}
}

// FindAvailableSlots validates the request, aggregates every participant's
// calendar and returns the ranked candidates. Zero candidates with a reason is
// a successful result.
func (s *SlotService) FindAvailableSlots(ctx context.Context, params FindSlotsParams) (SlotSearchResult, error) {
	if s == nil {
		return SlotSearchResult{}, fmt.Errorf("SlotService is nil")
	}
	logger := serviceLogger(ctx, "slots", "find_available_slots")

	userIDs := uniqueStrings(params.UserIDs)
	window := scheduler.TimeRange{Start: params.RangeStart, End: params.RangeEnd}

	vErr := &ValidationError{}
	if len(userIDs) == 0 {
		vErr.add("user_ids", "at least one participant is required")
	}
	if params.DurationMinutes <= 0 {
		vErr.add("duration_minutes", "duration must be positive")
	}
	if !window.IsValid() {
		vErr.add("time_range", "start must be before end")
	}
	overrides := make(map[string]*time.Location, len(params.Timezones))
	for userID, name := range params.Timezones {
		loc, err := time.LoadLocation(name)
		if err != nil {
			vErr.add("timezones", fmt.Sprintf("unknown timezone %q for user %s", name, userID))
			continue
		}
		overrides[userID] = loc
	}
	if vErr.HasErrors() {
		return SlotSearchResult{}, vErr
	}

	if err := ensureUsersExist(ctx, s.store, userIDs, vErr); err != nil {
		return SlotSearchResult{}, err
	}
	if vErr.HasErrors() {
		return SlotSearchResult{}, vErr
	}

	constraints := scheduler.DefaultConstraints().Merge(params.Overrides)

	calendars, timezones, err := s.availability.Calendars(ctx, s.store, userIDs, window, constraints.BufferMinutes, "")
	if err != nil {
		return SlotSearchResult{}, err
	}
	for userID, loc := range overrides {
		timezones[userID] = loc
	}

	slots, reason := scheduler.FindSlots(scheduler.Request{
		DurationMinutes: params.DurationMinutes,
		Range:           window,
		Constraints:     constraints,
		Calendars:       calendars,
		Timezones:       timezones,
		PreferredSlots:  params.PreferredSlots,
	})

	logger.Debug().
		Int("participants", len(userIDs)).
		Int("slots", len(slots)).
		Msg("slot search finished")

	return SlotSearchResult{Slots: slots, Constraints: constraints, NoSlotsReason: reason}, nil
}

// ensureUsersExist records a validation error listing the unknown ids.
func ensureUsersExist(ctx context.Context, store persistence.Store, userIDs []string, vErr *ValidationError) error {
	users, err := store.ListUsers(ctx, userIDs)
	if err != nil {
		return mapStoreError(err)
	}
	if len(users) == len(userIDs) {
		return nil
	}
	known := make(map[string]struct{}, len(users))
	for _, user := range users {
		known[user.ID] = struct{}{}
	}
	for _, id := range userIDs {
		if _, ok := known[id]; !ok {
			vErr.add("user_ids", fmt.Sprintf("unknown user %s", id))
		}
	}
	return nil
}
