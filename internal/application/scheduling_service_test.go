package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/testfixtures"
)

func day(d int, hour, minute int) time.Time {
	return time.Date(2026, time.March, d, hour, minute, 0, 0, time.UTC)
}

func TestAutoScheduleEventHappyPath(t *testing.T) {
	h := testfixtures.NewHarness()
	h.SeedUsers(t,
		testfixtures.NewUser(testfixtures.WithUserID("alice")),
		testfixtures.NewUser(testfixtures.WithUserID("bob")),
	)
	h.SeedRules(t, testfixtures.NewRule(testfixtures.WithRuleID("rule-meeting")))

	outcome, err := h.Scheduling.AutoScheduleEvent(context.Background(), application.AutoScheduleParams{
		Title:           "weekly sync",
		EventType:       persistence.EventTypeMeeting,
		OrganizerID:     "alice",
		ParticipantIDs:  []string{"bob"},
		RangeStart:      day(9, 8, 0),
		RangeEnd:        day(9, 18, 0),
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("AutoScheduleEvent: %v", err)
	}
	if outcome.ManualRequired {
		t.Fatalf("unexpected manual outcome: %s", outcome.Reason)
	}

	// The rule window opens at 09:00 and morning starts rank highest.
	if !outcome.Event.Start.Equal(day(9, 9, 0)) {
		t.Fatalf("event starts at %v, want 09:00", outcome.Event.Start)
	}
	if outcome.Event.Status != persistence.EventPendingConfirmation {
		t.Fatalf("event status = %s, want pending_confirmation", outcome.Event.Status)
	}
	if outcome.Event.RuleID == nil || *outcome.Event.RuleID != "rule-meeting" {
		t.Fatalf("event rule id = %v, want rule-meeting", outcome.Event.RuleID)
	}
	if !outcome.Event.IsAutoScheduled {
		t.Fatal("event should be marked auto-scheduled")
	}
	if len(outcome.RankedAlternatives) == 0 {
		t.Fatal("expected ranked alternatives")
	}

	if len(outcome.Participants) != 2 {
		t.Fatalf("got %d participants, want 2", len(outcome.Participants))
	}
	organizer, required := outcome.Participants[0], outcome.Participants[1]
	if organizer.UserID != "alice" || organizer.Role != persistence.RoleOrganizer {
		t.Fatalf("first participant = %s/%s, want alice/organizer", organizer.UserID, organizer.Role)
	}
	if organizer.Status != persistence.ParticipantAccepted || organizer.RespondedAt == nil {
		t.Fatal("organizer should be pre-accepted")
	}
	if required.UserID != "bob" || required.Role != persistence.RoleRequired {
		t.Fatalf("second participant = %s/%s, want bob/required", required.UserID, required.Role)
	}
	if required.Status != persistence.ParticipantPending || required.ResponseDeadline == nil {
		t.Fatal("required participant should be pending with a deadline")
	}
	if !required.ResponseDeadline.Equal(day(8, 9, 0)) {
		t.Fatalf("response deadline = %v, want 24h before start", *required.ResponseDeadline)
	}

	// Both attendees get an auto-generated busy declaration linked to the event.
	rows, err := h.Store.ListAvailability(context.Background(), persistence.AvailabilityFilter{
		UserIDs: []string{"alice", "bob"},
	})
	if err != nil {
		t.Fatalf("ListAvailability: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d availability rows, want 2", len(rows))
	}
	for _, row := range rows {
		if !row.IsAutoGenerated || row.LinkedEventID == nil || *row.LinkedEventID != outcome.Event.ID {
			t.Fatalf("busy row %s is not linked to the event", row.ID)
		}
	}
}

func TestAutoScheduleEventSoloIsScheduledImmediately(t *testing.T) {
	h := testfixtures.NewHarness()
	h.SeedUsers(t, testfixtures.NewUser(testfixtures.WithUserID("alice")))

	outcome, err := h.Scheduling.AutoScheduleEvent(context.Background(), application.AutoScheduleParams{
		Title:       "focus block",
		EventType:   persistence.EventTypeReview,
		OrganizerID: "alice",
		RangeStart:  day(9, 8, 0),
		RangeEnd:    day(9, 18, 0),
	})
	if err != nil {
		t.Fatalf("AutoScheduleEvent: %v", err)
	}
	if outcome.Event.Status != persistence.EventScheduled {
		t.Fatalf("solo event status = %s, want scheduled", outcome.Event.Status)
	}
	// Reviews default to 30 minutes.
	if outcome.Event.DurationMinutes != 30 {
		t.Fatalf("duration = %d, want 30", outcome.Event.DurationMinutes)
	}
}

func TestAutoScheduleEventDurationFromComplexity(t *testing.T) {
	h := testfixtures.NewHarness()
	h.SeedUsers(t, testfixtures.NewUser(testfixtures.WithUserID("alice")))

	outcome, err := h.Scheduling.AutoScheduleEvent(context.Background(), application.AutoScheduleParams{
		Title:       "complex hearing",
		EventType:   persistence.EventTypeHearing,
		Complexity:  persistence.ComplexityHigh,
		OrganizerID: "alice",
		RangeStart:  day(9, 8, 0),
		RangeEnd:    day(9, 18, 0),
	})
	if err != nil {
		t.Fatalf("AutoScheduleEvent: %v", err)
	}
	if outcome.Event.DurationMinutes != 120 {
		t.Fatalf("duration = %d, want 120 for a high complexity hearing", outcome.Event.DurationMinutes)
	}
	if outcome.Event.End.Sub(outcome.Event.Start) != 2*time.Hour {
		t.Fatalf("window extent = %v, want 2h", outcome.Event.End.Sub(outcome.Event.Start))
	}
}

func TestAutoScheduleEventRuleDefaultBeatsComplexity(t *testing.T) {
	h := testfixtures.NewHarness()
	h.SeedUsers(t, testfixtures.NewUser(testfixtures.WithUserID("alice")))
	h.SeedRules(t, testfixtures.NewRule(
		testfixtures.WithRuleID("rule-hearing"),
		testfixtures.WithRuleEventType(persistence.EventTypeHearing),
		testfixtures.WithRuleDefaultDuration(75),
	))

	outcome, err := h.Scheduling.AutoScheduleEvent(context.Background(), application.AutoScheduleParams{
		Title:       "complex hearing with a rule",
		EventType:   persistence.EventTypeHearing,
		Complexity:  persistence.ComplexityHigh,
		OrganizerID: "alice",
		RangeStart:  day(9, 8, 0),
		RangeEnd:    day(9, 18, 0),
	})
	if err != nil {
		t.Fatalf("AutoScheduleEvent: %v", err)
	}
	// The rule's default outranks the complexity heuristic.
	if outcome.Event.DurationMinutes != 75 {
		t.Fatalf("duration = %d, want the rule default 75", outcome.Event.DurationMinutes)
	}
}

func TestAutoScheduleEventManualWhenFullyBooked(t *testing.T) {
	h := testfixtures.NewHarness()
	h.SeedUsers(t, testfixtures.NewUser(testfixtures.WithUserID("alice")))
	h.SeedAvailability(t, testfixtures.BusyRange("alice", day(9, 0, 0), day(9, 23, 0)))

	rangeEnd := day(9, 18, 0)
	outcome, err := h.Scheduling.AutoScheduleEvent(context.Background(), application.AutoScheduleParams{
		Title:           "impossible",
		EventType:       persistence.EventTypeMeeting,
		OrganizerID:     "alice",
		RangeStart:      day(9, 8, 0),
		RangeEnd:        rangeEnd,
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("AutoScheduleEvent: %v", err)
	}
	if !outcome.ManualRequired {
		t.Fatal("expected a manual outcome")
	}
	if outcome.Reason == "" {
		t.Fatal("expected a reason")
	}
	if outcome.Event.ID != "" {
		t.Fatal("no event should be created")
	}
	if !outcome.SuggestedRangeStart.Equal(rangeEnd) {
		t.Fatalf("suggested range starts at %v, want the failed range end", outcome.SuggestedRangeStart)
	}
	if !outcome.SuggestedRangeEnd.Equal(rangeEnd.Add(72 * time.Hour)) {
		t.Fatalf("suggested range ends at %v, want 72h past the failed range", outcome.SuggestedRangeEnd)
	}
}

func TestAutoScheduleEventUnknownParticipant(t *testing.T) {
	h := testfixtures.NewHarness()
	h.SeedUsers(t, testfixtures.NewUser(testfixtures.WithUserID("alice")))

	_, err := h.Scheduling.AutoScheduleEvent(context.Background(), application.AutoScheduleParams{
		Title:          "ghost invite",
		EventType:      persistence.EventTypeMeeting,
		OrganizerID:    "alice",
		ParticipantIDs: []string{"nobody"},
		RangeStart:     day(9, 8, 0),
		RangeEnd:       day(9, 18, 0),
	})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("got %v, want a validation error", err)
	}
	if _, ok := vErr.FieldErrors["user_ids"]; !ok {
		t.Fatalf("field errors = %v, want user_ids entry", vErr.FieldErrors)
	}
}

func TestAutoScheduleEventInactiveRule(t *testing.T) {
	h := testfixtures.NewHarness()
	h.SeedUsers(t, testfixtures.NewUser(testfixtures.WithUserID("alice")))
	inactive := testfixtures.NewRule(testfixtures.WithRuleID("rule-off"))
	inactive.IsActive = false
	h.SeedRules(t, inactive)

	_, err := h.Scheduling.AutoScheduleEvent(context.Background(), application.AutoScheduleParams{
		Title:       "uses dead rule",
		EventType:   persistence.EventTypeMeeting,
		OrganizerID: "alice",
		RangeStart:  day(9, 8, 0),
		RangeEnd:    day(9, 18, 0),
		RuleID:      "rule-off",
	})
	if !errors.Is(err, application.ErrStateConflict) {
		t.Fatalf("got %v, want ErrStateConflict", err)
	}
}

func TestAutoScheduleEventStaffOrganizerWorkload(t *testing.T) {
	h := testfixtures.NewHarness()
	h.SeedUsers(t, testfixtures.NewUser(testfixtures.WithUserID("stella"), testfixtures.WithStaffRole()))

	outcome, err := h.Scheduling.AutoScheduleEvent(context.Background(), application.AutoScheduleParams{
		Title:           "staff session",
		EventType:       persistence.EventTypeMeeting,
		OrganizerID:     "stella",
		RangeStart:      day(9, 8, 0),
		RangeEnd:        day(9, 18, 0),
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("AutoScheduleEvent: %v", err)
	}

	workload, err := h.Store.GetWorkload(context.Background(), "stella", outcome.Event.Start)
	if err != nil {
		t.Fatalf("GetWorkload: %v", err)
	}
	if workload.ScheduledMinutes != 60 || workload.EventCount != 1 {
		t.Fatalf("workload = %d min / %d events, want 60/1", workload.ScheduledMinutes, workload.EventCount)
	}
	if !workload.CanAcceptNewEvent || workload.IsOverloaded {
		t.Fatal("one hour should leave the day wide open")
	}
}

// Two concurrent attempts sharing a participant must not double-book them; the
// per-user locks serialize the commits and the second attempt re-validates.
func TestAutoScheduleEventConcurrentSharedParticipant(t *testing.T) {
	h := testfixtures.NewHarness()
	h.SeedUsers(t,
		testfixtures.NewUser(testfixtures.WithUserID("alice")),
		testfixtures.NewUser(testfixtures.WithUserID("bob")),
		testfixtures.NewUser(testfixtures.WithUserID("carol")),
	)

	schedule := func(organizer string) (application.ScheduleOutcome, error) {
		return h.Scheduling.AutoScheduleEvent(context.Background(), application.AutoScheduleParams{
			Title:           "contended",
			EventType:       persistence.EventTypeMeeting,
			OrganizerID:     organizer,
			ParticipantIDs:  []string{"bob"},
			RangeStart:      day(9, 9, 0),
			RangeEnd:        day(9, 12, 0),
			DurationMinutes: 60,
		})
	}

	var wg sync.WaitGroup
	outcomes := make([]application.ScheduleOutcome, 2)
	errs := make([]error, 2)
	for i, organizer := range []string{"alice", "carol"} {
		wg.Add(1)
		go func(i int, organizer string) {
			defer wg.Done()
			outcomes[i], errs[i] = schedule(organizer)
		}(i, organizer)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if outcomes[i].ManualRequired {
			t.Fatalf("attempt %d went manual: %s", i, outcomes[i].Reason)
		}
	}

	events, err := h.Store.ListEvents(context.Background(), persistence.EventFilter{
		UserIDs:  []string{"bob"},
		Statuses: persistence.ActiveEventStatuses(),
	})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events for the shared participant, want 2", len(events))
	}
	first, second := events[0], events[1]
	if first.End.After(second.Start) && second.End.After(first.Start) {
		t.Fatalf("events overlap: %v-%v and %v-%v", first.Start, first.End, second.Start, second.End)
	}
}
