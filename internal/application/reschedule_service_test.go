package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/testfixtures"
)

// seedMeeting seeds a pending-confirmation meeting a week out with alice
// organizing and bob required, plus the default meeting rule.
func seedMeeting(t *testing.T, h *testfixtures.Harness, opts ...testfixtures.EventOption) persistence.CalendarEvent {
	t.Helper()
	h.SeedUsers(t,
		testfixtures.NewUser(testfixtures.WithUserID("alice")),
		testfixtures.NewUser(testfixtures.WithUserID("bob")),
	)
	h.SeedRules(t, testfixtures.NewRule(testfixtures.WithRuleID("rule-meeting")))

	base := []testfixtures.EventOption{
		testfixtures.WithEventID("event-1"),
		testfixtures.WithEventOrganizer("alice"),
		testfixtures.WithEventWindow(day(9, 9, 0), day(9, 10, 0)),
		testfixtures.WithEventStatus(persistence.EventPendingConfirmation),
	}
	event := testfixtures.NewEvent(append(base, opts...)...)
	h.SeedEvents(t, event)

	respondedAt := testfixtures.ReferenceTime()
	h.SeedParticipants(t,
		persistence.EventParticipant{
			ID: "part-1", EventID: event.ID, UserID: "alice",
			Role: persistence.RoleOrganizer, Status: persistence.ParticipantAccepted,
			RespondedAt: &respondedAt,
		},
		persistence.EventParticipant{
			ID: "part-2", EventID: event.ID, UserID: "bob",
			Role: persistence.RoleRequired, Status: persistence.ParticipantPending,
		},
	)
	return event
}

func TestRequestRescheduleResolvesProposedSlot(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h)

	outcome, err := h.Reschedules.RequestReschedule(context.Background(), application.RequestRescheduleParams{
		EventID:     "event-1",
		RequesterID: "alice",
		Reason:      "conflict came up",
		ProposedSlots: []persistence.ProposedSlot{
			{Start: day(10, 14, 0), End: day(10, 15, 0)},
		},
	})
	if err != nil {
		t.Fatalf("RequestReschedule: %v", err)
	}
	if outcome.ManualRequired {
		t.Fatalf("unexpected manual outcome: %s", outcome.Reason)
	}
	if outcome.Request.Status != persistence.RescheduleApproved {
		t.Fatalf("request status = %s, want approved for a matched proposed slot", outcome.Request.Status)
	}
	if outcome.NewEvent == nil {
		t.Fatal("expected a replacement event")
	}
	if !outcome.NewEvent.Start.Equal(day(10, 14, 0)) {
		t.Fatalf("new event starts at %v, want the proposed 14:00", outcome.NewEvent.Start)
	}
	if outcome.NewEvent.PreviousEventID == nil || *outcome.NewEvent.PreviousEventID != "event-1" {
		t.Fatal("new event should chain to the old one")
	}
	if outcome.NewEvent.RescheduleCount != 1 {
		t.Fatalf("reschedule count = %d, want 1", outcome.NewEvent.RescheduleCount)
	}
	if outcome.NewEvent.Status != persistence.EventPendingConfirmation {
		t.Fatalf("new event status = %s, want pending_confirmation", outcome.NewEvent.Status)
	}
	if outcome.Request.SelectedNewStartTime == nil || !outcome.Request.SelectedNewStartTime.Equal(day(10, 14, 0)) {
		t.Fatal("request should record the selected start")
	}

	old, err := h.Store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if old.Status != persistence.EventRescheduling {
		t.Fatalf("old event status = %s, want rescheduling", old.Status)
	}
	if old.RescheduleCount != 1 {
		t.Fatalf("old event reschedule count = %d, want the bump mirrored on both rows", old.RescheduleCount)
	}
	if old.LastRescheduledAt == nil {
		t.Fatal("old event should record when it was moved")
	}

	participants, err := h.Store.ListParticipantsForEvent(context.Background(), outcome.NewEvent.ID)
	if err != nil {
		t.Fatalf("ListParticipantsForEvent: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("got %d participants on the new event, want 2", len(participants))
	}
	for _, p := range participants {
		if p.UserID == "alice" {
			if p.Status != persistence.ParticipantAccepted {
				t.Fatal("organizer should stay pre-accepted on the new event")
			}
		} else if p.Status != persistence.ParticipantPending {
			t.Fatalf("participant %s status = %s, want pending again", p.UserID, p.Status)
		}
	}
}

func TestRequestRescheduleAutoResolves(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h)

	outcome, err := h.Reschedules.RequestReschedule(context.Background(), application.RequestRescheduleParams{
		EventID:         "event-1",
		RequesterID:     "bob",
		Reason:          "cannot make it",
		UseAutoSchedule: true,
	})
	if err != nil {
		t.Fatalf("RequestReschedule: %v", err)
	}
	if outcome.ManualRequired {
		t.Fatalf("unexpected manual outcome: %s", outcome.Reason)
	}
	if outcome.Request.Status != persistence.RescheduleAutoResolved {
		t.Fatalf("request status = %s, want auto_resolved", outcome.Request.Status)
	}
	// The search starts at the notice boundary: 24h after the reference time is
	// Tuesday 09:00, which is also the rule's working-window opening.
	if outcome.NewEvent == nil || !outcome.NewEvent.Start.Equal(day(3, 9, 0)) {
		t.Fatalf("new event = %+v, want a Tuesday 09:00 start", outcome.NewEvent)
	}
}

func TestRequestRescheduleNoticeWindow(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h, testfixtures.WithEventWindow(day(3, 8, 0), day(3, 9, 0)))

	outcome, err := h.Reschedules.RequestReschedule(context.Background(), application.RequestRescheduleParams{
		EventID:         "event-1",
		RequesterID:     "alice",
		UseAutoSchedule: true,
	})
	if err != nil {
		t.Fatalf("RequestReschedule: %v", err)
	}
	if !outcome.ManualRequired {
		t.Fatal("expected a manual outcome inside the notice window")
	}
	if outcome.NewEvent != nil {
		t.Fatal("no replacement event should be created")
	}

	// The refusal is recorded as a rejected request, not swallowed.
	request, err := h.Store.GetRescheduleRequest(context.Background(), outcome.Request.ID)
	if err != nil {
		t.Fatalf("GetRescheduleRequest: %v", err)
	}
	if request.Status != persistence.RescheduleRejected {
		t.Fatalf("request status = %s, want rejected", request.Status)
	}
	if request.ProcessingNote == nil {
		t.Fatal("a rejected request should carry a note")
	}
	event, err := h.Store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if event.Status != persistence.EventPendingConfirmation {
		t.Fatalf("event status = %s, the event must not move", event.Status)
	}
}

func TestRequestRescheduleTerminalEvent(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h, testfixtures.WithEventStatus(persistence.EventCancelled))

	_, err := h.Reschedules.RequestReschedule(context.Background(), application.RequestRescheduleParams{
		EventID:         "event-1",
		RequesterID:     "alice",
		UseAutoSchedule: true,
	})
	if !errors.Is(err, application.ErrStateConflict) {
		t.Fatalf("got %v, want ErrStateConflict for a cancelled event", err)
	}
}

func TestRequestRescheduleRequiresAttendee(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h)

	_, err := h.Reschedules.RequestReschedule(context.Background(), application.RequestRescheduleParams{
		EventID:         "event-1",
		RequesterID:     "mallory",
		UseAutoSchedule: true,
	})
	if !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestRequestRescheduleLimitExhausted(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h, testfixtures.WithEventRescheduleCount(2))

	outcome, err := h.Reschedules.RequestReschedule(context.Background(), application.RequestRescheduleParams{
		EventID:         "event-1",
		RequesterID:     "alice",
		UseAutoSchedule: true,
	})
	if err != nil {
		t.Fatalf("RequestReschedule: %v", err)
	}
	if !outcome.ManualRequired {
		t.Fatal("expected a manual outcome at the reschedule ceiling")
	}
	if outcome.NewEvent != nil {
		t.Fatal("no replacement event should be created")
	}

	// The refusal leaves a rejected request behind so nobody can approve it
	// later and push the event past the limit.
	request, err := h.Store.GetRescheduleRequest(context.Background(), outcome.Request.ID)
	if err != nil {
		t.Fatalf("GetRescheduleRequest: %v", err)
	}
	if request.Status != persistence.RescheduleRejected {
		t.Fatalf("request status = %s, want rejected", request.Status)
	}
	event, err := h.Store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if event.Status != persistence.EventPendingConfirmation {
		t.Fatalf("event status = %s, the event must not move", event.Status)
	}
	if event.RescheduleCount != 2 {
		t.Fatalf("event reschedule count = %d, want it untouched", event.RescheduleCount)
	}
}

func TestRequestRescheduleRuleTightensCeiling(t *testing.T) {
	h := testfixtures.NewHarness()
	h.SeedUsers(t, testfixtures.NewUser(testfixtures.WithUserID("alice")))
	h.SeedRules(t, testfixtures.NewRule(
		testfixtures.WithRuleID("rule-strict"),
		testfixtures.WithRuleMaxReschedules(1),
	))
	h.SeedEvents(t, testfixtures.NewEvent(
		testfixtures.WithEventID("event-1"),
		testfixtures.WithEventOrganizer("alice"),
		testfixtures.WithEventWindow(day(9, 9, 0), day(9, 10, 0)),
		testfixtures.WithEventStatus(persistence.EventScheduled),
		testfixtures.WithEventRescheduleCount(1),
	))

	outcome, err := h.Reschedules.RequestReschedule(context.Background(), application.RequestRescheduleParams{
		EventID:         "event-1",
		RequesterID:     "alice",
		UseAutoSchedule: true,
	})
	if err != nil {
		t.Fatalf("RequestReschedule: %v", err)
	}
	if !outcome.ManualRequired {
		t.Fatal("a rule capping reschedules at 1 should stop the second move")
	}
}

func TestRequestRescheduleProposedSlotHonorsDeclaredAvailability(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h)
	// Bob is only available Monday mornings.
	h.SeedAvailability(t, testfixtures.WeeklyAvailability("bob", time.Monday, 9*60, 12*60))

	outcome, err := h.Reschedules.RequestReschedule(context.Background(), application.RequestRescheduleParams{
		EventID:     "event-1",
		RequesterID: "alice",
		ProposedSlots: []persistence.ProposedSlot{
			{Start: day(10, 2, 0), End: day(10, 3, 0)},
			{Start: day(16, 10, 0), End: day(16, 11, 0)},
		},
	})
	if err != nil {
		t.Fatalf("RequestReschedule: %v", err)
	}
	if outcome.ManualRequired {
		t.Fatalf("unexpected manual outcome: %s", outcome.Reason)
	}
	// The Tuesday 02:00 proposal falls outside bob's declared window and must
	// lose to the Monday one even though nobody is busy at 02:00.
	if outcome.NewEvent == nil || !outcome.NewEvent.Start.Equal(day(16, 10, 0)) {
		t.Fatalf("new event = %+v, want the Monday 10:00 slot", outcome.NewEvent)
	}
	if outcome.Request.Status != persistence.RescheduleApproved {
		t.Fatalf("request status = %s, want approved", outcome.Request.Status)
	}
}

func TestRequestRescheduleProposedSlotOnlyOutsideAvailability(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h)
	h.SeedAvailability(t, testfixtures.WeeklyAvailability("bob", time.Monday, 9*60, 12*60))

	outcome, err := h.Reschedules.RequestReschedule(context.Background(), application.RequestRescheduleParams{
		EventID:     "event-1",
		RequesterID: "alice",
		ProposedSlots: []persistence.ProposedSlot{
			{Start: day(10, 2, 0), End: day(10, 3, 0)},
		},
	})
	if err != nil {
		t.Fatalf("RequestReschedule: %v", err)
	}
	if !outcome.ManualRequired {
		t.Fatal("a proposal outside every declared availability window must not resolve")
	}
	if outcome.NewEvent != nil {
		t.Fatal("no replacement event should be created")
	}
	event, err := h.Store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if event.Status != persistence.EventPendingConfirmation {
		t.Fatalf("event status = %s, the event must not move", event.Status)
	}
}

func TestRequestRescheduleValidation(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h)

	_, err := h.Reschedules.RequestReschedule(context.Background(), application.RequestRescheduleParams{
		EventID:     "event-1",
		RequesterID: "alice",
	})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("got %v, want a validation error when neither slots nor auto are given", err)
	}

	slots := make([]persistence.ProposedSlot, 4)
	for i := range slots {
		slots[i] = persistence.ProposedSlot{Start: day(10+i, 9, 0), End: day(10+i, 10, 0)}
	}
	_, err = h.Reschedules.RequestReschedule(context.Background(), application.RequestRescheduleParams{
		EventID:       "event-1",
		RequesterID:   "alice",
		ProposedSlots: slots,
	})
	if !errors.As(err, &vErr) {
		t.Fatalf("got %v, want a validation error for more than 3 proposed slots", err)
	}
}

// pendingRequest opens a negotiation whose only proposed slot violates the
// notice window, leaving the request pending for manual processing.
func pendingRequest(t *testing.T, h *testfixtures.Harness) persistence.RescheduleRequest {
	t.Helper()
	outcome, err := h.Reschedules.RequestReschedule(context.Background(), application.RequestRescheduleParams{
		EventID:     "event-1",
		RequesterID: "alice",
		ProposedSlots: []persistence.ProposedSlot{
			{Start: day(2, 10, 0), End: day(2, 11, 0)},
		},
	})
	if err != nil {
		t.Fatalf("RequestReschedule: %v", err)
	}
	if !outcome.ManualRequired {
		t.Fatal("expected the request to stay pending")
	}
	return outcome.Request
}

func TestProcessRescheduleRequestApprove(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h)
	request := pendingRequest(t, h)

	selected := day(2, 10, 0)
	outcome, err := h.Reschedules.ProcessRescheduleRequest(context.Background(), application.ProcessRescheduleParams{
		RequestID:     request.ID,
		ProcessorID:   "admin",
		Approve:       true,
		SelectedStart: &selected,
	})
	if err != nil {
		t.Fatalf("ProcessRescheduleRequest: %v", err)
	}
	if outcome.ManualRequired {
		t.Fatalf("unexpected manual outcome: %s", outcome.Reason)
	}
	if outcome.Request.Status != persistence.RescheduleApproved {
		t.Fatalf("request status = %s, want approved", outcome.Request.Status)
	}
	if outcome.Request.ProcessedBy == nil || *outcome.Request.ProcessedBy != "admin" {
		t.Fatal("request should record the processor")
	}
	if outcome.NewEvent == nil || !outcome.NewEvent.Start.Equal(selected) {
		t.Fatalf("new event = %+v, want a %v start", outcome.NewEvent, selected)
	}

	old, err := h.Store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if old.Status != persistence.EventRescheduling {
		t.Fatalf("old event status = %s, want rescheduling", old.Status)
	}
	if old.RescheduleCount != outcome.NewEvent.RescheduleCount {
		t.Fatalf("counts diverge: old %d, new %d", old.RescheduleCount, outcome.NewEvent.RescheduleCount)
	}
}

func TestProcessRescheduleRequestApproveAtLimitRejects(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h)
	request := pendingRequest(t, h)

	// The event reaches the limit while the request sits in the queue.
	event, err := h.Store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	event.RescheduleCount = 2
	if err := h.Store.UpdateEvent(context.Background(), event); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}

	selected := day(2, 10, 0)
	outcome, err := h.Reschedules.ProcessRescheduleRequest(context.Background(), application.ProcessRescheduleParams{
		RequestID:     request.ID,
		ProcessorID:   "admin",
		Approve:       true,
		SelectedStart: &selected,
	})
	if err != nil {
		t.Fatalf("ProcessRescheduleRequest: %v", err)
	}
	if !outcome.ManualRequired {
		t.Fatal("approval at the reschedule limit must not go through")
	}
	if outcome.NewEvent != nil {
		t.Fatal("no replacement event should be created")
	}
	if outcome.Request.Status != persistence.RescheduleRejected {
		t.Fatalf("request status = %s, want rejected", outcome.Request.Status)
	}

	fresh, err := h.Store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if fresh.RescheduleCount != 2 {
		t.Fatalf("event reschedule count = %d, approval must not mint a third move", fresh.RescheduleCount)
	}
	if fresh.Status != persistence.EventPendingConfirmation {
		t.Fatalf("event status = %s, the event must not move", fresh.Status)
	}
}

func TestProcessRescheduleRequestApproveRequiresProposedStart(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h)
	request := pendingRequest(t, h)

	selected := day(11, 9, 0)
	_, err := h.Reschedules.ProcessRescheduleRequest(context.Background(), application.ProcessRescheduleParams{
		RequestID:     request.ID,
		ProcessorID:   "admin",
		Approve:       true,
		SelectedStart: &selected,
	})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("got %v, want a validation error for a start outside the proposals", err)
	}
}

func TestProcessRescheduleRequestReject(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h)
	request := pendingRequest(t, h)

	note := "pick a different week"
	outcome, err := h.Reschedules.ProcessRescheduleRequest(context.Background(), application.ProcessRescheduleParams{
		RequestID:   request.ID,
		ProcessorID: "admin",
		Note:        &note,
	})
	if err != nil {
		t.Fatalf("ProcessRescheduleRequest: %v", err)
	}
	if outcome.Request.Status != persistence.RescheduleRejected {
		t.Fatalf("request status = %s, want rejected", outcome.Request.Status)
	}
	if outcome.NewEvent != nil {
		t.Fatal("rejection must not create an event")
	}

	event, err := h.Store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if event.Status != persistence.EventPendingConfirmation {
		t.Fatalf("event status = %s, the event must not move", event.Status)
	}

	// A processed request cannot be processed again.
	_, err = h.Reschedules.ProcessRescheduleRequest(context.Background(), application.ProcessRescheduleParams{
		RequestID:   request.ID,
		ProcessorID: "admin",
	})
	if !errors.Is(err, application.ErrStateConflict) {
		t.Fatalf("got %v, want ErrStateConflict for a processed request", err)
	}
}
