package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/testfixtures"
)

func TestRespondToInvitationConfirmsWhenAllRequiredAccept(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h)

	outcome, err := h.Responses.RespondToInvitation(context.Background(), application.RespondParams{
		EventID: "event-1",
		UserID:  "bob",
		Status:  persistence.ParticipantAccepted,
	})
	if err != nil {
		t.Fatalf("RespondToInvitation: %v", err)
	}
	if outcome.Participant.Status != persistence.ParticipantAccepted || outcome.Participant.RespondedAt == nil {
		t.Fatal("participant row should record the acceptance")
	}
	if outcome.Event.Status != persistence.EventScheduled {
		t.Fatalf("event status = %s, want scheduled once every required attendee accepted", outcome.Event.Status)
	}

	event, err := h.Store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if event.Status != persistence.EventScheduled {
		t.Fatalf("stored event status = %s, want scheduled", event.Status)
	}
}

func TestRespondToInvitationOptionalDeclineIsQuiet(t *testing.T) {
	h := testfixtures.NewHarness()
	event := seedMeeting(t, h)
	h.SeedUsers(t, testfixtures.NewUser(testfixtures.WithUserID("carol")))
	h.SeedParticipants(t, persistence.EventParticipant{
		ID: "part-3", EventID: event.ID, UserID: "carol",
		Role: persistence.RoleOptional, Status: persistence.ParticipantPending,
	})

	outcome, err := h.Responses.RespondToInvitation(context.Background(), application.RespondParams{
		EventID: "event-1",
		UserID:  "carol",
		Status:  persistence.ParticipantDeclined,
	})
	if err != nil {
		t.Fatalf("RespondToInvitation: %v", err)
	}
	if outcome.RescheduleTriggered || outcome.ManualRequired {
		t.Fatal("an optional decline must not open a negotiation")
	}

	event2, err := h.Store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if event2.Status != persistence.EventPendingConfirmation {
		t.Fatalf("event status = %s, want unchanged", event2.Status)
	}
}

func TestRespondToInvitationRequiredDeclineTriggersReschedule(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h)

	outcome, err := h.Responses.RespondToInvitation(context.Background(), application.RespondParams{
		EventID: "event-1",
		UserID:  "bob",
		Status:  persistence.ParticipantDeclined,
	})
	if err != nil {
		t.Fatalf("RespondToInvitation: %v", err)
	}
	if !outcome.RescheduleTriggered {
		t.Fatal("a required decline should trigger a reschedule")
	}
	if outcome.ManualRequired {
		t.Fatalf("expected automatic resolution, got manual: %+v", outcome.Reschedule)
	}
	if outcome.Reschedule == nil || outcome.Reschedule.NewEvent == nil {
		t.Fatal("expected a replacement event")
	}
	if outcome.Reschedule.Request.Status != persistence.RescheduleAutoResolved {
		t.Fatalf("request status = %s, want auto_resolved", outcome.Reschedule.Request.Status)
	}

	old, err := h.Store.GetEvent(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if old.Status != persistence.EventRescheduling {
		t.Fatalf("old event status = %s, want rescheduling", old.Status)
	}

	// The decliner is invited again on the replacement.
	participants, err := h.Store.ListParticipantsForEvent(context.Background(), outcome.Reschedule.NewEvent.ID)
	if err != nil {
		t.Fatalf("ListParticipantsForEvent: %v", err)
	}
	found := false
	for _, p := range participants {
		if p.UserID == "bob" && p.Status == persistence.ParticipantPending {
			found = true
		}
	}
	if !found {
		t.Fatal("the decliner should be pending on the new event")
	}
}

func TestRespondToInvitationDeclineAtLimitGoesManual(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h, testfixtures.WithEventRescheduleCount(2))

	outcome, err := h.Responses.RespondToInvitation(context.Background(), application.RespondParams{
		EventID: "event-1",
		UserID:  "bob",
		Status:  persistence.ParticipantDeclined,
	})
	if err != nil {
		t.Fatalf("RespondToInvitation: %v", err)
	}
	if !outcome.ManualRequired {
		t.Fatal("expected a manual outcome at the reschedule ceiling")
	}
	if outcome.Event.Status != persistence.EventRescheduling {
		t.Fatalf("event status = %s, want rescheduling", outcome.Event.Status)
	}
	if outcome.Event.Metadata["manual_reschedule_required"] != "true" {
		t.Fatalf("metadata = %v, want the manual flag", outcome.Event.Metadata)
	}
}

func TestRespondToInvitationGuards(t *testing.T) {
	h := testfixtures.NewHarness()
	seedMeeting(t, h, testfixtures.WithEventStatus(persistence.EventCancelled))

	_, err := h.Responses.RespondToInvitation(context.Background(), application.RespondParams{
		EventID: "event-1",
		UserID:  "bob",
		Status:  persistence.ParticipantAccepted,
	})
	if !errors.Is(err, application.ErrStateConflict) {
		t.Fatalf("got %v, want ErrStateConflict for a cancelled event", err)
	}

	h2 := testfixtures.NewHarness()
	seedMeeting(t, h2)
	_, err = h2.Responses.RespondToInvitation(context.Background(), application.RespondParams{
		EventID: "event-1",
		UserID:  "stranger",
		Status:  persistence.ParticipantAccepted,
	})
	if !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound for a non-invitee", err)
	}

	_, err = h2.Responses.RespondToInvitation(context.Background(), application.RespondParams{
		EventID: "event-1",
		UserID:  "bob",
		Status:  persistence.ParticipantStatus("maybe"),
	})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("got %v, want a validation error for an unknown status", err)
	}
}
