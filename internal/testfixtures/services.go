package testfixtures

import (
	"context"
	"testing"

	"github.com/example/calendar-scheduler/internal/application"
	"github.com/example/calendar-scheduler/internal/persistence"
)

// Harness bundles the full service stack over an in-memory store with a
// controllable clock and deterministic ids.
type Harness struct {
	Store *MemStore
	Clock *Clock
	IDs   *IDGenerator

	Availability *application.AvailabilityService
	Slots        *application.SlotService
	Scheduling   *application.SchedulingService
	Reschedules  *application.RescheduleService
	Responses    *application.ResponseService
	Workloads    *application.WorkloadService
}

// NewHarness wires every service against a fresh MemStore. The clock starts at
// ReferenceTime.
func NewHarness() *Harness {
	store := NewMemStore()
	clock := NewClock(ReferenceTime())
	ids := NewIDGenerator("id")

	availability := application.NewAvailabilityService(store, ids.NextFunc(), clock.NowFunc())
	workloads := application.NewWorkloadService(store, clock.NowFunc())
	reschedules := application.NewRescheduleService(store, availability, workloads, ids.NextFunc(), clock.NowFunc())

	return &Harness{
		Store:        store,
		Clock:        clock,
		IDs:          ids,
		Availability: availability,
		Slots:        application.NewSlotService(store, availability, clock.NowFunc()),
		Scheduling:   application.NewSchedulingService(store, availability, workloads, ids.NextFunc(), clock.NowFunc()),
		Reschedules:  reschedules,
		Responses:    application.NewResponseService(store, reschedules, ids.NextFunc(), clock.NowFunc()),
		Workloads:    workloads,
	}
}

// SeedUsers inserts the users, failing the test on error.
func (h *Harness) SeedUsers(t *testing.T, users ...persistence.User) {
	t.Helper()
	for _, user := range users {
		if err := h.Store.PutUser(context.Background(), user); err != nil {
			t.Fatalf("seed user %s: %v", user.ID, err)
		}
	}
}

// SeedRules inserts the rules, failing the test on error.
func (h *Harness) SeedRules(t *testing.T, rules ...persistence.AutoScheduleRule) {
	t.Helper()
	for _, rule := range rules {
		if err := h.Store.CreateRule(context.Background(), rule); err != nil {
			t.Fatalf("seed rule %s: %v", rule.ID, err)
		}
	}
}

// SeedEvents inserts the events, failing the test on error.
func (h *Harness) SeedEvents(t *testing.T, events ...persistence.CalendarEvent) {
	t.Helper()
	for _, event := range events {
		if err := h.Store.CreateEvent(context.Background(), event); err != nil {
			t.Fatalf("seed event %s: %v", event.ID, err)
		}
	}
}

// SeedParticipants inserts the participant rows, failing the test on error.
func (h *Harness) SeedParticipants(t *testing.T, participants ...persistence.EventParticipant) {
	t.Helper()
	for _, participant := range participants {
		if err := h.Store.CreateParticipant(context.Background(), participant); err != nil {
			t.Fatalf("seed participant %s: %v", participant.ID, err)
		}
	}
}

// SeedAvailability inserts the availability rows, failing the test on error.
func (h *Harness) SeedAvailability(t *testing.T, rows ...persistence.UserAvailability) {
	t.Helper()
	for _, row := range rows {
		if err := h.Store.CreateAvailability(context.Background(), row); err != nil {
			t.Fatalf("seed availability %s: %v", row.ID, err)
		}
	}
}
