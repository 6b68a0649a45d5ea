package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
)

const (
	defaultDailyCapacityMinutes = 480
	// overloadThreshold marks a day as overloaded at 90% utilization.
	overloadThreshold = 90.0
	// intakeCutoffThreshold stops new intake at 80% utilization.
	intakeCutoffThreshold = 80.0
)

// WorkloadService maintains the derived per-day utilization rows for staff.
// Rows are bookkeeping only; they never block scheduling by themselves.
type WorkloadService struct {
	store persistence.Store
	now   func() time.Time
}

// NewWorkloadService wires dependencies for workload tracking.
func NewWorkloadService(store persistence.Store, now func() time.Time) *WorkloadService {
	if now == nil {
		now = time.Now
	}
	return &WorkloadService{store: store, now: now}
}

// GetWorkload returns the row for the staff member on the given day, rebuilding
// it from events when no row exists yet.
func (s *WorkloadService) GetWorkload(ctx context.Context, staffID string, date time.Time) (persistence.StaffWorkload, error) {
	if s == nil {
		return persistence.StaffWorkload{}, fmt.Errorf("WorkloadService is nil")
	}
	workload, err := s.store.GetWorkload(ctx, staffID, date)
	if err == nil {
		return workload, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return persistence.StaffWorkload{}, mapStoreError(err)
	}
	return s.RebuildDay(ctx, s.store, staffID, date)
}

// ApplyScheduledEvent folds one newly placed event into the organizer's day.
// Runs inside the caller's transaction via the passed store.
func (s *WorkloadService) ApplyScheduledEvent(ctx context.Context, store persistence.Store, staffID string, event persistence.CalendarEvent) error {
	if s == nil {
		return fmt.Errorf("WorkloadService is nil")
	}
	date := utcDay(event.Start)

	workload, err := store.GetWorkload(ctx, staffID, date)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			return mapStoreError(err)
		}
		workload = persistence.StaffWorkload{StaffID: staffID, Date: date}
	}

	workload.ScheduledMinutes += event.DurationMinutes
	workload.EventCount++
	workload.UpdatedAt = s.now()
	derive(&workload)

	return mapStoreError(store.UpsertWorkload(ctx, workload))
}

// RebuildDay recomputes the row from scratch off the events the staff member
// organizes on that UTC day, matching what ApplyScheduledEvent folds in.
// Superseded rescheduling events are left out so a moved event counts once.
// Rebuilding with unchanged inputs writes the same row, so reruns converge.
func (s *WorkloadService) RebuildDay(ctx context.Context, store persistence.Store, staffID string, date time.Time) (persistence.StaffWorkload, error) {
	if s == nil {
		return persistence.StaffWorkload{}, fmt.Errorf("WorkloadService is nil")
	}
	day := utcDay(date)
	dayEnd := day.AddDate(0, 0, 1)

	events, err := store.ListEvents(ctx, persistence.EventFilter{
		OrganizerIDs: []string{staffID},
		Statuses: []persistence.EventStatus{
			persistence.EventScheduled,
			persistence.EventPendingConfirmation,
			persistence.EventInProgress,
		},
		StartsAfter: &day,
		EndsBefore:  &dayEnd,
	})
	if err != nil {
		return persistence.StaffWorkload{}, mapStoreError(err)
	}

	workload := persistence.StaffWorkload{StaffID: staffID, Date: day, UpdatedAt: s.now()}
	for _, event := range events {
		if !utcDay(event.Start).Equal(day) {
			continue
		}
		workload.ScheduledMinutes += event.DurationMinutes
		workload.EventCount++
	}
	derive(&workload)

	if err := store.UpsertWorkload(ctx, workload); err != nil {
		return persistence.StaffWorkload{}, mapStoreError(err)
	}

	logger := serviceLogger(ctx, "workload", "rebuild_day")
	logger.Debug().
		Str("staff_id", staffID).
		Str("date", day.Format("2006-01-02")).
		Int("scheduled_minutes", workload.ScheduledMinutes).
		Msg("workload rebuilt")
	return workload, nil
}

// derive fills the computed fields from the raw counters. The utilization rate
// is a percentage of the daily capacity.
func derive(workload *persistence.StaffWorkload) {
	if workload.DailyCapacityMinutes <= 0 {
		workload.DailyCapacityMinutes = defaultDailyCapacityMinutes
	}
	workload.UtilizationRate = float64(workload.ScheduledMinutes) / float64(workload.DailyCapacityMinutes) * 100
	workload.IsOverloaded = workload.UtilizationRate >= overloadThreshold
	workload.CanAcceptNewEvent = workload.UtilizationRate < intakeCutoffThreshold
}

// utcDay truncates the instant to its UTC calendar day.
func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
