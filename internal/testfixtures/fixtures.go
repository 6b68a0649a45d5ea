package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
)

var (
	userCounter  uint64
	eventCounter uint64
	ruleCounter  uint64
)

var referenceTime = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures. It
// is a Monday so working-day defaults apply.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserOption configures a generated user.
type UserOption func(*persistence.User)

// NewUser returns a deterministic directory user with optional overrides.
func NewUser(opts ...UserOption) persistence.User {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	user := persistence.User{
		ID:          id,
		DisplayName: fmt.Sprintf("User %03d", idx),
		Role:        "member",
		Timezone:    "UTC",
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(u *persistence.User) { u.ID = id }
}

// WithUserRole overrides the role.
func WithUserRole(role string) UserOption {
	return func(u *persistence.User) { u.Role = role }
}

// WithStaffRole marks the user as staff.
func WithStaffRole() UserOption {
	return func(u *persistence.User) { u.Role = persistence.RoleStaff }
}

// WithUserTimezone overrides the timezone name.
func WithUserTimezone(tz string) UserOption {
	return func(u *persistence.User) { u.Timezone = tz }
}

// ----------------------------- Event fixtures ----------------------------

// EventOption configures a generated event.
type EventOption func(*persistence.CalendarEvent)

// NewEvent returns a deterministic calendar event with optional overrides. The
// default is a one hour scheduled meeting starting at the reference time.
func NewEvent(opts ...EventOption) persistence.CalendarEvent {
	idx := atomic.AddUint64(&eventCounter, 1)
	start := referenceTime.Add(time.Duration(idx) * 24 * time.Hour)
	event := persistence.CalendarEvent{
		ID:              fmt.Sprintf("event-%03d", idx),
		Type:            persistence.EventTypeMeeting,
		Title:           fmt.Sprintf("Event %03d", idx),
		Start:           start,
		End:             start.Add(time.Hour),
		DurationMinutes: 60,
		OrganizerID:     "user-001",
		Status:          persistence.EventScheduled,
		CreatedAt:       referenceTime,
		UpdatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&event)
	}
	return event
}

// WithEventID overrides the event ID.
func WithEventID(id string) EventOption {
	return func(e *persistence.CalendarEvent) { e.ID = id }
}

// WithEventType sets the event type.
func WithEventType(t persistence.EventType) EventOption {
	return func(e *persistence.CalendarEvent) { e.Type = t }
}

// WithEventOrganizer sets the organizer.
func WithEventOrganizer(id string) EventOption {
	return func(e *persistence.CalendarEvent) { e.OrganizerID = id }
}

// WithEventWindow sets start and end, deriving the duration.
func WithEventWindow(start, end time.Time) EventOption {
	return func(e *persistence.CalendarEvent) {
		e.Start = start
		e.End = end
		e.DurationMinutes = int(end.Sub(start) / time.Minute)
	}
}

// WithEventStatus sets the lifecycle status.
func WithEventStatus(status persistence.EventStatus) EventOption {
	return func(e *persistence.CalendarEvent) { e.Status = status }
}

// WithEventRescheduleCount sets the reschedule counter.
func WithEventRescheduleCount(count int) EventOption {
	return func(e *persistence.CalendarEvent) { e.RescheduleCount = count }
}

// WithEventRuleID links the event to a rule.
func WithEventRuleID(id string) EventOption {
	return func(e *persistence.CalendarEvent) { e.RuleID = &id }
}

// ----------------------------- Rule fixtures -----------------------------

// RuleOption configures a generated auto-schedule rule.
type RuleOption func(*persistence.AutoScheduleRule)

// NewRule returns a deterministic active default rule for meetings: 09:00 to
// 18:00 weekdays, 15 minute buffer, lunch 12:00 to 13:00 avoided.
func NewRule(opts ...RuleOption) persistence.AutoScheduleRule {
	idx := atomic.AddUint64(&ruleCounter, 1)
	rule := persistence.AutoScheduleRule{
		ID:                     fmt.Sprintf("rule-%03d", idx),
		EventType:              persistence.EventTypeMeeting,
		DefaultDurationMinutes: 60,
		WorkStartMinute:        9 * 60,
		WorkEndMinute:          18 * 60,
		WorkingDays:            []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		BufferMinutes:          15,
		LunchStartMinute:       12 * 60,
		LunchEndMinute:         13 * 60,
		AvoidLunchHours:        true,
		MaxEventsPerDay:        5,
		MaxRescheduleCount:     2,
		MinNoticeHours:         24,
		IsActive:               true,
		IsDefault:              true,
		CreatedAt:              referenceTime,
		UpdatedAt:              referenceTime,
	}
	for _, opt := range opts {
		opt(&rule)
	}
	return rule
}

// WithRuleID overrides the rule ID.
func WithRuleID(id string) RuleOption {
	return func(r *persistence.AutoScheduleRule) { r.ID = id }
}

// WithRuleEventType sets the event type the rule applies to.
func WithRuleEventType(t persistence.EventType) RuleOption {
	return func(r *persistence.AutoScheduleRule) { r.EventType = t }
}

// WithRuleDefaultDuration sets the rule's fallback event length in minutes.
func WithRuleDefaultDuration(minutes int) RuleOption {
	return func(r *persistence.AutoScheduleRule) { r.DefaultDurationMinutes = minutes }
}

// WithRuleMaxReschedules sets the rule's reschedule cap.
func WithRuleMaxReschedules(count int) RuleOption {
	return func(r *persistence.AutoScheduleRule) { r.MaxRescheduleCount = count }
}

// WithRuleMinNoticeHours sets the notice requirement.
func WithRuleMinNoticeHours(hours int) RuleOption {
	return func(r *persistence.AutoScheduleRule) { r.MinNoticeHours = hours }
}

// WithRuleWorkingWindow sets the daily working window in minutes from
// midnight.
func WithRuleWorkingWindow(startMinute, endMinute int) RuleOption {
	return func(r *persistence.AutoScheduleRule) {
		r.WorkStartMinute = startMinute
		r.WorkEndMinute = endMinute
	}
}

// ------------------------- Availability fixtures -------------------------

// BusyRange returns a concrete busy declaration for the user.
func BusyRange(userID string, start, end time.Time) persistence.UserAvailability {
	return persistence.UserAvailability{
		ID:        fmt.Sprintf("busy-%s-%d", userID, start.Unix()),
		UserID:    userID,
		Type:      persistence.AvailabilityBusy,
		Start:     &start,
		End:       &end,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
}

// PreferredRange returns a concrete preferred declaration for the user.
func PreferredRange(userID string, start, end time.Time) persistence.UserAvailability {
	row := BusyRange(userID, start, end)
	row.ID = fmt.Sprintf("preferred-%s-%d", userID, start.Unix())
	row.Type = persistence.AvailabilityPreferred
	return row
}

// WeeklyAvailability returns a recurring available declaration on the given
// weekday between the local minutes.
func WeeklyAvailability(userID string, day time.Weekday, startMinute, endMinute int) persistence.UserAvailability {
	return persistence.UserAvailability{
		ID:               fmt.Sprintf("weekly-%s-%d", userID, day),
		UserID:           userID,
		Type:             persistence.AvailabilityAvailable,
		IsRecurring:      true,
		DayOfWeek:        &day,
		LocalStartMinute: &startMinute,
		LocalEndMinute:   &endMinute,
		CreatedAt:        referenceTime,
		UpdatedAt:        referenceTime,
	}
}
