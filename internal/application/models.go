package application

import (
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
	"github.com/example/calendar-scheduler/internal/scheduler"
)

// SetAvailabilityParams declares a concrete or weekly recurring availability
// window for a user. Concrete declarations set Start/End; recurring ones set
// DayOfWeek plus local minutes.
type SetAvailabilityParams struct {
	UserID               string
	Type                 persistence.AvailabilityType
	Start                time.Time
	End                  time.Time
	IsRecurring          bool
	DayOfWeek            *time.Weekday
	LocalStartMinute     *int
	LocalEndMinute       *int
	RecurrenceStartsOn   *time.Time
	RecurrenceEndsOn     *time.Time
	LinkedEventID        *string
	LinkedLeaveRequestID *string
	Note                 *string
	// AllowConflicts skips the overlap check against existing busy windows.
	AllowConflicts bool
}

// FindSlotsParams describes a standalone slot search.
type FindSlotsParams struct {
	UserIDs         []string
	DurationMinutes int
	RangeStart      time.Time
	RangeEnd        time.Time
	Overrides       *scheduler.ConstraintOverrides
	PreferredSlots  []scheduler.TimeRange
	// Timezones overrides the directory timezone per user id (IANA names)
	// for wall-clock scoring.
	Timezones map[string]string
}

// SlotSearchResult carries the ranked candidates plus the constraints that
// produced them. An empty slot list with a reason is a successful search.
type SlotSearchResult struct {
	Slots         []scheduler.Slot
	Constraints   scheduler.Constraints
	NoSlotsReason string
}

// AutoScheduleParams describes an event to place automatically.
type AutoScheduleParams struct {
	Title                  string
	EventType              persistence.EventType
	Complexity             persistence.Complexity
	OrganizerID            string
	ParticipantIDs         []string
	OptionalParticipantIDs []string
	RangeStart             time.Time
	RangeEnd               time.Time
	// DurationMinutes overrides the rule and complexity derived duration when
	// positive.
	DurationMinutes int
	// RuleID selects an explicit rule; empty means resolve by event type.
	RuleID         string
	ReferenceType  *string
	ReferenceID    *string
	PreferredSlots []scheduler.TimeRange
}

// ScheduleOutcome is the result of an auto-schedule attempt. ManualRequired
// with a reason and a suggested range is a successful negative outcome, not an
// error.
type ScheduleOutcome struct {
	Event               persistence.CalendarEvent
	Participants        []persistence.EventParticipant
	RankedAlternatives  []scheduler.Slot
	ManualRequired      bool
	Reason              string
	SuggestedRangeStart time.Time
	SuggestedRangeEnd   time.Time
}

// RequestRescheduleParams opens a reschedule negotiation for an event.
type RequestRescheduleParams struct {
	EventID         string
	RequesterID     string
	Reason          string
	ProposedSlots   []persistence.ProposedSlot
	UseAutoSchedule bool
}

// ProcessRescheduleParams resolves a pending request manually.
type ProcessRescheduleParams struct {
	RequestID     string
	ProcessorID   string
	Approve       bool
	SelectedStart *time.Time
	Note          *string
}

// RescheduleOutcome reports how a negotiation ended. When ManualRequired is
// set the request stays pending and a human has to resolve it.
type RescheduleOutcome struct {
	Request        persistence.RescheduleRequest
	NewEvent       *persistence.CalendarEvent
	ManualRequired bool
	Reason         string
}

// RespondParams records an invitation response.
type RespondParams struct {
	EventID string
	UserID  string
	Status  persistence.ParticipantStatus
	Note    *string
}

// ResponseOutcome reports the effect of an invitation response on the event.
type ResponseOutcome struct {
	Event               persistence.CalendarEvent
	Participant         persistence.EventParticipant
	RescheduleTriggered bool
	Reschedule          *RescheduleOutcome
	ManualRequired      bool
}

// uniqueStrings returns the distinct non-empty values preserving first-seen order.
func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
