package persistence

import "time"

// EventStatus tracks a calendar event through its lifecycle.
type EventStatus string

const (
	EventPendingConfirmation EventStatus = "pending_confirmation"
	EventScheduled           EventStatus = "scheduled"
	EventInProgress          EventStatus = "in_progress"
	EventRescheduling        EventStatus = "rescheduling"
	EventCancelled           EventStatus = "cancelled"
	EventCompleted           EventStatus = "completed"
)

// ActiveEventStatuses are the statuses that contribute busy time.
func ActiveEventStatuses() []EventStatus {
	return []EventStatus{EventScheduled, EventPendingConfirmation, EventInProgress, EventRescheduling}
}

// EventType classifies an event for rule and duration resolution.
type EventType string

const (
	EventTypeHearing      EventType = "hearing"
	EventTypeMeeting      EventType = "meeting"
	EventTypeConsultation EventType = "consultation"
	EventTypeReview       EventType = "review"
)

// Complexity grades the expected effort of an event.
type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityMedium   Complexity = "medium"
	ComplexityHigh     Complexity = "high"
	ComplexityCritical Complexity = "critical"
)

// CalendarEvent is a committed or pending calendar entry. Exactly one
// participant row carries the organizer role, and the organizer is always
// pre-accepted.
type CalendarEvent struct {
	ID                string
	Type              EventType
	Title             string
	Start             time.Time
	End               time.Time
	DurationMinutes   int
	OrganizerID       string
	Status            EventStatus
	ReferenceType     *string
	ReferenceID       *string
	IsAutoScheduled   bool
	RuleID            *string
	PreviousEventID   *string
	RescheduleCount   int
	LastRescheduledAt *time.Time
	Metadata          map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ParticipantRole describes how a user relates to an event.
type ParticipantRole string

const (
	RoleOrganizer ParticipantRole = "organizer"
	RoleRequired  ParticipantRole = "required"
	RoleOptional  ParticipantRole = "optional"
)

// ParticipantStatus records the invitation response state.
type ParticipantStatus string

const (
	ParticipantPending   ParticipantStatus = "pending"
	ParticipantAccepted  ParticipantStatus = "accepted"
	ParticipantDeclined  ParticipantStatus = "declined"
	ParticipantTentative ParticipantStatus = "tentative"
)

// EventParticipant links a user to an event with a role and response state.
type EventParticipant struct {
	ID               string
	EventID          string
	UserID           string
	Role             ParticipantRole
	Status           ParticipantStatus
	ResponseDeadline *time.Time
	RespondedAt      *time.Time
	ResponseNote     *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AvailabilityType tags an availability row.
type AvailabilityType string

const (
	AvailabilityBusy         AvailabilityType = "busy"
	AvailabilityAvailable    AvailabilityType = "available"
	AvailabilityPreferred    AvailabilityType = "preferred"
	AvailabilityOutOfOffice  AvailabilityType = "out_of_office"
	AvailabilityDoNotDisturb AvailabilityType = "do_not_disturb"
)

// BusyContributing reports whether the type blocks scheduling.
func (t AvailabilityType) BusyContributing() bool {
	return t == AvailabilityBusy || t == AvailabilityOutOfOffice || t == AvailabilityDoNotDisturb
}

// UserAvailability is either a concrete range (Start/End set) or a weekly
// recurring template (IsRecurring with DayOfWeek plus local minutes). The
// linked ids are weak back-references used only for targeted cleanup.
type UserAvailability struct {
	ID                   string
	UserID               string
	Type                 AvailabilityType
	Start                *time.Time
	End                  *time.Time
	IsRecurring          bool
	DayOfWeek            *time.Weekday
	LocalStartMinute     *int
	LocalEndMinute       *int
	RecurrenceStartsOn   *time.Time
	RecurrenceEndsOn     *time.Time
	IsAutoGenerated      bool
	LinkedEventID        *string
	LinkedLeaveRequestID *string
	Note                 *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AutoScheduleRule is the per event-type scheduling policy.
type AutoScheduleRule struct {
	ID                     string
	EventType              EventType
	DefaultDurationMinutes int
	WorkStartMinute        int
	WorkEndMinute          int
	WorkingDays            []time.Weekday
	BufferMinutes          int
	LunchStartMinute       int
	LunchEndMinute         int
	AvoidLunchHours        bool
	MaxEventsPerDay        int
	MaxRescheduleCount     int
	MinNoticeHours         int
	IsActive               bool
	IsDefault              bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// RescheduleStatus tracks a reschedule request through its state machine.
type RescheduleStatus string

const (
	ReschedulePending      RescheduleStatus = "pending"
	RescheduleApproved     RescheduleStatus = "approved"
	RescheduleRejected     RescheduleStatus = "rejected"
	RescheduleAutoResolved RescheduleStatus = "auto_resolved"
	RescheduleWithdrawn    RescheduleStatus = "withdrawn"
)

// ProposedSlot is one caller-suggested replacement window.
type ProposedSlot struct {
	Start time.Time
	End   time.Time
}

// RescheduleRequest is a negotiation over moving an event. At most three
// proposed slots are stored.
type RescheduleRequest struct {
	ID                   string
	EventID              string
	RequesterID          string
	Reason               string
	ProposedSlots        []ProposedSlot
	UseAutoSchedule      bool
	Status               RescheduleStatus
	ProcessedBy          *string
	ProcessedAt          *time.Time
	ProcessingNote       *string
	NewEventID           *string
	SelectedNewStartTime *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// StaffWorkload is derived daily utilization bookkeeping, rebuilt idempotently
// by (StaffID, Date) upsert. Date is a calendar day at UTC midnight.
type StaffWorkload struct {
	StaffID              string
	Date                 time.Time
	ScheduledMinutes     int
	DailyCapacityMinutes int
	EventCount           int
	// UtilizationRate is scheduled minutes over daily capacity, as a percentage.
	UtilizationRate      float64
	IsOverloaded         bool
	CanAcceptNewEvent    bool
	UpdatedAt            time.Time
}

// User is the directory projection this core consumes: identity, role and
// timezone only.
type User struct {
	ID          string
	DisplayName string
	Role        string
	Timezone    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleStaff marks directory users whose workload is tracked.
const RoleStaff = "staff"
