package persistence

import (
	"context"
	"time"
)

// EventFilter narrows event queries. UserIDs matches events where the user is
// organizer or participant; OrganizerIDs matches on the organizer alone.
type EventFilter struct {
	UserIDs      []string
	OrganizerIDs []string
	Statuses     []EventStatus
	StartsAfter  *time.Time
	EndsBefore   *time.Time
}

// EventRepository stores calendar events.
type EventRepository interface {
	CreateEvent(ctx context.Context, event CalendarEvent) error
	GetEvent(ctx context.Context, id string) (CalendarEvent, error)
	UpdateEvent(ctx context.Context, event CalendarEvent) error
	// ListEvents returns events where any filtered user is organizer or
	// participant, ordered by start then id.
	ListEvents(ctx context.Context, filter EventFilter) ([]CalendarEvent, error)
}

// ParticipantRepository stores event participant rows.
type ParticipantRepository interface {
	CreateParticipant(ctx context.Context, participant EventParticipant) error
	GetParticipant(ctx context.Context, id string) (EventParticipant, error)
	UpdateParticipant(ctx context.Context, participant EventParticipant) error
	ListParticipantsForEvent(ctx context.Context, eventID string) ([]EventParticipant, error)
}

// AvailabilityFilter narrows availability queries. Concrete rows match when
// they overlap the window; recurring rows always match (expansion happens at
// the aggregation layer).
type AvailabilityFilter struct {
	UserIDs     []string
	StartsAfter *time.Time
	EndsBefore  *time.Time
}

// AvailabilityRepository stores concrete and recurring availability rows.
type AvailabilityRepository interface {
	CreateAvailability(ctx context.Context, row UserAvailability) error
	ListAvailability(ctx context.Context, filter AvailabilityFilter) ([]UserAvailability, error)
	// DeleteForLinkedEvent removes auto-generated rows that back-reference
	// the event. Back-references are weak; deletion is always explicit.
	DeleteForLinkedEvent(ctx context.Context, eventID string) error
	DeleteForLinkedLeaveRequest(ctx context.Context, leaveRequestID string) error
}

// RuleRepository stores auto-schedule rules.
type RuleRepository interface {
	GetRule(ctx context.Context, id string) (AutoScheduleRule, error)
	// FindRuleForEventType prefers the default active rule, falling back to
	// any active rule for the type.
	FindRuleForEventType(ctx context.Context, eventType EventType) (AutoScheduleRule, error)
	CreateRule(ctx context.Context, rule AutoScheduleRule) error
}

// RescheduleRepository stores reschedule requests.
type RescheduleRepository interface {
	CreateRescheduleRequest(ctx context.Context, request RescheduleRequest) error
	GetRescheduleRequest(ctx context.Context, id string) (RescheduleRequest, error)
	UpdateRescheduleRequest(ctx context.Context, request RescheduleRequest) error
	ListRescheduleRequestsForEvent(ctx context.Context, eventID string) ([]RescheduleRequest, error)
}

// WorkloadRepository stores derived daily workload rows keyed by
// (StaffID, Date).
type WorkloadRepository interface {
	GetWorkload(ctx context.Context, staffID string, date time.Time) (StaffWorkload, error)
	UpsertWorkload(ctx context.Context, workload StaffWorkload) error
}

// UserRepository exposes the directory projection.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context, ids []string) ([]User, error)
	// ListStaff returns every user carrying the staff role.
	ListStaff(ctx context.Context) ([]User, error)
	PutUser(ctx context.Context, user User) error
}

// Store bundles every repository with transactional execution and the
// per-user advisory locks the commit paths require.
type Store interface {
	EventRepository
	ParticipantRepository
	AvailabilityRepository
	RuleRepository
	RescheduleRepository
	WorkloadRepository
	UserRepository

	// InTransaction runs fn against a transaction-scoped Store. Any error
	// rolls the whole transaction back; no partial rows survive.
	InTransaction(ctx context.Context, fn func(Store) error) error

	// LockUsers acquires the advisory lock for every user id in
	// deterministic sorted order and returns the release function. Callers
	// hold the locks across exactly one transaction.
	LockUsers(userIDs []string) (release func())
}
