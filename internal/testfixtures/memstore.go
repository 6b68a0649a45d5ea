package testfixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
)

// MemStore is an in-memory persistence.Store for tests. Transactions snapshot
// the whole data set and restore it on error, mirroring the rollback semantics
// of the SQLite backend.
type MemStore struct {
	mu    *sync.Mutex
	locks *persistence.LockTable
	data  *memData
	inTx  bool
}

type memData struct {
	events       map[string]persistence.CalendarEvent
	participants map[string]persistence.EventParticipant
	availability map[string]persistence.UserAvailability
	rules        map[string]persistence.AutoScheduleRule
	reschedules  map[string]persistence.RescheduleRequest
	workloads    map[string]persistence.StaffWorkload
	users        map[string]persistence.User
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		mu:    &sync.Mutex{},
		locks: persistence.NewLockTable(),
		data: &memData{
			events:       make(map[string]persistence.CalendarEvent),
			participants: make(map[string]persistence.EventParticipant),
			availability: make(map[string]persistence.UserAvailability),
			rules:        make(map[string]persistence.AutoScheduleRule),
			reschedules:  make(map[string]persistence.RescheduleRequest),
			workloads:    make(map[string]persistence.StaffWorkload),
			users:        make(map[string]persistence.User),
		},
	}
}

func (s *MemStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// InTransaction snapshots the data set, runs fn against an unlocked view and
// restores the snapshot when fn fails. Nested calls join the outer scope.
func (s *MemStore) InTransaction(ctx context.Context, fn func(persistence.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	scoped := &MemStore{mu: s.mu, locks: s.locks, data: s.data, inTx: true}
	if err := fn(scoped); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

// LockUsers acquires the per-user advisory locks in sorted order.
func (s *MemStore) LockUsers(userIDs []string) (release func()) {
	return s.locks.Acquire(userIDs)
}

func (d *memData) clone() *memData {
	out := &memData{
		events:       make(map[string]persistence.CalendarEvent, len(d.events)),
		participants: make(map[string]persistence.EventParticipant, len(d.participants)),
		availability: make(map[string]persistence.UserAvailability, len(d.availability)),
		rules:        make(map[string]persistence.AutoScheduleRule, len(d.rules)),
		reschedules:  make(map[string]persistence.RescheduleRequest, len(d.reschedules)),
		workloads:    make(map[string]persistence.StaffWorkload, len(d.workloads)),
		users:        make(map[string]persistence.User, len(d.users)),
	}
	for k, v := range d.events {
		out.events[k] = v
	}
	for k, v := range d.participants {
		out.participants[k] = v
	}
	for k, v := range d.availability {
		out.availability[k] = v
	}
	for k, v := range d.rules {
		out.rules[k] = v
	}
	for k, v := range d.reschedules {
		out.reschedules[k] = v
	}
	for k, v := range d.workloads {
		out.workloads[k] = v
	}
	for k, v := range d.users {
		out.users[k] = v
	}
	return out
}

// --- events ---

func (s *MemStore) CreateEvent(ctx context.Context, event persistence.CalendarEvent) error {
	defer s.lock()()
	if _, ok := s.data.events[event.ID]; ok {
		return persistence.ErrDuplicate
	}
	if !event.Start.Before(event.End) {
		return persistence.ErrConstraintViolation
	}
	s.data.events[event.ID] = event
	return nil
}

func (s *MemStore) GetEvent(ctx context.Context, id string) (persistence.CalendarEvent, error) {
	defer s.lock()()
	event, ok := s.data.events[id]
	if !ok {
		return persistence.CalendarEvent{}, persistence.ErrNotFound
	}
	return event, nil
}

func (s *MemStore) UpdateEvent(ctx context.Context, event persistence.CalendarEvent) error {
	defer s.lock()()
	if _, ok := s.data.events[event.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.data.events[event.ID] = event
	return nil
}

func (s *MemStore) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.CalendarEvent, error) {
	defer s.lock()()
	var out []persistence.CalendarEvent
	for _, event := range s.data.events {
		if !s.eventMatches(event, filter) {
			continue
		}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (s *MemStore) eventMatches(event persistence.CalendarEvent, filter persistence.EventFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if event.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.StartsAfter != nil && !event.End.After(*filter.StartsAfter) {
		return false
	}
	if filter.EndsBefore != nil && !event.Start.Before(*filter.EndsBefore) {
		return false
	}
	if len(filter.OrganizerIDs) > 0 {
		found := false
		for _, id := range filter.OrganizerIDs {
			if event.OrganizerID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(filter.UserIDs) > 0 {
		attendees := map[string]struct{}{event.OrganizerID: {}}
		for _, p := range s.data.participants {
			if p.EventID == event.ID {
				attendees[p.UserID] = struct{}{}
			}
		}
		for _, id := range filter.UserIDs {
			if _, ok := attendees[id]; ok {
				return true
			}
		}
		return false
	}
	return true
}

// --- participants ---

func (s *MemStore) CreateParticipant(ctx context.Context, participant persistence.EventParticipant) error {
	defer s.lock()()
	if _, ok := s.data.participants[participant.ID]; ok {
		return persistence.ErrDuplicate
	}
	for _, existing := range s.data.participants {
		if existing.EventID == participant.EventID && existing.UserID == participant.UserID {
			return persistence.ErrDuplicate
		}
	}
	s.data.participants[participant.ID] = participant
	return nil
}

func (s *MemStore) GetParticipant(ctx context.Context, id string) (persistence.EventParticipant, error) {
	defer s.lock()()
	participant, ok := s.data.participants[id]
	if !ok {
		return persistence.EventParticipant{}, persistence.ErrNotFound
	}
	return participant, nil
}

func (s *MemStore) UpdateParticipant(ctx context.Context, participant persistence.EventParticipant) error {
	defer s.lock()()
	if _, ok := s.data.participants[participant.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.data.participants[participant.ID] = participant
	return nil
}

func (s *MemStore) ListParticipantsForEvent(ctx context.Context, eventID string) ([]persistence.EventParticipant, error) {
	defer s.lock()()
	var out []persistence.EventParticipant
	for _, p := range s.data.participants {
		if p.EventID == eventID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// --- availability ---

func (s *MemStore) CreateAvailability(ctx context.Context, row persistence.UserAvailability) error {
	defer s.lock()()
	if _, ok := s.data.availability[row.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.data.availability[row.ID] = row
	return nil
}

func (s *MemStore) ListAvailability(ctx context.Context, filter persistence.AvailabilityFilter) ([]persistence.UserAvailability, error) {
	defer s.lock()()
	users := make(map[string]struct{}, len(filter.UserIDs))
	for _, id := range filter.UserIDs {
		users[id] = struct{}{}
	}
	var out []persistence.UserAvailability
	for _, row := range s.data.availability {
		if len(users) > 0 {
			if _, ok := users[row.UserID]; !ok {
				continue
			}
		}
		if !row.IsRecurring {
			if row.Start == nil || row.End == nil {
				continue
			}
			if filter.StartsAfter != nil && !row.End.After(*filter.StartsAfter) {
				continue
			}
			if filter.EndsBefore != nil && !row.Start.Before(*filter.EndsBefore) {
				continue
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID == out[j].UserID {
			return out[i].ID < out[j].ID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *MemStore) DeleteForLinkedEvent(ctx context.Context, eventID string) error {
	defer s.lock()()
	for id, row := range s.data.availability {
		if row.LinkedEventID != nil && *row.LinkedEventID == eventID {
			delete(s.data.availability, id)
		}
	}
	return nil
}

func (s *MemStore) DeleteForLinkedLeaveRequest(ctx context.Context, leaveRequestID string) error {
	defer s.lock()()
	for id, row := range s.data.availability {
		if row.LinkedLeaveRequestID != nil && *row.LinkedLeaveRequestID == leaveRequestID {
			delete(s.data.availability, id)
		}
	}
	return nil
}

// --- rules ---

func (s *MemStore) CreateRule(ctx context.Context, rule persistence.AutoScheduleRule) error {
	defer s.lock()()
	if _, ok := s.data.rules[rule.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.data.rules[rule.ID] = rule
	return nil
}

func (s *MemStore) GetRule(ctx context.Context, id string) (persistence.AutoScheduleRule, error) {
	defer s.lock()()
	rule, ok := s.data.rules[id]
	if !ok {
		return persistence.AutoScheduleRule{}, persistence.ErrNotFound
	}
	return rule, nil
}

func (s *MemStore) FindRuleForEventType(ctx context.Context, eventType persistence.EventType) (persistence.AutoScheduleRule, error) {
	defer s.lock()()
	var matches []persistence.AutoScheduleRule
	for _, rule := range s.data.rules {
		if rule.EventType == eventType && rule.IsActive {
			matches = append(matches, rule)
		}
	}
	if len(matches) == 0 {
		return persistence.AutoScheduleRule{}, persistence.ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].IsDefault != matches[j].IsDefault {
			return matches[i].IsDefault
		}
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	return matches[0], nil
}

// --- reschedule requests ---

func (s *MemStore) CreateRescheduleRequest(ctx context.Context, request persistence.RescheduleRequest) error {
	defer s.lock()()
	if _, ok := s.data.reschedules[request.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.data.reschedules[request.ID] = request
	return nil
}

func (s *MemStore) GetRescheduleRequest(ctx context.Context, id string) (persistence.RescheduleRequest, error) {
	defer s.lock()()
	request, ok := s.data.reschedules[id]
	if !ok {
		return persistence.RescheduleRequest{}, persistence.ErrNotFound
	}
	return request, nil
}

func (s *MemStore) UpdateRescheduleRequest(ctx context.Context, request persistence.RescheduleRequest) error {
	defer s.lock()()
	if _, ok := s.data.reschedules[request.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.data.reschedules[request.ID] = request
	return nil
}

func (s *MemStore) ListRescheduleRequestsForEvent(ctx context.Context, eventID string) ([]persistence.RescheduleRequest, error) {
	defer s.lock()()
	var out []persistence.RescheduleRequest
	for _, request := range s.data.reschedules {
		if request.EventID == eventID {
			out = append(out, request)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// --- workloads ---

func workloadKey(staffID string, date time.Time) string {
	return staffID + "|" + date.UTC().Format("2006-01-02")
}

func (s *MemStore) GetWorkload(ctx context.Context, staffID string, date time.Time) (persistence.StaffWorkload, error) {
	defer s.lock()()
	workload, ok := s.data.workloads[workloadKey(staffID, date)]
	if !ok {
		return persistence.StaffWorkload{}, persistence.ErrNotFound
	}
	return workload, nil
}

func (s *MemStore) UpsertWorkload(ctx context.Context, workload persistence.StaffWorkload) error {
	defer s.lock()()
	s.data.workloads[workloadKey(workload.StaffID, workload.Date)] = workload
	return nil
}

// --- users ---

func (s *MemStore) GetUser(ctx context.Context, id string) (persistence.User, error) {
	defer s.lock()()
	user, ok := s.data.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

func (s *MemStore) ListUsers(ctx context.Context, ids []string) ([]persistence.User, error) {
	defer s.lock()()
	var out []persistence.User
	for _, id := range ids {
		if user, ok := s.data.users[id]; ok {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) ListStaff(ctx context.Context) ([]persistence.User, error) {
	defer s.lock()()
	var out []persistence.User
	for _, user := range s.data.users {
		if user.Role == persistence.RoleStaff {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) PutUser(ctx context.Context, user persistence.User) error {
	defer s.lock()()
	s.data.users[user.ID] = user
	return nil
}

var _ persistence.Store = (*MemStore)(nil)
