package sqlite

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/example/calendar-scheduler/internal/persistence"
)

const ruleColumns = `id, event_type, default_duration_minutes, work_start_minute, work_end_minute,
	working_days, buffer_minutes, lunch_start_minute, lunch_end_minute, avoid_lunch_hours,
	max_events_per_day, max_reschedule_count, min_notice_hours, is_active, is_default, created_at, updated_at`

// CreateRule inserts an auto-schedule rule.
func (s *Storage) CreateRule(ctx context.Context, rule persistence.AutoScheduleRule) error {
	query := `INSERT INTO auto_schedule_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, query,
		rule.ID,
		string(rule.EventType),
		rule.DefaultDurationMinutes,
		rule.WorkStartMinute,
		rule.WorkEndMinute,
		encodeWeekdays(rule.WorkingDays),
		rule.BufferMinutes,
		rule.LunchStartMinute,
		rule.LunchEndMinute,
		boolInt(rule.AvoidLunchHours),
		rule.MaxEventsPerDay,
		rule.MaxRescheduleCount,
		rule.MinNoticeHours,
		boolInt(rule.IsActive),
		boolInt(rule.IsDefault),
		timeText(rule.CreatedAt),
		timeText(rule.UpdatedAt),
	)
	return mapError(err)
}

// GetRule retrieves a rule by id.
func (s *Storage) GetRule(ctx context.Context, id string) (persistence.AutoScheduleRule, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM auto_schedule_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		return persistence.AutoScheduleRule{}, mapError(err)
	}
	return rule, nil
}

// FindRuleForEventType returns the default active rule for the type, falling
// back to any active rule. ErrNotFound when no active rule exists.
func (s *Storage) FindRuleForEventType(ctx context.Context, eventType persistence.EventType) (persistence.AutoScheduleRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM auto_schedule_rules
		WHERE event_type = ? AND is_active = 1
		ORDER BY is_default DESC, created_at ASC, id ASC
		LIMIT 1`
	row := s.q.QueryRowContext(ctx, query, string(eventType))
	rule, err := scanRule(row)
	if err != nil {
		return persistence.AutoScheduleRule{}, mapError(err)
	}
	return rule, nil
}

func scanRule(row rowScanner) (persistence.AutoScheduleRule, error) {
	var rule persistence.AutoScheduleRule
	var eventType, workingDays, createdStr, updatedStr string
	var avoidLunch, active, isDefault int

	err := row.Scan(
		&rule.ID,
		&eventType,
		&rule.DefaultDurationMinutes,
		&rule.WorkStartMinute,
		&rule.WorkEndMinute,
		&workingDays,
		&rule.BufferMinutes,
		&rule.LunchStartMinute,
		&rule.LunchEndMinute,
		&avoidLunch,
		&rule.MaxEventsPerDay,
		&rule.MaxRescheduleCount,
		&rule.MinNoticeHours,
		&active,
		&isDefault,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		return persistence.AutoScheduleRule{}, err
	}

	rule.EventType = persistence.EventType(eventType)
	rule.AvoidLunchHours = avoidLunch != 0
	rule.IsActive = active != 0
	rule.IsDefault = isDefault != 0
	rule.WorkingDays = decodeWeekdays(workingDays)

	if rule.CreatedAt, err = parseTime(createdStr); err != nil {
		return persistence.AutoScheduleRule{}, err
	}
	if rule.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return persistence.AutoScheduleRule{}, err
	}
	return rule, nil
}

// encodeWeekdays stores working days as a comma separated list of weekday
// numbers (0=Sunday) for easy round-tripping.
func encodeWeekdays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, day := range days {
		parts[i] = strconv.Itoa(int(day))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(value string) []time.Weekday {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}
