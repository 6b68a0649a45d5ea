package scheduler

import "time"

// Constraints describe the policy window a slot search operates under.
// Minute fields count minutes from local midnight.
type Constraints struct {
	WorkStartMinute  int
	WorkEndMinute    int
	WorkingDays      []time.Weekday
	BufferMinutes    int
	LunchStartMinute int
	LunchEndMinute   int
	AvoidLunchHours  bool
	MaxEventsPerDay  int
	StepMinutes      int
	MaxSlots         int
}

// DefaultConstraints is the single hardcoded fallback policy: 08:00-18:00 on
// weekdays, 15 minute buffer, lunch 11:30-13:00 avoided, at most 5 events per
// day per participant, 15 minute step, up to 30 ranked slots.
func DefaultConstraints() Constraints {
	return Constraints{
		WorkStartMinute:  8 * 60,
		WorkEndMinute:    18 * 60,
		WorkingDays:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		BufferMinutes:    15,
		LunchStartMinute: 11*60 + 30,
		LunchEndMinute:   13 * 60,
		AvoidLunchHours:  true,
		MaxEventsPerDay:  5,
		StepMinutes:      15,
		MaxSlots:         30,
	}
}

// ConstraintOverrides carries caller supplied constraint fields. Nil pointers
// leave the default untouched.
type ConstraintOverrides struct {
	WorkStartMinute  *int
	WorkEndMinute    *int
	WorkingDays      []time.Weekday
	BufferMinutes    *int
	LunchStartMinute *int
	LunchEndMinute   *int
	AvoidLunchHours  *bool
	MaxEventsPerDay  *int
	StepMinutes      *int
	MaxSlots         *int
}

// Merge applies overrides on top of the receiver and returns the result.
func (c Constraints) Merge(overrides *ConstraintOverrides) Constraints {
	if overrides == nil {
		return c
	}
	if overrides.WorkStartMinute != nil {
		c.WorkStartMinute = *overrides.WorkStartMinute
	}
	if overrides.WorkEndMinute != nil {
		c.WorkEndMinute = *overrides.WorkEndMinute
	}
	if len(overrides.WorkingDays) > 0 {
		days := make([]time.Weekday, len(overrides.WorkingDays))
		copy(days, overrides.WorkingDays)
		c.WorkingDays = days
	}
	if overrides.BufferMinutes != nil {
		c.BufferMinutes = *overrides.BufferMinutes
	}
	if overrides.LunchStartMinute != nil {
		c.LunchStartMinute = *overrides.LunchStartMinute
	}
	if overrides.LunchEndMinute != nil {
		c.LunchEndMinute = *overrides.LunchEndMinute
	}
	if overrides.AvoidLunchHours != nil {
		c.AvoidLunchHours = *overrides.AvoidLunchHours
	}
	if overrides.MaxEventsPerDay != nil {
		c.MaxEventsPerDay = *overrides.MaxEventsPerDay
	}
	if overrides.StepMinutes != nil {
		c.StepMinutes = *overrides.StepMinutes
	}
	if overrides.MaxSlots != nil {
		c.MaxSlots = *overrides.MaxSlots
	}
	return c
}

// isWorkingDay reports whether the weekday is part of the constraint set.
func (c Constraints) isWorkingDay(day time.Weekday) bool {
	for _, d := range c.WorkingDays {
		if d == day {
			return true
		}
	}
	return false
}

// minuteOfDay returns the local minute-of-day for the instant in loc.
func minuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}

// localDayKey identifies the calendar day the instant falls on in loc.
func localDayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
