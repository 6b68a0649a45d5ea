package scheduler

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const outsideWorkingHoursPenalty = -1000

// Slot is a ranked candidate range matching the requested duration.
type Slot struct {
	Start time.Time
	End   time.Time
	Score int
}

// UserCalendar is one participant's aggregated availability picture. Busy
// ranges are already padded by the buffer policy. EventsPerDay counts active
// events keyed by the participant's local calendar day.
type UserCalendar struct {
	Busy         []TimeRange
	Available    []TimeRange
	Preferred    []TimeRange
	EventsPerDay map[string]int
}

// Request carries everything a slot search needs. The search is a pure
// computation over the supplied calendars; it never touches storage or locks.
type Request struct {
	DurationMinutes int
	Range           TimeRange
	Constraints     Constraints
	Calendars       map[string]UserCalendar
	Timezones       map[string]*time.Location
	PreferredSlots  []TimeRange
}

// FindSlots walks the range at the constraint step, filters candidates against
// every participant's calendar, scores the survivors and returns them ranked
// by score descending then start ascending. When no candidate survives, the
// second return value explains why; that is a result, not an error.
func FindSlots(req Request) ([]Slot, string) {
	c := req.Constraints
	duration := time.Duration(req.DurationMinutes) * time.Minute
	required := duration + time.Duration(c.BufferMinutes)*time.Minute
	step := time.Duration(c.StepMinutes) * time.Minute

	userIDs := make([]string, 0, len(req.Calendars))
	for id := range req.Calendars {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	var slots []Slot
	rejected := 0

	for cand := alignUp(req.Range.Start, step); !cand.Add(required).After(req.Range.End); cand = cand.Add(step) {
		if len(slots) >= c.MaxSlots {
			break
		}

		slotEnd := cand.Add(duration)
		checkWindow := TimeRange{Start: cand, End: cand.Add(required)}

		total := 0
		ok := true
		for _, id := range userIDs {
			cal := req.Calendars[id]
			loc := userLocation(req.Timezones, id)

			if HasBusyConflict(cal.Busy, checkWindow) {
				ok = false
				break
			}
			if !fitsAvailability(cal.Available, checkWindow) {
				ok = false
				break
			}
			if c.MaxEventsPerDay > 0 && cal.EventsPerDay[localDayKey(cand, loc)] >= c.MaxEventsPerDay {
				ok = false
				break
			}
			total += localScore(c, cand, slotEnd, loc)
		}
		if !ok {
			rejected++
			continue
		}

		score := 0
		if allPreferred(req.Calendars, userIDs, TimeRange{Start: cand, End: slotEnd}) {
			score += 50
		}
		if matchesPreferredSlot(req.PreferredSlots, cand, slotEnd) {
			score += 50
		}
		if len(userIDs) > 0 {
			score += int(math.Round(float64(total) / float64(len(userIDs))))
		}

		slots = append(slots, Slot{Start: cand, End: slotEnd, Score: score})
	}

	if len(slots) == 0 {
		return nil, noSlotsReason(req, rejected)
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Score == slots[j].Score {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].Score > slots[j].Score
	})

	return slots, ""
}

// alignUp rounds t up to the next multiple of step.
func alignUp(t time.Time, step time.Duration) time.Time {
	truncated := t.Truncate(step)
	if truncated.Before(t) {
		return truncated.Add(step)
	}
	return truncated
}

func userLocation(timezones map[string]*time.Location, userID string) *time.Location {
	if loc, ok := timezones[userID]; ok && loc != nil {
		return loc
	}
	return time.UTC
}

// localScore accumulates the wall-clock preference score for one participant.
// Slots outside the declared working window sink to the bottom of the ranking
// rather than being filtered, so a caller widening its range still sees them.
func localScore(c Constraints, start, slotEnd time.Time, loc *time.Location) int {
	score := 0
	startMin := minuteOfDay(start, loc)
	endMin := startMin + int(slotEnd.Sub(start)/time.Minute)

	if !c.isWorkingDay(start.In(loc).Weekday()) || startMin < c.WorkStartMinute || endMin > c.WorkEndMinute {
		score += outsideWorkingHoursPenalty
	}
	if startMin >= 9*60 && startMin < 11*60 {
		score += 20
	}
	if startMin >= 14*60 && startMin < 16*60 {
		score += 10
	}
	if c.AvoidLunchHours && startMin < c.LunchEndMinute && endMin > c.LunchStartMinute {
		score -= 50
	}
	return score
}

// allPreferred reports whether every participant that declared preferred
// ranges has the slot inside one of them. Participants with no declaration do
// not veto; a slot only earns the bonus when at least one declaration exists.
func allPreferred(calendars map[string]UserCalendar, userIDs []string, slot TimeRange) bool {
	declared := false
	for _, id := range userIDs {
		preferred := calendars[id].Preferred
		if len(preferred) == 0 {
			continue
		}
		declared = true
		inside := false
		for _, r := range preferred {
			if r.ContainsRange(slot) {
				inside = true
				break
			}
		}
		if !inside {
			return false
		}
	}
	return declared
}

func matchesPreferredSlot(preferred []TimeRange, start, slotEnd time.Time) bool {
	slot := TimeRange{Start: start, End: slotEnd}
	for _, r := range preferred {
		if r.Start.Equal(start) || r.ContainsRange(slot) {
			return true
		}
	}
	return false
}

func noSlotsReason(req Request, rejected int) string {
	if rejected == 0 {
		return fmt.Sprintf("the range %s to %s is too narrow for a %d minute slot plus %d minute buffer",
			req.Range.Start.Format(time.RFC3339), req.Range.End.Format(time.RFC3339),
			req.DurationMinutes, req.Constraints.BufferMinutes)
	}
	return fmt.Sprintf("all %d candidate slots between %s and %s conflict with participant calendars; consider widening the range",
		rejected, req.Range.Start.Format(time.RFC3339), req.Range.End.Format(time.RFC3339))
}
