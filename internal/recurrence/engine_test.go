package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/example/calendar-scheduler/internal/scheduler"
)

func TestExpandWeeklyTemplate(t *testing.T) {
	t.Parallel()

	tpl := Template{
		DayOfWeek:   time.Monday,
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
	}
	queryRange := scheduler.TimeRange{
		Start: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
	}

	ranges, err := Expand(tpl, queryRange, time.UTC)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges, want 2 Mondays", len(ranges))
	}
	wantStarts := []time.Time{
		time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC),
	}
	for i, r := range ranges {
		if !r.Start.Equal(wantStarts[i]) {
			t.Fatalf("range %d starts at %v, want %v", i, r.Start, wantStarts[i])
		}
		if r.End.Sub(r.Start) != 8*time.Hour {
			t.Fatalf("range %d has extent %v, want 8h", i, r.End.Sub(r.Start))
		}
	}
}

func TestExpandKeepsWallClockAcrossDST(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	// US DST starts Sunday 2026-03-08; the Mondays before and after must both
	// begin at 09:00 local despite the offset change.
	tpl := Template{
		DayOfWeek:   time.Monday,
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
	}
	queryRange := scheduler.TimeRange{
		Start: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
	}

	ranges, err := Expand(tpl, queryRange, loc)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges, want 2", len(ranges))
	}

	first := ranges[0].Start.In(loc)
	second := ranges[1].Start.In(loc)
	if first.Hour() != 9 || second.Hour() != 9 {
		t.Fatalf("local starts %v and %v, want 09:00 wall clock", first, second)
	}
	if ranges[0].Start.UTC().Hour() == ranges[1].Start.UTC().Hour() {
		t.Fatal("UTC instants should differ across the DST boundary")
	}
}

func TestExpandHonorsTemplateBounds(t *testing.T) {
	t.Parallel()

	startsOn := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	endsOn := time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC)
	tpl := Template{
		DayOfWeek:   time.Monday,
		StartMinute: 9 * 60,
		EndMinute:   12 * 60,
		StartsOn:    &startsOn,
		EndsOn:      &endsOn,
	}
	queryRange := scheduler.TimeRange{
		Start: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
	}

	ranges, err := Expand(tpl, queryRange, time.UTC)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(ranges) != 1 {
		t.Fatalf("got %d ranges, want only the Monday inside the bounds", len(ranges))
	}
	want := time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC)
	if !ranges[0].Start.Equal(want) {
		t.Fatalf("range starts at %v, want %v", ranges[0].Start, want)
	}
}

func TestExpandClampsPartialOverlap(t *testing.T) {
	t.Parallel()

	tpl := Template{
		DayOfWeek:   time.Monday,
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
	}
	// Query starts mid-window on Monday morning.
	queryRange := scheduler.TimeRange{
		Start: time.Date(2026, time.March, 2, 11, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC),
	}

	ranges, err := Expand(tpl, queryRange, time.UTC)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(ranges) != 1 {
		t.Fatalf("got %d ranges, want 1", len(ranges))
	}
	if !ranges[0].Start.Equal(queryRange.Start) {
		t.Fatalf("range starts at %v, want clamped to %v", ranges[0].Start, queryRange.Start)
	}
	if !ranges[0].End.Equal(time.Date(2026, time.March, 2, 17, 0, 0, 0, time.UTC)) {
		t.Fatalf("range ends at %v, want 17:00", ranges[0].End)
	}
}

func TestExpandRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	valid := scheduler.TimeRange{
		Start: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC),
	}

	_, err := Expand(Template{DayOfWeek: time.Monday, StartMinute: 600, EndMinute: 600}, valid, time.UTC)
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("empty window: got %v, want ErrInvalidWindow", err)
	}

	inverted := scheduler.TimeRange{Start: valid.End, End: valid.Start}
	_, err = Expand(Template{DayOfWeek: time.Monday, StartMinute: 540, EndMinute: 600}, inverted, time.UTC)
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("inverted range: got %v, want ErrInvalidRange", err)
	}
}

func TestExpandNilLocationDefaultsUTC(t *testing.T) {
	t.Parallel()

	tpl := Template{DayOfWeek: time.Monday, StartMinute: 540, EndMinute: 600}
	queryRange := scheduler.TimeRange{
		Start: time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC),
	}

	ranges, err := Expand(tpl, queryRange, nil)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(ranges) != 1 || !ranges[0].Start.Equal(time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expansion: %v", ranges)
	}
}
