package testfixtures

import (
	"testing"
	"time"
)

func TestClockZeroStartUsesReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("got %v, want the reference time %v", clock.Now(), ReferenceTime())
	}
}

func TestClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	updated := clock.Advance(90 * time.Minute)
	if !updated.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("Advance returned %v", updated)
	}

	clock.Set(start.Add(2 * time.Hour))
	if got := clock.Now(); !got.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("got %v, want %v", got, start.Add(2*time.Hour))
	}
}

func TestClockNowFuncTracksAdvances(t *testing.T) {
	clock := NewClock(time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC))
	nowFn := clock.NowFunc()

	before := nowFn()
	clock.Advance(time.Minute)
	after := nowFn()

	if !after.Equal(before.Add(time.Minute)) {
		t.Fatalf("NowFunc returned %v after advancing from %v", after, before)
	}
}
