package testfixtures

import (
	"sync"
	"time"
)

// Clock is a hand-driven time source. Scheduling decisions hinge on "now"
// (notice windows, response deadlines, search horizons), so tests move time
// explicitly instead of sleeping.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock starts the clock at the given instant. A zero start falls back to
// ReferenceTime, the Monday morning the fixtures are built around.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the clock's current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc adapts the clock to the `now func() time.Time` the services inject.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set jumps the clock to the given instant.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}
