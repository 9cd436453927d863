package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a Clock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is a thread-safe, manually advanced wall clock for tests.
//
// Unlike time.Now, every reading is reproducible, so created_at and
// updated_at ordering in tests is deterministic.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock creates a clock at Epoch that does not move on its own.
func NewClock() *Clock {
	return &Clock{now: Epoch}
}

// NewTickingClock creates a clock at Epoch that advances by step after
// every Now call. Successive readings are strictly increasing.
func NewTickingClock(step time.Duration) *Clock {
	return &Clock{now: Epoch, step: step}
}

// Now returns the current time, then advances by the tick step if any.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t. Tests may move it backwards to exercise
// monotonicity guarantees.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
