package clock

import "time"

// FakeClock is a Clock pinned to a fixed instant. It only moves when
// Advance is called, so tests get deterministic processed_at stamps.
type FakeClock struct {
	current time.Time
}

// NewFakeClock pins the clock to t, normalized to UTC.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t.UTC()}
}

func (c *FakeClock) Now() time.Time { return c.current }

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
