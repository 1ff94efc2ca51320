package clock

import "time"

// Clock abstracts wall-clock reads so decay math and retry timing can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func System() Clock { return systemClock{} }

// Fixed returns a clock pinned to t. Tests advance it via the returned setter.
type FixedClock struct {
	t time.Time
}

func NewFixed(t time.Time) *FixedClock { return &FixedClock{t: t} }

func (c *FixedClock) Now() time.Time { return c.t }

func (c *FixedClock) Set(t time.Time) { c.t = t }

func (c *FixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
