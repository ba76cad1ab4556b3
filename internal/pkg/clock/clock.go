// Package clock provides an injectable time source so that date-driven
// logic (day advancement, "today" lookups) is deterministic in tests.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall-clock implementation used in production.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a Clock pinned to a settable instant, for tests and replays.
type Fixed struct {
	T time.Time
}

// Now returns the pinned instant.
func (f *Fixed) Now() time.Time { return f.T }

// Advance moves the pinned instant forward by d.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }
