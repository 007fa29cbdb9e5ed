// Package clock abstracts the current time so that offer expiry can be
// driven deterministically in tests.  Production code uses the system
// clock; tests use a fixed or manually advanced one.
package clock

import "time"

// Clock supplies the current instant.  All timestamps in this service
// are UTC.
type Clock interface {
    Now() time.Time
}

type systemClock struct{}

// NewSystem returns a Clock backed by time.Now in UTC.
func NewSystem() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Fixed is a Clock pinned to a settable instant.  It is intended for
// tests: advance it to simulate offers lapsing without sleeping.
type Fixed struct {
    now time.Time
}

// NewFixed returns a Fixed clock starting at t.
func NewFixed(t time.Time) *Fixed { return &Fixed{now: t.UTC()} }

// Now returns the pinned instant.
func (f *Fixed) Now() time.Time { return f.now }

// Advance moves the pinned instant forward by d.
func (f *Fixed) Advance(d time.Duration) { f.now = f.now.Add(d) }

// Set pins the clock to t.
func (f *Fixed) Set(t time.Time) { f.now = t.UTC() }
