// Package clock abstracts wall-clock time and one-shot timers so that every
// timer-driven path in the supervisor (batch flushes, input drains, trash
// expiry, flood sampling) can be driven deterministically in tests.
package clock

import "time"

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was already stopped.
	Stop() bool
}

// Clock provides the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Func adapts a scheduling function onto a base clock. The supervisor uses it
// to route timer callbacks back onto its event loop.
type Func struct {
	Base     Clock
	Schedule func(f func())
}

// Now returns the base clock's time.
func (c Func) Now() time.Time {
	return c.Base.Now()
}

// AfterFunc arms a base timer whose expiry hands f to Schedule instead of
// running it directly.
func (c Func) AfterFunc(d time.Duration, f func()) Timer {
	return c.Base.AfterFunc(d, func() { c.Schedule(f) })
}
