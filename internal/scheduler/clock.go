package scheduler

import "time"

// Clock abstracts time so the scheduler can be driven by a virtual clock in
// tests. The production implementation delegates to the time package.
type Clock interface {
	Now() time.Time
	// After behaves like time.After: it delivers one tick once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall-clock implementation used in production.
func SystemClock() Clock { return systemClock{} }
