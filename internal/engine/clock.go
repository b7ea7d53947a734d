package engine

import "time"

// Clock abstracts wall time so the watchdog's age trigger can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}
