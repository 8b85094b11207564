// Package clock abstracts wall-clock access so time-dependent logic, most
// importantly the monthly usage rollover, stays testable.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
