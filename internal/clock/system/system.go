// Package system provides the wall-clock implementation of manual.Clock.
package system

import "time"

// Clock implements manual.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns time.Now in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
