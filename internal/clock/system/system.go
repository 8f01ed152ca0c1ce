// Package system provides the wall clock and tickers used outside tests.
package system

import "time"

// Clock implements job.Clock on top of the time package.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// NewTicker starts a ticker firing every d. The returned func stops it.
func (Clock) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}
