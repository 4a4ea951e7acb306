package application

import "time"

// Clock lets timestamps and watchdogs be driven from tests
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by time.Now
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
