package clock

import (
	"sync/atomic"
	"time"
)

// Clock is a time source returning wall-clock milliseconds.
type Clock interface {
	Now() int64
}

// System reads the process wall clock.
type System struct{}

func (System) Now() int64 {
	return time.Now().UnixMilli()
}

// Manual is a Clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	millis atomic.Int64
}

// NewManual creates a Manual clock starting at the given millisecond timestamp.
func NewManual(startMillis int64) *Manual {
	m := &Manual{}
	m.millis.Store(startMillis)
	return m
}

func (m *Manual) Now() int64 {
	return m.millis.Load()
}

// Advance moves the clock forward (or backward, for a negative d).
func (m *Manual) Advance(d time.Duration) {
	m.millis.Add(d.Milliseconds())
}

// Set jumps the clock to an absolute millisecond timestamp.
func (m *Manual) Set(millis int64) {
	m.millis.Store(millis)
}
