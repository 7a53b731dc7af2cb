package clock

import (
	"sync"
	"time"
)

// Clock reports the current time in whole seconds since the Unix epoch.
type Clock interface {
	Now() int64
}

// System reads the wall clock.
type System struct{}

// Now returns the current Unix time in seconds.
func (System) Now() int64 {
	return time.Now().Unix()
}

// Manual is a clock that only moves when told to. Useful for tests.
type Manual struct {
	mu  sync.Mutex
	now int64
}

// NewManual returns a manual clock starting at the given second.
func NewManual(start int64) *Manual {
	return &Manual{now: start}
}

// Now returns the clock's current second.
func (m *Manual) Now() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t. Going backwards is allowed so callers can
// simulate a misbehaving time source.
func (m *Manual) Set(t int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d seconds and returns the new time.
func (m *Manual) Advance(d int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
	return m.now
}
