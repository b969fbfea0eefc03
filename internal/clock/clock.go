// Package clock abstracts the wall clock so that polling loops (daemon
// start and stop waits, driver unload retries, scheduler ticks) can be
// driven from tests without real sleeps.
package clock

import (
	"sync"
	"time"
)

// Clock reads and waits on time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
}

// RealClock is backed by the time package.
type RealClock struct{}

func (*RealClock) Now() time.Time                  { return time.Now() }
func (*RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (*RealClock) Sleep(d time.Duration)           { time.Sleep(d) }

// Default is used by components that were not handed a Clock.
var Default Clock = &RealClock{}

// Now reads Default.
func Now() time.Time { return Default.Now() }

// MockClock only moves when told to. Sleep returns immediately after
// moving the clock forward by d, then calls OnSleep if set.
type MockClock struct {
	mu  sync.RWMutex
	now time.Time
	n   int

	// OnSleep receives the running count of Sleep calls, starting at 1.
	OnSleep func(n int)
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

func (m *MockClock) Since(t time.Time) time.Duration { return m.Now().Sub(t) }

func (m *MockClock) Sleep(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.n++
	n, hook := m.n, m.OnSleep
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}
}

// Sleeps counts Sleep calls so far.
func (m *MockClock) Sleeps() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.n
}

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward without counting as a Sleep.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
