// Package clock abstracts time so that session expiry, ticket timestamps and
// the chat typing delay can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides time operations that can be mocked for testing.
type Clock interface {
	Now() time.Time
	// NowUTC is preferred for anything persisted.
	NowUTC() time.Time
	Since(t time.Time) time.Duration
	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// New returns a Clock that uses the system time.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) NowUTC() time.Time                      { return time.Now().UTC() }
func (realClock) Since(t time.Time) time.Duration        { return time.Since(t) }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Mock implements Clock with controllable time.
// After fires immediately, advancing the mock by the requested duration.
type Mock struct {
	mu      sync.RWMutex
	current time.Time
	waits   []time.Duration
}

// NewMock creates a Mock set to t.
func NewMock(t time.Time) *Mock {
	return &Mock{current: t}
}

// Now returns the mock's current time.
func (m *Mock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// NowUTC returns the mock's current time in UTC.
func (m *Mock) NowUTC() time.Time {
	return m.Now().UTC()
}

// Since returns the duration since t.
func (m *Mock) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// After records d, advances the clock and returns an already-fired channel.
func (m *Mock) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	m.waits = append(m.waits, d)
	m.current = m.current.Add(d)
	now := m.current
	m.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Waits returns every duration passed to After, in order.
func (m *Mock) Waits() []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]time.Duration, len(m.waits))
	copy(out, m.waits)
	return out
}

// Set sets the mock clock to a specific time.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// Advance moves the mock clock forward.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}
