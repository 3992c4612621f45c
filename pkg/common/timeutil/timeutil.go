// Package timeutil provides a small clock abstraction so components that
// care about wall time (cache freshness, probe timestamps) can be tested
// with a controlled clock.
package timeutil

import (
	"sync"
	"time"
)

// Provider is the clock interface consumed throughout the system.
type Provider interface {
	// Now returns the current time in UTC.
	Now() time.Time

	// Since returns the elapsed time since t.
	Since(t time.Time) time.Duration

	// Sleep pauses the calling goroutine for d.
	Sleep(d time.Duration)
}

// RealProvider implements Provider using the system clock.
type RealProvider struct{}

// Default returns the system-clock provider.
func Default() Provider { return RealProvider{} }

func (RealProvider) Now() time.Time                  { return time.Now().UTC() }
func (RealProvider) Since(t time.Time) time.Duration { return time.Now().UTC().Sub(t) }
func (RealProvider) Sleep(d time.Duration)           { time.Sleep(d) }

// Mock implements Provider with a manually controlled clock.
// Sleep advances the clock instead of blocking, so tests run instantly.
// Safe for concurrent use.
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMock returns a mock clock frozen at t.
func NewMock(t time.Time) *Mock { return &Mock{now: t} }

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) Since(t time.Time) time.Duration { return m.Now().Sub(t) }

func (m *Mock) Sleep(d time.Duration) { m.Advance(d) }

// SetNow pins the clock to t.
func (m *Mock) SetNow(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
