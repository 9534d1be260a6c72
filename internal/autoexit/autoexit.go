// Package autoexit implements the controller's auto-exit deadline
// (spec.md §4.9, §9 "Timer-based auto-exit"): rather than a real
// background timer with a callback, a deadline is recomputed on every
// host-terminal event and compared against "now" on each controller
// tick. This keeps the decision race-free and makes it trivially
// testable without sleeping.
package autoexit

import "time"

// Manager tracks the auto-exit deadline. The zero value is disabled.
type Manager struct {
	delay    time.Duration
	enabled  bool
	deadline time.Time
	armed    bool
}

// New returns a Manager that, once enabled, waits delay after the most
// recent host-terminal event before permitting shutdown.
func New(delay time.Duration, enabled bool) *Manager {
	return &Manager{delay: delay, enabled: enabled}
}

// Enabled reports whether auto-exit is active (false when started with
// --no-auto-exit).
func (m *Manager) Enabled() bool {
	return m.enabled
}

// OnHostTerminal re-arms the deadline to now+delay. Called once per host
// that transitions into a terminal state (completed or failed),
// regardless of whether every host has finished yet — this is what
// makes a later completion "reset" an earlier one's deadline.
func (m *Manager) OnHostTerminal(now time.Time) {
	if !m.enabled {
		return
	}
	m.deadline = now.Add(m.delay)
	m.armed = true
}

// Deadline returns the currently armed deadline, if any.
func (m *Manager) Deadline() (time.Time, bool) {
	return m.deadline, m.armed
}

// ShouldExit reports whether the controller should shut down: auto-exit
// must be enabled, a deadline must be armed, every host must be in a
// terminal state, and now must have reached the deadline.
func (m *Manager) ShouldExit(now time.Time, allHostsTerminal bool) bool {
	if !m.enabled || !m.armed || !allHostsTerminal {
		return false
	}
	return !now.Before(m.deadline)
}
