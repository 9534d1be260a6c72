// Package hoststate defines the Host type, the controller-owned record of
// a single target's progress through the build lifecycle (spec.md §3).
package hoststate

import (
	"time"

	"github.com/dajobe/redland-forge/internal/buildphase"
	"github.com/dajobe/redland-forge/internal/outputbuf"
)

// Status mirrors buildphase.Phase but is kept as its own type because a
// host's status additionally needs pre-lifecycle bookkeeping (e.g. it is
// always exactly one buildphase.Phase, spec.md draws no distinction, but
// naming it Status keeps call sites reading "host.Status()" rather than
// "host.Phase().Phase()").
type Status = buildphase.Phase

// Host is the controller-owned state for one build target, identified by
// "user@hostname". Workers never mutate a Host directly; the controller
// applies worker events to it (spec.md §5 "Shared resources").
type Host struct {
	Key         string // canonical user@hostname
	DisplayName string

	// ScreenPosition is a grid slot index; New sets it to -1 and nothing
	// updates it afterwards (layout.Compute returns tile rectangles keyed
	// by host instead).
	ScreenPosition int

	status        buildphase.Phase
	BuildStart    time.Time
	PhaseStart    time.Time
	LastActivity  time.Time
	Output        *outputbuf.Buffer
	ExitCode      int
	HasExitCode   bool
	ErrorMessage  string
	ScrollOffset  int
	PhaseElapsed  map[buildphase.Phase]time.Duration
}

// New returns a Host in the initial Queued status.
func New(key, displayName string, outputCap int) *Host {
	return &Host{
		Key:            key,
		DisplayName:    displayName,
		ScreenPosition: -1,
		status:         buildphase.Queued,
		Output:         outputbuf.New(outputCap),
		PhaseElapsed:   make(map[buildphase.Phase]time.Duration),
	}
}

// Status returns the host's current phase.
func (h *Host) Status() buildphase.Phase {
	return h.status
}

// Advance transitions the host to phase, accruing elapsed time in the
// previously active phase (spec.md §4.3 "Phase duration accounting"). It
// is a no-op (besides logging intent at the caller) if phase does not
// strictly advance past the current status, preserving the monotonic
// invariant.
func (h *Host) Advance(phase buildphase.Phase, at time.Time) bool {
	if phase.Index() <= h.status.Index() {
		return false
	}
	if !h.PhaseStart.IsZero() {
		h.PhaseElapsed[h.status] += at.Sub(h.PhaseStart)
	}
	h.status = phase
	h.PhaseStart = at
	h.LastActivity = at
	if phase == buildphase.Connecting && h.BuildStart.IsZero() {
		h.BuildStart = at
	}
	return true
}

// Finish marks the host terminal, attributing any residual time in the
// last running phase (spec.md §4.3 "On terminal transition").
func (h *Host) Finish(phase buildphase.Phase, at time.Time, exitCode int, hasExitCode bool, errMsg string) {
	if !phase.IsTerminal() {
		return
	}
	if !h.PhaseStart.IsZero() && !h.status.IsTerminal() {
		h.PhaseElapsed[h.status] += at.Sub(h.PhaseStart)
	}
	h.status = phase
	h.LastActivity = at
	h.ExitCode = exitCode
	h.HasExitCode = hasExitCode
	h.ErrorMessage = errMsg
}

// Touch records activity (a line was received) without changing phase.
func (h *Host) Touch(at time.Time) {
	h.LastActivity = at
}

// TotalElapsed returns wall-clock time since BuildStart, or zero if the
// build has not yet started connecting.
func (h *Host) TotalElapsed(now time.Time) time.Duration {
	if h.BuildStart.IsZero() {
		return 0
	}
	return now.Sub(h.BuildStart)
}

// ElapsedInCurrentPhase returns time spent in the current phase so far.
func (h *Host) ElapsedInCurrentPhase(now time.Time) time.Duration {
	if h.PhaseStart.IsZero() {
		return 0
	}
	return now.Sub(h.PhaseStart)
}

// IsDemo reports whether key matches one of the configured demo-host
// prefixes (spec.md §4.4 "Demo hosts are recognized by a prefix set").
func IsDemo(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(key) >= len(p) && key[:len(p)] == p {
			return true
		}
	}
	return false
}

// DefaultDemoPrefixes is the configurable default prefix set; spec.md §9
// notes the full enumeration is not settled, so it is kept small and
// overridable.
var DefaultDemoPrefixes = []string{"test-", "demo-"}
