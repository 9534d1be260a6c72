// Package phasedetect classifies a build agent's unstructured output lines
// into BuildPhase transitions (spec.md §4.2). It has no grounding in any
// single pack example — it is a small ordered-rule engine — but follows the
// teacher's preference for explicit tables over reflection or regexp
// compilation where a substring test suffices (distri's build.textproto
// pattern matching in internal/build is similarly table-driven).
package phasedetect

import (
	"strings"

	"github.com/dajobe/redland-forge/internal/buildphase"
)

// rule is one (phase, trigger, priority) entry. Higher Priority wins a tie;
// among equal priority the phase later in canonical order wins (spec.md
// §4.2 "tie-breaks").
type rule struct {
	phase    buildphase.Phase
	priority int
	match    func(trimmed string) bool
}

func prefix(p string) func(string) bool {
	return func(s string) bool { return strings.HasPrefix(s, p) }
}

func contains(sub string) func(string) bool {
	return func(s string) bool { return strings.Contains(s, sub) }
}

func any(fns ...func(string) bool) func(string) bool {
	return func(s string) bool {
		for _, fn := range fns {
			if fn(s) {
				return true
			}
		}
		return false
	}
}

// rules is the detector's contract; the exact trigger strings from spec.md
// §4.2 must be reproduced verbatim.
var rules = []rule{
	{buildphase.Preparing, 10, any(contains("Uploading"), contains("Extracting"), prefix("tar: "))},
	{buildphase.Configure, 10, any(contains("configure:"), contains("./configure"), contains("checking for"))},
	{buildphase.Make, 5, any(hasMakePrefix, contains("make: Entering directory"))},
	{buildphase.Check, 10, any(contains("make check"), contains("Testsuite summary"), prefix("PASS:"), prefix("FAIL:"))},
	{buildphase.Install, 10, any(contains("make install"), contains("installing "), hasInstallPrefixPath)},
	{buildphase.Completed, 20, contains("BUILD OK")},
	{buildphase.Failed, 20, contains("BUILD FAILED")},
}

func hasMakePrefix(s string) bool {
	return strings.HasPrefix(s, "make[")
}

// installPrefixes are path prefixes the agent is known to install under.
// Kept as a variable (not a const) so callers embedding a differently
// configured agent can extend it.
var installPrefixes = []string{"/usr/local/", "/opt/"}

func hasInstallPrefixPath(s string) bool {
	for _, p := range installPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Detector is monotonic: Feed never reports a phase earlier than the last
// one it reported. It is not safe for concurrent use; each host has its
// own Detector owned by the worker that feeds it, matching the controller
// being the sole consumer of the resulting transitions.
type Detector struct {
	current buildphase.Phase
}

// New returns a Detector starting at buildphase.Queued.
func New() *Detector {
	return &Detector{current: buildphase.Queued}
}

// Current returns the most recently reported phase.
func (d *Detector) Current() buildphase.Phase {
	return d.current
}

// Feed classifies one trimmed output line. It returns the new phase and
// true if a transition fired, else the zero Phase and false. A transition
// only fires if the matched phase is strictly later than the current
// phase (monotonic) and the current phase is not already terminal.
func (d *Detector) Feed(line string) (buildphase.Phase, bool) {
	if d.current.IsTerminal() {
		return buildphase.Queued, false
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return buildphase.Queued, false
	}

	bestIdx := -1
	bestPriority := -1
	for _, r := range rules {
		if r.phase.Index() <= d.current.Index() {
			continue // monotonic: never regress or re-fire the current phase
		}
		if !r.match(trimmed) {
			continue
		}
		switch {
		case r.priority > bestPriority:
			bestPriority = r.priority
			bestIdx = r.phase.Index()
		case r.priority == bestPriority && r.phase.Index() > bestIdx:
			bestIdx = r.phase.Index()
		}
	}
	if bestIdx == -1 {
		return buildphase.Queued, false
	}
	d.current = buildphase.Phase(bestIdx)
	return d.current, true
}

// MarkFailed forces a terminal Failed transition, used when the worker
// detects a nonzero exit status without an explicit "BUILD FAILED" line.
func (d *Detector) MarkFailed() {
	d.current = buildphase.Failed
}

// MarkCompleted forces a terminal Completed transition.
func (d *Detector) MarkCompleted() {
	d.current = buildphase.Completed
}
