// Package stats derives run-level aggregates and per-host ETAs from
// existing host state and the timing cache, without duplicating any state
// of its own (spec.md §4.3 "All are pure derivations of host states; no
// duplicated state").
package stats

import (
	"time"

	"github.com/dajobe/redland-forge/internal/buildphase"
	"github.com/dajobe/redland-forge/internal/hoststate"
	"github.com/dajobe/redland-forge/internal/timingcache"
)

// Aggregates summarizes all hosts at a point in time.
type Aggregates struct {
	Succeeded int
	Failed    int
	InFlight  int
	Total     int
	Elapsed   time.Duration
}

// Compute derives Aggregates from the current host set and a run start
// time. It never mutates hosts.
func Compute(hosts []*hoststate.Host, runStart time.Time, now time.Time) Aggregates {
	var a Aggregates
	a.Total = len(hosts)
	for _, h := range hosts {
		switch h.Status() {
		case buildphase.Completed:
			a.Succeeded++
		case buildphase.Failed:
			a.Failed++
		default:
			a.InFlight++
		}
	}
	if !runStart.IsZero() {
		a.Elapsed = now.Sub(runStart)
	}
	return a
}

// SuccessPercent returns the percentage of terminal hosts that succeeded,
// or 0 if no host has reached a terminal state yet.
func (a Aggregates) SuccessPercent() float64 {
	terminal := a.Succeeded + a.Failed
	if terminal == 0 {
		return 0
	}
	return 100 * float64(a.Succeeded) / float64(terminal)
}

// ETA is the estimated remaining time for one host, or Unavailable when no
// historical data exists (spec.md §4.3, and §9's stricter "suppress
// percentage formatting" open-question resolution).
type ETA struct {
	Remaining   time.Duration
	Available   bool
	ProgressPct float64 // only meaningful when Available
}

// Estimate computes a host's ETA from the timing cache. When --no-cache is
// in effect, cache should be nil and ETA is always Unavailable.
func Estimate(cache *timingcache.Cache, h *hoststate.Host, now time.Time) ETA {
	if cache == nil || h.Status().IsTerminal() {
		return ETA{}
	}
	remaining, ok := cache.Estimate(h.Key, h.Status(), h.ElapsedInCurrentPhase(now))
	if !ok {
		return ETA{}
	}
	entry, ok := cache.Get(h.Key)
	progress := 0.0
	if ok && entry.AverageTimes.Total > 0 {
		historicalTotal := time.Duration(entry.AverageTimes.Total * float64(time.Second))
		elapsed := h.TotalElapsed(now)
		if historicalTotal > 0 {
			progress = 100 * float64(elapsed) / float64(historicalTotal)
			if progress > 100 {
				progress = 100
			}
		}
	}
	return ETA{Remaining: remaining, Available: true, ProgressPct: progress}
}
