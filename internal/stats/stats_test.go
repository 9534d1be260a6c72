package stats

import (
	"testing"
	"time"

	"github.com/dajobe/redland-forge/internal/buildphase"
	"github.com/dajobe/redland-forge/internal/hoststate"
	"github.com/dajobe/redland-forge/internal/timingcache"
)

func TestComputeAggregates(t *testing.T) {
	now := time.Now()
	a := hoststate.New("u@a", "u@a", 10)
	a.Advance(buildphase.Connecting, now)
	a.Finish(buildphase.Completed, now, 0, true, "")
	b := hoststate.New("u@b", "u@b", 10)
	b.Advance(buildphase.Connecting, now)
	b.Finish(buildphase.Failed, now, 1, true, "boom")
	c := hoststate.New("u@c", "u@c", 10)
	c.Advance(buildphase.Connecting, now)
	c.Advance(buildphase.Make, now)

	agg := Compute([]*hoststate.Host{a, b, c}, now.Add(-time.Minute), now)
	if agg.Succeeded != 1 || agg.Failed != 1 || agg.InFlight != 1 || agg.Total != 3 {
		t.Fatalf("agg = %+v", agg)
	}
	if agg.Elapsed != time.Minute {
		t.Fatalf("Elapsed = %v, want 1m", agg.Elapsed)
	}
	if got, want := agg.SuccessPercent(), float64(50); got != want {
		t.Fatalf("SuccessPercent() = %v, want %v", got, want)
	}
}

func TestEstimateUnavailableWithoutCache(t *testing.T) {
	h := hoststate.New("u@a", "u@a", 10)
	h.Advance(buildphase.Connecting, time.Now())
	eta := Estimate(nil, h, time.Now())
	if eta.Available {
		t.Fatalf("expected unavailable ETA with nil cache")
	}
}

func TestEstimateAvailableWithCache(t *testing.T) {
	cache := timingcache.New(timingcache.Options{})
	cache.Record("u@a", timingcache.TimingRecord{
		Timestamp: 1, Configure: 10, Make: 100, Check: 10, Install: 10, Total: 130, Success: true,
	})
	now := time.Now()
	h := hoststate.New("u@a", "u@a", 10)
	h.Advance(buildphase.Connecting, now.Add(-5*time.Second))
	h.Advance(buildphase.Make, now)

	eta := Estimate(cache, h, now)
	if !eta.Available {
		t.Fatalf("expected available ETA")
	}
	if eta.Remaining <= 0 {
		t.Fatalf("Remaining = %v, want > 0", eta.Remaining)
	}
}
