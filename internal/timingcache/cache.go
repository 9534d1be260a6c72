// Package timingcache implements the persistent store of historical
// per-host build durations (spec.md §4.4) in the JSON format specified in
// spec.md §6. Atomic saves are grounded on the teacher's use of
// github.com/google/renameio for crash-safe writes (see
// cmd/distri/build.go, cmd/autobuilder/autobuilder.go).
package timingcache

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dajobe/redland-forge/internal/buildphase"
	"github.com/dajobe/redland-forge/internal/hoststate"
	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// CurrentVersion is the on-disk schema version this package writes.
const CurrentVersion = "1.0"

const (
	// DefaultRetentionDays is the global time-based retention window.
	DefaultRetentionDays = 30
	// DefaultKeepBuilds caps the per-host recent-records ring.
	DefaultKeepBuilds = 5
	// DemoTTL is the retention window for demo/test hosts.
	DemoTTL = 1 * time.Hour
)

// TimingRecord is one completed build's per-phase durations.
type TimingRecord struct {
	Timestamp int64   `json:"timestamp"`
	Configure float64 `json:"configure_time"`
	Make      float64 `json:"make_time"`
	Check     float64 `json:"check_time"`
	Install   float64 `json:"install_time"`
	Total     float64 `json:"total_time"`
	Success   bool    `json:"success"`
}

// AverageTimes holds the rolling per-phase averages of a CacheEntry.
type AverageTimes struct {
	Configure float64 `json:"configure"`
	Make      float64 `json:"make"`
	Check     float64 `json:"check"`
	Install   float64 `json:"install"`
	Total     float64 `json:"total"`
}

func (a AverageTimes) forPhase(p buildphase.Phase) float64 {
	switch p {
	case buildphase.Configure:
		return a.Configure
	case buildphase.Make:
		return a.Make
	case buildphase.Check:
		return a.Check
	case buildphase.Install:
		return a.Install
	default:
		return 0
	}
}

// CacheEntry is the per-host-key record.
type CacheEntry struct {
	LastUpdated  int64          `json:"last_updated"`
	TotalBuilds  int            `json:"total_builds"`
	AverageTimes AverageTimes   `json:"average_times"`
	RecentBuilds []TimingRecord `json:"recent_builds"`
}

// document is the on-disk JSON shape (spec.md §6).
type document struct {
	Version             string                `json:"version"`
	CacheRetentionDays  int                   `json:"cache_retention_days"`
	Hosts               map[string]*CacheEntry `json:"hosts"`
}

// Cache is the in-memory, controller-owned timing store. Saves are
// serialized with a mutex (spec.md §4.4 "Saves are serialized").
type Cache struct {
	mu sync.Mutex

	path           string
	retentionDays  int
	keepBuilds     int
	demoPrefixes   []string
	hosts          map[string]*CacheEntry
	disabled       bool
	disabledReason string

	now func() time.Time // overridable for tests
}

// Options configures a new Cache.
type Options struct {
	Path          string
	RetentionDays int
	KeepBuilds    int
	DemoPrefixes  []string
}

// New returns an empty Cache configured by opts, applying defaults for
// zero values.
func New(opts Options) *Cache {
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.KeepBuilds <= 0 {
		opts.KeepBuilds = DefaultKeepBuilds
	}
	if opts.DemoPrefixes == nil {
		opts.DemoPrefixes = hoststate.DefaultDemoPrefixes
	}
	return &Cache{
		path:          opts.Path,
		retentionDays: opts.RetentionDays,
		keepBuilds:    opts.KeepBuilds,
		demoPrefixes:  opts.DemoPrefixes,
		hosts:         make(map[string]*CacheEntry),
		now:           time.Now,
	}
}

// Disabled reports whether the cache has degraded to a no-op (spec.md §7
// "Cache errors degrade to 'cache disabled for this run'").
func (c *Cache) Disabled() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled, c.disabledReason
}

func (c *Cache) disable(reason string) {
	c.disabled = true
	c.disabledReason = reason
}

// Load reads the JSON document at path, replacing the Cache's contents.
// A parse error or unknown version is non-fatal: it logs (via the
// returned warning string) and starts fresh, per spec.md §4.4.
func Load(path string, opts Options) (*Cache, string) {
	c := New(opts)
	c.path = path
	if path == "" {
		return c, ""
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, ""
		}
		return c, xerrors.Errorf("open cache %s: %w", path, err).Error()
	}
	defer f.Close()

	var doc document
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return c, xerrors.Errorf("parse cache %s: %w", path, err).Error()
	}
	if doc.Version != CurrentVersion {
		return c, xerrors.Errorf("cache %s: unknown version %q, starting fresh", path, doc.Version).Error()
	}
	if doc.CacheRetentionDays > 0 {
		c.retentionDays = doc.CacheRetentionDays
	}
	for k, v := range doc.Hosts {
		c.hosts[k] = v
	}
	c.cleanupLocked()
	return c, ""
}

// Record updates averages incrementally and appends to the recent ring,
// evicting beyond keepBuilds (spec.md §4.4).
func (c *Cache) Record(hostKey string, rec TimingRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return
	}
	e, ok := c.hosts[hostKey]
	if !ok {
		e = &CacheEntry{}
		c.hosts[hostKey] = e
	}
	e.TotalBuilds++
	n := float64(e.TotalBuilds)
	e.AverageTimes.Configure = incrementalAvg(e.AverageTimes.Configure, rec.Configure, n)
	e.AverageTimes.Make = incrementalAvg(e.AverageTimes.Make, rec.Make, n)
	e.AverageTimes.Check = incrementalAvg(e.AverageTimes.Check, rec.Check, n)
	e.AverageTimes.Install = incrementalAvg(e.AverageTimes.Install, rec.Install, n)
	e.AverageTimes.Total = incrementalAvg(e.AverageTimes.Total, rec.Total, n)
	e.LastUpdated = rec.Timestamp

	e.RecentBuilds = append(e.RecentBuilds, rec)
	if len(e.RecentBuilds) > c.keepBuilds {
		e.RecentBuilds = e.RecentBuilds[len(e.RecentBuilds)-c.keepBuilds:]
	}
}

// newAvg = oldAvg*(n-1)/n + sample/n, per spec.md §4.4.
func incrementalAvg(oldAvg, sample, n float64) float64 {
	if n <= 0 {
		return sample
	}
	return oldAvg*(n-1)/n + sample/n
}

// Estimate returns the ETA for a host currently in currentPhase having
// spent elapsedInPhase there, per spec.md §4.3. It returns ok=false if no
// cache entry exists (ETA unavailable) or the cache is disabled.
func (c *Cache) Estimate(hostKey string, currentPhase buildphase.Phase, elapsedInPhase time.Duration) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return 0, false
	}
	e, ok := c.hosts[hostKey]
	if !ok {
		return 0, false
	}
	var total time.Duration
	found := false
	for _, p := range buildphase.Running() {
		avgSec := e.AverageTimes.forPhase(p)
		if avgSec <= 0 {
			continue
		}
		avg := time.Duration(avgSec * float64(time.Second))
		var remaining time.Duration
		if p == currentPhase {
			frac := 1 - elapsedInPhase.Seconds()/avgSec
			if frac < 0 {
				frac = 0
			}
			remaining = time.Duration(frac * float64(avg))
			found = true
		} else if p.Index() > currentPhase.Index() {
			remaining = avg
			found = true
		} else {
			continue
		}
		total += remaining
	}
	if !found {
		return 0, false
	}
	return total, true
}

// Get returns a copy of the entry for hostKey, if any.
func (c *Cache) Get(hostKey string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.hosts[hostKey]
	if !ok {
		return CacheEntry{}, false
	}
	return *e, true
}

// Cleanup drops entries older than retention and demo hosts older than
// DemoTTL (spec.md §4.4). Idempotent.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
}

func (c *Cache) cleanupLocked() {
	now := c.now()
	cutoff := now.Add(-time.Duration(c.retentionDays) * 24 * time.Hour)
	demoCutoff := now.Add(-DemoTTL)
	for k, e := range c.hosts {
		updated := time.Unix(e.LastUpdated, 0)
		if hoststate.IsDemo(k, c.demoPrefixes) {
			if updated.Before(demoCutoff) {
				delete(c.hosts, k)
			}
			continue
		}
		if updated.Before(cutoff) {
			delete(c.hosts, k)
		}
	}
}

// Save writes the cache atomically (tmp-file + rename, via renameio) to
// its configured path. It is a no-op if the cache is disabled or has no
// path. Save calls Cleanup first, per spec.md §4.4.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled || c.path == "" {
		return nil
	}
	c.cleanupLocked()

	doc := document{
		Version:            CurrentVersion,
		CacheRetentionDays: c.retentionDays,
		Hosts:              c.hosts,
	}
	enc, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		c.disable("marshal failed: " + err.Error())
		return xerrors.Errorf("marshal timing cache: %w", err)
	}

	if err := renameio.WriteFile(c.path, enc, 0o644); err != nil {
		c.disable("atomic write failed: " + err.Error())
		return xerrors.Errorf("write cache file %s: %w", c.path, err)
	}
	return nil
}

// Disable marks the cache disabled for the remainder of the run with the
// given human-readable reason (spec.md §7 "cache disabled for this run").
func (c *Cache) Disable(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disable(reason)
}

// SortedKeys returns host keys in a stable, sorted order, convenient for
// deterministic test comparisons and summary output.
func (c *Cache) SortedKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.hosts))
	for k := range c.hosts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
