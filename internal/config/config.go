// Package config resolves CLI flags and an optional YAML file into the
// Config the rest of the program runs with (spec.md §6 EXTERNAL
// INTERFACES, CLI section).
//
// Flag parsing is grounded on github.com/spf13/cobra +
// github.com/spf13/pflag, the same stack tim-coutinho-agentops/cli uses
// for its "ao" command, rather than the teacher's plain stdlib flag
// (distri's cmd/* binaries are simple enough not to need it, but this
// program's flag surface is large enough to benefit from pflag's
// long/short forms and cobra's usage text). The default cache path is
// resolved with github.com/adrg/xdg, an indirect dependency already
// pulled in by LBjerke-myco's tree, the same way that repo resolves
// user-config-scoped paths.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/dajobe/redland-forge/internal/errs"
	"github.com/dajobe/redland-forge/internal/textutil"
	"github.com/dajobe/redland-forge/internal/timingcache"
)

const (
	DefaultAutoExitDelaySeconds = 300
	DefaultCacheRetentionDays   = timingcache.DefaultRetentionDays
	DefaultCacheKeepBuilds      = timingcache.DefaultKeepBuilds
	DefaultIdleTimeout          = 10 * time.Minute
)

// Config is the fully resolved set of run parameters.
type Config struct {
	Tarball string
	Hosts   []string

	MaxConcurrent int

	AutoExitDelay time.Duration
	NoAutoExit    bool

	CacheFile         string
	CacheRetention    time.Duration
	CacheKeepBuilds   int
	NoCache           bool

	NoProgress bool
	Color      textutil.ColorMode
	Debug      bool

	// DemoPrefixes overrides hoststate.DefaultDemoPrefixes when non-nil.
	DemoPrefixes []string
}

// File is the optional on-disk YAML form of a subset of Config. It is
// applied after flag parsing, only to fields whose flags were not set
// explicitly, so that flags always take precedence.
type File struct {
	MaxConcurrent   *int    `yaml:"max_concurrent"`
	AutoExitDelay   *int    `yaml:"auto_exit_delay_seconds"`
	NoAutoExit      *bool   `yaml:"no_auto_exit"`
	CacheFile       *string `yaml:"cache_file"`
	CacheRetention  *int    `yaml:"cache_retention_days"`
	CacheKeepBuilds *int    `yaml:"cache_keep_builds"`
	NoCache         *bool   `yaml:"no_cache"`
	NoProgress      *bool   `yaml:"no_progress"`
	Color           *string   `yaml:"color"`
	Debug           *bool     `yaml:"debug"`
	DemoPrefixes    []string  `yaml:"demo_prefixes"`
}

// LoadFile reads and parses a YAML config file. A missing file is not an
// error; its zero File is returned.
func LoadFile(path string) (File, error) {
	var f File
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, errs.Wrap(errs.Config, errs.Medium, "read config file", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, errs.Wrap(errs.Config, errs.Medium, "parse config file", err)
	}
	return f, nil
}

// ApplyFile overlays file values onto c wherever the corresponding flag
// was not explicitly set by the caller (tracked via explicitlySet).
func (c *Config) ApplyFile(f File, explicitlySet map[string]bool) {
	if f.MaxConcurrent != nil && !explicitlySet["max-concurrent"] {
		c.MaxConcurrent = *f.MaxConcurrent
	}
	if f.AutoExitDelay != nil && !explicitlySet["auto-exit-delay"] {
		c.AutoExitDelay = time.Duration(*f.AutoExitDelay) * time.Second
	}
	if f.NoAutoExit != nil && !explicitlySet["no-auto-exit"] {
		c.NoAutoExit = *f.NoAutoExit
	}
	if f.CacheFile != nil && !explicitlySet["cache-file"] {
		c.CacheFile = *f.CacheFile
	}
	if f.CacheRetention != nil && !explicitlySet["cache-retention"] {
		c.CacheRetention = time.Duration(*f.CacheRetention) * 24 * time.Hour
	}
	if f.CacheKeepBuilds != nil && !explicitlySet["cache-keep-builds"] {
		c.CacheKeepBuilds = *f.CacheKeepBuilds
	}
	if f.NoCache != nil && !explicitlySet["no-cache"] {
		c.NoCache = *f.NoCache
	}
	if f.NoProgress != nil && !explicitlySet["no-progress"] {
		c.NoProgress = *f.NoProgress
	}
	if f.Color != nil && !explicitlySet["color"] {
		if mode, ok := textutil.ParseColorMode(*f.Color); ok {
			c.Color = mode
		}
	}
	if f.Debug != nil && !explicitlySet["debug"] {
		c.Debug = *f.Debug
	}
	if len(f.DemoPrefixes) > 0 && !explicitlySet["demo-prefix"] {
		c.DemoPrefixes = f.DemoPrefixes
	}
}

// DefaultCacheFile resolves spec.md §6's default cache path: the OS
// user-config directory joined with "redland-forge/timing-cache.json".
func DefaultCacheFile() string {
	path, err := xdg.ConfigFile("redland-forge/timing-cache.json")
	if err != nil {
		return "redland-forge-timing-cache.json"
	}
	return path
}

// DefaultMaxConcurrent auto-derives a worker-pool ceiling from the
// terminal height (spec.md §6 "default: auto-derive from terminal
// height, floor 1"): each host needs layout.MinTileHeight rows, so a
// taller terminal can usefully watch more concurrent builds at once.
func DefaultMaxConcurrent() int {
	rows := terminalRows()
	if rows <= 0 {
		return 4
	}
	n := rows / 6
	if n < 1 {
		return 1
	}
	return n
}

func terminalRows() int {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0
	}
	return int(ws.Row)
}

// ParseHosts splits a comma-separated positional host list and merges in
// any entries read from a hosts file (one "user@host" per line, "#"
// comments, blank lines ignored).
func ParseHosts(positional []string, hostsFile string) ([]string, error) {
	var hosts []string
	for _, p := range positional {
		for _, h := range strings.Split(p, ",") {
			h = strings.TrimSpace(h)
			if h != "" {
				hosts = append(hosts, h)
			}
		}
	}
	if hostsFile != "" {
		data, err := os.ReadFile(hostsFile)
		if err != nil {
			return nil, errs.Wrap(errs.Config, errs.Critical, "read hosts file", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			hosts = append(hosts, line)
		}
	}
	return hosts, nil
}

// Validate checks the fully resolved Config for argument errors (exit
// code 2 per spec.md §6).
func (c *Config) Validate() error {
	if c.Tarball == "" {
		return errs.New(errs.Config, errs.Critical, xerrors.New("missing required tarball argument"))
	}
	for _, h := range c.Hosts {
		if !strings.Contains(h, "@") {
			return errs.New(errs.Config, errs.Critical, xerrors.Errorf("invalid host %q, want user@hostname", h))
		}
	}
	if c.MaxConcurrent < 1 {
		return errs.New(errs.Config, errs.Critical, xerrors.New("max-concurrent must be >= 1"))
	}
	if c.CacheKeepBuilds < 1 {
		return errs.New(errs.Config, errs.Critical, xerrors.New("cache-keep-builds must be >= 1"))
	}
	return nil
}
