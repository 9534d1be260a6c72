package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dajobe/redland-forge/internal/textutil"
)

func TestParseHostsSplitsCommaAndFile(t *testing.T) {
	dir := t.TempDir()
	hostsFile := filepath.Join(dir, "hosts.txt")
	os.WriteFile(hostsFile, []byte("u@a\n# comment\n\nu@b\n"), 0644)

	hosts, err := ParseHosts([]string{"u@c,u@d"}, hostsFile)
	if err != nil {
		t.Fatalf("ParseHosts() = %v", err)
	}
	want := []string{"u@c", "u@d", "u@a", "u@b"}
	if len(hosts) != len(want) {
		t.Fatalf("hosts = %v, want %v", hosts, want)
	}
	for i := range want {
		if hosts[i] != want[i] {
			t.Fatalf("hosts[%d] = %q, want %q", i, hosts[i], want[i])
		}
	}
}

func TestValidateRejectsMissingTarball(t *testing.T) {
	c := &Config{Hosts: []string{"u@a"}, MaxConcurrent: 1, CacheKeepBuilds: 1}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing tarball")
	}
}

func TestValidateRejectsMalformedHost(t *testing.T) {
	c := &Config{Tarball: "t.tgz", Hosts: []string{"nodomain"}, MaxConcurrent: 1, CacheKeepBuilds: 1}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for host missing '@'")
	}
}

func TestValidateAcceptsZeroHosts(t *testing.T) {
	c := &Config{Tarball: "t.tgz", MaxConcurrent: 1, CacheKeepBuilds: 1}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil (0 hosts exits 0 with an empty summary)", err)
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	c := &Config{Tarball: "t.tgz", Hosts: []string{"u@a", "u@b"}, MaxConcurrent: 2, CacheKeepBuilds: 5}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestApplyFileSkipsExplicitlySetFlags(t *testing.T) {
	c := &Config{MaxConcurrent: 8, Color: textutil.ColorAuto}
	n := 2
	colorAlways := "always"
	f := File{MaxConcurrent: &n, Color: &colorAlways}

	c.ApplyFile(f, map[string]bool{"max-concurrent": true})

	if c.MaxConcurrent != 8 {
		t.Fatalf("MaxConcurrent = %d, want 8 (explicit flag should win)", c.MaxConcurrent)
	}
	if c.Color != textutil.ColorAlways {
		t.Fatalf("Color = %v, want ColorAlways (not explicitly set, file should apply)", c.Color)
	}
}

func TestApplyFileAutoExitDelayConvertsSeconds(t *testing.T) {
	c := &Config{}
	secs := 45
	f := File{AutoExitDelay: &secs}
	c.ApplyFile(f, map[string]bool{})
	if c.AutoExitDelay != 45*time.Second {
		t.Fatalf("AutoExitDelay = %v, want 45s", c.AutoExitDelay)
	}
}

func TestLoadFileMissingIsNotError(t *testing.T) {
	f, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFile(missing) = %v, want nil error", err)
	}
	if f.MaxConcurrent != nil {
		t.Fatalf("expected zero File for a missing path")
	}
}

func TestApplyFileSetsDemoPrefixesUnlessExplicit(t *testing.T) {
	c := &Config{}
	f := File{DemoPrefixes: []string{"stage-"}}
	c.ApplyFile(f, map[string]bool{})
	if len(c.DemoPrefixes) != 1 || c.DemoPrefixes[0] != "stage-" {
		t.Fatalf("DemoPrefixes = %v, want [stage-]", c.DemoPrefixes)
	}

	c2 := &Config{DemoPrefixes: []string{"keep-"}}
	c2.ApplyFile(f, map[string]bool{"demo-prefix": true})
	if len(c2.DemoPrefixes) != 1 || c2.DemoPrefixes[0] != "keep-" {
		t.Fatalf("DemoPrefixes = %v, want [keep-] (explicit flag should win)", c2.DemoPrefixes)
	}
}

func TestLoadFileParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("max_concurrent: 6\nno_cache: true\ncolor: never\n"), 0644)

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() = %v", err)
	}
	if f.MaxConcurrent == nil || *f.MaxConcurrent != 6 {
		t.Fatalf("MaxConcurrent = %v, want 6", f.MaxConcurrent)
	}
	if f.NoCache == nil || !*f.NoCache {
		t.Fatalf("NoCache = %v, want true", f.NoCache)
	}
	if f.Color == nil || *f.Color != "never" {
		t.Fatalf("Color = %v, want never", f.Color)
	}
}
