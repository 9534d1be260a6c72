package phasedetect

import (
	"testing"

	"github.com/dajobe/redland-forge/internal/buildphase"
)

func feedAll(d *Detector, lines []string) buildphase.Phase {
	var last buildphase.Phase
	for _, l := range lines {
		if p, ok := d.Feed(l); ok {
			last = p
		}
	}
	return last
}

func TestHappyPathSequence(t *testing.T) {
	d := New()
	lines := []string{
		"Uploading tarball...",
		"checking for gcc... yes",
		"make[1]: Entering directory '/build'",
		"make check",
		"make install",
		"BUILD OK",
	}
	want := []buildphase.Phase{
		buildphase.Preparing,
		buildphase.Configure,
		buildphase.Make,
		buildphase.Check,
		buildphase.Install,
		buildphase.Completed,
	}
	for i, l := range lines {
		p, ok := d.Feed(l)
		if !ok {
			t.Fatalf("line %q did not fire a transition", l)
		}
		if p != want[i] {
			t.Fatalf("line %q -> %v, want %v", l, p, want[i])
		}
	}
}

func TestMonotonicNeverRegresses(t *testing.T) {
	d := New()
	feedAll(d, []string{"make[1]: Entering directory"})
	if d.Current() != buildphase.Make {
		t.Fatalf("current = %v, want make", d.Current())
	}
	p, ok := d.Feed("checking for gcc...")
	if ok {
		t.Fatalf("regressed to %v from make", p)
	}
	if d.Current() != buildphase.Make {
		t.Fatalf("current regressed to %v", d.Current())
	}
}

func TestUnknownLineNoTransition(t *testing.T) {
	d := New()
	if _, ok := d.Feed("just some ordinary build chatter"); ok {
		t.Fatalf("unexpected transition on unknown line")
	}
	if d.Current() != buildphase.Queued {
		t.Fatalf("current = %v, want queued", d.Current())
	}
}

func TestBuildFailedSentinel(t *testing.T) {
	d := New()
	feedAll(d, []string{"configure: creating Makefile"})
	p, ok := d.Feed("BUILD FAILED")
	if !ok || p != buildphase.Failed {
		t.Fatalf("Feed(BUILD FAILED) = %v, %v, want failed, true", p, ok)
	}
	if _, ok := d.Feed("make[1]: Entering directory"); ok {
		t.Fatalf("terminal detector should never fire again")
	}
}

func TestCheckOutranksMakeTrigger(t *testing.T) {
	// "make check" matches the check rule but not the lower-priority make
	// rule's narrower triggers; check must win outright.
	d := New()
	p, ok := d.Feed("make check")
	if !ok || p != buildphase.Check {
		t.Fatalf("Feed(make check) = %v, %v, want check, true", p, ok)
	}
}

func TestEmptyLineIgnored(t *testing.T) {
	d := New()
	if _, ok := d.Feed("   "); ok {
		t.Fatalf("blank line should not transition")
	}
}
