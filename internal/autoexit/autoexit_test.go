package autoexit

import (
	"testing"
	"time"
)

func TestDisabledNeverExits(t *testing.T) {
	m := New(30*time.Second, false)
	now := time.Now()
	m.OnHostTerminal(now)
	if m.ShouldExit(now.Add(time.Hour), true) {
		t.Fatalf("disabled manager should never signal exit")
	}
}

func TestUnarmedNeverExits(t *testing.T) {
	m := New(30*time.Second, true)
	if m.ShouldExit(time.Now().Add(time.Hour), true) {
		t.Fatalf("unarmed manager should never signal exit")
	}
}

func TestSingleHostFiresAfterDelay(t *testing.T) {
	m := New(30*time.Second, true)
	t0 := time.Now()
	m.OnHostTerminal(t0)
	if m.ShouldExit(t0.Add(29*time.Second), true) {
		t.Fatalf("should not exit before the delay elapses")
	}
	if !m.ShouldExit(t0.Add(30*time.Second), true) {
		t.Fatalf("should exit once the delay elapses with all hosts terminal")
	}
}

func TestNotAllTerminalBlocksExit(t *testing.T) {
	m := New(30*time.Second, true)
	t0 := time.Now()
	m.OnHostTerminal(t0)
	if m.ShouldExit(t0.Add(time.Minute), false) {
		t.Fatalf("should not exit while any host remains non-terminal")
	}
}

func TestSecondCompletionResetsDeadline(t *testing.T) {
	m := New(30*time.Second, true)
	t0 := time.Now()

	m.OnHostTerminal(t0) // host A completes; not all terminal yet
	if m.ShouldExit(t0.Add(30*time.Second), false) {
		t.Fatalf("host B still running, must not exit")
	}

	t1 := t0.Add(60 * time.Second)
	m.OnHostTerminal(t1) // host B completes, now all terminal

	if m.ShouldExit(t1.Add(29*time.Second), true) {
		t.Fatalf("deadline should have been reset by the second completion")
	}
	if !m.ShouldExit(t1.Add(30*time.Second), true) {
		t.Fatalf("expected shutdown 30s after the second completion")
	}
}
