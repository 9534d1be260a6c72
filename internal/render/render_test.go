package render

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dajobe/redland-forge/internal/textutil"
)

func TestFirstRenderIsFullRedraw(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, textutil.ColorNever)
	f := NewFrame(10, 2)
	f.SetLine(0, "hello")
	if err := r.Render(f); err != nil {
		t.Fatalf("Render() = %v", err)
	}
	if !strings.Contains(buf.String(), "\033[2J") {
		t.Fatalf("expected clear-screen sequence on first render, got %q", buf.String())
	}
}

func TestSubsequentRenderOnlyWritesChangedLines(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, textutil.ColorNever)

	f1 := NewFrame(10, 3)
	f1.SetLine(0, "a")
	f1.SetLine(1, "b")
	f1.SetLine(2, "c")
	if err := r.Render(f1); err != nil {
		t.Fatal(err)
	}

	buf.Reset()
	f2 := NewFrame(10, 3)
	f2.SetLine(0, "a")
	f2.SetLine(1, "CHANGED")
	f2.SetLine(2, "c")
	if err := r.Render(f2); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "\033[2J") {
		t.Fatalf("expected no full clear on diffed render, got %q", out)
	}
	if !strings.Contains(out, "CHANGED") {
		t.Fatalf("expected changed line content, got %q", out)
	}
	if strings.Count(out, "\033[") != 1 {
		t.Fatalf("expected exactly one cursor move for the one changed line, got %q", out)
	}
}

func TestForceFullRedrawAfterResize(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, textutil.ColorNever)
	r.Render(NewFrame(10, 2))
	buf.Reset()
	r.ForceFullRedraw()
	r.Render(NewFrame(10, 2))
	if !strings.Contains(buf.String(), "\033[2J") {
		t.Fatalf("expected full redraw after ForceFullRedraw()")
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, bytes.ErrTooLarge
}

func TestRenderErrorDegradesToPlainFallback(t *testing.T) {
	r := New(failingWriter{}, textutil.ColorNever)
	f := NewFrame(5, 1)
	if err := r.Render(f); err == nil {
		t.Fatalf("expected write error")
	}
	if !r.FellBackToPlainText() {
		t.Fatalf("expected renderer to degrade to plain-text fallback")
	}
}

func TestFrameSetLineSanitizesAndClamps(t *testing.T) {
	f := NewFrame(5, 1)
	f.SetLine(0, "abcdef\x01")
	if got, want := utf8.RuneCountInString(f.Lines[0]), 5; got != want {
		t.Fatalf("rune count = %d, want %d", got, want)
	}
}
