// Package render implements the single-threaded terminal renderer
// (spec.md §4.7): a pure function from (layout, host states, stats,
// countdown, focus, mode) to terminal escape sequences, diffing frames so
// only changed regions are rewritten.
//
// Diffing a previous/next cell buffer and writing only changed spans is a
// generalization of the teacher's own per-line redraw trick in
// internal/batch/batch.go (overwrite-with-spaces + "\033[%dA" cursor
// restore); color-mode auto-detection is grounded on the teacher's use of
// golang.org/x/sys/unix ioctl + the ecosystem's github.com/mattn/go-isatty
// (adopted here since the teacher only checks TTY-ness for its own
// simpler status view, not for color).
package render

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dajobe/redland-forge/internal/textutil"
	"github.com/mattn/go-isatty"
)

// Frame is one rendered screen: a rectangular grid of lines, each already
// sanitized and width-clamped by SetLine/SetRegion as the caller (the
// layout-aware drawing code in internal/appctl/view.go) fills it.
type Frame struct {
	Width, Height int
	Lines         []string // len == Height, each len == Width runes
}

// NewFrame returns a blank Frame of the given size.
func NewFrame(width, height int) *Frame {
	lines := make([]string, height)
	blank := ""
	if width > 0 {
		blank = textutil.PadRight("", width)
	}
	for i := range lines {
		lines[i] = blank
	}
	return &Frame{Width: width, Height: height, Lines: lines}
}

// SetLine replaces row r with content, sanitized and clamped/padded to
// Width. Out-of-range rows are ignored.
func (f *Frame) SetLine(r int, content string) {
	if r < 0 || r >= f.Height {
		return
	}
	clean := textutil.Sanitize(content)
	clean = textutil.Truncate(clean, f.Width)
	f.Lines[r] = textutil.PadRight(clean, f.Width)
}

// SetRegion splices content into row r starting at column col, sanitized
// and clamped/padded to width, leaving the rest of the row untouched.
// Used to compose several grid tiles onto the same terminal rows. Regions
// outside the frame bounds are ignored or clipped.
func (f *Frame) SetRegion(r, col, width int, content string) {
	if r < 0 || r >= f.Height || col < 0 || col >= f.Width || width <= 0 {
		return
	}
	if col+width > f.Width {
		width = f.Width - col
	}
	clean := textutil.Sanitize(content)
	clean = textutil.Truncate(clean, width)
	clean = textutil.PadRight(clean, width)

	line := []rune(f.Lines[r])
	for len(line) < f.Width {
		line = append(line, ' ')
	}
	for i, r2 := range []rune(clean) {
		if col+i >= len(line) {
			break
		}
		line[col+i] = r2
	}
	f.Lines[r] = string(line)
}

// Renderer owns the previous frame for diffing and the color-mode
// decision (spec.md §4.7 "three modes: always, never, auto").
type Renderer struct {
	out        io.Writer
	prev       *Frame
	colorMode  textutil.ColorMode
	forceFull  bool
	plainFallback bool // spec.md §7: renderer errors degrade to plain-text mode
}

// New returns a Renderer writing to out in the given color mode.
func New(out io.Writer, mode textutil.ColorMode) *Renderer {
	return &Renderer{out: out, colorMode: mode, forceFull: true}
}

// ColorEnabled resolves the configured ColorMode against the current
// process's stdout/TERM, per spec.md §4.7.
func ColorEnabled(mode textutil.ColorMode) bool {
	switch mode {
	case textutil.ColorAlways:
		return true
	case textutil.ColorNever:
		return false
	default:
		return isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("TERM") != "dumb"
	}
}

// ForceFullRedraw marks the next Render call to rewrite the entire
// terminal, used on resize or navigation-mode change (spec.md §4.7).
func (r *Renderer) ForceFullRedraw() {
	r.forceFull = true
}

// FellBackToPlainText reports whether a prior render error degraded this
// Renderer to the minimal plain-text fallback for the rest of the session
// (spec.md §7 "Renderer errors trigger a fallback to a minimal plain-text
// mode (no colors, no diffing) for the remainder of the session").
func (r *Renderer) FellBackToPlainText() bool {
	return r.plainFallback
}

// Render writes next to r.out, diffing against the previously rendered
// frame unless a full redraw has been requested or this is the first
// frame (spec.md §4.7 "diffs the previous frame's cells against the new
// frame and writes only changed regions"). On a write error, it degrades
// permanently to plain, undiffed, uncolored output and returns the error.
func (r *Renderer) Render(next *Frame) error {
	if r.plainFallback {
		return r.renderPlain(next)
	}

	var buf bytes.Buffer
	full := r.forceFull || r.prev == nil || r.prev.Width != next.Width || r.prev.Height != next.Height
	if full {
		buf.WriteString("\033[2J\033[H") // clear + home
		for _, line := range next.Lines {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	} else {
		for i, line := range next.Lines {
			if line == r.prev.Lines[i] {
				continue
			}
			fmt.Fprintf(&buf, "\033[%d;1H", i+1) // move to row i+1, col 1
			buf.WriteString(line)
		}
	}

	if _, err := r.out.Write(buf.Bytes()); err != nil {
		r.plainFallback = true
		return err
	}
	r.prev = next
	r.forceFull = false
	return nil
}

// renderPlain is the degraded no-color, no-diff fallback (spec.md §7).
func (r *Renderer) renderPlain(next *Frame) error {
	var buf bytes.Buffer
	for _, line := range next.Lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	_, err := r.out.Write(buf.Bytes())
	r.prev = next
	return err
}
