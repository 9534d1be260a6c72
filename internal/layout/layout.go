// Package layout computes per-host screen rectangles for the terminal UI
// (spec.md §4.6). It has no direct teacher analogue (distri has no TUI);
// it is grounded on the teacher's own terminal-geometry conventions — the
// status-line redraw in internal/batch/batch.go queries isatty and writes
// raw cursor-movement escapes rather than reaching for a layout library,
// so this package follows suit with plain arithmetic over a Rect type.
package layout

import (
	"sort"
)

// Mode is the active rendering mode: the host grid, one host full screen,
// or the host-selection menu.
type Mode int

const (
	ModeGrid Mode = iota
	ModeFullScreen
	ModeMenu
)

// MinTileWidth and MinTileHeight are the grid's minimum usable tile
// dimensions (spec.md §4.6).
const (
	MinTileWidth  = 40
	MinTileHeight = 6
	headerRows    = 2
	footerRows    = 1
	menuFraction  = 0.8
)

// Rect is one host's assigned screen rectangle.
type Rect struct {
	Row, Col, Width, Height int
}

// Result is the computed layout for one frame.
type Result struct {
	Mode Mode
	// Tiles maps host key -> Rect for every currently visible host.
	Tiles map[string]Rect
	// Hidden lists host keys that do not fit and are only reachable via
	// the host-selection menu (spec.md §4.6 "the rest are hidden").
	Hidden []string
	// Minimized lists host keys collapsed into the bottom band.
	Minimized []string
	// MenuBox is populated only when Mode == ModeMenu.
	MenuBox Rect
}

// Compute lays out visibleHosts (in stable order) within a termW x termH
// terminal for the given mode. focusedHost is used for ModeFullScreen.
// minimizedHosts are hosts the controller has already decided (via
// auto_minimize_timeout) belong in the bottom band; they are excluded
// from grid tiling and rendered in their own row.
func Compute(mode Mode, termW, termH int, visibleHosts []string, focusedHost string, minimizedHosts []string) Result {
	res := Result{Mode: mode}

	switch mode {
	case ModeFullScreen:
		res.Tiles = map[string]Rect{}
		if focusedHost != "" {
			res.Tiles[focusedHost] = Rect{
				Row: headerRows, Col: 0,
				Width:  termW,
				Height: max(0, termH-headerRows-footerRows),
			}
		}
		return res

	case ModeMenu:
		// The grid is not recomputed while the menu is open (spec.md
		// §4.6); the caller is expected to retain the prior grid result
		// and only overlay MenuBox. Compute still returns the box.
		boxW := int(float64(termW) * menuFraction)
		boxH := int(float64(termH) * menuFraction)
		row, col := centerBox(termW, termH, boxW, boxH)
		res.MenuBox = Rect{Row: row, Col: col, Width: boxW, Height: boxH}
		res.Tiles = map[string]Rect{}
		return res
	}

	return computeGrid(termW, termH, visibleHosts, minimizedHosts)
}

func computeGrid(termW, termH int, hosts []string, minimized []string) Result {
	res := Result{Mode: ModeGrid, Tiles: map[string]Rect{}}

	minSet := make(map[string]bool, len(minimized))
	for _, h := range minimized {
		minSet[h] = true
	}
	var gridHosts []string
	for _, h := range hosts {
		if minSet[h] {
			continue
		}
		gridHosts = append(gridHosts, h)
	}
	sort.Strings(gridHosts)

	availH := termH
	if len(minimized) > 0 {
		availH -= len(minimized) + 1 // band rows + separator
	}
	if availH < 0 {
		availH = 0
	}

	cols, rows := bestGrid(len(gridHosts), termW, availH)
	if cols == 0 || rows == 0 {
		res.Hidden = append([]string{}, gridHosts...)
		res.Minimized = minimized
		return res
	}

	tileW := termW / cols
	tileH := availH / rows
	capacity := cols * rows

	for i, h := range gridHosts {
		if i >= capacity {
			res.Hidden = append(res.Hidden, h)
			continue
		}
		r := i / cols
		c := i % cols
		res.Tiles[h] = Rect{Row: r * tileH, Col: c * tileW, Width: tileW, Height: tileH}
	}
	res.Minimized = minimized
	return res
}

// bestGrid chooses the row/col split minimizing aspect-ratio distortion
// subject to the minimum tile dimensions, per spec.md §4.6. When no split
// fits all n hosts it returns as many minimum-size tiles as the terminal
// holds (the caller hides the rest), and (0, 0) only if not even one fits.
func bestGrid(n, termW, termH int) (cols, rows int) {
	if n == 0 {
		return 0, 0
	}
	bestScore := -1.0
	for c := 1; c <= n; c++ {
		r := (n + c - 1) / c
		tileW := termW / c
		tileH := termH / r
		if tileW < MinTileWidth || tileH < MinTileHeight {
			continue
		}
		// Prefer the split whose tile aspect ratio is closest to a
		// pleasant ~2:1 (w:h) text tile.
		ratio := float64(tileW) / float64(tileH)
		score := -absf(ratio - 2.0)
		if score > bestScore {
			bestScore = score
			cols, rows = c, r
		}
	}
	if cols == 0 {
		cols, rows = termW/MinTileWidth, termH/MinTileHeight
		if cols == 0 || rows == 0 {
			return 0, 0
		}
	}
	return cols, rows
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func centerBox(width, height, boxW, boxH int) (row, col int) {
	row = (height - boxH) / 2
	col = (width - boxW) / 2
	if row < 0 {
		row = 0
	}
	if col < 0 {
		col = 0
	}
	return row, col
}

// DefaultAutoMinimizeTimeoutSeconds is spec.md §4.6's default.
const DefaultAutoMinimizeTimeoutSeconds = 30
