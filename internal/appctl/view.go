package appctl

import (
	"fmt"
	"time"

	"github.com/dajobe/redland-forge/internal/hoststate"
	"github.com/dajobe/redland-forge/internal/layout"
	"github.com/dajobe/redland-forge/internal/render"
	"github.com/dajobe/redland-forge/internal/stats"
)

const (
	headerHeight = 1
	footerHeight = 1
)

// render computes the current layout and draws one frame (spec.md §4.10
// step 4, §4.6/§4.7).
func (c *Controller) render(now time.Time) {
	frame := render.NewFrame(c.termW, c.termH)

	agg := stats.Compute(c.hostsSlice(), c.runStart, now)
	header := fmt.Sprintf("redland-forge | %d/%d done (%.0f%%) | elapsed %s",
		agg.Succeeded+agg.Failed, agg.Total, agg.SuccessPercent(), agg.Elapsed.Round(time.Second))
	frame.SetLine(0, header)

	footer := "q quit  h help  tab menu  enter focus  m minimize"
	if remaining, ok := c.autoexit.Deadline(); ok && c.autoexit.Enabled() {
		footer += fmt.Sprintf("  auto-exit in %s", maxDuration(0, remaining.Sub(now)).Round(time.Second))
	}
	frame.SetLine(c.termH-footerHeight, footer)

	var minimizedKeys []string
	for k, v := range c.minimized {
		if v {
			minimizedKeys = append(minimizedKeys, k)
		}
	}

	areaHeight := c.termH - headerHeight - footerHeight
	res := layout.Compute(c.layoutMode, c.termW, areaHeight, c.hostOrder, c.focusedHost, minimizedKeys)

	for key, rect := range res.Tiles {
		c.drawTile(frame, key, rect, now)
	}

	// Minimized hosts occupy one row each at the bottom of the grid area.
	if c.layoutMode == layout.ModeGrid {
		bandRow := headerHeight + areaHeight - len(res.Minimized)
		for _, key := range c.hostOrder {
			if c.minimized[key] {
				frame.SetRegion(bandRow, 0, c.termW, fmt.Sprintf("%s [%s]", key, c.hosts[key].Status()))
				bandRow++
			}
		}
	}

	if c.layoutMode == layout.ModeMenu {
		c.drawMenu(frame, res.MenuBox)
	}

	if c.helpOverlay {
		c.drawHelp(frame)
	}

	c.renderer.Render(frame)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// drawTile renders one host's status line(s) into its assigned rect,
// offset by headerHeight since Compute lays out within the area below
// the header.
func (c *Controller) drawTile(frame *render.Frame, key string, rect layout.Rect, now time.Time) {
	h, ok := c.hosts[key]
	if !ok {
		return
	}
	row := rect.Row + headerHeight
	statusLine := fmt.Sprintf("%s [%s]", key, h.Status())
	frame.SetRegion(row, rect.Col, rect.Width, statusLine)

	if eta := c.etaSuffix(h, now); eta != "" && rect.Height > 1 {
		frame.SetRegion(row+1, rect.Col, rect.Width, eta)
	}

	logRows := rect.Height - 2
	if logRows <= 0 {
		return
	}
	end := h.Output.End() - h.ScrollOffset
	lines := h.Output.Snapshot(end-logRows, logRows)
	for i, line := range lines {
		frame.SetRegion(row+2+i, rect.Col, rect.Width, line)
	}
}

// etaSuffix formats a host's estimated-remaining-time line, or "" when no
// historical data is available (spec.md §4.3, §9's "suppress" resolution
// for --no-cache).
func (c *Controller) etaSuffix(h *hoststate.Host, now time.Time) string {
	eta := stats.Estimate(c.cache, h, now)
	if !eta.Available {
		return ""
	}
	return fmt.Sprintf("eta %s (%.0f%% of historical average)", eta.Remaining.Round(time.Second), eta.ProgressPct)
}

func (c *Controller) drawMenu(frame *render.Frame, box layout.Rect) {
	frame.SetRegion(box.Row, box.Col, box.Width, "Select a host:")
	for i, key := range c.menuEntries {
		if i+1 >= box.Height {
			break
		}
		marker := "  "
		if i == c.menuSelected {
			marker = "> "
		}
		frame.SetRegion(box.Row+1+i, box.Col, box.Width, fmt.Sprintf("%s%d. %s", marker, i+1, key))
	}
}

func (c *Controller) drawHelp(frame *render.Frame) {
	lines := []string{
		"Up/Down  select host   Left/Right  cycle all hosts",
		"Enter    full screen    Tab         open menu",
		"m        minimize       Esc         back",
		"q        quit           h           toggle this help",
	}
	top := c.termH/2 - len(lines)/2
	for i, l := range lines {
		if top+i < 0 || top+i >= c.termH {
			continue
		}
		frame.SetRegion(top+i, 2, c.termW-4, l)
	}
}
