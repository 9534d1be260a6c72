// Package appctl implements the application controller (spec.md §4.10):
// the single-threaded main loop that owns every piece of state, drains
// worker events, applies them in a fixed order, polls input, and drives
// the layout/render pipeline at a steady tick rate.
//
// The drain-apply-render loop is grounded on the teacher's own
// cmd/distri/build.go event loop, which drains a build-status channel,
// updates a shared map, and periodically redraws a status line; this
// package generalizes that shape to the richer event/state surface this
// spec requires.
package appctl

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dajobe/redland-forge/internal/autoexit"
	"github.com/dajobe/redland-forge/internal/buildphase"
	"github.com/dajobe/redland-forge/internal/config"
	"github.com/dajobe/redland-forge/internal/errs"
	"github.com/dajobe/redland-forge/internal/hoststate"
	"github.com/dajobe/redland-forge/internal/input"
	"github.com/dajobe/redland-forge/internal/layout"
	"github.com/dajobe/redland-forge/internal/render"
	"github.com/dajobe/redland-forge/internal/sshexec"
	"github.com/dajobe/redland-forge/internal/stats"
	"github.com/dajobe/redland-forge/internal/textutil"
	"github.com/dajobe/redland-forge/internal/timingcache"
)

const (
	tickRate            = 10 // Hz, spec.md §4.10
	tickInterval        = time.Second / tickRate
	outputBufCap        = 2000
	defaultTermW        = 120
	defaultTermH        = 40
	autoMinimizeTimeout = layout.DefaultAutoMinimizeTimeoutSeconds * time.Second
)

// Controller owns the entire run. Construct with New, then call Run once.
type Controller struct {
	cfg *config.Config

	hosts     map[string]*hoststate.Host
	hostOrder []string

	executor *sshexec.Executor
	sink     *sshexec.ChannelSink

	cache    *timingcache.Cache
	autoexit *autoexit.Manager

	renderer *render.Renderer
	poller   *input.Poller

	navMode     input.Mode
	layoutMode  layout.Mode
	focusedHost string
	// minimized is the band membership actually rendered; minimizedManual
	// records hosts the user has explicitly toggled with 'm', which takes
	// precedence over the automatic age-based collapse (spec.md §4.6).
	minimized       map[string]bool
	minimizedManual map[string]bool
	helpOverlay     bool

	menuEntries  []string
	menuSelected int

	termW, termH int

	runStart time.Time
	dirty    bool

	stdout io.Writer
	stderr io.Writer
}

// Deps bundles the I/O the controller writes to and reads from, so tests
// can substitute fakes for everything touching the real terminal.
type Deps struct {
	Stdout    io.Writer
	Stderr    io.Writer
	KeyInput  io.Reader
	TermWidth int
	TermHeight int
}

// New builds a Controller for cfg and the resolved host specs. It loads
// the timing cache (unless NoCache) and constructs (but does not start)
// the executor.
func New(cfg *config.Config, specs []sshexec.HostSpec, deps Deps) *Controller {
	c := &Controller{
		cfg:             cfg,
		hosts:           make(map[string]*hoststate.Host, len(specs)),
		minimized:       make(map[string]bool),
		minimizedManual: make(map[string]bool),
		navMode:         input.ModeHostNav,
		layoutMode:      layout.ModeGrid,
		termW:           deps.TermWidth,
		termH:           deps.TermHeight,
		stdout:          deps.Stdout,
		stderr:          deps.Stderr,
		dirty:           true,
	}
	if c.termW <= 0 {
		c.termW = defaultTermW
	}
	if c.termH <= 0 {
		c.termH = defaultTermH
	}

	for _, s := range specs {
		c.hosts[s.Key] = hoststate.New(s.Key, s.Display, outputBufCap)
		c.hostOrder = append(c.hostOrder, s.Key)
	}

	if cfg.NoCache {
		c.cache = nil
	} else {
		cache, warn := timingcache.Load(cfg.CacheFile, timingcache.Options{
			Path:          cfg.CacheFile,
			RetentionDays: int(cfg.CacheRetention / (24 * time.Hour)),
			KeepBuilds:    cfg.CacheKeepBuilds,
			DemoPrefixes:  cfg.DemoPrefixes,
		})
		if warn != "" {
			fmt.Fprintf(c.stderr, "warning: %s\n", warn)
		}
		c.cache = cache
	}

	c.autoexit = autoexit.New(cfg.AutoExitDelay, !cfg.NoAutoExit)
	c.sink = sshexec.NewChannelSink(256)
	c.executor = sshexec.NewExecutor(c.sink)
	c.renderer = render.New(deps.Stdout, resolveColorMode(cfg))
	if deps.KeyInput != nil {
		c.poller = input.NewPoller(deps.KeyInput)
	}

	return c
}

func resolveColorMode(cfg *config.Config) textutil.ColorMode {
	if cfg.Color == textutil.ColorAuto {
		if render.ColorEnabled(textutil.ColorAuto) {
			return textutil.ColorAlways
		}
		return textutil.ColorNever
	}
	return cfg.Color
}

// Run drives the controller's main loop until every host is terminal and
// auto-exit (or an explicit quit) permits shutdown, then prints the
// summary and returns the process exit code (spec.md §6 "Exit codes").
func (c *Controller) Run(ctx context.Context, tarballPath string) int {
	c.runStart = time.Now()

	workerCfg := sshexec.WorkerConfig{TarballPath: tarballPath}
	maxConcurrent := c.cfg.MaxConcurrent
	specs := make([]sshexec.HostSpec, 0, len(c.hostOrder))
	for _, key := range c.hostOrder {
		specs = append(specs, specFromHost(c.hosts[key]))
	}
	c.executor.Start(ctx, specs, workerCfg, maxConcurrent)

	quit := false
	interrupted := false
	for {
		tickStart := time.Now()

		select {
		case <-ctx.Done():
			interrupted = true
		default:
		}

		c.drainEvents()

		if c.poller != nil {
			for _, key := range c.poller.Poll(5 * time.Millisecond) {
				if c.dispatch(key) {
					quit = true
				}
			}
		}

		now := time.Now()
		c.updateAutoMinimize(now)
		allTerminal := c.allHostsTerminal()
		_, armed := c.autoexit.Deadline()
		noHostsToWaitOn := allTerminal && !armed // no hosts at all, or every host done with auto-exit disabled (never armed)
		if quit || interrupted || noHostsToWaitOn || (c.autoexit.Enabled() && c.autoexit.ShouldExit(now, allTerminal)) || (!c.autoexit.Enabled() && allTerminal) {
			break
		}

		if c.dirty {
			c.render(now)
			c.dirty = false
		}

		if elapsed := time.Since(tickStart); elapsed < tickInterval {
			time.Sleep(tickInterval - elapsed)
		}
	}

	exitCode := c.shutdown(ctx)
	if interrupted {
		return 130
	}
	return exitCode
}

func specFromHost(h *hoststate.Host) sshexec.HostSpec {
	user, hostname := splitUserHost(h.Key)
	return sshexec.HostSpec{Key: h.Key, User: user, Hostname: hostname, Display: h.DisplayName}
}

func splitUserHost(key string) (user, hostname string) {
	i := strings.IndexByte(key, '@')
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

// drainEvents applies every currently queued event in arrival order,
// non-blocking (spec.md §4.10 step 1-2).
func (c *Controller) drainEvents() {
	for {
		select {
		case e := <-c.sink.C:
			c.apply(e)
			c.dirty = true
		default:
			return
		}
	}
}

// apply updates phase, output buffer, timing cache, and auto-exit state
// for one event, in the fixed order spec.md §9 prescribes: phase
// detector and host state first, then statistics/cache/auto-exit
// consumers that depend on the updated state.
func (c *Controller) apply(e sshexec.Event) {
	h, ok := c.hosts[e.HostKey]
	if !ok {
		return
	}

	switch e.Kind {
	case sshexec.EventConnecting:
		h.Advance(buildphase.Connecting, e.At)
	case sshexec.EventPreparing:
		h.Advance(buildphase.Preparing, e.At)
	case sshexec.EventPhaseChanged:
		h.Advance(e.Phase, e.At)
	case sshexec.EventLine:
		h.Output.Append(e.Line)
		h.Touch(e.At)
	case sshexec.EventCompleted:
		h.Finish(buildphase.Completed, e.At, e.ExitCode, e.HasExitCode, "")
		c.recordTiming(h, true)
		c.autoexit.OnHostTerminal(e.At)
	case sshexec.EventFailed:
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		for _, line := range e.TrailingLines {
			h.Output.Append(line)
		}
		h.Finish(buildphase.Failed, e.At, e.ExitCode, e.HasExitCode, msg)
		c.recordTiming(h, false)
		c.autoexit.OnHostTerminal(e.At)
	}
}

// recordTiming appends a TimingRecord to the cache for a host that just
// reached a terminal state (spec.md §4.4).
func (c *Controller) recordTiming(h *hoststate.Host, success bool) {
	if c.cache == nil {
		return
	}
	rec := timingcache.TimingRecord{
		Timestamp: h.LastActivity.Unix(),
		Configure: h.PhaseElapsed[buildphase.Configure].Seconds(),
		Make:      h.PhaseElapsed[buildphase.Make].Seconds(),
		Check:     h.PhaseElapsed[buildphase.Check].Seconds(),
		Install:   h.PhaseElapsed[buildphase.Install].Seconds(),
		Total:     h.TotalElapsed(h.LastActivity).Seconds(),
		Success:   success,
	}
	c.cache.Record(h.Key, rec)
}

// updateAutoMinimize collapses completed hosts older than
// autoMinimizeTimeout into the bottom band, unless the user has manually
// toggled that host's minimized state (spec.md §4.6 "Minimized"), in
// which case the manual choice sticks until it is toggled again.
func (c *Controller) updateAutoMinimize(now time.Time) {
	for _, key := range c.hostOrder {
		if c.minimizedManual[key] {
			continue
		}
		h := c.hosts[key]
		auto := h.Status() == buildphase.Completed && now.Sub(h.LastActivity) >= autoMinimizeTimeout
		if c.minimized[key] != auto {
			c.minimized[key] = auto
			c.dirty = true
		}
	}
}

func (c *Controller) allHostsTerminal() bool {
	for _, key := range c.hostOrder {
		if !c.hosts[key].Status().IsTerminal() {
			return false
		}
	}
	return true
}

// dispatch applies one decoded keystroke to navigation state and returns
// true if it requested a quit.
func (c *Controller) dispatch(key input.Key) bool {
	res := input.Dispatch(c.navMode, key)
	c.dirty = true
	switch res.Action {
	case input.ActionQuit:
		return true
	case input.ActionToggleHelp:
		c.helpOverlay = !c.helpOverlay
	case input.ActionHostPrevVisible:
		c.moveFocus(-1, true)
	case input.ActionHostNextVisible:
		c.moveFocus(1, true)
	case input.ActionHostPrevAny:
		c.moveFocus(-1, false)
	case input.ActionHostNextAny:
		c.moveFocus(1, false)
	case input.ActionEnterFullScreen:
		if c.focusedHost != "" {
			c.navMode = input.ModeFullScreen
			c.layoutMode = layout.ModeFullScreen
		}
	case input.ActionExitFullScreen:
		c.navMode = input.ModeHostNav
		c.layoutMode = layout.ModeGrid
	case input.ActionOpenMenu:
		c.navMode = input.ModeMenu
		c.layoutMode = layout.ModeMenu
		c.menuEntries = append([]string{}, c.hostOrder...)
		c.menuSelected = 0
	case input.ActionCloseMenu:
		c.navMode = input.ModeHostNav
		c.layoutMode = layout.ModeGrid
	case input.ActionMenuPrevEntry:
		c.menuSelected = wrap(c.menuSelected-1, len(c.menuEntries))
	case input.ActionMenuNextEntry:
		c.menuSelected = wrap(c.menuSelected+1, len(c.menuEntries))
	case input.ActionMenuSelectEntry:
		c.selectMenuEntry(c.menuSelected)
	case input.ActionMenuJumpToEntry:
		c.selectMenuEntry(res.Arg - 1)
	case input.ActionToggleMinimized:
		if c.focusedHost != "" {
			c.minimizedManual[c.focusedHost] = true
			c.minimized[c.focusedHost] = !c.minimized[c.focusedHost]
		}
	case input.ActionScrollUp:
		c.scrollFocused(1)
	case input.ActionScrollDown:
		c.scrollFocused(-1)
	case input.ActionScrollPageUp:
		c.scrollFocused(10)
	case input.ActionScrollPageDown:
		c.scrollFocused(-10)
	case input.ActionScrollTop:
		c.scrollToOldest()
	case input.ActionScrollBottom:
		c.scrollToNewest()
	case input.ActionLeaveLogScroll:
		c.navMode = input.ModeHostNav
	}
	return false
}

func (c *Controller) selectMenuEntry(idx int) {
	if idx < 0 || idx >= len(c.menuEntries) {
		return
	}
	c.focusedHost = c.menuEntries[idx]
	c.navMode = input.ModeHostNav
	c.layoutMode = layout.ModeGrid
}

// scrollFocused moves the focused host's scroll position by delta lines,
// where ScrollOffset counts lines back from the live tail: 0 shows the
// most recent output, larger values scroll further into history.
func (c *Controller) scrollFocused(delta int) {
	h, ok := c.hosts[c.focusedHost]
	if !ok {
		return
	}
	c.setScrollOffset(h, h.ScrollOffset+delta)
}

// scrollToOldest jumps to the oldest retained line (Home/Top).
func (c *Controller) scrollToOldest() {
	if h, ok := c.hosts[c.focusedHost]; ok {
		c.setScrollOffset(h, h.Output.Len())
	}
}

// scrollToNewest returns to the live tail (End/Bottom).
func (c *Controller) scrollToNewest() {
	if h, ok := c.hosts[c.focusedHost]; ok {
		h.ScrollOffset = 0
	}
}

func (c *Controller) setScrollOffset(h *hoststate.Host, offset int) {
	if offset < 0 {
		offset = 0
	}
	if max := h.Output.Len(); offset > max {
		offset = max
	}
	h.ScrollOffset = offset
}

func (c *Controller) moveFocus(delta int, visibleOnly bool) {
	candidates := c.hostOrder
	if visibleOnly {
		candidates = nil
		for _, key := range c.hostOrder {
			if !c.minimized[key] {
				candidates = append(candidates, key)
			}
		}
	}
	if len(candidates) == 0 {
		return
	}
	idx := indexOf(candidates, c.focusedHost)
	if idx < 0 {
		idx = 0
	} else {
		idx = wrap(idx+delta, len(candidates))
	}
	c.focusedHost = candidates[idx]
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func wrap(i, n int) int {
	if n == 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

func (c *Controller) shutdown(ctx context.Context) int {
	c.executor.CancelAll()
	done := make(chan struct{})
	go func() {
		c.executor.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
	c.drainEvents()
	c.markAbandonedAsCancelled()

	if c.cache != nil {
		c.cache.Cleanup()
		if err := c.cache.Save(); err != nil {
			fmt.Fprintf(c.stderr, "warning: saving timing cache: %v\n", err)
		}
	}

	c.printSummary(time.Now())

	agg := stats.Compute(c.hostsSlice(), c.runStart, time.Now())
	if agg.Failed > 0 {
		return 1
	}
	return 0
}

// markAbandonedAsCancelled handles hosts the executor never admitted (or
// that cleanup could not finish within the grace period): the executor
// promises no terminal event for a host it never started, so the
// controller itself marks any host still non-terminal as cancelled.
func (c *Controller) markAbandonedAsCancelled() {
	now := time.Now()
	for _, key := range c.hostOrder {
		h := c.hosts[key]
		if h.Status().IsTerminal() {
			continue
		}
		h.Finish(buildphase.Failed, now, 0, false, errs.New(errs.Cancelled, errs.High, fmt.Errorf("cancelled")).Error())
	}
}

func (c *Controller) hostsSlice() []*hoststate.Host {
	out := make([]*hoststate.Host, 0, len(c.hostOrder))
	for _, key := range c.hostOrder {
		out = append(out, c.hosts[key])
	}
	return out
}

// printSummary writes the end-of-run report (spec.md §6 "Summary
// output").
func (c *Controller) printSummary(now time.Time) {
	agg := stats.Compute(c.hostsSlice(), c.runStart, now)

	fmt.Fprintln(c.stdout, "============")
	fmt.Fprintln(c.stdout, "BUILD SUMMARY")
	fmt.Fprintln(c.stdout, "============")
	fmt.Fprintf(c.stdout, "Total time: %s\n\n", agg.Elapsed.Round(time.Second))

	fmt.Fprintln(c.stdout, "SUCCESSFUL BUILDS:")
	for _, key := range c.hostOrder {
		h := c.hosts[key]
		if h.Status() == buildphase.Completed {
			fmt.Fprintf(c.stdout, "  %s (%s)\n", key, h.TotalElapsed(now).Round(time.Second))
		}
	}
	fmt.Fprintln(c.stdout)

	fmt.Fprintln(c.stdout, "FAILED BUILDS:")
	for _, key := range c.hostOrder {
		h := c.hosts[key]
		if h.Status() == buildphase.Failed {
			fmt.Fprintf(c.stdout, "  %s (%s)", key, h.TotalElapsed(now).Round(time.Second))
			if h.ErrorMessage != "" {
				fmt.Fprintf(c.stdout, " - Error: %s", h.ErrorMessage)
			}
			fmt.Fprintln(c.stdout)
		}
	}
	fmt.Fprintln(c.stdout)

	fmt.Fprintf(c.stdout, "Overall: %d/%d builds successful (%.1f%%)\n", agg.Succeeded, agg.Total, agg.SuccessPercent())
}
