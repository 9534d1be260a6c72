package sshexec

import (
	"bufio"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dajobe/redland-forge/internal/agent"
	"github.com/dajobe/redland-forge/internal/buildphase"
	"github.com/dajobe/redland-forge/internal/errs"
	"github.com/dajobe/redland-forge/internal/phasedetect"
)

const (
	// DefaultIdleTimeout is the maximum silence on a worker's output
	// stream before the build is declared stalled (spec.md §4.1).
	DefaultIdleTimeout = 10 * time.Minute
	// DefaultWallClock is the overall ceiling on command execution
	// (spec.md §4.1).
	DefaultWallClock = 2 * time.Hour
	// cleanupGrace bounds best-effort remote cleanup after cancellation
	// (spec.md §4.1 "Cancellation semantics").
	cleanupGrace = 5 * time.Second
	// trailingLinesKept is how many of the most recent lines are
	// attached to a failed event (spec.md §4.1 step 6).
	trailingLinesKept = 20
)

// HostSpec identifies one build target.
type HostSpec struct {
	Key      string // canonical user@hostname
	User     string
	Hostname string
	Port     int
	Display  string
}

// WorkerConfig parameterizes a single worker's run, set once by the
// Executor from its Start() options.
type WorkerConfig struct {
	TarballPath    string
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	WallClock      time.Duration
	AgentScript    []byte // nil uses the embedded default
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.WallClock <= 0 {
		c.WallClock = DefaultWallClock
	}
	if c.AgentScript == nil {
		c.AgentScript = agent.DefaultScript
	}
	return c
}

// worker drives one host through the protocol in spec.md §4.1. It never
// touches Host/output-buffer state directly (spec.md §5): it only emits
// Events for the controller to apply.
type worker struct {
	host   HostSpec
	cfg    WorkerConfig
	sink   Sink
	detect *phasedetect.Detector

	trailing []string
}

func newWorker(host HostSpec, cfg WorkerConfig, sink Sink) *worker {
	return &worker{host: host, cfg: cfg.withDefaults(), sink: sink, detect: phasedetect.New()}
}

// run executes the full per-host protocol. It always returns after either
// a terminal event has been emitted or ctx has been cancelled and
// best-effort cleanup attempted; run never panics on a step failure,
// converting every error into a terminal EventFailed (spec.md §7 "worker
// errors never propagate past the worker").
func (w *worker) run(ctx context.Context) {
	now := time.Now
	w.emit(Event{HostKey: w.host.Key, Kind: EventConnecting, At: now()})

	if err := ctx.Err(); err != nil {
		w.fail(errs.Cancelled, errs.High, "cancelled before connect", err)
		return
	}

	conn, err := Dial(ctx, w.host.User, w.host.Hostname, w.host.Port, w.cfg.ConnectTimeout)
	if err != nil {
		w.fail(errs.Connect, errs.High, "connect", err)
		return
	}
	defer w.cleanup(conn)

	w.emit(Event{HostKey: w.host.Key, Kind: EventPreparing, At: now()})

	dir, err := conn.MakeWorkDir()
	if err != nil {
		w.fail(errs.Transfer, errs.High, "create remote working directory", err)
		return
	}

	scriptName := agent.DefaultScriptName
	scriptPath, err := conn.UploadBytes(w.cfg.AgentScript, dir, scriptName, 0o755)
	if err != nil {
		w.fail(errs.Transfer, errs.High, "upload agent script", err)
		return
	}
	tarballName := basename(w.cfg.TarballPath)
	remoteTarball, err := conn.Upload(w.cfg.TarballPath, dir, tarballName, 0o644)
	if err != nil {
		w.fail(errs.Transfer, errs.High, "upload tarball", err)
		return
	}

	if ctx.Err() != nil {
		w.fail(errs.Cancelled, errs.High, "cancelled before execute", ctx.Err())
		return
	}

	execCtx, cancelExec := context.WithTimeout(ctx, w.cfg.WallClock)
	defer cancelExec()

	sess, err := conn.Start(shellQuote(scriptPath) + " " + shellQuote(remoteTarball))
	if err != nil {
		w.fail(errs.Execute, errs.High, "start agent", err)
		return
	}
	defer sess.Close()

	if err := w.pump(execCtx, sess.Output()); err != nil {
		if errors.Is(err, errIdleTimeout) {
			w.fail(errs.Stalled, errs.High, "idle timeout", err)
			return
		}
		if ctx.Err() != nil {
			w.fail(errs.Cancelled, errs.High, "cancelled during build", ctx.Err())
			return
		}
		if execCtx.Err() != nil {
			w.fail(errs.Execute, errs.High, "wall-clock limit exceeded", execCtx.Err())
			return
		}
	}

	exitCode, hasExitCode, waitErr := sess.Wait()
	switch {
	case w.detect.Current() == buildphase.Completed:
		w.emit(Event{HostKey: w.host.Key, Kind: EventCompleted, At: now(), ExitCode: exitCode, HasExitCode: hasExitCode})
	case waitErr != nil:
		w.fail(errs.Execute, errs.High, "agent exit", waitErr)
	case hasExitCode && exitCode != 0:
		w.failWithTrailing(errs.Execute, errs.High, exitMessage(exitCode), exitCode, hasExitCode)
	default:
		w.emit(Event{HostKey: w.host.Key, Kind: EventCompleted, At: now(), ExitCode: exitCode, HasExitCode: hasExitCode})
	}
}

var errIdleTimeout = errors.New("idle timeout exceeded")

// pump is the output pump (spec.md §4.1 step 5): it reads lines with a
// soft idle deadline, feeding each to the phase detector and emitting
// Line/PhaseChanged events. It returns errIdleTimeout if the deadline
// elapses, or the underlying read error (including context cancellation)
// otherwise.
func (w *worker) pump(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			}
		}
		readErr <- scanner.Err()
	}()

	idle := w.cfg.IdleTimeout
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
			w.handleLine(line)
		case <-timer.C:
			return errIdleTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *worker) handleLine(line string) {
	now := time.Now()
	w.trailing = append(w.trailing, line)
	if len(w.trailing) > trailingLinesKept {
		w.trailing = w.trailing[len(w.trailing)-trailingLinesKept:]
	}
	w.emit(Event{HostKey: w.host.Key, Kind: EventLine, At: now, Line: line})
	if phase, ok := w.detect.Feed(line); ok && !phase.IsTerminal() {
		w.emit(Event{HostKey: w.host.Key, Kind: EventPhaseChanged, At: now, Phase: phase})
	}
}

func (w *worker) emit(e Event) {
	w.sink.Send(e)
}

func (w *worker) fail(kind errs.Kind, sev errs.Severity, msg string, cause error) {
	w.emit(Event{
		HostKey:       w.host.Key,
		Kind:          EventFailed,
		At:            time.Now(),
		Err:           errs.Wrap(kind, sev, msg, cause),
		TrailingLines: w.trailing,
	})
}

func (w *worker) failWithTrailing(kind errs.Kind, sev errs.Severity, msg string, exitCode int, hasExitCode bool) {
	w.emit(Event{
		HostKey:       w.host.Key,
		Kind:          EventFailed,
		At:            time.Now(),
		Err:           errs.New(kind, sev, errors.New(msg)),
		TrailingLines: w.trailing,
		ExitCode:      exitCode,
		HasExitCode:   hasExitCode,
	})
}

func exitMessage(exitCode int) string {
	return "agent exited with status " + strconv.Itoa(exitCode)
}

// cleanup performs the scoped release of SSH resources on every exit path
// (spec.md §3 "A worker ... owns SSH resources under a scoped acquisition
// that releases them on any exit path"): it best-effort removes the
// remote working directory, bounded by cleanupGrace, then closes the
// connection.
func (w *worker) cleanup(conn *Conn) {
	cctx, cancel := context.WithTimeout(context.Background(), cleanupGrace)
	defer cancel()
	_ = conn.RemoveWorkDir(cctx)
	_ = conn.Close()
}

func basename(p string) string {
	return filepath.Base(p)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
