package sshexec

import (
	"time"

	"github.com/dajobe/redland-forge/internal/buildphase"
	"github.com/dajobe/redland-forge/internal/errs"
)

// Kind identifies the shape of an Event's payload.
type Kind int

const (
	// EventConnecting is emitted when a worker begins opening its SSH
	// transport (spec.md §4.1 step 1).
	EventConnecting Kind = iota
	// EventPreparing is emitted once the SSH transport is open, just
	// before the remote working directory is created and uploads begin
	// (step 3).
	EventPreparing
	// EventPhaseChanged is emitted whenever the phase detector fires a
	// transition (step 5).
	EventPhaseChanged
	// EventLine is emitted for every line read from the agent's combined
	// output stream (step 5).
	EventLine
	// EventCompleted is a terminal event for a successful build (step 6).
	EventCompleted
	// EventFailed is a terminal event carrying a classified error.
	EventFailed
)

// Event is what a worker sends on the shared event channel. The
// application controller is the sole consumer and sole mutator of Host
// state; Event is the only way data crosses from a worker goroutine back
// to the controller (spec.md §5, §9 "Observer-style state updates").
type Event struct {
	HostKey string
	Kind    Kind
	At      time.Time

	Phase buildphase.Phase // EventPhaseChanged
	Line  string           // EventLine

	ExitCode    int  // EventCompleted / EventFailed
	HasExitCode bool

	Err           *errs.Error // EventFailed
	TrailingLines []string    // EventFailed: captured trailing output
}

// Sink is the single narrow interface workers use to emit events,
// matching spec.md §9's "EventSink.send(Event)". A bounded channel-backed
// implementation provides the backpressure spec.md §4.1 describes; tests
// substitute a mock sink.
type Sink interface {
	Send(Event)
}

// ChannelSink adapts a buffered channel to the Sink interface. Send blocks
// when the channel is full, throttling output-heavy workers without
// dropping lines (spec.md §4.1 "Backpressure").
type ChannelSink struct {
	C chan Event
}

// NewChannelSink returns a ChannelSink backed by a channel of the given
// capacity.
func NewChannelSink(capacity int) *ChannelSink {
	return &ChannelSink{C: make(chan Event, capacity)}
}

func (s *ChannelSink) Send(e Event) {
	s.C <- e
}
