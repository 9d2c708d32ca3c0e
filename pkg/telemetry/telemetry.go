// Package telemetry carries exchange completion events from the bridge to
// injected observers. Observers never run on the exchange goroutine.
package telemetry

import (
	"time"

	"github.com/google/uuid"

	"assetbridge/pkg/httpx"
)

// State is the lifecycle position of an exchange.
type State string

const (
	StateReceived        State = "received"
	StateStreamingFile   State = "streaming_file"
	StateAwaitingHandler State = "awaiting_handler"
	StateStreamingBody   State = "streaming_body"
	StateDone            State = "done"
	StateAborted         State = "aborted"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted || s == StateFailed
}

// Kind tells which path served the exchange.
type Kind string

const (
	KindStatic  Kind = "static"
	KindDynamic Kind = "dynamic"
)

// Event is emitted once per exchange after its body finished or aborted.
// Request and Response are body-less and already redacted.
type Event struct {
	ID       string                 `json:"id"`
	Start    time.Time              `json:"start"`
	Duration float64                `json:"duration_ms"`
	Kind     Kind                   `json:"kind"`
	State    State                  `json:"state"`
	Encoding string                 `json:"encoding,omitempty"`
	Bytes    int64                  `json:"bytes"`
	Request  httpx.RequestSnapshot  `json:"request"`
	Response httpx.ResponseSnapshot `json:"response"`
	Err      string                 `json:"error,omitempty"`
}

// NewID returns a fresh exchange id.
func NewID() string { return uuid.NewString() }

// Observer receives completion events. Implementations must be safe for
// concurrent use when shared across dispatchers.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Multi fans an event out to several observers in order.
type Multi []Observer

func (m Multi) Observe(ev Event) {
	for _, o := range m {
		o.Observe(ev)
	}
}
