// Package events provides the engine's asynchronous event delivery: a
// worker-pool event bus with non-blocking publish, and a lock-free byte ring
// that carries fixed-size records from the audio thread to the workers.
package events

import (
	"time"

	"github.com/mayaflux/mayaflux-go/internal/errors"
)

// Event is the bus payload contract.
type Event interface {
	GetComponent() string
	GetCategory() string
	GetMessage() string
	GetTimestamp() time.Time
	GetContext() map[string]any
}

// Consumer receives events on a worker goroutine.
type Consumer interface {
	Name() string
	ProcessEvent(event Event) error
}

// BusStats counts bus activity.
type BusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}

// errorEvent adapts an enhanced error to the Event interface.
type errorEvent struct {
	err *errors.EnhancedError
}

func (e *errorEvent) GetComponent() string       { return e.err.GetComponent() }
func (e *errorEvent) GetCategory() string        { return e.err.GetCategory() }
func (e *errorEvent) GetMessage() string         { return e.err.GetMessage() }
func (e *errorEvent) GetTimestamp() time.Time    { return e.err.GetTimestamp() }
func (e *errorEvent) GetContext() map[string]any { return e.err.GetContext() }

// NewErrorEvent wraps an enhanced error for bus delivery.
func NewErrorEvent(err *errors.EnhancedError) Event {
	return &errorEvent{err: err}
}
