// SPDX-License-Identifier: MIT
/*
Package event defines what sources publish to their consumers and the Hub that
fans those events out.

A source never calls its consumers directly. Consumers register with
Hub.Subscribe and read from the returned Subscription's channel on their own
goroutine; Publish never blocks the producer.
*/
package event

import (
	"github.com/google/uuid"

	"signalmon/internal/directive"
)

// Event is one of Batch, Control, ChannelCreated, Diagnostic or Completed.
type Event interface {
	// SourceID identifies the source that published the event.
	SourceID() uuid.UUID
}

// Batch carries the samples a channel accumulated during one scheduler
// period, in arrival order.
type Batch struct {
	Source  uuid.UUID
	Channel int
	X, Y    []float64
}

// Control is a directive re-emitted for consumers after the router applied it.
type Control struct {
	Source  uuid.UUID
	Channel int
	Command directive.Command
}

// ChannelCreated is published once per channel, when the router first
// allocates it.
type ChannelCreated struct {
	Source  uuid.UUID
	Channel int
	ID      uuid.UUID
}

// Diagnostic reports a non-fatal decode or directive problem. Channel is the
// active channel at the time.
type Diagnostic struct {
	Source  uuid.UUID
	Channel int
	Err     error
}

// Completed is the last event a source publishes. Err is nil after an
// orderly stop.
type Completed struct {
	Source uuid.UUID
	Err    error
}

func (e Batch) SourceID() uuid.UUID          { return e.Source }
func (e Control) SourceID() uuid.UUID        { return e.Source }
func (e ChannelCreated) SourceID() uuid.UUID { return e.Source }
func (e Diagnostic) SourceID() uuid.UUID     { return e.Source }
func (e Completed) SourceID() uuid.UUID      { return e.Source }

// Len returns the number of samples in the batch.
func (e Batch) Len() int { return len(e.Y) }
