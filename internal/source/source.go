// SPDX-License-Identifier: MIT
/*
Package source runs the producers that turn an instrument link into events.

Every producer implements Source. Serial reads a Port on a dedicated reader
goroutine and decodes on a producer goroutine that also owns the router and
the emission scheduler. Derived sources such as the spectral analyzer
implement the same interface and are stopped before the source they consume.
*/
package source

import (
	"fmt"

	"github.com/google/uuid"

	"signalmon/internal/event"
)

// Source is the capability every producer offers its owner.
type Source interface {
	// ID identifies the source in every event it publishes.
	ID() uuid.UUID
	// Name is a human readable label, e.g. the port path.
	Name() string
	// Subscribe registers a consumer. The subscription closes after the
	// source publishes its Completed event.
	Subscribe(buf int) *event.Subscription
	// Stop requests an orderly shutdown and returns immediately.
	Stop()
	// Done is closed once the source released its resources.
	Done() <-chan struct{}
	// Err returns the error that ended the source, nil after an orderly
	// stop. Valid once Done is closed.
	Err() error
}

// TransportError reports a failure of the underlying link. It ends the source
// that hit it.
type TransportError struct {
	Source string // source name
	Op     string // "open", "read" or "close"
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Source, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
