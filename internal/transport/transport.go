// SPDX-License-Identifier: MIT
/*
Package transport delivers source events to consumers outside the process.

A Transport receives every event of the subscriptions it is pumped from.
Implementations must be safe for concurrent use because one Transport may be
fed by several sources.
*/
package transport

import (
	"errors"

	"github.com/google/uuid"

	"signalmon/internal/event"
	"signalmon/internal/log"
)

// Transport is a consumer sink for source events.
type Transport interface {
	Send(ev event.Event) error
	Close() error
}

// Pump forwards every event of sub to each transport until sub closes. A
// failing transport is logged and keeps receiving later events.
func Pump(sub *event.Subscription, transports ...Transport) {
	for ev := range sub.C {
		for _, t := range transports {
			if err := t.Send(ev); err != nil {
				log.Debugf("transport: %T: %v", t, err)
			}
		}
	}
}

// CloseAll closes every transport and joins their errors.
func CloseAll(transports ...Transport) error {
	var errs []error
	for _, t := range transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Envelope is the JSON form of an event.
type Envelope struct {
	Type    string    `json:"type"`
	Source  string    `json:"source"`
	Channel int       `json:"channel"`
	X       []float64 `json:"x,omitempty"`
	Y       []float64 `json:"y,omitempty"`
	Control string    `json:"control,omitempty"`
	Payload string    `json:"payload,omitempty"`
	ID      string    `json:"id,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Envelope type names.
const (
	TypeBatch      = "batch"
	TypeControl    = "control"
	TypeChannel    = "channel"
	TypeDiagnostic = "diagnostic"
	TypeCompleted  = "completed"
)

// NewEnvelope converts ev. Unknown event types get an empty Type.
func NewEnvelope(ev event.Event) Envelope {
	env := Envelope{Source: ev.SourceID().String()}
	switch e := ev.(type) {
	case event.Batch:
		env.Type, env.Channel, env.X, env.Y = TypeBatch, e.Channel, e.X, e.Y
	case event.Control:
		env.Type, env.Channel = TypeControl, e.Channel
		env.Control = e.Command.Word.String()
		env.Payload = string(e.Command.Payload)
	case event.ChannelCreated:
		env.Type, env.Channel, env.ID = TypeChannel, e.Channel, e.ID.String()
	case event.Diagnostic:
		env.Type, env.Channel = TypeDiagnostic, e.Channel
		if e.Err != nil {
			env.Error = e.Err.Error()
		}
	case event.Completed:
		env.Type, env.Channel = TypeCompleted, -1
		if e.Err != nil {
			env.Error = e.Err.Error()
		}
	}
	return env
}

// shortID is the first block of a uuid, enough to tell sources apart in logs.
func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
