// SPDX-License-Identifier: MIT
/*
Package router assigns decoded tokens to channels and buffers their samples
until the scheduler flushes them.

The Router is driven by a single producer goroutine. Only the channel id table
and the active channel index are shared with other goroutines; they sit behind
one mutex. Sample buffers and cursors are producer owned.
*/
package router

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"signalmon/internal/directive"
	"signalmon/internal/event"
	"signalmon/internal/log"
	"signalmon/internal/stream"
)

// DefaultStep is the x increment of a channel that never received a step
// directive.
const DefaultStep = 1.0

// DefaultMaxChannels bounds the channel table of one source.
const DefaultMaxChannels = 256

// Publisher receives the router's events. *event.Hub implements it.
type Publisher interface {
	Publish(ev event.Event) bool
}

// Channel is one logical time series.
type Channel struct {
	ID    uuid.UUID
	Index int

	cursor float64
	step   float64
	xs, ys []float64
}

// Cursor returns the x value the next sample will get.
func (c *Channel) Cursor() float64 { return c.cursor }

// Step returns the x increment per sample.
func (c *Channel) Step() float64 { return c.step }

// Pending returns the number of buffered samples.
func (c *Channel) Pending() int { return len(c.ys) }

func (c *Channel) append(x, y float64) {
	c.xs = append(c.xs, x)
	c.ys = append(c.ys, y)
}

func (c *Channel) reset() {
	c.cursor = 0
	c.xs, c.ys = c.xs[:0], c.ys[:0]
}

// Router owns the channels of one source.
type Router struct {
	source      uuid.UUID
	out         Publisher
	step        float64
	maxChannels int
	log         *log.Logger

	mu      sync.Mutex // guards ids and current
	ids     []uuid.UUID
	current int

	channels []*Channel
}

// Option configures a Router.
type Option func(*Router)

// WithDefaultStep sets the x increment new channels start with.
func WithDefaultStep(step float64) Option {
	return func(r *Router) { r.step = step }
}

// WithMaxChannels bounds the number of channels select directives can create.
func WithMaxChannels(n int) Option {
	return func(r *Router) { r.maxChannels = n }
}

// New returns a Router publishing events for source to out.
func New(source uuid.UUID, out Publisher, opts ...Option) (*Router, error) {
	r := &Router{
		source:      source,
		out:         out,
		step:        DefaultStep,
		maxChannels: DefaultMaxChannels,
		log:         log.New("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.step <= 0 {
		return nil, fmt.Errorf("router: default step must be positive, got %g", r.step)
	}
	if r.maxChannels < 1 {
		return nil, fmt.Errorf("router: channel bound must be positive, got %d", r.maxChannels)
	}
	return r, nil
}

// Route consumes one tokenizer output. Numbers are appended to the active
// channel. Directives are interpreted, applied and re-published as Control
// events; the applied command is returned with ok set. Malformed tokens and
// directives are published as Diagnostic events.
func (r *Router) Route(tok stream.Token) (directive.Command, bool) {
	switch tok.Kind {
	case stream.Number:
		r.Append(tok.Value)
	case stream.Directive:
		cmd, err := directive.Interpret(tok.Text)
		if err == nil && cmd.Word == directive.SelectChannel && cmd.Int() >= r.maxChannels {
			err = &directive.DirectiveError{
				Text:     cmd.Text,
				Word:     directive.SelectChannel,
				Expected: fmt.Sprintf("channel index below %d", r.maxChannels),
				Got:      string(cmd.Payload),
			}
			cmd = directive.Command{Word: directive.UserDefined, Payload: []byte(cmd.Text), Text: cmd.Text}
		}
		if err != nil {
			r.diagnose(err)
		}
		r.Apply(cmd)
		return cmd, true
	case stream.Error:
		r.diagnose(tok.Err)
	}
	return directive.Command{}, false
}

// Append adds y to the active channel at its cursor and advances the cursor
// by the channel's step.
func (r *Router) Append(y float64) {
	ch := r.active()
	ch.append(ch.cursor, y)
	ch.cursor += ch.step
}

// AppendPoint adds an explicit (x, y) pair to the active channel without
// touching its cursor.
func (r *Router) AppendPoint(x, y float64) {
	r.active().append(x, y)
}

// Apply performs the local side effects of cmd and publishes it.
func (r *Router) Apply(cmd directive.Command) {
	switch cmd.Word {
	case directive.StreamStart, directive.ClearData:
		r.Clear()
	case directive.SelectChannel:
		r.Select(cmd.Int())
	case directive.SetXStep:
		if step := cmd.Float(); step > 0 {
			r.active().step = step
		}
	}
	r.out.Publish(event.Control{Source: r.source, Channel: r.Current(), Command: cmd})
}

// Select makes index the active channel, creating every missing channel up to
// and including it. Indices outside the channel bound are ignored.
func (r *Router) Select(index int) {
	if index < 0 || index >= r.maxChannels {
		r.log.Warnf("channel %d out of range, keeping channel %d", index, r.Current())
		return
	}
	for len(r.channels) <= index {
		r.create()
	}
	r.mu.Lock()
	r.current = index
	r.mu.Unlock()
}

// Clear drops all buffered samples and rewinds every cursor. Channel identity
// and steps are kept.
func (r *Router) Clear() {
	for _, ch := range r.channels {
		ch.reset()
	}
}

// Flush publishes one Batch per channel with pending samples, in index order,
// and empties those buffers. It returns the number of batches published.
func (r *Router) Flush() int {
	n := 0
	for _, ch := range r.channels {
		if len(ch.ys) == 0 {
			continue
		}
		r.out.Publish(event.Batch{Source: r.source, Channel: ch.Index, X: ch.xs, Y: ch.ys})
		// The published slices now belong to consumers.
		ch.xs, ch.ys = nil, nil
		n++
	}
	return n
}

// Channel returns the channel at index, or nil. Producer goroutine only.
func (r *Router) Channel(index int) *Channel {
	if index < 0 || index >= len(r.channels) {
		return nil
	}
	return r.channels[index]
}

// Current returns the active channel index.
func (r *Router) Current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// ChannelID returns the id of the channel at index.
func (r *Router) ChannelID(index int) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.ids) {
		return uuid.Nil, false
	}
	return r.ids[index], true
}

// IDs returns the channel ids in creation order.
func (r *Router) IDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.ids...)
}

func (r *Router) active() *Channel {
	if len(r.channels) == 0 {
		r.create()
	}
	return r.channels[r.Current()]
}

func (r *Router) create() {
	ch := &Channel{ID: uuid.New(), Index: len(r.channels), step: r.step}
	r.channels = append(r.channels, ch)

	r.mu.Lock()
	r.ids = append(r.ids, ch.ID)
	r.mu.Unlock()

	r.log.Debugf("channel %d created (%s)", ch.Index, ch.ID)
	r.out.Publish(event.ChannelCreated{Source: r.source, Channel: ch.Index, ID: ch.ID})
}

func (r *Router) diagnose(err error) {
	r.out.Publish(event.Diagnostic{Source: r.source, Channel: r.Current(), Err: err})
}
