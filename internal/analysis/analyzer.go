// SPDX-License-Identifier: MIT
/*
Package analysis derives spectral channels from a source's emitted samples.

An Analyzer subscribes to one channel of a parent source, keeps the latest
fftSize samples in a ring and, once per scheduler period when new samples
arrived, replaces its output channel with a fresh spectrum. Every spectrum is
preceded by a clear-data control so consumers always hold a single snapshot.
The Analyzer is itself a source.Source and stops when its parent completes.
*/
package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"signalmon/internal/config"
	"signalmon/internal/directive"
	"signalmon/internal/event"
	"signalmon/internal/log"
	"signalmon/internal/router"
	"signalmon/internal/source"
)

// Fill decides when a window that is not yet full is evaluated.
type Fill int

const (
	// FillWait evaluates only once fftSize real samples have arrived.
	FillWait Fill = iota
	// FillPad zero-pads a short window and evaluates it immediately.
	FillPad
)

// ParseFill converts "wait" or "pad" to a Fill.
func ParseFill(name string) (Fill, bool) {
	switch name {
	case config.FillWait, "":
		return FillWait, true
	case config.FillPad:
		return FillPad, true
	}
	return FillWait, false
}

// Options configures an Analyzer.
type Options struct {
	Name        string        // defaults to "<parent>/fft"
	Channel     int           // parent channel index to analyze
	FFTSize     int           // power of two
	Mode        Mode          // amplitude or phase
	Window      WindowFunc    // taper, Rectangular by default
	Fill        Fill          // short window policy
	DefaultStep float64       // sample step until the parent sends one
	Interval    time.Duration // evaluation period, router.DefaultInterval when zero
	EventBuffer int           // queue depth of the parent subscription
}

// OptionsFromConfig maps the spectrum section to Options.
func OptionsFromConfig(cfg config.SpectrumConfig, interval time.Duration, buffer int) (Options, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return Options{}, &config.ConfigurationError{Field: "spectrum.mode", Reason: err.Error()}
	}
	w, err := ParseWindowFunc(cfg.Window)
	if err != nil {
		return Options{}, &config.ConfigurationError{Field: "spectrum.window", Reason: err.Error()}
	}
	fill, ok := ParseFill(cfg.Fill)
	if !ok {
		return Options{}, &config.ConfigurationError{Field: "spectrum.fill", Reason: "must be wait or pad"}
	}
	return Options{
		Channel:     cfg.SourceChannel,
		FFTSize:     cfg.FFTSize,
		Mode:        mode,
		Window:      w,
		Fill:        fill,
		DefaultStep: cfg.DefaultStep,
		Interval:    interval,
		EventBuffer: buffer,
	}, nil
}

var clearData = directive.Command{Word: directive.ClearData, Text: "%CLEAR"}

// Analyzer is a derived source producing one spectral channel.
type Analyzer struct {
	id     uuid.UUID
	name   string
	opts   Options
	parent source.Source
	sub    *event.Subscription
	hub    *event.Hub
	router *router.Router
	proc   Processor
	log    *log.Logger

	// Producer goroutine state.
	ring    *ring
	scratch []float64
	step    float64
	dirty   bool
	shown   bool // a spectrum is on the output channel

	ctx    context.Context
	cancel context.CancelFunc
	start  sync.Once
	once   sync.Once
	done   chan struct{}
}

// New builds an Analyzer over parent and subscribes to it right away so no
// sample emitted after New returns is missed. Invalid options are reported as
// *config.ConfigurationError.
func New(parent source.Source, opts Options) (*Analyzer, error) {
	if opts.Name == "" {
		opts.Name = parent.Name() + "/fft"
	}
	if opts.DefaultStep <= 0 {
		opts.DefaultStep = router.DefaultStep
	}
	if opts.Channel < 0 {
		return nil, &config.ConfigurationError{Field: "spectrum.source_channel", Reason: "must not be negative"}
	}
	if opts.Mode != Amplitude && opts.Mode != Phase {
		return nil, &config.ConfigurationError{Field: "spectrum.mode", Reason: "unknown mode " + opts.Mode.String()}
	}
	proc, err := NewSpectrumProcessor(opts.FFTSize, opts.Mode, opts.Window)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "spectrum.fft_size", Reason: err.Error()}
	}

	a := &Analyzer{
		id:      uuid.New(),
		name:    opts.Name,
		opts:    opts,
		parent:  parent,
		hub:     event.NewHub(opts.Name),
		proc:    proc,
		log:     log.New("analysis").With(opts.Name),
		ring:    newRing(opts.FFTSize),
		scratch: make([]float64, opts.FFTSize),
		step:    opts.DefaultStep,
		done:    make(chan struct{}),
	}
	a.router, err = router.New(a.id, a.hub)
	if err != nil {
		return nil, err
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.sub = parent.Subscribe(opts.EventBuffer)
	return a, nil
}

func (a *Analyzer) ID() uuid.UUID                         { return a.id }
func (a *Analyzer) Name() string                          { return a.name }
func (a *Analyzer) Subscribe(buf int) *event.Subscription { return a.hub.Subscribe(buf) }
func (a *Analyzer) Done() <-chan struct{}                 { return a.done }
func (a *Analyzer) Err() error                            { return nil }

// Start launches the analysis goroutine.
func (a *Analyzer) Start() {
	a.start.Do(func() {
		go a.run()
		a.log.Infof("analyzing channel %d of %s (%d points, %s, %s window)",
			a.opts.Channel, a.parent.Name(), a.opts.FFTSize, a.opts.Mode, a.opts.Window)
	})
}

// Stop requests shutdown. The analyzer also stops by itself when its parent
// completes.
func (a *Analyzer) Stop() {
	a.cancel()
	started := true
	a.start.Do(func() { started = false })
	if !started {
		a.finish()
	}
}

func (a *Analyzer) run() {
	sched := router.NewScheduler(a.opts.Interval, router.FlusherFunc(a.tick))
	if err := router.Drive(a.ctx, sched, a.sub.C, a.handle); err == nil {
		a.log.Debugf("parent %s completed", a.parent.Name())
	}
	a.finish()
}

func (a *Analyzer) finish() {
	a.once.Do(func() {
		a.sub.Cancel()
		a.hub.Publish(event.Completed{Source: a.id})
		a.hub.Close()
		close(a.done)
	})
}

// handle runs on the analysis goroutine for every parent event.
func (a *Analyzer) handle(ev event.Event) {
	switch e := ev.(type) {
	case event.Batch:
		if e.Channel != a.opts.Channel {
			return
		}
		for _, y := range e.Y {
			a.ring.push(y)
		}
		a.dirty = a.dirty || len(e.Y) > 0
	case event.Control:
		switch e.Command.Word {
		case directive.StreamStart, directive.ClearData:
			// The parent dropped its buffers; stale samples must not leak
			// into the next window and the last spectrum is withdrawn.
			a.ring.reset()
			a.dirty = false
			if a.shown {
				a.shown = false
				a.router.Apply(clearData)
			}
		case directive.SetXStep:
			if e.Channel != a.opts.Channel {
				return
			}
			if step := e.Command.Float(); step > 0 {
				a.step = step
				a.dirty = a.ring.len() > 0
			}
		}
	}
}

// tick evaluates the window when new samples arrived and flushes the output.
func (a *Analyzer) tick() int {
	if a.dirty && a.ready() {
		a.dirty = false
		n := a.ring.copyTo(a.scratch)
		x, y, err := a.proc.Process(a.scratch[:n], a.step)
		if err != nil {
			a.log.Warnf("spectrum: %v", err)
		} else {
			a.router.Apply(clearData)
			for i := range x {
				a.router.AppendPoint(x[i], y[i])
			}
			a.shown = true
		}
	}
	return a.router.Flush()
}

func (a *Analyzer) ready() bool {
	if a.opts.Fill == FillPad {
		return a.ring.len() > 0
	}
	return a.ring.full()
}

var _ source.Source = (*Analyzer)(nil)
