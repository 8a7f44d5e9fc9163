// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"signalmon/internal/directive"
	"signalmon/internal/event"
	"signalmon/internal/log"
	"signalmon/internal/router"
	"signalmon/internal/stream"
)

// Options configures a Serial source. Zero values select the defaults.
type Options struct {
	Name         string        // label for logs and errors
	ReadTimeout  time.Duration // bound of one blocking read, default 200ms
	ReadSize     int           // bytes requested per read, default 4096
	EmitInterval time.Duration // scheduler period, default router.DefaultInterval
	StartMarker  string        // discard input until this appears, "" disables
	MaxTokenLen  int           // token length bound, default stream.DefaultMaxTokenLen
	MaxChannels  int           // channel table bound, default router.DefaultMaxChannels
	DefaultStep  float64       // initial x step of new channels, default 1
}

func (o *Options) setDefaults() {
	if o.Name == "" {
		o.Name = "serial"
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 200 * time.Millisecond
	}
	if o.ReadSize <= 0 {
		o.ReadSize = 4096
	}
	if o.EmitInterval <= 0 {
		o.EmitInterval = router.DefaultInterval
	}
	if o.MaxTokenLen <= 0 {
		o.MaxTokenLen = stream.DefaultMaxTokenLen
	}
	if o.MaxChannels <= 0 {
		o.MaxChannels = router.DefaultMaxChannels
	}
	if o.DefaultStep <= 0 {
		o.DefaultStep = router.DefaultStep
	}
}

// Serial decodes an instrument stream read from a Port.
//
// A reader goroutine performs bounded reads and checks the stop flag between
// them. Chunks are handed to the producer goroutine, which owns the tokenizer,
// the router and the scheduler. %STOP re-arms the start marker hunt when a
// marker is configured.
type Serial struct {
	id   uuid.UUID
	opts Options
	port Port
	hub  *event.Hub
	log  *log.Logger

	router  *router.Router
	tz      *stream.Tokenizer
	hunter  *markerHunter
	hunting bool

	started  atomic.Bool
	stopping atomic.Bool
	readErr  error // written by the reader before it closes the chunk channel
	bytesIn  atomic.Uint64
	tokens   uint64

	once sync.Once
	mu   sync.Mutex
	err  error
	done chan struct{}
}

// NewSerial prepares a source reading port. Call Start once subscribers are
// registered.
func NewSerial(port Port, opts Options) (*Serial, error) {
	opts.setDefaults()

	s := &Serial{
		id:   uuid.New(),
		opts: opts,
		port: port,
		hub:  event.NewHub(opts.Name),
		log:  log.New("serial").With(opts.Name),
		tz:   stream.NewTokenizer(),
		done: make(chan struct{}),
	}
	s.tz.SetMaxTokenLen(opts.MaxTokenLen)

	r, err := router.New(s.id, s.hub, router.WithDefaultStep(opts.DefaultStep), router.WithMaxChannels(opts.MaxChannels))
	if err != nil {
		return nil, err
	}
	s.router = r

	if opts.StartMarker != "" {
		s.hunter = newMarkerHunter(opts.StartMarker)
		s.hunting = true
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		return nil, &TransportError{Source: opts.Name, Op: "open", Err: err}
	}
	return s, nil
}

func (s *Serial) ID() uuid.UUID                         { return s.id }
func (s *Serial) Name() string                          { return s.opts.Name }
func (s *Serial) Subscribe(buf int) *event.Subscription { return s.hub.Subscribe(buf) }
func (s *Serial) Done() <-chan struct{}                 { return s.done }

// Router exposes the channel table for id lookups from other goroutines.
func (s *Serial) Router() *router.Router { return s.router }

// Err returns the error that ended the source.
func (s *Serial) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Start launches the reader and producer goroutines. Calling it again, or
// after Stop, does nothing.
func (s *Serial) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	chunks := make(chan []byte, 16)
	go s.readLoop(chunks)
	go s.produce(chunks)
	s.log.Infof("started (marker %q, emit every %v)", s.opts.StartMarker, s.opts.EmitInterval)
}

// Stop sets the cooperative stop flag. The reader notices it within one read
// timeout; the producer then flushes, releases the port and completes.
func (s *Serial) Stop() {
	s.stopping.Store(true)
	if s.started.CompareAndSwap(false, true) {
		s.finish(nil)
	}
}

func (s *Serial) readLoop(out chan<- []byte) {
	defer close(out)

	buf := make([]byte, s.opts.ReadSize)
	for !s.stopping.Load() {
		n, err := s.port.Read(buf)
		if n > 0 {
			s.bytesIn.Add(uint64(n))
			out <- append([]byte(nil), buf[:n]...)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			s.log.Infof("end of stream")
			return
		}
		if !s.stopping.Load() {
			s.readErr = &TransportError{Source: s.opts.Name, Op: "read", Err: err}
		}
		return
	}
}

func (s *Serial) produce(chunks <-chan []byte) {
	sched := router.NewScheduler(s.opts.EmitInterval, s.router)
	_ = router.Drive(context.Background(), sched, chunks, s.consume)

	if !s.hunting {
		s.tz.Finish(func(tok stream.Token) { s.route(tok) })
	}
	s.router.Flush()

	ticks, batches := sched.Stats()
	s.log.Debugf("scheduler: %d periods, %d batches", ticks, batches)
	s.finish(s.readErr)
}

// consume runs on the producer goroutine for every chunk read.
func (s *Serial) consume(chunk []byte) {
	for len(chunk) > 0 {
		if s.hunting {
			rest, ok := s.hunter.scan(chunk)
			if !ok {
				return
			}
			s.hunting = false
			s.log.Debugf("start marker found")
			chunk = rest
		}
		chunk = s.decode(chunk)
	}
}

// decode routes every token in p. When a stop directive re-arms the marker
// hunt it returns the undecoded remainder.
func (s *Serial) decode(p []byte) []byte {
	for tok := s.tz.Feed(p); tok.Kind != stream.Incomplete; tok = s.tz.Next() {
		cmd, ok := s.route(tok)
		if ok && cmd.Word == directive.StreamStop && s.hunter != nil {
			rest := s.tz.Pending()
			s.tz.Reset()
			s.hunter.reset()
			s.hunting = true
			s.log.Debugf("stream stopped, waiting for %q", s.opts.StartMarker)
			return rest
		}
	}
	return nil
}

func (s *Serial) route(tok stream.Token) (directive.Command, bool) {
	s.tokens++
	if tok.Kind == stream.Error {
		s.log.Debugf("tokenize: %v", tok.Err)
	}
	return s.router.Route(tok)
}

func (s *Serial) finish(err error) {
	s.once.Do(func() {
		if cerr := s.port.Close(); cerr != nil && err == nil {
			err = &TransportError{Source: s.opts.Name, Op: "close", Err: cerr}
		}

		s.mu.Lock()
		s.err = err
		s.mu.Unlock()

		if err != nil {
			s.log.Errorf("stopped: %v", err)
		} else {
			s.log.Infof("stopped after %s, %s tokens",
				humanize.Bytes(s.bytesIn.Load()), humanize.Comma(int64(s.tokens)))
		}

		s.hub.Publish(event.Completed{Source: s.id, Err: err})
		s.hub.Close()
		close(s.done)
	})
}

var _ Source = (*Serial)(nil)
