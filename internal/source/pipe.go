// SPDX-License-Identifier: MIT
package source

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// Pipe is an in-memory Port. Bytes written to it are returned by Read, which
// waits at most the read timeout like a serial device does.
type Pipe struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	err     error
	closed  bool
	timeout time.Duration
	ready   chan struct{}
}

// NewPipe returns an empty Pipe with a 10ms read timeout.
func NewPipe() *Pipe {
	return &Pipe{timeout: 10 * time.Millisecond, ready: make(chan struct{}, 1)}
}

// Write queues b for Read.
func (p *Pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	p.buf.Write(b)
	p.signal()
	return len(b), nil
}

// WriteString queues s for Read.
func (p *Pipe) WriteString(s string) (int, error) {
	return p.Write([]byte(s))
}

// Fail makes Read return err once the queued bytes are consumed.
func (p *Pipe) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	p.signal()
}

func (p *Pipe) signal() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

// Read returns queued bytes, the error set by Fail, or (0, nil) after the
// read timeout.
func (p *Pipe) Read(b []byte) (int, error) {
	timer := time.NewTimer(p.readTimeout())
	defer timer.Stop()

	for {
		p.mu.Lock()
		switch {
		case p.buf.Len() > 0:
			n, _ := p.buf.Read(b)
			p.mu.Unlock()
			return n, nil
		case p.err != nil:
			err := p.err
			p.mu.Unlock()
			return 0, err
		case p.closed:
			p.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		p.mu.Unlock()

		select {
		case <-p.ready:
		case <-timer.C:
			return 0, nil
		}
	}
}

func (p *Pipe) readTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeout
}

// SetReadTimeout sets how long Read waits for data.
func (p *Pipe) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = t
	return nil
}

// Close releases the pipe. Subsequent writes fail.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.signal()
	return nil
}

// Closed reports whether Close was called.
func (p *Pipe) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
