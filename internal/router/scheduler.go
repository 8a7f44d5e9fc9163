// SPDX-License-Identifier: MIT
package router

import (
	"context"
	"time"
)

// DefaultInterval is the emission period, roughly 30 Hz.
const DefaultInterval = 33 * time.Millisecond

// Flusher publishes whatever accumulated since the previous call and reports
// how many batches went out. *Router implements it.
type Flusher interface {
	Flush() int
}

// FlusherFunc adapts a function to Flusher.
type FlusherFunc func() int

func (f FlusherFunc) Flush() int { return f() }

// Scheduler decouples decode rate from delivery rate: the producer hands it
// every input item and it flushes on a fixed period, on the producer's own
// goroutine.
type Scheduler struct {
	interval time.Duration
	flusher  Flusher

	ticks   uint64
	batches uint64
}

// NewScheduler returns a Scheduler flushing f every interval. A non-positive
// interval selects DefaultInterval.
func NewScheduler(interval time.Duration, f Flusher) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval, flusher: f}
}

// Interval returns the emission period.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Stats returns how many periods elapsed and how many batches were emitted.
// Producer goroutine only.
func (s *Scheduler) Stats() (ticks, batches uint64) { return s.ticks, s.batches }

// Tick runs one flush.
func (s *Scheduler) Tick() int {
	n := s.flusher.Flush()
	s.ticks++
	s.batches += uint64(n)
	return n
}

// Drive is the producer loop. It passes every item received on in to handle
// and flushes once per period. It returns nil when in is closed and ctx.Err()
// when ctx ends, flushing one final time in both cases. handle and the
// flusher always run on the calling goroutine.
func Drive[T any](ctx context.Context, s *Scheduler, in <-chan T, handle func(T)) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.Tick()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-in:
			if !ok {
				return nil
			}
			handle(item)
		case <-ticker.C:
			s.Tick()
		}
	}
}
