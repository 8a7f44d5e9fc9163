// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"signalmon/internal/log"
)

// Supervisor owns a set of sources and tears them down deterministically:
// every derived source is stopped and joined before the source it consumes.
type Supervisor struct {
	mu      sync.Mutex
	entries []entry
	log     *log.Logger
}

type entry struct {
	src    Source
	parent Source
}

// NewSupervisor returns an empty Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{log: log.New("supervisor")}
}

// Add registers src. parent is the source src consumes, nil for a root. A
// parent must be added before its children.
func (s *Supervisor) Add(src, parent Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parent != nil && !s.has(parent) {
		return fmt.Errorf("supervisor: parent %s of %s is not registered", parent.Name(), src.Name())
	}
	s.entries = append(s.entries, entry{src: src, parent: parent})

	go func() {
		<-src.Done()
		if err := src.Err(); err != nil {
			s.log.Errorf("%s completed: %v", src.Name(), err)
		} else {
			s.log.Debugf("%s completed", src.Name())
		}
	}()
	return nil
}

func (s *Supervisor) has(src Source) bool {
	for _, e := range s.entries {
		if e.src == src {
			return true
		}
	}
	return false
}

// Sources returns the registered sources in registration order.
func (s *Supervisor) Sources() []Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Source, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.src
	}
	return out
}

// Stop stops the sources children first and waits for each to finish before
// stopping the next. It returns ctx.Err() if ctx ends first.
func (s *Supervisor) Stop(ctx context.Context) error {
	sources := s.Sources()
	for i := len(sources) - 1; i >= 0; i-- {
		src := sources[i]
		src.Stop()
		select {
		case <-src.Done():
		case <-ctx.Done():
			return fmt.Errorf("supervisor: waiting for %s: %w", src.Name(), ctx.Err())
		}
	}
	return nil
}

// Wait blocks until every source is done, or any root source is done when
// anyRoot is set, or ctx ends.
func (s *Supervisor) Wait(ctx context.Context, anyRoot bool) error {
	s.mu.Lock()
	entries := append([]entry(nil), s.entries...)
	s.mu.Unlock()

	if anyRoot {
		rootDone := make(chan struct{})
		var once sync.Once
		for _, e := range entries {
			if e.parent != nil {
				continue
			}
			go func(src Source) {
				select {
				case <-src.Done():
					once.Do(func() { close(rootDone) })
				case <-ctx.Done():
				}
			}(e.src)
		}
		select {
		case <-rootDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, e := range entries {
		select {
		case <-e.src.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Err joins the errors of every finished source.
func (s *Supervisor) Err() error {
	var errs []error
	for _, src := range s.Sources() {
		select {
		case <-src.Done():
			if err := src.Err(); err != nil {
				errs = append(errs, err)
			}
		default:
		}
	}
	return errors.Join(errs...)
}
