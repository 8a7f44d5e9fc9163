// SPDX-License-Identifier: MIT
package event

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestHubDeliversInOrder(t *testing.T) {
	h := NewHub("test")
	sub := h.Subscribe(8)
	src := uuid.New()

	for i := range 3 {
		if !h.Publish(Batch{Source: src, Channel: i, Y: []float64{float64(i)}}) {
			t.Fatalf("publish %d not delivered", i)
		}
	}
	h.Close()

	var got []int
	for ev := range sub.C {
		b, ok := ev.(Batch)
		if !ok {
			t.Fatalf("got %T, want Batch", ev)
		}
		if b.SourceID() != src {
			t.Errorf("source = %v, want %v", b.SourceID(), src)
		}
		got = append(got, b.Channel)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("channels = %v, want [0 1 2]", got)
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub("test")
	slow := h.Subscribe(1)
	fast := h.Subscribe(4)

	h.Publish(Completed{})
	if h.Publish(Completed{}) {
		t.Error("second publish reported full delivery")
	}

	if slow.Dropped() != 1 || fast.Dropped() != 0 {
		t.Errorf("dropped slow=%d fast=%d, want 1 and 0", slow.Dropped(), fast.Dropped())
	}
	if h.Dropped() != 1 {
		t.Errorf("hub dropped = %d, want 1", h.Dropped())
	}
	if len(fast.C) != 2 {
		t.Errorf("fast queue = %d, want 2", len(fast.C))
	}
}

func TestSubscriptionCancel(t *testing.T) {
	h := NewHub("test")
	sub := h.Subscribe(4)
	sub.Cancel()
	sub.Cancel()

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Cancel")
	}
	if h.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", h.Subscribers())
	}
	h.Publish(Completed{})
	h.Close()
	sub.Cancel()
}

func TestSubscribeAfterClose(t *testing.T) {
	h := NewHub("test")
	h.Close()
	h.Close()

	sub := h.Subscribe(0)
	if _, ok := <-sub.C; ok {
		t.Error("subscription to closed hub is open")
	}
	if h.Publish(Completed{}) {
		t.Error("publish on closed hub reported delivery")
	}
}

func TestHubConcurrentPublishAndCancel(t *testing.T) {
	h := NewHub("test")
	subs := make([]*Subscription, 8)
	for i := range subs {
		subs[i] = h.Subscribe(16)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 1000 {
			h.Publish(Diagnostic{})
		}
	}()
	go func() {
		defer wg.Done()
		for _, s := range subs {
			s.Cancel()
		}
	}()
	wg.Wait()
	h.Close()
}
