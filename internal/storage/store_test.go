// SPDX-License-Identifier: MIT
package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"signalmon/internal/directive"
	"signalmon/internal/event"
)

func newRecorder(t *testing.T) *Recorder {
	t.Helper()
	r := NewRecorder(filepath.Join(t.TempDir(), "session.db"))
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecorderSession(t *testing.T) {
	ctx := context.Background()
	r := newRecorder(t)

	id, err := r.CreateSession(ctx, "/dev/ttyUSB0", map[string]int{"baud_rate": 115200})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	src := uuid.New()
	clearCmd, _ := directive.Interpret("%CLEAR")
	events := []event.Event{
		event.ChannelCreated{Source: src, Channel: 0, ID: uuid.New()},
		event.Batch{Source: src, Channel: 0, X: []float64{0, 1, 2}, Y: []float64{1.5, 2.5, 3.5}},
		event.Control{Source: src, Channel: 0, Command: clearCmd},
		event.Diagnostic{Source: src, Channel: 0, Err: errors.New("unexpected 'x'")},
		event.Batch{Source: src, Channel: 1, X: []float64{0}, Y: []float64{-1}},
		event.Completed{Source: src, Err: errors.New("read: device gone")},
	}
	for _, ev := range events {
		if err := r.Send(ev); err != nil {
			t.Fatalf("Send(%T) error = %v", ev, err)
		}
	}

	counts := map[string]int{"channels": 1, "samples": 4, "controls": 1, "diagnostics": 1}
	for table, want := range counts {
		got, err := r.Count(ctx, table, id)
		if err != nil {
			t.Fatalf("Count(%s) error = %v", table, err)
		}
		if got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}

	points, err := r.Samples(ctx, id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 3 || points[0] != (Point{0, 1.5}) || points[2] != (Point{2, 3.5}) {
		t.Errorf("points = %v", points)
	}

	sess, err := r.Session(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Source != "/dev/ttyUSB0" || !sess.EndTime.Valid {
		t.Errorf("session = %+v", sess)
	}
	if sess.Config.String != `{"baud_rate":115200}` {
		t.Errorf("config = %q", sess.Config.String)
	}
	if sess.Error.String != "read: device gone" {
		t.Errorf("error = %q", sess.Error.String)
	}
}

func TestRecorderOnlyFirstCompletionClosesSession(t *testing.T) {
	ctx := context.Background()
	r := newRecorder(t)
	id, err := r.CreateSession(ctx, "replay", nil)
	if err != nil {
		t.Fatal(err)
	}

	r.Send(event.Completed{Source: uuid.New()})
	r.Send(event.Completed{Source: uuid.New(), Err: errors.New("late")})

	sess, err := r.Session(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Error.Valid {
		t.Errorf("error = %q, want none", sess.Error.String)
	}
}

func TestRecorderWithoutSession(t *testing.T) {
	r := newRecorder(t)
	if err := r.Send(event.Batch{Y: []float64{1}, X: []float64{0}}); !errors.Is(err, ErrNoSession) {
		t.Errorf("Send() error = %v, want ErrNoSession", err)
	}
}

func TestRecorderCountRejectsUnknownTable(t *testing.T) {
	r := newRecorder(t)
	if _, err := r.Count(context.Background(), "sessions; DROP TABLE samples", 1); err == nil {
		t.Error("unknown table accepted")
	}
}

func BenchmarkRecorderBatch(b *testing.B) {
	r := NewRecorder(filepath.Join(b.TempDir(), "bench.db"))
	defer r.Close()
	if _, err := r.CreateSession(context.Background(), "bench", nil); err != nil {
		b.Fatal(err)
	}

	batch := event.Batch{Source: uuid.New(), X: make([]float64, 64), Y: make([]float64, 64)}
	for b.Loop() {
		if err := r.Send(batch); err != nil {
			b.Fatal(err)
		}
	}
}
