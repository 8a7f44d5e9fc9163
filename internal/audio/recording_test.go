// SPDX-License-Identifier: MIT
package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"signalmon/internal/config"
	"signalmon/internal/event"
)

func newTestRecorder(t *testing.T, opts Options) *Recorder {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "channel.wav")
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 8000
	}
	if opts.BitDepth == 0 {
		opts.BitDepth = 16
	}
	if opts.FullScale == 0 {
		opts.FullScale = 1
	}
	r, err := NewRecorder(opts)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	return r
}

func decode(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatalf("%s is not a valid wav file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer() error = %v", err)
	}
	return d, buf.Data
}

func TestRecorderWritesChannel(t *testing.T) {
	r := newTestRecorder(t, Options{Channel: 1, FullScale: 2})

	batches := []event.Event{
		event.Batch{Channel: 1, Y: []float64{0, 1, -1, 2}},
		event.Batch{Channel: 0, Y: []float64{0.5, 0.5}},
		event.Control{Channel: 1},
		event.Batch{Channel: 1, Y: []float64{-2, 4, -4}},
	}
	for _, ev := range batches {
		if err := r.Send(ev); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if r.Frames() != 7 {
		t.Errorf("Frames() = %d, want 7", r.Frames())
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	d, data := decode(t, r.opts.Path)
	if d.SampleRate != 8000 || d.BitDepth != 16 || d.NumChans != 1 {
		t.Errorf("format = %d Hz %d-bit %d ch", d.SampleRate, d.BitDepth, d.NumChans)
	}

	// Full scale 2: halves, clipped beyond ±2.
	want := []int{0, 16384, -16384, 32767, -32767, 32767, -32767}
	if len(data) != len(want) {
		t.Fatalf("samples = %v, want %v", data, want)
	}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, data[i], want[i])
		}
	}
}

func TestRecorder24Bit(t *testing.T) {
	r := newTestRecorder(t, Options{BitDepth: 24})
	r.Send(event.Batch{Y: []float64{1, -0.5}})
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	d, data := decode(t, r.opts.Path)
	if d.BitDepth != 24 {
		t.Errorf("bit depth = %d, want 24", d.BitDepth)
	}
	if len(data) != 2 || data[0] != 8388607 || data[1] != -4194304 {
		t.Errorf("samples = %v", data)
	}
}

func TestRecorderGate(t *testing.T) {
	r := newTestRecorder(t, Options{Gate: 0.25})
	r.Send(event.Batch{Y: []float64{0.1, -0.2, 0.5}})
	r.Close()

	_, data := decode(t, r.opts.Path)
	if len(data) != 3 || data[0] != 0 || data[1] != 0 || data[2] == 0 {
		t.Errorf("gated samples = %v, want two muted", data)
	}
}

func TestGateThresholdClamped(t *testing.T) {
	r := newTestRecorder(t, Options{})
	defer r.Close()

	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0.3, 0.3},
		{2, 1},
	}
	for _, tt := range tests {
		r.SetGateThreshold(tt.in)
		if got := r.GetGateThreshold(); got != tt.want {
			t.Errorf("SetGateThreshold(%v) -> %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRecorderErrors(t *testing.T) {
	tests := []struct {
		desc string
		opts Options
	}{
		{"bit depth", Options{Path: "x.wav", SampleRate: 8000, BitDepth: 12, FullScale: 1}},
		{"sample rate", Options{Path: "x.wav", BitDepth: 16, FullScale: 1}},
		{"full scale", Options{Path: "x.wav", SampleRate: 8000, BitDepth: 16}},
		{"invalid path", Options{Path: "/nonexistent/path/file.wav", SampleRate: 8000, BitDepth: 16, FullScale: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if _, err := NewRecorder(tt.opts); err == nil {
				t.Error("expected error but got none")
			}
		})
	}

	r := newTestRecorder(t, Options{})
	r.Close()
	if err := r.Send(event.Batch{Y: []float64{1}}); err != ErrNotRecording {
		t.Errorf("Send() after Close = %v, want ErrNotRecording", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Recording
	opts := OptionsFromConfig(cfg)
	if opts.SampleRate != 8000 || opts.BitDepth != 16 || opts.FullScale != 1 || opts.Path != "channel.wav" {
		t.Errorf("options = %+v", opts)
	}
}

func TestRecorderSendNoAllocs(t *testing.T) {
	r := newTestRecorder(t, Options{})
	defer r.Close()

	batch := event.Batch{Y: make([]float64, 256)}
	r.Send(batch)

	// The sample buffer is reused once it has grown; only the encoder
	// may allocate.
	allocs := testing.AllocsPerRun(100, func() {
		r.mu.Lock()
		r.sampleBuf.Data = r.sampleBuf.Data[:0]
		for _, y := range batch.Y {
			r.sampleBuf.Data = append(r.sampleBuf.Data, r.quantize(y))
		}
		r.mu.Unlock()
	})
	if allocs > 0 {
		t.Errorf("quantizing allocated: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkRecorderSend(b *testing.B) {
	r, err := NewRecorder(Options{
		Path: filepath.Join(b.TempDir(), "bench.wav"), SampleRate: 48000, BitDepth: 16, FullScale: 1,
	})
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()

	batch := event.Batch{Y: make([]float64, 512)}
	b.ReportAllocs()
	for b.Loop() {
		_ = r.Send(batch)
	}
}
