// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"signalmon/internal/config"
	"signalmon/internal/storage"
	"signalmon/pkg/utils"
)

func TestMonitorReplay(t *testing.T) {
	dir := t.TempDir()
	capture := filepath.Join(dir, "capture.txt")
	stream := "boot noise\n" + utils.EncodeStream(utils.GenerateSineWave(64, 1000, 125), 1000) +
		"%SUBPLOT 1\n7 8 9\n"
	if err := os.WriteFile(capture, []byte(stream), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Stream.EmitInterval = 5 * time.Millisecond
	cfg.Spectrum.Enabled = true
	cfg.Spectrum.FFTSize = 64
	cfg.Recording.SQLiteEnabled = true
	cfg.Recording.SQLitePath = filepath.Join(dir, "session.db")
	cfg.Recording.WAVEnabled = true
	cfg.Recording.WAVPath = filepath.Join(dir, "channel.wav")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Monitor(ctx, cfg, capture); err != nil {
		t.Fatalf("Monitor() error = %v", err)
	}

	rec := storage.NewRecorder(cfg.Recording.SQLitePath)
	defer rec.Close()

	// 64 + 3 samples from the replay and 32 spectral points.
	samples, err := rec.Count(ctx, "samples", 1)
	if err != nil {
		t.Fatal(err)
	}
	if samples != 64+3+32 {
		t.Errorf("samples = %d, want %d", samples, 64+3+32)
	}
	channels, _ := rec.Count(ctx, "channels", 1)
	if channels < 2 {
		t.Errorf("channels = %d, want at least 2", channels)
	}

	sess, err := rec.Session(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !sess.EndTime.Valid || sess.Error.Valid {
		t.Errorf("session = %+v, want closed without error", sess)
	}

	f, err := os.Open(cfg.Recording.WAVPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	// Only channel 0 of the serial source is rendered.
	if len(buf.Data) != 64 {
		t.Errorf("wav frames = %d, want 64", len(buf.Data))
	}
}

func TestMonitorNoPort(t *testing.T) {
	cfg := config.Default()
	if err := Monitor(context.Background(), cfg, ""); !errors.Is(err, ErrNoPort) {
		t.Errorf("Monitor() error = %v, want ErrNoPort", err)
	}
}

func TestMonitorCancel(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Monitor(ctx, config.Default(), empty); err != nil {
		t.Errorf("Monitor() error = %v", err)
	}
}
