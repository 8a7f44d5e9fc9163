// SPDX-License-Identifier: MIT
/*
Package audio renders one channel of the instrument stream as a mono WAV file
so it can be listened to or opened in an audio editor.

Samples are divided by the configured full scale, clipped to [-1, 1] and
quantized to the file's bit depth. The x values are ignored; the file plays at
a fixed sample rate.
*/
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"signalmon/internal/config"
	"signalmon/internal/event"
	"signalmon/internal/log"
	"signalmon/internal/transport"
)

const wavFormatPCM = 1

// ErrNotRecording is returned by Send after Close.
var ErrNotRecording = errors.New("wav recorder is not recording")

// Options configures a Recorder.
type Options struct {
	Path       string
	Channel    int
	SampleRate int
	BitDepth   int     // 16 or 24
	FullScale  float64 // magnitude written as full scale
	Gate       float64 // fraction of full scale below which samples are muted
}

// OptionsFromConfig maps the recording section to Options.
func OptionsFromConfig(cfg config.RecordingConfig) Options {
	return Options{
		Path:       cfg.WAVPath,
		Channel:    cfg.WAVChannel,
		SampleRate: cfg.WAVSampleRate,
		BitDepth:   cfg.WAVBitDepth,
		FullScale:  cfg.WAVFullScale,
		Gate:       cfg.WAVGate,
	}
}

// Recorder is a transport sink writing one channel's batches to a WAV file.
type Recorder struct {
	opts Options
	log  *log.Logger

	mu         sync.Mutex
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer
	maxValue   float64
	gate       float64
	frames     uint64
}

// NewRecorder creates the file and starts recording.
func NewRecorder(opts Options) (*Recorder, error) {
	if opts.BitDepth != 16 && opts.BitDepth != 24 {
		return nil, fmt.Errorf("wav: bit depth must be 16 or 24, got %d", opts.BitDepth)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("wav: sample rate must be positive, got %d", opts.SampleRate)
	}
	if opts.FullScale <= 0 {
		return nil, fmt.Errorf("wav: full scale must be positive, got %g", opts.FullScale)
	}

	file, err := os.Create(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}

	r := &Recorder{
		opts:       opts,
		log:        log.New("wav"),
		outputFile: file,
		wavEncoder: wav.NewEncoder(file, opts.SampleRate, opts.BitDepth, 1, wavFormatPCM),
		sampleBuf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: opts.SampleRate},
			SourceBitDepth: opts.BitDepth,
		},
		maxValue: float64(int(1)<<(opts.BitDepth-1) - 1),
	}
	r.SetGateThreshold(opts.Gate)
	r.log.Infof("recording channel %d to %s (%d Hz, %d-bit)", opts.Channel, opts.Path, opts.SampleRate, opts.BitDepth)
	return r, nil
}

// SetGateThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (r *Recorder) SetGateThreshold(threshold float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = math.Min(math.Max(threshold, 0), 1)
}

// GetGateThreshold returns the current noise gate threshold.
func (r *Recorder) GetGateThreshold() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gate
}

// Send writes the samples of a Batch on the recorded channel.
func (r *Recorder) Send(ev event.Event) error {
	b, ok := ev.(event.Batch)
	if !ok || b.Channel != r.opts.Channel || b.Len() == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return ErrNotRecording
	}

	r.sampleBuf.Data = r.sampleBuf.Data[:0]
	for _, y := range b.Y {
		r.sampleBuf.Data = append(r.sampleBuf.Data, r.quantize(y))
	}
	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("wav: write: %w", err)
	}
	r.frames += uint64(len(b.Y))
	return nil
}

func (r *Recorder) quantize(y float64) int {
	v := y / r.opts.FullScale
	if math.IsNaN(v) || math.Abs(v) < r.gate {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	return int(math.Round(v * r.maxValue))
}

// Frames returns how many samples were written.
func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return nil
	}

	err := r.wavEncoder.Close()
	r.wavEncoder = nil
	if cErr := r.outputFile.Close(); cErr != nil && err == nil {
		err = cErr
	}
	r.outputFile = nil

	length := time.Duration(float64(r.frames) / float64(r.opts.SampleRate) * float64(time.Second))
	r.log.Infof("wrote %s samples (%s) to %s", humanize.Comma(int64(r.frames)), length.Round(time.Millisecond), r.opts.Path)
	if err != nil {
		return fmt.Errorf("wav: close: %w", err)
	}
	return nil
}

var _ transport.Transport = (*Recorder)(nil)
