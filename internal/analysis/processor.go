// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"signalmon/internal/fft"
	"signalmon/pkg/bitint"
)

// Processor turns one analysis window into an output series. step is the
// time-domain distance between samples.
type Processor interface {
	Process(samples []float64, step float64) (x, y []float64, err error)
}

// Mode selects what a SpectrumProcessor derives from the transform.
type Mode int

const (
	Amplitude Mode = iota
	Phase
)

func (m Mode) String() string {
	if m == Phase {
		return "phase"
	}
	return "amplitude"
}

// ParseMode converts "amplitude" or "phase" (case-insensitive) to a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "amplitude", "":
		return Amplitude, nil
	case "phase":
		return Phase, nil
	default:
		return Amplitude, fmt.Errorf("unknown spectral mode %q", name)
	}
}

// SpectrumProcessor computes the one-sided amplitude or phase spectrum of a
// window of fftSize samples.
//
// Bin k maps to x = 1e6·k/(step·fftSize). Amplitude is |X_k|/(fftSize/2) with
// the DC bin halved again; phase is atan2(Im, Re) in degrees. Only the first
// fftSize/2 bins are returned.
type SpectrumProcessor struct {
	size   int
	mode   Mode
	window []float64
}

var _ Processor = (*SpectrumProcessor)(nil)

// NewSpectrumProcessor validates fftSize and precomputes the window.
func NewSpectrumProcessor(fftSize int, mode Mode, w WindowFunc) (*SpectrumProcessor, error) {
	if !bitint.IsPowerOfTwo(fftSize) || fftSize < 2 {
		return nil, fmt.Errorf("fft size must be a power of 2 >= 2, got %d", fftSize)
	}
	return &SpectrumProcessor{size: fftSize, mode: mode, window: w.Coefficients(fftSize)}, nil
}

// Size returns the transform length.
func (p *SpectrumProcessor) Size() int { return p.size }

// Process windows samples, zero-padding or truncating them to the transform
// length, and returns fftSize/2 points.
func (p *SpectrumProcessor) Process(samples []float64, step float64) (x, y []float64, err error) {
	if step <= 0 {
		return nil, nil, fmt.Errorf("sample step must be positive, got %g", step)
	}

	n := min(len(samples), p.size)
	windowed := make([]float64, n)
	for i := range n {
		windowed[i] = samples[i] * p.window[i]
	}
	out, err := fft.FFT(fft.Real(windowed, p.size))
	if err != nil {
		return nil, nil, err
	}

	half := p.size / 2
	x = make([]float64, half)
	y = make([]float64, half)
	for k := range half {
		x[k] = 1e6 * float64(k) / (step * float64(p.size))
		switch p.mode {
		case Phase:
			y[k] = cmplx.Phase(out[k]) * 180 / math.Pi
		default:
			y[k] = cmplx.Abs(out[k]) / float64(half)
		}
	}
	if p.mode == Amplitude {
		y[0] /= 2
	}
	return x, y, nil
}
