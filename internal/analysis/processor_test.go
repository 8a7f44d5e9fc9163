// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"
)

func TestSpectrumProcessorAmplitude(t *testing.T) {
	p, err := NewSpectrumProcessor(4, Amplitude, Rectangular)
	if err != nil {
		t.Fatal(err)
	}

	x, y, err := p.Process([]float64{0, 1, 0, -1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(x) != 2 || len(y) != 2 {
		t.Fatalf("got %d points, want 2", len(x))
	}
	if x[0] != 0 || x[1] != 250000 {
		t.Errorf("x = %v, want [0 250000]", x)
	}
	if math.Abs(y[0]) > tolerance || math.Abs(y[1]-1) > tolerance {
		t.Errorf("y = %v, want [0 1]", y)
	}
}

func TestSpectrumProcessorDCHalved(t *testing.T) {
	p, _ := NewSpectrumProcessor(8, Amplitude, Rectangular)
	samples := []float64{3, 3, 3, 3, 3, 3, 3, 3}

	_, y, err := p.Process(samples, 1)
	if err != nil {
		t.Fatal(err)
	}
	// |X_0| = 24, scaled by 1/(N/2) and halved again.
	if math.Abs(y[0]-3) > tolerance {
		t.Errorf("DC = %v, want 3", y[0])
	}
	for k := 1; k < len(y); k++ {
		if math.Abs(y[k]) > tolerance {
			t.Errorf("bin %d = %v, want 0", k, y[k])
		}
	}
}

func TestSpectrumProcessorPhase(t *testing.T) {
	p, _ := NewSpectrumProcessor(4, Phase, Rectangular)

	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"sine", []float64{0, 1, 0, -1}, -90},
		{"cosine", []float64{1, 0, -1, 0}, 0},
		{"negative sine", []float64{0, -1, 0, 1}, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, y, err := p.Process(tt.samples, 1)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(y[1]-tt.want) > 1e-6 {
				t.Errorf("phase of bin 1 = %v, want %v", y[1], tt.want)
			}
		})
	}
}

func TestSpectrumProcessorPadsShortInput(t *testing.T) {
	p, _ := NewSpectrumProcessor(4, Amplitude, Rectangular)
	_, y, err := p.Process([]float64{1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(y[0]-0.25) > tolerance || math.Abs(y[1]-0.5) > tolerance {
		t.Errorf("y = %v, want [0.25 0.5]", y)
	}
}

func TestSpectrumProcessorTruncatesLongInput(t *testing.T) {
	p, _ := NewSpectrumProcessor(4, Amplitude, Rectangular)
	_, y, err := p.Process([]float64{0, 1, 0, -1, 5, 5, 5, 5}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(y[0]) > tolerance || math.Abs(y[1]-1) > tolerance {
		t.Errorf("y = %v, want [0 1]", y)
	}
}

func TestSpectrumProcessorValidation(t *testing.T) {
	for _, n := range []int{0, 1, 3, 6, 1000} {
		if _, err := NewSpectrumProcessor(n, Amplitude, Rectangular); err == nil {
			t.Errorf("NewSpectrumProcessor(%d) succeeded", n)
		}
	}

	p, _ := NewSpectrumProcessor(4, Amplitude, Rectangular)
	if _, _, err := p.Process([]float64{1, 2, 3, 4}, 0); err == nil {
		t.Error("Process with zero step succeeded")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"amplitude", Amplitude, false},
		{"", Amplitude, false},
		{"PHASE", Phase, false},
		{"power", Amplitude, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestParseFill(t *testing.T) {
	if f, ok := ParseFill("pad"); !ok || f != FillPad {
		t.Errorf("ParseFill(pad) = %v, %v", f, ok)
	}
	if f, ok := ParseFill(""); !ok || f != FillWait {
		t.Errorf("ParseFill(\"\") = %v, %v", f, ok)
	}
	if _, ok := ParseFill("stretch"); ok {
		t.Error("ParseFill(stretch) accepted")
	}
}

func BenchmarkSpectrumProcessor(b *testing.B) {
	p, _ := NewSpectrumProcessor(1024, Amplitude, Hann)
	samples := make([]float64, 1024)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 50 * float64(i) / 1024)
	}
	for b.Loop() {
		if _, _, err := p.Process(samples, 1e-3); err != nil {
			b.Fatal(err)
		}
	}
}
