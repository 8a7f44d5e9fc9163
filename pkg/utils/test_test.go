// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"os"
	"strings"
	"testing"

	"signalmon/internal/event"
	"signalmon/internal/stream"
)

const (
	testSize       = 1024
	testSampleRate = 44100
	testFrequency  = 440.0 // A4 note
)

var testMagnitudes []float64

func TestMain(m *testing.M) {
	testMagnitudes = make([]float64, testSize)

	// A "hill" with its peak at testSize/4.
	for i := range testMagnitudes {
		testMagnitudes[i] = math.Exp(-0.01 * math.Pow(float64(i-testSize/4), 2))
	}

	os.Exit(m.Run())
}

func TestMockTransport(t *testing.T) {
	mt := &MockTransport{}
	data := []float64{0.1, 0.2, 0.3}

	mt.Send(event.Batch{Channel: 0, X: []float64{0, 1, 2}, Y: data})
	mt.Send(event.Completed{})
	mt.Send(event.Batch{Channel: 1, X: []float64{0}, Y: []float64{9}})
	mt.Send(event.Batch{Channel: 0, X: []float64{3}, Y: []float64{0.4}})

	data[0] = 999.999
	got := mt.Samples(0)
	want := []float64{0.1, 0.2, 0.3, 0.4}
	if len(got) != len(want) {
		t.Fatalf("Samples(0) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Samples(0)[%d] = %v, want %v (stored reference instead of copy?)", i, got[i], want[i])
		}
	}
	if n := len(mt.Events()); n != 4 {
		t.Errorf("Events() = %d, want 4", n)
	}

	if mt.Closed() {
		t.Error("closed before Close")
	}
	mt.Close()
	if !mt.Closed() {
		t.Error("Close not recorded")
	}
}

func TestGenerateComplexWave(t *testing.T) {
	wave := GenerateComplexWave(testSize, testSampleRate)
	if len(wave) != testSize {
		t.Fatalf("size = %d, want %d", len(wave), testSize)
	}
	for i, v := range wave {
		if math.Abs(v) > 0.9 {
			t.Fatalf("sample %d = %v exceeds 0.9", i, v)
		}
	}
}

func TestGenerateSineWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
		frequency  float64
	}{
		{"Standard A4", testSize, testSampleRate, testFrequency},
		{"Low Frequency", testSize, testSampleRate, 100},
		{"High Frequency", testSize, testSampleRate, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateSineWave(tt.size, tt.sampleRate, tt.frequency)
			if len(result) != tt.size {
				t.Fatalf("size = %d, want %d", len(result), tt.size)
			}

			crossCount := 0
			for i := 1; i < tt.size; i++ {
				if (result[i-1] < 0) != (result[i] < 0) {
					crossCount++
				}
			}

			// Two crossings per cycle, 20% margin for phase alignment.
			expected := 2 * float64(tt.size) * tt.frequency / tt.sampleRate
			if math.Abs(float64(crossCount)-expected) > 0.2*expected+1 {
				t.Errorf("zero crossings = %d, expected approximately %.1f", crossCount, expected)
			}
		})
	}
}

func TestEncodeStreamTokenizes(t *testing.T) {
	samples := []float64{0.5, -1.25, 3e-7}
	encoded := EncodeStream(samples, 1000)
	if !strings.HasPrefix(encoded, "%START\n%S 0.001\n") {
		t.Errorf("header = %q", encoded)
	}

	tz := stream.NewTokenizer()
	var nums []float64
	var directives []string
	tz.Drain([]byte(encoded), func(tok stream.Token) {
		switch tok.Kind {
		case stream.Number:
			nums = append(nums, tok.Value)
		case stream.Directive:
			directives = append(directives, tok.Text)
		default:
			t.Errorf("unexpected token %v", tok)
		}
	})
	if len(directives) != 2 || directives[1] != "%S 0.001" {
		t.Errorf("directives = %q", directives)
	}
	if len(nums) != len(samples) {
		t.Fatalf("numbers = %v, want %v", nums, samples)
	}
	for i := range samples {
		if nums[i] != samples[i] {
			t.Errorf("number %d = %v, want %v", i, nums[i], samples[i])
		}
	}
}

func TestFindPeakBin(t *testing.T) {
	tests := []struct {
		name     string
		mags     []float64
		start    int
		end      int
		expected int
	}{
		{"Full Range", testMagnitudes, 0, testSize - 1, testSize / 4},
		{"Partial Range Start", testMagnitudes, testSize / 8, testSize - 1, testSize / 4},
		{"Partial Range End", testMagnitudes, 0, testSize / 3, testSize / 4},
		{"Negative Start", testMagnitudes, -10, testSize - 1, testSize / 4},
		{"Out of Range End", testMagnitudes, 0, testSize * 2, testSize / 4},
		{"Empty Slice", []float64{}, 0, 10, 0},
		{"Single Value", []float64{1.0}, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := FindPeakBin(tt.mags, tt.start, tt.end); result != tt.expected {
				t.Errorf("FindPeakBin() = %d, want %d", result, tt.expected)
			}
		})
	}

	allocs := testing.AllocsPerRun(100, func() {
		FindPeakBin(testMagnitudes, 0, len(testMagnitudes)-1)
	})
	if allocs > 0 {
		t.Errorf("FindPeakBin allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkEncodeStream(b *testing.B) {
	wave := GenerateComplexWave(testSize, testSampleRate)
	b.ReportAllocs()
	for b.Loop() {
		EncodeStream(wave, testSampleRate)
	}
}

func BenchmarkFindPeakBin(b *testing.B) {
	benchmarks := []struct {
		name string
		size int
	}{
		{"Small", 64},
		{"Standard", 1024},
		{"Large", 8192},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			mags := make([]float64, bm.size)
			peakPos := bm.size / 2
			for i := range mags {
				mags[i] = math.Exp(-0.01 * math.Pow(float64(i-peakPos), 2))
			}

			b.ReportAllocs()
			for b.Loop() {
				FindPeakBin(mags, 0, bm.size-1)
			}
		})
	}
}
