// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"signalmon/internal/event"
)

// MockTransport implements the transport interface for testing. It keeps a
// copy of every event it receives.
type MockTransport struct {
	mu     sync.Mutex
	events []event.Event
	closed bool
}

// Send stores the event for later inspection instead of transmitting. Batch
// slices are copied so the caller may reuse them.
func (m *MockTransport) Send(ev event.Event) error {
	if b, ok := ev.(event.Batch); ok {
		b.X = append([]float64(nil), b.X...)
		b.Y = append([]float64(nil), b.Y...)
		ev = b
	}
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Events returns the received events in order.
func (m *MockTransport) Events() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Event(nil), m.events...)
}

// Samples concatenates the y values of every batch received for channel.
func (m *MockTransport) Samples(channel int) []float64 {
	var ys []float64
	for _, ev := range m.Events() {
		if b, ok := ev.(event.Batch); ok && b.Channel == channel {
			ys = append(ys, b.Y...)
		}
	}
	return ys
}

// GenerateComplexWave returns a 440Hz fundamental with two harmonics, peak
// amplitude 0.9.
func GenerateComplexWave(size int, sampleRate float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = signal * 0.9
	}
	return buffer
}

// GenerateSineWave returns size samples of a unit sine at frequency.
func GenerateSineWave(size int, sampleRate, frequency float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = math.Sin(2 * math.Pi * frequency * t)
	}
	return buffer
}

// EncodeStream renders samples as an instrument stream: the start marker, a
// step directive of 1/sampleRate and one sample per line.
func EncodeStream(samples []float64, sampleRate float64) string {
	var sb strings.Builder
	sb.WriteString("%START\n%S ")
	sb.WriteString(strconv.FormatFloat(1/sampleRate, 'g', -1, 64))
	sb.WriteByte('\n')
	for _, v := range samples {
		sb.WriteString(strconv.FormatFloat(v, 'g', 9, 64))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FindPeakBin returns the index of the largest value in magnitudes[startBin:endBin+1].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
