// SPDX-License-Identifier: MIT
package source

import "testing"

func TestMarkerHunter(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"single read", []string{"junk%START 1 2"}, "%START 1 2"},
		{"marker first", []string{"%START"}, "%START"},
		{"split marker", []string{"xx%ST", "ART 5"}, "%START 5"},
		{"split every byte", []string{"%", "S", "T", "A", "R", "T", " 7"}, "%START"},
		{"long noise before split", []string{"0123456789abcdef%S", "TART"}, "%START"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newMarkerHunter("%START")
			for i, chunk := range tt.chunks {
				rest, ok := h.scan([]byte(chunk))
				if !ok {
					continue
				}
				if string(rest) != tt.want {
					t.Errorf("chunk %d: rest = %q, want %q", i, rest, tt.want)
				}
				return
			}
			t.Error("marker not found")
		})
	}
}

func TestMarkerHunterKeepsOnlyTail(t *testing.T) {
	h := newMarkerHunter("%START")
	if _, ok := h.scan([]byte("a long run of bytes without the marker")); ok {
		t.Fatal("found marker in noise")
	}
	if len(h.tail) != 5 {
		t.Errorf("tail = %q, want last 5 bytes", h.tail)
	}
	h.reset()
	if len(h.tail) != 0 {
		t.Error("reset kept bytes")
	}
}
