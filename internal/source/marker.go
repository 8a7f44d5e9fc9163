// SPDX-License-Identifier: MIT
package source

import "bytes"

// markerHunter discards input until a start marker appears. A marker split
// across reads is still found because the last len(marker)-1 bytes are kept.
type markerHunter struct {
	marker []byte
	tail   []byte
}

func newMarkerHunter(marker string) *markerHunter {
	return &markerHunter{marker: []byte(marker)}
}

// scan returns the input from the marker onwards once it has been seen.
func (m *markerHunter) scan(p []byte) ([]byte, bool) {
	data := make([]byte, 0, len(m.tail)+len(p))
	data = append(append(data, m.tail...), p...)

	if i := bytes.Index(data, m.marker); i >= 0 {
		m.tail = m.tail[:0]
		return data[i:], true
	}

	keep := len(m.marker) - 1
	if len(data) > keep {
		data = data[len(data)-keep:]
	}
	m.tail = append(m.tail[:0], data...)
	return nil, false
}

func (m *markerHunter) reset() {
	m.tail = m.tail[:0]
}
