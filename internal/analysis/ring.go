// SPDX-License-Identifier: MIT
package analysis

// ring keeps the most recent samples up to its capacity, dropping the oldest.
type ring struct {
	buf   []float64
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) len() int   { return r.n }
func (r *ring) full() bool { return r.n == len(r.buf) }

// copyTo writes the samples oldest first into dst and returns how many.
func (r *ring) copyTo(dst []float64) int {
	n := min(r.n, len(dst))
	for i := range n {
		dst[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return n
}

func (r *ring) reset() {
	r.start, r.n = 0, 0
}
