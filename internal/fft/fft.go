// SPDX-License-Identifier: MIT
/*
Package fft implements the recursive radix-2 Cooley-Tukey transform used by
the spectral analyzer.

Both directions split the input into even and odd indexed halves, transform
each half and combine them with the twiddle factors exp(∓2πik/n). Lengths must
be powers of two; callers zero-pad to the analysis size. The inverse is scaled
by 1/n so that IFFT(FFT(x)) reproduces x.
*/
package fft

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strconv"
	"strings"

	"signalmon/pkg/bitint"
)

// ErrLength is returned for inputs whose length is not a power of two.
var ErrLength = errors.New("fft: length must be a power of two")

// FFT returns the forward transform of x. x is not modified. An empty input
// yields an empty result.
func FFT(x []complex128) ([]complex128, error) {
	if err := checkLength(len(x)); err != nil {
		return nil, err
	}
	return transform(x, -1), nil
}

// IFFT returns the inverse transform of x, normalized by 1/len(x).
func IFFT(x []complex128) ([]complex128, error) {
	if err := checkLength(len(x)); err != nil {
		return nil, err
	}
	out := transform(x, 1)
	scale := complex(1/float64(max(len(out), 1)), 0)
	for i := range out {
		out[i] *= scale
	}
	return out, nil
}

// Real lifts real samples to complex values, zero-padded to size when size
// exceeds len(x).
func Real(x []float64, size int) []complex128 {
	out := make([]complex128, max(size, len(x)))
	for i, v := range x {
		out[i] = complex(v, 0)
	}
	return out
}

func checkLength(n int) error {
	if n != 0 && !bitint.IsPowerOfTwo(n) {
		return fmt.Errorf("%w, got %d", ErrLength, n)
	}
	return nil
}

// transform computes the unscaled DFT with exponent sign sign (-1 forward,
// +1 inverse).
func transform(x []complex128, sign float64) []complex128 {
	n := len(x)
	if n <= 1 {
		return append([]complex128(nil), x...)
	}

	half := n / 2
	even := make([]complex128, half)
	odd := make([]complex128, half)
	for i := range half {
		even[i] = x[2*i]
		odd[i] = x[2*i+1]
	}
	even = transform(even, sign)
	odd = transform(odd, sign)

	out := make([]complex128, n)
	for k := range half {
		t := cmplx.Rect(1, sign*2*math.Pi*float64(k)/float64(n)) * odd[k]
		out[k] = even[k] + t
		out[k+half] = even[k] - t
	}
	return out
}

// epsilon below which a component prints as zero.
const epsilon = 2.220446049250313e-16

// Pretty formats a sequence as "[ a b c ]" using PrettyComplex for each value.
func Pretty(x []complex128) string {
	var sb strings.Builder
	sb.WriteString("[ ")
	for _, v := range x {
		sb.WriteString(PrettyComplex(v))
		sb.WriteByte(' ')
	}
	sb.WriteByte(']')
	return sb.String()
}

// PrettyComplex formats v compactly: "0", "1.5", "2j" or "1.5-2j". Components
// are printed with at most six decimals and negligible ones are dropped.
func PrettyComplex(v complex128) string {
	re, im := trim(real(v)), trim(imag(v))
	switch {
	case re == "0" && im == "0":
		return "0"
	case re == "0":
		return im + "j"
	case im == "0":
		return re
	case strings.HasPrefix(im, "-"):
		return re + im + "j"
	default:
		return re + "+" + im + "j"
	}
}

func trim(f float64) string {
	if math.Abs(f) <= epsilon {
		return "0"
	}
	s := strconv.FormatFloat(f, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
