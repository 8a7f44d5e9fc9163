// SPDX-License-Identifier: MIT
/*
Package stream decodes the ASCII instrument stream into tokens.

The stream interleaves decimal samples ("1.5 -2e-3") with '%' prefixed control
directives ("%SUBPLOT 1"), separated by gap characters (space, tab, newline,
carriage return, NUL). Reads from the link arrive in arbitrary fragments, so
the Tokenizer keeps the unconsumed tail of its buffer between calls and
produces the same token sequence however the input is chunked.

Directive termination: the directive word ends at a gap. When the word needs a
payload (see directive.Arity) the next space or tab separated field belongs to
the directive as well. A line terminator, or a field that starts with '%',
ends the directive early and the interpreter reports the missing payload.
*/
package stream

import (
	"bytes"
	"fmt"
	"strconv"

	"signalmon/internal/directive"
)

// DefaultMaxTokenLen bounds the length of one token. A longer token, complete
// or still partial, is reported as a single Error token and the rest of it up
// to the next gap is dropped. For numbers the outcome does not depend on how
// the input was chunked. A directive whose word itself is cut by the bound
// can leave its payload behind as a separate token.
const DefaultMaxTokenLen = 4096

type state int

const (
	stateBegin state = iota
	stateGap
	stateNumberPrefix
	stateNumber
	stateNumberInterfix
)

// Tokenizer converts a fragmented byte stream into tokens, one per call.
// It is not safe for concurrent use; each producer owns its own.
type Tokenizer struct {
	buf         []byte
	maxTokenLen int

	// discarding is set after a malformed token was reported and its tail
	// has not yet been terminated by a gap.
	discarding bool
}

// NewTokenizer returns a Tokenizer with an empty carry-over buffer.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{maxTokenLen: DefaultMaxTokenLen}
}

// SetMaxTokenLen changes the token length bound. Non-positive values restore
// DefaultMaxTokenLen.
func (t *Tokenizer) SetMaxTokenLen(n int) {
	if n <= 0 {
		n = DefaultMaxTokenLen
	}
	t.maxTokenLen = n
}

// Feed appends p to the carry-over buffer and decodes the next token. Call
// Next until it returns Incomplete to obtain the remaining tokens.
func (t *Tokenizer) Feed(p []byte) Token {
	t.buf = append(t.buf, p...)
	return t.Next()
}

// Next decodes the next token from the carry-over buffer without adding input.
func (t *Tokenizer) Next() Token {
	if t.discarding {
		i := 0
		for i < len(t.buf) && !isGap(t.buf[i]) {
			i++
		}
		t.discarding = i == len(t.buf)
		t.buf = append(t.buf[:0], t.buf[min(i+1, len(t.buf)):]...)
		if t.discarding {
			return Token{Kind: Incomplete}
		}
	}

	tok, consumed, discard := scan(t.buf)
	t.buf = append(t.buf[:0], t.buf[consumed:]...)
	t.discarding = discard

	switch {
	case tok.Kind == Incomplete && len(t.buf) > t.maxTokenLen:
		// Only a directive can hold blanks; a blank run is one separator.
		t.buf = collapseBlanks(t.buf)
		raw := bytes.TrimRight(t.buf, " \t")
		if len(raw) <= t.maxTokenLen {
			return tok
		}
		tok = t.overflow(string(raw))
		t.buf = t.buf[:0]
		t.discarding = true
	case tok.Kind != Incomplete && len(tok.Text) > t.maxTokenLen:
		tok = t.overflow(tok.Text)
	}
	return tok
}

// collapseBlanks replaces every run of spaces and tabs in b by one space, in
// place.
func collapseBlanks(b []byte) []byte {
	out := b[:0]
	blank := false
	for _, c := range b {
		if c == ' ' || c == '\t' {
			if blank {
				continue
			}
			blank, c = true, ' '
		} else {
			blank = false
		}
		out = append(out, c)
	}
	return out
}

// overflow reports raw, which is longer than the token bound.
func (t *Tokenizer) overflow(raw string) Token {
	return errorToken(raw[:t.maxTokenLen], raw[t.maxTokenLen], t.maxTokenLen,
		fmt.Sprintf("token exceeds %d bytes", t.maxTokenLen))
}

// Drain feeds p and calls fn for every complete token it yields.
func (t *Tokenizer) Drain(p []byte, fn func(Token)) {
	for tok := t.Feed(p); tok.Kind != Incomplete; tok = t.Next() {
		fn(tok)
	}
}

// Finish terminates whatever partial token is pending, as if a newline had
// arrived, and hands the resulting tokens to fn.
func (t *Tokenizer) Finish(fn func(Token)) {
	if len(t.buf) == 0 {
		return
	}
	t.Drain([]byte{'\n'}, fn)
}

// Pending returns a copy of the carry-over buffer.
func (t *Tokenizer) Pending() []byte {
	return append([]byte(nil), t.buf...)
}

// Reset discards the carry-over buffer.
func (t *Tokenizer) Reset() {
	t.buf = t.buf[:0]
	t.discarding = false
}

func isGap(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == 0
}

// isLineEnd reports gaps that also terminate a directive's payload list.
func isLineEnd(c byte) bool {
	return c == '\n' || c == '\r' || c == 0
}

func isDigit(c byte) bool    { return c >= '0' && c <= '9' }
func isPrefix(c byte) bool   { return c == '+' || c == '-' }
func isInterfix(c byte) bool { return c == '.' || c == 'e' || c == 'E' }

// scan decodes one token from the start of buf and reports how many bytes it
// used. Leading gaps are always consumed; an Incomplete result leaves the
// partial token in place. discard is true when a malformed token was cut short
// and the rest of it, up to the next gap, must be dropped.
func scan(buf []byte) (tok Token, consumed int, discard bool) {
	st := stateBegin
	start := 0

	for i := 0; i < len(buf); i++ {
		c := buf[i]
		switch st {
		case stateBegin, stateGap:
			switch {
			case isGap(c):
				st = stateGap
				continue
			case isDigit(c):
				st = stateNumber
			case isPrefix(c):
				st = stateNumberPrefix
			case c == '%':
				return scanCommand(buf, i)
			default:
				return skipBad(buf, i, i, "invalid character at token start")
			}
			start = i

		case stateNumberPrefix:
			if !isDigit(c) {
				return skipBad(buf, start, i, "sign must be followed by a digit")
			}
			st = stateNumber

		case stateNumber:
			switch {
			case isDigit(c):
			case isInterfix(c):
				st = stateNumberInterfix
			case isGap(c):
				return finishNumber(buf[start:i]), i + 1, false
			default:
				return skipBad(buf, start, i, "invalid character in number")
			}

		case stateNumberInterfix:
			switch {
			case isDigit(c):
				st = stateNumber
			case isPrefix(c):
				st = stateNumberPrefix
			default:
				return skipBad(buf, start, i, "interfix must be followed by a digit or sign")
			}
		}
	}

	if st == stateBegin || st == stateGap {
		return Token{Kind: Incomplete}, len(buf), false
	}
	return Token{Kind: Incomplete}, start, false
}

func finishNumber(raw []byte) Token {
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return errorToken(string(raw), 0, 0, "malformed number")
	}
	return Token{Kind: Number, Value: v, Text: string(raw)}
}

// scanCommand decodes a directive starting at buf[start] == '%'.
func scanCommand(buf []byte, start int) (Token, int, bool) {
	i := start + 1
	for ; i < len(buf) && !isGap(buf[i]); i++ {
		if buf[i] == '%' {
			return skipBad(buf, start, i, "unexpected '%' inside directive")
		}
	}
	if i == len(buf) {
		return Token{Kind: Incomplete}, start, false
	}
	if i == start+1 {
		return errorToken("%", 0, 0, "empty directive"), i + 1, false
	}

	end := i
	for need := directive.Arity(string(buf[start:i])); need > 0; need-- {
		if isLineEnd(buf[i]) {
			break
		}
		j := i
		for j < len(buf) && (buf[j] == ' ' || buf[j] == '\t') {
			j++
		}
		if j == len(buf) {
			return Token{Kind: Incomplete}, start, false
		}
		if isLineEnd(buf[j]) {
			i = j
			break
		}
		if buf[j] == '%' {
			// The payload is missing and the next directive has begun.
			return directiveToken(buf[start:end]), j, false
		}
		k := j
		for k < len(buf) && !isGap(buf[k]) {
			k++
		}
		if k == len(buf) {
			return Token{Kind: Incomplete}, start, false
		}
		end, i = k, k
	}
	return directiveToken(buf[start:end]), i + 1, false
}

// directiveToken separates the word and its payload fields by single spaces.
func directiveToken(raw []byte) Token {
	return Token{Kind: Directive, Text: string(collapseBlanks(append([]byte(nil), raw...)))}
}

// skipBad reports the malformed token that starts at start and contains the
// offending byte at bad. The error carries the token only up to the offending
// byte so the report does not depend on how the input was chunked; anything
// after it up to the next gap is discarded.
func skipBad(buf []byte, start, bad int, reason string) (Token, int, bool) {
	return errorToken(string(buf[start:bad+1]), buf[bad], bad-start, reason), bad + 1, !isGap(buf[bad])
}

func errorToken(raw string, c byte, offset int, reason string) Token {
	return Token{
		Kind: Error,
		Text: raw,
		Err:  &TokenizeError{Raw: raw, Char: c, Offset: offset, Reason: reason},
	}
}
