// SPDX-License-Identifier: MIT
package stream

import (
	"fmt"
	"strconv"
)

// Kind identifies what a Token carries.
type Kind int

const (
	// Incomplete means the buffer ends inside a token; the partial bytes are
	// kept for the next Feed. It is not an error.
	Incomplete Kind = iota
	Number
	Directive
	Error
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case Directive:
		return "directive"
	case Error:
		return "error"
	default:
		return "incomplete"
	}
}

// Token is one decoded unit of the stream.
type Token struct {
	Kind  Kind
	Value float64        // valid for Number
	Text  string         // directive text for Directive, raw token otherwise
	Err   *TokenizeError // valid for Error
}

func (t Token) String() string {
	switch t.Kind {
	case Number:
		return strconv.FormatFloat(t.Value, 'g', -1, 64)
	case Directive:
		return t.Text
	case Error:
		return "error(" + t.Err.Error() + ")"
	default:
		return "incomplete"
	}
}

// TokenizeError describes a malformed numeric or command token. The offending
// token is discarded and scanning resumes after it.
type TokenizeError struct {
	Raw    string // the discarded token
	Char   byte   // offending character, 0 when the whole token failed to parse
	Offset int    // offset of Char within Raw
	Reason string
}

func (e *TokenizeError) Error() string {
	if e.Char != 0 {
		return fmt.Sprintf("%s: unexpected %q at offset %d in %q", e.Reason, e.Char, e.Offset, e.Raw)
	}
	return fmt.Sprintf("%s: %q", e.Reason, e.Raw)
}
