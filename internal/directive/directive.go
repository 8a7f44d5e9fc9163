// SPDX-License-Identifier: MIT
/*
Package directive maps the textual control directives embedded in an
instrument stream (for example "%SUBPLOT 2" or "%SETUNIT s;V") to typed
control words.

A directive is a '%' prefixed word optionally followed by one payload field.
Words are matched against a fixed table, the longest matching prefix wins so
that "%SUBPLOT" is not mistaken for the bare step marker "%S". A numeric
remainder glued to the word is treated as the payload ("%S0.5" == "%S 0.5").
*/
package directive

import (
	"fmt"
	"strconv"
	"strings"
)

// ControlWord enumerates the directives understood by the router.
type ControlWord int

const (
	UserDefined ControlWord = iota
	StreamStart
	StreamStop
	SelectChannel
	SetXStep
	SetXRange
	ClearData
	SetLogAxis
	SetName
	SetUnit
)

func (w ControlWord) String() string {
	switch w {
	case StreamStart:
		return "stream-start"
	case StreamStop:
		return "stream-stop"
	case SelectChannel:
		return "select-channel"
	case SetXStep:
		return "set-x-step"
	case SetXRange:
		return "set-x-range"
	case ClearData:
		return "clear-data"
	case SetLogAxis:
		return "set-log-axis"
	case SetName:
		return "set-name"
	case SetUnit:
		return "set-unit"
	default:
		return "user-defined"
	}
}

type payloadKind int

const (
	payloadNone payloadKind = iota
	payloadInt
	payloadReal
	payloadPositiveReal
	payloadPair
)

type entry struct {
	word    string
	control ControlWord
	payload payloadKind
}

// Sorted longest word first, lookup takes the first prefix match.
var table = []entry{
	{"%SETPLOTNAME", SetName, payloadPair},
	{"%SETRANGE", SetXRange, payloadReal},
	{"%SUBPLOT", SelectChannel, payloadInt},
	{"%SETUNIT", SetUnit, payloadPair},
	{"%SETLOG", SetLogAxis, payloadNone},
	{"%START", StreamStart, payloadNone},
	{"%CLEAR", ClearData, payloadNone},
	{"%STOP", StreamStop, payloadNone},
	{"%S", SetXStep, payloadPositiveReal},
}

// Command is an interpreted directive.
type Command struct {
	Word    ControlWord
	Payload []byte // raw payload field, nil when the directive takes none
	Text    string // the directive as it appeared on the wire
}

// DirectiveError reports a recognised directive whose payload is missing or
// malformed. It is never fatal: the directive is downgraded to UserDefined.
type DirectiveError struct {
	Text     string      // directive text
	Word     ControlWord // what the prefix matched
	Expected string      // description of the expected field
	Got      string      // offending field, empty when missing
}

func (e *DirectiveError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("directive %q (%s): missing %s", e.Text, e.Word, e.Expected)
	}
	return fmt.Sprintf("directive %q (%s): expected %s, got %q", e.Text, e.Word, e.Expected, e.Got)
}

// UnknownDirectiveError reports a directive that matched no table entry.
type UnknownDirectiveError struct {
	Text string
}

func (e *UnknownDirectiveError) Error() string {
	return fmt.Sprintf("unrecognized directive %q, forwarded as user-defined", e.Text)
}

// lookup finds the table entry for word. attached is a payload glued to the
// word, e.g. "2" for "%SUBPLOT2".
func lookup(word string) (e entry, attached string, ok bool) {
	for _, candidate := range table {
		if !strings.HasPrefix(word, candidate.word) {
			continue
		}
		rest := word[len(candidate.word):]
		if rest == "" || (candidate.payload != payloadNone && startsNumeric(rest)) {
			return candidate, rest, true
		}
	}
	return entry{}, "", false
}

func startsNumeric(s string) bool {
	switch c := s[0]; {
	case c >= '0' && c <= '9', c == '+', c == '-', c == '.':
		return true
	}
	return false
}

// Arity returns how many space separated payload fields must follow word for
// the directive to be complete. The tokenizer uses it to decide where a
// directive ends.
func Arity(word string) int {
	e, attached, ok := lookup(word)
	if !ok || e.payload == payloadNone || attached != "" {
		return 0
	}
	return 1
}

// Interpret maps directive text to a Command. Unrecognised or malformed
// directives come back as UserDefined together with a non-nil error
// describing the problem; callers forward the command and report the error as
// a diagnostic.
func Interpret(text string) (Command, error) {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{Word: UserDefined, Text: text}, &UnknownDirectiveError{Text: text}
	}

	e, attached, ok := lookup(fields[0])
	if !ok {
		return userDefined(text), &UnknownDirectiveError{Text: text}
	}

	var payload string
	switch {
	case attached != "":
		payload = attached
	case len(fields) > 1:
		payload = fields[1]
	}

	if e.payload == payloadNone {
		return Command{Word: e.control, Text: text}, nil
	}
	if err := validate(e, payload); err != nil {
		err.Text = text
		return userDefined(text), err
	}
	return Command{Word: e.control, Payload: []byte(payload), Text: text}, nil
}

func userDefined(text string) Command {
	return Command{Word: UserDefined, Payload: []byte(text), Text: text}
}

func validate(e entry, payload string) *DirectiveError {
	fail := func(expected string) *DirectiveError {
		return &DirectiveError{Word: e.control, Expected: expected, Got: payload}
	}

	switch e.payload {
	case payloadInt:
		n, err := strconv.Atoi(payload)
		if err != nil || n < 0 {
			return fail("non-negative channel index")
		}
	case payloadReal:
		if _, err := strconv.ParseFloat(payload, 64); err != nil {
			return fail("real number")
		}
	case payloadPositiveReal:
		v, err := strconv.ParseFloat(payload, 64)
		if err != nil || v <= 0 {
			return fail("positive real number")
		}
	case payloadPair:
		if _, _, ok := strings.Cut(payload, ";"); !ok {
			return fail("x;y pair")
		}
	}
	return nil
}

// Int returns the payload as a channel index.
func (c Command) Int() int {
	n, _ := strconv.Atoi(string(c.Payload))
	return n
}

// Float returns the payload as a real number.
func (c Command) Float() float64 {
	v, _ := strconv.ParseFloat(string(c.Payload), 64)
	return v
}

// Pair splits an "x;y" payload.
func (c Command) Pair() (x, y string) {
	x, y, _ = strings.Cut(string(c.Payload), ";")
	return x, y
}
