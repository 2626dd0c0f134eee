// SPDX-License-Identifier: MPL-2.0

package cmdline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSyntax is the sentinel wrapped by FormatError.
var ErrInvalidSyntax = errors.New("invalid command-line syntax")

// FormatError reports a character that matches no lexical category, such as
// an unterminated quote or a dangling escape. A malformed command line cannot
// be partially interpreted, so callers treat it as fatal.
type FormatError struct {
	Input   string
	Pos     int
	Char    string
	Dialect Dialect
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: unexpected %q at offset %d in %s command line %q",
		ErrInvalidSyntax, e.Char, e.Pos, e.Dialect, e.Input)
}

// Unwrap returns ErrInvalidSyntax for errors.Is() compatibility.
func (e *FormatError) Unwrap() error { return ErrInvalidSyntax }

// Arg is one reassembled argument. Operators are kept as standalone
// arguments and flagged so later stages can tell `">"` from `>`.
type Arg struct {
	Value    string
	Operator bool
	// Pos is the byte offset of the first unit of the argument.
	Pos int
}

// Tokenize lexes line and fails on the first invalid unit.
func Tokenize(line string, d Dialect) ([]Unit, error) {
	units := Lex(line, d)
	if err := Check(units); err != nil {
		return nil, withInput(err, line, d)
	}
	return units, nil
}

// Split tokenizes line into a flat argument list. Operators come back as
// standalone arguments.
func Split(line string, d Dialect) ([]string, error) {
	args, err := SplitUnits(Lex(line, d))
	if err != nil {
		return nil, withInput(err, line, d)
	}
	return args, nil
}

// SplitUnits reassembles lexical units into argument values.
func SplitUnits(units []Unit) ([]string, error) {
	args, err := Args(units)
	if err != nil {
		return nil, err
	}
	if args == nil {
		return nil, nil
	}
	values := make([]string, len(args))
	for i, a := range args {
		values[i] = a.Value
	}
	return values, nil
}

// Args reassembles lexical units into arguments. Words, escapes and quoted
// strings extend the current argument; whitespace and operators close it. A
// quoted unit opens an argument even when it is empty, so `""` yields an
// empty argument.
func Args(units []Unit) ([]Arg, error) {
	var (
		args []Arg
		acc  strings.Builder
		open bool
		pos  int
	)
	flush := func() {
		if open {
			args = append(args, Arg{Value: acc.String(), Pos: pos})
			acc.Reset()
			open = false
		}
	}
	for _, u := range units {
		switch u.Kind {
		case KindWord, KindEscape, KindQuoted:
			if !open {
				pos = u.Pos
			}
			acc.WriteString(u.Value)
			open = true
		case KindSpace:
			flush()
		case KindOperator:
			flush()
			args = append(args, Arg{Value: u.Text, Operator: true, Pos: u.Pos})
		default:
			return nil, &FormatError{Pos: u.Pos, Char: u.Text}
		}
	}
	flush()
	return args, nil
}

// Check returns a FormatError for the first invalid unit, if any.
func Check(units []Unit) error {
	for _, u := range units {
		if u.Kind == KindInvalid {
			return &FormatError{Pos: u.Pos, Char: u.Text}
		}
	}
	return nil
}

func withInput(err error, line string, d Dialect) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		fe.Input = line
		fe.Dialect = d
	}
	return err
}
