// SPDX-License-Identifier: MPL-2.0

// Package invocation defines the canonical records produced by the log
// extraction pipeline. An Invocation is one normalized command execution with
// its resolved working directory, argument tokens, parameter assignments and
// I/O redirections. Records are immutable once they leave the pipeline.
package invocation

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

const (
	// RedirWrite is a truncating output redirection (`>`).
	RedirWrite RedirOp = "write"
	// RedirAppend is an appending output redirection (`>>`).
	RedirAppend RedirOp = "append"
	// RedirRead is an input redirection (`<`).
	RedirRead RedirOp = "read"
	// RedirMerge duplicates one stream onto another (`2>&1`, `>&2`).
	RedirMerge RedirOp = "merge"
)

// ErrInvalidRedirOp is returned when a RedirOp value is not recognized.
var ErrInvalidRedirOp = errors.New("invalid redirection operator")

type (
	// RedirOp identifies the kind of a redirection clause.
	RedirOp string

	// InvalidRedirOpError is returned when a RedirOp value is not recognized.
	// It wraps ErrInvalidRedirOp for errors.Is() compatibility.
	InvalidRedirOpError struct {
		Value RedirOp
	}

	// Redirection is one I/O redirection clause removed from a command line.
	Redirection struct {
		// Source is the optional descriptor the clause applies to ("2" in `2>&1`).
		Source string `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty"`
		// Op is the redirection kind.
		Op RedirOp `json:"op" yaml:"op" toml:"op"`
		// Dest is the target path or descriptor ("1" in `2>&1`).
		Dest string `json:"dest,omitempty" yaml:"dest,omitempty" toml:"dest,omitempty"`
	}

	// Invocation is the canonical output unit of the pipeline.
	Invocation struct {
		// Args holds the argument tokens; Args[0] is the program.
		Args []string `json:"args" yaml:"args" toml:"args"`
		// Dir is the absolute, cleaned working directory of the command.
		Dir string `json:"dir" yaml:"dir" toml:"dir"`
		// Params holds leading NAME=VALUE assignments.
		Params map[string]string `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
		// Redirections are stored in left-to-right source order.
		Redirections []Redirection `json:"redirections,omitempty" yaml:"redirections,omitempty" toml:"redirections,omitempty"`
		// Line is the 1-based log line that completed the record.
		Line int `json:"line,omitempty" yaml:"line,omitempty" toml:"line,omitempty"`
	}

	// FileRecord is a file that only ever existed as a side effect in a log,
	// e.g. content written by `echo ... > file`.
	FileRecord struct {
		Path    string `json:"path" yaml:"path" toml:"path"`
		Content string `json:"content" yaml:"content" toml:"content"`
	}
)

// Error implements the error interface for InvalidRedirOpError.
func (e *InvalidRedirOpError) Error() string {
	return fmt.Sprintf("invalid redirection operator %q (valid: write, append, read, merge)", e.Value)
}

// Unwrap returns ErrInvalidRedirOp for errors.Is() compatibility.
func (e *InvalidRedirOpError) Unwrap() error { return ErrInvalidRedirOp }

// Validate returns nil if the RedirOp is one of the known kinds.
func (op RedirOp) Validate() error {
	switch op {
	case RedirWrite, RedirAppend, RedirRead, RedirMerge:
		return nil
	default:
		return &InvalidRedirOpError{Value: op}
	}
}

// String returns the string representation of the RedirOp.
func (op RedirOp) String() string { return string(op) }

// IsOutput reports whether the operator writes to its destination.
func (op RedirOp) IsOutput() bool {
	return op == RedirWrite || op == RedirAppend
}

// Symbol renders the redirection the way a POSIX shell would spell it.
func (r Redirection) Symbol() string {
	switch r.Op {
	case RedirWrite:
		return r.Source + ">"
	case RedirAppend:
		return r.Source + ">>"
	case RedirRead:
		return r.Source + "<"
	case RedirMerge:
		return r.Source + ">&"
	default:
		return r.Source + string(r.Op)
	}
}

// String renders the clause as it would appear on a command line.
func (r Redirection) String() string {
	return r.Symbol() + r.Dest
}

// Program returns Args[0], or "" for an empty record.
func (inv *Invocation) Program() string {
	if len(inv.Args) == 0 {
		return ""
	}
	return inv.Args[0]
}

// SortedParamNames returns the parameter names in lexical order.
func (inv *Invocation) SortedParamNames() []string {
	return slices.Sorted(maps.Keys(inv.Params))
}
