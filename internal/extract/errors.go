// SPDX-License-Identifier: MPL-2.0

package extract

import (
	"fmt"

	"buildlog-cli/internal/cmdline"
)

// LineError is a fatal failure tied to one log line. It carries enough
// context to point the user at the offending input.
type LineError struct {
	Source  string
	Line    int
	Dialect cmdline.Dialect
	// Text is the raw line, empty for failures at end of log.
	Text string
	Err  error
}

// Error implements the error interface.
func (e *LineError) Error() string {
	loc := e.Source
	if loc == "" {
		loc = "<input>"
	}
	if e.Text == "" {
		return fmt.Sprintf("%s:%d: %v", loc, e.Line, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v (%s line %q)", loc, e.Line, e.Err, e.Dialect, e.Text)
}

// Unwrap returns the underlying error.
func (e *LineError) Unwrap() error { return e.Err }
