// SPDX-License-Identifier: MPL-2.0

package diag

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
)

const (
	// SeverityWarning indicates a recoverable inconsistency.
	SeverityWarning Severity = "warning"
	// SeverityError indicates an unresolved reference or broken state that
	// was skipped so parsing could continue.
	SeverityError Severity = "error"
)

// Diagnostic codes reported by the pipeline stages.
const (
	CodeDirStackUnderflow    = "dirstack_underflow"
	CodeRespFileUnresolved   = "respfile_unresolved"
	CodeRespFileDepth        = "respfile_depth"
	CodeMakeDirMismatch      = "make_dir_mismatch"
	CodeMSBuildDuplicateNode = "msbuild_duplicate_node"
	CodeMSBuildUnknownNode   = "msbuild_unknown_node"
	CodeMSBuildBadProject    = "msbuild_bad_project"
	CodeStraceOrphanResume   = "strace_orphan_resume"
	CodeStraceTruncated      = "strace_truncated"
	CodeStraceArgvOmitted    = "strace_argv_omitted"
)

type (
	// Severity represents diagnostic severity.
	Severity string

	// Diagnostic is a structured report of a recovered error. It is returned
	// to callers (rather than written to stderr) so the CLI decides how to
	// render it.
	Diagnostic struct {
		// Severity is the diagnostic level (warning or error).
		Severity Severity
		// Code is a machine-readable identifier (e.g., "respfile_unresolved").
		Code string
		// Message is the human-readable description.
		Message string
		// Source is the log file name (optional).
		Source string
		// Line is the 1-based log line number, 0 when unknown.
		Line int
		// Dialect is the command-line dialect in effect (optional).
		Dialect string
		// Cause is the underlying error (optional, for programmatic inspection).
		Cause error
	}

	// Reporter receives diagnostics from pipeline stages.
	Reporter interface {
		Report(d Diagnostic)
	}

	// ReporterFunc adapts a function to the Reporter interface.
	ReporterFunc func(d Diagnostic)

	// Collector accumulates diagnostics and logs each one as it arrives.
	// It is safe for concurrent use by several parsers.
	Collector struct {
		mu     sync.Mutex
		logger *log.Logger
		diags  []Diagnostic
	}
)

// Report calls f(d).
func (f ReporterFunc) Report(d Diagnostic) { f(d) }

// Discard returns a Reporter that drops everything.
func Discard() Reporter { return ReporterFunc(func(Diagnostic) {}) }

// OrDiscard returns r, or a discarding Reporter when r is nil.
func OrDiscard(r Reporter) Reporter {
	if r == nil {
		return Discard()
	}
	return r
}

// Warn builds a warning diagnostic.
func Warn(code, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error builds an error diagnostic.
func Error(code string, cause error, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Location returns "source:line" with whichever parts are known.
func (d Diagnostic) Location() string {
	switch {
	case d.Source != "" && d.Line > 0:
		return d.Source + ":" + strconv.Itoa(d.Line)
	case d.Line > 0:
		return "line " + strconv.Itoa(d.Line)
	default:
		return d.Source
	}
}

// String formats the diagnostic on one line.
func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s [%s] %s", d.Severity, d.Code, d.Message)
	if loc := d.Location(); loc != "" {
		s = loc + ": " + s
	}
	if d.Cause != nil {
		s += ": " + d.Cause.Error()
	}
	return s
}

// NewCollector creates a Collector that logs through logger. A nil logger
// discards log output.
func NewCollector(logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Collector{logger: logger}
}

// Report records d and logs it at warn or error level.
func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	c.diags = append(c.diags, d)
	c.mu.Unlock()

	keyvals := []any{"code", d.Code}
	if d.Source != "" {
		keyvals = append(keyvals, "source", d.Source)
	}
	if d.Line > 0 {
		keyvals = append(keyvals, "line", d.Line)
	}
	if d.Dialect != "" {
		keyvals = append(keyvals, "dialect", d.Dialect)
	}
	if d.Cause != nil {
		keyvals = append(keyvals, "err", d.Cause)
	}
	if d.Severity == SeverityError {
		c.logger.Error(d.Message, keyvals...)
		return
	}
	c.logger.Warn(d.Message, keyvals...)
}

// Diagnostics returns a copy of everything reported so far.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.diags)
}

// Len returns the number of diagnostics reported so far.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.diags)
}

// Count returns the number of diagnostics with the given severity.
func (c *Collector) Count(sev Severity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.diags {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// Codes returns the codes of all diagnostics in report order.
func (c *Collector) Codes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	codes := make([]string, len(c.diags))
	for i, d := range c.diags {
		codes[i] = d.Code
	}
	return codes
}
