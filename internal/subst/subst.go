// SPDX-License-Identifier: MPL-2.0

package subst

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// DefaultTimeout bounds a single substituted command.
const DefaultTimeout = 30 * time.Second

// ErrSubstitution is returned when a substituted command cannot be run.
var ErrSubstitution = errors.New("sub-command substitution failed")

type (
	// Error describes a failed substitution. It wraps ErrSubstitution and the
	// underlying parse or run error.
	Error struct {
		// Command is the text between the substitution delimiters.
		Command string
		Dir     string
		// ExitCode is set when the command ran and exited non-zero.
		ExitCode int
		Stderr   string
		Err      error
	}

	// Substituter runs `$(...)` and backtick groups found in a command line
	// through the mvdan.cc/sh interpreter and splices their output back in.
	Substituter struct {
		// Timeout bounds each substituted command; zero means DefaultTimeout.
		Timeout time.Duration
		// Env is the interpreter environment; nil means os.Environ().
		Env    []string
		Logger *log.Logger
	}

	// span is one substitution group in a line. [start, end) covers the
	// delimiters; cmd is the text inside them.
	span struct {
		start, end int
		cmd        string
	}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %q in %s", ErrSubstitution, e.Command, e.Dir)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, " (%s)", s)
	}
	return b.String()
}

// Unwrap returns ErrSubstitution and the underlying error.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSubstitution}
	}
	return []error{ErrSubstitution, e.Err}
}

// New creates a Substituter with the given per-command timeout.
func New(timeout time.Duration, logger *log.Logger) *Substituter {
	return &Substituter{Timeout: timeout, Logger: logger}
}

// Apply replaces every substitution group of line that is outside single
// quotes with the captured standard output of running it in dir. Trailing
// newlines of the output are trimmed. A line without groups is returned
// unchanged.
func (s *Substituter) Apply(ctx context.Context, line, dir string) (string, error) {
	spans, err := findSpans(line)
	if err != nil {
		return "", &Error{Command: line, Dir: dir, Err: err}
	}
	if len(spans) == 0 {
		return line, nil
	}

	var b strings.Builder
	last := 0
	for _, sp := range spans {
		out, err := s.run(ctx, sp.cmd, dir)
		if err != nil {
			return "", err
		}
		b.WriteString(line[last:sp.start])
		b.WriteString(strings.TrimRight(out, "\r\n"))
		last = sp.end
	}
	b.WriteString(line[last:])
	return b.String(), nil
}

func (s *Substituter) run(ctx context.Context, cmd, dir string) (string, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(cmd), "substitution")
	if err != nil {
		return "", &Error{Command: cmd, Dir: dir, Err: fmt.Errorf("failed to parse: %w", err)}
	}

	env := s.Env
	if env == nil {
		env = os.Environ()
	}
	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(nil, &stdout, &stderr),
	)
	if err != nil {
		return "", &Error{Command: cmd, Dir: dir, Err: fmt.Errorf("failed to create interpreter: %w", err)}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger().Debug("running substitution", "cmd", cmd, "dir", dir)
	if err := runner.Run(runCtx, prog); err != nil {
		serr := &Error{Command: cmd, Dir: dir, Stderr: stderr.String(), Err: err}
		var status interp.ExitStatus
		if errors.As(err, &status) {
			serr.ExitCode = int(status)
		}
		if ctxErr := runCtx.Err(); ctxErr != nil {
			serr.Err = ctxErr
		}
		return "", serr
	}
	return stdout.String(), nil
}

func (s *Substituter) logger() *log.Logger {
	if s.Logger == nil {
		return log.New(io.Discard)
	}
	return s.Logger
}

// findSpans locates `$(...)` and backtick groups. Single-quoted text and
// backslash-escaped characters are skipped; `$((` arithmetic is left alone.
func findSpans(line string) ([]span, error) {
	var spans []span
	inDouble := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '\\':
			i++
		case c == '\'' && !inDouble:
			end := strings.IndexByte(line[i+1:], '\'')
			if end < 0 {
				return spans, nil
			}
			i += end + 1
		case c == '"':
			inDouble = !inDouble
		case c == '`':
			end := closingBacktick(line, i+1)
			if end < 0 {
				return nil, fmt.Errorf("unterminated backtick at offset %d", i)
			}
			spans = append(spans, span{start: i, end: end + 1, cmd: line[i+1 : end]})
			i = end
		case c == '$' && strings.HasPrefix(line[i+1:], "(") && !strings.HasPrefix(line[i+1:], "(("):
			end := closingParen(line, i+2)
			if end < 0 {
				return nil, fmt.Errorf("unterminated $( at offset %d", i)
			}
			spans = append(spans, span{start: i, end: end + 1, cmd: line[i+2 : end]})
			i = end
		}
	}
	return spans, nil
}

func closingBacktick(line string, from int) int {
	for i := from; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '`':
			return i
		}
	}
	return -1
}

// closingParen returns the index of the `)` closing a group opened just
// before from, honoring nesting and quotes.
func closingParen(line string, from int) int {
	depth := 1
	for i := from; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '\'', '"':
			end := strings.IndexByte(line[i+1:], line[i])
			if end < 0 {
				return -1
			}
			i += end + 1
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
