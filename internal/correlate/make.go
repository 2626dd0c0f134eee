// SPDX-License-Identifier: MPL-2.0

package correlate

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"buildlog-cli/internal/diag"
	"buildlog-cli/internal/dirstack"
)

var (
	dirMarkerRE  = regexp.MustCompile("^[\\w.+-]+(?:\\[\\d+\\])?: (Entering|Leaving) directory [`'\"](.*)['\"]\\s*$")
	makeStatusRE = regexp.MustCompile(`^(?:[\w.+-]*-)?g?make(?:\.exe)?(?:\[\d+\])?: `)
)

type (
	// Make correlates GNU make output. It tracks "Entering directory" and
	// "Leaving directory" markers and joins backslash-continued lines.
	Make struct {
		initial  string
		stack    *dirstack.Stack
		cont     strings.Builder
		reporter diag.Reporter
		logger   *log.Logger
	}

	// Ninja strips the `[N/M] ` progress prefix and otherwise behaves like Make.
	Ninja struct {
		*Make
	}
)

// NewMake creates a make correlator.
func NewMake(opts Options) *Make {
	return &Make{
		initial:  opts.Dir,
		stack:    dirstack.New(opts.Dir, opts.Semantics),
		reporter: diag.OrDiscard(opts.Reporter),
		logger:   loggerOrDiscard(opts.Logger),
	}
}

// NewNinja creates a ninja correlator.
func NewNinja(opts Options) *Ninja {
	return &Ninja{Make: NewMake(opts)}
}

// Dir returns the current directory.
func (m *Make) Dir() string { return m.stack.Top() }

// Line implements Correlator.
func (m *Make) Line(text string) ([]Target, error) {
	text = strings.TrimRight(text, "\r")
	if body, ok := strings.CutSuffix(text, `\`); ok {
		m.cont.WriteString(body)
		return nil, nil
	}
	if m.cont.Len() > 0 {
		m.cont.WriteString(text)
		text = m.cont.String()
		m.cont.Reset()
	}

	if match := dirMarkerRE.FindStringSubmatch(text); match != nil {
		m.marker(match[1] == "Entering", match[2])
		return nil, nil
	}
	if makeStatusRE.MatchString(text) {
		return nil, nil
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	dir := m.stack.Top()
	return []Target{{Command: text, Dir: dir, RawDir: dir}}, nil
}

func (m *Make) marker(entering bool, raw string) {
	dir := m.stack.Resolve(raw)
	if entering {
		m.stack.Push(raw)
		m.logger.Debug("entering directory", "dir", dir)
		return
	}
	if dir != m.stack.Top() {
		m.reporter.Report(diag.Warn(diag.CodeMakeDirMismatch,
			"leaving directory %s but the current directory is %s", dir, m.stack.Top()))
		return
	}
	if err := m.stack.Pop(); err != nil {
		d := diag.Warn(diag.CodeDirStackUnderflow, "leaving the initial directory %s", dir)
		d.Cause = err
		m.reporter.Report(d)
		return
	}
	m.logger.Debug("leaving directory", "dir", dir, "now", m.stack.Top())
}

// Finish implements Correlator. A dangling continuation is emitted as is.
func (m *Make) Finish() ([]Target, error) {
	var out []Target
	if m.cont.Len() > 0 {
		dir := m.stack.Top()
		out = append(out, Target{Command: m.cont.String(), Dir: dir, RawDir: dir})
	}
	m.cont.Reset()
	m.stack.Reset(m.initial)
	return out, nil
}

// Line implements Correlator.
func (n *Ninja) Line(text string) ([]Target, error) {
	return n.Make.Line(ninjaProgressRE.ReplaceAllLiteralString(text, ""))
}
