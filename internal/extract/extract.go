// SPDX-License-Identifier: MPL-2.0

package extract

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"buildlog-cli/internal/cmdline"
	"buildlog-cli/internal/correlate"
	"buildlog-cli/internal/diag"
	"buildlog-cli/internal/dirstack"
	"buildlog-cli/internal/inlinefile"
	"buildlog-cli/internal/respfile"
	"buildlog-cli/internal/statement"
	"buildlog-cli/internal/subst"
	"buildlog-cli/pkg/invocation"
)

// MaxLineSize is the longest log line Parse accepts.
const MaxLineSize = 64 << 20

type (
	// Options configures a Parser.
	Options struct {
		// Format selects the correlator.
		Format correlate.Format
		// Dialect is the command-line dialect of recovered commands.
		Dialect cmdline.Dialect
		// Dir is the initial working directory.
		Dir string
		// Source names the log in diagnostics and errors.
		Source string
		// LineReplacements are applied to every raw line except strace lines.
		LineReplacements []correlate.Replacement
		// TraceReplacements are applied to raw execve argument text.
		TraceReplacements []correlate.Replacement
		// ResponseFileMarker prefixes response-file arguments; empty means "@".
		ResponseFileMarker string
		// Substitution runs `$(...)` groups when non-nil.
		Substitution *subst.Substituter
		// Files is the synthesized-file registry, shared across parsers of
		// one run. Nil creates a private registry.
		Files    *inlinefile.Registry
		Reporter diag.Reporter
		Logger   *log.Logger
	}

	// Parser turns the lines of one log into invocation records. A Parser is
	// not safe for concurrent use.
	Parser struct {
		opts       Options
		semantics  dirstack.Semantics
		correlator correlate.Correlator
		// stack carries cd, pushd and popd from one line to the next. It is
		// reseeded whenever the correlator reports a different directory.
		stack    *dirstack.Stack
		base     string
		splitter *statement.Splitter
		expander *respfile.Expander
		synth    *inlinefile.Synthesizer
		reporter *locatingReporter
		logger   *log.Logger
		line     int
		text     string
	}

	// locatingReporter stamps diagnostics with the current log position.
	locatingReporter struct {
		next    diag.Reporter
		source  string
		dialect string
		line    int
		muted   bool
	}
)

// Report implements diag.Reporter.
func (r *locatingReporter) Report(d diag.Diagnostic) {
	if r.muted {
		return
	}
	if d.Source == "" {
		d.Source = r.source
	}
	if d.Line == 0 {
		d.Line = r.line
	}
	if d.Dialect == "" {
		d.Dialect = r.dialect
	}
	r.next.Report(d)
}

// New creates a Parser for one log.
func New(opts Options) (*Parser, error) {
	if err := opts.Format.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Dialect.Validate(); err != nil {
		return nil, err
	}
	if opts.Files == nil {
		opts.Files = inlinefile.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	sem := SemanticsFor(opts.Format, opts.Dialect)
	reporter := &locatingReporter{
		next:    diag.OrDiscard(opts.Reporter),
		source:  opts.Source,
		dialect: opts.Dialect.String(),
	}

	correlator, err := correlate.New(opts.Format, correlate.Options{
		Dir:               opts.Dir,
		Semantics:         sem,
		TraceReplacements: opts.TraceReplacements,
		Reporter:          reporter,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	return &Parser{
		opts:       opts,
		semantics:  sem,
		correlator: correlator,
		splitter:   &statement.Splitter{Dialect: opts.Dialect, Reporter: reporter, Logger: logger},
		expander: &respfile.Expander{
			Dialect:   opts.Dialect,
			Semantics: sem,
			Files:     opts.Files,
			Reporter:  reporter,
			Marker:    opts.ResponseFileMarker,
		},
		synth: &inlinefile.Synthesizer{
			Registry:  opts.Files,
			CmdEcho:   opts.Dialect == cmdline.Cmd,
			Semantics: sem,
		},
		reporter: reporter,
		logger:   logger,
	}, nil
}

// SemanticsFor returns the path semantics used for a format and dialect.
// MSBuild logs and command-processor hosts resolve Windows paths; process
// traces are always POSIX.
func SemanticsFor(format correlate.Format, dialect cmdline.Dialect) dirstack.Semantics {
	switch {
	case format == correlate.FormatStrace:
		return dirstack.POSIX
	case format == correlate.FormatMSBuild, dialect == cmdline.Cmd, dialect.Rules().WindowsPaths:
		return dirstack.Windows
	default:
		return dirstack.POSIX
	}
}

// Files returns the registry of synthesized file records.
func (p *Parser) Files() *inlinefile.Registry { return p.opts.Files }

// Line consumes the next log line and returns the records it completes.
func (p *Parser) Line(ctx context.Context, text string) ([]invocation.Invocation, error) {
	p.line++
	p.reporter.line = p.line
	if p.opts.Format != correlate.FormatStrace {
		text = correlate.ApplyReplacements(p.opts.LineReplacements, text)
	}
	p.text = text
	targets, err := p.correlator.Line(text)
	if err != nil {
		return nil, p.fail(err)
	}
	return p.emit(ctx, targets)
}

// Finish flushes the correlator at end of log. The Parser can then be reused
// for another log.
func (p *Parser) Finish(ctx context.Context) ([]invocation.Invocation, error) {
	p.text = ""
	targets, err := p.correlator.Finish()
	if err != nil {
		return nil, p.fail(err)
	}
	out, err := p.emit(ctx, targets)
	p.line = 0
	p.stack = nil
	return out, err
}

// Parse reads a whole log from r. Finish is always called, and records
// recovered before a fatal error are returned with it. After a fatal error
// the correlator is reset without emitting or reporting anything further.
func (p *Parser) Parse(ctx context.Context, r io.Reader) ([]invocation.Invocation, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	var out []invocation.Invocation
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			p.abort()
			return out, err
		}
		invs, err := p.Line(ctx, scanner.Text())
		out = append(out, invs...)
		if err != nil {
			p.abort()
			return out, err
		}
	}
	invs, err := p.Finish(ctx)
	out = append(out, invs...)
	if err != nil {
		return out, err
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("failed to read %s: %w", p.opts.Source, err)
	}
	return out, nil
}

func (p *Parser) abort() {
	p.reporter.muted = true
	_, _ = p.correlator.Finish()
	p.reporter.muted = false
	p.line = 0
	p.stack = nil
}

// stackFor returns the directory stack for a target the correlator placed
// in dir.
func (p *Parser) stackFor(dir string) *dirstack.Stack {
	if p.stack == nil || dir != p.base {
		if p.stack != nil {
			p.logger.Debug("directory stack reseeded", "from", p.stack.Top(), "to", dir)
		}
		p.stack = dirstack.New(dir, p.semantics)
		p.base = dir
	}
	return p.stack
}

func (p *Parser) emit(ctx context.Context, targets []correlate.Target) ([]invocation.Invocation, error) {
	var out []invocation.Invocation
	for _, t := range targets {
		if t.Args != nil {
			if len(t.Args) == 0 {
				continue
			}
			inv := invocation.Invocation{Args: t.Args, Dir: t.Dir, Line: p.line}
			if err := p.finalize(&inv, &out); err != nil {
				return out, err
			}
			continue
		}

		command := t.Command
		stack := p.stackFor(t.Dir)
		if p.opts.Substitution != nil && p.opts.Dialect.Rules().Substitutions {
			var err error
			if command, err = p.opts.Substitution.Apply(ctx, command, stack.Top()); err != nil {
				return out, p.fail(err)
			}
		}
		stmts, err := p.splitter.Split(command, stack)
		if err != nil {
			return out, p.fail(err)
		}
		for i := range stmts {
			inv := stmts[i].Invocation(p.line)
			if err := p.finalize(&inv, &out); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

func (p *Parser) finalize(inv *invocation.Invocation, out *[]invocation.Invocation) error {
	if err := p.expander.Expand(inv); err != nil {
		return p.fail(err)
	}
	if p.synth.Apply(inv) {
		p.logger.Debug("synthesized file content", "line", p.line, "redirections", len(inv.Redirections))
	}
	if len(inv.Args) > 0 {
		*out = append(*out, *inv)
	}
	return nil
}

func (p *Parser) fail(err error) error {
	lerr := &LineError{
		Source:  p.opts.Source,
		Line:    p.line,
		Dialect: p.opts.Dialect,
		Text:    strings.TrimRight(p.text, "\r"),
		Err:     err,
	}
	p.logger.Error("fatal log line", "source", lerr.Source, "line", lerr.Line, "dialect", lerr.Dialect, "err", err)
	return lerr
}
