// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"buildlog-cli/internal/cmdline"
	"buildlog-cli/internal/config"
	"buildlog-cli/internal/correlate"
	"buildlog-cli/internal/diag"
	"buildlog-cli/internal/encode"
	"buildlog-cli/internal/extract"
	"buildlog-cli/internal/inlinefile"
	"buildlog-cli/internal/issue"
	"buildlog-cli/internal/subst"
	"buildlog-cli/pkg/invocation"
)

type (
	// parseFlags holds the `parse` flag values. Flags left unset fall back
	// to the loaded configuration.
	parseFlags struct {
		format       string
		dialect      string
		dir          string
		output       string
		substitute   bool
		replace      []string
		traceReplace []string
		filesOut     string
		jobs         int
		strict       bool
	}

	// parseRun is one resolved `parse` invocation.
	parseRun struct {
		format     correlate.Format
		autoFormat bool
		dialect    cmdline.Dialect
		output     encode.Format
		dir        string
		lineRepls  []correlate.Replacement
		traceRepls []correlate.Replacement
		marker     string
		subst      *subst.Substituter
		jobs       int
		strict     bool
		files      *inlinefile.Registry
		collector  *diag.Collector
		logger     *log.Logger
	}
)

func newParseCommand(app *App, rf *rootFlags) *cobra.Command {
	pf := &parseFlags{}

	parseCmd := &cobra.Command{
		Use:   "parse [flags] LOG...",
		Short: "Extract invocation records from build logs",
		Long: `Extract invocation records from build logs.

Each LOG is a file path, a doublestar glob such as 'logs/**/*.log', or '-'
for standard input. Logs are parsed in parallel and their records are
written in argument order. Files synthesized from echo redirections are
visible only within the log that creates them; they are merged in argument
order and can be written with --files-out.

` + SubtitleStyle.Render("Exit status:") + `
  0  success
  1  a fatal error (unparseable command line, failed substitution, I/O)
  2  --strict was given and diagnostics were reported`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runParse(cmd, rf, pf, args)
		},
	}

	flags := parseCmd.Flags()
	flags.StringVarP(&pf.format, "format", "f", "", "log format: auto, make, ninja, msbuild or strace")
	flags.StringVarP(&pf.dialect, "dialect", "d", "", "command-line dialect: shell, cmd or shell-on-cmd")
	flags.StringVarP(&pf.dir, "dir", "C", "", "initial working directory of the build (default is the current directory)")
	flags.StringVarP(&pf.output, "output", "o", "", "output encoding: "+strings.Join(encode.FormatNames(), ", "))
	flags.BoolVar(&pf.substitute, "substitute", false, "evaluate $(...) and `...` groups before splitting")
	flags.StringArrayVar(&pf.replace, "replace", nil, "rewrite raw log lines with PATTERN=REPLACEMENT (repeatable)")
	flags.StringArrayVar(&pf.traceReplace, "trace-replace", nil, "rewrite traced exec arguments with PATTERN=REPLACEMENT (repeatable)")
	flags.StringVar(&pf.filesOut, "files-out", "", "write synthesized file records to this path")
	flags.IntVarP(&pf.jobs, "jobs", "j", 0, "logs parsed in parallel (default is one per CPU)")
	flags.BoolVar(&pf.strict, "strict", false, "exit with status 2 when any diagnostic is reported")

	_ = parseCmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(
		[]string{config.FormatAuto, "make", "ninja", "msbuild", "strace"}, cobra.ShellCompDirectiveNoFileComp))
	_ = parseCmd.RegisterFlagCompletionFunc("dialect", cobra.FixedCompletions(
		[]string{"shell", "cmd", "shell-on-cmd"}, cobra.ShellCompDirectiveNoFileComp))
	_ = parseCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(
		encode.FormatNames(), cobra.ShellCompDirectiveNoFileComp))

	return parseCmd
}

func (app *App) runParse(cmd *cobra.Command, rf *rootFlags, pf *parseFlags, args []string) error {
	ctx := cmd.Context()
	logger := newLogger(app.stderr, rf.verbose)

	cfg, err := app.loadConfig(ctx, rf)
	if err != nil {
		return app.fail(cmd, err, rf.verbose, exitFailure)
	}

	run, err := newParseRun(cmd, cfg, pf, logger, rf.verbose)
	if err != nil {
		return app.fail(cmd, err, rf.verbose, exitFailure)
	}

	inputs, err := resolveInputs(args)
	if err != nil {
		return app.fail(cmd, err, rf.verbose, exitFailure)
	}

	invs, err := app.parseAll(ctx, run, inputs)
	if err != nil {
		renderDiagnostics(app.stderr, run.collector.Diagnostics(), inputs)
		return app.fail(cmd, classifyParseError(err), rf.verbose, exitFailure)
	}

	if err := encode.Write(app.stdout, run.output, invs); err != nil {
		return app.fail(cmd, outputError("stdout", err), rf.verbose, exitFailure)
	}
	if pf.filesOut != "" {
		if err := writeFileRecords(pf.filesOut, run.output, run.files.Records()); err != nil {
			return app.fail(cmd, outputError(pf.filesOut, err), rf.verbose, exitFailure)
		}
	}

	diags := run.collector.Diagnostics()
	renderDiagnostics(app.stderr, diags, inputs)
	logger.Debug("parse complete", "logs", len(inputs), "records", len(invs), "files", run.files.Len(), "diagnostics", len(diags))

	if run.strict && len(diags) > 0 {
		cmd.SilenceErrors = true
		return &ExitError{Code: exitDiagnostics}
	}
	return nil
}

// newParseRun merges flags over cfg. Values given on the command line win;
// replacement lists are concatenated, configuration first.
func newParseRun(cmd *cobra.Command, cfg *config.Config, pf *parseFlags, logger *log.Logger, verbose bool) (*parseRun, error) {
	changed := cmd.Flags().Changed
	if changed("format") {
		cfg.Format = pf.format
	}
	if changed("dialect") {
		cfg.Dialect = pf.dialect
	}
	if changed("output") {
		cfg.Output = pf.output
	}
	if changed("substitute") {
		cfg.Substitution.Enabled = pf.substitute
	}
	if changed("jobs") {
		cfg.Jobs = pf.jobs
	}
	if changed("strict") {
		cfg.Strict = pf.strict
	}
	if valid, errs := cfg.IsValid(); !valid {
		return nil, invalidFlagError(errs[0])
	}

	run := &parseRun{
		autoFormat: cfg.AutoFormat(),
		marker:     cfg.ResponseFileMarker,
		jobs:       cfg.Jobs,
		strict:     cfg.Strict,
		files:      inlinefile.NewRegistry(),
		logger:     logger,
	}
	var err error
	if !run.autoFormat {
		if run.format, err = correlate.ParseFormat(cfg.Format); err != nil {
			return nil, invalidFlagError(err)
		}
	}
	if run.dialect, err = cmdline.ParseDialect(cfg.Dialect); err != nil {
		return nil, invalidFlagError(err)
	}
	if run.output, err = encode.ParseFormat(cfg.Output); err != nil {
		return nil, invalidFlagError(err)
	}
	if run.lineRepls, err = cfg.LineReplacements(); err != nil {
		return nil, invalidFlagError(err)
	}
	if run.traceRepls, err = cfg.CompiledTraceReplacements(); err != nil {
		return nil, invalidFlagError(err)
	}
	for _, pair := range pf.replace {
		r, err := correlate.ParseReplacement(pair)
		if err != nil {
			return nil, invalidFlagError(fmt.Errorf("--replace: %w", err))
		}
		run.lineRepls = append(run.lineRepls, r)
	}
	for _, pair := range pf.traceReplace {
		r, err := correlate.ParseReplacement(pair)
		if err != nil {
			return nil, invalidFlagError(fmt.Errorf("--trace-replace: %w", err))
		}
		run.traceRepls = append(run.traceRepls, r)
	}

	if run.dir, err = initialDir(pf.dir); err != nil {
		return nil, err
	}
	if run.jobs == 0 {
		run.jobs = runtime.NumCPU()
	}
	if cfg.Substitution.Enabled {
		run.subst = subst.New(cfg.Substitution.Timeout, logger)
	}

	// Diagnostics are rendered at the end; the collector echoes them only
	// in verbose mode.
	var diagLogger *log.Logger
	if verbose {
		diagLogger = logger
	}
	run.collector = diag.NewCollector(diagLogger)
	return run, nil
}

// initialDir returns dir, or the current directory when dir is empty.
// Windows-style directories are kept verbatim for msbuild and cmd logs.
func initialDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		return wd, nil
	}
	if strings.Contains(dir, `\`) || filepath.IsAbs(dir) {
		return dir, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve --dir %q: %w", dir, err)
	}
	return abs, nil
}

// parseAll parses every input concurrently and concatenates the records in
// input order. Each log synthesizes files into its own registry; they are
// merged into run.files in input order once every log is done. The first
// fatal error cancels the remaining logs.
func (app *App) parseAll(ctx context.Context, run *parseRun, inputs []string) ([]invocation.Invocation, error) {
	results := make([][]invocation.Invocation, len(inputs))
	files := make([]*inlinefile.Registry, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(run.jobs)
	for i, name := range inputs {
		files[i] = inlinefile.NewRegistry()
		g.Go(func() error {
			invs, err := app.parseOne(gctx, run, name, files[i])
			results[i] = invs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []invocation.Invocation
	for i, invs := range results {
		all = append(all, invs...)
		run.files.Merge(files[i])
	}
	return all, nil
}

func (app *App) parseOne(ctx context.Context, run *parseRun, name string, files *inlinefile.Registry) ([]invocation.Invocation, error) {
	rc, err := app.openInput(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	r := bufio.NewReaderSize(rc, headBytes)
	format := run.format
	if run.autoFormat {
		format = detectFormat(name, r)
		run.logger.Debug("detected log format", "source", name, "format", format)
	}

	source := name
	if name == stdinName {
		source = "<stdin>"
	}
	p, err := extract.New(extract.Options{
		Format:             format,
		Dialect:            run.dialect,
		Dir:                run.dir,
		Source:             source,
		LineReplacements:   run.lineRepls,
		TraceReplacements:  run.traceRepls,
		ResponseFileMarker: run.marker,
		Substitution:       run.subst,
		Files:              files,
		Reporter:           run.collector,
		Logger:             run.logger,
	})
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx, r)
}

// classifyParseError attaches catalogue help to a fatal pipeline error.
func classifyParseError(err error) error {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return err
	}

	var lerr *extract.LineError
	if !errors.As(err, &lerr) {
		return err
	}
	ctx := issue.NewErrorContext().
		WithOperation("parse log").
		WithResource(fmt.Sprintf("%s:%d", lerr.Source, lerr.Line))
	if errors.Is(err, subst.ErrSubstitution) {
		ctx = ctx.WithIssue(issue.SubstitutionFailedId).
			WithSuggestion("Run without --substitute to keep $(...) groups verbatim").
			WithSuggestion("Use --dir so substituted commands run where the build ran")
	} else {
		ctx = ctx.WithIssue(issue.LogParseFailedId).
			WithSuggestion("Check --dialect; cmd and shell logs quote differently").
			WithSuggestion("Use --replace to rewrite the offending text before parsing")
	}
	return ctx.Wrap(err).BuildError()
}

func invalidFlagError(err error) error {
	return issue.NewErrorContext().
		WithOperation("validate options").
		WithSuggestion("Run 'buildlog parse --help' for accepted values").
		WithIssue(issue.InvalidFlagId).
		Wrap(err).
		BuildError()
}

func outputError(resource string, err error) error {
	return issue.NewErrorContext().
		WithOperation("write output").
		WithResource(resource).
		WithIssue(issue.OutputWriteFailedId).
		Wrap(err).
		BuildError()
}

func writeFileRecords(path string, format encode.Format, files []invocation.FileRecord) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return encode.WriteFiles(f, format, files)
}
