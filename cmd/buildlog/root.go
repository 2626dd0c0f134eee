// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"buildlog-cli/internal/config"
	"buildlog-cli/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	verbose bool
	cfgFile string
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "buildlog",
		Short: "Recover compiler invocations from build logs",
		Long: TitleStyle.Render("buildlog") + SubtitleStyle.Render(" - Recover compiler invocations from build logs") + `

buildlog reads make, ninja, MSBuild and strace logs and reconstructs
every command the build ran: its arguments, working directory,
environment assignments and redirections. Response files are expanded
and files written by echo redirections are synthesized on the way.

` + SubtitleStyle.Render("Examples:") + `
  buildlog parse build.log               Records as JSON on stdout
  buildlog parse -o text ninja.log       Replayable shell lines
  buildlog parse -f strace trace.txt     Parse a process trace
  buildlog parse 'logs/**/*.log'         Parse every matching log
  buildlog config show                   Show current configuration`,
		SilenceUsage: true,
	}

	rootCmd.SetIn(app.stdin)
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/buildlog/config.cue)")

	rootCmd.AddCommand(newParseCommand(app, flags))
	rootCmd.AddCommand(newConfigCommand(app, flags))
	rootCmd.AddCommand(newCompletionCommand())

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits the process with the command's status.
// This is called by main.main().
func Execute() {
	rootCmd := NewRootCommand(NewApp(Dependencies{}))
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(exitFailure)
	}
}

// newLogger creates the stderr logger; verbose mode enables debug output.
func newLogger(w io.Writer, verbose bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{Prefix: "buildlog"})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// loadConfig loads configuration honoring --config.
func (app *App) loadConfig(ctx context.Context, flags *rootFlags) (*config.Config, error) {
	return app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: flags.cfgFile})
}

// fail renders err on stderr and returns an ExitError so fang does not print
// it a second time. In verbose mode the catalogue entry for the error's
// issue class is rendered with glamour after the message.
func (app *App) fail(cmd *cobra.Command, err error, verbose bool, code int) error {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	fmt.Fprintln(app.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
	if verbose {
		if iss := issue.Get(issue.IssueOf(err)); iss != nil {
			if rendered, renderErr := iss.Render("dark"); renderErr == nil {
				fmt.Fprint(app.stderr, rendered)
			}
		}
	}
	return &ExitError{Code: code, Err: err}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
