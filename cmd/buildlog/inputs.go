// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"buildlog-cli/internal/correlate"
	"buildlog-cli/internal/issue"
)

const (
	// stdinName is the argument that reads a log from standard input.
	stdinName = "-"
	// headLines is how many leading lines format detection looks at.
	headLines = 20
	// headBytes bounds the prefix buffered for format detection.
	headBytes = 64 * 1024
)

// errStdinTwice is returned when "-" appears more than once.
var errStdinTwice = errors.New("standard input can only be read once")

// resolveInputs expands glob arguments with doublestar and keeps the rest
// verbatim. Matches of one pattern are sorted; argument order is kept.
func resolveInputs(args []string) ([]string, error) {
	var inputs []string
	sawStdin := false
	for _, arg := range args {
		if arg == stdinName {
			if sawStdin {
				return nil, errStdinTwice
			}
			sawStdin = true
			inputs = append(inputs, arg)
			continue
		}
		if !strings.ContainsAny(arg, "*?[{") {
			inputs = append(inputs, arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, issue.NewErrorContext().
				WithOperation("find logs").
				WithResource(arg).
				WithSuggestion("Quote the pattern so the shell does not expand it first").
				WithSuggestion("Use '**' to match across directories, e.g. 'logs/**/*.log'").
				WithIssue(issue.LogNotFoundId).
				Wrap(errors.New("pattern matched no files")).
				BuildError()
		}
		slices.Sort(matches)
		inputs = append(inputs, matches...)
	}
	return inputs, nil
}

// openInput opens a log for reading. The caller closes the result.
func (app *App) openInput(name string) (io.ReadCloser, error) {
	if name == stdinName {
		return io.NopCloser(app.stdin), nil
	}
	f, err := os.Open(name)
	if err != nil {
		ctx := issue.NewErrorContext().
			WithOperation("open log").
			WithResource(name).
			Wrap(err)
		if errors.Is(err, os.ErrNotExist) {
			ctx = ctx.WithIssue(issue.LogNotFoundId).
				WithSuggestion("Check the path, or pass '-' to read from standard input")
		}
		return nil, ctx.BuildError()
	}
	return f, nil
}

// detectFormat peeks at the first lines of r without consuming them.
func detectFormat(name string, r *bufio.Reader) correlate.Format {
	if name == stdinName {
		name = ""
	}
	buf, _ := r.Peek(headBytes)
	lines := strings.SplitN(string(buf), "\n", headLines+1)
	if len(lines) > headLines {
		lines = lines[:headLines]
	}
	return correlate.DetectFormat(name, lines)
}
