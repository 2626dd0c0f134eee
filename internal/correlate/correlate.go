// SPDX-License-Identifier: MPL-2.0

package correlate

import (
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"buildlog-cli/internal/diag"
	"buildlog-cli/internal/dirstack"
)

const (
	// FormatMake is GNU make output with directory markers.
	FormatMake Format = "make"
	// FormatNinja is ninja output with progress prefixes.
	FormatNinja Format = "ninja"
	// FormatMSBuild is multi-node MSBuild console output.
	FormatMSBuild Format = "msbuild"
	// FormatStrace is `strace -f` output.
	FormatStrace Format = "strace"
)

var (
	// ErrInvalidFormat is returned when a log format name is not recognized.
	ErrInvalidFormat = errors.New("invalid log format")
	// ErrInvalidReplacement is returned for a malformed PATTERN=REPLACEMENT pair.
	ErrInvalidReplacement = errors.New("invalid replacement")

	ninjaProgressRE = regexp.MustCompile(`^\[\d+/\d+\] `)
	straceLineRE    = regexp.MustCompile(`^(?:\[pid\s+\d+\]\s+|\d+\s+)?(?:[\d:.]+\s+)?(?:\w+\(|<\.\.\. \w+ resumed>|\+\+\+ )`)
	msbuildLineRE   = regexp.MustCompile(`^(?:\s*\d+>)?(?:Build started|Project "[^"]+" (?:on node|\(\d+\) is building))`)
)

type (
	// Format identifies the kind of log being correlated.
	Format string

	// InvalidFormatError is returned when a log format name is not recognized.
	// It wraps ErrInvalidFormat for errors.Is() compatibility.
	InvalidFormatError struct {
		Value string
	}

	// Target is one command recovered from a log, before statement splitting.
	// Text targets carry Command; pre-tokenized targets (from process traces)
	// carry Args instead.
	Target struct {
		Command string
		Args    []string
		// Dir is the directory the command must be parsed against.
		Dir string
		// RawDir is the correlator's current directory when the target was
		// emitted. It differs from Dir when a deferred block is flushed after
		// a node switch.
		RawDir string
	}

	// Correlator rebuilds an ordered, directory-aware command stream from
	// the lines of one log. Instances own their state and are not safe for
	// concurrent use; parse several logs with several instances.
	Correlator interface {
		// Line consumes one log line and returns the targets it completes.
		Line(text string) ([]Target, error)
		// Finish flushes buffered state at end of log and resets the
		// correlator for reuse.
		Finish() ([]Target, error)
	}

	// Options configures a correlator.
	Options struct {
		// Dir is the initial working directory.
		Dir string
		// Semantics selects POSIX or Windows path resolution for make and
		// ninja logs. MSBuild always uses Windows and strace always POSIX.
		Semantics dirstack.Semantics
		// TraceReplacements are applied to raw execve argument text.
		TraceReplacements []Replacement
		Reporter          diag.Reporter
		Logger            *log.Logger
	}

	// Replacement is a compiled regular-expression substitution.
	Replacement struct {
		Pattern     *regexp.Regexp
		Replacement string
	}
)

// Error implements the error interface for InvalidFormatError.
func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid log format %q (valid: make, ninja, msbuild, strace)", e.Value)
}

// Unwrap returns ErrInvalidFormat for errors.Is() compatibility.
func (e *InvalidFormatError) Unwrap() error { return ErrInvalidFormat }

// ParseFormat converts a name into a Format.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if err := f.Validate(); err != nil {
		return "", &InvalidFormatError{Value: name}
	}
	return f, nil
}

// Validate returns nil if the Format is known.
func (f Format) Validate() error {
	switch f {
	case FormatMake, FormatNinja, FormatMSBuild, FormatStrace:
		return nil
	default:
		return &InvalidFormatError{Value: string(f)}
	}
}

// String returns the string representation of the Format.
func (f Format) String() string { return string(f) }

// DetectFormat guesses the format of a log from its file name and its first
// lines. It falls back to make.
func DetectFormat(name string, head []string) Format {
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, `\`, "/")))
	switch {
	case strings.Contains(base, "strace"), strings.HasSuffix(base, ".trace"):
		return FormatStrace
	case strings.Contains(base, "ninja"):
		return FormatNinja
	case strings.Contains(base, "msbuild"):
		return FormatMSBuild
	}
	for _, line := range head {
		switch {
		case msbuildLineRE.MatchString(line):
			return FormatMSBuild
		case ninjaProgressRE.MatchString(line):
			return FormatNinja
		case straceLineRE.MatchString(line):
			return FormatStrace
		}
	}
	return FormatMake
}

// New creates the correlator for format.
func New(format Format, opts Options) (Correlator, error) {
	switch format {
	case FormatMake:
		return NewMake(opts), nil
	case FormatNinja:
		return NewNinja(opts), nil
	case FormatMSBuild:
		return NewMSBuild(opts), nil
	case FormatStrace:
		return NewStrace(opts), nil
	default:
		return nil, &InvalidFormatError{Value: string(format)}
	}
}

// ParseReplacement parses a "PATTERN=REPLACEMENT" pair. The pattern is the
// text before the first "=" that is not escaped as "\=".
func ParseReplacement(pair string) (Replacement, error) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '\\' {
			i++
			continue
		}
		if pair[i] == '=' {
			return CompileReplacement(strings.ReplaceAll(pair[:i], `\=`, "="), pair[i+1:])
		}
	}
	return Replacement{}, fmt.Errorf("%w: %q has no '='", ErrInvalidReplacement, pair)
}

// CompileReplacement compiles pattern into a Replacement.
func CompileReplacement(pattern, replacement string) (Replacement, error) {
	if pattern == "" {
		return Replacement{}, fmt.Errorf("%w: empty pattern", ErrInvalidReplacement)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Replacement{}, fmt.Errorf("%w: %w", ErrInvalidReplacement, err)
	}
	return Replacement{Pattern: re, Replacement: replacement}, nil
}

// ApplyReplacements runs each replacement over s in order.
func ApplyReplacements(repls []Replacement, s string) string {
	for _, r := range repls {
		s = r.Pattern.ReplaceAllString(s, r.Replacement)
	}
	return s
}

func loggerOrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return log.New(io.Discard)
	}
	return l
}
