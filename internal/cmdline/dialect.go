// SPDX-License-Identifier: MPL-2.0

package cmdline

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Shell is the native POSIX shell dialect.
	Shell Dialect = iota + 1
	// Cmd is the native Windows command-processor dialect.
	Cmd
	// ShellOnCmd is shell syntax running on a command-processor host
	// (MSYS, ninja on Windows). Backslashes are path separators unless they
	// precede a character that would otherwise be special.
	ShellOnCmd
)

// ErrInvalidDialect is returned when a dialect name is not recognized.
var ErrInvalidDialect = errors.New("invalid dialect")

var (
	shellOperators = []string{"&&", "||", "&>>", "&>", ">>", ">&", ">", "<", "|", "&", ";", "(", ")"}
	cmdOperators   = []string{"&&", "||", ">>", ">&", ">", "<", "|", "&"}

	shellRules = Rules{
		Quotes:        `"'`,
		Escape:        '\\',
		Operators:     shellOperators,
		FDPrefix:      true,
		Subshell:      true,
		Substitutions: true,
		ScriptControl: true,
	}
	cmdRules = Rules{
		Quotes:       `"`,
		Escape:       '^',
		DoubledQuote: true,
		Operators:    cmdOperators,
		FDPrefix:     true,
		SetKeyword:   true,
	}
	shellOnCmdRules = Rules{
		Quotes:            `"'`,
		Escape:            '\\',
		EscapeOnlySpecial: true,
		Operators:         shellOperators,
		FDPrefix:          true,
		Subshell:          true,
		Substitutions:     true,
		ScriptControl:     true,
		WindowsPaths:      true,
	}
)

type (
	// Dialect selects one of the precomputed quoting/escaping/operator rule sets.
	Dialect int

	// InvalidDialectError is returned when a dialect name is not recognized.
	// It wraps ErrInvalidDialect for errors.Is() compatibility.
	InvalidDialectError struct {
		Value string
	}

	// Rules is the small value object that parameterizes the tokenizer.
	Rules struct {
		// Quotes lists the characters that open a quoted unit.
		Quotes string
		// Escape is the escape character outside quotes; 0 disables escaping.
		Escape byte
		// EscapeOnlySpecial restricts Escape to whitespace, quotes, operator
		// characters and the escape character itself.
		EscapeOnlySpecial bool
		// DoubledQuote unescapes `""` inside double quotes to a literal quote.
		DoubledQuote bool
		// Operators are matched longest first.
		Operators []string
		// FDPrefix allows a single descriptor digit before a redirection.
		FDPrefix bool
		// Subshell marks "(" and ")" as grouping operators.
		Subshell bool
		// Substitutions keeps `$(...)`, `${...}` and backtick groups inside words.
		Substitutions bool
		// ScriptControl lets ";" swallow a following then/else/fi keyword.
		ScriptControl bool
		// SetKeyword drops a leading "set" keyword from a statement.
		SetKeyword bool
		// WindowsPaths resolves directories with drive letters and backslashes.
		WindowsPaths bool
	}
)

// Error implements the error interface for InvalidDialectError.
func (e *InvalidDialectError) Error() string {
	return fmt.Sprintf("invalid dialect %q (valid: shell, cmd, shell-on-cmd)", e.Value)
}

// Unwrap returns ErrInvalidDialect for errors.Is() compatibility.
func (e *InvalidDialectError) Unwrap() error { return ErrInvalidDialect }

// ParseDialect converts a configuration name into a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "shell", "sh", "posix":
		return Shell, nil
	case "cmd", "cmd.exe":
		return Cmd, nil
	case "shell-on-cmd", "msys", "mingw":
		return ShellOnCmd, nil
	default:
		return 0, &InvalidDialectError{Value: name}
	}
}

// String returns the canonical configuration name of the dialect.
func (d Dialect) String() string {
	switch d {
	case Shell:
		return "shell"
	case Cmd:
		return "cmd"
	case ShellOnCmd:
		return "shell-on-cmd"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// Validate returns nil if d is a known dialect.
func (d Dialect) Validate() error {
	switch d {
	case Shell, Cmd, ShellOnCmd:
		return nil
	default:
		return &InvalidDialectError{Value: d.String()}
	}
}

// Rules returns the rule set for the dialect. Unknown dialects fall back to Shell.
func (d Dialect) Rules() *Rules {
	switch d {
	case Cmd:
		return &cmdRules
	case ShellOnCmd:
		return &shellOnCmdRules
	default:
		return &shellRules
	}
}

func (r *Rules) isQuote(c byte) bool {
	return strings.IndexByte(r.Quotes, c) >= 0
}

// isSpecial reports whether c has lexical meaning outside a word.
func (r *Rules) isSpecial(c byte) bool {
	if isSpace(c) || r.isQuote(c) || c == r.Escape {
		return true
	}
	for _, op := range r.Operators {
		if op[0] == c {
			return true
		}
	}
	return false
}

// escapes reports whether the escape character applies before next.
func (r *Rules) escapes(next byte) bool {
	if !r.EscapeOnlySpecial {
		return true
	}
	return r.isSpecial(next)
}

// escapeAt reports whether s[i] is an active escape character. A dangling
// escape at the end of input is active (and therefore invalid) unless the
// dialect only escapes special characters.
func (r *Rules) escapeAt(s string, i int) bool {
	if r.Escape == 0 || s[i] != r.Escape {
		return false
	}
	if i+1 >= len(s) {
		return !r.EscapeOnlySpecial
	}
	return r.escapes(s[i+1])
}

// operatorAt returns the operator starting at s[i:], or "".
func (r *Rules) operatorAt(s string, i int) string {
	if r.FDPrefix && isDigit(s[i]) && i+1 < len(s) && (s[i+1] == '>' || s[i+1] == '<') {
		if op := redirectAt(s, i+1); op != "" {
			return s[i:i+1] + op
		}
	}
	if op := redirectAt(s, i); op != "" && r.hasOperator(op[:1]) {
		if r.hasOperator("&>") || op[0] != '&' {
			return op
		}
	}
	for _, op := range r.Operators {
		if strings.HasPrefix(s[i:], op) {
			return op
		}
	}
	return ""
}

func (r *Rules) hasOperator(op string) bool {
	for _, o := range r.Operators {
		if o == op {
			return true
		}
	}
	return false
}

// redirectAt matches a redirection operator at s[i:], including a trailing
// descriptor for the self-contained `>&N` and `>&-` forms.
func redirectAt(s string, i int) string {
	rest := s[i:]
	switch {
	case strings.HasPrefix(rest, "&>>"):
		return "&>>"
	case strings.HasPrefix(rest, "&>"):
		return "&>"
	case strings.HasPrefix(rest, ">&"):
		if len(rest) > 2 && (isDigit(rest[2]) || rest[2] == '-') {
			return rest[:3]
		}
		return ">&"
	case strings.HasPrefix(rest, ">>"):
		return ">>"
	case strings.HasPrefix(rest, ">"):
		return ">"
	case strings.HasPrefix(rest, "<"):
		return "<"
	}
	return ""
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
