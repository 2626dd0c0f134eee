// SPDX-License-Identifier: MPL-2.0

package statement

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"buildlog-cli/internal/cmdline"
	"buildlog-cli/internal/diag"
	"buildlog-cli/internal/dirstack"
	"buildlog-cli/pkg/invocation"
)

var (
	// ErrNestedSubshell is returned when a subshell group contains another
	// group. Only one level of grouping is supported.
	ErrNestedSubshell = errors.New("nested subshell groups are not supported")
	// ErrUnbalancedSubshell is returned for a `(` without `)` or a stray `)`.
	ErrUnbalancedSubshell = errors.New("unbalanced subshell parentheses")
)

type (
	// SubshellError reports a grouping failure at a byte offset of the line.
	SubshellError struct {
		Input string
		Pos   int
		Err   error
	}

	// Statement is one candidate command from a log line.
	Statement struct {
		Args         []string
		Params       map[string]string
		Redirections []invocation.Redirection
		// Dir is the directory in effect when the statement ran.
		Dir string
	}

	// Splitter breaks log lines into statements and tracks directory changes.
	Splitter struct {
		Dialect  cmdline.Dialect
		Reporter diag.Reporter
		Logger   *log.Logger
	}
)

// Error implements the error interface.
func (e *SubshellError) Error() string {
	return fmt.Sprintf("%s at offset %d in %q", e.Err, e.Pos, e.Input)
}

// Unwrap returns the underlying sentinel.
func (e *SubshellError) Unwrap() error { return e.Err }

// Invocation converts the statement into an output record.
func (s *Statement) Invocation(line int) invocation.Invocation {
	inv := invocation.Invocation{
		Args:         slices.Clone(s.Args),
		Dir:          s.Dir,
		Redirections: slices.Clone(s.Redirections),
		Line:         line,
	}
	if len(s.Params) > 0 {
		inv.Params = maps.Clone(s.Params)
	}
	return inv
}

// Split breaks line into statements. Directory changes are applied to stack
// as they occur, so each statement carries the directory in effect for it.
// Grammar failures are returned as errors; directory stack underflow is
// reported as a diagnostic.
func (sp *Splitter) Split(line string, stack *dirstack.Stack) ([]Statement, error) {
	units, err := cmdline.Tokenize(line, sp.Dialect)
	if err != nil {
		return nil, err
	}
	args, err := cmdline.Args(units)
	if err != nil {
		return nil, err
	}
	var out []Statement
	if err := sp.split(line, args, stack, 0, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (sp *Splitter) split(line string, args []cmdline.Arg, stack *dirstack.Stack, depth int, out *[]Statement) error {
	rules := sp.Dialect.Rules()
	start := 0
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !a.Operator {
			continue
		}
		switch {
		case rules.Subshell && a.Value == "(":
			if depth > 0 {
				return &SubshellError{Input: line, Pos: a.Pos, Err: ErrNestedSubshell}
			}
			sp.statement(args[start:i], stack, out)
			end := closingParen(args, i+1)
			if end < 0 {
				return &SubshellError{Input: line, Pos: a.Pos, Err: ErrUnbalancedSubshell}
			}
			if err := sp.split(line, args[i+1:end], stack.Sub(), depth+1, out); err != nil {
				return err
			}
			i = end
			start = end + 1
		case rules.Subshell && a.Value == ")":
			return &SubshellError{Input: line, Pos: a.Pos, Err: ErrUnbalancedSubshell}
		case isSeparator(a.Value):
			sp.statement(args[start:i], stack, out)
			start = i + 1
			if a.Value == ";" && rules.ScriptControl && start < len(args) && isControlKeyword(args[start]) {
				start++
				i++
			}
		}
	}
	sp.statement(args[start:], stack, out)
	return nil
}

// closingParen returns the index of the first `)` operator at or after from,
// or -1. A `(` before it makes the group nested; split reports that when it
// recurses into the group.
func closingParen(args []cmdline.Arg, from int) int {
	for j := from; j < len(args); j++ {
		if args[j].Operator && args[j].Value == ")" {
			return j
		}
	}
	return -1
}

// statement turns the arguments of one statement into a Statement, or applies
// it to the stack when it is a directory change.
func (sp *Splitter) statement(args []cmdline.Arg, stack *dirstack.Stack, out *[]Statement) {
	if len(args) == 0 {
		return
	}
	redirs, rest := stripRedirections(args)

	tokens := make([]string, len(rest))
	for i, a := range rest {
		tokens[i] = a.Value
	}
	if sp.Dialect.Rules().SetKeyword && len(tokens) > 0 && strings.EqualFold(tokens[0], "set") {
		tokens = tokens[1:]
	}
	params, tokens := stripParams(tokens)
	if len(tokens) == 0 {
		return
	}
	if sp.changeDir(tokens, stack) {
		return
	}
	*out = append(*out, Statement{
		Args:         tokens,
		Params:       params,
		Redirections: redirs,
		Dir:          stack.Top(),
	})
}

// changeDir applies cd, pushd and popd to the stack. It returns false for any
// other command.
func (sp *Splitter) changeDir(tokens []string, stack *dirstack.Stack) bool {
	name := tokens[0]
	if sp.Dialect == cmdline.Cmd {
		name = strings.ToLower(name)
	}
	operand := tokens[1:]
	if sp.Dialect == cmdline.Cmd && len(operand) > 0 && strings.EqualFold(operand[0], "/d") {
		operand = operand[1:]
	}
	target := strings.Join(operand, " ")
	logger := sp.logger()

	switch name {
	case "cd", "chdir":
		if target != "" {
			dir := stack.Replace(target)
			logger.Debug("cd", "dir", dir)
		}
	case "pushd":
		if target != "" {
			dir := stack.Push(target)
			logger.Debug("pushd", "dir", dir)
		}
	case "popd":
		if err := stack.Pop(); err != nil {
			d := diag.Warn(diag.CodeDirStackUnderflow, "popd with only the initial directory %s on the stack", stack.Top())
			d.Cause = err
			diag.OrDiscard(sp.Reporter).Report(d)
			return true
		}
		logger.Debug("popd", "dir", stack.Top())
	default:
		return false
	}
	return true
}

func (sp *Splitter) logger() *log.Logger {
	if sp.Logger == nil {
		return log.New(io.Discard)
	}
	return sp.Logger
}

func isSeparator(op string) bool {
	switch op {
	case "&&", "||", ";", "&":
		return true
	}
	return false
}

func isControlKeyword(a cmdline.Arg) bool {
	if a.Operator {
		return false
	}
	switch a.Value {
	case "then", "else", "fi":
		return true
	}
	return false
}

// stripParams removes leading NAME=VALUE tokens. The first token that is not
// an assignment ends the parameter section.
func stripParams(tokens []string) (map[string]string, []string) {
	var params map[string]string
	for len(tokens) > 0 {
		parts := strings.Split(tokens[0], "=")
		if len(parts) != 2 || parts[0] == "" {
			break
		}
		if params == nil {
			params = make(map[string]string)
		}
		params[parts[0]] = parts[1]
		tokens = tokens[1:]
	}
	return params, tokens
}
